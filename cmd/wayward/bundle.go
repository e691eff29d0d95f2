// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/pflag"

	"github.com/wayward-foundation/wayward/lib/control"
	"github.com/wayward-foundation/wayward/lib/journal"
	"github.com/wayward-foundation/wayward/lib/policy"
	"github.com/wayward-foundation/wayward/lib/version"
)

// bundleHistoryLimit caps how many journal entries a bundle includes.
const bundleHistoryLimit = 500

func debugCommand() *Command {
	return &Command{
		Name:    "debug",
		Summary: "Diagnostic helpers",
		Subcommands: []*Command{
			bundleCommand(),
		},
	}
}

// bundleParams holds the parameters for the debug bundle command.
type bundleParams struct {
	socketConfig
	Output string
}

func bundleCommand() *Command {
	var params bundleParams

	return &Command{
		Name:    "bundle",
		Summary: "Collect a diagnostic archive",
		Description: `Collect the daemon's status, connected outputs, authorization
records, and recent journal entries into a tar.zst archive suitable
for attaching to a bug report.

Sections that cannot be collected (for example history from a
daemon running with --volatile) are skipped and listed under
"errors" in the archive's meta.json.`,
		Usage: "wayward debug bundle [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("bundle", pflag.ContinueOnError)
			params.AddFlags(flagSet)
			flagSet.StringVar(&params.Output, "output", "",
				"archive path (default: wayward-bundle-<timestamp>.tar.zst)")
			return flagSet
		},
		Examples: []Example{
			{
				Description: "Collect a bundle in the current directory",
				Command:     "wayward debug bundle",
			},
			{
				Description: "Collect to a specific path",
				Command:     "wayward debug bundle --output /tmp/seat7.tar.zst",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()

			files, meta, err := collectBundle(ctx, params.Client(), params.Socket)
			if err != nil {
				return err
			}

			outputPath := params.Output
			if outputPath == "" {
				outputPath = fmt.Sprintf("wayward-bundle-%s.tar.zst",
					time.Now().Format("20060102-150405"))
			}

			if err := writeBundle(outputPath, files); err != nil {
				os.Remove(outputPath)
				return err
			}

			for name, message := range meta.Errors {
				fmt.Fprintf(os.Stderr, "warning: %s not collected: %s\n", name, message)
			}
			fmt.Printf("Wrote %s (%d sections)\n", outputPath, len(files))
			return nil
		},
	}
}

// bundleMeta is the meta.json entry written into every bundle.
type bundleMeta struct {
	CreatedAt time.Time `json:"created_at"`

	// Version is the CLI that collected the bundle; the daemon's own
	// version is in status.json.
	Version string `json:"version"`

	Socket string `json:"socket"`

	// Errors maps section names to why they are missing.
	Errors map[string]string `json:"errors,omitempty"`
}

// bundleFile is one entry of the archive.
type bundleFile struct {
	Name string
	Data []byte
}

// collectBundle fetches every section from the daemon. Status must
// succeed (a daemon we cannot reach has nothing to bundle); the other
// sections degrade to an entry in meta.Errors.
func collectBundle(ctx context.Context, client *control.Client, socket string) ([]bundleFile, bundleMeta, error) {
	meta := bundleMeta{
		CreatedAt: time.Now(),
		Version:   version.Info(),
		Socket:    socket,
		Errors:    make(map[string]string),
	}
	if meta.Socket == "" {
		meta.Socket = control.DefaultSocketPath()
	}

	var status control.Status
	if err := client.Call(ctx, control.ActionStatus, nil, &status); err != nil {
		return nil, meta, err
	}

	var files []bundleFile
	add := func(name string, value any, err error) {
		if err != nil {
			meta.Errors[name] = err.Error()
			return
		}
		data, err := json.MarshalIndent(normalizeNilSlice(value), "", "  ")
		if err != nil {
			meta.Errors[name] = err.Error()
			return
		}
		files = append(files, bundleFile{Name: name, Data: append(data, '\n')})
	}

	add("status.json", status, nil)

	var outputs []control.OutputStatus
	add("outputs.json", outputs, client.Call(ctx, control.ActionOutputs, nil, &outputs))

	var records []policy.Record
	add("records.json", records, client.Call(ctx, control.ActionRecords, nil, &records))

	var entries []journal.Entry
	add("history.json", entries, client.Call(ctx, control.ActionHistory,
		map[string]any{"limit": bundleHistoryLimit}, &entries))

	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, meta, fmt.Errorf("encoding bundle meta: %w", err)
	}
	files = append([]bundleFile{{Name: "meta.json", Data: append(metaData, '\n')}}, files...)

	return files, meta, nil
}

// writeBundle writes the collected files as a zstd-compressed tar
// archive. The archive is created exclusively so an existing file is
// never clobbered.
func writeBundle(path string, files []bundleFile) error {
	archive, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating bundle: %w", err)
	}

	compressor, err := zstd.NewWriter(archive, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		archive.Close()
		return fmt.Errorf("initializing zstd: %w", err)
	}

	tarWriter := tar.NewWriter(compressor)
	now := time.Now()
	for _, file := range files {
		header := &tar.Header{
			Name:    file.Name,
			Mode:    0o644,
			Size:    int64(len(file.Data)),
			ModTime: now,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			compressor.Close()
			archive.Close()
			return fmt.Errorf("writing %s header: %w", file.Name, err)
		}
		if _, err := tarWriter.Write(file.Data); err != nil {
			compressor.Close()
			archive.Close()
			return fmt.Errorf("writing %s: %w", file.Name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		compressor.Close()
		archive.Close()
		return fmt.Errorf("finishing archive: %w", err)
	}
	if err := compressor.Close(); err != nil {
		archive.Close()
		return fmt.Errorf("flushing zstd: %w", err)
	}
	return archive.Close()
}

// decodeBundle is the inverse of writeBundle, used by tests to verify
// round-trips without shelling out to tar.
func decodeBundle(path string) (map[string][]byte, error) {
	archive, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	decompressor, err := zstd.NewReader(archive)
	if err != nil {
		return nil, fmt.Errorf("initializing zstd: %w", err)
	}
	defer decompressor.Close()

	files := make(map[string][]byte)
	tarReader := tar.NewReader(decompressor)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		data := make([]byte, header.Size)
		if _, err := io.ReadFull(tarReader, data); err != nil {
			return nil, fmt.Errorf("reading %s: %w", header.Name, err)
		}
		files[header.Name] = data
	}
	return files, nil
}
