// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package compositor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wayward-foundation/wayward/lib/display"
)

// Hyprland's IPC is two Unix sockets under the instance runtime
// directory: .socket.sock answers one request per connection (the
// hyprctl protocol, "j/" prefix for JSON replies), .socket2.sock
// streams newline-delimited "event>>data" notifications.
const (
	hyprRequestSocket = ".socket.sock"
	hyprEventSocket   = ".socket2.sock"

	hyprRequestTimeout = 30 * time.Second

	// hyprMaxReply caps a request reply; monitor listings are small.
	hyprMaxReply = 1 << 20
)

// HyprlandConfig configures NewHyprland.
type HyprlandConfig struct {
	// Directory is the instance runtime directory,
	// $XDG_RUNTIME_DIR/hypr/$HYPRLAND_INSTANCE_SIGNATURE.
	Directory string

	// Logger is required.
	Logger *slog.Logger
}

// Hyprland is the Gateway for Hyprland.
type Hyprland struct {
	directory string
	logger    *slog.Logger

	mu      sync.Mutex
	subConn net.Conn
	closed  bool
}

// NewHyprland returns a Hyprland gateway. Sockets are dialed on first
// use.
func NewHyprland(cfg HyprlandConfig) (*Hyprland, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("hyprland gateway: instance directory is required (is $HYPRLAND_INSTANCE_SIGNATURE set?)")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("hyprland gateway: logger is required")
	}
	return &Hyprland{
		directory: cfg.Directory,
		logger:    cfg.Logger.With("component", "compositor", "gateway", "hyprland"),
	}, nil
}

// Name implements Gateway.
func (h *Hyprland) Name() string { return "hyprland" }

// hyprMonitor is the subset of "j/monitors all" wayward reads.
type hyprMonitor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Make        string  `json:"make"`
	Model       string  `json:"model"`
	Serial      string  `json:"serial"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	RefreshRate float64 `json:"refreshRate"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Scale       float64 `json:"scale"`
	Disabled    bool    `json:"disabled"`
}

// Outputs implements Gateway. "monitors all" includes disabled
// outputs, which plain "monitors" hides.
func (h *Hyprland) Outputs(ctx context.Context) ([]display.Snapshot, error) {
	reply, err := h.request(ctx, "j/monitors all")
	if err != nil {
		return nil, fmt.Errorf("querying monitors: %w", err)
	}

	var monitors []hyprMonitor
	if err := json.Unmarshal(reply, &monitors); err != nil {
		return nil, fmt.Errorf("parsing monitors reply: %w", err)
	}

	snapshots := make([]display.Snapshot, 0, len(monitors))
	for _, monitor := range monitors {
		description := strings.TrimSpace(monitor.Description)
		if description == "" {
			description = describeOutput(monitor.Make, monitor.Model, monitor.Serial)
		}
		snapshot := display.Snapshot{
			Identity:    display.Identity(monitor.Name),
			Description: description,
			Enabled:     !monitor.Disabled,
			Geometry: display.Geometry{
				Mode: display.Mode{
					Width:      monitor.Width,
					Height:     monitor.Height,
					RefreshMHz: int(math.Round(monitor.RefreshRate * 1000)),
				},
				Position: display.Position{X: monitor.X, Y: monitor.Y},
				Scale:    monitor.Scale,
			},
		}
		if err := display.ValidateIdentity(snapshot.Identity); err != nil {
			h.logger.Warn("skipping monitor with unusable name", "name", monitor.Name, "error", err)
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	display.SortSnapshots(snapshots)
	return snapshots, nil
}

// Enable implements Gateway. "preferred,auto,1" lets Hyprland pick the
// mode and position; wayward decides whether a display runs, not how.
func (h *Hyprland) Enable(ctx context.Context, id display.Identity) error {
	return h.keyword(ctx, fmt.Sprintf("keyword monitor %s,preferred,auto,1", id))
}

// Disable implements Gateway.
func (h *Hyprland) Disable(ctx context.Context, id display.Identity) error {
	return h.keyword(ctx, fmt.Sprintf("keyword monitor %s,disable", id))
}

// keyword runs a keyword command, mapping any reply other than "ok" to
// a RejectedError.
func (h *Hyprland) keyword(ctx context.Context, command string) error {
	reply, err := h.request(ctx, command)
	if err != nil {
		return fmt.Errorf("sending %q: %w", command, err)
	}
	if answer := strings.TrimSpace(string(reply)); answer != "ok" {
		return &RejectedError{Reason: answer}
	}
	return nil
}

// request performs one hyprctl-style round-trip: dial, write the
// command, read the reply to EOF.
func (h *Hyprland) request(ctx context.Context, command string) ([]byte, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("gateway closed")
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", filepath.Join(h.directory, hyprRequestSocket))
	if err != nil {
		return nil, fmt.Errorf("connecting to hyprland socket: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(hyprRequestTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting deadline: %w", err)
	}

	if _, err := conn.Write([]byte(command)); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	reply, err := io.ReadAll(io.LimitReader(conn, hyprMaxReply))
	if err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}
	return reply, nil
}

// hyprOutputEvents are the event names that signal output topology or
// state changes worth a re-query.
var hyprOutputEvents = map[string]bool{
	"monitoradded":     true,
	"monitoraddedv2":   true,
	"monitorremoved":   true,
	"monitorremovedv2": true,
	"configreloaded":   true,
}

// Subscribe implements Gateway.
func (h *Hyprland) Subscribe(ctx context.Context) (<-chan display.ChangeEvent, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", filepath.Join(h.directory, hyprEventSocket))
	if err != nil {
		return nil, fmt.Errorf("connecting event stream: %w", err)
	}

	baseline, err := h.Outputs(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("taking baseline: %w", err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("gateway closed")
	}
	h.subConn = conn
	h.mu.Unlock()

	events := make(chan display.ChangeEvent, eventBuffer)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()
		previous := baseline

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			name, _, found := strings.Cut(scanner.Text(), ">>")
			if !found || !hyprOutputEvents[name] {
				continue
			}
			current, err := h.Outputs(ctx)
			if err != nil {
				if ctx.Err() == nil {
					h.logger.Warn("monitor re-query failed, dropping stream", "error", err)
				}
				return
			}
			if !emit(ctx, events, display.Diff(previous, current)) {
				return
			}
			previous = current
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			h.logger.Warn("event stream lost", "error", err)
		}
	}()

	return events, nil
}

// Close implements Gateway.
func (h *Hyprland) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	if h.subConn != nil {
		h.subConn.Close()
		h.subConn = nil
	}
	return nil
}
