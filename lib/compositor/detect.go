// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package compositor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// New constructs the gateway selected by kind: "sway", "hyprland", or
// "auto" (also the empty string) to detect from the environment.
func New(kind string, logger *slog.Logger) (Gateway, error) {
	switch kind {
	case "", "auto":
		return Detect(logger)
	case "sway":
		return NewSway(SwayConfig{SocketPath: os.Getenv("SWAYSOCK"), Logger: logger})
	case "hyprland":
		directory, err := hyprlandDirectory()
		if err != nil {
			return nil, err
		}
		return NewHyprland(HyprlandConfig{Directory: directory, Logger: logger})
	default:
		return nil, fmt.Errorf("unknown compositor %q (supported: auto, sway, hyprland)", kind)
	}
}

// Detect picks the gateway for the running compositor from the session
// environment. Sway wins when both are somehow present, since SWAYSOCK
// points at a live IPC socket.
func Detect(logger *slog.Logger) (Gateway, error) {
	if socket := os.Getenv("SWAYSOCK"); socket != "" {
		logger.Info("detected sway", "socket", socket)
		return NewSway(SwayConfig{SocketPath: socket, Logger: logger})
	}
	if os.Getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		directory, err := hyprlandDirectory()
		if err != nil {
			return nil, err
		}
		logger.Info("detected hyprland", "directory", directory)
		return NewHyprland(HyprlandConfig{Directory: directory, Logger: logger})
	}
	return nil, fmt.Errorf("no supported compositor detected (checked $SWAYSOCK and $HYPRLAND_INSTANCE_SIGNATURE)")
}

// hyprlandDirectory resolves the Hyprland instance runtime directory
// from the environment.
func hyprlandDirectory() (string, error) {
	signature := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if signature == "" {
		return "", fmt.Errorf("$HYPRLAND_INSTANCE_SIGNATURE is not set")
	}
	runtimeDirectory := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDirectory == "" {
		runtimeDirectory = fmt.Sprintf("/run/user/%d", os.Getuid())
	}
	return filepath.Join(runtimeDirectory, "hypr", signature), nil
}
