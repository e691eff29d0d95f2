// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package compositor

import (
	"io"
	"log/slog"
	"testing"
)

func detectLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDetectSway(t *testing.T) {
	t.Setenv("SWAYSOCK", "/run/user/1000/sway-ipc.sock")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "")

	gateway, err := Detect(detectLogger())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	defer gateway.Close()
	if gateway.Name() != "sway" {
		t.Errorf("gateway = %s, want sway", gateway.Name())
	}
}

func TestDetectHyprland(t *testing.T) {
	t.Setenv("SWAYSOCK", "")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "abc123")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	gateway, err := Detect(detectLogger())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	defer gateway.Close()
	if gateway.Name() != "hyprland" {
		t.Errorf("gateway = %s, want hyprland", gateway.Name())
	}
	hypr := gateway.(*Hyprland)
	if hypr.directory != "/run/user/1000/hypr/abc123" {
		t.Errorf("directory = %q", hypr.directory)
	}
}

func TestDetectPrefersSway(t *testing.T) {
	t.Setenv("SWAYSOCK", "/run/user/1000/sway-ipc.sock")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "abc123")

	gateway, err := Detect(detectLogger())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	defer gateway.Close()
	if gateway.Name() != "sway" {
		t.Errorf("gateway = %s, want sway", gateway.Name())
	}
}

func TestDetectNothingRunning(t *testing.T) {
	t.Setenv("SWAYSOCK", "")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "")

	if _, err := Detect(detectLogger()); err == nil {
		t.Error("Detect succeeded with no compositor environment")
	}
}

func TestNewSelectsExplicitKind(t *testing.T) {
	t.Setenv("SWAYSOCK", "/run/user/1000/sway-ipc.sock")

	gateway, err := New("sway", detectLogger())
	if err != nil {
		t.Fatalf("New(sway): %v", err)
	}
	defer gateway.Close()
	if gateway.Name() != "sway" {
		t.Errorf("gateway = %s, want sway", gateway.Name())
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New("kwin", detectLogger()); err == nil {
		t.Error("New accepted an unsupported compositor kind")
	}
}
