// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wayward-foundation/wayward/lib/codec"
	"github.com/wayward-foundation/wayward/lib/config"
	"github.com/wayward-foundation/wayward/lib/display"
	"github.com/wayward-foundation/wayward/lib/policy"
	"github.com/wayward-foundation/wayward/lib/reconciler"
)

func TestDecodeIdentity(t *testing.T) {
	raw, err := codec.Marshal(map[string]any{
		"action":   "allow",
		"identity": "DP-1",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	id, err := decodeIdentity(raw)
	if err != nil {
		t.Fatalf("decodeIdentity: %v", err)
	}
	if id != "DP-1" {
		t.Errorf("identity = %q, want DP-1", id)
	}
}

func TestDecodeIdentityMissing(t *testing.T) {
	raw, err := codec.Marshal(map[string]any{"action": "allow"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if _, err := decodeIdentity(raw); err == nil {
		t.Fatal("expected error for request without identity")
	}
}

func TestDecodeIdentityGarbage(t *testing.T) {
	if _, err := decodeIdentity([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Fatal("expected error for undecodable request")
	}
}

func TestAuthorizeOutcomeMapsFailsafe(t *testing.T) {
	record := &policy.Record{
		Identity:    "eDP-1",
		Decision:    policy.Allowed,
		FirstSeen:   time.Date(2026, 4, 12, 8, 30, 0, 0, time.UTC),
		LastUpdated: time.Date(2026, 4, 12, 9, 0, 0, 0, time.UTC),
	}

	outcome := reconciler.Outcome{
		Record:   record,
		Commands: []string{"enable eDP-1"},
		Failsafe: &policy.Failsafe{
			Identity:          "eDP-1",
			PreviouslyApplied: true,
		},
	}

	wire := authorizeOutcome(outcome)
	if wire.Record != record {
		t.Error("record not carried through")
	}
	if len(wire.Commands) != 1 || wire.Commands[0] != "enable eDP-1" {
		t.Errorf("commands = %v", wire.Commands)
	}
	if wire.Failsafe == nil {
		t.Fatal("failsafe notice missing")
	}
	if wire.Failsafe.Identity != display.Identity("eDP-1") {
		t.Errorf("failsafe identity = %s", wire.Failsafe.Identity)
	}
	if !wire.Failsafe.PreviouslyActive {
		t.Error("PreviouslyActive should be true")
	}
}

func TestAuthorizeOutcomeWithoutFailsafe(t *testing.T) {
	wire := authorizeOutcome(reconciler.Outcome{})
	if wire.Failsafe != nil {
		t.Error("expected nil failsafe notice")
	}
	if wire.Record != nil {
		t.Error("expected nil record")
	}
}

func TestBuildLogger(t *testing.T) {
	cfg := config.Default()
	logger, err := buildLogger(cfg)
	if err != nil {
		t.Fatalf("buildLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("nil logger")
	}

	cfg.Log.Format = "text"
	if _, err := buildLogger(cfg); err != nil {
		t.Fatalf("buildLogger text: %v", err)
	}

	cfg.Log.Level = "verbose"
	if _, err := buildLogger(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestLoadConfigExplicitPathWins(t *testing.T) {
	tmpDir := t.TempDir()

	envConfig := filepath.Join(tmpDir, "env.yaml")
	if err := os.WriteFile(envConfig, []byte("compositor: hyprland\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	flagConfig := filepath.Join(tmpDir, "flag.yaml")
	if err := os.WriteFile(flagConfig, []byte("compositor: sway\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("WAYWARD_CONFIG", envConfig)

	cfg, err := loadConfig(flagConfig)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Compositor != "sway" {
		t.Errorf("compositor = %s, want sway (explicit --config should win)", cfg.Compositor)
	}

	cfg, err = loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Compositor != "hyprland" {
		t.Errorf("compositor = %s, want hyprland (WAYWARD_CONFIG fallback)", cfg.Compositor)
	}
}
