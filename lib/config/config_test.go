// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/var/lib/test-state")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	cfg := Default()

	if cfg.StateDir != "/var/lib/test-state/wayward" {
		t.Errorf("expected state_dir=/var/lib/test-state/wayward, got %s", cfg.StateDir)
	}

	if cfg.ControlSocket != "/run/user/1000/wayward/control.sock" {
		t.Errorf("expected control_socket=/run/user/1000/wayward/control.sock, got %s", cfg.ControlSocket)
	}

	if cfg.Compositor != "auto" {
		t.Errorf("expected compositor=auto, got %s", cfg.Compositor)
	}

	if cfg.SeedFile != "" {
		t.Errorf("expected empty seed_file, got %s", cfg.SeedFile)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected log.level=info, got %s", cfg.Log.Level)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("expected log.format=json, got %s", cfg.Log.Format)
	}

	if cfg.Reconciler.ResyncInterval != "5m" {
		t.Errorf("expected resync_interval=5m, got %s", cfg.Reconciler.ResyncInterval)
	}

	if cfg.Reconciler.CommandAttempts != 3 {
		t.Errorf("expected command_attempts=3, got %d", cfg.Reconciler.CommandAttempts)
	}

	if cfg.Journal.Retention != "2160h" {
		t.Errorf("expected journal.retention=2160h, got %s", cfg.Journal.Retention)
	}
}

func TestDefault_WithoutXDGDirectories(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("HOME", "/home/tester")

	cfg := Default()

	if want := "/home/tester/.local/state/wayward"; cfg.StateDir != want {
		t.Errorf("expected state_dir=%s, got %s", want, cfg.StateDir)
	}

	want := filepath.Join(os.TempDir(), fmt.Sprintf("wayward-%d", os.Getuid()), "control.sock")
	if cfg.ControlSocket != want {
		t.Errorf("expected control_socket=%s, got %s", want, cfg.ControlSocket)
	}
}

func TestLoad_NoConfigUsesDefaults(t *testing.T) {
	t.Setenv("WAYWARD_CONFIG", "")
	t.Setenv("WAYWARD_STATE_DIR", "")
	t.Setenv("XDG_STATE_HOME", "/var/lib/test-state")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.StateDir != "/var/lib/test-state/wayward" {
		t.Errorf("expected state_dir=/var/lib/test-state/wayward, got %s", cfg.StateDir)
	}

	if cfg.Compositor != "auto" {
		t.Errorf("expected compositor=auto, got %s", cfg.Compositor)
	}
}

func TestLoad_WithWaywardConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "wayward.yaml")

	configContent := `
compositor: sway
log:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("WAYWARD_CONFIG", configPath)
	t.Setenv("WAYWARD_STATE_DIR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Compositor != "sway" {
		t.Errorf("expected compositor=sway, got %s", cfg.Compositor)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log.level=debug, got %s", cfg.Log.Level)
	}
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("WAYWARD_CONFIG", "")
	t.Setenv("WAYWARD_STATE_DIR", "/env/state")
	t.Setenv("WAYWARD_CONTROL_SOCKET", "/env/control.sock")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.StateDir != "/env/state" {
		t.Errorf("expected state_dir=/env/state, got %s", cfg.StateDir)
	}

	if cfg.ControlSocket != "/env/control.sock" {
		t.Errorf("expected control_socket=/env/control.sock, got %s", cfg.ControlSocket)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("WAYWARD_STATE_DIR", "")
	t.Setenv("WAYWARD_CONTROL_SOCKET", "")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "wayward.yaml")

	configContent := `
state_dir: /custom/state
control_socket: /custom/control.sock
compositor: hyprland
seed_file: /custom/seed.jsonc

log:
  level: debug
  format: text

reconciler:
  resync_interval: 30s
  command_attempts: 5
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.StateDir != "/custom/state" {
		t.Errorf("expected state_dir=/custom/state, got %s", cfg.StateDir)
	}

	if cfg.ControlSocket != "/custom/control.sock" {
		t.Errorf("expected control_socket=/custom/control.sock, got %s", cfg.ControlSocket)
	}

	if cfg.Compositor != "hyprland" {
		t.Errorf("expected compositor=hyprland, got %s", cfg.Compositor)
	}

	if cfg.SeedFile != "/custom/seed.jsonc" {
		t.Errorf("expected seed_file=/custom/seed.jsonc, got %s", cfg.SeedFile)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log.level=debug, got %s", cfg.Log.Level)
	}

	if cfg.Log.Format != "text" {
		t.Errorf("expected log.format=text, got %s", cfg.Log.Format)
	}

	if cfg.Reconciler.ResyncInterval != "30s" {
		t.Errorf("expected resync_interval=30s, got %s", cfg.Reconciler.ResyncInterval)
	}

	if cfg.Reconciler.CommandAttempts != 5 {
		t.Errorf("expected command_attempts=5, got %d", cfg.Reconciler.CommandAttempts)
	}

	// Sections absent from the file keep their defaults.
	if cfg.Journal.Retention != "2160h" {
		t.Errorf("expected journal.retention=2160h, got %s", cfg.Journal.Retention)
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "wayward.yaml")

	configContent := `
state_dir: /file/state
control_socket: /file/control.sock
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("WAYWARD_STATE_DIR", "/env/state")
	t.Setenv("WAYWARD_CONTROL_SOCKET", "/env/control.sock")

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.StateDir != "/env/state" {
		t.Errorf("expected state_dir=/env/state from environment, got %s", cfg.StateDir)
	}

	if cfg.ControlSocket != "/env/control.sock" {
		t.Errorf("expected control_socket=/env/control.sock from environment, got %s", cfg.ControlSocket)
	}
}

func TestPathExpansion(t *testing.T) {
	t.Setenv("HOME", "/home/kiosk")
	t.Setenv("WAYWARD_STATE_DIR", "")
	t.Setenv("WAYWARD_CONTROL_SOCKET", "")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "wayward.yaml")

	configContent := `
state_dir: ${HOME}/.wayward
control_socket: ${WAYWARD_STATE_DIR}/control.sock
seed_file: ${WAYWARD_STATE_DIR}/seed.jsonc
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.StateDir != "/home/kiosk/.wayward" {
		t.Errorf("expected state_dir=/home/kiosk/.wayward, got %s", cfg.StateDir)
	}

	// Dependent paths see the expanded state dir.
	if cfg.ControlSocket != "/home/kiosk/.wayward/control.sock" {
		t.Errorf("expected control_socket=/home/kiosk/.wayward/control.sock, got %s", cfg.ControlSocket)
	}

	if cfg.SeedFile != "/home/kiosk/.wayward/seed.jsonc" {
		t.Errorf("expected seed_file=/home/kiosk/.wayward/seed.jsonc, got %s", cfg.SeedFile)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/wayward",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/wayward",
		},
		{
			input:    "${WAYWARD_UNSET_VARIABLE:-/tmp/fallback}",
			vars:     map[string]string{},
			expected: "/tmp/fallback",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "empty state dir",
			modify: func(c *Config) {
				c.StateDir = ""
			},
			wantErr: true,
		},
		{
			name: "empty control socket",
			modify: func(c *Config) {
				c.ControlSocket = ""
			},
			wantErr: true,
		},
		{
			name: "unknown compositor",
			modify: func(c *Config) {
				c.Compositor = "weston"
			},
			wantErr: true,
		},
		{
			name: "unknown log level",
			modify: func(c *Config) {
				c.Log.Level = "verbose"
			},
			wantErr: true,
		},
		{
			name: "unknown log format",
			modify: func(c *Config) {
				c.Log.Format = "logfmt"
			},
			wantErr: true,
		},
		{
			name: "malformed resync interval",
			modify: func(c *Config) {
				c.Reconciler.ResyncInterval = "soon"
			},
			wantErr: true,
		},
		{
			name: "zero resync interval",
			modify: func(c *Config) {
				c.Reconciler.ResyncInterval = "0s"
			},
			wantErr: true,
		},
		{
			name: "negative command attempts",
			modify: func(c *Config) {
				c.Reconciler.CommandAttempts = -1
			},
			wantErr: true,
		},
		{
			name: "malformed journal retention",
			modify: func(c *Config) {
				c.Journal.Retention = "never"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.Log.Level = tt.level

		got, err := cfg.SlogLevel()
		if (err != nil) != tt.wantErr {
			t.Errorf("SlogLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()

	interval, err := cfg.ResyncInterval()
	if err != nil {
		t.Fatalf("ResyncInterval failed: %v", err)
	}
	if interval != 5*time.Minute {
		t.Errorf("expected resync interval 5m, got %s", interval)
	}

	retention, err := cfg.JournalRetention()
	if err != nil {
		t.Fatalf("JournalRetention failed: %v", err)
	}
	if retention != 2160*time.Hour {
		t.Errorf("expected journal retention 2160h, got %s", retention)
	}
}

func TestStatePaths(t *testing.T) {
	cfg := Default()
	cfg.StateDir = "/var/lib/wayward"

	if got := cfg.StorePath(); got != "/var/lib/wayward/authorizations.cbor" {
		t.Errorf("StorePath() = %s, want /var/lib/wayward/authorizations.cbor", got)
	}

	if got := cfg.JournalPath(); got != "/var/lib/wayward/journal.db" {
		t.Errorf("JournalPath() = %s, want /var/lib/wayward/journal.db", got)
	}
}

func TestEnsureStateDir(t *testing.T) {
	cfg := Default()
	cfg.StateDir = filepath.Join(t.TempDir(), "state", "wayward")

	if err := cfg.EnsureStateDir(); err != nil {
		t.Fatalf("EnsureStateDir failed: %v", err)
	}

	info, err := os.Stat(cfg.StateDir)
	if err != nil {
		t.Fatalf("state dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("state dir %s is not a directory", cfg.StateDir)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("state dir mode = %o, want 700", perm)
	}
}
