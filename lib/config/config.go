// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the wayward daemon configuration.
type Config struct {
	// StateDir holds the daemon's durable state: the authorization
	// store and the decision journal.
	// Default: ${XDG_STATE_HOME:-~/.local/state}/wayward
	StateDir string `yaml:"state_dir"`

	// ControlSocket is the Unix socket the daemon serves operator
	// requests on.
	// Default: $XDG_RUNTIME_DIR/wayward/control.sock
	ControlSocket string `yaml:"control_socket"`

	// Compositor selects the gateway backend: auto, sway, or hyprland.
	// Default: auto
	Compositor string `yaml:"compositor"`

	// SeedFile is an optional JSONC file of pre-authorized decisions,
	// applied once when the store opens empty. Empty disables seeding.
	SeedFile string `yaml:"seed_file"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Reconciler tunes the reconciliation loop.
	Reconciler ReconcilerConfig `yaml:"reconciler"`

	// Journal tunes the decision journal.
	Journal JournalConfig `yaml:"journal"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is json or text.
	// Default: json
	Format string `yaml:"format"`
}

// ReconcilerConfig tunes the reconciliation loop.
type ReconcilerConfig struct {
	// ResyncInterval is how often a full reconciliation runs absent
	// any other trigger, as a Go duration string.
	// Default: 5m
	ResyncInterval string `yaml:"resync_interval"`

	// CommandAttempts bounds delivery attempts per compositor command.
	// Default: 3
	CommandAttempts int `yaml:"command_attempts"`
}

// JournalConfig tunes the decision journal.
type JournalConfig struct {
	// Retention is how long journal entries are kept, as a Go
	// duration string.
	// Default: 2160h (90 days)
	Retention string `yaml:"retention"`
}

// Default returns the configuration for a single-user desktop session.
// The daemon runs on these alone when no config file exists.
func Default() *Config {
	return &Config{
		StateDir:      defaultStateDir(),
		ControlSocket: defaultControlSocket(),
		Compositor:    "auto",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Reconciler: ReconcilerConfig{
			ResyncInterval:  "5m",
			CommandAttempts: 3,
		},
		Journal: JournalConfig{
			Retention: "2160h",
		},
	}
}

func defaultStateDir() string {
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "wayward")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "wayward-state")
	}
	return filepath.Join(home, ".local", "state", "wayward")
}

func defaultControlSocket() string {
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, "wayward", "control.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("wayward-%d", os.Getuid()), "control.sock")
}

// Load builds the configuration from the file named by WAYWARD_CONFIG,
// or from [Default] when the variable is unset. WAYWARD_STATE_DIR and
// WAYWARD_CONTROL_SOCKET override their file counterparts either way.
func Load() (*Config, error) {
	if path := os.Getenv("WAYWARD_CONFIG"); path != "" {
		return LoadFile(path)
	}

	cfg := Default()
	cfg.applyEnvironment()
	cfg.expandVariables()
	return cfg, nil
}

// LoadFile loads configuration from a specific file path, merging it
// over [Default].
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironment()
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironment applies the two supported environment overrides.
func (c *Config) applyEnvironment() {
	if dir := os.Getenv("WAYWARD_STATE_DIR"); dir != "" {
		c.StateDir = dir
	}
	if socket := os.Getenv("WAYWARD_CONTROL_SOCKET"); socket != "" {
		c.ControlSocket = socket
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields. StateDir expands first so dependent paths can reference
// ${WAYWARD_STATE_DIR}.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.StateDir = expandVars(c.StateDir, vars)
	vars["WAYWARD_STATE_DIR"] = c.StateDir

	c.ControlSocket = expandVars(c.ControlSocket, vars)
	c.SeedFile = expandVars(c.SeedFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, reporting every
// problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.StateDir == "" {
		errs = append(errs, fmt.Errorf("state_dir is required"))
	}
	if c.ControlSocket == "" {
		errs = append(errs, fmt.Errorf("control_socket is required"))
	}

	switch c.Compositor {
	case "auto", "sway", "hyprland":
	default:
		errs = append(errs, fmt.Errorf("compositor must be auto, sway, or hyprland, got %q", c.Compositor))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if _, err := c.ResyncInterval(); err != nil {
		errs = append(errs, err)
	}
	if c.Reconciler.CommandAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconciler.command_attempts must not be negative, got %d", c.Reconciler.CommandAttempts))
	}
	if _, err := c.JournalRetention(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SlogLevel maps the configured log level onto slog's scale.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
}

// ResyncInterval returns the parsed reconciler resync interval.
func (c *Config) ResyncInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.Reconciler.ResyncInterval)
	if err != nil {
		return 0, fmt.Errorf("reconciler.resync_interval: %w", err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("reconciler.resync_interval must be positive, got %s", interval)
	}
	return interval, nil
}

// JournalRetention returns the parsed journal retention window.
func (c *Config) JournalRetention() (time.Duration, error) {
	retention, err := time.ParseDuration(c.Journal.Retention)
	if err != nil {
		return 0, fmt.Errorf("journal.retention: %w", err)
	}
	if retention <= 0 {
		return 0, fmt.Errorf("journal.retention must be positive, got %s", retention)
	}
	return retention, nil
}

// StorePath is the authorization store file under StateDir.
func (c *Config) StorePath() string {
	return filepath.Join(c.StateDir, "authorizations.cbor")
}

// JournalPath is the decision journal database under StateDir.
func (c *Config) JournalPath() string {
	return filepath.Join(c.StateDir, "journal.db")
}

// EnsureStateDir creates StateDir. The directory is private: the store
// records every display the machine has ever seen.
func (c *Config) EnsureStateDir() error {
	if err := os.MkdirAll(c.StateDir, 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}
