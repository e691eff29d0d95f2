// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Wayward-daemon is the display authorization daemon. It watches the
// Wayland compositor for output changes, admits newly seen displays as
// denied, and enforces the operator's stored decisions by enabling and
// disabling outputs through the compositor's IPC interface. A fail-safe
// keeps at least one connected display active at all times.
//
// On startup:
//  1. Loads configuration (--config, WAYWARD_CONFIG, or defaults).
//  2. Opens the authorization store, seeding it on first boot when a
//     seed file is configured.
//  3. Opens the decision journal and starts its retention sweeps.
//  4. Connects to the compositor (sway or Hyprland, autodetected).
//  5. Serves the control socket for the wayward CLI.
//  6. Runs the reconciliation loop until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wayward-foundation/wayward/lib/authstore"
	"github.com/wayward-foundation/wayward/lib/clock"
	"github.com/wayward-foundation/wayward/lib/codec"
	"github.com/wayward-foundation/wayward/lib/compositor"
	"github.com/wayward-foundation/wayward/lib/config"
	"github.com/wayward-foundation/wayward/lib/control"
	"github.com/wayward-foundation/wayward/lib/display"
	"github.com/wayward-foundation/wayward/lib/journal"
	"github.com/wayward-foundation/wayward/lib/reconciler"
	"github.com/wayward-foundation/wayward/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath     string
		stateDir       string
		controlSocket  string
		compositorKind string
		logLevel       string
		volatile       bool
		showVersion    bool
	)

	flag.StringVar(&configPath, "config", "", "path to the config file (overrides WAYWARD_CONFIG)")
	flag.StringVar(&stateDir, "state-dir", "", "directory for the authorization store and journal")
	flag.StringVar(&controlSocket, "control-socket", "", "Unix socket path for the control interface")
	flag.StringVar(&compositorKind, "compositor", "", "compositor backend: auto, sway, or hyprland")
	flag.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, or error")
	flag.BoolVar(&volatile, "volatile", false, "run with an in-memory store and no journal; nothing survives restart")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("wayward-daemon %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Flags override config file and environment.
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if controlSocket != "" {
		cfg.ControlSocket = controlSocket
	}
	if compositorKind != "" {
		cfg.Compositor = compositorKind
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clk := clock.Real()

	// Volatile mode keeps everything in memory: no store file, no
	// journal, no state directory.
	storePath := ""
	journalPath := ""
	if !volatile {
		if err := cfg.EnsureStateDir(); err != nil {
			return err
		}
		storePath = cfg.StorePath()
		journalPath = cfg.JournalPath()
	}

	store, err := authstore.Open(authstore.Config{
		Path:   storePath,
		Clock:  clk,
		Logger: logger,
	})
	switch {
	case err == nil:
	case errors.Is(err, authstore.ErrCorrupt):
		// Open already quarantined the damaged file and returned a
		// usable empty store. Every connected display will be denied
		// until re-authorized.
		logger.Error("authorization store was corrupt, all prior decisions lost", "error", err)
	default:
		return fmt.Errorf("opening authorization store: %w (run with --volatile to start without persistence)", err)
	}

	if cfg.SeedFile != "" && store.Len() == 0 {
		entries, err := authstore.LoadSeed(cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("loading seed file: %w", err)
		}
		if err := store.Seed(entries); err != nil {
			return fmt.Errorf("seeding authorization store: %w", err)
		}
		logger.Info("authorization store seeded", "seed_file", cfg.SeedFile, "records", len(entries))
	}

	var jrnl *journal.Journal
	if journalPath != "" {
		retention, err := cfg.JournalRetention()
		if err != nil {
			return err
		}
		jrnl, err = journal.Open(journal.Config{
			Path:      journalPath,
			Retention: retention,
			Clock:     clk,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("opening decision journal: %w", err)
		}
		defer jrnl.Close()
		go jrnl.RetentionLoop(ctx)
	}

	gateway, err := compositor.New(cfg.Compositor, logger)
	if err != nil {
		return fmt.Errorf("connecting to compositor: %w", err)
	}
	defer gateway.Close()

	resync, err := cfg.ResyncInterval()
	if err != nil {
		return err
	}

	rec, err := reconciler.New(reconciler.Config{
		Gateway:         gateway,
		Store:           store,
		Journal:         jrnl,
		Clock:           clk,
		Logger:          logger,
		ResyncInterval:  resync,
		CommandAttempts: cfg.Reconciler.CommandAttempts,
	})
	if err != nil {
		return fmt.Errorf("creating reconciler: %w", err)
	}

	// External edits to the store file (hand-provisioning, config
	// management) trigger a reload cycle. The watch is on the state
	// directory because the store's atomic rename replaces the file.
	if storePath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating store watcher: %w", err)
		}
		defer watcher.Close()
		if err := watcher.Add(cfg.StateDir); err != nil {
			return fmt.Errorf("watching state directory: %w", err)
		}
		go watchStore(ctx, watcher, storePath, rec, logger)
	}

	server := control.NewServer(cfg.ControlSocket, logger)
	handlers := &controlHandlers{
		reconciler: rec,
		store:      store,
		journal:    jrnl,
		gateway:    gateway,
	}
	handlers.register(server)

	// A daemon without its control socket cannot be operated; a serve
	// failure brings the whole process down.
	serverDone := make(chan error, 1)
	go func() {
		err := server.Serve(ctx)
		serverDone <- err
		if err != nil {
			cancel()
		}
	}()

	logger.Info("wayward-daemon started",
		"version", version.Short(),
		"compositor", gateway.Name(),
		"store", store.Path(),
		"control_socket", cfg.ControlSocket,
	)

	runErr := rec.Run(ctx)
	serverErr := <-serverDone

	logger.Info("shutting down")
	if runErr != nil {
		return runErr
	}
	if serverErr != nil {
		return fmt.Errorf("control server: %w", serverErr)
	}
	return nil
}

// loadConfig resolves configuration: an explicit --config path wins,
// otherwise WAYWARD_CONFIG or built-in defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildLogger constructs the daemon's logger from validated config.
func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
}

// watchStore forwards on-disk changes of the store file to the
// reconciler. The daemon's own persists also land here; the store's
// checksum comparison makes those reload cycles no-ops.
func watchStore(ctx context.Context, watcher *fsnotify.Watcher, storePath string, rec *reconciler.Reconciler, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != storePath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("store file changed on disk", "op", event.Op.String())
			rec.NotifyStoreChanged()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("store watcher error", "error", err)
		}
	}
}

// controlHandlers wires control socket actions to the daemon's
// components.
type controlHandlers struct {
	reconciler *reconciler.Reconciler
	store      *authstore.Store
	journal    *journal.Journal
	gateway    compositor.Gateway
}

func (h *controlHandlers) register(server *control.Server) {
	server.Handle(control.ActionStatus, h.status)
	server.Handle(control.ActionOutputs, h.outputs)
	server.Handle(control.ActionRecords, h.records)
	server.Handle(control.ActionHistory, h.history)
	server.HandleMutating(control.ActionAllow, h.allow)
	server.HandleMutating(control.ActionDeny, h.deny)
	server.HandleMutating(control.ActionForget, h.forget)
}

func (h *controlHandlers) status(ctx context.Context, raw []byte) (any, error) {
	st := h.reconciler.Status()
	return control.Status{
		Version:          version.Short(),
		Compositor:       h.gateway.Name(),
		GatewayConnected: st.Connected,
		StartedAt:        st.StartedAt,
		StorePath:        h.store.Path(),
		StoreDegraded:    st.StoreDegraded,
		Cycles:           st.Cycles,
		LastCycleAt:      st.LastCycleAt,
		LiveDisplays:     st.LiveDisplays,
		ActiveDisplays:   st.ActiveDisplays,
		RecordCount:      h.store.Len(),
	}, nil
}

func (h *controlHandlers) outputs(ctx context.Context, raw []byte) (any, error) {
	applied := h.reconciler.AppliedSet()
	snapshots := h.reconciler.LiveSnapshots()

	outputs := make([]control.OutputStatus, 0, len(snapshots))
	for _, snapshot := range snapshots {
		outputs = append(outputs, control.OutputStatus{
			Snapshot: snapshot,
			Decision: h.store.Decision(snapshot.Identity),
			Active:   applied.Has(snapshot.Identity),
		})
	}
	return outputs, nil
}

func (h *controlHandlers) records(ctx context.Context, raw []byte) (any, error) {
	return h.store.Records(), nil
}

func (h *controlHandlers) allow(ctx context.Context, raw []byte) (any, error) {
	id, err := decodeIdentity(raw)
	if err != nil {
		return nil, err
	}
	outcome, err := h.reconciler.Allow(ctx, id)
	if err != nil {
		return nil, err
	}
	return authorizeOutcome(outcome), nil
}

func (h *controlHandlers) deny(ctx context.Context, raw []byte) (any, error) {
	id, err := decodeIdentity(raw)
	if err != nil {
		return nil, err
	}
	outcome, err := h.reconciler.Deny(ctx, id)
	if err != nil {
		return nil, err
	}
	return authorizeOutcome(outcome), nil
}

func (h *controlHandlers) forget(ctx context.Context, raw []byte) (any, error) {
	id, err := decodeIdentity(raw)
	if err != nil {
		return nil, err
	}
	outcome, err := h.reconciler.Forget(ctx, id)
	if err != nil {
		return nil, err
	}
	return authorizeOutcome(outcome), nil
}

func (h *controlHandlers) history(ctx context.Context, raw []byte) (any, error) {
	if h.journal == nil {
		return nil, fmt.Errorf("journal disabled in volatile mode")
	}

	var req struct {
		Identity display.Identity `cbor:"identity"`
		Kind     string           `cbor:"kind"`
		Limit    int              `cbor:"limit"`

		// Since is unix seconds; zero means no lower bound.
		Since int64 `cbor:"since"`
	}
	if err := codec.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid history request: %w", err)
	}

	filter := journal.HistoryFilter{
		Identity: req.Identity,
		Kind:     journal.EntryKind(req.Kind),
		Limit:    req.Limit,
	}
	if req.Since > 0 {
		filter.Since = time.Unix(req.Since, 0)
	}

	entries, err := h.journal.History(ctx, filter)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// decodeIdentity extracts the identity field shared by allow, deny,
// and forget requests. Validation happens in the reconciler before
// the request is queued.
func decodeIdentity(raw []byte) (display.Identity, error) {
	var req struct {
		Identity display.Identity `cbor:"identity"`
	}
	if err := codec.Unmarshal(raw, &req); err != nil {
		return "", fmt.Errorf("invalid request: %w", err)
	}
	if req.Identity == "" {
		return "", fmt.Errorf("missing required field: identity")
	}
	return req.Identity, nil
}

// authorizeOutcome converts a reconciler outcome to its wire form.
func authorizeOutcome(outcome reconciler.Outcome) control.AuthorizeOutcome {
	result := control.AuthorizeOutcome{
		Record:   outcome.Record,
		Commands: outcome.Commands,
	}
	if outcome.Failsafe != nil {
		result.Failsafe = &control.FailsafeNotice{
			Identity:         outcome.Failsafe.Identity,
			PreviouslyActive: outcome.Failsafe.PreviouslyApplied,
		}
	}
	return result
}
