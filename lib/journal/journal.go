// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/wayward-foundation/wayward/lib/clock"
	"github.com/wayward-foundation/wayward/lib/display"
	"github.com/wayward-foundation/wayward/lib/sqlitepool"
)

// EntryKind classifies what a journal entry records.
type EntryKind string

const (
	// EntryAdmission records a newly seen display being admitted to
	// the store as Denied.
	EntryAdmission EntryKind = "admission"

	// EntryDecision records an operator-initiated decision change
	// (allow, deny, forget).
	EntryDecision EntryKind = "decision"

	// EntryCommand records a gateway command that succeeded.
	EntryCommand EntryKind = "command"

	// EntryFailsafe records a fail-safe promotion overriding stored
	// policy.
	EntryFailsafe EntryKind = "fail-safe"

	// EntryCommandError records a gateway command that exhausted its
	// retries.
	EntryCommandError EntryKind = "command-error"

	// EntryStoreError records a persistence failure; decisions were
	// held in memory only for this cycle.
	EntryStoreError EntryKind = "store-error"
)

// Cycle summarizes one reconciliation cycle.
type Cycle struct {
	// ID is the cycle's UUID, shared by its log lines and entries.
	ID string `json:"id"`

	StartedAt time.Time `json:"started_at"`

	// Trigger names what woke the reconciler: "startup", "event",
	// "operator", "resync", "reconnect", or "store-reload".
	Trigger string `json:"trigger"`

	// Live is the number of connected displays the cycle saw.
	Live int `json:"live"`

	// Desired is the size of the enabled set the cycle converged on.
	Desired int `json:"desired"`

	// Failsafe is true when the cycle promoted a display to keep the
	// seat usable.
	Failsafe bool `json:"failsafe"`
}

// Entry is one recorded action within a cycle.
type Entry struct {
	CycleID  string           `json:"cycle_id"`
	At       time.Time        `json:"at"`
	Kind     EntryKind        `json:"kind"`
	Identity display.Identity `json:"identity,omitempty"`

	// Detail is a short human-readable elaboration: the command
	// string, the failure message, the decision's origin.
	Detail string `json:"detail,omitempty"`
}

// HistoryFilter narrows a History query. Zero values mean no
// constraint.
type HistoryFilter struct {
	Identity display.Identity
	Kind     EntryKind
	Since    time.Time
	Limit    int
}

// Config holds the parameters for opening a journal.
type Config struct {
	// Path is the SQLite database file. The parent directory must
	// exist.
	Path string

	// Retention is how long entries are kept. Zero means 90 days.
	Retention time.Duration

	// Clock provides timestamps and the retention ticker. Required.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// DefaultRetention is how long journal rows are kept when Config
// leaves Retention zero.
const DefaultRetention = 90 * 24 * time.Hour

// retentionInterval is how often the retention loop sweeps.
const retentionInterval = 6 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
	id         TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	trigger    TEXT NOT NULL,
	live       INTEGER NOT NULL,
	desired    INTEGER NOT NULL,
	failsafe   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at);

CREATE TABLE IF NOT EXISTS entries (
	cycle_id TEXT NOT NULL,
	seq      INTEGER NOT NULL,
	at       INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	identity TEXT NOT NULL DEFAULT '',
	detail   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (cycle_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_entries_at ON entries(at);
CREATE INDEX IF NOT EXISTS idx_entries_identity ON entries(identity, at);
`

// Journal is the SQLite-backed decision journal.
type Journal struct {
	pool      *sqlitepool.Pool
	clock     clock.Clock
	logger    *slog.Logger
	retention time.Duration
}

// Open opens (creating if needed) the journal database.
func Open(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal: Path is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("journal: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("journal: Logger is required")
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	return &Journal{
		pool:      pool,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("component", "journal"),
		retention: retention,
	}, nil
}

// Close closes the underlying pool.
func (j *Journal) Close() error {
	return j.pool.Close()
}

// RecordCycle writes a cycle summary and its entries in one
// transaction. Entry sequence numbers follow slice order.
func (j *Journal) RecordCycle(ctx context.Context, cycle Cycle, entries []Entry) (err error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("journal: record cycle: %w", err)
	}
	defer j.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("journal: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO cycles (id, started_at, trigger, live, desired, failsafe)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				cycle.ID,
				cycle.StartedAt.UnixNano(),
				cycle.Trigger,
				cycle.Live,
				cycle.Desired,
				boolToInt(cycle.Failsafe),
			},
		})
	if err != nil {
		return fmt.Errorf("journal: insert cycle %s: %w", cycle.ID, err)
	}

	for seq, entry := range entries {
		err = sqlitex.Execute(conn,
			`INSERT INTO entries (cycle_id, seq, at, kind, identity, detail)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					cycle.ID,
					seq,
					entry.At.UnixNano(),
					string(entry.Kind),
					string(entry.Identity),
					entry.Detail,
				},
			})
		if err != nil {
			return fmt.Errorf("journal: insert entry %d of cycle %s: %w", seq, cycle.ID, err)
		}
	}

	return nil
}

// History returns entries matching the filter, newest first. Entries
// within one cycle keep their recorded order.
func (j *Journal) History(ctx context.Context, filter HistoryFilter) ([]Entry, error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: history: %w", err)
	}
	defer j.pool.Put(conn)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var conditions []string
	var args []any
	if filter.Identity != "" {
		conditions = append(conditions, "identity = ?")
		args = append(args, string(filter.Identity))
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "at >= ?")
		args = append(args, filter.Since.UnixNano())
	}

	query := "SELECT cycle_id, at, kind, identity, detail FROM entries"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY at DESC, seq ASC LIMIT ?"
	args = append(args, limit)

	var entries []Entry
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entries = append(entries, Entry{
				CycleID:  stmt.ColumnText(0),
				At:       time.Unix(0, stmt.ColumnInt64(1)),
				Kind:     EntryKind(stmt.ColumnText(2)),
				Identity: display.Identity(stmt.ColumnText(3)),
				Detail:   stmt.ColumnText(4),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: query entries: %w", err)
	}
	return entries, nil
}

// Cycles returns the most recent cycle summaries, newest first.
func (j *Journal) Cycles(ctx context.Context, limit int) ([]Cycle, error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: cycles: %w", err)
	}
	defer j.pool.Put(conn)

	if limit <= 0 {
		limit = 50
	}

	var cycles []Cycle
	err = sqlitex.Execute(conn,
		`SELECT id, started_at, trigger, live, desired, failsafe
		 FROM cycles ORDER BY started_at DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				cycles = append(cycles, Cycle{
					ID:        stmt.ColumnText(0),
					StartedAt: time.Unix(0, stmt.ColumnInt64(1)),
					Trigger:   stmt.ColumnText(2),
					Live:      stmt.ColumnInt(3),
					Desired:   stmt.ColumnInt(4),
					Failsafe:  stmt.ColumnInt(5) != 0,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("journal: query cycles: %w", err)
	}
	return cycles, nil
}

// RunRetention deletes cycles and entries older than the retention
// window. Returns the number of entries removed.
func (j *Journal) RunRetention(ctx context.Context) (int, error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("journal: retention: %w", err)
	}
	defer j.pool.Put(conn)

	cutoff := j.clock.Now().Add(-j.retention).UnixNano()

	err = sqlitex.Execute(conn, "DELETE FROM entries WHERE at < ?", &sqlitex.ExecOptions{
		Args: []any{cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("journal: deleting expired entries: %w", err)
	}
	removed := conn.Changes()

	err = sqlitex.Execute(conn, "DELETE FROM cycles WHERE started_at < ?", &sqlitex.ExecOptions{
		Args: []any{cutoff},
	})
	if err != nil {
		return removed, fmt.Errorf("journal: deleting expired cycles: %w", err)
	}

	return removed, nil
}

// RetentionLoop sweeps expired rows on a ticker until ctx is
// cancelled. Run it on its own goroutine.
func (j *Journal) RetentionLoop(ctx context.Context) {
	ticker := j.clock.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := j.RunRetention(ctx)
			if err != nil {
				if ctx.Err() == nil {
					j.logger.Warn("retention sweep failed", "error", err)
				}
				continue
			}
			if removed > 0 {
				j.logger.Info("retention sweep", "entries_removed", removed)
			}
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
