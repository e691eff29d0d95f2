// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/wayward-foundation/wayward/lib/clock"
	"github.com/wayward-foundation/wayward/lib/display"
)

var journalEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestJournal(t *testing.T, clk clock.Clock) *Journal {
	t.Helper()
	j, err := Open(Config{
		Path:   filepath.Join(t.TempDir(), "journal.db"),
		Clock:  clk,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return j
}

func TestRecordCycleAndHistory(t *testing.T) {
	clk := clock.Fake(journalEpoch)
	j := openTestJournal(t, clk)
	ctx := context.Background()

	cycle := Cycle{
		ID:        "11111111-1111-1111-1111-111111111111",
		StartedAt: journalEpoch,
		Trigger:   "startup",
		Live:      2,
		Desired:   1,
	}
	entries := []Entry{
		{CycleID: cycle.ID, At: journalEpoch, Kind: EntryAdmission, Identity: "DP-1", Detail: "Dell Inc. U2720Q"},
		{CycleID: cycle.ID, At: journalEpoch, Kind: EntryCommand, Identity: "eDP-1", Detail: "enable eDP-1"},
	}
	if err := j.RecordCycle(ctx, cycle, entries); err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}

	history, err := j.History(ctx, HistoryFilter{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d entries, want 2", len(history))
	}
	// Same timestamp, so recorded order decides.
	if history[0].Kind != EntryAdmission || history[0].Identity != "DP-1" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[0].Detail != "Dell Inc. U2720Q" {
		t.Errorf("detail = %q", history[0].Detail)
	}
	if history[1].Kind != EntryCommand {
		t.Errorf("history[1] = %+v", history[1])
	}
	if !history[0].At.Equal(journalEpoch) {
		t.Errorf("at = %v, want %v", history[0].At, journalEpoch)
	}
}

func TestHistoryFilters(t *testing.T) {
	clk := clock.Fake(journalEpoch)
	j := openTestJournal(t, clk)
	ctx := context.Background()

	times := []time.Time{
		journalEpoch,
		journalEpoch.Add(1 * time.Hour),
		journalEpoch.Add(2 * time.Hour),
	}
	kinds := []EntryKind{EntryAdmission, EntryDecision, EntryFailsafe}
	identities := []string{"DP-1", "HDMI-A-1", "DP-1"}
	for i := range times {
		cycle := Cycle{
			ID:        string(rune('a'+i)) + "0000000-0000-0000-0000-000000000000",
			StartedAt: times[i],
			Trigger:   "event",
			Live:      1,
			Desired:   1,
		}
		entry := Entry{
			CycleID:  cycle.ID,
			At:       times[i],
			Kind:     kinds[i],
			Identity: display.Identity(identities[i]),
		}
		if err := j.RecordCycle(ctx, cycle, []Entry{entry}); err != nil {
			t.Fatalf("RecordCycle %d: %v", i, err)
		}
	}

	byIdentity, err := j.History(ctx, HistoryFilter{Identity: "DP-1"})
	if err != nil {
		t.Fatalf("History by identity: %v", err)
	}
	if len(byIdentity) != 2 {
		t.Fatalf("identity filter: got %d entries, want 2", len(byIdentity))
	}
	// Newest first.
	if byIdentity[0].Kind != EntryFailsafe || byIdentity[1].Kind != EntryAdmission {
		t.Errorf("identity filter order = %v, %v", byIdentity[0].Kind, byIdentity[1].Kind)
	}

	byKind, err := j.History(ctx, HistoryFilter{Kind: EntryDecision})
	if err != nil {
		t.Fatalf("History by kind: %v", err)
	}
	if len(byKind) != 1 || byKind[0].Identity != "HDMI-A-1" {
		t.Errorf("kind filter = %+v", byKind)
	}

	since, err := j.History(ctx, HistoryFilter{Since: journalEpoch.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("History since: %v", err)
	}
	if len(since) != 1 || since[0].Kind != EntryFailsafe {
		t.Errorf("since filter = %+v", since)
	}

	limited, err := j.History(ctx, HistoryFilter{Limit: 2})
	if err != nil {
		t.Fatalf("History limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit filter: got %d entries, want 2", len(limited))
	}
}

func TestCyclesNewestFirst(t *testing.T) {
	clk := clock.Fake(journalEpoch)
	j := openTestJournal(t, clk)
	ctx := context.Background()

	for i := range 3 {
		cycle := Cycle{
			ID:        string(rune('a'+i)) + "1111111-0000-0000-0000-000000000000",
			StartedAt: journalEpoch.Add(time.Duration(i) * time.Minute),
			Trigger:   "resync",
			Live:      i,
			Desired:   i,
			Failsafe:  i == 2,
		}
		if err := j.RecordCycle(ctx, cycle, nil); err != nil {
			t.Fatalf("RecordCycle %d: %v", i, err)
		}
	}

	cycles, err := j.Cycles(ctx, 0)
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(cycles) != 3 {
		t.Fatalf("got %d cycles, want 3", len(cycles))
	}
	if !cycles[0].Failsafe || cycles[0].Live != 2 {
		t.Errorf("cycles[0] = %+v, want the newest (failsafe) cycle", cycles[0])
	}
	if cycles[2].Trigger != "resync" || cycles[2].Live != 0 {
		t.Errorf("cycles[2] = %+v", cycles[2])
	}
}

func TestRetentionSweep(t *testing.T) {
	clk := clock.Fake(journalEpoch)
	j := openTestJournal(t, clk)
	ctx := context.Background()

	old := Cycle{
		ID:        "22222222-0000-0000-0000-000000000000",
		StartedAt: journalEpoch.Add(-DefaultRetention - 24*time.Hour),
		Trigger:   "event",
	}
	oldEntry := Entry{CycleID: old.ID, At: old.StartedAt, Kind: EntryCommand, Identity: "DP-1"}
	if err := j.RecordCycle(ctx, old, []Entry{oldEntry}); err != nil {
		t.Fatalf("RecordCycle old: %v", err)
	}

	fresh := Cycle{
		ID:        "33333333-0000-0000-0000-000000000000",
		StartedAt: journalEpoch,
		Trigger:   "event",
	}
	freshEntry := Entry{CycleID: fresh.ID, At: journalEpoch, Kind: EntryCommand, Identity: "eDP-1"}
	if err := j.RecordCycle(ctx, fresh, []Entry{freshEntry}); err != nil {
		t.Fatalf("RecordCycle fresh: %v", err)
	}

	removed, err := j.RunRetention(ctx)
	if err != nil {
		t.Fatalf("RunRetention: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	history, err := j.History(ctx, HistoryFilter{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Identity != "eDP-1" {
		t.Errorf("history after retention = %+v", history)
	}

	cycles, err := j.Cycles(ctx, 0)
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(cycles) != 1 || cycles[0].ID != fresh.ID {
		t.Errorf("cycles after retention = %+v", cycles)
	}
}

func TestConfigValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Fake(journalEpoch)

	if _, err := Open(Config{Clock: clk, Logger: logger}); err == nil {
		t.Error("Open accepted an empty path")
	}
	if _, err := Open(Config{Path: "x.db", Logger: logger}); err == nil {
		t.Error("Open accepted a nil clock")
	}
	if _, err := Open(Config{Path: "x.db", Clock: clk}); err == nil {
		t.Error("Open accepted a nil logger")
	}
}
