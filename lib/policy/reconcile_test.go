// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"testing"
	"time"

	"github.com/wayward-foundation/wayward/lib/display"
)

func liveSnapshot(id display.Identity, enabled bool) display.Snapshot {
	return display.Snapshot{
		Identity: id,
		Enabled:  enabled,
		Geometry: display.Geometry{Mode: display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60000}},
	}
}

func allowedRecord(id display.Identity) Record {
	return Record{Identity: id, Decision: Allowed, FirstSeen: time.Unix(1000, 0), LastUpdated: time.Unix(1000, 0)}
}

func deniedRecord(id display.Identity) Record {
	return Record{Identity: id, Decision: Denied, FirstSeen: time.Unix(1000, 0), LastUpdated: time.Unix(1000, 0)}
}

// applyPlan simulates perfect application of a plan: mutations land in
// the record map and every live display's enabled state matches the
// desired set.
func applyPlan(records map[display.Identity]Record, live []display.Snapshot, plan Plan) (map[display.Identity]Record, []display.Snapshot) {
	next := make(map[display.Identity]Record, len(records))
	for id, record := range records {
		next[id] = record
	}
	for _, mutation := range plan.Mutations {
		record := next[mutation.Identity]
		record.Identity = mutation.Identity
		record.Decision = mutation.Decision
		next[mutation.Identity] = record
	}
	applied := make([]display.Snapshot, len(live))
	for i, snapshot := range live {
		snapshot.Enabled = plan.Desired.Has(snapshot.Identity)
		applied[i] = snapshot
	}
	return next, applied
}

func TestDefaultDenyAdmission(t *testing.T) {
	live := []display.Snapshot{liveSnapshot("DP-1", false)}
	plan := Reconcile(Input{Snapshots: live, Records: nil})

	if plan.Desired.Has("DP-1") {
		t.Error("never-seen display ended up in the desired set")
	}
	if len(plan.Mutations) != 1 {
		t.Fatalf("got %d mutations, want 1 admission", len(plan.Mutations))
	}
	m := plan.Mutations[0]
	if m.Identity != "DP-1" || m.Decision != Denied || m.Reason != MutationAdmission {
		t.Errorf("admission mutation = %+v, want DP-1 denied admission", m)
	}
}

func TestNewlyPluggedDisplayStaysDark(t *testing.T) {
	// One authorized internal panel plus a just-plugged external
	// display that the compositor left disabled: the plan must not
	// touch either output.
	records := map[display.Identity]Record{"eDP-1": allowedRecord("eDP-1")}
	live := []display.Snapshot{
		liveSnapshot("eDP-1", true),
		liveSnapshot("DP-1", false),
	}

	plan := Reconcile(Input{Snapshots: live, Records: records, LastApplied: display.NewSet("eDP-1")})

	if len(plan.Commands) != 0 {
		t.Errorf("commands = %v, want none", plan.Commands)
	}
	if !plan.Desired.Equal(display.NewSet("eDP-1")) {
		t.Errorf("desired = %v, want {eDP-1}", plan.Desired.Sorted())
	}
	if len(plan.Mutations) != 1 || plan.Mutations[0].Reason != MutationAdmission {
		t.Fatalf("mutations = %+v, want a single admission for DP-1", plan.Mutations)
	}
	if plan.Failsafe != nil {
		t.Errorf("fail-safe fired with an allowed display live: %+v", plan.Failsafe)
	}
}

func TestFailsafeTieBreakIsDeterministic(t *testing.T) {
	records := map[display.Identity]Record{
		"DP-1":     deniedRecord("DP-1"),
		"HDMI-A-1": deniedRecord("HDMI-A-1"),
		"eDP-1":    deniedRecord("eDP-1"),
	}
	live := []display.Snapshot{
		liveSnapshot("eDP-1", true),
		liveSnapshot("HDMI-A-1", false),
		liveSnapshot("DP-1", false),
	}

	for i := 0; i < 5; i++ {
		plan := Reconcile(Input{Snapshots: live, Records: records})
		if plan.Failsafe == nil {
			t.Fatal("fail-safe did not fire with every display denied")
		}
		if plan.Failsafe.Identity != "DP-1" {
			t.Fatalf("run %d promoted %q, want DP-1 (lexicographic tie-break)", i, plan.Failsafe.Identity)
		}
		if plan.Failsafe.PreviouslyApplied {
			t.Error("PreviouslyApplied = true with no previously applied set")
		}
	}
}

func TestFailsafePrefersPreviouslyApplied(t *testing.T) {
	records := map[display.Identity]Record{
		"DP-1":  deniedRecord("DP-1"),
		"eDP-1": deniedRecord("eDP-1"),
	}
	live := []display.Snapshot{
		liveSnapshot("DP-1", false),
		liveSnapshot("eDP-1", true),
	}

	plan := Reconcile(Input{
		Snapshots:   live,
		Records:     records,
		LastApplied: display.NewSet("eDP-1"),
	})

	if plan.Failsafe == nil {
		t.Fatal("fail-safe did not fire")
	}
	if plan.Failsafe.Identity != "eDP-1" {
		t.Errorf("promoted %q, want eDP-1 (member of the previously applied set)", plan.Failsafe.Identity)
	}
	if !plan.Failsafe.PreviouslyApplied {
		t.Error("PreviouslyApplied = false, want true")
	}
}

func TestRevokingOnlyLiveDisplayRepromotes(t *testing.T) {
	// The operator just revoked the only connected display: its
	// record now says Denied, the panel is still lit, and it was the
	// previously applied set. The fail-safe must promote it back and
	// never emit a disable.
	records := map[display.Identity]Record{"eDP-1": deniedRecord("eDP-1")}
	live := []display.Snapshot{liveSnapshot("eDP-1", true)}

	plan := Reconcile(Input{
		Snapshots:   live,
		Records:     records,
		LastApplied: display.NewSet("eDP-1"),
	})

	if plan.Failsafe == nil {
		t.Fatal("fail-safe did not fire")
	}
	if plan.Failsafe.Identity != "eDP-1" {
		t.Errorf("promoted %q, want eDP-1", plan.Failsafe.Identity)
	}
	if len(plan.Commands) != 0 {
		t.Errorf("commands = %v, want none (display already enabled)", plan.Commands)
	}
	var promoted bool
	for _, m := range plan.Mutations {
		if m.Identity == "eDP-1" && m.Decision == Allowed && m.Reason == MutationFailsafe {
			promoted = true
		}
	}
	if !promoted {
		t.Errorf("mutations = %+v, want a fail-safe promotion of eDP-1", plan.Mutations)
	}
}

func TestEnablesOrderedBeforeDisables(t *testing.T) {
	// Swapping the active display must light the new one before
	// darkening the old one.
	records := map[display.Identity]Record{
		"DP-2":  allowedRecord("DP-2"),
		"eDP-1": deniedRecord("eDP-1"),
	}
	live := []display.Snapshot{
		liveSnapshot("eDP-1", true),
		liveSnapshot("DP-2", false),
	}

	plan := Reconcile(Input{Snapshots: live, Records: records})

	if len(plan.Commands) != 2 {
		t.Fatalf("commands = %v, want enable then disable", plan.Commands)
	}
	if plan.Commands[0].Kind != CommandEnable || plan.Commands[0].Identity != "DP-2" {
		t.Errorf("commands[0] = %+v, want enable DP-2", plan.Commands[0])
	}
	if plan.Commands[1].Kind != CommandDisable || plan.Commands[1].Identity != "eDP-1" {
		t.Errorf("commands[1] = %+v, want disable eDP-1", plan.Commands[1])
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	records := map[display.Identity]Record{
		"eDP-1": allowedRecord("eDP-1"),
		"DP-3":  deniedRecord("DP-3"),
	}
	live := []display.Snapshot{
		liveSnapshot("eDP-1", false),
		liveSnapshot("DP-3", true),
		liveSnapshot("HDMI-A-1", false),
	}

	first := Reconcile(Input{Snapshots: live, Records: records})
	if first.Empty() {
		t.Fatal("first plan is empty; the fixture should require work")
	}

	records, live = applyPlan(records, live, first)
	second := Reconcile(Input{Snapshots: live, Records: records, LastApplied: first.Desired})
	if !second.Empty() {
		t.Errorf("second plan not empty: commands %v mutations %+v", second.Commands, second.Mutations)
	}
}

func TestNoLiveDisplays(t *testing.T) {
	records := map[display.Identity]Record{"eDP-1": allowedRecord("eDP-1")}
	plan := Reconcile(Input{Snapshots: nil, Records: records})

	if !plan.Empty() {
		t.Errorf("plan for zero live displays not empty: %+v", plan)
	}
	if plan.Failsafe != nil {
		t.Error("fail-safe fired with nothing connected")
	}
}

func TestGeometryChangeAloneIsNoop(t *testing.T) {
	records := map[display.Identity]Record{"eDP-1": allowedRecord("eDP-1")}
	snapshot := liveSnapshot("eDP-1", true)
	snapshot.Geometry.Mode.Width = 2560

	plan := Reconcile(Input{Snapshots: []display.Snapshot{snapshot}, Records: records, LastApplied: display.NewSet("eDP-1")})
	if !plan.Empty() {
		t.Errorf("geometry-only change produced work: %+v", plan)
	}
}

func TestAbsentRecordedDisplaysUntouched(t *testing.T) {
	// Records persist for unplugged displays; the plan must not
	// reference identities that are not live.
	records := map[display.Identity]Record{
		"DP-9":  allowedRecord("DP-9"),
		"eDP-1": allowedRecord("eDP-1"),
	}
	live := []display.Snapshot{liveSnapshot("eDP-1", true)}

	plan := Reconcile(Input{Snapshots: live, Records: records, LastApplied: display.NewSet("eDP-1")})

	if plan.Desired.Has("DP-9") {
		t.Error("desired set contains an unplugged identity")
	}
	for _, c := range plan.Commands {
		if c.Identity == "DP-9" {
			t.Errorf("command issued for unplugged identity: %+v", c)
		}
	}
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	records := map[display.Identity]Record{"eDP-1": deniedRecord("eDP-1")}
	live := []display.Snapshot{liveSnapshot("eDP-1", true), liveSnapshot("DP-1", false)}
	lastApplied := display.NewSet("eDP-1")

	Reconcile(Input{Snapshots: live, Records: records, LastApplied: lastApplied})

	if records["eDP-1"].Decision != Denied {
		t.Error("input record map was mutated")
	}
	if live[0].Identity != "eDP-1" || live[1].Identity != "DP-1" {
		t.Error("input snapshot order was mutated")
	}
	if !lastApplied.Equal(display.NewSet("eDP-1")) {
		t.Error("input last-applied set was mutated")
	}
}
