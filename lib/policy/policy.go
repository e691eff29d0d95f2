// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"time"

	"github.com/wayward-foundation/wayward/lib/display"
)

// Decision is the stored authorization state of a display identity.
// The zero value is Denied: an absent or half-initialized record can
// only ever fail closed.
type Decision int

const (
	// Denied: the display must not be active.
	Denied Decision = iota
	// Allowed: the display may be active while connected.
	Allowed
)

// String returns "denied" or "allowed".
func (d Decision) String() string {
	switch d {
	case Denied:
		return "denied"
	case Allowed:
		return "allowed"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// MarshalText encodes the decision as its string form, so store files
// and control payloads carry "allowed"/"denied" rather than bare
// integers that would silently change meaning if the enum moved.
func (d Decision) MarshalText() ([]byte, error) {
	switch d {
	case Denied, Allowed:
		return []byte(d.String()), nil
	default:
		return nil, fmt.Errorf("invalid decision %d", int(d))
	}
}

// UnmarshalText decodes "allowed" or "denied".
func (d *Decision) UnmarshalText(text []byte) error {
	switch string(text) {
	case "allowed":
		*d = Allowed
	case "denied":
		*d = Denied
	default:
		return fmt.Errorf("invalid decision %q (want \"allowed\" or \"denied\")", text)
	}
	return nil
}

// Record is the durable authorization state for one display identity.
type Record struct {
	Identity display.Identity `json:"identity"`
	Decision Decision         `json:"decision"`

	// Description is the last human-readable description observed for
	// this identity, kept so operators can tell records apart after
	// the display is unplugged.
	Description string `json:"description,omitempty"`

	// FirstSeen is when the identity was first observed or
	// pre-authorized. LastUpdated moves on every decision change.
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}

// CommandKind discriminates gateway commands.
type CommandKind int

const (
	// CommandEnable activates a display.
	CommandEnable CommandKind = iota
	// CommandDisable deactivates a display.
	CommandDisable
)

// String returns "enable" or "disable".
func (k CommandKind) String() string {
	switch k {
	case CommandEnable:
		return "enable"
	case CommandDisable:
		return "disable"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Command is one gateway action needed to move live state toward the
// desired enabled set.
type Command struct {
	Kind     CommandKind
	Identity display.Identity
}

// MutationReason records why the plan changes a store record.
type MutationReason int

const (
	// MutationAdmission: a never-seen identity gets its initial
	// Denied record.
	MutationAdmission MutationReason = iota
	// MutationFailsafe: the fail-safe promoted this identity to
	// Allowed to keep at least one display active.
	MutationFailsafe
)

// String returns "admission" or "fail-safe".
func (r MutationReason) String() string {
	switch r {
	case MutationAdmission:
		return "admission"
	case MutationFailsafe:
		return "fail-safe"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Mutation is one store change the plan requires. Mutations are
// applied in order, before any command is issued, so a crash between
// the two leaves a store that is stricter than the live state, never
// looser.
type Mutation struct {
	Identity display.Identity
	Decision Decision
	Reason   MutationReason

	// Description accompanies admission mutations so the new record
	// starts out identifiable.
	Description string
}

// Failsafe reports a fail-safe promotion so callers can surface it;
// the override must never be silent.
type Failsafe struct {
	// Identity is the display promoted to Allowed.
	Identity display.Identity

	// PreviouslyApplied is true when the identity was chosen because
	// it belonged to the previously applied enabled set, false when
	// the lexicographic rule picked it.
	PreviouslyApplied bool
}

// Input is everything Reconcile looks at.
type Input struct {
	// Snapshots is the current live output set from the gateway.
	Snapshots []display.Snapshot

	// Records is the authorization state, keyed by identity. Absent
	// identities are Denied.
	Records map[display.Identity]Record

	// LastApplied is the desired enabled set of the last completed
	// cycle, nil on the first cycle. Only the fail-safe reads it.
	LastApplied display.Set
}

// Plan is the outcome of one reconciliation: the target state plus the
// ordered actions that reach it.
type Plan struct {
	// Desired is the set of identities that should be enabled.
	Desired display.Set

	// Commands moves live state to Desired: enables first, then
	// disables, each group ordered by identity.
	Commands []Command

	// Mutations are the store changes, in application order.
	Mutations []Mutation

	// Failsafe is non-nil when the fail-safe promoted an identity
	// this cycle.
	Failsafe *Failsafe
}

// Empty reports whether the plan changes nothing: no commands and no
// store mutations. A reconciliation immediately following a fully
// applied plan yields an empty one.
func (p Plan) Empty() bool {
	return len(p.Commands) == 0 && len(p.Mutations) == 0
}
