// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package display defines the output model shared by the policy engine,
// the authorization store, and the compositor gateways: stable connector
// identities, point-in-time snapshots of connected outputs, and the
// change events a gateway emits when the output set moves.
package display

import (
	"fmt"
	"sort"
)

// MaxIdentityLength is the maximum accepted length for a connector
// name. Real connector names (eDP-1, DP-3, HDMI-A-1) are short; the
// cap exists so a misbehaving compositor cannot grow the store or the
// control protocol without bound.
const MaxIdentityLength = 128

// identityChars is the set of bytes permitted in a connector name.
// Checked via a lookup table for O(1) per-byte validation.
var identityChars [256]bool

func init() {
	for c := 'a'; c <= 'z'; c++ {
		identityChars[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		identityChars[c] = true
	}
	for c := '0'; c <= '9'; c++ {
		identityChars[c] = true
	}
	identityChars['-'] = true
	identityChars['_'] = true
	identityChars['.'] = true
	identityChars[':'] = true
}

// Identity is the stable name of a display as presented by the
// compositor: the connector name (eDP-1, DP-3, HDMI-A-1). It is the
// key for authorization records and the argument of enable/disable
// commands. Two physically different monitors plugged into the same
// connector share an identity; that is a deliberate simplification.
type Identity string

// String returns the connector name.
func (id Identity) String() string { return string(id) }

// MarshalText implements encoding.TextMarshaler so identities encode
// as plain strings in both CBOR and JSON.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, validating on the
// way in so a damaged store file or a hostile control request cannot
// smuggle in a malformed identity.
func (id *Identity) UnmarshalText(text []byte) error {
	candidate := Identity(text)
	if err := ValidateIdentity(candidate); err != nil {
		return err
	}
	*id = candidate
	return nil
}

// ValidateIdentity checks that a connector name is safe to use as a
// store key and a command argument.
//
// Rules enforced:
//   - Non-empty
//   - Only a-z, A-Z, 0-9, -, _, ., :
//   - First byte is a letter or digit
//   - Maximum 128 bytes
func ValidateIdentity(id Identity) error {
	if id == "" {
		return fmt.Errorf("identity is empty")
	}
	if len(id) > MaxIdentityLength {
		return fmt.Errorf("identity is %d bytes, maximum is %d", len(id), MaxIdentityLength)
	}
	for i := 0; i < len(id); i++ {
		if !identityChars[id[i]] {
			return fmt.Errorf("invalid byte %q at position %d (allowed: a-z, A-Z, 0-9, -, _, ., :)", id[i], i)
		}
	}
	first := id[0]
	switch {
	case first >= 'a' && first <= 'z':
	case first >= 'A' && first <= 'Z':
	case first >= '0' && first <= '9':
	default:
		return fmt.Errorf("identity must start with a letter or digit, got %q", first)
	}
	return nil
}

// Mode is a display mode: pixel dimensions plus refresh rate.
// RefreshMHz is in millihertz (59951 = 59.951 Hz), matching the
// precision compositors report.
type Mode struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	RefreshMHz int `json:"refresh_mhz"`
}

// Position is the output's placement in compositor layout coordinates.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Geometry is the informational layout state of an output. The policy
// engine never acts on it; it is carried so operators see what a
// display was doing when a decision was made.
type Geometry struct {
	Mode     Mode     `json:"mode"`
	Position Position `json:"position"`
	Scale    float64  `json:"scale,omitempty"`
}

// Snapshot is the point-in-time state of one connected output as
// reported by the compositor.
type Snapshot struct {
	Identity    Identity `json:"identity"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
	Geometry    Geometry `json:"geometry"`
}

// EventKind discriminates the variants of ChangeEvent.
type EventKind int

const (
	// EventAdded: a display appeared on a connector.
	EventAdded EventKind = iota
	// EventRemoved: a display disappeared from a connector.
	EventRemoved
	// EventModeChanged: an in-place change on a connected display:
	// geometry, scale, description, or enabled state.
	EventModeChanged
)

// String returns the kind name used in logs and journal rows.
func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventModeChanged:
		return "mode-changed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ChangeEvent is one observed change to the output set. For Added and
// ModeChanged the snapshot is the current state; for Removed it is the
// last state seen before the display disappeared.
type ChangeEvent struct {
	Kind     EventKind `json:"kind"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Set is an unordered set of identities with deterministic iteration
// via Sorted. The zero value is not usable; call NewSet.
type Set map[Identity]struct{}

// NewSet returns a set holding the given identities.
func NewSet(ids ...Identity) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s Set) Has(id Identity) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s Set) Add(id Identity) { s[id] = struct{}{} }

// Sorted returns the members in lexicographic order.
func (s Set) Sorted() []Identity {
	ids := make([]Identity, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Equal reports whether two sets hold the same identities.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if _, ok := other[id]; !ok {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// SortSnapshots orders snapshots by identity in place. Gateways sort
// before diffing and before returning query results so every consumer
// sees a deterministic order.
func SortSnapshots(snapshots []Snapshot) {
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Identity < snapshots[j].Identity
	})
}

// Diff compares two snapshot sets and returns the change events that
// transform prev into curr: removals first, then additions, then
// in-place changes, each group ordered by identity. Gateways whose
// compositor reports only "something changed" use this to synthesize
// typed events from consecutive full queries.
func Diff(prev, curr []Snapshot) []ChangeEvent {
	prevByID := make(map[Identity]Snapshot, len(prev))
	for _, s := range prev {
		prevByID[s.Identity] = s
	}
	currByID := make(map[Identity]Snapshot, len(curr))
	for _, s := range curr {
		currByID[s.Identity] = s
	}

	var removed, added, changed []ChangeEvent
	for _, s := range prev {
		if _, ok := currByID[s.Identity]; !ok {
			removed = append(removed, ChangeEvent{Kind: EventRemoved, Snapshot: s})
		}
	}
	for _, s := range curr {
		old, ok := prevByID[s.Identity]
		switch {
		case !ok:
			added = append(added, ChangeEvent{Kind: EventAdded, Snapshot: s})
		case old != s:
			changed = append(changed, ChangeEvent{Kind: EventModeChanged, Snapshot: s})
		}
	}

	sortEvents := func(events []ChangeEvent) {
		sort.Slice(events, func(i, j int) bool {
			return events[i].Snapshot.Identity < events[j].Snapshot.Identity
		})
	}
	sortEvents(removed)
	sortEvents(added)
	sortEvents(changed)

	out := make([]ChangeEvent, 0, len(removed)+len(added)+len(changed))
	out = append(out, removed...)
	out = append(out, added...)
	out = append(out, changed...)
	return out
}
