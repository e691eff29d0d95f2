// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"github.com/wayward-foundation/wayward/lib/display"
)

// Reconcile computes the plan for one cycle from the live output set
// and the authorization records. It is a pure function: no I/O, no
// mutation of its input, identical output for identical input.
func Reconcile(in Input) Plan {
	live := make([]display.Snapshot, len(in.Snapshots))
	copy(live, in.Snapshots)
	display.SortSnapshots(live)

	desired := display.NewSet()
	var mutations []Mutation

	// Admission and selection. Unknown identities get an initial
	// Denied record; known identities contribute to the desired set
	// exactly when their record says Allowed.
	for _, snapshot := range live {
		record, known := in.Records[snapshot.Identity]
		if !known {
			mutations = append(mutations, Mutation{
				Identity:    snapshot.Identity,
				Decision:    Denied,
				Reason:      MutationAdmission,
				Description: snapshot.Description,
			})
			continue
		}
		if record.Decision == Allowed {
			desired.Add(snapshot.Identity)
		}
	}

	// Fail-safe: displays are connected but none may be active. Keep
	// exactly one, chosen deterministically, and record the promotion
	// so it survives restarts.
	var failsafe *Failsafe
	if len(live) > 0 && len(desired) == 0 {
		identity, previouslyApplied := failsafeCandidate(live, in.LastApplied)
		desired.Add(identity)
		mutations = append(mutations, Mutation{
			Identity: identity,
			Decision: Allowed,
			Reason:   MutationFailsafe,
		})
		failsafe = &Failsafe{Identity: identity, PreviouslyApplied: previouslyApplied}
	}

	// Command diff against live enabled state. Enables come first so
	// the transition never passes through zero active displays.
	var enables, disables []Command
	for _, snapshot := range live {
		want := desired.Has(snapshot.Identity)
		switch {
		case want && !snapshot.Enabled:
			enables = append(enables, Command{Kind: CommandEnable, Identity: snapshot.Identity})
		case !want && snapshot.Enabled:
			disables = append(disables, Command{Kind: CommandDisable, Identity: snapshot.Identity})
		}
	}

	commands := make([]Command, 0, len(enables)+len(disables))
	commands = append(commands, enables...)
	commands = append(commands, disables...)

	return Plan{
		Desired:   desired,
		Commands:  commands,
		Mutations: mutations,
		Failsafe:  failsafe,
	}
}

// failsafeCandidate picks the display the fail-safe keeps active. A
// live identity that was in the previously applied enabled set is
// preferred: after a revocation it is the display the user is most
// likely looking at. Among several such, and otherwise among all live
// identities, the lexicographically first wins. live must be sorted
// by identity and non-empty.
func failsafeCandidate(live []display.Snapshot, lastApplied display.Set) (display.Identity, bool) {
	for _, snapshot := range live {
		if lastApplied.Has(snapshot.Identity) {
			return snapshot.Identity, true
		}
	}
	return live[0].Identity, false
}
