// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy implements the display admission rules: which
// connected outputs may be active, expressed as a pure function from
// observed state to a plan.
//
// The rules are deliberately small:
//
//   - A display with no authorization record is admitted as Denied the
//     first time it is seen (default deny). Plugging in a monitor never
//     lights it up by itself.
//   - The desired enabled set is exactly the connected displays whose
//     record says Allowed.
//   - If displays are connected but the desired set would be empty, the
//     fail-safe promotes exactly one display to Allowed so the machine
//     is never left with zero active outputs. The choice is
//     deterministic: a live display that was part of the previously
//     applied enabled set wins, lexicographically first among those;
//     otherwise the lexicographically first live identity.
//
// Reconcile never performs I/O and never mutates its input. Callers
// apply the returned plan: store mutations first, then commands. The
// command list is ordered with enables before disables so that
// applying it never passes through a state with zero active displays.
package policy
