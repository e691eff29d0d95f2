// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal keeps the append-only record of what the daemon
// did and why: every reconciliation cycle, each admission, operator
// decision, gateway command, fail-safe promotion, and failure along
// the way. `wayward history` reads it.
//
// The journal is an audit trail, not state. Reconciliation never
// reads it back, and a lost journal costs visibility, not
// correctness. Entries are written once per cycle in a single
// transaction and expire after a retention window.
package journal
