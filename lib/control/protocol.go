// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wayward-foundation/wayward/lib/codec"
	"github.com/wayward-foundation/wayward/lib/display"
	"github.com/wayward-foundation/wayward/lib/policy"
)

// Action names understood by the daemon.
const (
	ActionStatus  = "status"
	ActionOutputs = "outputs"
	ActionRecords = "records"
	ActionAllow   = "allow"
	ActionDeny    = "deny"
	ActionForget  = "forget"
	ActionHistory = "history"
)

// Response is the wire-format envelope for all control responses.
// Handlers return a result value (or nil) and an error; the server
// wraps these into a Response before encoding.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Status is the daemon-level view returned by the status action.
type Status struct {
	Version          string    `json:"version"`
	Compositor       string    `json:"compositor"`
	GatewayConnected bool      `json:"gateway_connected"`
	StartedAt        time.Time `json:"started_at"`

	// StorePath is empty when the daemon runs a volatile store.
	StorePath string `json:"store_path,omitempty"`

	// StoreDegraded carries the most recent store failure when
	// decisions are being held in memory only; empty when healthy.
	StoreDegraded string `json:"store_degraded,omitempty"`

	Cycles      uint64    `json:"cycles"`
	LastCycleAt time.Time `json:"last_cycle_at"`

	LiveDisplays   int `json:"live_displays"`
	ActiveDisplays int `json:"active_displays"`
	RecordCount    int `json:"record_count"`
}

// OutputStatus pairs a connected display with its authorization state.
type OutputStatus struct {
	display.Snapshot
	Decision policy.Decision `json:"decision"`

	// Active reports whether the display is in the applied enabled
	// set. It can disagree with Decision right after a fail-safe
	// promotion or while a command retry is pending.
	Active bool `json:"active"`
}

// FailsafeNotice reports a fail-safe promotion that overrode stored
// policy during a cycle. Overrides are never silent.
type FailsafeNotice struct {
	Identity display.Identity `json:"identity"`

	// PreviouslyActive is true when the display was chosen because it
	// was already part of the applied enabled set, false when the
	// deterministic name ordering picked it.
	PreviouslyActive bool `json:"previously_active"`
}

// AuthorizeOutcome reports what the reconciliation cycle triggered by
// an allow, deny, or forget actually did.
type AuthorizeOutcome struct {
	// Record is the stored record after the cycle. Absent for forget
	// of a disconnected display, where no record remains.
	Record *policy.Record `json:"record,omitempty"`

	// Commands lists the gateway commands the cycle issued, in order,
	// as "enable DP-1" strings.
	Commands []string `json:"commands,omitempty"`

	// Failsafe is set when the cycle promoted a display to keep the
	// seat usable, including when that promotion reversed the very
	// change this request asked for.
	Failsafe *FailsafeNotice `json:"failsafe,omitempty"`
}

// DefaultSocketPath returns the control socket location for this
// user's session.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "wayward", "control.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("wayward-%d", os.Getuid()), "control.sock")
}
