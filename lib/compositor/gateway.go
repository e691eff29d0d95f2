// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package compositor talks to the running Wayland compositor: querying
// connected outputs, enabling and disabling them, and subscribing to
// output-change notifications.
//
// Two gateways are implemented, sway (the i3 IPC protocol) and
// Hyprland (its hyprctl socket pair). Both compositors report "an
// output changed" with little or no detail, so each gateway re-queries
// the full output set on every notification and synthesizes typed
// change events by diffing against the previous query. Consumers see
// one uniform stream regardless of compositor.
//
// All wire formats here are JSON: these are external protocols owned
// by the compositors.
package compositor

import (
	"context"
	"fmt"

	"github.com/wayward-foundation/wayward/lib/display"
)

// Gateway is the compositor surface the reconciler depends on.
type Gateway interface {
	// Name identifies the gateway in logs and status output.
	Name() string

	// Outputs returns a snapshot of every connected output, sorted by
	// identity.
	Outputs(ctx context.Context) ([]display.Snapshot, error)

	// Enable activates the display with the given identity.
	Enable(ctx context.Context, id display.Identity) error

	// Disable deactivates the display with the given identity.
	Disable(ctx context.Context, id display.Identity) error

	// Subscribe opens an event stream. The returned channel delivers
	// synthesized change events until the compositor connection is
	// lost or ctx is canceled, then closes. Each call establishes a
	// fresh subscription; callers reconnect by calling again.
	Subscribe(ctx context.Context) (<-chan display.ChangeEvent, error)

	// Close releases any long-lived connections. Commands issued
	// after Close fail.
	Close() error
}

// RejectedError reports that the compositor received a command and
// refused it, as opposed to the connection failing. Retrying the same
// command will not help; the next reconciliation works from fresh
// state instead.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("compositor rejected command: %s", e.Reason)
}

// eventBuffer is the channel capacity for subscription streams. The
// reconciler drains promptly; the buffer only smooths bursts from
// rapid hotplug sequences.
const eventBuffer = 16

// emit delivers synthesized events, honoring cancellation so a
// subscription reader never blocks forever on a consumer that went
// away.
func emit(ctx context.Context, ch chan<- display.ChangeEvent, events []display.ChangeEvent) bool {
	for _, event := range events {
		select {
		case ch <- event:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
