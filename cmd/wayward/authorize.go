// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/wayward-foundation/wayward/lib/control"
	"github.com/wayward-foundation/wayward/lib/display"
)

// authorizeParams holds the parameters shared by allow, deny, and
// forget.
type authorizeParams struct {
	socketConfig
	OutputJSON bool
}

func allowCommand() *Command {
	return authorizeCommand(
		control.ActionAllow,
		"Allow a display to be active",
		`Mark a display as allowed. The decision is stored durably and the
daemon applies it immediately: if the display is connected, it is
enabled in this cycle.

The identity is the connector name as shown by "wayward outputs",
e.g. eDP-1, DP-3, HDMI-A-1.`,
		[]Example{
			{
				Description: "Authorize the external monitor on DP-3",
				Command:     "wayward allow DP-3",
			},
		},
	)
}

func denyCommand() *Command {
	return authorizeCommand(
		control.ActionDeny,
		"Deny a display",
		`Mark a display as denied. The decision is stored durably and the
daemon applies it immediately: if the display is active, it is
disabled in this cycle.

Denying the last active display triggers the fail-safe: the daemon
keeps one display active rather than blanking the seat, and the
command reports which one.`,
		[]Example{
			{
				Description: "Deny a projector that should stay dark",
				Command:     "wayward deny HDMI-A-2",
			},
		},
	)
}

func forgetCommand() *Command {
	return authorizeCommand(
		control.ActionForget,
		"Drop a display's stored record",
		`Remove a display's authorization record. If the display is still
connected it is re-admitted in the same cycle as a new display,
which means a fresh denied record; if it is disconnected, nothing
remains and it will be treated as new when next plugged in.`,
		[]Example{
			{
				Description: "Drop the record for a returned loaner monitor",
				Command:     "wayward forget DP-2",
			},
		},
	)
}

// authorizeCommand builds one of the decision commands. All three send
// an identity, wait for the reconciliation cycle the request triggers,
// and report what that cycle actually did.
func authorizeCommand(action, summary, description string, examples []Example) *Command {
	var params authorizeParams

	return &Command{
		Name:        action,
		Summary:     summary,
		Description: description,
		Usage:       fmt.Sprintf("wayward %s <identity> [flags]", action),
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(action, pflag.ContinueOnError)
			params.AddFlags(flagSet)
			flagSet.BoolVar(&params.OutputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Examples: examples,
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("identity required (connector name, e.g. DP-3)")
			}
			if len(args) > 1 {
				return fmt.Errorf("unexpected argument: %s", args[1])
			}

			identity := display.Identity(args[0])
			if err := display.ValidateIdentity(identity); err != nil {
				return fmt.Errorf("invalid identity %q: %w", args[0], err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()

			var outcome control.AuthorizeOutcome
			err := params.Client().Call(ctx, action,
				map[string]any{"identity": identity}, &outcome)
			if err != nil {
				return err
			}

			if params.OutputJSON {
				return writeJSON(outcome)
			}
			return printOutcome(os.Stdout, action, identity, outcome)
		},
	}
}

// printOutcome renders the result of an allow, deny, or forget: the
// stored decision after the cycle, the gateway commands the cycle
// issued, and any fail-safe override.
func printOutcome(w io.Writer, action string, identity display.Identity, outcome control.AuthorizeOutcome) error {
	switch {
	case outcome.Record == nil:
		fmt.Fprintf(w, "%s forgotten; it will be treated as new when next connected.\n", identity)
	case action == control.ActionForget:
		// Forgetting a connected display re-admits it in the same
		// cycle, so a fresh record exists.
		fmt.Fprintf(w, "%s forgotten and re-admitted as %s.\n",
			outcome.Record.Identity, outcome.Record.Decision)
	default:
		fmt.Fprintf(w, "%s is now %s.\n", outcome.Record.Identity, outcome.Record.Decision)
	}

	for _, command := range outcome.Commands {
		fmt.Fprintf(w, "  %s\n", command)
	}

	if fs := outcome.Failsafe; fs != nil {
		reason := "first by name"
		if fs.PreviouslyActive {
			reason = "previously active"
		}
		fmt.Fprintf(w, "Fail-safe: kept %s (%s) allowed so the seat retains an active display.\n",
			fs.Identity, reason)
	}
	return nil
}
