// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/wayward-foundation/wayward/lib/control"
)

// statusParams holds the parameters for the status command.
type statusParams struct {
	socketConfig
	OutputJSON bool
}

func statusCommand() *Command {
	var params statusParams

	return &Command{
		Name:    "status",
		Summary: "Show daemon and seat state",
		Description: `Show the daemon's view of the seat: compositor gateway health,
authorization store location, reconciliation counters, and how many
of the connected displays are active.

A "store degraded" line means decisions are currently held in memory
only; the daemon keeps retrying the store on every cycle.`,
		Usage: "wayward status [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			params.AddFlags(flagSet)
			flagSet.BoolVar(&params.OutputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Examples: []Example{
			{
				Description: "Human-readable overview",
				Command:     "wayward status",
			},
			{
				Description: "Machine-readable, for scripts",
				Command:     "wayward status --json",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()

			var status control.Status
			if err := params.Client().Call(ctx, control.ActionStatus, nil, &status); err != nil {
				return err
			}

			if params.OutputJSON {
				return writeJSON(status)
			}
			return printStatus(os.Stdout, status)
		},
	}
}

func printStatus(w io.Writer, status control.Status) error {
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)

	fmt.Fprintf(tw, "Version:\t%s\n", status.Version)
	fmt.Fprintf(tw, "Compositor:\t%s\n", status.Compositor)

	gateway := "connected"
	if !status.GatewayConnected {
		gateway = "disconnected (reconnecting)"
	}
	fmt.Fprintf(tw, "Gateway:\t%s\n", gateway)
	fmt.Fprintf(tw, "Started:\t%s\n", formatWhen(status.StartedAt))

	store := status.StorePath
	if store == "" {
		store = "(volatile, decisions not persisted)"
	}
	fmt.Fprintf(tw, "Store:\t%s\n", store)
	if status.StoreDegraded != "" {
		fmt.Fprintf(tw, "Store degraded:\t%s\n", status.StoreDegraded)
	}

	fmt.Fprintf(tw, "Cycles:\t%d\n", status.Cycles)
	fmt.Fprintf(tw, "Last cycle:\t%s\n", formatWhen(status.LastCycleAt))
	fmt.Fprintf(tw, "Displays:\t%d connected, %d active\n",
		status.LiveDisplays, status.ActiveDisplays)
	fmt.Fprintf(tw, "Records:\t%d\n", status.RecordCount)

	return tw.Flush()
}
