// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/wayward-foundation/wayward/lib/control"
	"github.com/wayward-foundation/wayward/lib/display"
	"github.com/wayward-foundation/wayward/lib/policy"
)

// listParams holds the parameters shared by the records and outputs
// commands.
type listParams struct {
	socketConfig
	OutputJSON bool
}

func (p *listParams) flags(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	p.AddFlags(flagSet)
	flagSet.BoolVar(&p.OutputJSON, "json", false, "output as JSON")
	return flagSet
}

func recordsCommand() *Command {
	var params listParams

	return &Command{
		Name:    "records",
		Summary: "List stored authorization records",
		Description: `List every authorization record the daemon holds, including
displays that are not currently connected. Records persist across
daemon restarts; use "wayward forget" to drop one.`,
		Usage: "wayward records [flags]",
		Flags: func() *pflag.FlagSet { return params.flags("records") },
		Examples: []Example{
			{
				Description: "List all records",
				Command:     "wayward records",
			},
			{
				Description: "Feed record identities to a script",
				Command:     "wayward records --json | jq -r '.[].identity'",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()

			var records []policy.Record
			if err := params.Client().Call(ctx, control.ActionRecords, nil, &records); err != nil {
				return err
			}

			if params.OutputJSON {
				return writeJSON(records)
			}

			if len(records) == 0 {
				fmt.Fprintln(os.Stderr, "No authorization records.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "IDENTITY\tDECISION\tFIRST SEEN\tLAST UPDATED\tDESCRIPTION\n")
			for _, record := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					record.Identity,
					record.Decision,
					formatWhen(record.FirstSeen),
					formatWhen(record.LastUpdated),
					record.Description)
			}
			return tw.Flush()
		},
	}
}

func outputsCommand() *Command {
	var params listParams

	return &Command{
		Name:    "outputs",
		Summary: "List connected displays and their decisions",
		Description: `List the displays currently connected to the compositor, each with
its stored decision and whether the daemon has it active.

ACTIVE can disagree with DECISION for a moment after a fail-safe
promotion or while an enable command is being retried.`,
		Usage: "wayward outputs [flags]",
		Flags: func() *pflag.FlagSet { return params.flags("outputs") },
		Examples: []Example{
			{
				Description: "List connected displays",
				Command:     "wayward outputs",
			},
			{
				Description: "Machine-readable, for scripts",
				Command:     "wayward outputs --json",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()

			var outputs []control.OutputStatus
			if err := params.Client().Call(ctx, control.ActionOutputs, nil, &outputs); err != nil {
				return err
			}

			if params.OutputJSON {
				return writeJSON(outputs)
			}

			if len(outputs) == 0 {
				fmt.Fprintln(os.Stderr, "No connected displays.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "IDENTITY\tDECISION\tACTIVE\tMODE\tDESCRIPTION\n")
			for _, output := range outputs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					output.Identity,
					output.Decision,
					yesNo(output.Active),
					formatMode(output.Geometry),
					output.Description)
			}
			return tw.Flush()
		},
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// formatMode renders an output's mode for table display. Inactive
// outputs report no mode.
func formatMode(geometry display.Geometry) string {
	mode := geometry.Mode
	if mode.Width == 0 || mode.Height == 0 {
		return "-"
	}
	return fmt.Sprintf("%dx%d@%.3fHz", mode.Width, mode.Height,
		float64(mode.RefreshMHz)/1000)
}
