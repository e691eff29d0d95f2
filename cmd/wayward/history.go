// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/wayward-foundation/wayward/lib/control"
	"github.com/wayward-foundation/wayward/lib/journal"
)

// historyParams holds the parameters for the history command.
type historyParams struct {
	socketConfig
	OutputJSON bool
	Identity   string
	Kind       string
	Limit      int
	Since      time.Duration
}

// historyKinds are the entry kinds accepted by --kind, in the order
// shown in the flag's usage text.
var historyKinds = []journal.EntryKind{
	journal.EntryAdmission,
	journal.EntryDecision,
	journal.EntryCommand,
	journal.EntryFailsafe,
	journal.EntryCommandError,
	journal.EntryStoreError,
}

func historyCommand() *Command {
	var params historyParams

	return &Command{
		Name:    "history",
		Summary: "Query the decision journal",
		Description: `Query the daemon's decision journal: admissions, operator decisions,
gateway commands, fail-safe promotions, and failures, newest first.

The journal is kept in the state directory and swept by age, so old
entries disappear on their own. A daemon running with --volatile has
no journal.`,
		Usage: "wayward history [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			params.AddFlags(flagSet)
			flagSet.StringVar(&params.Identity, "identity", "", "only entries for this connector")
			flagSet.StringVar(&params.Kind, "kind", "",
				fmt.Sprintf("only entries of this kind (%s)", kindList()))
			flagSet.IntVar(&params.Limit, "limit", 50, "maximum entries to return (0 = no limit)")
			flagSet.DurationVar(&params.Since, "since", 0, "only entries newer than this age, e.g. 24h")
			flagSet.BoolVar(&params.OutputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Examples: []Example{
			{
				Description: "The last 20 things the daemon did",
				Command:     "wayward history --limit 20",
			},
			{
				Description: "Everything that happened to DP-3 in the last day",
				Command:     "wayward history --identity DP-3 --since 24h",
			},
			{
				Description: "Fail-safe promotions only",
				Command:     "wayward history --kind fail-safe",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if params.Kind != "" && !validKind(params.Kind) {
				return fmt.Errorf("unknown kind %q (want one of: %s)", params.Kind, kindList())
			}

			fields := map[string]any{
				"identity": params.Identity,
				"kind":     params.Kind,
				"limit":    params.Limit,
			}
			if params.Since > 0 {
				fields["since"] = time.Now().Add(-params.Since).Unix()
			}

			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()

			var entries []journal.Entry
			if err := params.Client().Call(ctx, control.ActionHistory, fields, &entries); err != nil {
				return err
			}

			if params.OutputJSON {
				return writeJSON(entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(os.Stderr, "No journal entries match.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "TIME\tKIND\tIDENTITY\tDETAIL\n")
			for _, entry := range entries {
				identity := string(entry.Identity)
				if identity == "" {
					identity = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					formatWhen(entry.At), entry.Kind, identity, entry.Detail)
			}
			return tw.Flush()
		},
	}
}

func validKind(kind string) bool {
	for _, known := range historyKinds {
		if journal.EntryKind(kind) == known {
			return true
		}
	}
	return false
}

func kindList() string {
	names := make([]string, len(historyKinds))
	for i, kind := range historyKinds {
		names[i] = string(kind)
	}
	return strings.Join(names, ", ")
}
