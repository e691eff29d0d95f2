// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Wayward is the operator CLI for wayward-daemon. It speaks CBOR over
// the daemon's unix control socket to inspect connected displays,
// change authorization decisions, query the decision journal, and
// collect diagnostic bundles.
package main

import (
	"fmt"
	"os"

	"github.com/wayward-foundation/wayward/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return root().Execute(os.Args[1:])
}

// root builds the wayward command tree.
func root() *Command {
	return &Command{
		Name: "wayward",
		Description: `Wayward: display authorization for Wayland seats.

Decide which displays may be active. A display seen for the first
time is denied until an operator allows it; allow, deny, and forget
change the stored decision and apply it immediately.`,
		Subcommands: []*Command{
			statusCommand(),
			outputsCommand(),
			recordsCommand(),
			allowCommand(),
			denyCommand(),
			forgetCommand(),
			historyCommand(),
			debugCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("wayward %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []Example{
			{
				Description: "Show the daemon and seat state",
				Command:     "wayward status",
			},
			{
				Description: "List connected displays and their decisions",
				Command:     "wayward outputs",
			},
			{
				Description: "Authorize the external monitor on DP-3",
				Command:     "wayward allow DP-3",
			},
			{
				Description: "Review recent daemon actions",
				Command:     "wayward history --limit 20",
			},
			{
				Description: "Collect a diagnostic archive for a bug report",
				Command:     "wayward debug bundle",
			},
		},
	}
}
