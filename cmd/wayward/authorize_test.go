// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wayward-foundation/wayward/lib/control"
	"github.com/wayward-foundation/wayward/lib/policy"
)

func TestPrintOutcome_Allow(t *testing.T) {
	outcome := control.AuthorizeOutcome{
		Record: &policy.Record{
			Identity: "DP-3",
			Decision: policy.Allowed,
		},
		Commands: []string{"enable DP-3"},
	}

	var buffer bytes.Buffer
	if err := printOutcome(&buffer, control.ActionAllow, "DP-3", outcome); err != nil {
		t.Fatalf("printOutcome() error: %v", err)
	}
	output := buffer.String()

	if !strings.Contains(output, "DP-3 is now allowed.") {
		t.Errorf("output missing decision line:\n%s", output)
	}
	if !strings.Contains(output, "enable DP-3") {
		t.Errorf("output missing issued command:\n%s", output)
	}
	if strings.Contains(output, "Fail-safe") {
		t.Errorf("no fail-safe fired, output should not mention one:\n%s", output)
	}
}

func TestPrintOutcome_DenyWithFailsafe(t *testing.T) {
	outcome := control.AuthorizeOutcome{
		Record: &policy.Record{
			Identity: "eDP-1",
			Decision: policy.Denied,
		},
		Failsafe: &control.FailsafeNotice{
			Identity:         "DP-1",
			PreviouslyActive: true,
		},
	}

	var buffer bytes.Buffer
	if err := printOutcome(&buffer, control.ActionDeny, "eDP-1", outcome); err != nil {
		t.Fatalf("printOutcome() error: %v", err)
	}
	output := buffer.String()

	if !strings.Contains(output, "eDP-1 is now denied.") {
		t.Errorf("output missing decision line:\n%s", output)
	}
	if !strings.Contains(output, "Fail-safe: kept DP-1 (previously active)") {
		t.Errorf("output missing fail-safe notice:\n%s", output)
	}
}

func TestPrintOutcome_FailsafeLexicographicPick(t *testing.T) {
	outcome := control.AuthorizeOutcome{
		Record: &policy.Record{
			Identity: "DP-1",
			Decision: policy.Allowed,
		},
		Failsafe: &control.FailsafeNotice{
			Identity:         "DP-1",
			PreviouslyActive: false,
		},
	}

	var buffer bytes.Buffer
	if err := printOutcome(&buffer, control.ActionDeny, "DP-2", outcome); err != nil {
		t.Fatalf("printOutcome() error: %v", err)
	}

	if !strings.Contains(buffer.String(), "(first by name)") {
		t.Errorf("output should name the promotion rule:\n%s", buffer.String())
	}
}

func TestPrintOutcome_ForgetDisconnected(t *testing.T) {
	var buffer bytes.Buffer
	err := printOutcome(&buffer, control.ActionForget, "DP-2", control.AuthorizeOutcome{})
	if err != nil {
		t.Fatalf("printOutcome() error: %v", err)
	}

	output := buffer.String()
	if !strings.Contains(output, "DP-2 forgotten") {
		t.Errorf("output missing forget confirmation:\n%s", output)
	}
	if !strings.Contains(output, "treated as new") {
		t.Errorf("output should explain re-admission on reconnect:\n%s", output)
	}
}

func TestPrintOutcome_ForgetConnectedReadmits(t *testing.T) {
	outcome := control.AuthorizeOutcome{
		Record: &policy.Record{
			Identity: "HDMI-A-1",
			Decision: policy.Denied,
		},
		Commands: []string{"disable HDMI-A-1"},
	}

	var buffer bytes.Buffer
	if err := printOutcome(&buffer, control.ActionForget, "HDMI-A-1", outcome); err != nil {
		t.Fatalf("printOutcome() error: %v", err)
	}

	if !strings.Contains(buffer.String(), "HDMI-A-1 forgotten and re-admitted as denied.") {
		t.Errorf("output should report the re-admission:\n%s", buffer.String())
	}
}
