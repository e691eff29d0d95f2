// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/wayward-foundation/wayward/lib/control"
)

func TestPrintStatus(t *testing.T) {
	status := control.Status{
		Version:          "0.3.0",
		Compositor:       "sway",
		GatewayConnected: true,
		StartedAt:        time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC),
		StorePath:        "/home/kiosk/.local/state/wayward/authorizations.cbor",
		Cycles:           42,
		LastCycleAt:      time.Date(2026, 8, 21, 10, 30, 0, 0, time.UTC),
		LiveDisplays:     3,
		ActiveDisplays:   2,
		RecordCount:      5,
	}

	var buffer bytes.Buffer
	if err := printStatus(&buffer, status); err != nil {
		t.Fatalf("printStatus() error: %v", err)
	}
	output := buffer.String()

	for _, want := range []string{
		"0.3.0",
		"sway",
		"connected",
		"authorizations.cbor",
		"42",
		"3 connected, 2 active",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q\n\nFull output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "degraded") {
		t.Errorf("healthy status should not mention degradation:\n%s", output)
	}
}

func TestPrintStatus_Degraded(t *testing.T) {
	status := control.Status{
		Version:       "0.3.0",
		Compositor:    "hyprland",
		StorePath:     "/var/lib/wayward/authorizations.cbor",
		StoreDegraded: "write authorizations.cbor: no space left on device",
	}

	var buffer bytes.Buffer
	if err := printStatus(&buffer, status); err != nil {
		t.Fatalf("printStatus() error: %v", err)
	}
	output := buffer.String()

	if !strings.Contains(output, "no space left on device") {
		t.Errorf("degraded status should carry the failure:\n%s", output)
	}
	if !strings.Contains(output, "disconnected") {
		t.Errorf("output should show the gateway as disconnected:\n%s", output)
	}
}

func TestPrintStatus_Volatile(t *testing.T) {
	status := control.Status{
		Version:          "0.3.0",
		Compositor:       "sway",
		GatewayConnected: true,
	}

	var buffer bytes.Buffer
	if err := printStatus(&buffer, status); err != nil {
		t.Fatalf("printStatus() error: %v", err)
	}

	if !strings.Contains(buffer.String(), "volatile") {
		t.Errorf("empty store path should render as volatile:\n%s", buffer.String())
	}
}
