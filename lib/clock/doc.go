// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction so that retry
// backoff, resync tickers, and retention sweeps can be tested without
// sleeping.
//
// Production code never calls time.Now, time.After, time.NewTicker, or
// time.Sleep directly; it accepts a Clock (usually as a struct field)
// and uses Real() outside tests:
//
//	loop := &Loop{clock: clock.Real()}
//
// Tests inject Fake() and drive time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	loop := &Loop{clock: c}
//	// ... start the loop ...
//	c.WaitForTimers(1)         // a retry backoff is now registered
//	c.Advance(2 * time.Second) // fire it deterministically
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past its deadline; a test that calls
// Advance before the timer exists would otherwise hang forever.
package clock
