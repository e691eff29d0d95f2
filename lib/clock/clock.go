// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time surface wayward components depend on. Real()
// provides the standard library behavior; Fake() provides a
// deterministic clock for tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the fire time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. The channel has capacity 1;
// ticks a slow consumer misses are dropped, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. No further ticks are delivered after
// Stop returns. Stop does not close C.
func (t *Ticker) Stop() { t.stop() }
