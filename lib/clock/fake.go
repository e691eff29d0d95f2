// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given time. Time moves only
// through Advance.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.registered = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests. After, NewTicker, and
// Sleep register pending waiters; Advance moves time forward and fires
// every waiter whose deadline falls inside the advanced window, in
// deadline order. Safe for concurrent use.
type FakeClock struct {
	mu         sync.Mutex
	registered *sync.Cond
	now        time.Time
	pending    []*waiter
}

// waiter is one pending After, Sleep, or Ticker registration.
type waiter struct {
	at       time.Time
	ch       chan time.Time
	interval time.Duration // ticker period; zero for one-shot waiters
	stopped  bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives the fire time once the clock
// has been advanced past d. If d <= 0 the channel receives
// immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.pending = append(c.pending, &waiter{at: c.now.Add(d), ch: ch})
	c.registered.Broadcast()
	return ch
}

// NewTicker returns a Ticker that fires once per interval as the clock
// advances. An Advance spanning several intervals fires once per
// interval, with ticks that overflow the buffer dropped. Panics if
// d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &waiter{at: c.now.Add(d), ch: make(chan time.Time, 1), interval: d}
	c.pending = append(c.pending, w)
	c.registered.Broadcast()

	return &Ticker{
		C: w.ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.stopped = true
		},
	}
}

// Sleep blocks the calling goroutine until the clock advances past d.
// Returns immediately if d <= 0.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d, firing due waiters in deadline
// order. Channel sends never block; a full buffer drops the tick,
// matching time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.now.Add(d)
	for {
		w := c.nextDueLocked(target)
		if w == nil {
			break
		}
		c.now = w.at
		select {
		case w.ch <- w.at:
		default:
		}
		if w.interval > 0 {
			w.at = w.at.Add(w.interval)
		} else {
			c.removeLocked(w)
		}
	}
	c.now = target
}

// nextDueLocked returns the unstopped waiter with the earliest
// deadline at or before target, or nil. Stopped waiters encountered
// on the way are dropped. Caller holds c.mu.
func (c *FakeClock) nextDueLocked(target time.Time) *waiter {
	var due *waiter
	for _, w := range c.pending {
		if w.stopped {
			continue
		}
		if w.at.After(target) {
			continue
		}
		if due == nil || w.at.Before(due.at) {
			due = w
		}
	}
	return due
}

// removeLocked deletes w from the pending list. Caller holds c.mu.
func (c *FakeClock) removeLocked(w *waiter) {
	for i, p := range c.pending {
		if p == w {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// WaitForTimers blocks until at least n waiters are registered and not
// yet fired. Call it before Advance when the waiter is registered by
// another goroutine.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of active waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *FakeClock) activeLocked() int {
	n := 0
	for _, w := range c.pending {
		if !w.stopped {
			n++
		}
	}
	return n
}
