// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconciler runs the daemon's single reconciliation loop.
//
// Every input that can change what is on screen funnels into one
// queue: compositor output events, operator requests from the control
// socket, store-file change notices, periodic resyncs, and gateway
// reconnects. One goroutine drains the queue and runs one cycle at a
// time, so there is never a concurrent pair of cycles disagreeing
// about the world.
//
// A cycle is: apply the operator's store change if the trigger was a
// request, query the gateway for live outputs, compute a plan with
// [policy.Reconcile], write the plan's store mutations, issue its
// gateway commands (enables first, bounded retries), journal what
// happened, and publish fresh status copies for the control surface.
//
// Failure doctrine: a store write failure degrades to memory-only
// operation and is surfaced in status and the journal, never fatal. A
// gateway failure suspends command traffic until the event stream is
// re-established (capped exponential backoff), then a full cycle
// catches up. A command that exhausts its retries is recorded and
// retried implicitly by later cycles.
package reconciler
