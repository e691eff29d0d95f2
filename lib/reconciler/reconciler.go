// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wayward-foundation/wayward/lib/authstore"
	"github.com/wayward-foundation/wayward/lib/clock"
	"github.com/wayward-foundation/wayward/lib/compositor"
	"github.com/wayward-foundation/wayward/lib/display"
	"github.com/wayward-foundation/wayward/lib/journal"
	"github.com/wayward-foundation/wayward/lib/policy"
)

// Trigger names what started a reconciliation cycle. It appears in
// logs and the journal.
type Trigger string

const (
	TriggerStartup     Trigger = "startup"
	TriggerEvent       Trigger = "event"
	TriggerOperator    Trigger = "operator"
	TriggerResync      Trigger = "resync"
	TriggerReconnect   Trigger = "reconnect"
	TriggerStoreReload Trigger = "store-reload"
)

// ErrShuttingDown is returned to operator requests that were queued
// when the daemon stopped.
var ErrShuttingDown = errors.New("reconciler shutting down")

// RequestKind is the operator operation carried by a request.
type RequestKind int

const (
	RequestAllow RequestKind = iota
	RequestDeny
	RequestForget
)

func (k RequestKind) String() string {
	switch k {
	case RequestAllow:
		return "allow"
	case RequestDeny:
		return "deny"
	case RequestForget:
		return "forget"
	default:
		return fmt.Sprintf("RequestKind(%d)", int(k))
	}
}

// Outcome reports what the cycle triggered by an operator request
// actually did. The request's effect can differ from its intent: a
// deny of the last active display comes back with a fail-safe
// promotion attached.
type Outcome struct {
	// Record is the stored record after the cycle, nil after a forget
	// that left no record behind.
	Record *policy.Record

	// Commands lists the gateway commands the cycle issued, in order,
	// as "enable DP-1" strings.
	Commands []string

	// Failsafe is set when the cycle promoted a display.
	Failsafe *policy.Failsafe
}

type request struct {
	kind     RequestKind
	identity display.Identity
	reply    chan reply
}

type reply struct {
	outcome Outcome
	err     error
}

// item is one unit of work on the queue.
type item struct {
	trigger Trigger
	event   *display.ChangeEvent
	request *request
}

// Status is a point-in-time copy of the reconciler's state for the
// control surface.
type Status struct {
	Connected      bool
	StartedAt      time.Time
	Cycles         uint64
	LastCycleAt    time.Time
	LastTrigger    Trigger
	LiveDisplays   int
	ActiveDisplays int

	// StoreDegraded carries the latest persistence failure while the
	// store is running from memory; empty when healthy.
	StoreDegraded string
}

// Config holds the reconciler's collaborators.
type Config struct {
	// Gateway talks to the compositor. Required.
	Gateway compositor.Gateway

	// Store holds authorization records. Required.
	Store *authstore.Store

	// Journal records cycles. Optional; nil disables journaling.
	Journal *journal.Journal

	// Clock is required.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger

	// ResyncInterval is how often a full cycle runs with no other
	// trigger. Zero means 5 minutes.
	ResyncInterval time.Duration

	// CommandAttempts bounds retries per gateway command. Zero means
	// 3.
	CommandAttempts int
}

func (c Config) validate() error {
	var errs []error
	if c.Gateway == nil {
		errs = append(errs, fmt.Errorf("Gateway is required"))
	}
	if c.Store == nil {
		errs = append(errs, fmt.Errorf("Store is required"))
	}
	if c.Clock == nil {
		errs = append(errs, fmt.Errorf("Clock is required"))
	}
	if c.Logger == nil {
		errs = append(errs, fmt.Errorf("Logger is required"))
	}
	return errors.Join(errs...)
}

// queueSize bounds pending work. Cycles re-derive everything from
// live state, so dropped non-operator triggers are only deferred
// work, never lost state.
const queueSize = 32

// cycleTimeout bounds one cycle including command retries. Cycles run
// on a context detached from shutdown so an in-flight cycle always
// finishes; this is the backstop.
const cycleTimeout = 2 * time.Minute

// resubscribeCap is the longest wait between gateway reconnection
// attempts.
const resubscribeCap = 30 * time.Second

// Reconciler owns the loop. Construct with New, start with Run.
type Reconciler struct {
	gateway         compositor.Gateway
	store           *authstore.Store
	journal         *journal.Journal
	clock           clock.Clock
	logger          *slog.Logger
	resyncInterval  time.Duration
	commandAttempts int

	queue chan item

	// mu guards the published copies read by the control surface.
	mu          sync.Mutex
	status      Status
	lastApplied display.Set
	lastLive    []display.Snapshot
}

// New validates the configuration and returns a stopped reconciler.
func New(cfg Config) (*Reconciler, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("reconciler config: %w", err)
	}
	resync := cfg.ResyncInterval
	if resync <= 0 {
		resync = 5 * time.Minute
	}
	attempts := cfg.CommandAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Reconciler{
		gateway:         cfg.Gateway,
		store:           cfg.Store,
		journal:         cfg.Journal,
		clock:           cfg.Clock,
		logger:          cfg.Logger.With("component", "reconciler"),
		resyncInterval:  resync,
		commandAttempts: attempts,
		queue:           make(chan item, queueSize),
		lastApplied:     display.NewSet(),
	}, nil
}

// Run executes the loop until ctx is cancelled: one startup cycle,
// then the gateway watcher, the resync ticker, and the queue. An
// in-flight cycle finishes before Run returns; queued operator
// requests are failed with ErrShuttingDown.
func (r *Reconciler) Run(ctx context.Context) error {
	r.mu.Lock()
	r.status.StartedAt = r.clock.Now()
	r.mu.Unlock()

	r.runCycle(ctx, item{trigger: TriggerStartup})

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		r.watchGateway(ctx)
	}()

	ticker := r.clock.NewTicker(r.resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-watcherDone
			r.drainQueue()
			r.logger.Info("reconciler stopped")
			return nil
		case it := <-r.queue:
			r.runCycle(ctx, it)
		case <-ticker.C:
			r.runCycle(ctx, item{trigger: TriggerResync})
		}
	}
}

// drainQueue fails whatever operator requests were still queued at
// shutdown.
func (r *Reconciler) drainQueue() {
	for {
		select {
		case it := <-r.queue:
			if it.request != nil {
				it.request.reply <- reply{err: ErrShuttingDown}
			}
		default:
			return
		}
	}
}

// watchGateway keeps an event subscription alive, feeding output
// events into the queue. Each successful (re)subscribe enqueues a
// full cycle to cover anything missed while the stream was down.
func (r *Reconciler) watchGateway(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		events, err := r.gateway.Subscribe(ctx)
		if err != nil {
			r.setConnected(false)
			attempt++
			delay := backoffDelay(attempt)
			r.logger.Warn("gateway subscribe failed",
				"error", err,
				"retry_in", delay,
			)
			select {
			case <-ctx.Done():
				return
			case <-r.clock.After(delay):
			}
			continue
		}

		r.setConnected(true)
		attempt = 0
		r.enqueueBestEffort(item{trigger: TriggerReconnect})

		for event := range events {
			r.enqueueBestEffort(item{trigger: TriggerEvent, event: &event})
		}

		// Stream closed under us.
		r.setConnected(false)
		if ctx.Err() == nil {
			r.logger.Warn("gateway event stream lost, resubscribing")
		}
	}
}

// backoffDelay is the wait before reconnection attempt n (1-based):
// 1s, 2s, 4s, ... capped at resubscribeCap.
func backoffDelay(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 5 {
		shift = 5
	}
	delay := time.Duration(1<<shift) * time.Second
	if delay > resubscribeCap {
		delay = resubscribeCap
	}
	return delay
}

// enqueueBestEffort queues non-operator work. A full queue means
// cycles are already pending; since every cycle re-reads the world,
// dropping the trigger loses nothing.
func (r *Reconciler) enqueueBestEffort(it item) {
	select {
	case r.queue <- it:
	default:
		r.logger.Debug("queue full, dropping trigger", "trigger", it.trigger)
	}
}

// NotifyStoreChanged queues a cycle that re-reads the store file.
// The daemon's file watcher calls this on store-file write events.
func (r *Reconciler) NotifyStoreChanged() {
	r.enqueueBestEffort(item{trigger: TriggerStoreReload})
}

// Allow marks a display Allowed and runs a cycle, blocking until the
// cycle reports what happened.
func (r *Reconciler) Allow(ctx context.Context, id display.Identity) (Outcome, error) {
	return r.submit(ctx, RequestAllow, id)
}

// Deny marks a display Denied and runs a cycle. Denying the only
// active display comes back with the fail-safe promotion that
// reversed it.
func (r *Reconciler) Deny(ctx context.Context, id display.Identity) (Outcome, error) {
	return r.submit(ctx, RequestDeny, id)
}

// Forget removes a display's record. If the display is still
// connected, the same cycle re-admits it as Denied.
func (r *Reconciler) Forget(ctx context.Context, id display.Identity) (Outcome, error) {
	return r.submit(ctx, RequestForget, id)
}

func (r *Reconciler) submit(ctx context.Context, kind RequestKind, id display.Identity) (Outcome, error) {
	if err := display.ValidateIdentity(id); err != nil {
		return Outcome{}, fmt.Errorf("invalid identity: %w", err)
	}

	req := &request{
		kind:     kind,
		identity: id,
		reply:    make(chan reply, 1),
	}

	select {
	case r.queue <- item{trigger: TriggerOperator, request: req}:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep.outcome, rep.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Status returns a copy of the published state.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// AppliedSet returns a copy of the enabled set from the last
// completed cycle.
func (r *Reconciler) AppliedSet() display.Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastApplied.Clone()
}

// LiveSnapshots returns a copy of the live outputs seen by the last
// completed cycle.
func (r *Reconciler) LiveSnapshots() []display.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]display.Snapshot, len(r.lastLive))
	copy(out, r.lastLive)
	return out
}

func (r *Reconciler) setConnected(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Connected = connected
}

func (r *Reconciler) setDegraded(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.StoreDegraded = message
}
