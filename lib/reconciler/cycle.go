// Copyright 2026 The Wayward Authors
// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wayward-foundation/wayward/lib/authstore"
	"github.com/wayward-foundation/wayward/lib/compositor"
	"github.com/wayward-foundation/wayward/lib/display"
	"github.com/wayward-foundation/wayward/lib/journal"
	"github.com/wayward-foundation/wayward/lib/policy"
)

// noteFunc appends one journal entry for the running cycle.
type noteFunc func(kind journal.EntryKind, id display.Identity, detail string)

// runCycle executes one reconciliation cycle. The cycle runs on a
// context detached from shutdown cancellation so operator requests
// and half-issued command sequences complete; cycleTimeout bounds it.
func (r *Reconciler) runCycle(parent context.Context, it item) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), cycleTimeout)
	defer cancel()

	started := r.clock.Now()
	cycleID := uuid.NewString()
	logger := r.logger.With("cycle", cycleID, "trigger", it.trigger)

	var entries []journal.Entry
	note := func(kind journal.EntryKind, id display.Identity, detail string) {
		entries = append(entries, journal.Entry{
			CycleID:  cycleID,
			At:       r.clock.Now(),
			Kind:     kind,
			Identity: id,
			Detail:   detail,
		})
	}

	if it.trigger == TriggerStoreReload {
		changed, err := r.store.ReloadIfChanged()
		switch {
		case errors.Is(err, authstore.ErrCorrupt):
			logger.Error("store file corrupt on disk, keeping in-memory records", "error", err)
			note(journal.EntryStoreError, "", err.Error())
		case err != nil:
			logger.Warn("store reload failed", "error", err)
			return
		case !changed:
			// Our own write coming back through the file watcher.
			return
		default:
			logger.Info("store file changed externally, reloaded")
		}
	}

	var outcome Outcome
	if it.request != nil {
		var requestErr error
		outcome, requestErr = r.applyRequest(it.request, logger, note)
		if requestErr != nil {
			it.request.reply <- reply{err: requestErr}
			return
		}
	}

	if it.event != nil {
		logger.Debug("output event",
			"kind", it.event.Kind.String(),
			"identity", it.event.Snapshot.Identity,
		)
	}

	live, err := r.gateway.Outputs(ctx)
	if err != nil {
		logger.Warn("cannot query outputs, no commands this cycle", "error", err)
		if it.request != nil {
			// The policy change took; enforcement waits for the
			// gateway to come back.
			it.request.reply <- reply{outcome: outcome}
		}
		return
	}

	plan := policy.Reconcile(policy.Input{
		Snapshots:   live,
		Records:     r.store.View(),
		LastApplied: r.AppliedSet(),
	})

	for _, mutation := range plan.Mutations {
		switch mutation.Reason {
		case policy.MutationAdmission:
			note(journal.EntryAdmission, mutation.Identity, mutation.Description)
		case policy.MutationFailsafe:
			note(journal.EntryFailsafe, mutation.Identity, failsafeDetail(plan.Failsafe))
		}
	}
	if len(plan.Mutations) > 0 {
		if err := r.store.Apply(plan.Mutations); err != nil {
			logger.Error("store write failed, decisions held in memory", "error", err)
			note(journal.EntryStoreError, "", err.Error())
			r.setDegraded(err.Error())
		} else {
			r.setDegraded("")
		}
	}

	if plan.Failsafe != nil {
		logger.Warn("fail-safe promotion",
			"identity", plan.Failsafe.Identity,
			"previously_active", plan.Failsafe.PreviouslyApplied,
		)
	}

	var issued []string
	for _, command := range plan.Commands {
		text := commandText(command)
		if err := r.runCommand(ctx, logger, command); err != nil {
			logger.Error("command failed", "command", text, "error", err)
			note(journal.EntryCommandError, command.Identity, text+": "+err.Error())
			continue
		}
		issued = append(issued, text)
		note(journal.EntryCommand, command.Identity, text)
	}

	r.mu.Lock()
	r.status.Cycles++
	r.status.LastCycleAt = r.clock.Now()
	r.status.LastTrigger = it.trigger
	r.status.LiveDisplays = len(live)
	r.status.ActiveDisplays = len(plan.Desired)
	r.lastApplied = plan.Desired.Clone()
	r.lastLive = live
	r.mu.Unlock()

	if r.journal != nil && len(entries) > 0 {
		cycle := journal.Cycle{
			ID:        cycleID,
			StartedAt: started,
			Trigger:   string(it.trigger),
			Live:      len(live),
			Desired:   len(plan.Desired),
			Failsafe:  plan.Failsafe != nil,
		}
		if err := r.journal.RecordCycle(ctx, cycle, entries); err != nil {
			logger.Warn("journal write failed", "error", err)
		}
	}

	if it.request != nil {
		outcome.Commands = issued
		outcome.Failsafe = plan.Failsafe
		if record, ok := r.store.Get(it.request.identity); ok {
			outcome.Record = &record
		} else {
			outcome.Record = nil
		}
		it.request.reply <- reply{outcome: outcome}
	}
}

// applyRequest performs the operator's store change. The returned
// error means the request itself was invalid; persistence failures
// degrade instead, with the decision effective in memory.
func (r *Reconciler) applyRequest(req *request, logger *slog.Logger, note noteFunc) (Outcome, error) {
	switch req.kind {
	case RequestAllow, RequestDeny:
		decision := policy.Denied
		if req.kind == RequestAllow {
			decision = policy.Allowed
		}
		record, err := r.store.Set(req.identity, decision, "")
		if err != nil {
			logger.Error("store write failed, decision held in memory", "error", err)
			note(journal.EntryStoreError, "", err.Error())
			r.setDegraded(err.Error())
		} else {
			r.setDegraded("")
		}
		note(journal.EntryDecision, req.identity, "operator "+req.kind.String())
		return Outcome{Record: &record}, nil

	case RequestForget:
		existed, err := r.store.Forget(req.identity)
		if !existed {
			return Outcome{}, fmt.Errorf("no record for %q", req.identity)
		}
		if err != nil {
			logger.Error("store write failed, removal held in memory", "error", err)
			note(journal.EntryStoreError, "", err.Error())
			r.setDegraded(err.Error())
		} else {
			r.setDegraded("")
		}
		note(journal.EntryDecision, req.identity, "operator forget")
		return Outcome{}, nil

	default:
		return Outcome{}, fmt.Errorf("unknown request kind %v", req.kind)
	}
}

// runCommand issues one gateway command with bounded retries. A
// RejectedError is permanent: the compositor understood and said no,
// so repeating it changes nothing.
func (r *Reconciler) runCommand(ctx context.Context, logger *slog.Logger, command policy.Command) error {
	text := commandText(command)
	for attempt := 1; ; attempt++ {
		var err error
		switch command.Kind {
		case policy.CommandEnable:
			err = r.gateway.Enable(ctx, command.Identity)
		default:
			err = r.gateway.Disable(ctx, command.Identity)
		}
		if err == nil {
			if attempt > 1 {
				logger.Info("command succeeded after retry", "command", text, "attempt", attempt)
			}
			return nil
		}

		var rejected *compositor.RejectedError
		if errors.As(err, &rejected) {
			return err
		}
		if attempt == r.commandAttempts {
			return err
		}

		delay := time.Duration(1<<(attempt-1)) * time.Second
		logger.Warn("command failed, will retry",
			"command", text,
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("cycle deadline during retry: %w", err)
		case <-r.clock.After(delay):
		}
	}
}

func commandText(command policy.Command) string {
	return command.Kind.String() + " " + string(command.Identity)
}

func failsafeDetail(failsafe *policy.Failsafe) string {
	if failsafe == nil {
		return ""
	}
	if failsafe.PreviouslyApplied {
		return "promoted: was active before exclusion"
	}
	return "promoted: first connected display by name"
}
