/*
dedup.go - Exactly-once arbitration of budget threshold alerts

PURPOSE:
  Decides whether a threshold crossing should be dispatched. Many callers
  may observe the same crossing at the same time; exactly one of them gets
  ShouldDispatch with Created.

STATES:
  validate        -> invalid-input      (no dispatch)
  find-or-create  -> created            (dispatch)
                  -> duplicate          (no dispatch, TriggeredAt touched)
                  -> recoverFromRace    (store reported ErrDuplicateTrigger)
                  -> storage-failure    (dispatch, fail open)
  recoverFromRace -> constraint-race    (no dispatch, TriggeredAt touched)

FAIL OPEN:
  When the store cannot be consulted at all the alert is dispatched anyway.
  A missed budget alert is worse than a repeated one.

SEE ALSO:
  - store.go: TriggerStore
  - api/scheduler.go: periodic caller
*/
package alert

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Deduplicator arbitrates alert dispatch over a TriggerStore.
type Deduplicator struct {
	Store  TriggerStore
	Logger *slog.Logger

	// TouchExisting refreshes TriggeredAt on duplicates unless the request
	// sets SkipTouch.
	TouchExisting bool

	// Now is the clock used when a request carries no timestamp.
	Now func() time.Time
}

// NewDeduplicator returns a Deduplicator that touches existing triggers.
func NewDeduplicator(store TriggerStore, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{
		Store:         store,
		Logger:        logger.With("component", "alert-dedup"),
		TouchExisting: true,
		Now:           time.Now,
	}
}

// RegisterTrigger records the crossing described by req and reports whether
// the caller should dispatch a notification. It never returns an error; the
// outcome and any underlying problem are carried by Result.
func (d *Deduplicator) RegisterTrigger(ctx context.Context, req Request) Result {
	log := d.logger()

	key, err := NewKey(req.BudgetID, req.ReferenceMonth, req.Threshold)
	if err != nil {
		log.Warn("rejecting alert trigger", "budget_id", req.BudgetID, "threshold", req.Threshold, "error", err)
		return Result{Reason: ReasonInvalidInput, Err: err}
	}

	if d.Store == nil {
		log.Error("alert store unavailable, dispatching anyway", "key", key.String(), "error", ErrNoStore)
		return Result{ShouldDispatch: true, Reason: ReasonStorageFailure, Err: ErrNoStore}
	}

	now := req.Now
	if now.IsZero() {
		now = d.now()
	}
	now = now.UTC()

	candidate := Trigger{
		ID:             uuid.NewString(),
		BudgetID:       key.BudgetID,
		ReferenceMonth: key.ReferenceMonth,
		Threshold:      key.Threshold,
		TriggeredAt:    now,
		CreatedAt:      now,
	}

	stored, created, err := d.Store.FindOrCreate(ctx, candidate)
	switch {
	case err == nil && created:
		log.Info("alert trigger created", "key", key.String(), "trigger_id", stored.ID)
		return Result{ShouldDispatch: true, Created: true, Record: &stored, Reason: ReasonCreated}

	case err == nil:
		return d.handleDuplicate(ctx, key, stored, now, d.shouldTouch(req))

	case errors.Is(err, ErrDuplicateTrigger):
		return d.recoverFromRace(ctx, key, now, d.shouldTouch(req))

	default:
		log.Error("alert store unavailable, dispatching anyway", "key", key.String(), "error", err)
		return Result{ShouldDispatch: true, Reason: ReasonStorageFailure, Err: err}
	}
}

// handleDuplicate covers the common path: the key was already claimed.
func (d *Deduplicator) handleDuplicate(ctx context.Context, key Key, existing Trigger, now time.Time, touch bool) Result {
	log := d.logger()

	if !touch {
		log.Debug("alert trigger already registered", "key", key.String())
		return Result{Record: &existing, Reason: ReasonDuplicate}
	}

	touched, err := d.Store.Touch(ctx, key, now)
	if err != nil {
		log.Warn("failed to touch existing alert trigger", "key", key.String(), "error", err)
		return Result{Record: &existing, Reason: ReasonDuplicate, Err: err}
	}

	log.Debug("alert trigger already registered", "key", key.String())
	return Result{Record: &touched, Reason: ReasonDuplicate}
}

// recoverFromRace runs after the store reported a unique violation: another
// caller inserted the key between our lookup and our insert. The conflict is
// proof the row exists, so the result never dispatches, even when the
// follow-up read fails.
func (d *Deduplicator) recoverFromRace(ctx context.Context, key Key, now time.Time, touch bool) Result {
	log := d.logger()

	existing, err := d.Store.Find(ctx, key)
	if err != nil {
		log.Warn("lost alert trigger race and could not reload winner", "key", key.String(), "error", err)
		return Result{Reason: ReasonConstraintRace, Err: err}
	}

	if touch {
		touched, err := d.Store.Touch(ctx, key, now)
		if err != nil {
			log.Warn("failed to touch alert trigger after race", "key", key.String(), "error", err)
			return Result{Record: &existing, Reason: ReasonConstraintRace, Err: err}
		}
		existing = touched
	}

	log.Debug("lost alert trigger race", "key", key.String(), "trigger_id", existing.ID)
	return Result{Record: &existing, Reason: ReasonConstraintRace}
}

func (d *Deduplicator) shouldTouch(req Request) bool {
	return d.TouchExisting && !req.SkipTouch
}

func (d *Deduplicator) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deduplicator) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
