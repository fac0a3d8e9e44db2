// Package timer owns the step timer lifecycle: one active timer per
// (user, order) pair measuring how long the order has dwelt in its current
// lifecycle step.
package timer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kpetrov/driplane/internal/clock"
	"github.com/kpetrov/driplane/internal/domain"
	"github.com/kpetrov/driplane/internal/ids"
	"github.com/kpetrov/driplane/internal/store"
)

// Engine creates, refreshes, and deactivates step timers.
//
// Timers are anchored per (user, order) rather than per user, because a
// user may have several orders in flight and their countdowns must not
// cross-contaminate. They are anchored per exact step string rather than
// per raw status, because one status can stand for two distinct steps
// depending on the product type.
type Engine struct {
	store *store.Store
	clock clock.Clock
	ids   ids.Generator
}

// New creates a timer engine.
func New(s *store.Store, c clock.Clock, g ids.Generator) *Engine {
	return &Engine{store: s, clock: c, ids: g}
}

// CreateOrRefresh ensures an active timer exists for (user, order) at the
// given step. Returns true if a new timer was created, false if an existing
// one was refreshed.
//
// If an active timer already sits at exactly this step, only updated_at is
// touched (and the product type back-filled if previously unknown);
// started_at stays put so incidental refreshes never reset the countdown.
// Otherwise every other timer for the pair is deactivated and a fresh timer
// starts now. The deactivate-and-insert happens in one store transaction,
// so the one-active-timer invariant holds at every observable instant.
func (e *Engine) CreateOrRefresh(ctx context.Context, userID, orderID string, step domain.StepKey, product domain.ProductType) (bool, error) {
	now := e.clock.Now()

	existing, found, err := e.store.FindActiveTimer(ctx, userID, orderID, step)
	if err != nil {
		return false, fmt.Errorf("create or refresh timer: %w", err)
	}

	if found {
		if err := e.store.TouchTimer(ctx, existing.ID, product, now); err != nil {
			return false, fmt.Errorf("create or refresh timer: %w", err)
		}
		slog.Debug("step timer refreshed",
			"timer_id", existing.ID,
			"order_id", orderID,
			"step", step,
		)
		return false, nil
	}

	timer := domain.StepTimer{
		ID:        e.ids.NewID(),
		UserID:    userID,
		OrderID:   orderID,
		Step:      step,
		Product:   product,
		StartedAt: now,
		UpdatedAt: now,
		Active:    true,
	}
	if err := e.store.InsertTimer(ctx, timer); err != nil {
		return false, fmt.Errorf("create or refresh timer: %w", err)
	}

	slog.Info("step timer created",
		"timer_id", timer.ID,
		"order_id", orderID,
		"user_id", userID,
		"step", step,
		"product", product,
	)
	return true, nil
}

// DeactivateAll flips the active flag off for every timer of the pair.
// Idempotent; returns the number of timers deactivated.
func (e *Engine) DeactivateAll(ctx context.Context, userID, orderID string) (int, error) {
	n, err := e.store.DeactivateTimers(ctx, userID, orderID, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("deactivate timers: %w", err)
	}
	if n > 0 {
		slog.Info("step timers deactivated",
			"order_id", orderID,
			"user_id", userID,
			"count", n,
		)
	}
	return n, nil
}
