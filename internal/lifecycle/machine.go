// Package lifecycle is the single authority for order status transitions.
//
// A transition writes the new status and its audit record durably, then
// runs the drip-message side effects best-effort: timer bookkeeping and
// stale-trigger cleanup must never fail the status write, because the
// status is the business fact and the messaging around it is not.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kpetrov/driplane/internal/clock"
	"github.com/kpetrov/driplane/internal/domain"
	"github.com/kpetrov/driplane/internal/store"
	"github.com/kpetrov/driplane/internal/timer"
)

// SideEffectObserver receives side-effect failures that were swallowed to
// protect the primary status write. The default observer logs them; tests
// install their own to assert that failures stay observable.
type SideEffectObserver func(orderID string, newStatus domain.OrderStatus, err error)

// Machine applies order status transitions and their side effects.
//
// Concurrency: transitions on the same order are serialized through a keyed
// mutex; transitions on different orders proceed in parallel. Callers may
// invoke Transition from any goroutine.
type Machine struct {
	store    *store.Store
	timers   *timer.Engine
	clock    clock.Clock
	perOrder *keyedMutex
	observer SideEffectObserver
}

// Option configures a Machine.
type Option func(*Machine)

// WithSideEffectObserver replaces the default slog-based observer.
func WithSideEffectObserver(obs SideEffectObserver) Option {
	return func(m *Machine) {
		m.observer = obs
	}
}

// New creates a lifecycle machine.
func New(s *store.Store, timers *timer.Engine, c clock.Clock, opts ...Option) *Machine {
	m := &Machine{
		store:    s,
		timers:   timers,
		clock:    c,
		perOrder: newKeyedMutex(),
		observer: logObserver,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Intake registers a newly created order and starts its first step timer.
//
// Creation is idempotent at the store level; re-running an intake webhook for
// an existing order only refreshes the timer and never resets its countdown.
func (m *Machine) Intake(ctx context.Context, order domain.Order) error {
	m.perOrder.Lock(order.ID)
	defer m.perOrder.Unlock(order.ID)

	if order.Status == "" {
		order.Status = domain.StatusNew
	}
	now := m.clock.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := m.store.CreateOrder(ctx, order); err != nil {
		return fmt.Errorf("intake: %w", err)
	}

	// Re-read the stored row: on a retried intake the create is a no-op and
	// the order may already have moved past its initial status. Side effects
	// must follow the stored state, not the request.
	stored, err := m.store.GetOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("intake: %w", err)
	}

	slog.Info("order registered",
		"order_id", stored.ID,
		"user_id", stored.UserID,
		"status", stored.Status,
	)

	m.runSideEffects(ctx, stored, stored.Status)
	return nil
}

// Transition moves an order to newStatus.
//
// Fails with domain.NotFoundError if the order does not exist. There is no
// legal-transition validation: operators may move orders backward for
// corrections, so any status may follow any status.
//
// When the status actually changes, side effects run in order:
//  1. read the product type from the order payload
//  2. resolve the effective timer step for the new status
//  3. terminal status: deactivate all timers; otherwise create-or-refresh
//     the timer at the resolved step
//  4. delete still-pending drip messages whose tag the new status obsoletes
//
// Side-effect failures are reported to the observer and never propagate:
// once the status write has committed, Transition returns nil.
func (m *Machine) Transition(ctx context.Context, orderID string, newStatus domain.OrderStatus) error {
	m.perOrder.Lock(orderID)
	defer m.perOrder.Unlock(orderID)

	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("transition: %w", err)
	}

	if order.Status == newStatus {
		slog.Debug("transition to identical status, nothing to do",
			"order_id", orderID,
			"status", newStatus,
		)
		return nil
	}

	now := m.clock.Now()
	if err := m.store.UpdateOrderStatus(ctx, orderID, order.Status, newStatus, now); err != nil {
		return fmt.Errorf("transition: %w", err)
	}

	slog.Info("order status changed",
		"order_id", orderID,
		"old_status", order.Status,
		"new_status", newStatus,
	)

	m.runSideEffects(ctx, order, newStatus)
	return nil
}

// runSideEffects performs the timer bookkeeping and stale-trigger cleanup
// for a committed transition. Each effect's failure is isolated: a broken
// timer write must not stop the cleanup from running.
func (m *Machine) runSideEffects(ctx context.Context, order domain.Order, newStatus domain.OrderStatus) {
	product := domain.ProductTypeFromPayload(order.Payload)

	if domain.IsTerminalStatus(newStatus) {
		if _, err := m.timers.DeactivateAll(ctx, order.UserID, order.ID); err != nil {
			m.observer(order.ID, newStatus, fmt.Errorf("deactivate timers: %w", err))
		}
	} else {
		step, ok := domain.ResolveStepKey(newStatus, product)
		if !ok {
			// Unmapped status/product combination. Deliberately no default:
			// a timer at a guessed step would feed the wrong templates.
			slog.Warn("no timer step mapped for status",
				"order_id", order.ID,
				"status", newStatus,
				"product", product,
			)
		} else {
			if _, err := m.timers.CreateOrRefresh(ctx, order.UserID, order.ID, step, product); err != nil {
				m.observer(order.ID, newStatus, fmt.Errorf("create or refresh timer: %w", err))
			}
		}
	}

	tags := domain.ObsoletedTags(newStatus)
	if len(tags) == 0 {
		return
	}
	deleted, err := m.store.DeletePendingDripsByTags(ctx, order.ID, tags)
	if err != nil {
		m.observer(order.ID, newStatus, fmt.Errorf("cleanup stale drips: %w", err))
		return
	}
	if deleted > 0 {
		slog.Info("stale drip messages deleted",
			"order_id", order.ID,
			"new_status", newStatus,
			"count", deleted,
		)
	}
}

// logObserver is the default side-effect failure sink.
func logObserver(orderID string, newStatus domain.OrderStatus, err error) {
	slog.Error("transition side effect failed",
		"error", err,
		"order_id", orderID,
		"new_status", newStatus,
	)
}
