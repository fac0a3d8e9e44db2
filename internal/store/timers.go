package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kpetrov/driplane/internal/domain"
)

// FindActiveTimer returns the active timer for (user, order) if it sits at
// exactly the given step. Returns sql.ErrNoRows wrapped as a found=false
// result rather than an error: absence is the normal case.
func (s *Store) FindActiveTimer(ctx context.Context, userID, orderID string, step domain.StepKey) (domain.StepTimer, bool, error) {
	timer, err := s.scanTimer(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, order_id, step, product, started_at, updated_at, active
		FROM step_timers
		WHERE user_id = ? AND order_id = ? AND step = ? AND active = 1
	`, userID, orderID, string(step)))

	if errors.Is(err, sql.ErrNoRows) {
		return domain.StepTimer{}, false, nil
	}
	if err != nil {
		return domain.StepTimer{}, false, fmt.Errorf("find active timer: %w", err)
	}
	return timer, true, nil
}

// InsertTimer inserts a new active timer for (user, order), deactivating
// every other timer for the pair in the same transaction.
//
// The deactivate-then-insert order matters: a partial unique index permits
// only one active row per pair, so inserting first would violate the
// constraint whenever a previous timer exists. Doing both in one
// transaction is what makes "at most one active timer per pair" hold at
// every observable instant.
func (s *Store) InsertTimer(ctx context.Context, t domain.StepTimer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert timer: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE step_timers SET active = 0, updated_at = ?
		WHERE user_id = ? AND order_id = ? AND active = 1
	`, formatTime(t.UpdatedAt), t.UserID, t.OrderID)
	if err != nil {
		return fmt.Errorf("insert timer: deactivate previous: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO step_timers (id, user_id, order_id, step, product, started_at, updated_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	`,
		t.ID,
		t.UserID,
		t.OrderID,
		string(t.Step),
		string(t.Product),
		formatTime(t.StartedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert timer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert timer: commit: %w", err)
	}

	return nil
}

// TouchTimer refreshes updated_at on an existing timer and back-fills the
// product type if it was previously unknown. started_at is deliberately not
// touched: the countdown must survive incidental refreshes.
func (s *Store) TouchTimer(ctx context.Context, timerID string, product domain.ProductType, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE step_timers
		SET updated_at = ?,
		    product = CASE WHEN product = '' THEN ? ELSE product END
		WHERE id = ?
	`, formatTime(at), string(product), timerID)
	if err != nil {
		return fmt.Errorf("touch timer %s: %w", timerID, err)
	}
	return nil
}

// DeactivateTimers flips the active flag off for every timer of the pair.
// Idempotent; returns the number of rows affected.
func (s *Store) DeactivateTimers(ctx context.Context, userID, orderID string, at time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE step_timers SET active = 0, updated_at = ?
		WHERE user_id = ? AND order_id = ? AND active = 1
	`, formatTime(at), userID, orderID)
	if err != nil {
		return 0, fmt.Errorf("deactivate timers: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate timers: rows affected: %w", err)
	}
	return int(affected), nil
}

// ListActiveTimers returns every active timer, oldest started_at first.
// The scheduler's matching pass consumes this ordering.
func (s *Store) ListActiveTimers(ctx context.Context) ([]domain.StepTimer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, order_id, step, product, started_at, updated_at, active
		FROM step_timers
		WHERE active = 1
		ORDER BY started_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active timers: %w", err)
	}
	defer rows.Close()

	return s.collectTimers(rows)
}

// ListActiveTimersForOrder returns the active timers of one order.
// Exposed for admin and reporting surfaces; with the one-active invariant
// intact the result has at most one element per user.
func (s *Store) ListActiveTimersForOrder(ctx context.Context, orderID string) ([]domain.StepTimer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, order_id, step, product, started_at, updated_at, active
		FROM step_timers
		WHERE order_id = ? AND active = 1
		ORDER BY started_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list active timers for order: %w", err)
	}
	defer rows.Close()

	return s.collectTimers(rows)
}

// CountActiveTimers returns the number of active timers for a pair.
// Used by integrity checks and tests to verify the one-active invariant.
func (s *Store) CountActiveTimers(ctx context.Context, userID, orderID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM step_timers
		WHERE user_id = ? AND order_id = ? AND active = 1
	`, userID, orderID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active timers: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanTimer(row rowScanner) (domain.StepTimer, error) {
	var (
		t                    domain.StepTimer
		startedAt, updatedAt string
		active               int
	)
	err := row.Scan(&t.ID, &t.UserID, &t.OrderID, (*string)(&t.Step), (*string)(&t.Product), &startedAt, &updatedAt, &active)
	if err != nil {
		return domain.StepTimer{}, err
	}
	if t.StartedAt, err = parseTime(startedAt); err != nil {
		return domain.StepTimer{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.StepTimer{}, err
	}
	t.Active = active == 1
	return t, nil
}

func (s *Store) collectTimers(rows *sql.Rows) ([]domain.StepTimer, error) {
	var timers []domain.StepTimer
	for rows.Next() {
		t, err := s.scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}
	return timers, nil
}
