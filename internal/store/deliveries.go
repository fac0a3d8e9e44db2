package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kpetrov/driplane/internal/domain"
)

// RecordTimerDelivery appends a delivery log row for a (timer, template,
// delay) combination. Returns whether a new row was inserted.
//
// Uses INSERT ... ON CONFLICT DO NOTHING against the unique index on
// (timer_id, template_id, delay_minutes), then checks RowsAffected. The
// insert-succeeded-vs-already-existed distinction is an explicit boolean the
// caller consumes to decide whether to enqueue an outbox task: inserted
// false means another tick already claimed this combination and nothing
// must be sent.
//
// This is the one place where a lost race would directly cause a duplicate
// message, which is why the decision lives in a store-level unique
// constraint and not in application code.
func (s *Store) RecordTimerDelivery(ctx context.Context, timerID string, templateID int64, delayMinutes int, userID, orderID string, at time.Time) (inserted bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_log (timer_id, template_id, delay_minutes, user_id, order_id, fired_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(timer_id, template_id, delay_minutes) WHERE timer_id IS NOT NULL DO NOTHING
	`, timerID, templateID, delayMinutes, userID, orderID, formatTime(at))
	if err != nil {
		return false, fmt.Errorf("record timer delivery: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record timer delivery: rows affected: %w", err)
	}
	return affected > 0, nil
}

// RecordDirectDelivery appends a delivery log row for the timerless path,
// keyed by (template, user, order). Same claim semantics as
// RecordTimerDelivery.
func (s *Store) RecordDirectDelivery(ctx context.Context, templateID int64, userID, orderID string, delayMinutes int, at time.Time) (inserted bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_log (timer_id, template_id, delay_minutes, user_id, order_id, fired_at)
		VALUES (NULL, ?, ?, ?, ?, ?)
		ON CONFLICT(template_id, user_id, order_id) WHERE timer_id IS NULL DO NOTHING
	`, templateID, delayMinutes, userID, orderID, formatTime(at))
	if err != nil {
		return false, fmt.Errorf("record direct delivery: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record direct delivery: rows affected: %w", err)
	}
	return affected > 0, nil
}

// HasTimerDelivery checks whether a (timer, template, delay) combination has
// already fired. The scheduler uses this to exclude already-sent pairs
// before doing any rendering work; the authoritative claim still happens in
// RecordTimerDelivery.
func (s *Store) HasTimerDelivery(ctx context.Context, timerID string, templateID int64, delayMinutes int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM delivery_log
		WHERE timer_id = ? AND template_id = ? AND delay_minutes = ?
	`, timerID, templateID, delayMinutes).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check timer delivery: %w", err)
	}
	return count > 0, nil
}

// DeliveredKey identifies one fired (timer, template, delay) combination.
type DeliveredKey struct {
	TimerID      string
	TemplateID   int64
	DelayMinutes int
}

// ListTimerDeliveries returns the fired combinations for the given timers.
// The scheduler loads these in one query per tick instead of probing each
// candidate pair individually.
func (s *Store) ListTimerDeliveries(ctx context.Context, timerIDs []string) (map[DeliveredKey]bool, error) {
	fired := make(map[DeliveredKey]bool)
	if len(timerIDs) == 0 {
		return fired, nil
	}

	query := `
		SELECT timer_id, template_id, delay_minutes
		FROM delivery_log
		WHERE timer_id IN (?` + repeatPlaceholder(len(timerIDs)-1) + `)
	`
	args := make([]any, len(timerIDs))
	for i, id := range timerIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list timer deliveries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key DeliveredKey
		if err := rows.Scan(&key.TimerID, &key.TemplateID, &key.DelayMinutes); err != nil {
			return nil, fmt.Errorf("list timer deliveries: scan: %w", err)
		}
		fired[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list timer deliveries: %w", err)
	}

	return fired, nil
}

// CountDeliveries returns the total number of delivery log rows.
// Used by tests and integrity checks.
func (s *Store) CountDeliveries(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return count, nil
}

// ListDeliveriesForOrder returns the delivery history of one order, oldest
// first. Read-only admin surface; the log itself is never mutated.
func (s *Store) ListDeliveriesForOrder(ctx context.Context, orderID string) ([]domain.DeliveryLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(timer_id, ''), template_id, delay_minutes, user_id, order_id, fired_at
		FROM delivery_log
		WHERE order_id = ?
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries for order: %w", err)
	}
	defer rows.Close()

	var entries []domain.DeliveryLogEntry
	for rows.Next() {
		var (
			e       domain.DeliveryLogEntry
			firedAt string
		)
		if err := rows.Scan(&e.ID, &e.TimerID, &e.TemplateID, &e.DelayMinutes, &e.UserID, &e.OrderID, &firedAt); err != nil {
			return nil, fmt.Errorf("list deliveries for order: scan: %w", err)
		}
		if e.FiredAt, err = parseTime(firedAt); err != nil {
			return nil, fmt.Errorf("list deliveries for order: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deliveries for order: %w", err)
	}

	return entries, nil
}

// repeatPlaceholder returns n occurrences of ", ?" for IN clauses.
func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
