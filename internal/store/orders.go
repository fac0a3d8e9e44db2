package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kpetrov/driplane/internal/domain"
)

// CreateOrder inserts a new order.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - re-creating an existing
// order is silently ignored so that intake webhooks can be retried.
func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	payload := o.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		o.ID,
		o.UserID,
		string(o.Status),
		string(payload),
		formatTime(o.CreatedAt),
		formatTime(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// GetOrder reads one order by ID.
// Returns domain.NotFoundError if no such order exists.
func (s *Store) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var (
		o                    domain.Order
		payload              string
		createdAt, updatedAt string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, payload, created_at, updated_at
		FROM orders
		WHERE id = ?
	`, orderID).Scan(&o.ID, &o.UserID, (*string)(&o.Status), &payload, &createdAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, &domain.NotFoundError{Kind: "order", ID: orderID}
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}

	o.Payload = json.RawMessage(payload)
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}

	return o, nil
}

// UpdateOrderStatus writes the new status and appends the history row in a
// single transaction. The status write and its audit record are one durable
// fact; side effects (timers, cleanup) happen elsewhere and are best-effort.
//
// Returns domain.NotFoundError if the order does not exist.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, oldStatus, newStatus domain.OrderStatus, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update order status: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE id = ?
	`, string(newStatus), formatTime(at), orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Kind: "order", ID: orderID}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, old_status, new_status, changed_at)
		VALUES (?, ?, ?, ?)
	`, orderID, string(oldStatus), string(newStatus), formatTime(at))
	if err != nil {
		return fmt.Errorf("update order status: write history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update order status: commit: %w", err)
	}

	return nil
}

// ListStatusHistory returns the append-only status timeline of an order,
// oldest change first.
func (s *Store) ListStatusHistory(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, old_status, new_status, changed_at
		FROM order_status_history
		WHERE order_id = ?
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var changes []domain.StatusChange
	for rows.Next() {
		var (
			c         domain.StatusChange
			changedAt string
		)
		if err := rows.Scan(&c.ID, &c.OrderID, (*string)(&c.OldStatus), (*string)(&c.NewStatus), &changedAt); err != nil {
			return nil, fmt.Errorf("list status history: scan: %w", err)
		}
		if c.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, fmt.Errorf("list status history: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}

	return changes, nil
}
