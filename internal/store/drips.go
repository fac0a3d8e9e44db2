package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kpetrov/driplane/internal/domain"
)

// CreateDripMessage inserts a directly scheduled drip message and returns
// its ID. ScheduledAt is fixed at creation; the scheduler fires the message
// once the wall clock passes it.
func (s *Store) CreateDripMessage(ctx context.Context, m domain.DripMessage) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO drip_messages (order_id, user_id, tag, kind, body, attachment, status, scheduled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.OrderID,
		m.UserID,
		string(m.Tag),
		string(m.Kind),
		m.Body,
		m.Attachment,
		string(domain.DripPending),
		formatTime(m.ScheduledAt),
		formatTime(m.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("create drip message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create drip message: last insert id: %w", err)
	}
	return id, nil
}

// ListDueDripMessages returns pending messages whose scheduled_at has
// passed, oldest scheduled first.
func (s *Store) ListDueDripMessages(ctx context.Context, now time.Time, limit int) ([]domain.DripMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, tag, kind, body, attachment, status, scheduled_at, created_at
		FROM drip_messages
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC, id ASC
		LIMIT ?
	`, string(domain.DripPending), formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list due drip messages: %w", err)
	}
	defer rows.Close()

	return collectDrips(rows)
}

// ClaimDripMessage flips one message from pending to sent and reports
// whether this call won the claim. The row's status is the dedup marker for
// the direct path: losing the claim (zero rows affected) means another tick
// already took the message and the caller must not enqueue anything.
func (s *Store) ClaimDripMessage(ctx context.Context, id int64) (claimed bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE drip_messages SET status = ?
		WHERE id = ? AND status = ?
	`, string(domain.DripSent), id, string(domain.DripPending))
	if err != nil {
		return false, fmt.Errorf("claim drip message %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim drip message %d: rows affected: %w", id, err)
	}
	return affected > 0, nil
}

// DeletePendingDripsByTags deletes still-pending messages of an order whose
// tag is in tags. Sent messages are history and are never touched. Returns
// the number of rows deleted.
//
// This is the stale-trigger cleanup: a status change makes certain nag
// messages pointless (paying kills payment reminders) and they must
// disappear before the scheduler's next tick can fire them.
func (s *Store) DeletePendingDripsByTags(ctx context.Context, orderID string, tags []domain.MessageTag) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	query := `
		DELETE FROM drip_messages
		WHERE order_id = ? AND status = ? AND tag IN (?` + repeatPlaceholder(len(tags)-1) + `)
	`
	args := []any{orderID, string(domain.DripPending)}
	for _, tag := range tags {
		args = append(args, string(tag))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete pending drips: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete pending drips: rows affected: %w", err)
	}
	return int(affected), nil
}

// ListPendingDripsForOrder returns an order's still-queued drip messages.
// Read-only admin surface.
func (s *Store) ListPendingDripsForOrder(ctx context.Context, orderID string) ([]domain.DripMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, tag, kind, body, attachment, status, scheduled_at, created_at
		FROM drip_messages
		WHERE order_id = ? AND status = ?
		ORDER BY scheduled_at ASC, id ASC
	`, orderID, string(domain.DripPending))
	if err != nil {
		return nil, fmt.Errorf("list pending drips: %w", err)
	}
	defer rows.Close()

	return collectDrips(rows)
}

func collectDrips(rows *sql.Rows) ([]domain.DripMessage, error) {
	var messages []domain.DripMessage
	for rows.Next() {
		var (
			m                      domain.DripMessage
			scheduledAt, createdAt string
		)
		err := rows.Scan(&m.ID, &m.OrderID, &m.UserID, (*string)(&m.Tag), (*string)(&m.Kind), &m.Body, &m.Attachment, (*string)(&m.Status), &scheduledAt, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan drip message: %w", err)
		}
		if m.ScheduledAt, err = parseTime(scheduledAt); err != nil {
			return nil, fmt.Errorf("scan drip message: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("scan drip message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drip messages: %w", err)
	}
	return messages, nil
}
