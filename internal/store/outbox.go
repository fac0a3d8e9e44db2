package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kpetrov/driplane/internal/domain"
)

// InsertOutboxTask appends a task to the outbox with status pending and a
// zero retry count.
func (s *Store) InsertOutboxTask(ctx context.Context, t domain.OutboxTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox_tasks (id, order_id, user_id, kind, payload, status, retry_count, max_retries, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, '', ?)
	`,
		t.ID,
		t.OrderID,
		t.UserID,
		string(t.Kind),
		string(t.Payload),
		string(domain.TaskPending),
		t.MaxRetries,
		formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert outbox task: %w", err)
	}
	return nil
}

// GetOutboxTask reads one task by ID.
// Returns domain.NotFoundError if no such task exists.
func (s *Store) GetOutboxTask(ctx context.Context, taskID string) (domain.OutboxTask, error) {
	t, err := scanOutboxTask(s.db.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, kind, payload, status, retry_count, max_retries, last_error, created_at, sent_at
		FROM outbox_tasks
		WHERE id = ?
	`, taskID))

	if errors.Is(err, sql.ErrNoRows) {
		return domain.OutboxTask{}, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	if err != nil {
		return domain.OutboxTask{}, fmt.Errorf("get outbox task %s: %w", taskID, err)
	}
	return t, nil
}

// ListReadyOutboxTasks returns pending tasks with retry budget remaining,
// oldest created first.
//
// Exhausted tasks (retry_count >= max_retries) are excluded even while
// still marked pending; the deliverer moves them to failed, but the query
// must not hand them out in the window before that write lands.
func (s *Store) ListReadyOutboxTasks(ctx context.Context, limit int) ([]domain.OutboxTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, kind, payload, status, retry_count, max_retries, last_error, created_at, sent_at
		FROM outbox_tasks
		WHERE status = ? AND retry_count < max_retries
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, string(domain.TaskPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list ready outbox tasks: %w", err)
	}
	defer rows.Close()

	return collectOutboxTasks(rows)
}

// ListPendingOutboxTasksForOrder returns an order's not-yet-terminal tasks.
// Read-only admin surface.
func (s *Store) ListPendingOutboxTasksForOrder(ctx context.Context, orderID string) ([]domain.OutboxTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, kind, payload, status, retry_count, max_retries, last_error, created_at, sent_at
		FROM outbox_tasks
		WHERE order_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC
	`, orderID, string(domain.TaskPending))
	if err != nil {
		return nil, fmt.Errorf("list pending outbox tasks: %w", err)
	}
	defer rows.Close()

	return collectOutboxTasks(rows)
}

// MarkOutboxTaskSent moves a pending task to sent.
// The status guard keeps terminal states terminal: a task that already
// reached sent or failed is left untouched and the call reports no error,
// matching the idempotent claim semantics used elsewhere.
func (s *Store) MarkOutboxTaskSent(ctx context.Context, taskID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_tasks SET status = ?, sent_at = ?
		WHERE id = ? AND status = ?
	`, string(domain.TaskSent), formatTime(at), taskID, string(domain.TaskPending))
	if err != nil {
		return fmt.Errorf("mark outbox task sent: %w", err)
	}
	return nil
}

// IncrementOutboxRetry records a failed delivery attempt: retry count goes
// up, status stays pending so the next poll can retry. The count is
// monotonically non-decreasing by construction.
func (s *Store) IncrementOutboxRetry(ctx context.Context, taskID string, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_tasks SET retry_count = retry_count + 1, last_error = ?
		WHERE id = ? AND status = ?
	`, lastError, taskID, string(domain.TaskPending))
	if err != nil {
		return fmt.Errorf("increment outbox retry: %w", err)
	}
	return nil
}

// MarkOutboxTaskFailed moves a pending task to failed. Failed tasks remain
// in the table for operational inspection; nothing ever deletes them.
func (s *Store) MarkOutboxTaskFailed(ctx context.Context, taskID string, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_tasks SET status = ?, last_error = ?
		WHERE id = ? AND status = ?
	`, string(domain.TaskFailed), lastError, taskID, string(domain.TaskPending))
	if err != nil {
		return fmt.Errorf("mark outbox task failed: %w", err)
	}
	return nil
}

// CountOutboxTasksByStatus returns task counts keyed by status.
// Telemetry and test surface.
func (s *Store) CountOutboxTasksByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM outbox_tasks GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count outbox tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("count outbox tasks: scan: %w", err)
		}
		counts[domain.TaskStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count outbox tasks: %w", err)
	}
	return counts, nil
}

func scanOutboxTask(row rowScanner) (domain.OutboxTask, error) {
	var (
		t         domain.OutboxTask
		payload   string
		createdAt string
		sentAt    sql.NullString
	)
	err := row.Scan(&t.ID, &t.OrderID, &t.UserID, (*string)(&t.Kind), &payload, (*string)(&t.Status), &t.RetryCount, &t.MaxRetries, &t.LastError, &createdAt, &sentAt)
	if err != nil {
		return domain.OutboxTask{}, err
	}
	t.Payload = []byte(payload)
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.OutboxTask{}, err
	}
	if t.SentAt, err = parseNullableTime(sentAt); err != nil {
		return domain.OutboxTask{}, err
	}
	return t, nil
}

func collectOutboxTasks(rows *sql.Rows) ([]domain.OutboxTask, error) {
	var tasks []domain.OutboxTask
	for rows.Next() {
		t, err := scanOutboxTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox tasks: %w", err)
	}
	return tasks, nil
}
