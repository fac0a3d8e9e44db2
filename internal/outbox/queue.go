// Package outbox is the durable, retried delivery queue.
//
// It decouples pushing a message to a user from the decision of why that
// message exists. Enqueued tasks survive restarts and are attempted until
// they succeed or exhaust their retry budget; exhausted tasks stay in the
// table as failed for manual inspection. The outbox does not deduplicate:
// the at-most-once guarantee around a trigger lives in the delivery log
// consulted before enqueuing.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kpetrov/driplane/internal/clock"
	"github.com/kpetrov/driplane/internal/domain"
	"github.com/kpetrov/driplane/internal/ids"
	"github.com/kpetrov/driplane/internal/store"
)

// Queue enqueues delivery tasks.
type Queue struct {
	store      *store.Store
	clock      clock.Clock
	ids        ids.Generator
	maxRetries int
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxRetries sets the retry budget for newly enqueued tasks.
// Default: domain.DefaultMaxRetries.
func WithMaxRetries(n int) QueueOption {
	return func(q *Queue) {
		q.maxRetries = n
	}
}

// NewQueue creates an outbox queue.
func NewQueue(s *store.Store, c clock.Clock, g ids.Generator, opts ...QueueOption) *Queue {
	q := &Queue{
		store:      s,
		clock:      c,
		ids:        g,
		maxRetries: domain.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue inserts a pending task and returns its ID. Always succeeds when
// the store is reachable; there is no validation beyond that, because a
// task that can be stored can be attempted.
func (q *Queue) Enqueue(ctx context.Context, orderID, userID string, kind domain.TaskKind, payload json.RawMessage) (string, error) {
	task := domain.OutboxTask{
		ID:         q.ids.NewID(),
		OrderID:    orderID,
		UserID:     userID,
		Kind:       kind,
		Payload:    payload,
		MaxRetries: q.maxRetries,
		CreatedAt:  q.clock.Now(),
	}
	if err := q.store.InsertOutboxTask(ctx, task); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	slog.Debug("outbox task enqueued",
		"task_id", task.ID,
		"order_id", orderID,
		"user_id", userID,
		"kind", kind,
	)
	return task.ID, nil
}
