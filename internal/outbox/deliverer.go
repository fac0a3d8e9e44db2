package outbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kpetrov/driplane/internal/clock"
	"github.com/kpetrov/driplane/internal/domain"
	"github.com/kpetrov/driplane/internal/store"
)

// DefaultBatchSize caps how many tasks one delivery pass picks up.
const DefaultBatchSize = 50

// DeliveryReport summarizes one delivery pass for telemetry and tests.
type DeliveryReport struct {
	Attempted int
	Sent      int
	Retried   int
	Failed    int
}

// Deliverer drains ready outbox tasks through the transport.
//
// Task state machine applied here:
//
//	pending -> sent      transport accepted the payload
//	pending -> pending   transient failure, retries remain (retry_count+1)
//	pending -> failed    permanent failure, or retries exhausted
//
// One task's failure never aborts the rest of the batch.
type Deliverer struct {
	store     *store.Store
	transport Transport
	clock     clock.Clock
	batchSize int
}

// DelivererOption configures a Deliverer.
type DelivererOption func(*Deliverer)

// WithBatchSize sets how many tasks one pass picks up.
func WithBatchSize(n int) DelivererOption {
	return func(d *Deliverer) {
		d.batchSize = n
	}
}

// NewDeliverer creates a deliverer.
func NewDeliverer(s *store.Store, t Transport, c clock.Clock, opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		store:     s,
		transport: t,
		clock:     c,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunOnce performs one delivery pass and returns what happened.
// Returns an error only when the ready-task query itself fails; individual
// delivery outcomes are isolated per task and reported, not propagated.
func (d *Deliverer) RunOnce(ctx context.Context) (DeliveryReport, error) {
	var report DeliveryReport

	tasks, err := d.store.ListReadyOutboxTasks(ctx, d.batchSize)
	if err != nil {
		return report, fmt.Errorf("delivery pass: %w", err)
	}

	for _, task := range tasks {
		report.Attempted++
		d.deliverOne(ctx, task, &report)
	}

	if report.Attempted > 0 {
		slog.Info("delivery pass finished",
			"attempted", report.Attempted,
			"sent", report.Sent,
			"retried", report.Retried,
			"failed", report.Failed,
		)
	}
	return report, nil
}

// deliverOne attempts one task and records the outcome.
func (d *Deliverer) deliverOne(ctx context.Context, task domain.OutboxTask, report *DeliveryReport) {
	err := d.transport.Send(ctx, task.UserID, task.Payload)
	if err == nil {
		if markErr := d.store.MarkOutboxTaskSent(ctx, task.ID, d.clock.Now()); markErr != nil {
			// The send happened but the bookkeeping failed; the task will be
			// retried and the transport may deliver twice. Acceptable:
			// delivery is at-least-once by contract.
			slog.Error("mark sent failed after successful delivery",
				"error", markErr,
				"task_id", task.ID,
			)
			return
		}
		report.Sent++
		slog.Debug("outbox task sent", "task_id", task.ID, "user_id", task.UserID)
		return
	}

	if IsPermanent(err) {
		if markErr := d.store.MarkOutboxTaskFailed(ctx, task.ID, err.Error()); markErr != nil {
			slog.Error("mark failed errored", "error", markErr, "task_id", task.ID)
			return
		}
		report.Failed++
		slog.Warn("outbox task permanently failed",
			"task_id", task.ID,
			"user_id", task.UserID,
			"error", err,
		)
		return
	}

	// Transient failure: bump the retry counter. When that exhausts the
	// budget the task moves to failed now rather than lingering pending.
	if markErr := d.store.IncrementOutboxRetry(ctx, task.ID, err.Error()); markErr != nil {
		slog.Error("increment retry errored", "error", markErr, "task_id", task.ID)
		return
	}

	if task.RetryCount+1 >= task.MaxRetries {
		if markErr := d.store.MarkOutboxTaskFailed(ctx, task.ID, err.Error()); markErr != nil {
			slog.Error("mark failed errored", "error", markErr, "task_id", task.ID)
			return
		}
		report.Failed++
		slog.Warn("outbox task failed after exhausting retries",
			"task_id", task.ID,
			"user_id", task.UserID,
			"retries", task.RetryCount+1,
			"error", err,
		)
		return
	}

	report.Retried++
	slog.Debug("outbox task delivery failed, will retry",
		"task_id", task.ID,
		"retry_count", task.RetryCount+1,
		"max_retries", task.MaxRetries,
		"error", err,
	)
}
