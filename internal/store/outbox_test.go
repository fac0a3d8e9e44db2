package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/kpetrov/driplane/internal/domain"
)

func testTask(id string, createdAt time.Time) domain.OutboxTask {
	return domain.OutboxTask{
		ID:         id,
		OrderID:    "ord-1",
		UserID:     "user-1",
		Kind:       domain.TaskText,
		Payload:    json.RawMessage(`{"text":"hello"}`),
		MaxRetries: 3,
		CreatedAt:  createdAt,
	}
}

func TestListReadyOutboxTasks_OldestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Insert newest first to prove ordering comes from created_at.
	for i := 2; i >= 0; i-- {
		task := testTask(fmt.Sprintf("task-%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := s.InsertOutboxTask(ctx, task); err != nil {
			t.Fatalf("InsertOutboxTask() failed: %v", err)
		}
	}

	ready, err := s.ListReadyOutboxTasks(ctx, 10)
	if err != nil {
		t.Fatalf("ListReadyOutboxTasks() failed: %v", err)
	}
	if len(ready) != 3 {
		t.Fatalf("ready tasks = %d, want 3", len(ready))
	}
	for i, task := range ready {
		want := fmt.Sprintf("task-%d", i)
		if task.ID != want {
			t.Errorf("ready[%d] = %q, want %q", i, task.ID, want)
		}
	}
}

func TestListReadyOutboxTasks_ExcludesExhaustedAndTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"fresh", "exhausted", "sent", "failed"} {
		if err := s.InsertOutboxTask(ctx, testTask(id, base)); err != nil {
			t.Fatalf("InsertOutboxTask(%s) failed: %v", id, err)
		}
	}

	// Exhaust one task's retry budget without moving it to failed yet.
	for i := 0; i < 3; i++ {
		if err := s.IncrementOutboxRetry(ctx, "exhausted", "boom"); err != nil {
			t.Fatalf("IncrementOutboxRetry() failed: %v", err)
		}
	}
	if err := s.MarkOutboxTaskSent(ctx, "sent", base.Add(time.Minute)); err != nil {
		t.Fatalf("MarkOutboxTaskSent() failed: %v", err)
	}
	if err := s.MarkOutboxTaskFailed(ctx, "failed", "blocked"); err != nil {
		t.Fatalf("MarkOutboxTaskFailed() failed: %v", err)
	}

	ready, err := s.ListReadyOutboxTasks(ctx, 10)
	if err != nil {
		t.Fatalf("ListReadyOutboxTasks() failed: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != "fresh" {
		t.Fatalf("ready = %+v, want only the fresh task", ready)
	}
}

func TestIncrementOutboxRetry_Monotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertOutboxTask(ctx, testTask("task-1", time.Now().UTC())); err != nil {
		t.Fatalf("InsertOutboxTask() failed: %v", err)
	}

	for want := 1; want <= 3; want++ {
		if err := s.IncrementOutboxRetry(ctx, "task-1", fmt.Sprintf("attempt %d", want)); err != nil {
			t.Fatalf("IncrementOutboxRetry() failed: %v", err)
		}
		task, err := s.GetOutboxTask(ctx, "task-1")
		if err != nil {
			t.Fatalf("GetOutboxTask() failed: %v", err)
		}
		if task.RetryCount != want {
			t.Errorf("retry_count = %d, want %d", task.RetryCount, want)
		}
	}
}

func TestTerminalStatesAreTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.InsertOutboxTask(ctx, testTask("task-1", at)); err != nil {
		t.Fatalf("InsertOutboxTask() failed: %v", err)
	}
	if err := s.MarkOutboxTaskSent(ctx, "task-1", at.Add(time.Minute)); err != nil {
		t.Fatalf("MarkOutboxTaskSent() failed: %v", err)
	}

	// No write may move a sent task anywhere else.
	if err := s.MarkOutboxTaskFailed(ctx, "task-1", "late failure"); err != nil {
		t.Fatalf("MarkOutboxTaskFailed() errored: %v", err)
	}
	if err := s.IncrementOutboxRetry(ctx, "task-1", "late retry"); err != nil {
		t.Fatalf("IncrementOutboxRetry() errored: %v", err)
	}

	task, err := s.GetOutboxTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetOutboxTask() failed: %v", err)
	}
	if task.Status != domain.TaskSent {
		t.Errorf("status = %q, want %q", task.Status, domain.TaskSent)
	}
	if task.RetryCount != 0 {
		t.Errorf("retry_count = %d, want 0", task.RetryCount)
	}
	if task.SentAt == nil {
		t.Error("sent_at is nil, want recorded send time")
	}
}

func TestCountOutboxTasksByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.InsertOutboxTask(ctx, testTask(id, at)); err != nil {
			t.Fatalf("InsertOutboxTask() failed: %v", err)
		}
	}
	if err := s.MarkOutboxTaskSent(ctx, "a", at.Add(time.Minute)); err != nil {
		t.Fatalf("MarkOutboxTaskSent() failed: %v", err)
	}

	counts, err := s.CountOutboxTasksByStatus(ctx)
	if err != nil {
		t.Fatalf("CountOutboxTasksByStatus() failed: %v", err)
	}
	if counts[domain.TaskPending] != 2 || counts[domain.TaskSent] != 1 {
		t.Errorf("counts = %v, want 2 pending and 1 sent", counts)
	}
}
