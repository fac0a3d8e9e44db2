package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/kpetrov/driplane/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testOrder(id, userID string, status domain.OrderStatus) domain.Order {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:        id,
		UserID:    userID,
		Status:    status,
		Payload:   json.RawMessage(`{"product_type":"song","recipient":"Anna"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func mustCreateOrder(t *testing.T, s *Store, o domain.Order) {
	t.Helper()
	if err := s.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("CreateOrder() failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	s2.Close()
}

func TestGetOrder_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetOrder(context.Background(), "missing")
	if !domain.IsNotFound(err) {
		t.Fatalf("GetOrder(missing) error = %v, want NotFoundError", err)
	}
}

func TestCreateOrder_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	o := testOrder("ord-1", "user-1", domain.StatusNew)
	mustCreateOrder(t, s, o)

	// Second insert with a different status must be a no-op, not an error.
	dup := o
	dup.Status = domain.StatusPaid
	if err := s.CreateOrder(ctx, dup); err != nil {
		t.Fatalf("duplicate CreateOrder() failed: %v", err)
	}

	got, err := s.GetOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("GetOrder() failed: %v", err)
	}
	if got.Status != domain.StatusNew {
		t.Errorf("status = %q, want %q (duplicate insert must not overwrite)", got.Status, domain.StatusNew)
	}
}

func TestUpdateOrderStatus_WritesHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustCreateOrder(t, s, testOrder("ord-1", "user-1", domain.StatusNew))

	at := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	if err := s.UpdateOrderStatus(ctx, "ord-1", domain.StatusNew, domain.StatusCollectingFacts, at); err != nil {
		t.Fatalf("UpdateOrderStatus() failed: %v", err)
	}

	got, err := s.GetOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("GetOrder() failed: %v", err)
	}
	if got.Status != domain.StatusCollectingFacts {
		t.Errorf("status = %q, want %q", got.Status, domain.StatusCollectingFacts)
	}

	history, err := s.ListStatusHistory(ctx, "ord-1")
	if err != nil {
		t.Fatalf("ListStatusHistory() failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].OldStatus != domain.StatusNew || history[0].NewStatus != domain.StatusCollectingFacts {
		t.Errorf("history = %q -> %q, want %q -> %q",
			history[0].OldStatus, history[0].NewStatus, domain.StatusNew, domain.StatusCollectingFacts)
	}
	if !history[0].ChangedAt.Equal(at) {
		t.Errorf("changed_at = %v, want %v", history[0].ChangedAt, at)
	}
}

func TestUpdateOrderStatus_NotFound(t *testing.T) {
	s := openTestStore(t)

	err := s.UpdateOrderStatus(context.Background(), "missing", domain.StatusNew, domain.StatusPaid, time.Now())
	if !domain.IsNotFound(err) {
		t.Fatalf("UpdateOrderStatus(missing) error = %v, want NotFoundError", err)
	}
}

func TestInsertTimer_DeactivatesPrevious(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateOrder(t, s, testOrder("ord-1", "user-1", domain.StatusNew))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, step := range []domain.StepKey{domain.StepNew, domain.StepCollectingFacts, domain.StepAwaitingPayment} {
		timer := domain.StepTimer{
			ID:        fmt.Sprintf("timer-%d", i),
			UserID:    "user-1",
			OrderID:   "ord-1",
			Step:      step,
			Product:   domain.ProductSong,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.InsertTimer(ctx, timer); err != nil {
			t.Fatalf("InsertTimer(%d) failed: %v", i, err)
		}

		count, err := s.CountActiveTimers(ctx, "user-1", "ord-1")
		if err != nil {
			t.Fatalf("CountActiveTimers() failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("after insert %d: active timers = %d, want 1", i, count)
		}
	}

	// The survivor must be the most recent one.
	timer, found, err := s.FindActiveTimer(ctx, "user-1", "ord-1", domain.StepAwaitingPayment)
	if err != nil || !found {
		t.Fatalf("FindActiveTimer() = (%v, %v), want found", err, found)
	}
	if timer.ID != "timer-2" {
		t.Errorf("active timer = %q, want timer-2", timer.ID)
	}
}

func TestTouchTimer_PreservesStartedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateOrder(t, s, testOrder("ord-1", "user-1", domain.StatusNew))

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timer := domain.StepTimer{
		ID:        "timer-1",
		UserID:    "user-1",
		OrderID:   "ord-1",
		Step:      domain.StepCollectingFacts,
		Product:   domain.ProductUnknown,
		StartedAt: started,
		UpdatedAt: started,
	}
	if err := s.InsertTimer(ctx, timer); err != nil {
		t.Fatalf("InsertTimer() failed: %v", err)
	}

	later := started.Add(45 * time.Minute)
	if err := s.TouchTimer(ctx, "timer-1", domain.ProductSong, later); err != nil {
		t.Fatalf("TouchTimer() failed: %v", err)
	}

	got, found, err := s.FindActiveTimer(ctx, "user-1", "ord-1", domain.StepCollectingFacts)
	if err != nil || !found {
		t.Fatalf("FindActiveTimer() = (%v, %v), want found", err, found)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v (refresh must not reset the countdown)", got.StartedAt, started)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, later)
	}
	if got.Product != domain.ProductSong {
		t.Errorf("product = %q, want back-filled %q", got.Product, domain.ProductSong)
	}

	// A second touch with a different product must not overwrite the known one.
	if err := s.TouchTimer(ctx, "timer-1", domain.ProductBook, later.Add(time.Minute)); err != nil {
		t.Fatalf("second TouchTimer() failed: %v", err)
	}
	got, _, err = s.FindActiveTimer(ctx, "user-1", "ord-1", domain.StepCollectingFacts)
	if err != nil {
		t.Fatalf("FindActiveTimer() failed: %v", err)
	}
	if got.Product != domain.ProductSong {
		t.Errorf("product = %q, want %q (known product must not be overwritten)", got.Product, domain.ProductSong)
	}
}

func TestDeactivateTimers_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateOrder(t, s, testOrder("ord-1", "user-1", domain.StatusNew))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timer := domain.StepTimer{
		ID: "timer-1", UserID: "user-1", OrderID: "ord-1",
		Step: domain.StepNew, StartedAt: now, UpdatedAt: now,
	}
	if err := s.InsertTimer(ctx, timer); err != nil {
		t.Fatalf("InsertTimer() failed: %v", err)
	}

	n, err := s.DeactivateTimers(ctx, "user-1", "ord-1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("DeactivateTimers() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("first deactivate affected %d, want 1", n)
	}

	n, err = s.DeactivateTimers(ctx, "user-1", "ord-1", now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("second DeactivateTimers() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second deactivate affected %d, want 0", n)
	}
}
