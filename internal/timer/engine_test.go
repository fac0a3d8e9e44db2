package timer

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kpetrov/driplane/internal/domain"
	"github.com/kpetrov/driplane/internal/store"
	"github.com/kpetrov/driplane/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *store.Store, *testutil.ManualClock) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clk := testutil.NewManualClock(t0)
	eng := New(s, clk, testutil.NewFixedGenerator("timer"))

	require.NoError(t, s.CreateOrder(context.Background(), domain.Order{
		ID: "ord-1", UserID: "user-1", Status: domain.StatusNew,
		Payload:   json.RawMessage(`{"product_type":"song"}`),
		CreatedAt: t0, UpdatedAt: t0,
	}))
	return eng, s, clk
}

func TestCreateOrRefresh_CreatesThenRefreshes(t *testing.T) {
	eng, s, clk := newTestEngine(t)
	ctx := context.Background()

	created, err := eng.CreateOrRefresh(ctx, "user-1", "ord-1", domain.StepCollectingFacts, domain.ProductSong)
	require.NoError(t, err)
	require.True(t, created)

	// Re-entering the same step an hour later refreshes, never restarts.
	clk.Advance(time.Hour)
	created, err = eng.CreateOrRefresh(ctx, "user-1", "ord-1", domain.StepCollectingFacts, domain.ProductSong)
	require.NoError(t, err)
	require.False(t, created)

	timer, found, err := s.FindActiveTimer(ctx, "user-1", "ord-1", domain.StepCollectingFacts)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, t0, timer.StartedAt, "started_at must survive a refresh")
	require.Equal(t, t0.Add(time.Hour), timer.UpdatedAt)
}

func TestCreateOrRefresh_NewStepSupersedes(t *testing.T) {
	eng, s, clk := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.CreateOrRefresh(ctx, "user-1", "ord-1", domain.StepCollectingFacts, domain.ProductSong)
	require.NoError(t, err)

	clk.Advance(30 * time.Minute)
	created, err := eng.CreateOrRefresh(ctx, "user-1", "ord-1", domain.StepSongDemoSent, domain.ProductSong)
	require.NoError(t, err)
	require.True(t, created)

	count, err := s.CountActiveTimers(ctx, "user-1", "ord-1")
	require.NoError(t, err)
	require.Equal(t, 1, count, "superseding must leave exactly one active timer")

	timer, found, err := s.FindActiveTimer(ctx, "user-1", "ord-1", domain.StepSongDemoSent)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, t0.Add(30*time.Minute), timer.StartedAt, "a new step starts a fresh countdown")
}

func TestCreateOrRefresh_PairsAreIndependent(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, domain.Order{
		ID: "ord-2", UserID: "user-1", Status: domain.StatusNew,
		Payload:   json.RawMessage(`{"product_type":"book"}`),
		CreatedAt: t0, UpdatedAt: t0,
	}))

	_, err := eng.CreateOrRefresh(ctx, "user-1", "ord-1", domain.StepCollectingFacts, domain.ProductSong)
	require.NoError(t, err)
	_, err = eng.CreateOrRefresh(ctx, "user-1", "ord-2", domain.StepCollectingFacts, domain.ProductBook)
	require.NoError(t, err)

	// One user, two orders, one active timer each.
	for _, orderID := range []string{"ord-1", "ord-2"} {
		count, err := s.CountActiveTimers(ctx, "user-1", orderID)
		require.NoError(t, err)
		require.Equal(t, 1, count, "order %s", orderID)
	}
}

func TestDeactivateAll(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.CreateOrRefresh(ctx, "user-1", "ord-1", domain.StepCollectingFacts, domain.ProductSong)
	require.NoError(t, err)

	n, err := eng.DeactivateAll(ctx, "user-1", "ord-1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Idempotent.
	n, err = eng.DeactivateAll(ctx, "user-1", "ord-1")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
