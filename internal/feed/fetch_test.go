package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchGateSingleFlight(t *testing.T) {
	clock := newFakeClock()
	g := newFetchGate(500*time.Millisecond, clock.Now)

	require.NoError(t, g.acquire(PendingFetch{Direction: DirectionOlder}))
	require.Equal(t, FetchFetching, g.State())

	// Same work while busy is dropped, not queued.
	err := g.acquire(PendingFetch{Direction: DirectionOlder})
	require.ErrorIs(t, err, ErrFetchInFlight)

	queued := g.release()
	require.Nil(t, queued)
	require.Equal(t, FetchIdle, g.State())
}

func TestFetchGateQueuesOneDifferentRequest(t *testing.T) {
	clock := newFakeClock()
	g := newFetchGate(500*time.Millisecond, clock.Now)

	require.NoError(t, g.acquire(PendingFetch{Direction: DirectionOlder}))

	// A different request takes the single queued slot.
	require.ErrorIs(t, g.acquire(PendingFetch{Direction: DirectionNewer}), ErrFetchInFlight)
	// The slot holds one entry; later arrivals are dropped.
	require.ErrorIs(t, g.acquire(PendingFetch{Direction: DirectionContext, TargetID: "x"}), ErrFetchInFlight)

	queued := g.release()
	require.NotNil(t, queued)
	require.Equal(t, DirectionNewer, queued.Direction)
	require.Nil(t, g.release())
}

func TestFetchGateCooldown(t *testing.T) {
	clock := newFakeClock()
	g := newFetchGate(500*time.Millisecond, clock.Now)

	require.NoError(t, g.acquire(PendingFetch{Direction: DirectionOlder}))
	g.release()

	require.ErrorIs(t, g.acquire(PendingFetch{Direction: DirectionOlder}), ErrFetchCooldown)

	clock.Advance(501 * time.Millisecond)
	require.NoError(t, g.acquire(PendingFetch{Direction: DirectionOlder}))
}

func TestFetchGateCooldownWaivedForQueuedAndContext(t *testing.T) {
	clock := newFakeClock()
	g := newFetchGate(500*time.Millisecond, clock.Now)

	require.NoError(t, g.acquire(PendingFetch{Direction: DirectionOlder}))
	g.release()

	// A drained queue entry already waited out the active fetch.
	require.NoError(t, g.acquire(PendingFetch{Direction: DirectionNewer, fromQueue: true}))
	g.release()

	// Context jumps are user navigation, never damped.
	require.NoError(t, g.acquire(PendingFetch{Direction: DirectionContext, TargetID: "x"}))
}

func TestFetchGateBeginUpdate(t *testing.T) {
	clock := newFakeClock()
	g := newFetchGate(0, clock.Now)

	require.NoError(t, g.acquire(PendingFetch{Direction: DirectionOlder}))
	g.beginUpdate()
	require.Equal(t, FetchUpdating, g.State())
	g.release()
	require.Equal(t, FetchIdle, g.State())
}

func TestFetchOlderExtendsWindow(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	base := clock.Now().Add(-3 * time.Hour)
	store.add(seedItems(base, 120)...)

	backend, publisher := testBackend(store)
	defer publisher.Close()

	cfg := DefaultConfig()
	cfg.FetchCooldown = 0
	c, err := NewController(testConversation, testViewer, backend, cfg, WithNow(clock.Now))
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	require.Equal(t, 50, len(c.Items()))
	require.True(t, c.HasOlder())
	require.False(t, c.HasNewer())

	require.NoError(t, c.FetchOlder(context.Background()))
	items := c.Items()
	require.Equal(t, 100, len(items))
	require.True(t, c.HasOlder())

	require.NoError(t, c.FetchOlder(context.Background()))
	items = c.Items()
	require.Equal(t, 120, len(items))
	require.False(t, c.HasOlder(), "has-more flag is exact at history start")

	// The full window is in feed order.
	for i := 1; i < len(items); i++ {
		require.True(t, items[i-1].Before(&items[i]))
	}
}

func TestFetchOlderNoOpAtHistoryStart(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	store.add(seedItems(clock.Now().Add(-time.Hour), 10)...)

	backend, publisher := testBackend(store)
	defer publisher.Close()

	cfg := DefaultConfig()
	cfg.FetchCooldown = 0
	c, err := NewController(testConversation, testViewer, backend, cfg, WithNow(clock.Now))
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	require.False(t, c.HasOlder())
	queriesBefore := store.queryCalls
	require.NoError(t, c.FetchOlder(context.Background()))
	require.Equal(t, queriesBefore, store.queryCalls, "no store round trip when nothing is older")
}

func TestFetchCooldownSurfacesAsError(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	store.add(seedItems(clock.Now().Add(-3*time.Hour), 120)...)

	backend, publisher := testBackend(store)
	defer publisher.Close()

	c, err := NewController(testConversation, testViewer, backend, DefaultConfig(), WithNow(clock.Now))
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	require.NoError(t, c.FetchOlder(context.Background()))
	require.ErrorIs(t, c.FetchOlder(context.Background()), ErrFetchCooldown)

	clock.Advance(600 * time.Millisecond)
	require.NoError(t, c.FetchOlder(context.Background()))
}

func TestFetchFailureKeepsWindow(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore()
	store.add(seedItems(clock.Now().Add(-3*time.Hour), 120)...)

	backend, publisher := testBackend(store)
	defer publisher.Close()

	cfg := DefaultConfig()
	cfg.FetchCooldown = 0
	c, err := NewController(testConversation, testViewer, backend, cfg, WithNow(clock.Now))
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	before := c.Items()
	store.mu.Lock()
	store.queryErr = context.DeadlineExceeded
	store.mu.Unlock()

	require.Error(t, c.FetchOlder(context.Background()))
	require.Equal(t, before, c.Items())
	require.True(t, c.HasOlder(), "direction flag keeps its last-known value")
	require.Equal(t, FetchIdle, c.FetchState())

	// The next trigger retries cleanly once the store recovers.
	store.mu.Lock()
	store.queryErr = nil
	store.mu.Unlock()
	require.NoError(t, c.FetchOlder(context.Background()))
	require.Equal(t, 100, len(c.Items()))
}
