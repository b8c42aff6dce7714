package reputation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whalewatch/engine/internal/store"
)

type fakeClient struct {
	mu      sync.Mutex
	calls   map[string]int
	recs    map[string]store.ReputationRecord
	errs    map[string]error
	active  int
	maxSeen int
	delay   time.Duration
	release chan struct{} // when set, lookups block until closed
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls: make(map[string]int),
		recs:  make(map[string]store.ReputationRecord),
		errs:  make(map[string]error),
	}
}

func (f *fakeClient) set(actorID, tier string) {
	f.setAt(actorID, tier, time.Now())
}

func (f *fakeClient) setAt(actorID, tier string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[actorID] = store.ReputationRecord{ActorID: actorID, Tier: tier, CachedAt: at}
}

func (f *fakeClient) clearErr(actorID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.errs, actorID)
}

func (f *fakeClient) Lookup(ctx context.Context, actorID string) (store.ReputationRecord, error) {
	f.mu.Lock()
	f.calls[actorID]++
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	release := f.release
	delay := f.delay
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.active--
	rec, ok := f.recs[actorID]
	err := f.errs[actorID]
	f.mu.Unlock()

	if err != nil {
		return store.ReputationRecord{}, err
	}
	if !ok {
		return store.ReputationRecord{}, fmt.Errorf("unknown actor %s", actorID)
	}
	return rec, nil
}

func (f *fakeClient) callCount(actorID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[actorID]
}

type lockClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *lockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *lockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func passthroughReclassify(d store.Decision, tier string) (store.Decision, bool) {
	d.Classification.Action = store.ActionFollow
	return d, true
}

func startGate(t *testing.T, client Client, reclassify Reclassifier, opts Options) *Gate {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGate(client, reclassify, opts)
	g.Start(ctx)
	t.Cleanup(func() {
		cancel()
		g.Wait()
	})
	return g
}

func TestTierMissThenResolve(t *testing.T) {
	client := newFakeClient()
	client.set("alice", store.TierGold)
	g := startGate(t, client, passthroughReclassify, Options{})

	ctx := context.Background()

	_, ok := g.Tier(ctx, "alice")
	assert.False(t, ok, "first query is a miss")

	tier, ok := g.TierWait(ctx, "alice", 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, store.TierGold, tier)

	// Now cached.
	tier, ok = g.Tier(ctx, "alice")
	require.True(t, ok)
	assert.Equal(t, store.TierGold, tier)
}

func TestLookupMemoizedPerActor(t *testing.T) {
	client := newFakeClient()
	client.set("alice", store.TierSilver)
	g := startGate(t, client, passthroughReclassify, Options{})

	ctx := context.Background()

	g.Tier(ctx, "alice")
	tier, ok := g.TierWait(ctx, "alice", 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, store.TierSilver, tier)

	for i := 0; i < 5; i++ {
		g.Tier(ctx, "alice")
	}

	assert.Equal(t, 1, client.callCount("alice"))
}

func TestRetroactiveCorrection(t *testing.T) {
	client := newFakeClient()
	client.set("alice", store.TierHighRisk)
	clock := &lockClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := startGate(t, client, passthroughReclassify, Options{Now: clock.Now})

	ctx := context.Background()

	decided := clock.Now()
	clock.Advance(30 * time.Second)

	d := store.Decision{
		ID:        "d1",
		Event:     store.Event{ActorID: "alice"},
		DecidedAt: decided,
	}
	g.Track(ctx, d)

	select {
	case corrected := <-g.Retro():
		assert.True(t, corrected.Retroactive)
		assert.Equal(t, store.TierHighRisk, corrected.Tier)
		assert.Equal(t, store.ActionFollow, corrected.Classification.Action)
		assert.Equal(t, 30*time.Second, corrected.Delay)
	case <-time.After(2 * time.Second):
		t.Fatal("no retroactive decision emitted")
	}
}

func TestNoCorrectionWhenOutcomeUnchanged(t *testing.T) {
	client := newFakeClient()
	client.set("alice", store.TierStandard)
	unchanged := func(d store.Decision, tier string) (store.Decision, bool) {
		return d, false
	}
	g := startGate(t, client, unchanged, Options{})

	ctx := context.Background()
	g.Track(ctx, store.Decision{ID: "d1", Event: store.Event{ActorID: "alice"}})

	// Let the lookup resolve.
	_, ok := g.TierWait(ctx, "alice", 2*time.Second)
	require.True(t, ok)

	select {
	case d := <-g.Retro():
		t.Fatalf("unexpected retroactive decision %s", d.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestExpiredPendingNotCorrected(t *testing.T) {
	client := newFakeClient()
	client.set("alice", store.TierHighRisk)
	client.release = make(chan struct{})
	clock := &lockClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := startGate(t, client, passthroughReclassify, Options{
		Now:        clock.Now,
		PendingTTL: 10 * time.Minute,
	})

	ctx := context.Background()
	g.Track(ctx, store.Decision{ID: "d1", Event: store.Event{ActorID: "alice"}, DecidedAt: clock.Now()})

	// The ceiling passes while the lookup is still in flight.
	clock.Advance(11 * time.Minute)
	close(client.release)

	select {
	case d := <-g.Retro():
		t.Fatalf("expired pending decision %s was corrected", d.ID)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStaleTierRefreshedAfterSweep(t *testing.T) {
	client := newFakeClient()
	clock := &lockClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	client.setAt("alice", store.TierGold, clock.Now())
	g := startGate(t, client, passthroughReclassify, Options{
		Now:      clock.Now,
		CacheTTL: 6 * time.Hour,
	})

	ctx := context.Background()

	tier, ok := g.TierWait(ctx, "alice", 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, store.TierGold, tier)
	require.Equal(t, 1, client.callCount("alice"))

	// The record ages out; the actor's standing has changed in the meantime.
	clock.Advance(7 * time.Hour)
	client.setAt("alice", store.TierDiamond, clock.Now())
	g.Sweep()

	tier, ok = g.TierWait(ctx, "alice", 2*time.Second)
	require.True(t, ok, "eviction must schedule a fresh lookup")
	assert.Equal(t, store.TierDiamond, tier)
	assert.Equal(t, 2, client.callCount("alice"))
}

func TestFailedLookupRetriedOnNextQuery(t *testing.T) {
	client := newFakeClient()
	client.errs["ghost"] = fmt.Errorf("scraper down")
	g := startGate(t, client, passthroughReclassify, Options{})

	ctx := context.Background()

	_, ok := g.TierWait(ctx, "ghost", 2*time.Second)
	assert.False(t, ok)
	require.Equal(t, 1, client.callCount("ghost"))

	// The scorer recovers; the next query must not be parked behind the
	// failed attempt.
	client.clearErr("ghost")
	client.set("ghost", store.TierBronze)

	tier, ok := g.TierWait(ctx, "ghost", 2*time.Second)
	require.True(t, ok, "failure must not permanently consume the actor's lookup")
	assert.Equal(t, store.TierBronze, tier)
	assert.Equal(t, 2, client.callCount("ghost"))
}

func TestLookupFailureReleasesWaiters(t *testing.T) {
	client := newFakeClient()
	client.errs["ghost"] = fmt.Errorf("scraper down")
	g := startGate(t, client, passthroughReclassify, Options{})

	ctx := context.Background()
	_, ok := g.TierWait(ctx, "ghost", 2*time.Second)
	assert.False(t, ok)
}

func TestExternalCallsSerialized(t *testing.T) {
	client := newFakeClient()
	client.delay = 20 * time.Millisecond
	for i := 0; i < 5; i++ {
		client.set(fmt.Sprintf("actor%d", i), store.TierBronze)
	}
	g := startGate(t, client, passthroughReclassify, Options{Workers: 3})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		g.Tier(ctx, fmt.Sprintf("actor%d", i))
	}
	for i := 0; i < 5; i++ {
		_, ok := g.TierWait(ctx, fmt.Sprintf("actor%d", i), 3*time.Second)
		require.True(t, ok)
	}

	client.mu.Lock()
	maxSeen := client.maxSeen
	client.mu.Unlock()
	assert.Equal(t, 1, maxSeen, "external lookups must never run concurrently")
}
