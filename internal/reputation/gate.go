package reputation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/whalewatch/engine/internal/store"
)

// Reclassifier re-runs classification for a decision once the actor's tier
// is known. It returns the corrected decision and whether the correction is
// worth emitting. It must be pure: it runs on the coordinator goroutine.
type Reclassifier func(d store.Decision, tier string) (store.Decision, bool)

// Options configure the Gate.
type Options struct {
	Workers    int
	CacheTTL   time.Duration
	PendingTTL time.Duration
	Now        func() time.Time
}

// Gate resolves actor tiers without blocking the engine loop. A single
// coordinator goroutine owns the cache and the pending-decision map; workers
// perform the slow lookups, serialized through a size-1 gate so the external
// scorer never sees concurrent sessions. At most one lookup per actor is in
// flight or cached at a time; a failed lookup or a TTL eviction re-arms the
// actor for a fresh one.
type Gate struct {
	client     Client
	reclassify Reclassifier
	opts       Options

	queries chan tierQuery
	tracks  chan store.Decision
	sweeps  chan struct{}
	jobs    chan string
	results chan lookupResult
	retro   chan store.Decision

	wg sync.WaitGroup
}

type tierQuery struct {
	actorID string
	waitFor bool
	reply   chan tierAnswer
}

type tierAnswer struct {
	tier string
	ok   bool
}

type lookupResult struct {
	actorID string
	rec     store.ReputationRecord
	err     error
}

type pendingDecision struct {
	decision store.Decision
	at       time.Time
}

// NewGate creates a Gate. Start must be called before use.
func NewGate(client Client, reclassify Reclassifier, opts Options) *Gate {
	if opts.Workers < 1 {
		opts.Workers = 3
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 6 * time.Hour
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Gate{
		client:     client,
		reclassify: reclassify,
		opts:       opts,
		queries:    make(chan tierQuery),
		tracks:     make(chan store.Decision),
		sweeps:     make(chan struct{}),
		jobs:       make(chan string, 1024),
		results:    make(chan lookupResult),
		retro:      make(chan store.Decision, 64),
	}
}

// Start launches the coordinator and workers. They stop when ctx is done.
func (g *Gate) Start(ctx context.Context) {
	g.wg.Add(1)
	go g.coordinate(ctx)

	sem := make(chan struct{}, 1)
	for i := 0; i < g.opts.Workers; i++ {
		g.wg.Add(1)
		go g.work(ctx, sem)
	}
}

// Wait blocks until the coordinator and workers have exited.
func (g *Gate) Wait() {
	g.wg.Wait()
}

// Retro delivers corrected decisions issued after late tier resolutions.
func (g *Gate) Retro() <-chan store.Decision {
	return g.retro
}

// Tier returns the cached tier for an actor. A miss schedules a background
// lookup (at most one per actor) and returns ok=false immediately.
func (g *Gate) Tier(ctx context.Context, actorID string) (string, bool) {
	reply := make(chan tierAnswer, 1)
	select {
	case g.queries <- tierQuery{actorID: actorID, reply: reply}:
	case <-ctx.Done():
		return "", false
	}
	select {
	case ans := <-reply:
		return ans.tier, ans.ok
	case <-ctx.Done():
		return "", false
	}
}

// TierWait behaves like Tier but, on a miss, waits up to timeout for the
// in-flight lookup to resolve before giving up.
func (g *Gate) TierWait(ctx context.Context, actorID string, timeout time.Duration) (string, bool) {
	if timeout <= 0 {
		return g.Tier(ctx, actorID)
	}

	reply := make(chan tierAnswer, 1)
	select {
	case g.queries <- tierQuery{actorID: actorID, waitFor: true, reply: reply}:
	case <-ctx.Done():
		return "", false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ans := <-reply:
		return ans.tier, ans.ok
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// Track registers a decision made with an unknown tier so it can be
// corrected when the lookup lands. Pending decisions expire after the
// configured ceiling.
func (g *Gate) Track(ctx context.Context, d store.Decision) {
	select {
	case g.tracks <- d:
	case <-ctx.Done():
	}
}

// Sweep asks the coordinator to expire stale cache entries and pending
// decisions. Called from the engine's periodic maintenance pass.
func (g *Gate) Sweep() {
	select {
	case g.sweeps <- struct{}{}:
	default:
	}
}

// coordinate is the actor loop owning all gate state.
func (g *Gate) coordinate(ctx context.Context) {
	defer g.wg.Done()

	cache := make(map[string]store.ReputationRecord)
	pending := make(map[string][]pendingDecision)
	requested := make(map[string]bool)
	waiters := make(map[string][]chan tierAnswer)

	schedule := func(actorID string) {
		if requested[actorID] {
			return
		}
		select {
		case g.jobs <- actorID:
			requested[actorID] = true
		default:
			slog.Warn("reputation_queue_full", "actor", actorID)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case q := <-g.queries:
			if rec, ok := cache[q.actorID]; ok && rec.Fresh(g.opts.Now(), g.opts.CacheTTL) {
				q.reply <- tierAnswer{tier: rec.Tier, ok: true}
				continue
			}
			schedule(q.actorID)
			if q.waitFor && !requested[q.actorID] {
				// Queue overflow: nothing will ever answer.
				q.reply <- tierAnswer{}
				continue
			}
			if q.waitFor {
				waiters[q.actorID] = append(waiters[q.actorID], q.reply)
			} else {
				q.reply <- tierAnswer{}
			}

		case d := <-g.tracks:
			actorID := d.Event.ActorID
			if rec, ok := cache[actorID]; ok && rec.Fresh(g.opts.Now(), g.opts.CacheTTL) {
				// Raced with a lookup that just landed.
				g.emitCorrection(d, rec.Tier)
				continue
			}
			schedule(actorID)
			pending[actorID] = append(pending[actorID], pendingDecision{decision: d, at: g.opts.Now()})

		case res := <-g.results:
			if res.err != nil {
				slog.Warn("reputation_lookup_failed", "actor", res.actorID, "error", res.err)
				for _, w := range waiters[res.actorID] {
					w <- tierAnswer{}
				}
				delete(waiters, res.actorID)
				delete(pending, res.actorID)
				// Allow the next event from this actor to retry.
				delete(requested, res.actorID)
				continue
			}

			cache[res.actorID] = res.rec
			slog.Info("reputation_resolved",
				"actor", res.actorID,
				"tier", res.rec.Tier,
				"score", res.rec.Score,
			)

			for _, w := range waiters[res.actorID] {
				w <- tierAnswer{tier: res.rec.Tier, ok: true}
			}
			delete(waiters, res.actorID)

			for _, p := range pending[res.actorID] {
				if g.opts.Now().Sub(p.at) > g.opts.PendingTTL {
					continue
				}
				g.emitCorrection(p.decision, res.rec.Tier)
			}
			delete(pending, res.actorID)

		case <-g.sweeps:
			now := g.opts.Now()
			for id, rec := range cache {
				if !rec.Fresh(now, g.opts.CacheTTL) {
					delete(cache, id)
					// Eviction must force a fresh lookup on the actor's
					// next event, so the memo goes with the record.
					delete(requested, id)
				}
			}
			for id, list := range pending {
				kept := list[:0]
				for _, p := range list {
					if now.Sub(p.at) <= g.opts.PendingTTL {
						kept = append(kept, p)
					}
				}
				if len(kept) == 0 {
					delete(pending, id)
				} else {
					pending[id] = kept
				}
			}
		}
	}
}

// emitCorrection reclassifies a tracked decision under the resolved tier and
// publishes it when the outcome changed. Runs on the coordinator goroutine.
func (g *Gate) emitCorrection(d store.Decision, tier string) {
	corrected, changed := g.reclassify(d, tier)
	if !changed {
		return
	}

	corrected.Tier = tier
	corrected.Retroactive = true
	corrected.Delay = g.opts.Now().Sub(d.DecidedAt)
	corrected.DecidedAt = g.opts.Now()

	select {
	case g.retro <- corrected:
	default:
		slog.Warn("retro_channel_full", "decision", corrected.ID)
	}
}

// work consumes lookup jobs. The size-1 semaphore serializes external calls
// across all workers.
func (g *Gate) work(ctx context.Context, sem chan struct{}) {
	defer g.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case actorID := <-g.jobs:
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			rec, err := g.client.Lookup(ctx, actorID)
			<-sem

			select {
			case g.results <- lookupResult{actorID: actorID, rec: rec, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}
