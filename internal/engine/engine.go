// Package engine runs the detection loop: poll, deduplicate, evaluate,
// classify, and dispatch decisions.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whalewatch/engine/internal/classifier"
	"github.com/whalewatch/engine/internal/config"
	"github.com/whalewatch/engine/internal/dedup"
	"github.com/whalewatch/engine/internal/detector"
	"github.com/whalewatch/engine/internal/ingest"
	"github.com/whalewatch/engine/internal/metrics"
	"github.com/whalewatch/engine/internal/reputation"
	"github.com/whalewatch/engine/internal/store"
)

const (
	// MinCycleSleep bounds how fast cycles can spin when polling runs long.
	MinCycleSleep = 500 * time.Millisecond

	eventChannelBuffer    = 1000
	decisionChannelBuffer = 100
)

// Engine owns the detection pipeline. All trackers and caches are confined
// to the loop goroutine; only the reputation gate runs its own actor.
type Engine struct {
	cfg *config.Config

	poller       *ingest.Poller
	listener     *ingest.Listener
	volumes      *ingest.VolumeClient
	seen         *dedup.SeenStore
	notability   *detector.NotabilityEvaluator
	filter       *detector.TradeFilter
	agreement    *detector.AgreementTracker
	coordination *detector.CoordinationTracker
	classify     *classifier.Classifier
	gate         *reputation.Gate
	tracker      *metrics.Tracker

	events    chan store.Event
	decisions chan store.Decision
	now       func() time.Time
}

// New wires an Engine from configuration. The reputation gate is optional:
// without a scorer command every decision is made at the unknown tier and
// never corrected.
func New(cfg *config.Config) (*Engine, error) {
	rules, watchlists, err := classifier.LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		poller:  ingest.NewPoller(cfg.DataAPIURL, cfg.PollLimit),
		volumes: ingest.NewVolumeClient(cfg.GammaAPIURL, cfg.MarketCacheMax),
		seen:    dedup.NewSeenStore(cfg.SeenCapacity),
		notability: detector.NewNotabilityEvaluator(detector.NotabilityConfig{
			AbsoluteUSD:   cfg.WhaleValueUSD,
			NichePct:      cfg.NicheMarketPct,
			NicheFloorUSD: cfg.NicheFloorUSD,
		}),
		filter: detector.NewTradeFilter(detector.FilterConfig{
			MinPrice:        cfg.MinCopyPrice,
			MaxPrice:        cfg.MaxCopyPrice,
			MinLiquidityUSD: cfg.MinLiquidityUSD,
		}),
		classify:  classifier.New(rules, watchlists, cfg.CapitalFloorUSD),
		tracker:   metrics.NewTracker(),
		events:    make(chan store.Event, eventChannelBuffer),
		decisions: make(chan store.Decision, decisionChannelBuffer),
		now:       time.Now,
	}

	e.agreement = detector.NewAgreementTracker(cfg.AgreementWindow, e.now)
	e.coordination = detector.NewCoordinationTracker(
		cfg.CoordinationRetention, cfg.CoordinationWindow, 3, e.now)

	if cfg.ReputationCommand != "" {
		client, err := reputation.NewCommandClient(cfg.ReputationCommand, 0)
		if err != nil {
			return nil, err
		}
		e.gate = reputation.NewGate(client, e.reclassify, reputation.Options{
			Workers:    cfg.ReputationWorkers,
			CacheTTL:   cfg.ReputationTTL,
			PendingTTL: cfg.PendingTTL,
		})
	}

	if cfg.EnableWSListener {
		e.listener = ingest.NewListener(cfg.FeedWSURL, e.events)
	}

	active := e.classify.Rules()
	for _, r := range active {
		slog.Debug("signal_rule",
			"id", r.ID,
			"action", string(r.Action),
			"priority", r.Priority,
			"win_rate", r.WinRate,
		)
	}
	slog.Info("rules_loaded", "count", len(active), "path", orDefault(cfg.RulesPath))

	return e, nil
}

func orDefault(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}

// Decisions delivers both first-pass and retroactive decisions.
func (e *Engine) Decisions() <-chan store.Decision {
	return e.decisions
}

// Tracker exposes the session statistics.
func (e *Engine) Tracker() *metrics.Tracker {
	return e.tracker
}

// Run executes the detection loop until ctx is cancelled, then flushes the
// dedup snapshot.
func (e *Engine) Run(ctx context.Context) error {
	e.seen.Load(e.cfg.SnapshotPath, e.now(), e.cfg.SnapshotMaxAge)

	if e.gate != nil {
		e.gate.Start(ctx)
		go e.forwardCorrections(ctx)
	}
	if e.listener != nil {
		e.listener.Start(ctx)
		defer e.listener.Stop()
	}

	slog.Info("engine_started",
		"poll_interval", e.cfg.PollInterval,
		"whale_value_usd", e.cfg.WhaleValueUSD,
		"seen_capacity", e.cfg.SeenCapacity,
		"reputation_enabled", e.gate != nil,
	)

	cycle := 0
	for {
		select {
		case <-ctx.Done():
			return e.shutdown()
		default:
		}

		start := e.now()
		cycle++

		e.runCycle(ctx, cycle)

		if e.cfg.SnapshotEvery > 0 && cycle%e.cfg.SnapshotEvery == 0 {
			if err := e.seen.Save(e.cfg.SnapshotPath, e.now()); err != nil {
				slog.Warn("snapshot_save_failed", "error", err)
			}
		}
		if e.cfg.MaintenanceEvery > 0 && cycle%e.cfg.MaintenanceEvery == 0 {
			e.maintain(cycle)
		}

		if !e.sleep(ctx, start) {
			return e.shutdown()
		}
	}
}

// runCycle performs one poll-and-process pass.
func (e *Engine) runCycle(ctx context.Context, cycle int) {
	trades, err := e.poller.Fetch(ctx)
	if err != nil {
		slog.Warn("cycle_skipped", "cycle", cycle, "error", err)
		return
	}

	now := e.now()
	fresh := 0
	for _, t := range trades {
		ev := ingest.ToEvent(t, now)
		if !e.seen.Admit(ev, now, e.cfg.EventAgeWindow) {
			continue
		}
		fresh++
		e.process(ctx, ev)
	}

	// Live feed events ride the same pipeline.
	e.drainLive(ctx)

	slog.Debug("cycle_done", "cycle", cycle, "trades", len(trades), "fresh", fresh)
}

// drainLive admits any events the WebSocket listener queued since the last
// cycle.
func (e *Engine) drainLive(ctx context.Context) {
	for {
		select {
		case ev := <-e.events:
			if e.seen.Admit(ev, e.now(), e.cfg.EventAgeWindow) {
				e.process(ctx, ev)
			}
		default:
			return
		}
	}
}

// process runs one admitted event through notability, quality filtering,
// windowed aggregation, classification, and dispatch.
func (e *Engine) process(ctx context.Context, ev store.Event) {
	volume := e.volumes.Volume(ctx, ev.MarketSlug, ev.MarketID)

	n := e.notability.Evaluate(ev, volume)
	if !n.Notable {
		return
	}
	e.tracker.RecordDetected(ev)

	if ok, reason := e.filter.Check(ev, volume); !ok {
		e.tracker.RecordIgnored()
		slog.Info("whale_ignored",
			"market", ev.MarketTitle,
			"capital_usd", ev.CapitalUSD,
			"reason", reason,
		)
		return
	}
	e.tracker.RecordCaptured(ev)

	agreement := e.agreement.Record(ev)
	coordination := e.coordination.Record(ev)
	entries := e.agreement.Entries(ev.MarketID)

	tier, known := "", false
	if e.gate != nil {
		tier, known = e.gate.Tier(ctx, ev.ActorID)
	}

	cls := e.classify.Classify(classifier.Input{
		MarketTitle:  ev.MarketTitle,
		Tier:         tier,
		Price:        ev.Price,
		Niche:        n.Niche,
		CapitalUSD:   ev.CapitalUSD,
		ActorName:    ev.ActorName,
		OppositeTier: e.oppositeTier(ctx, ev, entries),
	})

	// For actionable first passes at an unknown tier, give the in-flight
	// lookup a short window to land before committing.
	if !known && e.gate != nil && cls.Action != store.ActionIgnore && e.cfg.ReputationWait > 0 {
		if t, ok := e.gate.TierWait(ctx, ev.ActorID, e.cfg.ReputationWait); ok {
			tier, known = t, true
			cls = e.classify.Classify(classifier.Input{
				MarketTitle:  ev.MarketTitle,
				Tier:         tier,
				Price:        ev.Price,
				Niche:        n.Niche,
				CapitalUSD:   ev.CapitalUSD,
				ActorName:    ev.ActorName,
				OppositeTier: e.oppositeTier(ctx, ev, entries),
			})
		}
	}

	// Crowd signals outrank the individual read.
	if consensus, ok := classifier.EvaluateConsensus(ev.MarketTitle, entries); ok {
		if consensus.Category == "" {
			consensus.Category = cls.Category
		}
		consensus.Warnings = append(consensus.Warnings, cls.Warnings...)
		cls = consensus
	}

	decision := store.Decision{
		ID:             uuid.New().String(),
		Event:          ev,
		Classification: cls,
		Tier:           tier,
		Niche:          n.Niche,
		PctOfMarket:    n.PctOfMarket,
		MarketVolume:   volume,
		Agreement:      agreement,
		Coordination:   coordination,
		DecidedAt:      e.now(),
	}

	if cls.SignalID != "NONE" && cls.SignalID != "" {
		e.tracker.RecordSignal(cls.SignalID)
	}

	// Unknown tier: remember the decision so a late lookup can correct it.
	if !known && e.gate != nil {
		e.gate.Track(ctx, decision)
	}

	e.emit(decision)
}

// oppositeTier reports a HIGH RISK tier held by any live actor on the other
// side of the event's market, for the both-sides conflict rule.
func (e *Engine) oppositeTier(ctx context.Context, ev store.Event, entries []store.ConsensusEntry) string {
	if e.gate == nil {
		return ""
	}

	side := ev.Side + " " + ev.Outcome
	for _, entry := range entries {
		if entry.Side == side || entry.ActorID == ev.ActorID {
			continue
		}
		if tier, ok := e.gate.Tier(ctx, entry.ActorID); ok &&
			strings.Contains(strings.ToUpper(tier), "HIGH RISK") {
			return tier
		}
	}
	return ""
}

// reclassify re-runs classification for a tracked decision under a freshly
// resolved tier. The correction is emitted only when the recommendation
// actually moved.
func (e *Engine) reclassify(d store.Decision, tier string) (store.Decision, bool) {
	cls := e.classify.Classify(classifier.Input{
		MarketTitle: d.Event.MarketTitle,
		Tier:        tier,
		Price:       d.Event.Price,
		Niche:       d.Niche,
		CapitalUSD:  d.Event.CapitalUSD,
		ActorName:   d.Event.ActorName,
	})

	changed := cls.Action != d.Classification.Action || cls.SignalID != d.Classification.SignalID
	d.Classification = cls
	return d, changed
}

// forwardCorrections moves retroactive decisions from the gate into the
// main decision stream.
func (e *Engine) forwardCorrections(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-e.gate.Retro():
			e.tracker.RecordRetroactive()
			if d.Classification.SignalID != "NONE" && d.Classification.SignalID != "" {
				e.tracker.RecordSignal(d.Classification.SignalID)
			}
			e.emit(d)
		}
	}
}

// emit publishes a decision without ever blocking the loop.
func (e *Engine) emit(d store.Decision) {
	select {
	case e.decisions <- d:
	default:
		slog.Warn("decision_channel_full", "decision", d.ID, "market", d.Event.MarketTitle)
	}
}

// maintain runs the periodic sweeps and the heartbeat log.
func (e *Engine) maintain(cycle int) {
	e.agreement.Sweep()
	e.coordination.Sweep()
	if e.gate != nil {
		e.gate.Sweep()
	}

	s := e.tracker.Snapshot()
	slog.Info("heartbeat",
		"cycle", cycle,
		"seen_ids", e.seen.Len(),
		"volume_cache", e.volumes.CacheLen(),
		"detected", s.Detected,
		"captured", s.Captured,
		"ignored", s.Ignored,
	)
}

// sleep waits out the rest of the cycle, compensating for processing time.
// Returns false when the context ended during the wait.
func (e *Engine) sleep(ctx context.Context, start time.Time) bool {
	wait := e.cfg.PollInterval - e.now().Sub(start)
	if wait < MinCycleSleep {
		wait = MinCycleSleep
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

// shutdown flushes state that must survive a restart.
func (e *Engine) shutdown() error {
	if err := e.seen.Save(e.cfg.SnapshotPath, e.now()); err != nil {
		slog.Warn("final_snapshot_failed", "error", err)
	}
	slog.Info("engine_stopped", "seen_ids", e.seen.Len())
	return nil
}
