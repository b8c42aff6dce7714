package detector

import (
	"time"

	"github.com/whalewatch/engine/internal/store"
)

// agreementEntry is one actor's most recent notable position in a market.
type agreementEntry struct {
	actorID string
	side    string
	price   float64
	capital float64
	at      time.Time
}

// AgreementTracker detects when several distinct actors take the same side of
// a market within a sliding window. Owned by the engine loop, not locked.
type AgreementTracker struct {
	window  time.Duration
	entries map[string][]agreementEntry // market id -> entries
	now     func() time.Time
}

// NewAgreementTracker creates a tracker with the given window.
func NewAgreementTracker(window time.Duration, now func() time.Time) *AgreementTracker {
	if now == nil {
		now = time.Now
	}
	return &AgreementTracker{
		window:  window,
		entries: make(map[string][]agreementEntry),
		now:     now,
	}
}

// positionKey is the direction an actor is effectively backing.
func positionKey(ev store.Event) string {
	return ev.Side + " " + ev.Outcome
}

// Record adds an event's position and returns the current agreement state for
// its market. An actor appearing twice keeps only the most recent entry, so
// one wallet can never simulate a crowd.
func (t *AgreementTracker) Record(ev store.Event) store.AgreementInfo {
	now := t.now()
	t.purge(ev.MarketID, now)

	entries := t.entries[ev.MarketID]

	// Drop any older entry from the same actor.
	kept := entries[:0]
	for _, e := range entries {
		if e.actorID != ev.ActorID {
			kept = append(kept, e)
		}
	}
	kept = append(kept, agreementEntry{
		actorID: ev.ActorID,
		side:    positionKey(ev),
		price:   ev.Price,
		capital: ev.CapitalUSD,
		at:      ev.Timestamp,
	})
	t.entries[ev.MarketID] = kept

	return t.evaluate(kept)
}

// Entries returns the live (deduplicated, in-window) positions for a market.
// Used by consensus classification.
func (t *AgreementTracker) Entries(marketID string) []store.ConsensusEntry {
	t.purge(marketID, t.now())

	entries := t.entries[marketID]
	out := make([]store.ConsensusEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, store.ConsensusEntry{
			ActorID: e.actorID,
			Side:    e.side,
			Price:   e.price,
			Capital: e.capital,
		})
	}
	return out
}

// evaluate counts distinct actors per side. Agreement requires a strict
// winner with at least two actors; an exact tie between sides is ambiguous
// and reports no agreement.
func (t *AgreementTracker) evaluate(entries []agreementEntry) store.AgreementInfo {
	counts := make(map[string]int)
	values := make(map[string]float64)
	for _, e := range entries {
		counts[e.side]++
		values[e.side] += e.capital
	}

	var best string
	bestCount := 0
	tied := false
	for side, c := range counts {
		switch {
		case c > bestCount:
			best, bestCount, tied = side, c, false
		case c == bestCount:
			tied = true
		}
	}

	if bestCount < 2 || tied {
		return store.AgreementInfo{}
	}

	return store.AgreementInfo{
		Agreed:     true,
		Count:      bestCount,
		Side:       best,
		TotalValue: values[best],
	}
}

// purge drops entries older than the window for one market.
func (t *AgreementTracker) purge(marketID string, now time.Time) {
	entries := t.entries[marketID]
	if len(entries) == 0 {
		return
	}

	cutoff := now.Add(-t.window)
	kept := entries[:0]
	for _, e := range entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}

	if len(kept) == 0 {
		delete(t.entries, marketID)
		return
	}
	t.entries[marketID] = kept
}

// Sweep purges all markets, called from the periodic maintenance pass.
func (t *AgreementTracker) Sweep() {
	now := t.now()
	for marketID := range t.entries {
		t.purge(marketID, now)
	}
}
