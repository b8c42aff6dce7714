package detector

import (
	"fmt"
	"sort"
	"time"

	"github.com/whalewatch/engine/internal/store"
)

// coordEntry is one notable position retained for burst detection.
type coordEntry struct {
	actorID string
	side    string
	at      time.Time
}

// CoordinationTracker detects bursts: several distinct actors hitting the
// same side of a market within a short sub-window. Entries are retained
// longer than the sub-window so a burst straddling two cycles is still seen.
// Owned by the engine loop, not locked.
type CoordinationTracker struct {
	retention time.Duration
	window    time.Duration
	minActors int
	entries   map[string][]coordEntry // market id -> entries
	now       func() time.Time
}

// NewCoordinationTracker creates a tracker. retention bounds how long entries
// live, window is the burst sub-window, minActors the firing threshold.
func NewCoordinationTracker(retention, window time.Duration, minActors int, now func() time.Time) *CoordinationTracker {
	if now == nil {
		now = time.Now
	}
	return &CoordinationTracker{
		retention: retention,
		window:    window,
		minActors: minActors,
		entries:   make(map[string][]coordEntry),
		now:       now,
	}
}

// Record adds an event and reports whether its market now shows a
// coordinated burst on the event's side.
func (t *CoordinationTracker) Record(ev store.Event) store.CoordinationInfo {
	now := t.now()
	t.purge(ev.MarketID, now)

	side := positionKey(ev)
	t.entries[ev.MarketID] = append(t.entries[ev.MarketID], coordEntry{
		actorID: ev.ActorID,
		side:    side,
		at:      ev.Timestamp,
	})

	// Distinct actors on this side within the burst sub-window ending now.
	cutoff := now.Add(-t.window)
	actors := make(map[string]struct{})
	for _, e := range t.entries[ev.MarketID] {
		if e.side == side && e.at.After(cutoff) {
			actors[e.actorID] = struct{}{}
		}
	}

	if len(actors) < t.minActors {
		return store.CoordinationInfo{}
	}

	ids := make([]string, 0, len(actors))
	for id := range actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return store.CoordinationInfo{
		Coordinated: true,
		Count:       len(ids),
		Description: fmt.Sprintf("%d actors on %s within %s", len(ids), side, t.window),
		ActorIDs:    ids,
	}
}

// purge drops entries older than the retention horizon for one market.
func (t *CoordinationTracker) purge(marketID string, now time.Time) {
	entries := t.entries[marketID]
	if len(entries) == 0 {
		return
	}

	cutoff := now.Add(-t.retention)
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
func (t *CoordinationTracker) Sweep() {
	now := t.now()
	for marketID := range t.entries {
		t.purge(marketID, now)
	}
}
