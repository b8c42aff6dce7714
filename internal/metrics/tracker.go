// Package metrics tracks session statistics for the engine.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/whalewatch/engine/internal/store"
)

// BiggestWhale records the largest single trade seen this session.
type BiggestWhale struct {
	CapitalUSD  float64
	MarketTitle string
	ActorName   string
}

// Snapshot is a point-in-time view of session statistics.
type Snapshot struct {
	Detected      int64
	Captured      int64
	Ignored       int64
	Retroactive   int64
	ValueSum      float64
	Biggest       BiggestWhale
	SignalsByType map[string]int64
	WhalesByTitle map[string]int64
	Uptime        time.Duration
}

// Tracker provides thread-safe session statistics.
type Tracker struct {
	mu            sync.RWMutex
	detected      int64
	captured      int64
	ignored       int64
	retroactive   int64
	valueSum      float64
	biggest       BiggestWhale
	signalsByType map[string]int64
	whalesByTitle map[string]int64
	startTime     time.Time
}

// NewTracker creates a Tracker anchored at now.
func NewTracker() *Tracker {
	return &Tracker{
		signalsByType: make(map[string]int64),
		whalesByTitle: make(map[string]int64),
		startTime:     time.Now(),
	}
}

// RecordDetected counts a notable event and tracks the session's biggest
// whale and cumulative value.
func (t *Tracker) RecordDetected(ev store.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.detected++
	t.valueSum += ev.CapitalUSD
	if ev.CapitalUSD > t.biggest.CapitalUSD {
		t.biggest = BiggestWhale{
			CapitalUSD:  ev.CapitalUSD,
			MarketTitle: ev.MarketTitle,
			ActorName:   ev.ActorName,
		}
	}
}

// RecordCaptured counts a whale that passed the quality filter.
func (t *Tracker) RecordCaptured(ev store.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.captured++
	t.whalesByTitle[ev.MarketTitle]++
}

// RecordIgnored counts a whale rejected by the quality filter.
func (t *Tracker) RecordIgnored() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ignored++
}

// RecordSignal counts an emitted signal by id.
func (t *Tracker) RecordSignal(signalID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signalsByType[signalID]++
}

// RecordRetroactive counts a corrected decision.
func (t *Tracker) RecordRetroactive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retroactive++
}

// Snapshot returns a copy of the current statistics.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	signals := make(map[string]int64, len(t.signalsByType))
	for k, v := range t.signalsByType {
		signals[k] = v
	}
	markets := make(map[string]int64, len(t.whalesByTitle))
	for k, v := range t.whalesByTitle {
		markets[k] = v
	}

	return Snapshot{
		Detected:      t.detected,
		Captured:      t.captured,
		Ignored:       t.ignored,
		Retroactive:   t.retroactive,
		ValueSum:      t.valueSum,
		Biggest:       t.biggest,
		SignalsByType: signals,
		WhalesByTitle: markets,
		Uptime:        time.Since(t.startTime),
	}
}

// Summary renders the session statistics for the shutdown log.
func (t *Tracker) Summary() string {
	s := t.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "session summary: uptime %s\n", s.Uptime.Round(time.Second))
	fmt.Fprintf(&b, "  whales detected:  %d\n", s.Detected)
	fmt.Fprintf(&b, "  whales captured:  %d\n", s.Captured)
	fmt.Fprintf(&b, "  whales ignored:   %d\n", s.Ignored)
	fmt.Fprintf(&b, "  corrections sent: %d\n", s.Retroactive)
	fmt.Fprintf(&b, "  total value:      $%.0f\n", s.ValueSum)

	if s.Biggest.CapitalUSD > 0 {
		fmt.Fprintf(&b, "  biggest whale:    $%.0f by %s on %q\n",
			s.Biggest.CapitalUSD, s.Biggest.ActorName, s.Biggest.MarketTitle)
	}

	if len(s.SignalsByType) > 0 {
		ids := make([]string, 0, len(s.SignalsByType))
		for id := range s.SignalsByType {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		b.WriteString("  signals:")
		for _, id := range ids {
			fmt.Fprintf(&b, " %s=%d", id, s.SignalsByType[id])
		}
		b.WriteString("\n")
	}

	return b.String()
}
