// Package detector decides which trade events matter: notability thresholds,
// trade quality filtering, and sliding-window multi-actor aggregation.
package detector

import (
	"github.com/whalewatch/engine/internal/store"
)

// NotabilityConfig holds the thresholds for the whale decision.
type NotabilityConfig struct {
	// AbsoluteUSD makes any trade at or above this capital notable.
	AbsoluteUSD float64

	// NichePct marks a trade notable when it represents at least this
	// fraction of the market's total volume.
	NichePct float64

	// NicheFloorUSD is the minimum capital for the relative trigger.
	NicheFloorUSD float64
}

// Notability is the outcome of evaluating one event.
type Notability struct {
	Notable bool

	// Niche is true when the relative trigger fired: small market, and this
	// trade is a meaningful slice of it.
	Niche bool

	// PctOfMarket is capital / market volume, 0 when volume is unknown.
	PctOfMarket float64
}

// NotabilityEvaluator applies the absolute-or-relative whale test.
type NotabilityEvaluator struct {
	cfg NotabilityConfig
}

// NewNotabilityEvaluator creates an evaluator with the given thresholds.
func NewNotabilityEvaluator(cfg NotabilityConfig) *NotabilityEvaluator {
	return &NotabilityEvaluator{cfg: cfg}
}

// Evaluate decides whether the event is notable. marketVolume <= 0 means the
// volume is unknown and disables the relative trigger.
func (e *NotabilityEvaluator) Evaluate(ev store.Event, marketVolume float64) Notability {
	var n Notability

	if marketVolume > 0 {
		n.PctOfMarket = ev.CapitalUSD / marketVolume
	}

	if ev.CapitalUSD >= e.cfg.AbsoluteUSD {
		n.Notable = true
	}

	if marketVolume > 0 &&
		n.PctOfMarket >= e.cfg.NichePct &&
		ev.CapitalUSD >= e.cfg.NicheFloorUSD {
		n.Notable = true
		n.Niche = true
	}

	return n
}
