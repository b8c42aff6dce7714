package classifier

import (
	"fmt"
	"sort"

	"github.com/whalewatch/engine/internal/store"
)

// Consensus thresholds. Entries arrive already deduplicated by actor, so a
// count is always a distinct-actor count.
const (
	consensusMinActors = 3

	followConsensusMin = 0.50
	followConsensusMax = 0.60
	followConsensusWR  = 78.1

	counterConsensusMin = 0.40
	counterConsensusMax = 0.45
	counterConsensusWR  = 88.2
)

// EvaluateConsensus checks whether the live positions in a market form a
// crowd signal that overrides individual classification. The counter
// consensus outranks the follow consensus when both fire.
func EvaluateConsensus(marketTitle string, entries []store.ConsensusEntry) (store.Classification, bool) {
	if cls, ok := counterConsensus(entries); ok {
		return cls, true
	}
	return followConsensus(marketTitle, entries)
}

// counterConsensus fires when 3+ distinct actors sit in the 0.40-0.449 error
// zone on the same side, regardless of tier or category. The crowd itself is
// the signal.
func counterConsensus(entries []store.ConsensusEntry) (store.Classification, bool) {
	sides := bySide(entries)
	for _, side := range sortedSides(sides) {
		group := sides[side]
		var inZone []store.ConsensusEntry
		for _, e := range group {
			if e.Price >= counterConsensusMin && e.Price < counterConsensusMax {
				inZone = append(inZone, e)
			}
		}
		if len(inZone) < consensusMinActors {
			continue
		}

		return store.Classification{
			Action:      store.ActionCounter,
			SignalID:    "S1+",
			Confidence:  store.ConfidenceHigh,
			WinRate:     counterConsensusWR,
			PayoutMult:  payoutOfAvg(inZone),
			ExpectedROI: ExpectedROI(counterConsensusWR, payoutOfAvg(inZone)),
			Reasoning: []string{fmt.Sprintf(
				"counter consensus: %d actors in the 0.40-0.44 zone (avg %.2f), tier independent",
				len(inZone), avgPrice(inZone))},
		}, true
	}
	return store.Classification{}, false
}

// followConsensus fires for NBA markets when 3+ distinct actors take the
// same side with every price inside the core 0.50-0.60 zone. Any price
// outside the zone means the crowd is too dispersed to trust.
func followConsensus(marketTitle string, entries []store.ConsensusEntry) (store.Classification, bool) {
	if DetectCategory(marketTitle) != CategoryNBA {
		return store.Classification{}, false
	}

	sides := bySide(entries)
	for _, side := range sortedSides(sides) {
		group := sides[side]
		if len(group) < consensusMinActors {
			continue
		}

		allInZone := true
		for _, e := range group {
			if e.Price < followConsensusMin || e.Price > followConsensusMax {
				allInZone = false
				break
			}
		}
		if !allInZone {
			continue
		}

		return store.Classification{
			Action:      store.ActionFollow,
			SignalID:    "S2+",
			Confidence:  store.ConfidenceHigh,
			WinRate:     followConsensusWR,
			Category:    CategoryNBA,
			PayoutMult:  payoutOfAvg(group),
			ExpectedROI: ExpectedROI(followConsensusWR, payoutOfAvg(group)),
			Reasoning: []string{fmt.Sprintf(
				"follow consensus: %d actors on %s, avg price %.2f, all inside 0.50-0.60",
				len(group), side, avgPrice(group))},
		}, true
	}
	return store.Classification{}, false
}

func bySide(entries []store.ConsensusEntry) map[string][]store.ConsensusEntry {
	sides := make(map[string][]store.ConsensusEntry)
	for _, e := range entries {
		sides[e.Side] = append(sides[e.Side], e)
	}
	return sides
}

// sortedSides orders side keys by actor count, largest first, breaking ties
// lexicographically so evaluation order never depends on map iteration.
func sortedSides(sides map[string][]store.ConsensusEntry) []string {
	keys := make([]string, 0, len(sides))
	for k := range sides {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(sides[keys[i]]) != len(sides[keys[j]]) {
			return len(sides[keys[i]]) > len(sides[keys[j]])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func avgPrice(entries []store.ConsensusEntry) float64 {
	var sum float64
	for _, e := range entries {
		sum += e.Price
	}
	return sum / float64(len(entries))
}

func payoutOfAvg(entries []store.ConsensusEntry) float64 {
	avg := avgPrice(entries)
	if avg <= 0 {
		return 0
	}
	return 1.0/avg - 1
}
