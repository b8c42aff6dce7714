package classifier

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/whalewatch/engine/internal/store"
)

// Price zones that color every classification regardless of rule matches.
const (
	payoutTrapPrice = 0.85
	deadZoneLow     = 0.45
	deadZoneHigh    = 0.49
	conflictAnchor  = 0.55
)

// DefaultCapitalFloor is the minimum capital for an actionable signal.
const DefaultCapitalFloor = 3000

// Input carries everything the classifier needs to judge one event.
type Input struct {
	MarketTitle string
	Tier        string
	Price       float64
	Niche       bool
	CapitalUSD  float64
	ActorName   string

	// OppositeTier is the reputation tier of a whale on the other side of
	// the same market, when one is known.
	OppositeTier string
}

// Classifier applies the rule table to events.
type Classifier struct {
	rules        []Rule
	capitalFloor float64
	whitelistA   map[string]struct{}
	whitelistB   map[string]struct{}
	blacklist    map[string]struct{}
}

// New creates a Classifier. Zero capitalFloor uses the default.
func New(rules []Rule, wl Watchlists, capitalFloor float64) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if capitalFloor <= 0 {
		capitalFloor = DefaultCapitalFloor
	}
	return &Classifier{
		rules:        rules,
		capitalFloor: capitalFloor,
		whitelistA:   lowerSet(wl.WhitelistA),
		whitelistB:   lowerSet(wl.WhitelistB),
		blacklist:    lowerSet(wl.Blacklist),
	}
}

func lowerSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

// candidate is a matched rule with its composed reasoning.
type candidate struct {
	rule       Rule
	confidence store.Confidence
	reasoning  string
}

// Classify evaluates one event against the rule table. The result always
// carries a category and, for IGNORE, at least one reasoning line explaining
// what blocked a signal.
func (c *Classifier) Classify(in Input) store.Classification {
	result := store.Classification{
		Action:   store.ActionIgnore,
		SignalID: "NONE",
		Category: DetectCategory(in.MarketTitle),
	}

	if in.Price > 0 {
		result.PayoutMult = 1.0/in.Price - 1
	}

	tierUpper := strings.ToUpper(in.Tier)
	actorLower := strings.ToLower(in.ActorName)
	intraday := result.Category == CategoryCrypto && IsCryptoIntraday(in.MarketTitle)

	// Global warnings, never blocking on their own.
	if in.Price > payoutTrapPrice {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"price %.2f above %.2f: win rate holds but payout destroys EV", in.Price, payoutTrapPrice))
	}
	inDeadZone := in.Price >= deadZoneLow && in.Price <= deadZoneHigh
	if inDeadZone {
		result.Warnings = append(result.Warnings,
			"price in the 0.45-0.49 dead zone: underdog with no active signal")
	}
	if _, ok := c.blacklist[actorLower]; ok {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"actor %s is blacklisted, consider countering", in.ActorName))
	}
	if result.Category == CategoryCrypto && !intraday {
		result.Warnings = append(result.Warnings,
			"crypto counter applies only to intraday up-or-down markets, validate longer horizons manually")
	}

	// Capital floor: the whale is recorded but gets no recommendation.
	if in.CapitalUSD < c.capitalFloor {
		result.Reasoning = append(result.Reasoning, fmt.Sprintf(
			"capital $%.0f below the $%.0f signal floor, whale recorded without action", in.CapitalUSD, c.capitalFloor))
		return result
	}

	candidates := c.match(in, result.Category, tierUpper, actorLower, intraday)

	// The payout trap overrides any match.
	if in.Price > payoutTrapPrice {
		result.Reasoning = append(result.Reasoning,
			fmt.Sprintf("price %.2f above %.2f pays too little to act on", in.Price, payoutTrapPrice))
		return result
	}

	if len(candidates) == 0 {
		if inDeadZone {
			result.Reasoning = append(result.Reasoning,
				"dead zone 0.45-0.49 with no active signal")
			return result
		}
		result.Reasoning = append(result.Reasoning, c.diagnose(in, result.Category, tierUpper, intraday)...)
		return result
	}

	// Informed whales fighting each other carry no readable signal.
	if strings.Contains(tierUpper, "HIGH RISK") && strings.Contains(strings.ToUpper(in.OppositeTier), "HIGH RISK") {
		result.Reasoning = append(result.Reasoning,
			"HIGH RISK whales on both sides of the market, no readable signal")
		return result
	}

	best := resolve(candidates)
	result.Action = best.rule.Action
	result.SignalID = best.rule.ID
	result.Confidence = best.confidence
	result.WinRate = best.rule.WinRate
	result.Reasoning = append(result.Reasoning, best.reasoning)
	if len(candidates) > 1 {
		result.Reasoning = append(result.Reasoning, fmt.Sprintf(
			"conflict between %d rules resolved in favor of %s", len(candidates), best.rule.ID))
	}

	result.ExpectedROI = ExpectedROI(result.WinRate, result.PayoutMult)
	return result
}

// match collects all firing rules with their composed reasoning.
func (c *Classifier) match(in Input, category, tierUpper, actorLower string, intraday bool) []candidate {
	var out []candidate
	for _, r := range c.rules {
		if !r.Matches(category, tierUpper, in.Price, in.Niche, intraday) {
			continue
		}

		cand := candidate{
			rule:       r,
			confidence: r.Confidence,
			reasoning:  fmt.Sprintf("%s at %.2f: %s", r.ID, in.Price, r.Note),
		}

		if r.BoostWhitelist {
			if _, ok := c.whitelistA[actorLower]; ok {
				cand.confidence = raiseConfidence(r.Confidence)
				cand.reasoning += fmt.Sprintf(" | whitelist A actor %s, confidence raised", in.ActorName)
			} else if _, ok := c.whitelistB[actorLower]; ok {
				cand.reasoning += fmt.Sprintf(" | whitelist B actor %s", in.ActorName)
			}
		}

		out = append(out, cand)
	}
	return out
}

// resolve picks one candidate deterministically: highest priority, then the
// zone whose midpoint sits closest to the anchor price, then lexicographic
// rule ID. The outcome never depends on table order.
func resolve(candidates []candidate) candidate {
	best := candidates[0]
	for _, cand := range candidates[1:] {
		if beats(cand, best) {
			best = cand
		}
	}
	return best
}

// beats reports whether a outranks b.
func beats(a, b candidate) bool {
	if a.rule.Priority != b.rule.Priority {
		return a.rule.Priority > b.rule.Priority
	}
	da := math.Abs(a.rule.midpoint() - conflictAnchor)
	db := math.Abs(b.rule.midpoint() - conflictAnchor)
	if da != db {
		return da < db
	}
	return a.rule.ID < b.rule.ID
}

// diagnose explains, per rule, the first condition that blocked it, grouped
// by the action the rule would have recommended.
func (c *Classifier) diagnose(in Input, category, tierUpper string, intraday bool) []string {
	var counterBlocks, followBlocks []string
	seen := make(map[string]struct{})

	for _, r := range c.rules {
		unmet := r.Unmet(category, tierUpper, in.Price, in.Niche, intraday)
		if unmet == "" {
			continue
		}
		if _, dup := seen[unmet]; dup {
			continue
		}
		seen[unmet] = struct{}{}

		if r.Action == store.ActionCounter {
			counterBlocks = append(counterBlocks, unmet)
		} else {
			followBlocks = append(followBlocks, unmet)
		}
	}

	var parts []string
	if len(counterBlocks) > 0 {
		parts = append(parts, "no COUNTER: "+strings.Join(counterBlocks, ", "))
	}
	if len(followBlocks) > 0 {
		parts = append(parts, "no FOLLOW: "+strings.Join(followBlocks, ", "))
	}
	if len(parts) == 0 {
		return []string{"no active signal"}
	}
	return []string{strings.Join(parts, " | ")}
}

// raiseConfidence bumps one level, capped at HIGH.
func raiseConfidence(c store.Confidence) store.Confidence {
	switch c {
	case store.ConfidenceLow:
		return store.ConfidenceMedium
	case store.ConfidenceMedium, store.ConfidenceHigh:
		return store.ConfidenceHigh
	default:
		return c
	}
}

// ExpectedROI computes the percent expectation of a bet with the given
// historical win rate (percent) and payout multiple, rounded to one decimal.
func ExpectedROI(winRate, payoutMult float64) float64 {
	if winRate <= 0 || payoutMult <= 0 {
		return 0
	}
	wr := winRate / 100.0
	return math.Round((wr*payoutMult-(1-wr))*1000) / 10
}

// Rules exposes the active table, sorted by ID, for startup logging.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
