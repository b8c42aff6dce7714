// Package store provides the data models shared across the engine.
package store

import "time"

// Side of a trade event.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Action is the recommendation attached to a classified event.
type Action string

const (
	ActionFollow  Action = "FOLLOW"
	ActionCounter Action = "COUNTER"
	ActionIgnore  Action = "IGNORE"
)

// Confidence level of a signal.
type Confidence string

const (
	ConfidenceNone   Confidence = ""
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Reputation tiers, ordered worst to best. TierBotMM is a special tier for
// accounts showing automated/market-maker patterns.
const (
	TierHighRisk = "HIGH RISK"
	TierRisky    = "RISKY"
	TierStandard = "STANDARD"
	TierBronze   = "BRONZE"
	TierSilver   = "SILVER"
	TierGold     = "GOLD"
	TierDiamond  = "DIAMOND"
	TierBotMM    = "BOT/MM"
)

// Event represents a single ingested trade from the feed. Events are
// immutable once built by the parser.
type Event struct {
	// ID is the dedup identity: sourceID + "_" + outcome. Two records with
	// the same source id but different outcomes are distinct events.
	ID string

	// SourceID is the original trade id from the feed.
	SourceID string

	// MarketID is the condition/market identifier (the group key for
	// windowed aggregation).
	MarketID string

	// MarketTitle is the human-readable market question.
	MarketTitle string

	// MarketSlug is used to build market URLs and volume lookups.
	MarketSlug string

	// ActorID is the wallet behind the trade.
	ActorID string

	// ActorName is the display name or pseudonym, "Anonymous" if absent.
	ActorName string

	// Side is BUY or SELL.
	Side string

	// Outcome is the outcome token traded (e.g. YES/NO or a team name).
	Outcome string

	// Price is the execution price in (0,1].
	Price float64

	// Size is the trade size in outcome tokens.
	Size float64

	// CapitalUSD is price * size.
	CapitalUSD float64

	// Timestamp is when the trade occurred (parser falls back to now).
	Timestamp time.Time

	// TransactionHash is the on-chain hash when the feed provides one.
	TransactionHash string
}

// Classification is the output of the signal classifier for one event.
type Classification struct {
	Action      Action
	SignalID    string
	Confidence  Confidence
	WinRate     float64 // historical win rate of the matched rule, percent
	ExpectedROI float64 // percent, win_rate*payout - (1-win_rate)
	PayoutMult  float64 // 1/price - 1
	Category    string
	Reasoning   []string
	Warnings    []string
}

// ReputationRecord is a cached reputation lookup result.
type ReputationRecord struct {
	ActorID  string
	Tier     string
	Score    int
	CachedAt time.Time
}

// Fresh reports whether the record is younger than ttl. A stale record is
// treated as absent.
func (r ReputationRecord) Fresh(now time.Time, ttl time.Duration) bool {
	return r.Tier != "" && now.Sub(r.CachedAt) <= ttl
}

// ConsensusEntry is one distinct actor's live position in a market, as
// reported by the agreement window. Input to consensus classification.
type ConsensusEntry struct {
	ActorID string
	Side    string
	Price   float64
	Capital float64
}

// AgreementInfo summarizes multi-actor agreement in the event's market.
type AgreementInfo struct {
	Agreed     bool
	Count      int
	Side       string
	TotalValue float64
}

// CoordinationInfo summarizes time-clustered same-side activity.
type CoordinationInfo struct {
	Coordinated bool
	Count       int
	Description string
	ActorIDs    []string
}

// Decision is the resolved output for one notable event, the contract
// consumed by downstream notifiers and persisters.
type Decision struct {
	ID             string
	Event          Event
	Classification Classification
	Tier           string // reputation tier at decision time, "" if unknown
	Niche          bool
	PctOfMarket    float64
	MarketVolume   float64
	Agreement      AgreementInfo
	Coordination   CoordinationInfo

	// Retroactive marks a decision re-issued after a late reputation
	// lookup overturned the first pass; Delay is the elapsed time since
	// the original classification.
	Retroactive bool
	Delay       time.Duration

	DecidedAt time.Time
}
