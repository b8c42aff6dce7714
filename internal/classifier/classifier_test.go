package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whalewatch/engine/internal/store"
)

func newClassifier() *Classifier {
	return New(DefaultRules(), DefaultWatchlists(), 0)
}

func TestCounterHighRiskStrongZone(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Lakers vs Celtics",
		Tier:        store.TierHighRisk,
		Price:       0.42,
		CapitalUSD:  10000,
	})

	assert.Equal(t, store.ActionCounter, res.Action)
	assert.Equal(t, "S1", res.SignalID)
	assert.Equal(t, store.ConfidenceHigh, res.Confidence)
	assert.InDelta(t, 88.2, res.WinRate, 1e-9)
}

func TestCounterHighRiskLowZone(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Wimbledon Men's Final",
		Tier:        store.TierHighRisk,
		Price:       0.30,
		CapitalUSD:  10000,
	})

	assert.Equal(t, store.ActionCounter, res.Action)
	assert.Equal(t, "S1", res.SignalID)
	assert.Equal(t, store.ConfidenceLow, res.Confidence)
	assert.InDelta(t, 60.0, res.WinRate, 1e-9)
}

func TestFollowNBACoreZone(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Lakers vs Celtics",
		Tier:        store.TierSilver,
		Price:       0.55,
		CapitalUSD:  12000,
	})

	assert.Equal(t, store.ActionFollow, res.Action)
	assert.Equal(t, "S2", res.SignalID)
	assert.Equal(t, store.ConfidenceMedium, res.Confidence)
	assert.InDelta(t, 72.0, res.WinRate, 1e-9)

	// payout = 1/0.55 - 1 ≈ 0.818, roi = 0.72*0.818 - 0.28 ≈ 0.309
	assert.InDelta(t, 0.818, res.PayoutMult, 0.001)
	assert.InDelta(t, 30.9, res.ExpectedROI, 0.1)
}

func TestFollowNBAExcludesHighRisk(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Lakers vs Celtics",
		Tier:        store.TierHighRisk,
		Price:       0.55,
		CapitalUSD:  12000,
	})

	assert.Equal(t, store.ActionIgnore, res.Action)
	require.NotEmpty(t, res.Reasoning)
	assert.Contains(t, res.Reasoning[0], "excludes tier")
}

func TestWhitelistABoost(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Lakers vs Celtics",
		Tier:        store.TierSilver,
		Price:       0.55,
		CapitalUSD:  12000,
		ActorName:   "Hioa", // case-insensitive
	})

	assert.Equal(t, "S2", res.SignalID)
	assert.Equal(t, store.ConfidenceHigh, res.Confidence)
}

func TestCounterSoccerAnyTier(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Barcelona vs Real Madrid",
		Tier:        store.TierGold,
		Price:       0.35,
		CapitalUSD:  8000,
	})

	assert.Equal(t, store.ActionCounter, res.Action)
	assert.Equal(t, "S1B", res.SignalID)
}

func TestSoccerConflictResolvedByPriority(t *testing.T) {
	c := newClassifier()

	// HIGH RISK soccer below 0.40 matches both the HIGH RISK counter and
	// the soccer counter; the soccer rule has the higher priority.
	res := c.Classify(Input{
		MarketTitle: "Barcelona vs Real Madrid",
		Tier:        store.TierHighRisk,
		Price:       0.35,
		CapitalUSD:  8000,
	})

	assert.Equal(t, store.ActionCounter, res.Action)
	assert.Equal(t, "S1B", res.SignalID)
	assert.InDelta(t, 75.0, res.WinRate, 1e-9)
}

func TestFollowNicheExcludesCoreCategories(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "LCK Spring: Gen.G vs KT Rolster",
		Tier:        store.TierStandard,
		Price:       0.62,
		Niche:       true,
		CapitalUSD:  5000,
	})
	assert.Equal(t, "S3", res.SignalID)
	assert.Equal(t, store.ActionFollow, res.Action)

	// Niche soccer has its own rules; S3 must not fire.
	res = c.Classify(Input{
		MarketTitle: "Barcelona vs Real Madrid",
		Tier:        store.TierStandard,
		Price:       0.55,
		Niche:       true,
		CapitalUSD:  5000,
	})
	assert.NotEqual(t, "S3", res.SignalID)
}

func TestCounterCryptoIntradayOnly(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Bitcoin Up or Down - 3PM ET",
		Tier:        store.TierStandard,
		Price:       0.52,
		CapitalUSD:  6000,
	})
	assert.Equal(t, "S4", res.SignalID)
	assert.Equal(t, store.ActionCounter, res.Action)

	res = c.Classify(Input{
		MarketTitle: "Will Bitcoin reach $150k by July?",
		Tier:        store.TierStandard,
		Price:       0.52,
		CapitalUSD:  6000,
	})
	assert.Equal(t, store.ActionIgnore, res.Action)
	assert.NotEmpty(t, res.Warnings, "long-horizon crypto carries a manual-validation warning")
}

func TestFollowSoccerExcludesGoldAndRisky(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Barcelona vs Real Madrid",
		Tier:        store.TierSilver,
		Price:       0.70,
		CapitalUSD:  9000,
	})
	assert.Equal(t, "S5", res.SignalID)
	assert.Equal(t, store.ActionFollow, res.Action)

	for _, tier := range []string{store.TierGold, store.TierRisky} {
		res = c.Classify(Input{
			MarketTitle: "Barcelona vs Real Madrid",
			Tier:        tier,
			Price:       0.70,
			CapitalUSD:  9000,
		})
		assert.Equal(t, store.ActionIgnore, res.Action, tier)
	}
}

func TestCapitalFloor(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Lakers vs Celtics",
		Tier:        store.TierSilver,
		Price:       0.55,
		CapitalUSD:  2900,
	})

	assert.Equal(t, store.ActionIgnore, res.Action)
	require.NotEmpty(t, res.Reasoning)
	assert.Contains(t, res.Reasoning[0], "signal floor")
	assert.Equal(t, CategoryNBA, res.Category, "category survives the floor ignore")
}

func TestPayoutTrap(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "LCK Spring: Gen.G vs KT Rolster",
		Tier:        store.TierSilver,
		Price:       0.90,
		Niche:       true,
		CapitalUSD:  10000,
	})

	assert.Equal(t, store.ActionIgnore, res.Action)
	assert.NotEmpty(t, res.Warnings)
	require.NotEmpty(t, res.Reasoning)
	assert.Contains(t, res.Reasoning[0], "pays too little")
}

func TestDeadZone(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Lakers vs Celtics",
		Tier:        store.TierSilver,
		Price:       0.47,
		CapitalUSD:  10000,
	})

	assert.Equal(t, store.ActionIgnore, res.Action)
	require.NotEmpty(t, res.Reasoning)
	assert.Contains(t, res.Reasoning[0], "dead zone")
}

func TestHighRiskBothSidesIgnored(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle:  "Wimbledon Men's Final",
		Tier:         store.TierHighRisk,
		Price:        0.42,
		CapitalUSD:   10000,
		OppositeTier: store.TierHighRisk,
	})

	assert.Equal(t, store.ActionIgnore, res.Action)
	require.NotEmpty(t, res.Reasoning)
	assert.Contains(t, res.Reasoning[0], "both sides")
}

func TestIgnoreAlwaysCarriesDiagnostics(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Will it rain in London tomorrow?",
		Tier:        store.TierStandard,
		Price:       0.55,
		CapitalUSD:  5000,
	})

	assert.Equal(t, store.ActionIgnore, res.Action)
	require.NotEmpty(t, res.Reasoning)
	assert.Contains(t, res.Reasoning[0], "no COUNTER")
	assert.Contains(t, res.Reasoning[0], "no FOLLOW")
}

func TestBlacklistWarning(t *testing.T) {
	c := newClassifier()

	res := c.Classify(Input{
		MarketTitle: "Lakers vs Celtics",
		Tier:        store.TierSilver,
		Price:       0.55,
		CapitalUSD:  12000,
		ActorName:   "xdoors",
	})

	// The signal still fires; the blacklist only warns.
	assert.Equal(t, "S2", res.SignalID)
	assert.NotEmpty(t, res.Warnings)
}

func TestResolveOrderIndependent(t *testing.T) {
	rules := DefaultRules()
	reversed := make([]Rule, len(rules))
	for i, r := range rules {
		reversed[len(rules)-1-i] = r
	}

	in := Input{
		MarketTitle: "Barcelona vs Real Madrid",
		Tier:        store.TierHighRisk,
		Price:       0.35,
		CapitalUSD:  8000,
	}

	a := New(rules, DefaultWatchlists(), 0).Classify(in)
	b := New(reversed, DefaultWatchlists(), 0).Classify(in)

	assert.Equal(t, a.SignalID, b.SignalID)
	assert.Equal(t, a.Action, b.Action)
	assert.Equal(t, a.Confidence, b.Confidence)
}

func TestExpectedROI(t *testing.T) {
	// 88.2% at 0.42: payout ≈ 1.381, roi ≈ 0.882*1.381 - 0.118 ≈ 1.100
	roi := ExpectedROI(88.2, 1.0/0.42-1)
	assert.InDelta(t, 110.0, roi, 0.5)

	assert.Zero(t, ExpectedROI(0, 1.0))
	assert.Zero(t, ExpectedROI(60, 0))
}
