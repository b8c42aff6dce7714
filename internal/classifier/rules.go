package classifier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/whalewatch/engine/internal/store"
)

// Rule is one row of the signal table. All conditions must hold for the rule
// to match. Empty slices mean the condition is not applied.
type Rule struct {
	ID         string           `yaml:"id"`
	Action     store.Action     `yaml:"action"`
	Confidence store.Confidence `yaml:"confidence"`
	WinRate    float64          `yaml:"win_rate"`

	// Priority decides conflicts: the highest matching priority wins.
	// Counter rules carry positive priorities, follow rules zero.
	Priority int `yaml:"priority"`

	MinPrice     float64 `yaml:"min_price"`
	MinInclusive bool    `yaml:"min_inclusive"`
	MaxPrice     float64 `yaml:"max_price"`
	MaxInclusive bool    `yaml:"max_inclusive"`

	Categories        []string `yaml:"categories,omitempty"`
	ExcludeCategories []string `yaml:"exclude_categories,omitempty"`

	// Tier conditions are substring matches against the upper-cased tier,
	// so "GOLD" also excludes a hypothetical "GOLD+".
	RequireTiers []string `yaml:"require_tiers,omitempty"`
	ExcludeTiers []string `yaml:"exclude_tiers,omitempty"`

	NicheOnly    bool `yaml:"niche_only,omitempty"`
	IntradayOnly bool `yaml:"intraday_only,omitempty"`

	// BoostWhitelist bumps confidence one level for whitelist-A actors.
	BoostWhitelist bool `yaml:"boost_whitelist,omitempty"`

	Note string `yaml:"note,omitempty"`
}

// Matches reports whether the rule fires for the given conditions.
func (r Rule) Matches(category, tierUpper string, price float64, niche, intraday bool) bool {
	return r.priceOK(price) &&
		r.categoryOK(category) &&
		r.tierOK(tierUpper) &&
		(!r.NicheOnly || niche) &&
		(!r.IntradayOnly || intraday)
}

// Unmet returns the first failing condition as a diagnostic, or "" when the
// rule matches.
func (r Rule) Unmet(category, tierUpper string, price float64, niche, intraday bool) string {
	if !r.categoryOK(category) {
		if len(r.Categories) > 0 {
			return fmt.Sprintf("%s needs category %s (got %s)", r.ID, strings.Join(r.Categories, "/"), category)
		}
		return fmt.Sprintf("%s excludes category %s", r.ID, category)
	}
	if !r.tierOK(tierUpper) {
		if len(r.RequireTiers) > 0 {
			return fmt.Sprintf("%s needs tier %s (got %s)", r.ID, strings.Join(r.RequireTiers, "/"), orUnknown(tierUpper))
		}
		return fmt.Sprintf("%s excludes tier %s", r.ID, tierUpper)
	}
	if r.NicheOnly && !niche {
		return fmt.Sprintf("%s needs a niche market", r.ID)
	}
	if r.IntradayOnly && !intraday {
		return fmt.Sprintf("%s needs an intraday up-or-down market", r.ID)
	}
	if !r.priceOK(price) {
		return fmt.Sprintf("%s needs price %s (got %.2f)", r.ID, r.priceRange(), price)
	}
	return ""
}

func (r Rule) priceOK(price float64) bool {
	if r.MinInclusive {
		if price < r.MinPrice {
			return false
		}
	} else if price <= r.MinPrice {
		return false
	}
	if r.MaxInclusive {
		if price > r.MaxPrice {
			return false
		}
	} else if price >= r.MaxPrice {
		return false
	}
	return true
}

// midpoint of the rule's price zone, used as a conflict tiebreaker.
func (r Rule) midpoint() float64 {
	return (r.MinPrice + r.MaxPrice) / 2
}

func (r Rule) priceRange() string {
	lo, hi := "(", ")"
	if r.MinInclusive {
		lo = "["
	}
	if r.MaxInclusive {
		hi = "]"
	}
	return fmt.Sprintf("%s%.2f, %.2f%s", lo, r.MinPrice, r.MaxPrice, hi)
}

func (r Rule) categoryOK(category string) bool {
	if len(r.Categories) > 0 && !containsString(r.Categories, category) {
		return false
	}
	for _, c := range r.ExcludeCategories {
		if c == category {
			return false
		}
	}
	return true
}

func (r Rule) tierOK(tierUpper string) bool {
	for _, req := range r.RequireTiers {
		if !strings.Contains(tierUpper, req) {
			return false
		}
	}
	for _, ex := range r.ExcludeTiers {
		if strings.Contains(tierUpper, ex) {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// DefaultRules is the compiled-in signal table, derived from the historical
// win-rate analysis. Each entry documents its sample in the note.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID: "S1", Action: store.ActionCounter, Confidence: store.ConfidenceHigh,
			WinRate: 88.2, Priority: 50,
			MinPrice: 0.40, MinInclusive: true, MaxPrice: 0.45, MaxInclusive: false,
			RequireTiers: []string{"HIGH RISK"},
			Note:         "counter HIGH RISK in the strong zone (WR 88.2%, N=17)",
		},
		{
			ID: "S1", Action: store.ActionCounter, Confidence: store.ConfidenceLow,
			WinRate: 60.0, Priority: 50,
			MinPrice: 0, MinInclusive: false, MaxPrice: 0.40, MaxInclusive: false,
			RequireTiers: []string{"HIGH RISK"},
			Note:         "counter HIGH RISK in the low zone (WR 60.0%, N=14, mixed sports)",
		},
		{
			ID: "S1B", Action: store.ActionCounter, Confidence: store.ConfidenceMedium,
			WinRate: 75.0, Priority: 60,
			MinPrice: 0, MinInclusive: false, MaxPrice: 0.40, MaxInclusive: false,
			Categories: []string{CategorySoccer},
			Note:       "counter soccer below 0.40 at any tier (WR 75.0%, N=24)",
		},
		{
			ID: "S2", Action: store.ActionFollow, Confidence: store.ConfidenceMedium,
			WinRate: 72.0, Priority: 0,
			MinPrice: 0.50, MinInclusive: true, MaxPrice: 0.60, MaxInclusive: true,
			Categories:     []string{CategoryNBA},
			ExcludeTiers:   []string{"HIGH RISK"},
			BoostWhitelist: true,
			Note:           "follow NBA in the core zone (WR 72%, excl. HIGH RISK)",
		},
		{
			ID: "S2B", Action: store.ActionFollow, Confidence: store.ConfidenceLow,
			WinRate: 69.6, Priority: 0,
			MinPrice: 0.60, MinInclusive: false, MaxPrice: 0.80, MaxInclusive: true,
			Categories:     []string{CategoryNBA},
			ExcludeTiers:   []string{"HIGH RISK"},
			BoostWhitelist: true,
			Note:           "follow NBA in the extended zone (WR 69.6%, reduced stake)",
		},
		{
			ID: "S3", Action: store.ActionFollow, Confidence: store.ConfidenceLow,
			WinRate: 56.5, Priority: 0,
			MinPrice: 0.50, MinInclusive: true, MaxPrice: 0.85, MaxInclusive: false,
			ExcludeCategories: []string{CategoryNBA, CategorySoccer, CategoryCrypto},
			NicheOnly:         true,
			Note:              "follow niche markets outside the core categories (WR 56.5%)",
		},
		{
			ID: "S4", Action: store.ActionCounter, Confidence: store.ConfidenceMedium,
			WinRate: 65.0, Priority: 40,
			MinPrice: 0, MinInclusive: false, MaxPrice: 1, MaxInclusive: true,
			Categories:   []string{CategoryCrypto},
			IntradayOnly: true,
			Note:         "counter crypto intraday up-or-down markets (WR 65.0%)",
		},
		{
			ID: "S5", Action: store.ActionFollow, Confidence: store.ConfidenceMedium,
			WinRate: 75.9, Priority: 0,
			MinPrice: 0.60, MinInclusive: true, MaxPrice: 0.80, MaxInclusive: false,
			Categories:   []string{CategorySoccer},
			ExcludeTiers: []string{"GOLD", "RISKY"},
			Note:         "follow soccer 0.60-0.80 excluding GOLD and RISKY (WR 75.9%, N=29)",
		},
	}
}

// rulesFile is the YAML schema for an external rule table.
type rulesFile struct {
	Rules      []Rule   `yaml:"rules"`
	WhitelistA []string `yaml:"whitelist_a"`
	WhitelistB []string `yaml:"whitelist_b"`
	Blacklist  []string `yaml:"blacklist"`
}

// LoadRules reads a rule table and watchlists from a YAML file. An empty
// path returns the compiled-in defaults.
func LoadRules(path string) ([]Rule, Watchlists, error) {
	wl := DefaultWatchlists()
	if path == "" {
		return DefaultRules(), wl, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wl, fmt.Errorf("read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, wl, fmt.Errorf("parse rules file: %w", err)
	}

	rules := file.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	for i, r := range rules {
		if r.ID == "" {
			return nil, wl, fmt.Errorf("rule %d has no id", i)
		}
		if r.Action != store.ActionFollow && r.Action != store.ActionCounter {
			return nil, wl, fmt.Errorf("rule %s: action must be FOLLOW or COUNTER", r.ID)
		}
		if r.MaxPrice <= r.MinPrice {
			return nil, wl, fmt.Errorf("rule %s: empty price range %s", r.ID, r.priceRange())
		}
	}

	if file.WhitelistA != nil {
		wl.WhitelistA = file.WhitelistA
	}
	if file.WhitelistB != nil {
		wl.WhitelistB = file.WhitelistB
	}
	if file.Blacklist != nil {
		wl.Blacklist = file.Blacklist
	}

	return rules, wl, nil
}

// Watchlists are actor lists that color classification without being rules:
// whitelist A boosts confidence, whitelist B only annotates, blacklist warns.
type Watchlists struct {
	WhitelistA []string
	WhitelistB []string
	Blacklist  []string
}

// DefaultWatchlists returns the historically curated actor lists.
func DefaultWatchlists() Watchlists {
	return Watchlists{
		WhitelistA: []string{"hioa", "KeyTransporter"},
		WhitelistB: []string{"elkmonkey", "gmanas", "swisstony", "synnet"},
		Blacklist:  []string{"sovereign2013", "BITCOINTO500K", "432614799197", "xdoors"},
	}
}
