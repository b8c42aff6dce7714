package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whalewatch/engine/internal/store"
)

func TestLoadRulesDefaults(t *testing.T) {
	rules, wl, err := LoadRules("")
	require.NoError(t, err)
	assert.Len(t, rules, len(DefaultRules()))
	assert.Equal(t, DefaultWatchlists(), wl)
}

func TestLoadRulesFromYAML(t *testing.T) {
	yaml := `
rules:
  - id: X1
    action: COUNTER
    confidence: HIGH
    win_rate: 90.0
    priority: 10
    min_price: 0.10
    min_inclusive: true
    max_price: 0.30
    categories: [TENNIS]
whitelist_a: [alpha]
blacklist: [bad]
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	rules, wl, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "X1", rules[0].ID)
	assert.Equal(t, store.ActionCounter, rules[0].Action)
	assert.Equal(t, []string{CategoryTennis}, rules[0].Categories)

	assert.Equal(t, []string{"alpha"}, wl.WhitelistA)
	assert.Equal(t, []string{"bad"}, wl.Blacklist)
	// Unset lists keep the defaults.
	assert.Equal(t, DefaultWatchlists().WhitelistB, wl.WhitelistB)
}

func TestLoadRulesRejectsBadTable(t *testing.T) {
	yaml := `
rules:
  - id: X1
    action: MAYBE
    min_price: 0.1
    max_price: 0.5
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, _, err := LoadRules(path)
	assert.Error(t, err)
}

func TestRulePriceBounds(t *testing.T) {
	r := Rule{MinPrice: 0.40, MinInclusive: true, MaxPrice: 0.45, MaxInclusive: false}

	assert.True(t, r.priceOK(0.40))
	assert.True(t, r.priceOK(0.449))
	assert.False(t, r.priceOK(0.45))
	assert.False(t, r.priceOK(0.399))
}
