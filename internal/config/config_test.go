package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.EventAgeWindow)
	assert.Equal(t, 5000, cfg.SeenCapacity)
	assert.InDelta(t, 2500, cfg.WhaleValueUSD, 1e-9)
	assert.InDelta(t, 0.03, cfg.NicheMarketPct, 1e-9)
	assert.InDelta(t, 3000, cfg.CapitalFloorUSD, 1e-9)
	assert.Equal(t, 3, cfg.ReputationWorkers)
	assert.Equal(t, 20*time.Second, cfg.ReputationWait)
	assert.Equal(t, 6*time.Hour, cfg.ReputationTTL)
	assert.Equal(t, 10*time.Minute, cfg.PendingTTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WHALE_VALUE_USD", "5000")
	t.Setenv("POLL_INTERVAL_SECONDS", "10")
	t.Setenv("SEEN_CAPACITY", "100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 5000, cfg.WhaleValueUSD, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 100, cfg.SeenCapacity)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WHALE_VALUE_USD", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 2500, cfg.WhaleValueUSD, 1e-9)
}

func TestValidateRejectsBadCapacities(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.SeenCapacity = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.AgreementWindow = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.CoordinationWindow = 2 * cfg.CoordinationRetention
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.ReputationWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.WhaleValueUSD = -1
	assert.Error(t, cfg.Validate())
}
