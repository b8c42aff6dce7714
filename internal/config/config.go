// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the whalewatch engine.
type Config struct {
	// Feed
	DataAPIURL       string
	FeedWSURL        string
	EnableWSListener bool
	PollInterval     time.Duration
	PollLimit        int
	EventAgeWindow   time.Duration

	// Market volume lookup
	GammaAPIURL    string
	MarketCacheMax int

	// Notability thresholds
	WhaleValueUSD   float64
	NicheMarketPct  float64
	NicheFloorUSD   float64
	CapitalFloorUSD float64

	// Trade quality filter
	MinCopyPrice    float64
	MaxCopyPrice    float64
	MinLiquidityUSD float64

	// Windowed aggregators
	AgreementWindow       time.Duration
	CoordinationRetention time.Duration
	CoordinationWindow    time.Duration

	// Dedup
	SeenCapacity     int
	SnapshotPath     string
	SnapshotMaxAge   time.Duration
	SnapshotEvery    int
	MaintenanceEvery int

	// Reputation gate
	ReputationCommand string
	ReputationWorkers int
	ReputationWait    time.Duration
	ReputationTTL     time.Duration
	PendingTTL        time.Duration

	// Classifier
	RulesPath string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		// Feed
		DataAPIURL:       getEnv("DATA_API_URL", "https://data-api.polymarket.com"),
		FeedWSURL:        getEnv("FEED_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/"),
		EnableWSListener: getEnvBool("ENABLE_WS_LISTENER", false),
		PollInterval:     time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 3)) * time.Second,
		PollLimit:        getEnvInt("POLL_LIMIT", 1000),
		EventAgeWindow:   time.Duration(getEnvInt("EVENT_AGE_WINDOW_MINUTES", 30)) * time.Minute,

		// Market volume
		GammaAPIURL:    getEnv("GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		MarketCacheMax: getEnvInt("MARKET_CACHE_MAX", 5000),

		// Thresholds
		WhaleValueUSD:   getEnvFloat("WHALE_VALUE_USD", 2500),
		NicheMarketPct:  getEnvFloat("NICHE_MARKET_PCT", 0.03),
		NicheFloorUSD:   getEnvFloat("NICHE_FLOOR_USD", 500),
		CapitalFloorUSD: getEnvFloat("CAPITAL_FLOOR_USD", 3000),

		// Quality filter
		MinCopyPrice:    getEnvFloat("MIN_COPY_PRICE", 0.15),
		MaxCopyPrice:    getEnvFloat("MAX_COPY_PRICE", 0.82),
		MinLiquidityUSD: getEnvFloat("MIN_LIQUIDITY_USD", 25000),

		// Windows
		AgreementWindow:       time.Duration(getEnvInt("AGREEMENT_WINDOW_MINUTES", 30)) * time.Minute,
		CoordinationRetention: time.Duration(getEnvInt("COORDINATION_RETENTION_MINUTES", 60)) * time.Minute,
		CoordinationWindow:    time.Duration(getEnvInt("COORDINATION_WINDOW_SECONDS", 300)) * time.Second,

		// Dedup
		SeenCapacity:     getEnvInt("SEEN_CAPACITY", 5000),
		SnapshotPath:     getEnv("SNAPSHOT_PATH", "./data/seen_events.json"),
		SnapshotMaxAge:   time.Duration(getEnvInt("SNAPSHOT_MAX_AGE_HOURS", 2)) * time.Hour,
		SnapshotEvery:    getEnvInt("SNAPSHOT_EVERY_CYCLES", 50),
		MaintenanceEvery: getEnvInt("MAINTENANCE_EVERY_CYCLES", 100),

		// Reputation
		ReputationCommand: getEnv("REPUTATION_COMMAND", ""),
		ReputationWorkers: getEnvInt("REPUTATION_WORKERS", 3),
		ReputationWait:    time.Duration(getEnvInt("REPUTATION_WAIT_SECONDS", 20)) * time.Second,
		ReputationTTL:     time.Duration(getEnvInt("REPUTATION_TTL_HOURS", 6)) * time.Hour,
		PendingTTL:        time.Duration(getEnvInt("PENDING_TTL_MINUTES", 10)) * time.Minute,

		// Classifier
		RulesPath: getEnv("RULES_PATH", ""),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
// Capacity misconfiguration is escalated here rather than absorbed at runtime.
func (c *Config) Validate() error {
	if c.DataAPIURL == "" {
		return fmt.Errorf("DATA_API_URL is required")
	}

	if c.WhaleValueUSD <= 0 {
		return fmt.Errorf("WHALE_VALUE_USD must be positive")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}

	if c.SeenCapacity < 1 {
		return fmt.Errorf("SEEN_CAPACITY must be at least 1")
	}

	if c.EventAgeWindow <= 0 {
		return fmt.Errorf("EVENT_AGE_WINDOW_MINUTES must be positive")
	}

	if c.AgreementWindow <= 0 || c.CoordinationWindow <= 0 || c.CoordinationRetention <= 0 {
		return fmt.Errorf("aggregator windows must be positive")
	}

	if c.CoordinationWindow > c.CoordinationRetention {
		return fmt.Errorf("COORDINATION_WINDOW_SECONDS must not exceed retention")
	}

	if c.ReputationWorkers < 1 {
		return fmt.Errorf("REPUTATION_WORKERS must be at least 1")
	}

	if c.ReputationTTL <= 0 || c.PendingTTL <= 0 {
		return fmt.Errorf("reputation TTLs must be positive")
	}

	return nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
