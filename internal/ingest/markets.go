package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

const (
	// ConservativeVolume is assumed when the volume lookup fails. It sits
	// above the liquidity floor, so an unknown market is treated as liquid
	// enough rather than silently filtered out.
	ConservativeVolume = 100_000

	// DefaultCacheMax caps the volume cache; a fifth is evicted when full.
	DefaultCacheMax = 5000
)

// gammaMarket is the subset of the market metadata we read.
type gammaMarket struct {
	Volume    FlexFloat `json:"volume"`
	VolumeNum FlexFloat `json:"volumeNum"`
}

// VolumeClient resolves market volumes from the Gamma API with a capped
// cache and a circuit breaker. Lookups never fail: a broken API degrades to
// the conservative default. Owned by the engine loop, not locked.
type VolumeClient struct {
	baseURL  string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	cache    map[string]float64
	cacheMax int
	order    []string
}

// NewVolumeClient creates a client against the given Gamma API base URL.
func NewVolumeClient(baseURL string, cacheMax int) *VolumeClient {
	if cacheMax <= 0 {
		cacheMax = DefaultCacheMax
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "gamma-volume",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("volume_breaker_state", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &VolumeClient{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		breaker:  breaker,
		cache:    make(map[string]float64),
		cacheMax: cacheMax,
	}
}

// Volume returns the total traded volume for a market. The slug keys the
// lookup; conditionID is the cache fallback key for records without one. A
// missing slug or a failed lookup yields the conservative default.
func (v *VolumeClient) Volume(ctx context.Context, slug, conditionID string) float64 {
	key := slug
	if key == "" {
		key = conditionID
	}
	if key == "" {
		return ConservativeVolume
	}

	if vol, ok := v.cache[key]; ok {
		return vol
	}

	if slug == "" {
		// No slug to query by; remember the miss so we do not retry.
		v.put(key, ConservativeVolume)
		return ConservativeVolume
	}

	vol, err := v.fetch(ctx, slug)
	if err != nil {
		// Not cached: the next event for this market retries once the
		// breaker allows it.
		slog.Warn("volume_lookup_failed", "slug", slug, "error", err)
		return ConservativeVolume
	}

	v.put(key, vol)
	return vol
}

func (v *VolumeClient) fetch(ctx context.Context, slug string) (float64, error) {
	result, err := v.breaker.Execute(func() (interface{}, error) {
		u := fmt.Sprintf("%s/markets?slug=%s", v.baseURL, url.QueryEscape(slug))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := v.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		var markets []gammaMarket
		if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
			return nil, fmt.Errorf("decode markets: %w", err)
		}
		if len(markets) == 0 {
			return float64(0), nil
		}

		vol := float64(markets[0].Volume)
		if vol == 0 {
			vol = float64(markets[0].VolumeNum)
		}
		return vol, nil
	})
	if err != nil {
		return 0, err
	}

	return result.(float64), nil
}

// put stores a volume, evicting the oldest fifth of the cache when full.
func (v *VolumeClient) put(key string, vol float64) {
	if len(v.cache) >= v.cacheMax {
		evict := v.cacheMax / 5
		if evict < 1 {
			evict = 1
		}
		slog.Info("volume_cache_evicting", "count", evict)
		for _, k := range v.order[:evict] {
			delete(v.cache, k)
		}
		v.order = v.order[evict:]
	}

	v.cache[key] = vol
	v.order = append(v.order, key)
}

// CacheLen reports the cache size, for heartbeat logging.
func (v *VolumeClient) CacheLen() int {
	return len(v.cache)
}
