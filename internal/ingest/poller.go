package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultPollLimit is the number of trades requested per cycle.
	DefaultPollLimit = 1000

	fetchAttempts = 3
)

var fetchBackoff = []time.Duration{2 * time.Second, 5 * time.Second}

// Poller fetches recent trades from the data API. The engine loop drives the
// cadence; Fetch performs one cycle's pull with bounded retries.
type Poller struct {
	baseURL string
	limit   int
	client  *http.Client
	now     func() time.Time
}

// NewPoller creates a Poller against the given data API base URL.
func NewPoller(baseURL string, limit int) *Poller {
	if limit <= 0 {
		limit = DefaultPollLimit
	}
	return &Poller{
		baseURL: baseURL,
		limit:   limit,
		client:  &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

// Fetch pulls the latest trades, retrying transient failures with increasing
// backoff. On exhaustion it returns the error so the caller can skip the
// cycle; the feed is best-effort and the next cycle starts clean.
func (p *Poller) Fetch(ctx context.Context) ([]FeedTrade, error) {
	var lastErr error

	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			slog.Debug("feed_fetch_retry", "attempt", attempt+1, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(fetchBackoff[attempt-1]):
			}
		}

		trades, err := p.fetchOnce(ctx)
		if err == nil {
			return trades, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("fetch trades: %w", lastErr)
}

func (p *Poller) fetchOnce(ctx context.Context) ([]FeedTrade, error) {
	url := fmt.Sprintf("%s/trades?limit=%d", p.baseURL, p.limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var trades []FeedTrade
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}

	return trades, nil
}
