// Package ingest pulls trade events from the Polymarket data feed and turns
// them into engine events.
package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/whalewatch/engine/internal/store"
)

// FlexFloat unmarshals a JSON number or a numeric string. The feed is not
// consistent about which one it sends.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*f = FlexFloat(v)
	return nil
}

// FeedTrade is one record from the data API trades endpoint.
type FeedTrade struct {
	ID              string          `json:"id"`
	ConditionID     string          `json:"conditionId"`
	Market          string          `json:"market"`
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
	EventSlug       string          `json:"eventSlug"`
	ProxyWallet     string          `json:"proxyWallet"`
	Name            string          `json:"name"`
	Pseudonym       string          `json:"pseudonym"`
	Side            string          `json:"side"`
	Outcome         string          `json:"outcome"`
	Price           FlexFloat       `json:"price"`
	Size            FlexFloat       `json:"size"`
	Timestamp       json.RawMessage `json:"timestamp"`
	CreatedAt       json.RawMessage `json:"createdAt"`
	TransactionHash string          `json:"transactionHash"`
}

// ToEvent converts a feed record into an engine event. now anchors the
// timestamp fallback and the synthesized-id fallback so the conversion stays
// deterministic under test.
func ToEvent(t FeedTrade, now time.Time) store.Event {
	sourceID := t.ID
	if sourceID == "" {
		sourceID = t.TransactionHash
	}
	if sourceID == "" {
		sourceID = fmt.Sprintf("synth-%d", now.UnixNano())
	}

	marketID := t.ConditionID
	if marketID == "" {
		marketID = t.Market
	}

	name := t.Name
	if name == "" {
		name = t.Pseudonym
	}
	if name == "" {
		name = "Anonymous"
	}

	slug := t.Slug
	if slug == "" {
		slug = t.EventSlug
	}

	price := float64(t.Price)
	size := float64(t.Size)

	return store.Event{
		ID:              sourceID + "_" + t.Outcome,
		SourceID:        sourceID,
		MarketID:        marketID,
		MarketTitle:     t.Title,
		MarketSlug:      slug,
		ActorID:         t.ProxyWallet,
		ActorName:       name,
		Side:            strings.ToUpper(t.Side),
		Outcome:         t.Outcome,
		Price:           price,
		Size:            size,
		CapitalUSD:      price * size,
		Timestamp:       ParseTimestamp(now, t.Timestamp, t.CreatedAt),
		TransactionHash: t.TransactionHash,
	}
}

var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
}

// ParseTimestamp tries each raw value as an epoch (seconds or milliseconds,
// integer or float) and then as a string in the known formats. Everything
// failing falls back to now: a trade with a broken timestamp is treated as
// fresh rather than dropped.
func ParseTimestamp(now time.Time, values ...json.RawMessage) time.Time {
	for _, raw := range values {
		if len(raw) == 0 {
			continue
		}
		s := strings.Trim(string(raw), `"`)
		if s == "" || s == "null" {
			continue
		}

		if epoch, err := strconv.ParseFloat(s, 64); err == nil {
			if epoch <= 0 {
				continue
			}
			if epoch > 1e12 {
				return time.UnixMilli(int64(epoch))
			}
			sec := int64(epoch)
			nsec := int64((epoch - float64(sec)) * 1e9)
			return time.Unix(sec, nsec)
		}

		for _, format := range timestampFormats {
			if t, err := time.Parse(format, s); err == nil {
				return t
			}
		}
	}

	return now
}
