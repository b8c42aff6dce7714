package detector

import (
	"fmt"

	"github.com/whalewatch/engine/internal/store"
)

// FilterConfig holds the trade quality thresholds.
type FilterConfig struct {
	MinPrice        float64
	MaxPrice        float64
	MinLiquidityUSD float64
}

// TradeFilter rejects trades that are not worth acting on even when notable:
// prices outside the copyable band and markets too thin to enter.
type TradeFilter struct {
	cfg FilterConfig
}

// NewTradeFilter creates a filter with the given thresholds.
func NewTradeFilter(cfg FilterConfig) *TradeFilter {
	return &TradeFilter{cfg: cfg}
}

// Check returns ok=false with a human-readable reason when the trade fails
// the quality gate. marketVolume <= 0 (unknown) passes the liquidity check,
// callers supply a conservative default in that case.
func (f *TradeFilter) Check(ev store.Event, marketVolume float64) (ok bool, reason string) {
	if ev.Price < f.cfg.MinPrice {
		return false, fmt.Sprintf("price %.3f below copyable band %.2f", ev.Price, f.cfg.MinPrice)
	}
	if ev.Price > f.cfg.MaxPrice {
		return false, fmt.Sprintf("price %.3f above copyable band %.2f", ev.Price, f.cfg.MaxPrice)
	}
	if marketVolume > 0 && marketVolume < f.cfg.MinLiquidityUSD {
		return false, fmt.Sprintf("market volume $%.0f below liquidity floor $%.0f", marketVolume, f.cfg.MinLiquidityUSD)
	}
	return true, ""
}
