// Package main is the entry point for the whalewatch detection engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/whalewatch/engine/internal/config"
	"github.com/whalewatch/engine/internal/engine"
	"github.com/whalewatch/engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("whalewatch starting", "version", "1.0.0")

	slog.Info("config_loaded",
		"data_api_url", cfg.DataAPIURL,
		"gamma_api_url", cfg.GammaAPIURL,
		"ws_listener", cfg.EnableWSListener,
		"poll_interval", cfg.PollInterval,
		"whale_value_usd", cfg.WhaleValueUSD,
		"niche_market_pct", cfg.NicheMarketPct,
		"capital_floor_usd", cfg.CapitalFloorUSD,
		"seen_capacity", cfg.SeenCapacity,
		"snapshot_path", cfg.SnapshotPath,
		"reputation_workers", cfg.ReputationWorkers,
		"reputation_enabled", cfg.ReputationCommand != "",
		"rules_path", cfg.RulesPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	eng, err := engine.New(cfg)
	if err != nil {
		slog.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	go consumeDecisions(ctx, eng.Decisions())

	runDone := make(chan error, 1)
	go func() {
		runDone <- eng.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("shutdown_signal_received", "signal", sig.String())
		cancel()
		select {
		case <-runDone:
		case <-time.After(10 * time.Second):
			slog.Warn("shutdown_timeout")
		}
	case err := <-runDone:
		if err != nil {
			slog.Error("engine_failed", "error", err)
		}
		cancel()
	}

	fmt.Print(eng.Tracker().Summary())
	slog.Info("shutdown_complete")
}

// consumeDecisions surfaces decisions as structured logs. This is where an
// outbound notifier would hang off the decision stream.
func consumeDecisions(ctx context.Context, decisions <-chan store.Decision) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-decisions:
			logDecision(d)
		}
	}
}

func logDecision(d store.Decision) {
	event := "whale_decision"
	if d.Retroactive {
		event = "whale_decision_corrected"
	}

	attrs := []any{
		"action", string(d.Classification.Action),
		"signal", d.Classification.SignalID,
		"confidence", string(d.Classification.Confidence),
		"market", d.Event.MarketTitle,
		"category", d.Classification.Category,
		"actor", d.Event.ActorName,
		"side", d.Event.Side,
		"outcome", d.Event.Outcome,
		"price", d.Event.Price,
		"capital_usd", d.Event.CapitalUSD,
		"tier", orDash(d.Tier),
		"niche", d.Niche,
		"win_rate", d.Classification.WinRate,
		"expected_roi", d.Classification.ExpectedROI,
		"reasoning", strings.Join(d.Classification.Reasoning, " | "),
	}
	if len(d.Classification.Warnings) > 0 {
		attrs = append(attrs, "warnings", strings.Join(d.Classification.Warnings, " | "))
	}
	if d.Agreement.Agreed {
		attrs = append(attrs,
			"agreement_count", d.Agreement.Count,
			"agreement_side", d.Agreement.Side,
			"agreement_value_usd", d.Agreement.TotalValue,
		)
	}
	if d.Coordination.Coordinated {
		attrs = append(attrs, "coordination", d.Coordination.Description)
	}
	if d.Retroactive {
		attrs = append(attrs, "delay", d.Delay.Round(time.Second))
	}

	slog.Info(event, attrs...)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}
