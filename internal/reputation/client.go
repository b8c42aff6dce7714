// Package reputation resolves actor trust tiers through a slow external
// scorer, gating concurrency and correcting decisions made before the tier
// was known.
package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/whalewatch/engine/internal/store"
)

// Client looks up the reputation of one actor. Implementations are expected
// to be slow and unreliable.
type Client interface {
	Lookup(ctx context.Context, actorID string) (store.ReputationRecord, error)
}

// Retry schedule for the external scorer.
var lookupDelays = []time.Duration{10 * time.Second, 20 * time.Second}

// CommandClient shells out to an external scorer process. The command
// receives the actor id as its last argument and must print a JSON object
// with "tier" and "score" fields on stdout.
type CommandClient struct {
	command string
	args    []string
	timeout time.Duration
	now     func() time.Time
}

// NewCommandClient builds a client from a command line, e.g.
// "python3 scorer.py". An empty command is rejected at wiring time.
func NewCommandClient(commandLine string, timeout time.Duration) (*CommandClient, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("reputation command is empty")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &CommandClient{
		command: fields[0],
		args:    fields[1:],
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// scorerOutput is the JSON contract with the external scorer.
type scorerOutput struct {
	Tier  string `json:"tier"`
	Score int    `json:"score"`
}

// Lookup runs the scorer with up to three attempts at increasing delays.
func (c *CommandClient) Lookup(ctx context.Context, actorID string) (store.ReputationRecord, error) {
	var lastErr error

	for attempt := 0; attempt <= len(lookupDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return store.ReputationRecord{}, ctx.Err()
			case <-time.After(lookupDelays[attempt-1]):
			}
		}

		rec, err := c.runOnce(ctx, actorID)
		if err == nil {
			return rec, nil
		}
		lastErr = err
		slog.Warn("reputation_lookup_attempt_failed",
			"actor", actorID,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return store.ReputationRecord{}, fmt.Errorf("reputation lookup for %s: %w", actorID, lastErr)
}

func (c *CommandClient) runOnce(ctx context.Context, actorID string) (store.ReputationRecord, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string{}, c.args...), actorID)
	out, err := exec.CommandContext(runCtx, c.command, args...).Output()
	if err != nil {
		return store.ReputationRecord{}, fmt.Errorf("run scorer: %w", err)
	}

	var parsed scorerOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return store.ReputationRecord{}, fmt.Errorf("parse scorer output: %w", err)
	}
	if parsed.Tier == "" {
		return store.ReputationRecord{}, fmt.Errorf("scorer returned no tier")
	}

	return store.ReputationRecord{
		ActorID:  actorID,
		Tier:     parsed.Tier,
		Score:    parsed.Score,
		CachedAt: c.now(),
	}, nil
}
