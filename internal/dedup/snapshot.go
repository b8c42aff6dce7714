package dedup

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// snapshot is the on-disk format for the seen-ID set.
type snapshot struct {
	SavedAt time.Time `json:"saved_at"`
	IDs     []string  `json:"ids"`
}

// Save writes the store's IDs to path atomically (write temp, rename).
func (s *SeenStore) Save(path string, now time.Time) error {
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	data, err := json.Marshal(snapshot{SavedAt: now, IDs: s.IDs()})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	return nil
}

// Load restores IDs from a snapshot at path. Snapshots older than maxAge are
// discarded so a long-stopped process starts clean. Missing or corrupted
// snapshots are logged and ignored, never fatal.
func (s *SeenStore) Load(path string, now time.Time, maxAge time.Duration) {
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("snapshot_read_failed", "path", path, "error", err)
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("snapshot_corrupted", "path", path, "error", err)
		return
	}

	if maxAge > 0 && now.Sub(snap.SavedAt) > maxAge {
		slog.Info("snapshot_stale", "path", path, "age", now.Sub(snap.SavedAt))
		return
	}

	for _, id := range snap.IDs {
		s.Mark(id)
	}

	slog.Info("snapshot_loaded", "path", path, "ids", len(snap.IDs))
}
