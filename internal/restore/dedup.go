package restore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-restore/internal/inventory"
)

// Deduplicator filters candidates against the store and against each other.
type Deduplicator struct {
	store  InventoryStore
	runner Runner
	scheme inventory.StatusScheme
	logger *slog.Logger
}

// NewDeduplicator constructs a Deduplicator deriving statuses with scheme.
func NewDeduplicator(store InventoryStore, runner Runner, scheme inventory.StatusScheme, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{store: store, runner: runner, scheme: scheme, logger: logger}
}

// DedupResult is the outcome of Filter.
type DedupResult struct {
	Accepted   []inventory.Record
	Duplicates int
}

// Filter looks up all candidates in one store round trip and returns the
// ones that are neither stored already nor repeated earlier in the batch,
// materialized as records. A stored legacy marker rejects a candidate even
// when its content differs.
func (d *Deduplicator) Filter(ctx context.Context, candidates []Candidate, now time.Time) (DedupResult, error) {
	if len(candidates) == 0 {
		return DedupResult{}, nil
	}

	keys := make([]inventory.ContentKey, 0, len(candidates))
	markers := make([]string, 0, len(candidates))
	queued := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if hash := c.Key.Hash(); !contains(queued, hash) {
			queued[hash] = struct{}{}
			keys = append(keys, c.Key)
		}
		if c.Marker != "" {
			markers = append(markers, c.Marker)
		}
	}

	var existing []inventory.Record
	err := d.runner.Run(ctx, "inventory.find_matches", func(ctx context.Context) error {
		var err error
		existing, err = d.store.FindMatches(ctx, keys, markers)
		return err
	})
	if err != nil {
		return DedupResult{}, fmt.Errorf("restore: look up existing records: %w", err)
	}

	storedMarkers := make(map[string]struct{}, len(existing))
	storedKeys := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		if rec.Notes != nil {
			storedMarkers[*rec.Notes] = struct{}{}
		}
		storedKeys[inventory.KeyOf(rec).Hash()] = struct{}{}
	}

	result := DedupResult{Accepted: make([]inventory.Record, 0, len(candidates))}
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		hash := c.Key.Hash()
		switch {
		case c.Marker != "" && contains(storedMarkers, c.Marker):
			result.Duplicates++
			d.logger.Debug("skip record with restored legacy id", slog.String("marker", c.Marker))
		case contains(storedKeys, hash):
			result.Duplicates++
			d.logger.Debug("skip record already stored", slog.String("key", c.Key.String()))
		case contains(seen, hash) || (c.Marker != "" && contains(seen, c.Marker)):
			result.Duplicates++
			d.logger.Debug("skip record repeated in batch", slog.String("key", c.Key.String()))
		default:
			seen[hash] = struct{}{}
			if c.Marker != "" {
				seen[c.Marker] = struct{}{}
			}
			result.Accepted = append(result.Accepted, c.Record(d.scheme, now))
		}
	}
	return result, nil
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
