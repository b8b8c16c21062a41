package restore

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/odyssey-restore/internal/inventory"
)

// CommitResult counts what a Committer wrote.
type CommitResult struct {
	Imported int
	Failed   int
}

// Committer persists an already deduplicated batch.
type Committer interface {
	Commit(ctx context.Context, records []inventory.Record) (CommitResult, error)
}

// BulkCommitter writes the whole batch in one operation. It either imports
// every record or returns an error.
type BulkCommitter struct {
	store  InventoryStore
	runner Runner
}

func NewBulkCommitter(store InventoryStore, runner Runner) *BulkCommitter {
	return &BulkCommitter{store: store, runner: runner}
}

func (c *BulkCommitter) Commit(ctx context.Context, records []inventory.Record) (CommitResult, error) {
	if len(records) == 0 {
		return CommitResult{}, nil
	}
	err := c.runner.Run(ctx, "inventory.insert_many", func(ctx context.Context) error {
		return c.store.InsertMany(ctx, records)
	})
	if err != nil {
		return CommitResult{}, err
	}
	return CommitResult{Imported: len(records)}, nil
}

// SequentialCommitter writes records one at a time. A failing record is
// logged and counted; the rest still get written.
type SequentialCommitter struct {
	store  InventoryStore
	runner Runner
	logger *slog.Logger
}

func NewSequentialCommitter(store InventoryStore, runner Runner, logger *slog.Logger) *SequentialCommitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SequentialCommitter{store: store, runner: runner, logger: logger}
}

func (c *SequentialCommitter) Commit(ctx context.Context, records []inventory.Record) (CommitResult, error) {
	var result CommitResult
	for _, rec := range records {
		err := c.runner.Run(ctx, "inventory.insert", func(ctx context.Context) error {
			return c.store.Insert(ctx, rec)
		})
		if err != nil {
			result.Failed++
			c.logger.Warn("record not restored",
				slog.String("product", rec.ProductName),
				slog.String("branch", rec.BranchName),
				slog.Any("error", err),
			)
			continue
		}
		result.Imported++
	}
	return result, nil
}

// FallbackCommitter tries Primary and, when it fails, hands the whole batch
// to Fallback.
type FallbackCommitter struct {
	Primary    Committer
	Fallback   Committer
	Logger     *slog.Logger
	OnFallback func()
}

func (c *FallbackCommitter) Commit(ctx context.Context, records []inventory.Record) (CommitResult, error) {
	result, err := c.Primary.Commit(ctx, records)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return CommitResult{Failed: len(records)}, ctx.Err()
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("bulk restore failed, writing records one by one",
		slog.Int("records", len(records)),
		slog.Any("error", err),
	)
	if c.OnFallback != nil {
		c.OnFallback()
	}
	return c.Fallback.Commit(ctx, records)
}
