package restore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-restore/internal/inventory"
	"github.com/odyssey-erp/odyssey-restore/internal/masterdata/branches"
)

// Summary reports the outcome of one restore batch.
type Summary struct {
	Imported       int `json:"imported"`
	Skipped        int `json:"skipped"`
	TotalProcessed int `json:"totalProcessed"`
}

// Add accumulates other into s.
func (s *Summary) Add(other Summary) {
	s.Imported += other.Imported
	s.Skipped += other.Skipped
	s.TotalProcessed += other.TotalProcessed
}

// SyncResult reports the branches created by SyncBranches.
type SyncResult struct {
	Created int      `json:"created"`
	Names   []string `json:"names"`
}

// ServiceParams wires a Service.
type ServiceParams struct {
	Inventory InventoryStore
	Branches  BranchStore
	Runner    Runner
	// Lock serializes batches; nil disables serialization.
	Lock    Locker
	Scheme  inventory.StatusScheme
	Metrics *Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Service runs restore batches and branch synchronization.
type Service struct {
	inventory   InventoryStore
	branches    BranchStore
	runner      Runner
	lock        Locker
	provisioner *Provisioner
	dedup       *Deduplicator
	committer   Committer
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	syncGroup   singleflight.Group
}

// NewService constructs the restore service.
func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	scheme := p.Scheme
	if scheme == "" {
		scheme = inventory.SchemeFine
	}
	s := &Service{
		inventory:   p.Inventory,
		branches:    p.Branches,
		runner:      p.Runner,
		lock:        p.Lock,
		provisioner: NewProvisioner(p.Branches, p.Runner, logger),
		dedup:       NewDeduplicator(p.Inventory, p.Runner, scheme, logger),
		metrics:     p.Metrics,
		logger:      logger,
		now:         now,
	}
	s.committer = &FallbackCommitter{
		Primary:    NewBulkCommitter(p.Inventory, p.Runner),
		Fallback:   NewSequentialCommitter(p.Inventory, p.Runner, logger),
		Logger:     logger,
		OnFallback: p.Metrics.Fallback,
	}
	return s
}

// RestoreBatch imports records that are not stored yet. Per-record problems
// are counted in Skipped; an error means the batch could not run at all.
func (s *Service) RestoreBatch(ctx context.Context, records []LegacyRecord, overrideBranch string) (Summary, error) {
	summary := Summary{TotalProcessed: len(records)}
	if len(records) == 0 {
		return summary, nil
	}
	started := time.Now()
	logger := s.logger.With(slog.Int("records", len(records)))
	logger.Info("restore batch received")

	if s.lock != nil {
		release, err := s.lock.Acquire(ctx)
		if err != nil {
			err = fmt.Errorf("restore: acquire lock: %w", err)
			s.metrics.ObserveBatch(summary, 0, 0, err)
			return summary, err
		}
		defer release()
	}

	now := s.now()

	logger.Debug("restore phase", slog.String("phase", "provisioning"))
	if created, err := s.provisioner.EnsureBranches(ctx, BranchNames(records, overrideBranch)); err != nil {
		logger.Warn("branch provisioning failed, continuing", slog.Any("error", err))
	} else if created > 0 {
		logger.Info("restore provisioned branches", slog.Int("created", created))
	}

	logger.Debug("restore phase", slog.String("phase", "deduplicating"))
	candidates := make([]Candidate, 0, len(records))
	rejected := 0
	for i, rec := range records {
		c, err := Parse(rec, overrideBranch, now)
		if err != nil {
			rejected++
			logger.Debug("record rejected", slog.Int("index", i), slog.Any("reason", err))
			continue
		}
		candidates = append(candidates, c)
	}
	deduped, err := s.dedup.Filter(ctx, candidates, now)
	if err != nil {
		s.metrics.ObserveBatch(summary, rejected, 0, err)
		logger.Error("restore batch failed", slog.Any("error", err))
		return summary, err
	}

	logger.Debug("restore phase", slog.String("phase", "committing"), slog.Int("accepted", len(deduped.Accepted)))
	result, err := s.committer.Commit(ctx, deduped.Accepted)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.metrics.ObserveBatch(summary, rejected, deduped.Duplicates, err)
			return summary, fmt.Errorf("restore: commit: %w", err)
		}
		logger.Error("restore commit failed", slog.Any("error", err))
	}

	summary.Imported = result.Imported
	summary.Skipped = summary.TotalProcessed - summary.Imported
	s.metrics.ObserveBatch(summary, rejected, deduped.Duplicates, nil)
	logger.Info("restore batch reported",
		slog.Int("imported", summary.Imported),
		slog.Int("skipped", summary.Skipped),
		slog.Int("rejected", rejected),
		slog.Int("duplicates", deduped.Duplicates),
		slog.Int("failed", result.Failed),
		slog.Duration("elapsed", time.Since(started)),
	)
	return summary, nil
}

// SyncBranches creates a branch for every name referenced by stored
// inventory records that has no branch yet, compared case-insensitively.
// Concurrent calls share one scan.
func (s *Service) SyncBranches(ctx context.Context) (SyncResult, error) {
	v, err, _ := s.syncGroup.Do("sync", func() (any, error) {
		return s.syncBranches(ctx)
	})
	if err != nil {
		return SyncResult{}, err
	}
	return v.(SyncResult), nil
}

func (s *Service) syncBranches(ctx context.Context) (SyncResult, error) {
	var referenced, existing []string
	err := s.runner.Run(ctx, "inventory.distinct_branch_names", func(ctx context.Context) error {
		var err error
		referenced, err = s.inventory.DistinctBranchNames(ctx)
		return err
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("restore: list inventory branches: %w", err)
	}
	err = s.runner.Run(ctx, "branches.list_names", func(ctx context.Context) error {
		var err error
		existing, err = s.branches.ListNames(ctx)
		return err
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("restore: list branches: %w", err)
	}

	known := make(map[string]struct{}, len(existing)+len(referenced))
	for _, name := range existing {
		known[inventory.Fold(inventory.Clean(name, inventory.MaxBranchNameLen))] = struct{}{}
	}
	var missing []branches.Branch
	for _, name := range referenced {
		name = inventory.Clean(name, inventory.MaxBranchNameLen)
		folded := inventory.Fold(name)
		if name == "" || contains(known, folded) {
			continue
		}
		known[folded] = struct{}{}
		missing = append(missing, branches.NewDefault(name, AddressAutoCreated))
	}
	if len(missing) == 0 {
		return SyncResult{Names: []string{}}, nil
	}

	var created []string
	err = s.runner.Run(ctx, "branches.create_skip_existing", func(ctx context.Context) error {
		var err error
		created, err = s.branches.CreateSkipExisting(ctx, missing)
		return err
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("restore: create branches: %w", err)
	}
	if created == nil {
		created = []string{}
	}
	s.logger.Info("branches synchronized", slog.Int("created", len(created)))
	return SyncResult{Created: len(created), Names: created}, nil
}
