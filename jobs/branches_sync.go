package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-restore/internal/jobs"
)

// BranchesSyncJob creates branches referenced by inventory records.
type BranchesSyncJob struct {
	Service Restorer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBranchesSyncJob constructs the job handler.
func NewBranchesSyncJob(service Restorer, logger *slog.Logger, metrics *jobmetrics.Metrics) *BranchesSyncJob {
	return &BranchesSyncJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle runs one synchronization.
func (j *BranchesSyncJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("branches sync: dependencies not configured")
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracker := j.Metrics.Track(TaskBranchesSync)
	result, err := j.Service.SyncBranches(ctx)
	if err != nil {
		logger.Error("branches sync", slog.Any("error", err))
		return tracker.End(err)
	}
	if result.Created > 0 {
		logger.Info("branches sync created branches", slog.Int("created", result.Created), slog.Any("names", result.Names))
	}
	return tracker.End(nil)
}
