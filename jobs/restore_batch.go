package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-restore/internal/jobs"
	"github.com/odyssey-erp/odyssey-restore/internal/restore"
)

// Restorer is the part of the restore service the jobs drive.
type Restorer interface {
	RestoreBatch(ctx context.Context, records []restore.LegacyRecord, overrideBranch string) (restore.Summary, error)
	SyncBranches(ctx context.Context) (restore.SyncResult, error)
}

// RestoreBatchJob restores queued batches.
type RestoreBatchJob struct {
	Service Restorer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRestoreBatchJob constructs the job handler.
func NewRestoreBatchJob(service Restorer, logger *slog.Logger, metrics *jobmetrics.Metrics) *RestoreBatchJob {
	return &RestoreBatchJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes one restore batch. Undecodable payloads are dropped
// without retry; a structural failure is retried by the queue, which is
// safe because restored rows are skipped on the next attempt.
func (j *RestoreBatchJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("restore batch: dependencies not configured")
	}
	var payload RestoreBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		j.log().Warn("drop undecodable restore task", slog.Any("error", err))
		return fmt.Errorf("restore batch: decode payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskRestoreBatch)
	summary, err := j.Service.RestoreBatch(ctx, payload.Records, payload.OverrideBranch)
	if err != nil {
		j.log().Error("restore batch", slog.String("source", payload.Source), slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.AddRecords(payload.Source, "imported", summary.Imported)
	j.Metrics.AddRecords(payload.Source, "skipped", summary.Skipped)
	j.log().Info("restore batch processed",
		slog.String("source", payload.Source),
		slog.Int("imported", summary.Imported),
		slog.Int("skipped", summary.Skipped),
		slog.Int("total", summary.TotalProcessed),
	)
	return tracker.End(nil)
}

func (j *RestoreBatchJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
