package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-restore/internal/restore"
	"github.com/odyssey-erp/odyssey-restore/internal/restore/backup"
	"github.com/odyssey-erp/odyssey-restore/jobs"
)

// Restorer runs one batch in-process.
type Restorer interface {
	RestoreBatch(ctx context.Context, records []restore.LegacyRecord, overrideBranch string) (restore.Summary, error)
}

// Enqueuer hands batches to the worker.
type Enqueuer interface {
	EnqueueRestoreBatch(ctx context.Context, payload jobs.RestoreBatchPayload) (*asynq.TaskInfo, error)
}

// RestoreOptions mirrors the flags of the restore command.
type RestoreOptions struct {
	File       string
	Branch     string
	BatchSize  int
	Sheet      string
	Table      string
	Enqueue    bool
	JSONOutput bool
	Stdout     io.Writer
}

// RestoreReport is printed when the command finishes.
type RestoreReport struct {
	File    string          `json:"file"`
	Batches int             `json:"batches"`
	Queued  int             `json:"queued,omitempty"`
	Summary restore.Summary `json:"summary"`
}

// RestoreCLI reads a backup file and restores it batch by batch.
type RestoreCLI struct {
	restorer Restorer
	enqueuer Enqueuer
	read     func(ctx context.Context, path string, opts backup.Options) ([]restore.LegacyRecord, error)
	logger   *slog.Logger
}

// NewRestoreCLI wires the helper. Either dependency may be nil when the
// matching mode is not used.
func NewRestoreCLI(restorer Restorer, enqueuer Enqueuer, logger *slog.Logger) *RestoreCLI {
	if logger == nil {
		logger = slog.Default()
	}
	return &RestoreCLI{restorer: restorer, enqueuer: enqueuer, read: backup.ReadFile, logger: logger}
}

// Run restores the file named in opts. A failing batch stops the run; the
// report covers the batches completed before it.
func (c *RestoreCLI) Run(ctx context.Context, opts RestoreOptions) (RestoreReport, error) {
	report := RestoreReport{File: filepath.Base(opts.File)}
	if opts.File == "" {
		return report, errors.New("restore cli: --file is required")
	}
	if opts.BatchSize <= 0 {
		return report, fmt.Errorf("restore cli: invalid batch size %d", opts.BatchSize)
	}
	if opts.Enqueue && c.enqueuer == nil {
		return report, errors.New("restore cli: queue client not configured")
	}
	if !opts.Enqueue && c.restorer == nil {
		return report, errors.New("restore cli: restore service not configured")
	}

	records, err := c.read(ctx, opts.File, backup.Options{Sheet: opts.Sheet, Table: opts.Table})
	if err != nil {
		return report, err
	}
	batches := backup.Chunk(records, opts.BatchSize)
	c.logger.Info("backup loaded",
		slog.String("file", report.File),
		slog.Int("records", len(records)),
		slog.Int("batches", len(batches)))

	for i, batch := range batches {
		if opts.Enqueue {
			info, err := c.enqueuer.EnqueueRestoreBatch(ctx, jobs.RestoreBatchPayload{
				Records:        batch,
				OverrideBranch: opts.Branch,
				Source:         report.File,
			})
			if err != nil {
				return report, fmt.Errorf("restore cli: enqueue batch %d: %w", i+1, err)
			}
			report.Batches++
			report.Queued += len(batch)
			c.logger.Debug("batch queued", slog.Int("batch", i+1), slog.String("task_id", info.ID))
			continue
		}
		summary, err := c.restorer.RestoreBatch(ctx, batch, opts.Branch)
		if err != nil {
			return report, fmt.Errorf("restore cli: batch %d: %w", i+1, err)
		}
		report.Batches++
		report.Summary.Add(summary)
	}

	if opts.Stdout != nil {
		if err := writeRestoreReport(opts.Stdout, report, opts.Enqueue, opts.JSONOutput); err != nil {
			return report, err
		}
	}
	return report, nil
}

func writeRestoreReport(w io.Writer, report RestoreReport, queued, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	var err error
	if queued {
		_, err = fmt.Fprintf(w, "%s: queued %d records in %d batches\n", report.File, report.Queued, report.Batches)
		return err
	}
	_, err = fmt.Fprintf(w, "%s: imported %d, skipped %d, processed %d (%d batches)\n",
		report.File, report.Summary.Imported, report.Summary.Skipped, report.Summary.TotalProcessed, report.Batches)
	return err
}
