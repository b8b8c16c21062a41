package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-restore/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-restore/internal/app"
	"github.com/odyssey-erp/odyssey-restore/internal/restore"
	"github.com/odyssey-erp/odyssey-restore/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "odyssey",
		Short:         "Inventory backup restore service",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newRestoreCmd(), newSyncBranchesCmd(), newQueueStatsCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newRestoreCmd() *cobra.Command {
	var opts cli.RestoreOptions
	var batchSize int

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore inventory records from a backup file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			opts.Stdout = cmd.OutOrStdout()
			opts.BatchSize = rt.cfg.RestoreBatchSize
			if cmd.Flags().Changed("batch-size") {
				opts.BatchSize = batchSize
			}

			var enqueuer cli.Enqueuer
			if opts.Enqueue {
				client := jobs.NewClient(rt.redisOpt)
				defer client.Close()
				enqueuer = client
			} else if err := rt.connect(ctx); err != nil {
				return err
			}
			_, err = cli.NewRestoreCLI(rt.service, enqueuer, rt.logger).Run(ctx, opts)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "Backup file (.json, .db, .sqlite, .xlsx)")
	cmd.Flags().StringVar(&opts.Branch, "branch", "", "Assign every record to this branch")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Records per batch (default RESTORE_BATCH_SIZE)")
	cmd.Flags().StringVar(&opts.Sheet, "sheet", "", "Worksheet of an XLSX backup")
	cmd.Flags().StringVar(&opts.Table, "table", "", "Table of a SQLite backup")
	cmd.Flags().BoolVar(&opts.Enqueue, "enqueue", false, "Queue batches for the worker instead of restoring in-process")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Print the summary as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSyncBranchesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sync-branches",
		Short: "Create branches referenced only by inventory records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.connect(ctx); err != nil {
				return err
			}
			_, err = cli.SyncBranches(ctx, rt.service, cmd.OutOrStdout(), asJSON)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue-stats",
		Short: "Show the restore queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			helper := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
			defer helper.Close()
			stats, err := helper.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("%s: pending %d, active %d, scheduled %d, retry %d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
			return nil
		},
	}
}

func runServe(ctx context.Context) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	go func() {
		if err := rt.connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("database not ready", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(rt.redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         rt.cfg,
		RestoreHandler: restore.NewHandler(logger, rt.service, rt.manager, rt.cfg.RestoreMaxBatch),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        rt.metrics,
	})

	server := &http.Server{
		Addr:         rt.cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  rt.cfg.AppReadTimeout,
		WriteTimeout: rt.cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", rt.cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}
