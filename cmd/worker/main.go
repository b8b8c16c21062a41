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
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-restore/internal/app"
	"github.com/odyssey-erp/odyssey-restore/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-restore/internal/jobs"
	"github.com/odyssey-erp/odyssey-restore/internal/masterdata/branches"
	"github.com/odyssey-erp/odyssey-restore/internal/observability"
	"github.com/odyssey-erp/odyssey-restore/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-restore/internal/platform/db"
	"github.com/odyssey-erp/odyssey-restore/internal/restore"
	"github.com/odyssey-erp/odyssey-restore/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	manager := db.NewManager(db.PostgresDialer{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns}, cfg.ManagerConfig(), logger)
	defer manager.Close()
	if err := manager.EnsureReady(ctx); err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	executor := db.NewExecutor(manager, cfg.ExecutorConfig(), logger, metrics.Registerer())
	records := inventory.NewRepository(manager, cfg.DBBulkTimeout)
	if ok, err := records.FoldsUnicode(ctx); err != nil || !ok {
		logger.Warn("database lower() may fold ASCII only", slog.Bool("unicode", ok), slog.Any("error", err))
	}

	var lockClient redis.UniversalClient
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	} else {
		lockClient = redisClient
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	service := restore.NewService(restore.ServiceParams{
		Inventory: records,
		Branches:  branches.NewRepository(manager),
		Runner:    executor,
		Lock:      cache.NewLock(lockClient, cfg.LockConfig(), logger),
		Scheme:    cfg.StatusScheme,
		Metrics:   restore.NewMetrics(metrics.Registerer()),
		Logger:    logger,
	})

	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	restoreJob := jobs.NewRestoreBatchJob(service, logger, jobMetrics)
	syncJob := jobs.NewBranchesSyncJob(service, logger, jobMetrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRestoreBatch, Handler: restoreJob.Handle},
			{Type: jobs.TaskBranchesSync, Handler: syncJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: jobs.NewBranchesSyncTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
