package main

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-restore/internal/app"
	"github.com/odyssey-erp/odyssey-restore/internal/inventory"
	"github.com/odyssey-erp/odyssey-restore/internal/masterdata/branches"
	"github.com/odyssey-erp/odyssey-restore/internal/observability"
	"github.com/odyssey-erp/odyssey-restore/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-restore/internal/platform/db"
	"github.com/odyssey-erp/odyssey-restore/internal/restore"
)

// runtime holds the process-wide dependencies shared by all commands.
type runtime struct {
	cfg      *app.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	manager  *db.Manager
	redis    *redis.Client
	service  *restore.Service
	records  *inventory.Repository
	redisOpt asynq.RedisClientOpt
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	manager := db.NewManager(db.PostgresDialer{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns}, cfg.ManagerConfig(), logger)
	executor := db.NewExecutor(manager, cfg.ExecutorConfig(), logger, metrics.Registerer())

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Warn("redis unavailable, restore lock is process-local", slog.Any("error", err))
		redisClient = nil
	}
	var lockClient redis.UniversalClient
	if redisClient != nil {
		lockClient = redisClient
	}

	records := inventory.NewRepository(manager, cfg.DBBulkTimeout)
	service := restore.NewService(restore.ServiceParams{
		Inventory: records,
		Branches:  branches.NewRepository(manager),
		Runner:    executor,
		Lock:      cache.NewLock(lockClient, cfg.LockConfig(), logger),
		Scheme:    cfg.StatusScheme,
		Metrics:   restore.NewMetrics(metrics.Registerer()),
		Logger:    logger,
	})

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		manager:  manager,
		redis:    redisClient,
		service:  service,
		records:  records,
		redisOpt: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
	}, nil
}

// connect blocks until the database is reachable or the retry budget is spent.
func (rt *runtime) connect(ctx context.Context) error {
	if err := rt.manager.EnsureReady(ctx); err != nil {
		return err
	}
	warnASCIIFolding(ctx, rt.records, rt.logger)
	return nil
}

// warnASCIIFolding logs when duplicate lookups cannot fold non-ASCII names.
func warnASCIIFolding(ctx context.Context, records *inventory.Repository, logger *slog.Logger) {
	ok, err := records.FoldsUnicode(ctx)
	switch {
	case err != nil:
		logger.Warn("case folding check", slog.Any("error", err))
	case !ok:
		logger.Warn("database lower() folds ASCII only; non-ASCII duplicates are caught by unique indexes instead of the lookup")
	}
}

func (rt *runtime) Close() {
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	rt.manager.Close()
}
