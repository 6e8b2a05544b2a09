package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stitchworks-erp/stitchworks-erp/internal/app"
	jobmetrics "github.com/stitchworks-erp/stitchworks-erp/internal/jobs"
	"github.com/stitchworks-erp/stitchworks-erp/internal/orders"
	"github.com/stitchworks-erp/stitchworks-erp/internal/platform/cache"
	"github.com/stitchworks-erp/stitchworks-erp/internal/platform/db"
	"github.com/stitchworks-erp/stitchworks-erp/internal/returns"
	"github.com/stitchworks-erp/stitchworks-erp/internal/shared"
	"github.com/stitchworks-erp/stitchworks-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ordersService := orders.NewService(orders.NewRepository(pool))
	returnConfig := returns.NewCachedConfig(
		returns.NewPGConfigStore(pool, cfg.ReturnDefaults()),
		redisClient,
		cfg.ReturnCacheTTL,
	)
	returnsService := returns.NewService(returns.NewRepository(pool), ordersService, returnConfig, auditLogger)

	metrics := jobmetrics.NewMetrics(nil)
	autoCancelJob := jobs.NewReturnsAutoCancelJob(returnsService, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger, metrics)

	autoCancelTask, err := jobs.NewReturnsAutoCancelTask(time.Now().UTC())
	if err != nil {
		logger.Error("build auto-cancel task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReturnsAutoCancel, Handler: autoCancelJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 1 * * *", Task: autoCancelTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * 0", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
