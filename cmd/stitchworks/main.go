package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stitchworks-erp/stitchworks-erp/internal/app"
	"github.com/stitchworks-erp/stitchworks-erp/internal/ledger"
	"github.com/stitchworks-erp/stitchworks-erp/internal/observability"
	"github.com/stitchworks-erp/stitchworks-erp/internal/orders"
	"github.com/stitchworks-erp/stitchworks-erp/internal/platform/cache"
	"github.com/stitchworks-erp/stitchworks-erp/internal/platform/db"
	"github.com/stitchworks-erp/stitchworks-erp/internal/returns"
	"github.com/stitchworks-erp/stitchworks-erp/internal/shared"
	"github.com/stitchworks-erp/stitchworks-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		// Config caching degrades to Postgres reads without Redis.
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

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, idempotencyStore)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(ordersRepo)

	returnConfig := returns.NewCachedConfig(
		returns.NewPGConfigStore(pool, cfg.ReturnDefaults()),
		redisClient,
		cfg.ReturnCacheTTL,
	)
	returnsRepo := returns.NewRepository(pool)
	returnsService := returns.NewService(returnsRepo, ordersService, returnConfig, auditLogger)
	returnsHandler := returns.NewHandler(logger, returnsService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		ReturnsHandler: returnsHandler,
		LedgerHandler:  ledgerHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
