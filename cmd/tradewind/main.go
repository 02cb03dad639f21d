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

	"github.com/tradewind-ops/tradewind/internal/app"
	"github.com/tradewind-ops/tradewind/internal/audit"
	audithttp "github.com/tradewind-ops/tradewind/internal/audit/http"
	"github.com/tradewind-ops/tradewind/internal/costs"
	"github.com/tradewind-ops/tradewind/internal/docstore"
	"github.com/tradewind-ops/tradewind/internal/masterdata"
	"github.com/tradewind-ops/tradewind/internal/observability"
	"github.com/tradewind-ops/tradewind/internal/orders"
	"github.com/tradewind-ops/tradewind/internal/platform/cache"
	"github.com/tradewind-ops/tradewind/internal/platform/db"
	"github.com/tradewind-ops/tradewind/internal/rating"
	"github.com/tradewind-ops/tradewind/jobs"
	"github.com/tradewind-ops/tradewind/report"
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

	logger := app.NewLogger(cfg, "tradewind-api")

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	ledgerCache := cache.NewCache(redisClient, "tradewind", cfg.LedgerTTL)

	metrics := observability.NewMetrics()

	catalogService := masterdata.NewService(masterdata.NewRepository(pool))
	catalogHandler := masterdata.NewHandler(catalogService, logger)

	auditService := audit.NewService(audit.NewRepository(pool))
	auditHandler := audithttp.NewHandler(auditService, logger)

	docstoreClient := docstore.NewClient(cfg.DocstoreURL)
	ratingClient := rating.NewClient(cfg.RatingURL)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(ordersRepo, catalogService, docstoreClient, jobsClient, metrics)
	ordersHandler := orders.NewHandler(ordersService, logger)

	costsService := costs.NewService(costs.NewRepository(pool), ordersRepo, ratingClient, ledgerCache)
	costsHandler := costs.NewHandler(costsService, logger)

	renderer, err := report.NewRenderer()
	if err != nil {
		logger.Error("parse report templates", slog.Any("error", err))
		os.Exit(1)
	}
	reportClient := report.NewClient(cfg.GotenbergURL)
	reportHandler := report.NewHandler(reportClient, renderer, ordersService, catalogService, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		OrdersHandler:     ordersHandler,
		CostsHandler:      costsHandler,
		MasterDataHandler: catalogHandler,
		AuditHandler:      auditHandler,
		ReportHandler:     reportHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
