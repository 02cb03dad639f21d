package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tradewind-ops/tradewind/internal/app"
	"github.com/tradewind-ops/tradewind/internal/docstore"
	jobmetrics "github.com/tradewind-ops/tradewind/internal/jobs"
	"github.com/tradewind-ops/tradewind/internal/masterdata"
	"github.com/tradewind-ops/tradewind/internal/orders"
	"github.com/tradewind-ops/tradewind/internal/platform/db"
	"github.com/tradewind-ops/tradewind/jobs"
	"github.com/tradewind-ops/tradewind/report"
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

	logger := app.NewLogger(cfg, "tradewind-worker")

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	catalogService := masterdata.NewService(masterdata.NewRepository(pool))
	docstoreClient := docstore.NewClient(cfg.DocstoreURL)

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
	ordersService := orders.NewService(ordersRepo, catalogService, docstoreClient, jobsClient, nil)

	renderer, err := report.NewRenderer()
	if err != nil {
		logger.Error("parse report templates", slog.Any("error", err))
		os.Exit(1)
	}
	gotenbergClient := report.NewClient(cfg.GotenbergURL)

	metrics := jobmetrics.NewMetrics(nil)
	renderJob := jobs.NewDocRenderJob(ordersService, catalogService, renderer, gotenbergClient, docstoreClient, logger, metrics)
	sweepJob := jobs.NewSlotSweepJob(docstoreClient, logger, metrics)

	sweepTask, err := jobs.NewSweepUploadSlotsTask(time.Now().UTC())
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRenderDocument, Handler: renderJob.Handle},
			{Type: jobs.TaskSweepUploadSlots, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 2 * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
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
