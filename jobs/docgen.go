package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tradewind-ops/tradewind/internal/jobs"
	"github.com/tradewind-ops/tradewind/internal/masterdata"
	"github.com/tradewind-ops/tradewind/internal/orders"
	"github.com/tradewind-ops/tradewind/internal/shared"
	"github.com/tradewind-ops/tradewind/report"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// renderActor is the audit identity the worker writes under.
const renderActor = "system:docgen"

// DocRenderJob renders a queued order artifact, stores the PDF and records
// the result on the order.
type DocRenderJob struct {
	Orders    *orders.Service
	Catalog   masterdata.Service
	Renderer  *report.Renderer
	Gotenberg *report.Client
	Store     ArtifactStore
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// ArtifactStore persists rendered artifacts.
type ArtifactStore interface {
	Store(ctx context.Context, orderID int64, kind orders.OutputKind, fileName string, pdf []byte) (string, error)
}

// NewDocRenderJob wires dependencies for the render handler.
func NewDocRenderJob(ordersSvc *orders.Service, catalog masterdata.Service, renderer *report.Renderer, gotenberg *report.Client, store ArtifactStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *DocRenderJob {
	return &DocRenderJob{
		Orders:    ordersSvc,
		Catalog:   catalog,
		Renderer:  renderer,
		Gotenberg: gotenberg,
		Store:     store,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes document render tasks.
func (j *DocRenderJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("docgen: handler not configured")
	}
	var payload RenderDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	kind := orders.OutputKind(payload.Kind)
	if !kind.Valid() || payload.OrderID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskRenderDocument)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("order_id", payload.OrderID), slog.String("kind", payload.Kind))
	start := j.now()
	ctx = shared.ContextWithActor(ctx, renderActor)

	o, err := j.Orders.Get(ctx, payload.OrderID)
	if err != nil {
		var notFound *shared.NotFoundError
		if errors.As(err, &notFound) {
			logger.Warn("order vanished before render, dropping task")
			return asynq.SkipRetry
		}
		resultErr = err
		logger.Error("load order", slog.Any("error", err))
		return resultErr
	}

	supplierName := ""
	if sup, err := j.Catalog.GetSupplier(ctx, o.SupplierID); err == nil {
		supplierName = sup.Name
	} else {
		var notFound *shared.NotFoundError
		if !errors.As(err, &notFound) {
			resultErr = err
			logger.Error("resolve supplier", slog.Any("error", err))
			return resultErr
		}
	}

	html, err := j.Renderer.BuildHTML(kind, o, supplierName)
	if err != nil {
		logger.Error("build html", slog.Any("error", err))
		resultErr = err
		return fmt.Errorf("build html: %w", asynq.SkipRetry)
	}

	pdf, err := j.Gotenberg.RenderHTML(ctx, html)
	if err != nil {
		resultErr = err
		logger.Error("render pdf", slog.Any("error", err))
		return resultErr
	}

	fileName := fmt.Sprintf("%s-%s.pdf", o.OrderNumber, kind)
	storageKey, err := j.Store.Store(ctx, o.ID, kind, fileName, pdf)
	if err != nil {
		resultErr = err
		logger.Error("store artifact", slog.Any("error", err))
		return resultErr
	}

	if err := j.Orders.RecordGeneratedOutput(ctx, o.ID, kind, storageKey, payload.RequestedBy); err != nil {
		resultErr = err
		logger.Error("record output", slog.String("storage_key", storageKey), slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddRendered(payload.Kind)
	logger.Info("rendered artifact", slog.String("storage_key", storageKey), slog.Int("bytes", len(pdf)), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *DocRenderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRenderDocument))
	}
	return slog.Default().With(slog.String("job", TaskRenderDocument))
}

func (j *DocRenderJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DocRenderJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
