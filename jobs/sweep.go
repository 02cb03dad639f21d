package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tradewind-ops/tradewind/internal/jobs"
)

// SlotSweeper removes expired upload slots.
type SlotSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// SlotSweepJob runs the nightly document store slot sweep.
type SlotSweepJob struct {
	Store   SlotSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSlotSweepJob wires dependencies for the sweep handler.
func NewSlotSweepJob(store SlotSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SlotSweepJob {
	return &SlotSweepJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes slot sweep tasks.
func (j *SlotSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("slot sweep: handler not configured")
	}
	var payload SweepUploadSlotsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSweepUploadSlots)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := j.Store.SweepExpired(sweepCtx)
	if err != nil {
		resultErr = err
		j.logger().Error("sweep upload slots", slog.Any("error", err))
		return resultErr
	}
	j.logger().Info("swept upload slots", slog.Int("removed", removed))
	return resultErr
}

func (j *SlotSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSweepUploadSlots))
	}
	return slog.Default().With(slog.String("job", TaskSweepUploadSlots))
}

func (j *SlotSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
