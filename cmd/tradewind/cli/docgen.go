package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/tradewind-ops/tradewind/internal/orders"
	"github.com/tradewind-ops/tradewind/jobs"
)

// DocgenOpsCLI exposes helpers for managing document render jobs, mainly to
// requeue an artifact whose render failed after the task exhausted retries.
type DocgenOpsCLI struct {
	jobs *JobsCLI
}

// NewDocgenOpsCLI constructs the helper wired to the provided Redis endpoint.
func NewDocgenOpsCLI(redisAddr string) (*DocgenOpsCLI, error) {
	base, err := NewJobsCLI(redisAddr)
	if err != nil {
		return nil, err
	}
	return &DocgenOpsCLI{jobs: base}, nil
}

// Close releases the underlying Asynq resources.
func (c *DocgenOpsCLI) Close() error {
	if c == nil || c.jobs == nil {
		return nil
	}
	return c.jobs.Close()
}

// TriggerRender enqueues a render job for one order artifact.
func (c *DocgenOpsCLI) TriggerRender(ctx context.Context, orderID int64, kind, requestedBy string) (*asynq.TaskInfo, error) {
	if c == nil || c.jobs == nil {
		return nil, errors.New("docgen cli: client not configured")
	}
	if orderID <= 0 {
		return nil, errors.New("docgen cli: order id must be positive")
	}
	if !orders.OutputKind(kind).Valid() {
		return nil, fmt.Errorf("docgen cli: unknown output kind %q", kind)
	}
	if requestedBy == "" {
		requestedBy = "ops:cli"
	}
	task, err := jobs.NewRenderDocumentTask(jobs.RenderDocumentPayload{
		OrderID:     orderID,
		Kind:        kind,
		RequestedBy: requestedBy,
	})
	if err != nil {
		return nil, err
	}
	return c.jobs.Enqueue(ctx, task, asynq.MaxRetry(3))
}

// InspectQueue proxies queue statistics for observability.
func (c *DocgenOpsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.jobs == nil {
		return QueueStats{}, errors.New("docgen cli: inspector not configured")
	}
	return c.jobs.InspectQueue(ctx)
}
