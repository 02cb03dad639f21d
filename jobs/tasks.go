package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRenderDocument renders one generated order artifact.
	TaskRenderDocument = "docgen:render"
	// TaskSweepUploadSlots drops expired upload slots from the document store.
	TaskSweepUploadSlots = "docstore:sweep"
)

// RenderDocumentPayload identifies the artifact to render.
type RenderDocumentPayload struct {
	OrderID     int64  `json:"order_id"`
	Kind        string `json:"kind"`
	RequestedBy string `json:"requested_by"`
}

// NewRenderDocumentTask constructs an Asynq task for document rendering.
func NewRenderDocumentTask(payload RenderDocumentPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRenderDocument, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// SweepUploadSlotsPayload carries scheduling metadata.
type SweepUploadSlotsPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSweepUploadSlotsTask constructs an Asynq task for the slot sweep.
func NewSweepUploadSlotsTask(at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(SweepUploadSlotsPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSweepUploadSlots, data, asynq.Queue(QueueDefault)), nil
}
