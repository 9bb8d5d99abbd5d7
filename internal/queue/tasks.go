package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/imageoptimizer/internal/domain"
)

const TypeTransform = "transform:run"

type TransformPayload struct {
	JobID       string         `json:"job_id"`
	Spec        domain.JobSpec `json:"spec"`
	InputKeys   []string       `json:"input_keys"`
	WebhookURL  string         `json:"webhook_url,omitempty"`
	RequestedAt time.Time      `json:"requested_at"`
}

func NewTransformTask(payload TransformPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal transform payload: %w", err)
	}
	return asynq.NewTask(TypeTransform, body), nil
}

func ParseTransformPayload(task *asynq.Task) (TransformPayload, error) {
	var payload TransformPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TransformPayload{}, fmt.Errorf("unmarshal transform payload: %w", err)
	}
	return payload, nil
}
