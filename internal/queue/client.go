package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

const (
	maxRetry    = 3
	taskTimeout = 5 * time.Minute
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueTransform queues one job. The job id doubles as the task id so a
// job cannot be queued twice.
func (c *Client) EnqueueTransform(ctx context.Context, payload TransformPayload) (*asynq.TaskInfo, error) {
	task, err := NewTransformTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(taskTimeout),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
