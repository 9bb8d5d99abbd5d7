package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/imageoptimizer/internal/config"
	"github.com/dunamismax/imageoptimizer/internal/domain"
	"github.com/dunamismax/imageoptimizer/internal/logging"
	"github.com/dunamismax/imageoptimizer/internal/pipeline"
	"github.com/dunamismax/imageoptimizer/internal/queue"
	"github.com/dunamismax/imageoptimizer/internal/store"
	"github.com/dunamismax/imageoptimizer/internal/transform"
	"github.com/dunamismax/imageoptimizer/internal/webhook"
)

const genericFailure = "processing failed"

type Server struct {
	logger        *zap.Logger
	server        *asynq.Server
	sem           chan struct{}
	processor     jobProcessor
	webhookClient webhookSender
	jobStore      store.JobStore
	metrics       *metrics
	tracer        trace.Tracer
	now           func() time.Time
}

type jobProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *zap.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	processor *pipeline.Processor,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("pipeline processor is required")
	}
	if jobStore == nil {
		return nil, fmt.Errorf("job store is required")
	}

	s := &Server{
		logger:        logger,
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		processor:     processor,
		webhookClient: webhookClient,
		jobStore:      jobStore,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("imageoptimizer/worker"),
		now:           time.Now,
	}
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			Logger:   newAsynqLogger(logger),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn("task failed",
					zap.String("type", task.Type()),
					zap.Int("retry", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeTransform, s.handleTransform)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleTransform(ctx context.Context, task *asynq.Task) error {
	startedAt := s.now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseTransformPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	op := string(payload.Spec.Operation)

	ctx, span := s.tracer.Start(ctx, "worker.transform", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.operation", op),
		attribute.Int("job.inputs", len(payload.InputKeys)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(op, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(op, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	logger := logging.WithTrace(ctx, s.logger).With(zap.String("job_id", payload.JobID), zap.String("op", op))
	// A redelivered task for a job that already finished must not overwrite
	// its recorded result or fire a second webhook.
	if job, ok, err := s.jobStore.Get(ctx, payload.JobID); err == nil && ok && job.Terminal() {
		logger.Info("job already finished, skipping", zap.String("status", job.Status))
		outcome = "skipped"
		return nil
	}
	logger.Info("working", zap.Strings("inputs", payload.InputKeys))
	s.updateJobStatus(ctx, logger, payload.JobID, domain.JobStatusProcessing)

	result, err := s.processor.Process(ctx, pipeline.Request{
		JobID:  payload.JobID,
		Spec:   payload.Spec,
		Inputs: payload.InputKeys,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")

		if !permanent(err) && !finalAttempt(ctx) {
			logger.Warn("job attempt failed, will retry", zap.Error(err))
			return fmt.Errorf("run pipeline: %w", err)
		}

		logger.Error("job failed", zap.Error(err))
		s.finish(ctx, logger, payload.JobID, store.JobResult{Status: domain.JobStatusFailed, Error: failureMessage(err)})
		s.dispatchWebhook(ctx, logger, payload, webhook.EventJobFailed, webhook.JobEvent{
			JobID:     payload.JobID,
			Status:    domain.JobStatusFailed,
			Operation: op,
			Error:     failureMessage(err),
			Finished:  s.now().UTC(),
		})
		return fmt.Errorf("run pipeline: %v: %w", err, asynq.SkipRetry)
	}

	outputs := make([]domain.JobOutput, 0, len(result.Outputs))
	files := make([]webhook.EventFile, 0, len(result.Outputs))
	for _, o := range result.Outputs {
		outputs = append(outputs, domain.JobOutput{
			ObjectKey: o.Path,
			MIMEType:  o.MIMEType,
			Bytes:     o.Bytes,
			Width:     o.Width,
			Height:    o.Height,
			Pages:     o.Pages,
		})
		files = append(files, webhook.EventFile{ObjectKey: o.Path, MIMEType: o.MIMEType, Bytes: o.Bytes})
	}

	logger.Info("processed",
		zap.Int("outputs", len(result.Outputs)),
		zap.Ints("skipped_ranges", result.Skipped),
		zap.String("input_size", humanize.Bytes(uint64(result.InputBytes))),
		zap.String("output_size", humanize.Bytes(uint64(result.OutputBytes()))),
	)
	s.finish(ctx, logger, payload.JobID, store.JobResult{
		Status:  domain.JobStatusSucceeded,
		Outputs: outputs,
		Skipped: result.Skipped,
	})
	s.recordOutputs(result)
	outcome = domain.JobStatusSucceeded

	s.dispatchWebhook(ctx, logger, payload, webhook.EventJobCompleted, webhook.JobEvent{
		JobID:     payload.JobID,
		Status:    domain.JobStatusSucceeded,
		Operation: op,
		Outputs:   files,
		Skipped:   result.Skipped,
		Finished:  s.now().UTC(),
	})
	span.SetStatus(codes.Ok, "processed")
	return nil
}

// permanent reports whether retrying err cannot help: the input itself is
// bad or the request parameters are invalid.
func permanent(err error) bool {
	var terr *transform.Error
	return errors.As(err, &terr) || errors.Is(err, transform.ErrInvalidParams) || errors.Is(err, pipeline.ErrNoInputs)
}

func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return !ok || retried >= maxRetry
}

// failureMessage is the error recorded on the job and sent to webhooks. It
// never includes storage or library internals.
func failureMessage(err error) string {
	var terr *transform.Error
	switch {
	case errors.As(err, &terr):
		return terr.Error()
	case errors.Is(err, transform.ErrInvalidParams):
		return transform.ErrInvalidParams.Error()
	default:
		return genericFailure
	}
}

func (s *Server) updateJobStatus(ctx context.Context, logger *zap.Logger, jobID, status string) {
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		logger.Warn("job status update failed", zap.String("status", status), zap.Error(err))
	}
}

func (s *Server) finish(ctx context.Context, logger *zap.Logger, jobID string, result store.JobResult) {
	if _, err := s.jobStore.Finish(ctx, jobID, result); err != nil {
		logger.Warn("job result write failed", zap.String("status", result.Status), zap.Error(err))
	}
}

// dispatchWebhook delivers the event. Delivery failures are logged; the job
// outcome is already recorded and is not retried because of them.
func (s *Server) dispatchWebhook(ctx context.Context, logger *zap.Logger, payload queue.TransformPayload, event string, body webhook.JobEvent) {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.metrics.webhookFailures.WithLabelValues(event).Inc()
		logger.Warn("webhook delivery failed", zap.String("event", event), zap.Error(err))
	}
}

func (s *Server) recordOutputs(result pipeline.Result) {
	var pixels int64
	for _, o := range result.Outputs {
		pixels += int64(o.Width) * int64(o.Height)
	}

	s.metrics.outputsTotal.Add(float64(len(result.Outputs)))
	s.metrics.pixelsProcessedTotal.Add(float64(pixels))
	if saved := result.InputBytes - result.OutputBytes(); saved > 0 {
		s.metrics.bytesSavedTotal.Add(float64(saved))
	}
}
