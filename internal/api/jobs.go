package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/dunamismax/imageoptimizer/internal/domain"
	"github.com/dunamismax/imageoptimizer/internal/id"
	"github.com/dunamismax/imageoptimizer/internal/logging"
	"github.com/dunamismax/imageoptimizer/internal/queue"
	"github.com/dunamismax/imageoptimizer/internal/store"
)

type uploadSlot struct {
	Index           int    `json:"index"`
	ObjectKey       string `json:"object_key"`
	PresignedPutURL string `json:"presigned_put_url"`
}

type createJobResponse struct {
	JobID     string       `json:"job_id"`
	Status    string       `json:"status"`
	Uploads   []uploadSlot `json:"uploads"`
	ExpiresAt time.Time    `json:"expires_at"`
	StartURL  string       `json:"start_url"`
}

type jobOutputView struct {
	domain.JobOutput
	DownloadURL string `json:"download_url,omitempty"`
}

type jobView struct {
	JobID         string          `json:"job_id"`
	Status        string          `json:"status"`
	Operation     string          `json:"operation"`
	Outputs       []jobOutputView `json:"outputs"`
	SkippedRanges []int           `json:"skipped_ranges,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (s *Server) jobsEnabled(w http.ResponseWriter) bool {
	if s.queueClient == nil || s.jobStore == nil || s.storage == nil {
		writeError(w, http.StatusServiceUnavailable, errJobsDisabled.Error())
		return false
	}
	return true
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}

	var req domain.CreateJobRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := logging.WithTrace(r.Context(), s.logger)
	now := s.now().UTC()
	jobID := id.New()

	uploads := make([]uploadSlot, 0, req.Inputs)
	keys := make([]string, 0, req.Inputs)
	for i := range req.Inputs {
		key := domain.InputKey(jobID, i)
		url, err := s.storage.PresignedPutURL(r.Context(), key, s.presignTTL)
		if err != nil {
			logger.Error("presign upload failed", zap.String("job_id", jobID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to generate upload URL")
			return
		}
		keys = append(keys, key)
		uploads = append(uploads, uploadSlot{Index: i, ObjectKey: key, PresignedPutURL: url})
	}

	job := domain.Job{
		ID:         jobID,
		Status:     domain.JobStatusCreated,
		Spec:       req.Spec,
		InputKeys:  keys,
		WebhookURL: req.WebhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.jobStore.Create(r.Context(), job); err != nil {
		logger.Error("create job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusAccepted, createJobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Uploads:   uploads,
		ExpiresAt: now.Add(s.presignTTL),
		StartURL:  fmt.Sprintf("/v1/jobs/%s/start", job.ID),
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}

	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != domain.JobStatusCreated {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is already %s", job.Status))
		return
	}

	logger := logging.WithTrace(r.Context(), s.logger).With(zap.String("job_id", job.ID))
	for _, key := range job.InputKeys {
		exists, err := s.storage.ObjectExists(r.Context(), key)
		if err != nil {
			logger.Error("input check failed", zap.String("object_key", key), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to check job inputs")
			return
		}
		if !exists {
			writeError(w, http.StatusConflict, fmt.Sprintf("input is missing: %s", key))
			return
		}
	}

	// Claim the job before the task exists so neither a second start nor the
	// worker's own status writes can race with this one.
	if current, err := s.jobStore.Transition(r.Context(), job.ID, domain.JobStatusCreated, domain.JobStatusQueued); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			writeError(w, http.StatusConflict, fmt.Sprintf("job is already %s", current.Status))
			return
		}
		if errors.Is(err, store.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		logger.Error("claim job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}

	taskInfo, err := s.queueClient.EnqueueTransform(r.Context(), queue.TransformPayload{
		JobID:       job.ID,
		Spec:        job.Spec,
		InputKeys:   job.InputKeys,
		WebhookURL:  job.WebhookURL,
		RequestedAt: s.now().UTC(),
	})
	if err != nil {
		logger.Error("enqueue failed", zap.Error(err))
		if _, rerr := s.jobStore.Transition(context.WithoutCancel(r.Context()), job.ID, domain.JobStatusQueued, domain.JobStatusCreated); rerr != nil {
			logger.Warn("release job failed", zap.Error(rerr))
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}

	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	view := jobView{
		JobID:         job.ID,
		Status:        job.Status,
		Operation:     string(job.Spec.Operation),
		Outputs:       make([]jobOutputView, 0, len(job.Outputs)),
		SkippedRanges: job.Skipped,
		Error:         job.Error,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
	for _, o := range job.Outputs {
		url, err := s.storage.PresignedGetURL(r.Context(), o.ObjectKey, path.Base(o.ObjectKey), s.presignTTL)
		if err != nil {
			logging.WithTrace(r.Context(), s.logger).Warn("presign download failed",
				zap.String("job_id", job.ID),
				zap.String("object_key", o.ObjectKey),
				zap.Error(err),
			)
		}
		view.Outputs = append(view.Outputs, jobOutputView{JobOutput: o, DownloadURL: url})
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (domain.Job, bool) {
	jobID := r.PathValue("id")
	if !id.Valid(jobID) {
		writeError(w, http.StatusNotFound, "job not found")
		return domain.Job{}, false
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		logging.WithTrace(r.Context(), s.logger).Error("fetch job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return domain.Job{}, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return domain.Job{}, false
	}
	return job, true
}
