package store

import (
	"context"
	"errors"

	"github.com/dunamismax/imageoptimizer/internal/domain"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrStatusConflict means the job exists but is not in the status a
	// Transition expected.
	ErrStatusConflict = errors.New("job status conflict")
)

// JobResult is what a finished job records: outputs on success, an error
// message on failure.
type JobResult struct {
	Status  string
	Outputs []domain.JobOutput
	Skipped []int
	Error   string
}

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	// Transition moves the job from status from to status to atomically. On
	// ErrStatusConflict the returned job carries the current status.
	Transition(ctx context.Context, id, from, to string) (domain.Job, error)
	Finish(ctx context.Context, id string, result JobResult) (domain.Job, error)
}
