package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/dunamismax/imageoptimizer/internal/domain"
)

const jobSchemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	spec JSONB NOT NULL,
	input_keys TEXT[] NOT NULL,
	outputs JSONB NOT NULL DEFAULT '[]',
	skipped INTEGER[] NOT NULL DEFAULT '{}',
	error TEXT NOT NULL DEFAULT '',
	webhook_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const selectJobSQL = `SELECT id, status, spec, input_keys, outputs, skipped, error, webhook_url, created_at, updated_at
	FROM jobs
	WHERE id = $1`

type PostgresJobStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresJobStore wraps db and creates the jobs table when missing.
func NewPostgresJobStore(ctx context.Context, db *sql.DB) (*PostgresJobStore, error) {
	s := &PostgresJobStore{db: db, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, jobSchemaSQL); err != nil {
		return fmt.Errorf("ensure jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Create(ctx context.Context, job domain.Job) error {
	specJSON, err := json.Marshal(job.Spec)
	if err != nil {
		return fmt.Errorf("marshal job spec: %w", err)
	}
	outputsJSON, err := json.Marshal(nonNil(job.Outputs))
	if err != nil {
		return fmt.Errorf("marshal job outputs: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (id, status, spec, input_keys, outputs, skipped, error, webhook_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID,
		job.Status,
		specJSON,
		pq.Array(nonNilStrings(job.InputKeys)),
		outputsJSON,
		pq.Array(toInt64s(job.Skipped)),
		job.Error,
		job.WebhookURL,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (domain.Job, bool, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, selectJobSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, err
	}
	return job, true, nil
}

func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id, status string) (domain.Job, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		s.now().UTC(),
		id,
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("update job status: %w", err)
	}
	return s.reload(ctx, res, id)
}

func (s *PostgresJobStore) Transition(ctx context.Context, id, from, to string) (domain.Job, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
		 SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = $4`,
		to,
		s.now().UTC(),
		id,
		from,
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("transition job status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return s.reload(ctx, res, id)
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return job, fmt.Errorf("%w: job %s is %s, not %s", ErrStatusConflict, id, job.Status, from)
}

func (s *PostgresJobStore) Finish(ctx context.Context, id string, result JobResult) (domain.Job, error) {
	outputsJSON, err := json.Marshal(nonNil(result.Outputs))
	if err != nil {
		return domain.Job{}, fmt.Errorf("marshal job outputs: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
		 SET status = $1, outputs = $2, skipped = $3, error = $4, updated_at = $5
		 WHERE id = $6`,
		result.Status,
		outputsJSON,
		pq.Array(toInt64s(result.Skipped)),
		result.Error,
		s.now().UTC(),
		id,
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("finish job: %w", err)
	}
	return s.reload(ctx, res, id)
}

func (s *PostgresJobStore) reload(ctx context.Context, res sql.Result, id string) (domain.Job, error) {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Job{}, ErrJobNotFound
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		job         domain.Job
		specJSON    []byte
		outputsJSON []byte
		skipped     pq.Int64Array
	)
	err := row.Scan(
		&job.ID,
		&job.Status,
		&specJSON,
		pq.Array(&job.InputKeys),
		&outputsJSON,
		&skipped,
		&job.Error,
		&job.WebhookURL,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, err
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("query job: %w", err)
	}

	if err := json.Unmarshal(specJSON, &job.Spec); err != nil {
		return domain.Job{}, fmt.Errorf("unmarshal job spec: %w", err)
	}
	if err := json.Unmarshal(outputsJSON, &job.Outputs); err != nil {
		return domain.Job{}, fmt.Errorf("unmarshal job outputs: %w", err)
	}
	for _, v := range skipped {
		job.Skipped = append(job.Skipped, int(v))
	}
	return job, nil
}

func nonNil(outputs []domain.JobOutput) []domain.JobOutput {
	if outputs == nil {
		return []domain.JobOutput{}
	}
	return outputs
}

func toInt64s(in []int) []int64 {
	out := make([]int64, 0, len(in))
	for _, v := range in {
		out = append(out, int64(v))
	}
	return out
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
