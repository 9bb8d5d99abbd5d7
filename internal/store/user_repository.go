package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"

	"github.com/dunamismax/imageoptimizer/internal/auth"
)

// MemoryUserRepository keeps accounts in process. Insert checks and stores
// under one lock so concurrent registrations of an email cannot both win.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byEmail map[string]auth.Record
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{byEmail: make(map[string]auth.Record)}
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (auth.Record, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byEmail[auth.NormalizeEmail(email)]
	return rec, ok, nil
}

func (r *MemoryUserRepository) Insert(_ context.Context, rec auth.Record) error {
	key := auth.NormalizeEmail(rec.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[key]; ok {
		return auth.ErrDuplicateEmail
	}
	r.byEmail[key] = rec
	return nil
}

const userSchemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = pq.ErrorCode("23505")

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(ctx context.Context, db *sql.DB) (*PostgresUserRepository, error) {
	if _, err := db.ExecContext(ctx, userSchemaSQL); err != nil {
		return nil, fmt.Errorf("ensure users schema: %w", err)
	}
	return &PostgresUserRepository{db: db}, nil
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (auth.Record, bool, error) {
	var rec auth.Record
	err := r.db.QueryRowContext(
		ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE email = $1`,
		auth.NormalizeEmail(email),
	).Scan(&rec.ID, &rec.Name, &rec.Email, &rec.PasswordHash, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Record{}, false, nil
	}
	if err != nil {
		return auth.Record{}, false, fmt.Errorf("query user: %w", err)
	}
	return rec, true, nil
}

func (r *PostgresUserRepository) Insert(ctx context.Context, rec auth.Record) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID,
		rec.Name,
		auth.NormalizeEmail(rec.Email),
		rec.PasswordHash,
		rec.CreatedAt,
	)
	if isUniqueViolation(err) {
		return auth.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
