// Package auth implements login and registration over a pluggable user
// repository. Passwords are stored as bcrypt hashes and never leave the
// package.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dunamismax/imageoptimizer/internal/id"
)

const (
	MsgUserNotFound      = "User not found"
	MsgInvalidPassword   = "Invalid password"
	MsgUserAlreadyExists = "User already exists"
	MsgNameRequired      = "name is required"
	MsgEmailRequired     = "email is required"
	MsgEmailInvalid      = "email is invalid"
	MsgPasswordRequired  = "password is required"
	MsgPasswordTooLong   = "password is too long"

	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

var ErrDuplicateEmail = errors.New("email already registered")

// User is the public view of an account.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Record is a stored account.
type Record struct {
	User
	PasswordHash []byte
	CreatedAt    time.Time
}

// Response is the outcome of Login and Register. Error is set exactly when
// Success is false.
type Response struct {
	Success bool   `json:"success"`
	User    *User  `json:"user,omitempty"`
	Error   string `json:"error,omitempty"`
}

func failure(msg string) Response {
	return Response{Error: msg}
}

func success(u User) Response {
	return Response{Success: true, User: &u}
}

type Repository interface {
	// FindByEmail looks up a record by normalised email.
	FindByEmail(ctx context.Context, email string) (Record, bool, error)
	// Insert stores rec, returning ErrDuplicateEmail when the email is taken.
	Insert(ctx context.Context, rec Record) error
}

type Service struct {
	repo Repository
	cost int
	now  func() time.Time
}

// NewService returns a Service hashing with the given bcrypt cost. Costs
// outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewService(repo Repository, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, cost: cost, now: time.Now}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login checks credentials. Unknown accounts and bad passwords are reported
// in the Response; the error is reserved for repository failures.
func (s *Service) Login(ctx context.Context, email, password string) (Response, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return failure(MsgEmailRequired), nil
	}
	if password == "" {
		return failure(MsgPasswordRequired), nil
	}

	rec, ok, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return Response{}, fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return failure(MsgUserNotFound), nil
	}

	if err := bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return failure(MsgInvalidPassword), nil
		}
		return Response{}, fmt.Errorf("compare password hash: %w", err)
	}
	return success(rec.User), nil
}

// Register creates an account. Registering an email twice fails with
// MsgUserAlreadyExists even when requests race.
func (s *Service) Register(ctx context.Context, name, email, password string) (Response, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if msg := validateRegistration(name, email, password); msg != "" {
		return failure(msg), nil
	}

	if _, ok, err := s.repo.FindByEmail(ctx, email); err != nil {
		return Response{}, fmt.Errorf("find user: %w", err)
	} else if ok {
		return failure(MsgUserAlreadyExists), nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Response{}, fmt.Errorf("hash password: %w", err)
	}

	rec := Record{
		User:         User{ID: id.New(), Name: name, Email: email},
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return failure(MsgUserAlreadyExists), nil
		}
		return Response{}, fmt.Errorf("insert user: %w", err)
	}
	return success(rec.User), nil
}

// Seed registers a demo account unless the email already exists.
func (s *Service) Seed(ctx context.Context, name, email, password string) error {
	resp, err := s.Register(ctx, name, email, password)
	if err != nil {
		return err
	}
	if !resp.Success && resp.Error != MsgUserAlreadyExists {
		return fmt.Errorf("seed user %s: %s", email, resp.Error)
	}
	return nil
}

func validateRegistration(name, email, password string) string {
	switch {
	case name == "":
		return MsgNameRequired
	case email == "":
		return MsgEmailRequired
	case password == "":
		return MsgPasswordRequired
	case len(password) > maxPasswordBytes:
		return MsgPasswordTooLong
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return MsgEmailInvalid
	}
	return ""
}
