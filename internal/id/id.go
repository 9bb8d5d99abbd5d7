package id

import (
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// New returns a random identifier for users and jobs.
func New() string {
	return uuid.NewString()
}

// Request returns a short, sortable identifier for correlating log lines of
// a single HTTP request.
func Request() string {
	return xid.New().String()
}

// Valid reports whether s looks like an identifier produced by New.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
