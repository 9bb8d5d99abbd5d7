package pipeline

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/dunamismax/imageoptimizer/internal/domain"
	"github.com/dunamismax/imageoptimizer/internal/transform"
)

// ObjectStore is the subset of storage.Client the job stages need.
type ObjectStore interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

type ObjectStoreFetcher struct {
	Storage ObjectStore
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	return f.Storage.ReadObject(ctx, ref)
}

// ObjectStoreEmitter writes outputs to outputs/<job>/<n>.<ext>, or below
// OutputPrefix when set.
type ObjectStoreEmitter struct {
	Storage      ObjectStore
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, jobID string, index int, res transform.Result) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}

	objectKey := domain.OutputKey(sanitizePathToken(jobID), index, res.Format.Extension())
	if prefix := strings.TrimSpace(e.OutputPrefix); prefix != "" {
		objectKey = path.Join(prefix, sanitizePathToken(jobID), OutputName(index, res.Format))
	}

	if err := e.Storage.WriteObject(ctx, objectKey, res.File.Data, res.File.MIMEType); err != nil {
		return Output{}, err
	}
	return newOutput(index, objectKey, res), nil
}
