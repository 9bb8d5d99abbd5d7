package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dunamismax/imageoptimizer/internal/auth"
	"github.com/dunamismax/imageoptimizer/internal/queue"
	"github.com/dunamismax/imageoptimizer/internal/store"
	"github.com/dunamismax/imageoptimizer/internal/transform"
)

type fakeQueue struct {
	mu       sync.Mutex
	payloads []queue.TransformPayload
	err      error
	// onEnqueue runs before the task is recorded, standing in for a worker
	// that picks the task up immediately.
	onEnqueue func(queue.TransformPayload)
}

func (q *fakeQueue) EnqueueTransform(_ context.Context, payload queue.TransformPayload) (*asynq.TaskInfo, error) {
	if q.onEnqueue != nil {
		q.onEnqueue(payload)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.payloads = append(q.payloads, payload)
	return &asynq.TaskInfo{ID: payload.JobID, Queue: "default", State: asynq.TaskStatePending}, nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]bool)}
}

func (s *fakeStorage) put(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = true
}

func (s *fakeStorage) PresignedPutURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://minio.test/put/" + key, nil
}

func (s *fakeStorage) PresignedGetURL(_ context.Context, key, filename string, _ time.Duration) (string, error) {
	return "https://minio.test/get/" + key + "?name=" + filename, nil
}

func (s *fakeStorage) ObjectExists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		return false, errors.New("empty key")
	}
	return s.objects[key], nil
}

type testEnv struct {
	handler http.Handler
	server  *Server
	queue   *fakeQueue
	storage *fakeStorage
	jobs    *store.MemoryJobStore
}

func newTestEnv(t *testing.T, mutate ...func(*Deps, *Options)) *testEnv {
	t.Helper()

	env := &testEnv{
		queue:   &fakeQueue{},
		storage: newFakeStorage(),
		jobs:    store.NewMemoryJobStore(),
	}
	deps := Deps{
		Transforms: transform.NewService(transform.Options{}),
		Auth:       auth.NewService(store.NewMemoryUserRepository(), bcrypt.MinCost),
		Queue:      env.queue,
		JobStore:   env.jobs,
		Storage:    env.storage,
	}
	opts := Options{QueueName: "default"}
	for _, m := range mutate {
		m(&deps, &opts)
	}

	env.server = NewServer(deps, opts)
	env.handler = env.server.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
