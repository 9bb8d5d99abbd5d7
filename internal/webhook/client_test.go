package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/imageoptimizer/internal/config"
)

func testConfig(attempts int) config.WebhookConfig {
	return config.WebhookConfig{
		SigningSecret:  "test-secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    attempts,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	}
}

func TestSendSignsPayload(t *testing.T) {
	var (
		gotSig, gotTS, gotEvt string
		gotBody               []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotEvt = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(testConfig(1))
	err := client.Send(context.Background(), srv.URL, EventJobCompleted, JobEvent{JobID: "job-1", Status: "succeeded"})
	require.NoError(t, err)

	assert.Equal(t, EventJobCompleted, gotEvt)
	assert.NotEmpty(t, gotTS)
	assert.NoError(t, Verify("test-secret", gotTS, gotBody, gotSig))
	assert.ErrorIs(t, Verify("other-secret", gotTS, gotBody, gotSig), ErrBadSignature)
	assert.Contains(t, string(gotBody), `"job_id":"job-1"`)
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewClient(testConfig(3)).Send(context.Background(), srv.URL, EventJobFailed, JobEvent{JobID: "job-2"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendStopsOnClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	err := NewClient(testConfig(5)).Send(context.Background(), srv.URL, EventJobFailed, JobEvent{JobID: "job-3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=410")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendWithoutEndpointIsNoop(t *testing.T) {
	assert.NoError(t, NewClient(testConfig(1)).Send(context.Background(), "  ", EventJobCompleted, nil))
}
