package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/imageoptimizer/internal/auth"
	"github.com/dunamismax/imageoptimizer/internal/queue"
	"github.com/dunamismax/imageoptimizer/internal/ratelimit"
	"github.com/dunamismax/imageoptimizer/internal/store"
	"github.com/dunamismax/imageoptimizer/internal/transform"
)

const (
	defaultMaxBodyBytes = 64 << 20
	defaultPresignTTL   = 15 * time.Minute
	defaultUserIDHeader = "X-User-ID"
	defaultBytesPerUnit = 4 << 20
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errJobsDisabled = errors.New("jobs are disabled")
)

// Enqueuer puts a started job on the processing queue.
type Enqueuer interface {
	EnqueueTransform(ctx context.Context, payload queue.TransformPayload) (*asynq.TaskInfo, error)
}

// ObjectStorage hands out presigned URLs for job inputs and outputs.
type ObjectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PresignedGetURL(ctx context.Context, objectKey, filename string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

// Deps are the collaborators of a Server. Queue, JobStore and Storage are
// needed together for the job routes; when any is nil those routes answer
// 503. A nil RateLimiter disables rate limiting.
type Deps struct {
	Logger      *zap.Logger
	Transforms  *transform.Service
	Auth        *auth.Service
	Queue       Enqueuer
	JobStore    store.JobStore
	Storage     ObjectStorage
	RateLimiter ratelimit.Limiter
	Tracer      trace.Tracer
}

type Options struct {
	MaxBodyBytes          int64
	PresignTTL            time.Duration
	QueueName             string
	RateLimitUserIDHeader string
	// RateLimitBytesPerUnit sizes rate limit charges: a request costs one
	// unit per started RateLimitBytesPerUnit of body.
	RateLimitBytesPerUnit int64
}

type Server struct {
	logger                *zap.Logger
	transforms            *transform.Service
	auth                  *auth.Service
	queueClient           Enqueuer
	queueName             string
	jobStore              store.JobStore
	storage               ObjectStorage
	rateLimiter           ratelimit.Limiter
	rateLimitUserIDHeader string
	rateLimitBytesPerUnit int64
	tracer                trace.Tracer
	metrics               *metrics
	maxBodyBytes          int64
	presignTTL            time.Duration
	now                   func() time.Time
	mux                   *http.ServeMux
}

func NewServer(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("imageoptimizer/api")
	}
	if deps.Transforms == nil {
		deps.Transforms = transform.NewService(transform.Options{})
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = defaultPresignTTL
	}
	if opts.RateLimitBytesPerUnit <= 0 {
		opts.RateLimitBytesPerUnit = defaultBytesPerUnit
	}
	if strings.TrimSpace(opts.RateLimitUserIDHeader) == "" {
		opts.RateLimitUserIDHeader = defaultUserIDHeader
	}

	s := &Server{
		logger:                deps.Logger,
		transforms:            deps.Transforms,
		auth:                  deps.Auth,
		queueClient:           deps.Queue,
		queueName:             opts.QueueName,
		jobStore:              deps.JobStore,
		storage:               deps.Storage,
		rateLimiter:           deps.RateLimiter,
		rateLimitUserIDHeader: opts.RateLimitUserIDHeader,
		rateLimitBytesPerUnit: opts.RateLimitBytesPerUnit,
		tracer:                deps.Tracer,
		metrics:               newMetrics(),
		maxBodyBytes:          opts.MaxBodyBytes,
		presignTTL:            opts.PresignTTL,
		now:                   time.Now,
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler wraps the routes with tracing, request ids, access logs, metrics
// and rate limiting, outermost first.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withRateLimit(h)
	h = s.metrics.withHTTPMetrics(h)
	h = s.withAccessLog(h)
	h = s.withRequestID(h)
	h = s.withTracing(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())

	s.mux.HandleFunc("POST /v1/images/compress", s.handleCompressImage)
	s.mux.HandleFunc("POST /v1/images/resize", s.handleResizeImage)
	s.mux.HandleFunc("POST /v1/images/convert", s.handleConvertImage)
	s.mux.HandleFunc("POST /v1/pdfs/compress", s.handleCompressPDF)
	s.mux.HandleFunc("POST /v1/pdfs/merge", s.handleMergePDFs)
	s.mux.HandleFunc("POST /v1/pdfs/split", s.handleSplitPDF)

	s.mux.HandleFunc("POST /v1/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /v1/auth/register", s.handleRegister)

	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("POST /v1/jobs/{id}/start", s.handleStartJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": transform.Backend,
	})
}

// decodeJSON reads exactly one JSON value from the body, rejecting unknown
// fields and bodies above the configured limit.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, into any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

// writeDecodeError answers a failed decodeJSON with 413 or 400.
func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
