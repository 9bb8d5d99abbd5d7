package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	requestTotal         *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	rateLimitRejected    *prometheus.CounterVec
	queueEnqueued        *prometheus.CounterVec
	transformTotal       *prometheus.CounterVec
	transformDuration    *prometheus.HistogramVec
	transformInputBytes  *prometheus.CounterVec
	transformOutputBytes *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imageoptimizer_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imageoptimizer_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imageoptimizer_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		queueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imageoptimizer_queue_jobs_enqueued_total",
			Help: "Total jobs enqueued to the processing queue.",
		}, []string{"queue"}),
		transformTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imageoptimizer_transform_operations_total",
			Help: "Transform operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		transformDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imageoptimizer_transform_duration_seconds",
			Help:    "Time spent inside transform operations.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "outcome"}),
		transformInputBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imageoptimizer_transform_input_bytes_total",
			Help: "Decoded bytes received by transform operations.",
		}, []string{"operation"}),
		transformOutputBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imageoptimizer_transform_output_bytes_total",
			Help: "Decoded bytes produced by successful transform operations.",
		}, []string{"operation"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.queueEnqueued,
		m.transformTotal,
		m.transformDuration,
		m.transformInputBytes,
		m.transformOutputBytes,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := statusLabel(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// routeLabel collapses job ids out of paths to keep label cardinality
// bounded.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/jobs/") && strings.HasSuffix(path, "/start"):
		return "/v1/jobs/{id}/start"
	case strings.HasPrefix(path, "/v1/jobs/"):
		return "/v1/jobs/{id}"
	case path == "/v1/jobs",
		strings.HasPrefix(path, "/v1/images/"),
		strings.HasPrefix(path, "/v1/pdfs/"),
		strings.HasPrefix(path, "/v1/auth/"),
		path == "/healthz",
		path == "/metrics":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	if !r.wroteHeader {
		r.status = statusCode
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
