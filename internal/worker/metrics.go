package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	activeJobs           prometheus.Gauge
	outputsTotal         prometheus.Counter
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
	webhookFailures      *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imageoptimizer_worker_jobs_total",
			Help: "Total worker jobs by operation and final status.",
		}, []string{"operation", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imageoptimizer_worker_job_duration_seconds",
			Help:    "Processing duration of each worker job attempt.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imageoptimizer_worker_active_jobs",
			Help: "Jobs currently holding a processing slot.",
		}),
		outputsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imageoptimizer_worker_outputs_total",
			Help: "Output files written by the worker.",
		}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imageoptimizer_worker_pixels_total",
			Help: "Pixels in image outputs of successful jobs.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imageoptimizer_worker_bytes_saved_total",
			Help: "Input bytes minus output bytes for jobs that shrank their inputs.",
		}),
		webhookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imageoptimizer_worker_webhook_failures_total",
			Help: "Webhook deliveries that exhausted their attempts.",
		}, []string{"event"}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.outputsTotal,
		m.pixelsProcessedTotal,
		m.bytesSavedTotal,
		m.webhookFailures,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
