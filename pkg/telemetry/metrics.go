package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridci/gridci/pkg/matrix"
)

// Metrics collects Prometheus metrics for matrix runs. The zero-value methods
// are no-ops when metrics are disabled, so callers never need to branch.
//
// Metrics satisfies the runner's Observer interface: pass it to the runner to
// record per-job and per-command measurements.
type Metrics struct {
	config MetricsConfig

	runsStarted     prometheus.Counter
	runsCompleted   *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	jobsCompleted   *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	commandDuration prometheus.Histogram
	activeJobs      prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the metrics collector. A disabled config yields a no-op
// instance.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of matrix runs started",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of matrix runs completed",
		}, []string{"verdict"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of matrix runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"verdict"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs completed, by final status",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of job execution in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		commandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of individual job commands in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Number of jobs currently executing",
		}),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.jobsCompleted,
		m.jobDuration,
		m.commandDuration,
		m.activeJobs,
	)

	return m
}

// RecordRunStarted counts a new run.
func (m *Metrics) RecordRunStarted() {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
}

// RecordRunCompleted counts a finished run with its verdict and duration.
func (m *Metrics) RecordRunCompleted(verdict matrix.Verdict, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(string(verdict)).Inc()
	m.runDuration.WithLabelValues(string(verdict)).Observe(duration.Seconds())
}

// JobStarted implements the runner observer.
func (m *Metrics) JobStarted(matrix.Job) {
	if m.activeJobs == nil {
		return
	}
	m.activeJobs.Inc()
}

// JobFinished implements the runner observer.
func (m *Metrics) JobFinished(result matrix.JobResult) {
	if m.jobsCompleted == nil {
		return
	}
	m.jobsCompleted.WithLabelValues(string(result.Status)).Inc()
	if d := result.Duration(); d > 0 {
		m.jobDuration.Observe(d.Seconds())
	}
	// Jobs aborted before starting never incremented the gauge.
	if !result.StartedAt.IsZero() {
		m.activeJobs.Dec()
	}
}

// CommandFinished implements the runner observer.
func (m *Metrics) CommandFinished(_ matrix.Job, result matrix.CommandResult) {
	if m.commandDuration == nil {
		return
	}
	m.commandDuration.Observe(result.Duration.Seconds())
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
