// Package metrics defines Prometheus metrics for analyzerd.
//
// Metrics are registered with a dedicated prometheus.Registry rather than
// the global default registry, and served through promhttp.HandlerFor by
// Handler(), which internal/httpapi mounts at GET /metrics — there is no
// controller-runtime process here to piggyback a metrics endpoint on.
//
// Metric naming follows Prometheus conventions:
//   - analyzerd_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is analyzerd's Prometheus registry. internal/httpapi mounts it at
// /metrics via Handler().
var Registry = prometheus.NewRegistry()

var (
	// SubmissionsTotal counts job submissions by outcome ("admitted",
	// "cache_hit", "rate_limited") — spec §4.1/§4.2.
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzerd_job_submissions_total",
			Help: "Total job submissions by result.",
		},
		[]string{"result"},
	)

	// RunsTotal counts completed analyzer runs by terminal status.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzerd_job_runs_total",
			Help: "Total analyzer runs by terminal status.",
		},
		[]string{"status"},
	)

	// RunDurationSeconds is a histogram of analyzer run duration.
	RunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyzerd_job_run_duration_seconds",
			Help:    "Duration of analyzer runs in seconds.",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	// CacheHitsTotal counts similar-job cache hits (spec §4.2).
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analyzerd_cache_hits_total",
			Help: "Total submissions resolved from the similar-job cache.",
		},
	)

	// RateLimitRejectionsTotal counts submissions rejected by the per-analyzer
	// rate limit, by analyzer ID (spec §4.2).
	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzerd_rate_limit_rejections_total",
			Help: "Total submissions rejected for exceeding an analyzer's rate limit.",
		},
		[]string{"analyzer"},
	)
)

func init() {
	Registry.MustRegister(
		SubmissionsTotal,
		RunsTotal,
		RunDurationSeconds,
		CacheHitsTotal,
		RateLimitRejectionsTotal,
	)
}

// Handler returns the HTTP handler serving analyzerd's metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordSubmission records a job submission outcome: "admitted",
// "cache_hit", or "rate_limited".
func RecordSubmission(result string) {
	SubmissionsTotal.WithLabelValues(result).Inc()
	if result == "cache_hit" {
		CacheHitsTotal.Inc()
	}
}

// RecordRun records a completed (or abandoned) analyzer run.
func RecordRun(status string, duration time.Duration) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRateLimitRejection records a single rate-limited submission for
// the given analyzer.
func RecordRateLimitRejection(analyzerID string) {
	RateLimitRejectionsTotal.WithLabelValues(analyzerID).Inc()
}
