package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bugspotter_jobs_enqueued_total", Help: "Jobs accepted by the broker"},
		[]string{"queue"})
	JobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bugspotter_jobs_completed_total", Help: "Jobs completed successfully"},
		[]string{"queue"})
	JobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bugspotter_jobs_failed_total", Help: "Jobs that failed terminally"},
		[]string{"queue"})
	JobsRetried = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bugspotter_jobs_retried_total", Help: "Job attempts rescheduled after a transient failure"},
		[]string{"queue"})
	RateLimitDeferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bugspotter_rate_limit_deferred_total", Help: "Job starts deferred by the per-queue rate limit"},
		[]string{"queue"})
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bugspotter_queue_depth", Help: "Waiting jobs per queue"},
		[]string{"queue"})
	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bugspotter_jobs_inflight", Help: "Jobs currently executing"},
		[]string{"queue"})
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bugspotter_job_duration_seconds",
			Help:    "Wall-clock job processing time",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"queue"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsCompleted,
			JobsFailed,
			JobsRetried,
			RateLimitDeferred,
			QueueDepth,
			InFlight,
			JobDuration,
		)
	})
	return promhttp.Handler()
}
