package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Queue ───────────────────────────────────────────────────────────────────

	QueueEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inteljobs",
		Subsystem: "queue",
		Name:      "enqueued_total",
		Help:      "Total jobs enqueued, labelled by job type and queue.",
	}, []string{"job_type", "queue"})

	QueueRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inteljobs",
		Subsystem: "queue",
		Name:      "rate_limited_total",
		Help:      "Total enqueues rejected by the rate limiter.",
	})

	// ─── Worker ──────────────────────────────────────────────────────────────────

	WorkerJobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inteljobs",
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Total jobs processed, labelled by job type and terminal state.",
	}, []string{"job_type", "state"})

	WorkerJobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "inteljobs",
		Subsystem: "worker",
		Name:      "jobs_inflight",
		Help:      "Jobs currently being executed.",
	})

	WorkerJobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inteljobs",
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "End-to-end job run time in seconds, retries included.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"job_type"})

	WorkerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inteljobs",
		Subsystem: "worker",
		Name:      "retries_total",
		Help:      "Total retry attempts across all jobs.",
	}, []string{"job_type"})

	WorkerUnknownTypeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inteljobs",
		Subsystem: "worker",
		Name:      "unknown_type_total",
		Help:      "Total envelopes naming a job type with no registered factory.",
	})

	// ─── Scheduler ───────────────────────────────────────────────────────────────

	SchedulerFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inteljobs",
		Subsystem: "scheduler",
		Name:      "schedules_fired_total",
		Help:      "Total schedule firings, labelled by job type.",
	}, []string{"job_type"})

	SchedulerErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inteljobs",
		Subsystem: "scheduler",
		Name:      "errors_total",
		Help:      "Total per-schedule failures isolated by the tick loop.",
	})
)
