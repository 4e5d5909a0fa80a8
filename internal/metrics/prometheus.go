package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsCreated counts accepted job creations by kind (analysis, export).
	JobsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchintel_jobs_created_total",
			Help: "Total number of jobs created",
		},
		[]string{"kind"},
	)

	// JobsRejected counts creations refused before a job existed.
	JobsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchintel_jobs_rejected_total",
			Help: "Total number of job creations rejected",
		},
		[]string{"kind", "reason"},
	)

	// JobsFinished counts jobs reaching a terminal state.
	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchintel_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal state",
		},
		[]string{"kind", "state"},
	)

	// EngineInvocations counts engine calls by outcome (success, transient, permanent, invalid, timeout, aborted).
	EngineInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchintel_engine_invocations_total",
			Help: "Total number of intelligence engine invocations",
		},
		[]string{"outcome"},
	)

	// JobDuration tracks the wall time from start to terminal state.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchintel_job_duration_seconds",
			Help:    "Duration of jobs from start to terminal state in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 500ms to ~17m
		},
		[]string{"kind"},
	)

	// WorkersActive tracks the number of workers currently running a task.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchintel_workers_active",
			Help: "Number of worker goroutines currently running a job",
		},
	)

	// QueueDepth tracks tasks waiting for a free worker.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchintel_worker_queue_depth",
			Help: "Number of jobs waiting for a free worker",
		},
	)

	// ResultCacheLookups counts result cache hits and misses.
	ResultCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchintel_result_cache_lookups_total",
			Help: "Total number of result cache lookups",
		},
		[]string{"outcome"},
	)
)
