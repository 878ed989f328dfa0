package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_pipeline_runs_total",
			Help: "Pipeline runs by category and outcome",
		},
		[]string{"category", "outcome"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommendation_pipeline_duration_seconds",
			Help:    "End-to-end pipeline latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"category"},
	)

	CandidateCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_cache_lookups_total",
			Help: "Candidate cache lookups by result (hit or miss)",
		},
		[]string{"category", "result"},
	)

	BackfillFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_backfill_fetches_total",
			Help: "Backfill fetches issued after dedup left the page short",
		},
		[]string{"category"},
	)

	SourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_source_errors_total",
			Help: "Candidate source failures recovered as empty contributions",
		},
		[]string{"category", "error_code"},
	)

	RerankOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_rerank_outcomes_total",
			Help: "Rerank attempts by outcome (llm, fallback)",
		},
		[]string{"outcome", "reason"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
