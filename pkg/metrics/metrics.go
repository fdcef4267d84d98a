// Package metrics provides Prometheus instrumentation for portalguard components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for portalguard components.
type Registry struct {
	// Admission control
	RateLimitChecks   *prometheus.CounterVec
	RateLimitFailOpen *prometheus.CounterVec
	RateLimitBlocks   *prometheus.CounterVec
	RateLimitDuration *prometheus.HistogramVec

	// Shared store
	StoreLatency *prometheus.HistogramVec
	StoreUp      prometheus.Gauge

	// Exceeded hooks
	HooksDispatched *prometheus.CounterVec
	HooksDropped    *prometheus.CounterVec

	// Background processing
	TasksExecuted         *prometheus.CounterVec
	TasksFailed           *prometheus.CounterVec
	TaskExecutionDuration *prometheus.HistogramVec
	WorkerPoolSize        *prometheus.GaugeVec
	WorkerPoolQueued      *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer
// and the default namespace.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return New(Config{Enabled: true, Registry: reg})
}

// New creates a registry from config. A nil Registry in config gets a private
// prometheus.Registry so that independent instances never collide.
func New(config Config) *Registry {
	reg := config.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if len(config.Labels) > 0 {
		reg = prometheus.WrapRegistererWith(config.Labels, reg)
	}
	ns := config.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Registry{
		RateLimitChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "ratelimit",
				Name:      "checks_total",
				Help:      "Admission checks by policy and outcome",
			},
			[]string{"policy", "outcome"},
		),

		RateLimitFailOpen: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "ratelimit",
				Name:      "fail_open_total",
				Help:      "Checks resolved without the shared store",
			},
			[]string{"policy", "operation", "mode"},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "ratelimit",
				Name:      "blocks_total",
				Help:      "Cooldown blocks written after a violation",
			},
			[]string{"policy"},
		),

		RateLimitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "ratelimit",
				Name:      "check_duration_seconds",
				Help:      "Time spent deciding a single admission check",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"policy"},
		),

		StoreLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Round trip time of shared store operations",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
			},
			[]string{"operation", "status"},
		),

		StoreUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "store",
				Name:      "up",
				Help:      "1 when the last health probe reached the shared store",
			},
		),

		HooksDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "hooks",
				Name:      "dispatched_total",
				Help:      "Exceeded hooks queued for execution",
			},
			[]string{"policy"},
		),

		HooksDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "hooks",
				Name:      "dropped_total",
				Help:      "Exceeded hooks dropped because the queue was full or closed",
			},
			[]string{"policy"},
		),

		TasksExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "scheduler",
				Name:      "tasks_executed_total",
				Help:      "Total number of tasks executed",
			},
			[]string{"name"},
		),

		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "scheduler",
				Name:      "tasks_failed_total",
				Help:      "Total number of tasks that failed",
			},
			[]string{"name"},
		),

		TaskExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "scheduler",
				Name:      "task_duration_seconds",
				Help:      "Time spent executing tasks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"name"},
		),

		WorkerPoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "size",
				Help:      "Current worker pool size",
			},
			[]string{"pool_name"},
		),

		WorkerPoolQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "queued_tasks",
				Help:      "Number of queued tasks",
			},
			[]string{"pool_name"},
		),
	}
}
