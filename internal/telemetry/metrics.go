package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across all routes.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "rcs",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// PlansCreatedTotal counts dry-run plans admitted by the plan service, by executability.
var PlansCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "rcs",
		Subsystem: "plan",
		Name:      "created_total",
		Help:      "Total number of dry-run plans created, by gate executability.",
	},
	[]string{"executability"},
)

// JobsQueuedTotal counts jobs admitted into the queued state on creation.
var JobsQueuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "rcs",
		Subsystem: "job",
		Name:      "queued_total",
		Help:      "Total number of jobs admitted into the queued state.",
	},
)

// JobsPromotedTotal counts jobs promoted from queued to running.
var JobsPromotedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "rcs",
		Subsystem: "job",
		Name:      "promoted_total",
		Help:      "Total number of jobs promoted from queued to running.",
	},
)

// ChunksAppliedTotal counts execution chunks applied, labeled by fallback mode.
var ChunksAppliedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "rcs",
		Subsystem: "execution",
		Name:      "chunks_applied_total",
		Help:      "Total number of chunks applied, labeled by whether row-isolation fallback was used.",
	},
	[]string{"mode"},
)

// RowOutcomesTotal counts row apply outcomes, labeled by outcome.
var RowOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "rcs",
		Subsystem: "execution",
		Name:      "row_outcomes_total",
		Help:      "Total number of row apply outcomes, labeled by outcome.",
	},
	[]string{"outcome"},
)

// MediaOutcomesTotal counts attachment/media pipeline outcomes.
var MediaOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "rcs",
		Subsystem: "execution",
		Name:      "media_outcomes_total",
		Help:      "Total number of media candidate outcomes, labeled by outcome.",
	},
	[]string{"outcome"},
)

// EvidenceExportedTotal counts evidence export calls, labeled by whether the
// manifest was reused from a prior export.
var EvidenceExportedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "rcs",
		Subsystem: "evidence",
		Name:      "exported_total",
		Help:      "Total number of evidence exports, labeled by whether the record was reused.",
	},
	[]string{"reused"},
)

// EvidenceVerificationTotal counts evidence verification outcomes.
var EvidenceVerificationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "rcs",
		Subsystem: "evidence",
		Name:      "verification_total",
		Help:      "Total number of evidence verification checks, labeled by result.",
	},
	[]string{"result"},
)

// ScopeLockQueueDepth tracks the current FIFO queue depth for a scope key.
var ScopeLockQueueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "rcs",
		Subsystem: "scopelock",
		Name:      "queue_depth",
		Help:      "Current number of jobs queued for a scope key.",
	},
	[]string{"tenant_id", "instance_id"},
)

// All returns every RCS-specific collector, for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PlansCreatedTotal,
		JobsQueuedTotal,
		JobsPromotedTotal,
		ChunksAppliedTotal,
		RowOutcomesTotal,
		MediaOutcomesTotal,
		EvidenceExportedTotal,
		EvidenceVerificationTotal,
		ScopeLockQueueDepth,
	}
}

// NewMetricsRegistry builds a Prometheus registry carrying the Go/process
// collectors, the shared HTTP duration histogram, and any extra collectors
// a caller wants exposed under /metrics.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
