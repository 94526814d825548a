// Package metrics declares the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsImported counts snapshot files successfully imported.
	SessionsImported = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentsight",
		Subsystem: "ingest",
		Name:      "sessions_imported_total",
		Help:      "Snapshot files imported into the session store.",
	})

	// ImportFailures counts snapshot files that could not be imported.
	ImportFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentsight",
		Subsystem: "ingest",
		Name:      "import_failures_total",
		Help:      "Snapshot files rejected during import.",
	})

	// ImportDuration observes wall time per snapshot import.
	ImportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agentsight",
		Subsystem: "ingest",
		Name:      "import_duration_seconds",
		Help:      "Time spent parsing, scanning and storing one snapshot.",
		Buckets:   prometheus.DefBuckets,
	})

	// DetectionsFlagged counts detections recorded at import time, by severity.
	DetectionsFlagged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentsight",
		Subsystem: "ingest",
		Name:      "detections_flagged_total",
		Help:      "Detections attached to imported sessions.",
	}, []string{"severity"})

	// TimelineBuilds counts timeline computations served by the API.
	TimelineBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentsight",
		Subsystem: "api",
		Name:      "timeline_builds_total",
		Help:      "Timelines correlated on demand for API requests.",
	})

	// FlowBuilds counts flow graph computations served by the API.
	FlowBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentsight",
		Subsystem: "api",
		Name:      "flow_builds_total",
		Help:      "Flow graphs reconstructed on demand for API requests.",
	})
)
