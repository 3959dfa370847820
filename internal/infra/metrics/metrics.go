// Package metrics provides Prometheus metrics for pfp: per-file outcomes,
// analysis latency, and worker pool health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Files ──────────────────────────────────────────────────────────────────

// FilesProcessed counts files that reached a terminal status, by status.
var FilesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pfp",
	Name:      "files_processed_total",
	Help:      "Files that reached a terminal status.",
}, []string{"status"})

// FileErrors counts per-file processing errors by kind.
var FileErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pfp",
	Name:      "file_errors_total",
	Help:      "Per-file processing errors.",
}, []string{"kind"})

// FileDuration tracks how long analysis of one file took.
var FileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "pfp",
	Name:      "file_duration_seconds",
	Help:      "Time spent analyzing a single file.",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
})

// BytesAnalyzed counts bytes read by successful analyses.
var BytesAnalyzed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "pfp",
	Name:      "bytes_analyzed_total",
	Help:      "Bytes read by successful analyses.",
})

// FilesInFlight tracks files currently being analyzed.
var FilesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "pfp",
	Name:      "files_in_flight",
	Help:      "Files currently being analyzed.",
})

// ─── Pool ───────────────────────────────────────────────────────────────────

// QueueDepth tracks jobs waiting for a worker.
var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "pfp",
	Name:      "queue_depth",
	Help:      "Jobs waiting for a worker.",
})

// WorkersAlive tracks running worker goroutines across all pools.
var WorkersAlive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "pfp",
	Name:      "workers_alive",
	Help:      "Running worker goroutines.",
})

// JobPanics counts jobs that panicked inside a worker.
var JobPanics = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "pfp",
	Name:      "job_panics_total",
	Help:      "Jobs that panicked inside a worker.",
})

// ─── Runs ───────────────────────────────────────────────────────────────────

// RunsCompleted counts finished batch runs.
var RunsCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "pfp",
	Name:      "runs_completed_total",
	Help:      "Finished batch runs.",
})

// RunDuration tracks wall-clock time of a whole batch.
var RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "pfp",
	Name:      "run_duration_seconds",
	Help:      "Wall-clock time of a batch run.",
	Buckets:   prometheus.DefBuckets,
})
