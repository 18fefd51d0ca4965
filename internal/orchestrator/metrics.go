package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors owned by the orchestrator.
type Metrics struct {
	// runsTotal counts runs by mode (task, flow) and outcome (ok, error, noop).
	runsTotal *prometheus.CounterVec

	// runDurationSeconds records whole-run latency, indexing included.
	runDurationSeconds *prometheus.HistogramVec

	// stepsTotal counts executed flow steps by agent and outcome.
	stepsTotal *prometheus.CounterVec

	// stepDurationSeconds records per-step latency by agent.
	stepDurationSeconds *prometheus.HistogramVec

	// selectionsTotal counts agent selections, with fallback marking
	// default-agent picks.
	selectionsTotal *prometheus.CounterVec

	// indexedChunksTotal counts chunks written during project indexing.
	indexedChunksTotal prometheus.Counter

	// skippedFilesTotal counts files that could not be read during indexing.
	skippedFilesTotal prometheus.Counter
}

// NewMetrics registers the orchestrator metrics against reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Total orchestration runs, partitioned by mode and outcome.",
		}, []string{"mode", "outcome"}),

		runDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conductor",
			Subsystem: "orchestrator",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of orchestration runs including indexing.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"mode"}),

		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "flow",
			Name:      "steps_total",
			Help:      "Total flow steps executed, partitioned by agent and outcome.",
		}, []string{"agent", "outcome"}),

		stepDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conductor",
			Subsystem: "flow",
			Name:      "step_duration_seconds",
			Help:      "Duration of a single flow step: retrieve, execute and feedback.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent"}),

		selectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "selector",
			Name:      "selections_total",
			Help:      "Total agent selections, partitioned by agent and whether the default fallback was used.",
		}, []string{"agent", "fallback"}),

		indexedChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "index",
			Name:      "chunks_total",
			Help:      "Total chunks embedded and stored by project indexing.",
		}),

		skippedFilesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "index",
			Name:      "skipped_files_total",
			Help:      "Total matching files skipped because they could not be read.",
		}),
	}
}
