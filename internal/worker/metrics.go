package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tasksTotal counts finished tasks.
	// Labels: kind, outcome (ok, partial, error, fatal, canceled)
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reqfind",
		Subsystem: "worker",
		Name:      "tasks_total",
		Help:      "Total tasks finished by the worker",
	}, []string{"kind", "outcome"})

	// taskDuration measures execution time, queue wait excluded.
	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reqfind",
		Subsystem: "worker",
		Name:      "task_duration_seconds",
		Help:      "Task execution time in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, []string{"kind"})

	// queueDepth tracks tasks waiting behind the in-flight one.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "reqfind",
		Subsystem: "worker",
		Name:      "queue_depth",
		Help:      "Tasks waiting in the worker queue",
	})

	// fragmentsChanged counts committed fragment mutations.
	// Labels: op (inserted, removed)
	fragmentsChanged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reqfind",
		Subsystem: "worker",
		Name:      "fragments_total",
		Help:      "Fragments inserted into or removed from the index",
	}, []string{"op"})

	// queryCacheLookups counts query cache hits and misses.
	queryCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reqfind",
		Subsystem: "worker",
		Name:      "query_cache_lookups_total",
		Help:      "Query cache lookups by result",
	}, []string{"result"})
)

func recordTask(kind Kind, outcome string, seconds float64) {
	tasksTotal.WithLabelValues(string(kind), outcome).Inc()
	taskDuration.WithLabelValues(string(kind)).Observe(seconds)
}

func recordFragments(inserted, removed int) {
	if inserted > 0 {
		fragmentsChanged.WithLabelValues("inserted").Add(float64(inserted))
	}
	if removed > 0 {
		fragmentsChanged.WithLabelValues("removed").Add(float64(removed))
	}
}
