package adb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "droidmetrics_adb_command_duration_seconds",
			Help:    "Device command latency in seconds, including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"command"},
	)

	commandFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidmetrics_adb_command_failures_total",
			Help: "Device commands that produced no output after all attempts",
		},
		[]string{"command", "reason"},
	)

	commandCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "droidmetrics_adb_command_cache_hits_total",
			Help: "Device commands served from the command cache",
		},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "droidmetrics_dispatch_batch_duration_seconds",
			Help:    "Wall time of a dispatched command batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	batchAbsent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "droidmetrics_dispatch_absent_results_total",
			Help: "Batch entries that returned no output",
		},
	)

	tasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "droidmetrics_dispatch_tasks_in_flight",
			Help: "Device commands currently holding a worker",
		},
	)
)
