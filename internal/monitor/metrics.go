package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidmetrics_monitor_cycles_total",
			Help: "Monitor collection cycles by result",
		},
		[]string{"result"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "droidmetrics_monitor_cycle_duration_seconds",
			Help:    "Duration of one monitor collection cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	consecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "droidmetrics_monitor_consecutive_failures",
			Help: "Failed cycles since the last successful one",
		},
	)
)
