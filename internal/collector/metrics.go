package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	collectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "droidmetrics_collection_duration_seconds",
			Help:    "Wall time of one collection per telemetry domain",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"domain"},
	)

	collections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidmetrics_collections_total",
			Help: "Collections per domain by outcome (fresh, collected, degraded, empty)",
		},
		[]string{"domain", "outcome"},
	)

	intervalSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "droidmetrics_sampling_interval_seconds",
			Help: "Current adaptive sampling interval per domain",
		},
		[]string{"domain"},
	)

	cacheHitRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "droidmetrics_cache_hit_ratio",
			Help: "Share of tiered cache lookups served from either tier",
		},
	)

	powerSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidmetrics_power_readings_total",
			Help: "Power readings by the fallback step that produced them",
		},
		[]string{"source"},
	)
)
