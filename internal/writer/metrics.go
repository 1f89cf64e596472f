package writer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidmetrics_writer_flushes_total",
			Help: "Bulk writes per record type by trigger and result",
		},
		[]string{"type", "trigger", "result"},
	)

	droppedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidmetrics_writer_dropped_records_total",
			Help: "Records lost because their bulk write failed",
		},
		[]string{"type"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "droidmetrics_writer_queue_depth",
			Help: "Records waiting in each writer queue",
		},
		[]string{"type"},
	)
)
