package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidmetrics_storage_records_total",
			Help: "Telemetry records committed to the database",
		},
		[]string{"type"},
	)

	deletedSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "droidmetrics_storage_sessions_deleted_total",
			Help: "Sessions removed by retention cleanup",
		},
	)
)
