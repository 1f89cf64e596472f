package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidmetrics_api_requests_total",
			Help: "API requests by route and status",
		},
		[]string{"route", "status"},
	)

	rateLimitRejects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "droidmetrics_api_rate_limit_rejects_total",
			Help: "Collection requests rejected by the rate limiter",
		},
	)
)
