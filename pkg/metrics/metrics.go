package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies on the events backend.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsync_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// GatewayRequests counts outbound client requests by verb and outcome (ok|request_error|network_error).
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_gateway_requests_total",
			Help: "Total number of requests issued by the API gateway client",
		},
		[]string{"method", "outcome"},
	)

	// CacheLookups records query cache reads by result (hit|stale|miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_cache_lookups_total",
			Help: "Total number of query cache lookups",
		},
		[]string{"result"},
	)

	// CacheFetches records query function runs by outcome (success|error|discarded).
	CacheFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_cache_fetches_total",
			Help: "Total number of query cache fetches",
		},
		[]string{"outcome"},
	)

	// CacheInvalidations counts entries marked stale by invalidation.
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_cache_invalidations_total",
			Help: "Total number of cache entries invalidated",
		},
	)

	// Mutations counts coordinated writes by mutation name and outcome (success|error|cancelled).
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_mutations_total",
			Help: "Total number of coordinated mutations",
		},
		[]string{"mutation", "outcome"},
	)

	// RealtimeConnections tracks connected websocket subscribers on the backend.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsync_realtime_connections",
			Help: "Number of connected realtime subscribers",
		},
	)
)
