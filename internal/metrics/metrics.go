package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Quadtree metrics
	QuadtreeInserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quadtree_inserts_total",
			Help: "Total number of particle inserts by outcome",
		},
		[]string{"result"}, // result: stored, merged, forced_merge, dropped
	)

	QuadtreeForcedMerges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quadtree_forced_merges_total",
			Help: "Total number of particles absorbed by a leaf at the depth cap",
		},
	)

	QuadtreeAggregateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quadtree_aggregate_duration_seconds",
			Help:    "Duration of centroid aggregation passes",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	QuadtreeInteractionsPerQuery = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quadtree_interactions_per_query",
			Help:    "Number of interaction pairs returned per query",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	// Layout metrics
	LayoutRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layout_runs_total",
			Help: "Total number of layout runs",
		},
		[]string{"status"}, // status: success, failed, canceled
	)

	LayoutRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "layout_run_duration_seconds",
			Help:    "Duration of complete layout runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	LayoutIterationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "layout_iteration_duration_seconds",
			Help:    "Duration of single layout iterations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	LayoutCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layout_cache_requests_total",
			Help: "Total number of layout cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	// Store operation metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of store operations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"op"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operation_errors_total",
			Help: "Total number of store operation errors",
		},
		[]string{"op"},
	)

	StoredRunsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_layout_runs",
			Help: "Number of layout runs held in the store",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"name"},
	)

	// Result cache metrics
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "layout_cache_size_bytes",
			Help: "Approximate size of the layout result cache in bytes",
		},
	)

	CacheItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "layout_cache_items",
			Help: "Approximate number of items in the layout result cache",
		},
	)

	CacheEvictions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "layout_cache_evictions",
			Help: "Evictions from the layout result cache since start",
		},
	)

	// API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"route", "method", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"route", "status"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"scope"}, // scope: global, ip
	)

	RateLimitClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_rate_limit_tracked_clients",
			Help: "Client IPs currently holding a rate limit bucket",
		},
	)

	// Metrics collection error tracking
	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"collector"}, // sampler name
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)
	// ScheduledJobRuns counts background job executions by outcome.
	ScheduledJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Background job executions by job and status",
		},
		[]string{"job", "status"},
	)
)
