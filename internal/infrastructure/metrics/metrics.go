package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metric names
const (
	MetricNameCacheOperations      = "cache_operations_total"
	MetricNameRateComputations     = "completion_rate_computations_total"
	MetricNameInvalidations        = "completion_rate_invalidations_total"
	MetricNameHTTPRequestsTotal    = "http_requests_total"
	MetricNameHTTPRequestDuration  = "http_request_duration_seconds"
	MetricNameHTTPRequestsInFlight = "http_requests_in_flight"
	MetricNameDBStatementDuration  = "db_statement_duration_seconds"
)

// label names
const (
	LabelOperation = "operation"
	LabelResult    = "result"
	LabelKind      = "kind"
	LabelMethod    = "method"
	LabelPath      = "path"
	LabelStatus    = "status"
)

// cache operation results
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultOK      = "ok"
	ResultError   = "error"
	ResultTimeout = "timeout"
)

// Cache Metrics
var (
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameCacheOperations,
			Help: "Cache operations partitioned by outcome",
		},
		[]string{LabelOperation, LabelResult},
	)
)

// Completion rate Metrics
var (
	RateComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameRateComputations,
			Help: "Completion rates computed from persistence after a cache miss",
		},
		[]string{LabelKind},
	)

	Invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameInvalidations,
			Help: "Completion rate invalidations triggered by progress writes",
		},
		[]string{LabelKind},
	)
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameHTTPRequestsTotal,
			Help: "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameHTTPRequestDuration,
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelPath},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameHTTPRequestsInFlight,
			Help: "Current number of HTTP requests being served",
		},
	)
)

// Database Metrics
var (
	DBStatementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameDBStatementDuration,
			Help:    "SQL statement latency in seconds, partitioned by driver call and outcome",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelMethod, LabelResult},
	)
)
