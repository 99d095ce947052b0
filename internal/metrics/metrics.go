package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal         *prometheus.CounterVec
	CacheMissesTotal       *prometheus.CounterVec
	CacheOperationDuration *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitExceededTotal *prometheus.CounterVec

	// Database metrics
	DatabaseQueryDuration *prometheus.HistogramVec

	// Feed sampling metrics
	FeedQueriesTotal       *prometheus.CounterVec
	FeedQueryDuration      *prometheus.HistogramVec
	FeedRefillDuration     prometheus.Histogram
	FeedBatchSize          prometheus.Histogram
	FeedBlacklistedBuckets prometheus.Counter
	FeedSessionsActive     prometheus.Gauge
	FeedSessionsExhausted  prometheus.Counter

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPResponseSize: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path", "status"},
			),

			CacheHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of cache hits",
				},
				[]string{"cache_name"},
			),
			CacheMissesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of cache misses",
				},
				[]string{"cache_name"},
			),
			CacheOperationDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "cache_operation_duration_seconds",
					Help:    "Cache operation latency in seconds",
					Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
				},
				[]string{"operation", "cache_name"},
			),

			RateLimitExceededTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of rate limit violations",
				},
				[]string{"endpoint", "method"},
			),

			DatabaseQueryDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "database_query_duration_seconds",
					Help:    "Database query latency in seconds",
					Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"query_type", "table"},
			),

			FeedQueriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "feed_bucket_queries_total",
					Help: "Bucket queries issued by the feed sampler by tier and outcome",
				},
				[]string{"tier", "result"},
			),
			FeedQueryDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "feed_bucket_query_duration_seconds",
					Help:    "Bucket query latency in seconds",
					Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"tier"},
			),
			FeedRefillDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "feed_refill_duration_seconds",
					Help:    "Time to refill a session's on-deck list",
					Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
				},
			),
			FeedBatchSize: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "feed_batch_size",
					Help:    "Number of post ids delivered per batch",
					Buckets: prometheus.LinearBuckets(0, 1, 8),
				},
			),
			FeedBlacklistedBuckets: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "feed_blacklisted_buckets_total",
					Help: "Buckets confirmed empty and skipped for the rest of a session",
				},
			),
			FeedSessionsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "feed_sessions_active",
					Help: "Feed sessions currently held by the registry",
				},
			),
			FeedSessionsExhausted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "feed_sessions_exhausted_total",
					Help: "Sessions that ran out of posts in their sphere",
				},
			),

			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Initialize()
}
