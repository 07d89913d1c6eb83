package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_cache_hits_total",
		Help: "Queries served from a fresh cache entry",
	}, []string{"key"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_cache_misses_total",
		Help: "Queries that needed a fetch (absent, stale or invalidated entry)",
	}, []string{"key"})

	CacheFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_cache_fetches_total",
		Help: "Fetcher invocations against the backing store",
	}, []string{"key"})

	CacheFetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_cache_fetch_errors_total",
		Help: "Fetches that failed after all retries",
	}, []string{"key"})

	CacheDedupedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_cache_deduplicated_total",
		Help: "Queries that joined an in-flight fetch instead of starting one",
	}, []string{"key"})

	CacheDiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_cache_discarded_total",
		Help: "Fetch results dropped because a newer result was already applied",
	}, []string{"key"})

	CacheFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "query_cache_fetch_latency_seconds",
		Help:    "Latency of backing-store fetches issued by the query cache",
		Buckets: prometheus.DefBuckets,
	}, []string{"key"})

	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mutations_total",
		Help: "Mutations by name and outcome",
	}, []string{"mutation", "outcome"})

	MutationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mutation_latency_seconds",
		Help:    "Latency of backing-store writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"mutation"})

	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed through checkout",
	})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Order status changes applied by the backing store",
	}, []string{"status"})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Checkouts that left the cart intact",
	}, []string{"reason"})

	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logins_total",
		Help: "Login attempts by outcome",
	}, []string{"outcome"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Entity-changed events consumed by the invalidation worker",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
