// Package observability provides Prometheus metrics and the metrics/pprof
// servers for the marketplace synchronization service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "marketsync"
)

// FineGrainedLatencyBuckets provides sub-millisecond to multi-second measurement.
// Use for: cache operations, contract calls, metadata fetches.
// Buckets: 1ms, 2ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s, 30s
var FineGrainedLatencyBuckets = []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

var (
	// CacheOperationsTotal counts cache lookups by query key and result.
	// Result is one of: hit, stale_hit, miss, attach (joined an in-flight fetch).
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Total cache lookups by result",
		},
		[]string{"query_key", "result"},
	)

	// CacheInvalidationsTotal counts invalidation signals by reason.
	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total cache invalidation signals by reason (event/manual/ttl)",
		},
		[]string{"query_key", "reason"},
	)

	// CacheStaleResultsDiscardedTotal counts fetch results discarded because the
	// entry version advanced while the fetch was in flight.
	CacheStaleResultsDiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "stale_results_discarded_total",
			Help:      "Fetch results discarded due to a version advance during flight",
		},
		[]string{"query_key"},
	)

	// CacheLoadDurationSeconds tracks loader execution latencies.
	CacheLoadDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "load_duration_seconds",
			Help:      "Duration of cache loader executions",
			Buckets:   FineGrainedLatencyBuckets,
		},
		[]string{"query_key", "status"},
	)

	// MetadataResolvesTotal counts metadata resolutions by outcome.
	// Outcome is one of: success, memo_hit, unreachable, malformed.
	MetadataResolvesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "metadata",
			Name:      "resolves_total",
			Help:      "Total metadata resolutions by outcome",
		},
		[]string{"outcome"},
	)

	// MetadataResolveDurationSeconds tracks metadata fetch latencies.
	MetadataResolveDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "metadata",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of metadata fetches",
			Buckets:   FineGrainedLatencyBuckets,
		},
		[]string{"outcome"},
	)

	// ContractCallDurationSeconds tracks contract call latencies by method.
	ContractCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "contract",
			Name:      "call_duration_seconds",
			Help:      "Duration of contract calls",
			Buckets:   FineGrainedLatencyBuckets,
		},
		[]string{"method", "status"},
	)

	// ListingsDecodedTotal counts listing tuples decoded from the contract.
	// Result is one of: decoded, skipped (malformed tuple).
	ListingsDecodedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reader",
			Name:      "listings_decoded_total",
			Help:      "Listing tuples decoded from contract reads",
		},
		[]string{"result"},
	)

	// ChainEventsTotal counts chain events observed by the invalidation bus.
	// Result is one of: applied, coalesced (duplicate tx), superseded (stale handle).
	ChainEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "events",
			Name:      "chain_events_total",
			Help:      "Chain events observed by the invalidation bus",
		},
		[]string{"event", "result"},
	)

	// BusReconnectsTotal counts event subscription reconnection attempts.
	BusReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "events",
			Name:      "reconnects_total",
			Help:      "Event subscription reconnection attempts",
		},
		[]string{"status"},
	)

	// RedisOperationsTotal counts Redis mirror operations.
	RedisOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "redis",
			Name:      "operations_total",
			Help:      "Total Redis mirror operations",
		},
		[]string{"operation", "status"},
	)

	// ErrorsTotal counts errors by component and type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// StartupDurationSeconds tracks startup time of components.
	StartupDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "startup_duration_seconds",
			Help:      "Time taken to start components",
		},
		[]string{"component"},
	)

	// ProcessInfo provides static information about the process.
	ProcessInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "process_info",
			Help:      "Information about the running process",
		},
		[]string{"version"},
	)
)

// SetProcessInfo records the running build's version as a labeled gauge.
func SetProcessInfo(version string) {
	ProcessInfo.WithLabelValues(version).Set(1)
}
