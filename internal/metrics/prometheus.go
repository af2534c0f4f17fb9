// Package metrics provides Prometheus metrics for the lookup service:
// request counts, stage latencies, provider health, LLM token usage
// and cache efficiency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lexiforge"

// LatencyBuckets covers sub-millisecond cache hits through multi-second
// LLM synthesis.
var LatencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 2.5, 5.0, 10.0, 20.0, 30.0, 60.0, 120.0,
}

var (
	// LookupsTotal counts finished lookups by outcome.
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Total lookups by tier, outcome and cache disposition",
		},
		[]string{"tier", "outcome", "from_cache"},
	)

	// LookupLatency tracks end-to-end lookup latency.
	LookupLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_latency_seconds",
			Help:      "End-to-end lookup latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"tier"},
	)

	// ActiveLookups gauges lookups currently in flight.
	ActiveLookups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_lookups",
			Help:      "Lookups currently in flight",
		},
	)

	// SearchesTotal counts resolver hits by method.
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Resolver results by search method",
		},
		[]string{"method"},
	)

	// ProviderRequests counts upstream dictionary fetches.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Dictionary provider fetches by provider and status",
		},
		[]string{"provider", "status"},
	)

	// ProviderLatency tracks upstream dictionary fetch latency.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Dictionary provider fetch latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider"},
	)

	// LLMRequests counts LLM completions by model and status.
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM completion calls by model, tier and status",
		},
		[]string{"model", "tier", "status"},
	)

	// LLMTokens counts tokens by direction.
	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "LLM token usage",
		},
		[]string{"model", "type"}, // type: input, output
	)

	// CacheHits and CacheMisses mirror the per-namespace cache counters.
	CacheHits = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_hits",
			Help:      "Cache hits per namespace",
		},
		[]string{"cache_namespace"},
	)
	CacheMisses = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_misses",
			Help:      "Cache misses per namespace",
		},
		[]string{"cache_namespace"},
	)
	CacheHitRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_hit_rate",
			Help:      "Cache hit rate per namespace",
		},
		[]string{"cache_namespace"},
	)
)

// RecordLookup records one finished lookup.
func RecordLookup(tier, outcome string, fromCache bool, latency time.Duration) {
	LookupsTotal.WithLabelValues(tier, outcome, strconv.FormatBool(fromCache)).Inc()
	LookupLatency.WithLabelValues(tier).Observe(latency.Seconds())
}

// RecordProviderFetch records one upstream dictionary fetch.
func RecordProviderFetch(provider, status string, latency time.Duration) {
	ProviderRequests.WithLabelValues(provider, status).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordLLMUsage records one completion call with its token counts.
func RecordLLMUsage(model, tier, status string, inputTokens, outputTokens int) {
	LLMRequests.WithLabelValues(model, tier, status).Inc()
	if inputTokens > 0 {
		LLMTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}
