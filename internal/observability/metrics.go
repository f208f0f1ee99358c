package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sourceOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "query_engine",
		Subsystem: "retrieval",
		Name:      "source_outcome_total",
		Help:      "Retrieval source calls by source and outcome (ok, empty, timeout, failure, quota, circuit_open, skipped)",
	}, []string{"source", "outcome"})

	sourceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "query_engine",
		Subsystem: "retrieval",
		Name:      "source_latency_seconds",
		Help:      "Latency of a single retrieval source call",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"source"})

	degradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "query_engine",
		Subsystem: "retrieval",
		Name:      "degraded_total",
		Help:      "Retrievals where every invoked source failed",
	})

	intentDecisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "query_engine",
		Subsystem: "intent",
		Name:      "decision_total",
		Help:      "Intent gate decisions by reason code",
	}, []string{"reason"})

	breakerStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "query_engine",
		Subsystem: "websearch",
		Name:      "breaker_transitions_total",
		Help:      "Web search circuit breaker transitions by target state",
	}, []string{"to"})

	webCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "query_engine",
		Subsystem: "websearch",
		Name:      "cache_total",
		Help:      "Web search cache lookups by result (hit, miss)",
	}, []string{"result"})
)

// ObserveSource records one retrieval source call.
func ObserveSource(source, outcome string, elapsed time.Duration) {
	sourceOutcomeTotal.WithLabelValues(source, outcome).Inc()
	if outcome != "skipped" {
		sourceLatency.WithLabelValues(source).Observe(elapsed.Seconds())
	}
}

// ObserveDegraded counts a retrieval that produced no usable source.
func ObserveDegraded() {
	degradedTotal.Inc()
}

// ObserveIntent counts an intent decision.
func ObserveIntent(reason string) {
	intentDecisionTotal.WithLabelValues(reason).Inc()
}

// ObserveBreakerTransition counts a circuit breaker state change.
func ObserveBreakerTransition(to string) {
	breakerStateChanges.WithLabelValues(to).Inc()
}

// ObserveWebCache counts a web search cache lookup.
func ObserveWebCache(hit bool) {
	if hit {
		webCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	webCacheTotal.WithLabelValues("miss").Inc()
}
