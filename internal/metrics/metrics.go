// Package metrics declares the process-wide Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stop lookup cache
	StopLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stop_lookups_total",
			Help: "Stop lookups by how they were served",
		},
		[]string{"result"}, // exact_hit, near_hit, shared, fetched, fallback, failed
	)

	StopUpstreamCalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stop_upstream_calls_total",
			Help: "Calls launched against the upstream stop API",
		},
	)

	StopUpstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stop_upstream_duration_seconds",
			Help:    "Latency of upstream stop API calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	StopPacingDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stop_pacing_delay_seconds",
			Help:    "Time a fetch waited for the global pacing interval",
			Buckets: []float64{0, 0.05, 0.1, 0.2, 0.4, 0.8, 1.6, 3.2},
		},
	)

	StopCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stop_cache_entries",
			Help: "Entries currently held in the stop cache",
		},
	)

	StopPendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stop_pending_requests",
			Help: "Upstream stop fetches currently in flight",
		},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Geocoding
	GeocodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_requests_total",
			Help: "Outbound geocoding requests",
		},
		[]string{"kind", "result"}, // kind: search, suggest; result: ok, empty, error
	)

	// Places
	PlaceWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "place_writes_total",
			Help: "Place create/update/delete operations",
		},
		[]string{"operation", "result"},
	)

	// WebSocket
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Open change-channel connections",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Messages queued to change-channel clients",
		},
		[]string{"type"},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Messages dropped because a client send buffer was full",
		},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of served HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	HTTPRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-key rate limiter",
		},
	)
)

func RecordHTTPRequest(method string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// RecordCircuitBreakerTransition updates the state gauge and transition counter.
// States use the gobreaker String() form: closed, half-open, open.
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

func stateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
