// Package metrics exposes Prometheus collectors for room and trip activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ridesplit"

var (
	roomOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "room_operations_total",
		Help:      "Room registry operations by kind and outcome.",
	}, []string{"op", "result"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_transitions_total",
		Help:      "Trip pipeline phase transitions by target phase.",
	}, []string{"phase"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pipeline_active_sessions",
		Help:      "Rooms with a live trip pipeline session.",
	})

	settledAmount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settled_amount_total",
		Help:      "Sum of actual fares settled.",
	})

	settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_total",
		Help:      "Settlement attempts by outcome.",
	}, []string{"result"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_cache_lookups_total",
		Help:      "Response cache lookups by result (hit, miss).",
	}, []string{"result"})
)

// RoomOp records a registry operation and its outcome ("ok" or the
// failure kind).
func RoomOp(op, result string) {
	roomOps.WithLabelValues(op, result).Inc()
}

// Transition records a pipeline phase change.
func Transition(phase string) {
	transitions.WithLabelValues(phase).Inc()
}

func SessionOpened() { activeSessions.Inc() }
func SessionClosed() { activeSessions.Dec() }

// Settled records a completed settlement of amount.
func Settled(amount int) {
	settlements.WithLabelValues("ok").Inc()
	settledAmount.Add(float64(amount))
}

// SettleFailed records an aborted settlement.
func SettleFailed(result string) {
	settlements.WithLabelValues(result).Inc()
}

func RateLimited() { rateLimited.Inc() }

// CacheLookup records a response cache hit or miss.
func CacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
