// Package metrics holds the Prometheus collectors of the capacity engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "excursions"

var (
	// Reservations counts Reserve attempts by outcome (reserved, insufficient, unavailable)
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "reservations_total",
		Help:      "Seat reservation attempts by outcome.",
	}, []string{"outcome"})

	// SeatsReserved counts guests seated by the ledger
	SeatsReserved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "seats_reserved_total",
		Help:      "Guests seated on day capacities.",
	})

	// SeatsReleased counts guests released by cancellation or expiry
	SeatsReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "seats_released_total",
		Help:      "Guests released from day capacities, by reason.",
	}, []string{"reason"})

	// InconsistentStates counts ledger invariant violations
	InconsistentStates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "inconsistent_states_total",
		Help:      "Ledger invariant violations, by operation.",
	}, []string{"op"})

	// ReconcileDrift counts day rows whose booked guests had drifted
	ReconcileDrift = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "reconcile_drifted_days_total",
		Help:      "Day capacities corrected by reconciliation.",
	})

	// OverbookedDays counts days found booked beyond capacity
	OverbookedDays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "overbooked_days_total",
		Help:      "Day capacities found with more booked guests than seats.",
	})

	// SweepRuns counts sweep executions by sweep and result
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeps",
		Name:      "runs_total",
		Help:      "Maintenance sweep runs, by sweep and result.",
	}, []string{"sweep", "result"})

	// SweepAffected counts rows changed by sweeps
	SweepAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeps",
		Name:      "affected_total",
		Help:      "Records changed by maintenance sweeps.",
	}, []string{"sweep"})

	// SweepDuration observes sweep run time
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sweeps",
		Name:      "duration_seconds",
		Help:      "Maintenance sweep duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"sweep"})

	// HTTPRequests counts API requests
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests, by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes API latency
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// EventsPublished counts notification events by subject and result
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Lifecycle notifications, by subject and result.",
	}, []string{"subject", "result"})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
