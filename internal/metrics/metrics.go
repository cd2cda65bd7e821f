// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HoldsAcquired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cinema",
		Name:      "holds_acquired_total",
		Help:      "Successful seat hold acquisitions.",
	})

	HoldConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cinema",
		Name:      "hold_conflicts_total",
		Help:      "Hold or sale attempts rejected because a seat was taken.",
	})

	HoldSeats = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cinema",
		Name:      "hold_seats",
		Help:      "Seats per successful hold.",
		Buckets:   []float64{1, 2, 3, 4, 6, 8, 10, 15, 20},
	})

	// Sales counts sale transitions by outcome: created, confirmed,
	// failed, cancelled, expired.
	Sales = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinema",
		Name:      "sales_total",
		Help:      "Sale lifecycle transitions.",
	}, []string{"outcome"})

	SweeperRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cinema",
		Name:      "sweeper_runs_total",
		Help:      "Expiry sweeper passes.",
	})

	SweeperErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cinema",
		Name:      "sweeper_errors_total",
		Help:      "Expiry sweeper passes that ended with an error.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinema",
		Name:      "events_published_total",
		Help:      "Booking events handed to the publisher, by result.",
	}, []string{"type", "result"})
)
