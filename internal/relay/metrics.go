package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for relay observability.
type Metrics struct {
	DeliveriesTotal *prometheus.CounterVec // relay attempts by outcome
	Duration        prometheus.Histogram   // end-to-end resume call duration
	DuplicatesTotal prometheus.Counter     // interactions dropped by the dedupe guard
}

// NewMetrics creates Prometheus metrics for the relay client. The registerer
// parameter allows flexible registration (global registry in production, a
// fresh registry in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attribot_relay_deliveries_total",
		Help: "Total number of relay attempts to n8n by outcome",
	}, []string{"outcome"})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attribot_relay_duration_seconds",
		Help:    "Duration of resume webhook calls",
		Buckets: prometheus.DefBuckets,
	})

	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attribot_relay_duplicates_total",
		Help: "Total number of interactions dropped as duplicates",
	})

	reg.MustRegister(deliveries)
	reg.MustRegister(duration)
	reg.MustRegister(duplicates)

	return &Metrics{
		DeliveriesTotal: deliveries,
		Duration:        duration,
		DuplicatesTotal: duplicates,
	}
}

// Outcome labels for DeliveriesTotal.
const (
	OutcomeSuccess     = "success"
	OutcomeNotWaiting  = "not_waiting"
	OutcomeHTTPError   = "http_error"
	OutcomeUnreachable = "unreachable"
)
