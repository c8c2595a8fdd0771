// Package metrics exports supply chain operation counters and latencies to
// Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operations implements ledger.Recorder.
type Operations struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewOperations registers the operation collectors with reg.
func NewOperations(reg prometheus.Registerer) *Operations {
	factory := promauto.With(reg)
	return &Operations{
		// outcome is "OK" or the ledger error kind, e.g. "Unauthorized".
		total: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supplychain_operations_total",
				Help: "Supply chain operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "supplychain_operation_duration_seconds",
				Help:    "Duration of supply chain operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
}

func (o *Operations) ObserveOperation(op, outcome string, elapsed time.Duration) {
	o.total.WithLabelValues(op, outcome).Inc()
	o.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
