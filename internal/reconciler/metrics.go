package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_reconciliations_total",
			Help: "Total number of turn reconciliations processed.",
		},
		[]string{"outcome"}, // "success", "backend_error", "store_error", "stale_actor"
	)
	reconciliationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "saga_reconciliation_duration_seconds",
		Help:    "Duration of one full turn reconciliation including the narration call.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
	illustrationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_illustration_errors_total",
		Help: "Total number of failed illustration requests.",
	})
)
