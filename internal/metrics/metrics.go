package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ledger operation counters exported at /metrics.
type Metrics struct {
	DepositsInitiated   prometheus.Counter
	DepositsReconciled  *prometheus.CounterVec // partitioned by terminal status
	TransfersApplied    prometheus.Counter
	TransfersRejected   *prometheus.CounterVec // partitioned by reason
	IdempotentReplays   *prometheus.CounterVec // partitioned by operation kind
	APIKeyValidations   *prometheus.CounterVec // partitioned by result
}

// New registers the wallet service metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DepositsInitiated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "ledger",
				Name:      "deposits_initiated_total",
				Help:      "Total deposit checkout sessions registered.",
			},
		),
		DepositsReconciled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "ledger",
				Name:      "deposits_reconciled_total",
				Help:      "Total deposits resolved to a terminal status.",
			},
			[]string{"status"},
		),
		TransfersApplied: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "ledger",
				Name:      "transfers_applied_total",
				Help:      "Total committed peer-to-peer transfers.",
			},
		),
		TransfersRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "ledger",
				Name:      "transfers_rejected_total",
				Help:      "Total rejected transfers partitioned by reason.",
			},
			[]string{"reason"},
		),
		IdempotentReplays: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "ledger",
				Name:      "idempotent_replays_total",
				Help:      "Total operations answered from a prior committed result.",
			},
			[]string{"kind"},
		),
		APIKeyValidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "apikeys",
				Name:      "validations_total",
				Help:      "Total API key validations partitioned by result.",
			},
			[]string{"result"},
		),
	}
}
