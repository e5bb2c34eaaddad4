package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renting_payments_recorded_total",
		Help: "Payments persisted by the reconciliation engine.",
	})

	DuplicatesIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renting_duplicate_transactions_total",
		Help: "Provider retries collapsed by the idempotency constraint.",
	})

	Anomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renting_reconciliation_anomalies_total",
		Help: "Confirmations acked but left for manual reconciliation.",
	})

	ResolutionStrategy = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "renting_tenant_resolution_total",
		Help: "Tenant resolutions by strategy layer.",
	}, []string{"strategy"})
)
