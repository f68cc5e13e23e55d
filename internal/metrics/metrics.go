// Package metrics exposes the production core's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BlendsCreated counts committed blends.
var BlendsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "brewery",
	Subsystem: "blend",
	Name:      "created_total",
	Help:      "Total blends committed.",
})

// PackagingTransitions counts startPackaging calls by outcome (moved, idempotent).
var PackagingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "brewery",
	Subsystem: "packaging",
	Name:      "transitions_total",
	Help:      "Packaging transitions by outcome.",
}, []string{"outcome"})

// PackagingBatchesMoved counts batches moved into packaging, including blend fan-out.
var PackagingBatchesMoved = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "brewery",
	Subsystem: "packaging",
	Name:      "batches_moved_total",
	Help:      "Batches moved into packaging.",
})

// TankSyncs counts secondary tank bookkeeping attempts by outcome (done, failed).
var TankSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "brewery",
	Subsystem: "tank_sync",
	Name:      "attempts_total",
	Help:      "Tank assignment sync attempts by outcome.",
}, []string{"outcome"})

// LedgerMovements counts appended ledger entries by type.
var LedgerMovements = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "brewery",
	Subsystem: "ledger",
	Name:      "movements_total",
	Help:      "Ledger entries appended by type.",
}, []string{"type"})

// BalanceDrifts counts cached balances repaired by reconciliation.
var BalanceDrifts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "brewery",
	Subsystem: "ledger",
	Name:      "balance_drifts_total",
	Help:      "Cached balances that differed from the ledger sum and were repaired.",
})

// LockContention counts lock acquisitions that gave up.
var LockContention = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "brewery",
	Subsystem: "lock",
	Name:      "contention_total",
	Help:      "Lock acquisitions that timed out by scope.",
}, []string{"scope"})

// AlertsSent counts alert deliveries by kind and outcome.
var AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "brewery",
	Subsystem: "alerts",
	Name:      "sent_total",
	Help:      "Alert push deliveries by kind and outcome.",
}, []string{"kind", "outcome"})

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
