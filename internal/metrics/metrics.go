// Package metrics declares the Prometheus collectors exported on /metrics.
// Collectors register with the default registry when the package loads.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationTransitions counts committed reservation transitions.
	ReservationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_reservation_transitions_total",
		Help: "Committed reservation status transitions.",
	}, []string{"from", "to"})

	// SaleMutations counts committed sale ledger operations by name.
	SaleMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_sale_mutations_total",
		Help: "Committed sale ledger mutations.",
	}, []string{"op"})

	// TableBindings counts table bind/unbind operations.
	TableBindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_table_bindings_total",
		Help: "Table registry bind and unbind operations.",
	}, []string{"op"})

	// LockContention counts lock attempts that had to back off.
	LockContention = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_lock_contention_total",
		Help: "Aggregate lock attempts that found the lock held.",
	})

	// LockTimeouts counts acquisitions that gave up.
	LockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_lock_timeouts_total",
		Help: "Aggregate lock acquisitions that returned Cancelled.",
	})

	// JournalErrors counts failed writes to the persistence journal.
	JournalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_journal_errors_total",
		Help: "Failed journal writes by aggregate.",
	}, []string{"aggregate"})
)
