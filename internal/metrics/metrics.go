package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every hutch collector. It is separate from the default
	// registry so tests can read it without global side effects.
	Registry = prometheus.NewRegistry()

	ReservationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hutch_reservations_total",
		Help: "Number of reservation mutations applied, by operation",
	}, []string{"op"})

	ReservationConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hutch_reservation_conflicts_total",
		Help: "Number of reservation mutations rejected because the host was unavailable",
	}, []string{"op"})

	PendingMoves = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hutch_pending_moves",
		Help: "Number of hosts changing cloud in the last computed move plan",
	})

	once sync.Once
)

// Operation labels for the reservation counters.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// InitMetrics registers the collectors. Safe to call more than once.
func InitMetrics() {
	once.Do(func() {
		Registry.MustRegister(
			ReservationsTotal,
			ReservationConflictsTotal,
			PendingMoves,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
