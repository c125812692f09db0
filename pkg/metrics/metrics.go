// Package metrics implements A6: Prometheus instrumentation for the store
// and the event bus.
//
// Grounded in the spec's own language ("bus's internal error counter",
// spec.md §4.9/§7) and the teacher's per-request/test registry isolation
// convention (internal/testutil): metrics are registered against a
// caller-supplied *prometheus.Registry, never the global default, so
// concurrent tests never collide on registration.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge SPEC_FULL.md §4.16 names.
type Metrics struct {
	EventsEmittedTotal   prometheus.Counter
	HandlerErrorsTotal   prometheus.Counter
	StoreOperationsTotal *prometheus.CounterVec
	EventHistorySize     prometheus.Gauge
}

// New registers every metric against reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsEmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entitycore_events_emitted_total",
			Help: "Total number of events dispatched by the event bus.",
		}),
		HandlerErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entitycore_handler_errors_total",
			Help: "Total number of event-handler panics swallowed by the bus.",
		}),
		StoreOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entitycore_store_operations_total",
			Help: "Total number of entity store operations, by operation name.",
		}, []string{"op"}),
		EventHistorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entitycore_event_history_size",
			Help: "Current number of events retained in the bus's ring buffer.",
		}),
	}

	reg.MustRegister(m.EventsEmittedTotal, m.HandlerErrorsTotal, m.StoreOperationsTotal, m.EventHistorySize)
	return m
}
