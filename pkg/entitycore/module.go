// Package entitycore is the A8 composition root: a single fx.Module
// wiring the entity store, address resolver, callable registry and event
// bus together, grounded in the teacher's every domain/*/module.go plus
// cmd/server/main.go's fx.New(...) composition and fxevent.SlogLogger
// bridging.
package entitycore

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/furlat/Abstractions-sub003/internal/config"
	"github.com/furlat/Abstractions-sub003/pkg/address"
	"github.com/furlat/Abstractions-sub003/pkg/callable"
	"github.com/furlat/Abstractions-sub003/pkg/entitystore"
	"github.com/furlat/Abstractions-sub003/pkg/eventbus"
	"github.com/furlat/Abstractions-sub003/pkg/metrics"
)

// Module provides the core graph named in spec.md §1: a *entitystore.Store,
// an *address.Resolver bound to it, a *callable.Registry orchestrating
// both, and an *eventbus.Bus instrumented with the A6 metrics bundle.
var Module = fx.Module("entitycore",
	fx.Provide(
		NewStore,
		NewResolver,
		NewRegistry,
		NewBus,
		NewMetricsRegistry,
		metrics.New,
	),
	fx.Invoke(registerLifecycle),
)

func NewStore(m *metrics.Metrics) *entitystore.Store {
	s := entitystore.New()
	s.AttachMetrics(m)
	return s
}

func NewResolver(store *entitystore.Store) *address.Resolver {
	return address.NewResolver(store.GetRecord)
}

func NewRegistry(store *entitystore.Store, resolver *address.Resolver) *callable.Registry {
	return callable.NewRegistry(store, resolver)
}

func NewBus(cfg *config.Config, log *slog.Logger, m *metrics.Metrics) *eventbus.Bus {
	bus := eventbus.New(log)
	bus.SetHistoryCapacity(cfg.EventBusHistoryCapacity)
	bus.AttachMetrics(m)
	return bus
}

// NewMetricsRegistry provides the prometheus.Registerer the A6 metrics
// bundle registers against; a dedicated registry (not prometheus's global
// default) so multiple fx apps in the same test binary never collide.
func NewMetricsRegistry() prometheus.Registerer {
	return prometheus.NewRegistry()
}

func registerLifecycle(lc fx.Lifecycle, bus *eventbus.Bus) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			bus.Close()
			return nil
		},
	})
}
