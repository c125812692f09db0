package maintenance

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/furlat/Abstractions-sub003/internal/config"
	"github.com/furlat/Abstractions-sub003/pkg/eventbus"
)

// Module wires the maintenance scheduler into the fx graph (SPEC_FULL.md
// §4.18), starting and stopping it alongside the rest of the process.
var Module = fx.Module("maintenance",
	fx.Provide(func(bus *eventbus.Bus, log *slog.Logger, cfg *config.Config) (*Scheduler, error) {
		return New(bus, log, cfg.MaintenanceSweepCron, cfg.PendingParentTimeout)
	}),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		lc.Append(fx.Hook{OnStart: s.Start, OnStop: s.Stop})
	}),
)
