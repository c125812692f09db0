// Package maintenance implements A7: a cron-driven sweep for pending-parent
// event timeouts and a periodic refresh of the event-history gauge.
//
// Grounded in the teacher's domain/scheduler.Scheduler: a struct owning its
// own *cron.Cron (seconds-precision, via cron.WithSeconds()), registering
// named jobs and exposing Start/Stop for fx lifecycle hooks, rather than a
// package-level global scheduler.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/furlat/Abstractions-sub003/pkg/eventbus"
	"github.com/furlat/Abstractions-sub003/pkg/logger"
)

// Scheduler owns the cron runtime driving the bus's maintenance jobs.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// New builds a Scheduler and registers both maintenance jobs against bus:
// a sweep (every sweepSchedule) resolving pending-parent events stuck
// beyond pendingParentTimeout, and a per-minute history-gauge refresh.
func New(bus *eventbus.Bus, log *slog.Logger, sweepSchedule string, pendingParentTimeout time.Duration) (*Scheduler, error) {
	log = log.With(logger.Scope("maintenance"))
	c := cron.New(cron.WithSeconds())

	if _, err := c.AddFunc(sweepSchedule, func() {
		bus.SweepTimedOutParents(pendingParentTimeout)
	}); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc("@every 1m", bus.RefreshHistoryGauge); err != nil {
		return nil, err
	}

	return &Scheduler{cron: c, log: log}, nil
}

// Start begins running the cron's registered jobs.
func (s *Scheduler) Start(context.Context) error {
	s.cron.Start()
	s.log.Info("maintenance scheduler started")
	return nil
}

// Stop waits for in-flight jobs to finish, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.log.Info("maintenance scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("maintenance scheduler stop timed out")
	}
	return nil
}
