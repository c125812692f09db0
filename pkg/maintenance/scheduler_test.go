package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furlat/Abstractions-sub003/pkg/eventbus"
	"github.com/furlat/Abstractions-sub003/pkg/logger"
)

func TestSchedulerSweepsTimedOutPendingParents(t *testing.T) {
	bus := eventbus.New(logger.NewLogger())
	defer bus.Close()

	var failed []*eventbus.Event
	_, err := bus.Subscribe(eventbus.SubscribeOptions{
		Predicate: func(ev *eventbus.Event) bool { return ev.Phase == eventbus.PhaseFailed },
		Handler:   func(ev *eventbus.Event) { failed = append(failed, ev) },
	})
	require.NoError(t, err)

	bus.EmitSync(&eventbus.Event{
		ID: uuid.New(), Type: "batch.executing", Phase: eventbus.PhaseStarted,
		Timestamp: time.Now(), Metadata: map[string]any{"expected_children": 1},
	})

	s, err := New(bus, logger.NewLogger(), "@every 1s", 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return len(failed) > 0 }, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, "batch.executing", failed[len(failed)-1].Type)
}

func TestSchedulerStartsAndHistoryGaugeRefreshIsSafeWithoutMetrics(t *testing.T) {
	bus := eventbus.New(logger.NewLogger())
	defer bus.Close()

	bus.EmitSync(&eventbus.Event{ID: uuid.New(), Type: "x", Phase: eventbus.PhaseCompleted, Timestamp: time.Now()})

	s, err := New(bus, logger.NewLogger(), "@every 1h", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.NotPanics(t, bus.RefreshHistoryGauge)
}
