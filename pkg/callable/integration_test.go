package callable_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furlat/Abstractions-sub003/pkg/callable"
	"github.com/furlat/Abstractions-sub003/pkg/eventbus"
	"github.com/furlat/Abstractions-sub003/pkg/logger"
	"github.com/furlat/Abstractions-sub003/pkg/opctx"
	"github.com/furlat/Abstractions-sub003/pkg/record"
)

// TestDecoratedExecuteNestsEventsUnderCaller mirrors spec.md Scenario S6:
// an outer operation decorated with opctx.Decorate calls Registry.Execute
// for an inner function, itself wrapped in its own Decorate call, and the
// inner function's start event must be parented under the outer one
// purely through context propagation (C8 + C9 + C10 wired together).
func TestDecoratedExecuteNestsEventsUnderCaller(t *testing.T) {
	reg, store := newRegistry(t)
	require.NoError(t, reg.Register("bump", bump, callable.RegisterOptions{}))

	bus := eventbus.New(logger.NewLogger())
	defer bus.Close()

	var seen []*eventbus.Event
	_, err := bus.Subscribe(eventbus.SubscribeOptions{
		Types:   []string{"outer.op", "bump.invocation"},
		Handler: func(ev *eventbus.Event) { seen = append(seen, ev) },
	})
	require.NoError(t, err)

	a := record.NewRecord("Person", map[string]any{"name": "Alice", "age": 31})
	require.NoError(t, store.RegisterRoot(a))

	outerFactories := opctx.EventFactories{
		Start:      func() *eventbus.Event { return &eventbus.Event{Type: "outer.op", Phase: eventbus.PhaseStarted} },
		Completion: func() *eventbus.Event { return &eventbus.Event{Type: "outer.op", Phase: eventbus.PhaseCompleted} },
	}
	innerFactories := opctx.EventFactories{
		Start:      func() *eventbus.Event { return &eventbus.Event{Type: "bump.invocation", Phase: eventbus.PhaseStarted} },
		Completion: func() *eventbus.Event { return &eventbus.Event{Type: "bump.invocation", Phase: eventbus.PhaseCompleted} },
	}

	err = opctx.Decorate(context.Background(), bus, outerFactories, opctx.DefaultOptions(), func(ctx context.Context) error {
		return opctx.Decorate(ctx, bus, innerFactories, opctx.DefaultOptions(), func(ctx context.Context) error {
			_, execErr := reg.Execute(ctx, "bump", map[string]any{"p": a})
			return execErr
		})
	})
	require.NoError(t, err)

	require.Len(t, seen, 4, "outer start/completed + inner start/completed")

	var outerStart, innerStart *eventbus.Event
	for _, ev := range seen {
		switch {
		case ev.Type == "outer.op" && ev.Phase == eventbus.PhaseStarted:
			outerStart = ev
		case ev.Type == "bump.invocation" && ev.Phase == eventbus.PhaseStarted:
			innerStart = ev
		}
	}
	require.NotNil(t, outerStart)
	require.NotNil(t, innerStart)

	require.NotNil(t, innerStart.ParentID)
	assert.Equal(t, outerStart.ID, *innerStart.ParentID)
	assert.Equal(t, outerStart.RootID, innerStart.RootID)
	assert.Equal(t, outerStart.LineageID, innerStart.LineageID)
}
