// Package opctx implements C10: a task-local parent-event stack carried on
// context.Context, and the emit decorator that wraps an operation with
// paired start/completion/failure events (spec.md §4.10).
//
// Grounded in spec.md §9's explicit design note: "Replace the source's
// coroutine-local variable with the target language's equivalent of an
// async-aware inheritable context (context.Context values in Go...)".
// Go's context.WithValue already propagates across goroutine boundaries
// the way the spec requires and does not bleed across unrelated
// concurrent calls, so no additional task-local storage is needed.
package opctx

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/furlat/Abstractions-sub003/pkg/eventbus"
)

type stackKey struct{}

// stackFrame is an immutable cons cell: pushing onto the stack returns a
// new context carrying a new frame, never mutating a shared slice (so
// concurrent branches that fork from a common parent context each see
// their own, independent stack).
type stackFrame struct {
	event *eventbus.Event
	prev  *stackFrame
}

// CurrentParent implements §4.10 current_parent: the top of ctx's stack,
// or nil if ctx carries no frames.
func CurrentParent(ctx context.Context) *eventbus.Event {
	f, _ := ctx.Value(stackKey{}).(*stackFrame)
	if f == nil {
		return nil
	}
	return f.event
}

// Push implements §4.10 push: returns a derived context whose
// CurrentParent is ev.
func Push(ctx context.Context, ev *eventbus.Event) context.Context {
	prev, _ := ctx.Value(stackKey{}).(*stackFrame)
	return context.WithValue(ctx, stackKey{}, &stackFrame{event: ev, prev: prev})
}

// Pop implements §4.10 pop: returns the context with the top frame removed
// and the event that was on top (nil if the stack was already empty).
func Pop(ctx context.Context) (context.Context, *eventbus.Event) {
	f, _ := ctx.Value(stackKey{}).(*stackFrame)
	if f == nil {
		return ctx, nil
	}
	return context.WithValue(ctx, stackKey{}, f.prev), f.event
}

// EventFactories supplies the three event-shape builders the decorator
// needs; any may be nil to skip that event.
type EventFactories struct {
	Start      func() *eventbus.Event
	Completion func() *eventbus.Event
	Failure    func(err error) *eventbus.Event
}

// Options controls the decorator's parenting and timing behavior.
type Options struct {
	AutoParent    bool // default true
	IncludeTiming bool // default true
}

// DefaultOptions matches spec.md §4.10's stated defaults.
func DefaultOptions() Options { return Options{AutoParent: true, IncludeTiming: true} }

// Decorate wraps op with paired start/completion/failure emission and
// automatic context-stack parenting (§4.10). op receives the context
// carrying the pushed start event so nested Decorate calls parent
// correctly.
func Decorate(ctx context.Context, bus *eventbus.Bus, factories EventFactories, opts Options, op func(ctx context.Context) error) error {
	start := factories.Start()
	applyParentAndTiming(ctx, start, opts, time.Time{})
	childCtx := Push(ctx, start)
	bus.EmitSync(start)

	startedAt := time.Now().UTC()
	err := op(childCtx)

	if err != nil {
		if factories.Failure != nil {
			fail := factories.Failure(err)
			fail.LineageID = start.LineageID
			applyParentAndTiming(ctx, fail, opts, startedAt)
			bus.EmitSync(fail)
		}
		return err
	}

	if factories.Completion != nil {
		done := factories.Completion()
		done.LineageID = start.LineageID
		applyParentAndTiming(ctx, done, opts, startedAt)
		bus.EmitSync(done)
	}
	return nil
}

func applyParentAndTiming(ctx context.Context, ev *eventbus.Event, opts Options, startedAt time.Time) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if opts.AutoParent {
		if parent := CurrentParent(ctx); parent != nil {
			parentID := parent.ID
			ev.ParentID = &parentID
			ev.RootID = parent.RootID
			if ev.LineageID == uuid.Nil {
				ev.LineageID = parent.LineageID
			}
		}
	}
	if ev.ParentID == nil {
		ev.RootID = ev.ID
	}
	if ev.LineageID == uuid.Nil {
		ev.LineageID = uuid.New()
	}

	if opts.IncludeTiming && !startedAt.IsZero() {
		ms := time.Since(startedAt).Milliseconds()
		ev.DurationMs = &ms
	}
}
