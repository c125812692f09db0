package eventbus

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/furlat/Abstractions-sub003/pkg/logger"
	"github.com/furlat/Abstractions-sub003/pkg/metrics"
)

const defaultHistoryCapacity = 10_000

type emission struct {
	event *Event
	done  chan struct{}
}

type pendingParent struct {
	event     *Event
	remaining int
	anyFailed bool
	startedAt time.Time
}

// Bus is the process-wide async pub/sub engine of spec.md §4.9. The
// default instance is dependency-injected (spec.md §9: "prefer
// dependency-injected construction... rather than true global mutable
// state"); construct with New and pass it around, or wire it via fx
// (see pkg/entitycore).
type Bus struct {
	log *slog.Logger

	mu            sync.RWMutex
	subscriptions []*subscription

	historyMu sync.Mutex
	history   []*Event
	histCap   int

	queue chan *emission

	pendingMu sync.Mutex
	pending   map[uuid.UUID]*pendingParent

	errorCount atomic.Int64

	stop chan struct{}
	done chan struct{}

	metrics *metrics.Metrics
}

// AttachMetrics wires a Prometheus metrics bundle (SPEC_FULL.md §4.16)
// into the bus. Safe to call once, before the bus starts receiving
// traffic; nil disables instrumentation (the zero value already has
// metrics == nil, so this is optional).
func (b *Bus) AttachMetrics(m *metrics.Metrics) {
	b.metrics = m
}

// New starts a Bus with its consumer goroutine running.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = logger.NewLogger()
	}
	b := &Bus{
		log:     log,
		histCap: defaultHistoryCapacity,
		queue:   make(chan *emission, 1024),
		pending: map[uuid.UUID]*pendingParent{},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.consume()
	return b
}

// SetHistoryCapacity overrides the ring buffer's retention size (default
// 10,000, SPEC_FULL.md §4.11's EventBusHistoryCapacity). Safe to call
// before the bus receives traffic; later calls only affect future trims.
func (b *Bus) SetHistoryCapacity(n int) {
	if n <= 0 {
		return
	}
	b.historyMu.Lock()
	b.histCap = n
	b.historyMu.Unlock()
}

// Close stops the consumer goroutine after draining the queue.
func (b *Bus) Close() {
	close(b.stop)
	<-b.done
}

func (b *Bus) consume() {
	defer close(b.done)
	for {
		select {
		case em := <-b.queue:
			b.dispatch(em.event)
			if em.done != nil {
				close(em.done)
			}
		case <-b.stop:
			for {
				select {
				case em := <-b.queue:
					b.dispatch(em.event)
					if em.done != nil {
						close(em.done)
					}
				default:
					return
				}
			}
		}
	}
}

// Subscribe implements §4.9 subscribe.
func (b *Bus) Subscribe(opts SubscribeOptions) (Handle, error) {
	sub, err := newSubscription(opts)
	if err != nil {
		return Handle{}, err
	}
	b.mu.Lock()
	b.subscriptions = append(b.subscriptions, sub)
	b.mu.Unlock()
	return sub.handle, nil
}

// Unsubscribe implements §4.9 unsubscribe.
func (b *Bus) Unsubscribe(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscriptions {
		if s.handle == h {
			b.subscriptions = append(b.subscriptions[:i], b.subscriptions[i+1:]...)
			return
		}
	}
}

// Emit implements §4.9 emit: enqueue and return immediately.
func (b *Bus) Emit(ev *Event) {
	b.queue <- &emission{event: ev}
}

// EmitSync implements §4.10's "emit_sync must actually dispatch" mandate:
// it blocks until ev has been handed to every matching subscriber, so a
// caller with no running scheduler of its own (e.g. the emit decorator at
// the top of a synchronous call stack) never loses the event the way
// spec.md §9 documents the source doing.
func (b *Bus) EmitSync(ev *Event) {
	done := make(chan struct{})
	b.queue <- &emission{event: ev, done: done}
	<-done
}

func (b *Bus) dispatch(ev *Event) {
	if b.metrics != nil {
		b.metrics.EventsEmittedTotal.Inc()
	}
	b.recordHistory(ev)

	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subscriptions))
	for _, s := range b.subscriptions {
		if s.matches(ev) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].priority > matched[j].priority })
	for _, s := range matched {
		b.invokeHandler(s, ev)
	}

	b.trackPendingParent(ev)
	b.propagateToParent(ev)
}

func (b *Bus) invokeHandler(s *subscription, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.errorCount.Add(1)
			if b.metrics != nil {
				b.metrics.HandlerErrorsTotal.Inc()
			}
			b.log.Error("event handler panicked", logger.Scope("eventbus"), slog.Any("recover", r), slog.String("event_type", ev.Type))
		}
	}()
	s.handler(ev)
}

func (b *Bus) recordHistory(ev *Event) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	b.history = append(b.history, ev)
	if len(b.history) > b.histCap {
		b.history = b.history[len(b.history)-b.histCap:]
	}
	if b.metrics != nil {
		b.metrics.EventHistorySize.Set(float64(len(b.history)))
	}
}

// History returns up to limit of the most recently dispatched events,
// newest last. limit <= 0 returns the full retained buffer.
func (b *Bus) History(limit int) []*Event {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	if limit <= 0 || limit >= len(b.history) {
		out := make([]*Event, len(b.history))
		copy(out, b.history)
		return out
	}
	out := make([]*Event, limit)
	copy(out, b.history[len(b.history)-limit:])
	return out
}

// ErrorCount returns the number of handler panics swallowed so far
// (spec.md §7: "Event-handler exceptions are swallowed by the bus... and
// logged to an internal error counter").
func (b *Bus) ErrorCount() int64 { return b.errorCount.Load() }

func (b *Bus) trackPendingParent(ev *Event) {
	expected := ev.ExpectedChildren()
	if expected <= 0 {
		return
	}
	b.pendingMu.Lock()
	b.pending[ev.ID] = &pendingParent{event: ev, remaining: expected, startedAt: time.Now()}
	b.pendingMu.Unlock()
}

// propagateToParent implements §4.9 "Completion propagation": as each
// child's completed/failed event arrives, decrement the parent's
// pending_children_count; at zero, auto-emit the parent's own
// completed/failed event.
func (b *Bus) propagateToParent(ev *Event) {
	if ev.ParentID == nil || (ev.Phase != PhaseCompleted && ev.Phase != PhaseFailed) {
		return
	}

	b.pendingMu.Lock()
	pp, ok := b.pending[*ev.ParentID]
	if !ok {
		b.pendingMu.Unlock()
		return
	}
	pp.event.ChildrenIDs = append(pp.event.ChildrenIDs, ev.ID)
	if ev.Phase == PhaseFailed {
		pp.anyFailed = true
	}
	pp.remaining--
	pp.event.PendingChildrenCount = pp.remaining
	finished := pp.remaining <= 0
	if finished {
		delete(b.pending, pp.event.ID)
	}
	b.pendingMu.Unlock()

	if !finished {
		return
	}

	phase := PhaseCompleted
	if pp.anyFailed {
		phase = PhaseFailed
	}
	parentDone := &Event{
		ID: uuid.New(), Type: pp.event.Type, Phase: phase,
		Timestamp: pp.event.Timestamp, SubjectTypeName: pp.event.SubjectTypeName,
		SubjectVersionID: pp.event.SubjectVersionID, LineageID: pp.event.LineageID,
		ParentID: pp.event.ParentID, RootID: pp.event.RootID,
	}
	b.dispatch(parentDone)
}

// SweepTimedOutParents implements the A7 maintenance job: any pending
// parent whose oldest outstanding wait exceeds timeout is force-completed
// as failed, since it will never see the rest of its children (spec.md
// §4.9: "a timeout elapses").
func (b *Bus) SweepTimedOutParents(timeout time.Duration) {
	now := time.Now()
	var timedOut []*pendingParent

	b.pendingMu.Lock()
	for id, pp := range b.pending {
		if now.Sub(pp.startedAt) >= timeout {
			timedOut = append(timedOut, pp)
			delete(b.pending, id)
		}
	}
	b.pendingMu.Unlock()

	for _, pp := range timedOut {
		b.log.Warn("pending parent event timed out", logger.Scope("eventbus"),
			slog.String("event_id", pp.event.ID.String()), slog.Int("remaining", pp.remaining))
		b.dispatch(&Event{
			ID: uuid.New(), Type: pp.event.Type, Phase: PhaseFailed,
			Timestamp: pp.event.Timestamp, SubjectTypeName: pp.event.SubjectTypeName,
			SubjectVersionID: pp.event.SubjectVersionID, LineageID: pp.event.LineageID,
			ParentID: pp.event.ParentID, RootID: pp.event.RootID,
			Metadata: map[string]any{"timeout": true},
		})
	}
}

// RefreshHistoryGauge re-publishes the current ring-buffer size to the A6
// gauge; cheap, but scheduled independently per SPEC_FULL.md §4.17 so the
// gauge stays correct even across long idle stretches with no new events.
func (b *Bus) RefreshHistoryGauge() {
	if b.metrics == nil {
		return
	}
	b.historyMu.Lock()
	n := len(b.history)
	b.historyMu.Unlock()
	b.metrics.EventHistorySize.Set(float64(n))
}
