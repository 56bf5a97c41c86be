// Package eventbus implements the in-process event bus (C2): a bounded
// history ring, a handler registry with recursive republish, and a
// broadcast fan-out to pull-mode subscribers. Cross-service propagation is
// delegated to an optional Relay (relay.go).
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/tracseq/lims-core/pkg/clock"
	"github.com/tracseq/lims-core/pkg/idgen"
	"github.com/tracseq/lims-core/pkg/mlog"
)

// MaxRepublishDepth bounds how many times a handler's returned events may
// themselves trigger further handlers before the bus refuses to recurse
// further (spec.md §4.1, "recursive republish capped at depth 8").
const MaxRepublishDepth = 8

// DefaultHistorySize is the default ring-buffer capacity before the oldest
// entries are trimmed FIFO.
const DefaultHistorySize = 10000

// DefaultSubscriberBuffer is the per-subscriber channel capacity; a slow
// subscriber that fills its buffer has further events dropped rather than
// blocking the publisher (spec.md §4.1, "slow consumers drop, not block").
const DefaultSubscriberBuffer = 256

// Result is returned by ProcessPending, reporting the outcome of
// dispatching a single queued envelope to its matching handlers.
type Result struct {
	Envelope      Envelope
	HandlerErrors map[string]error
}

type subscriber struct {
	ch     chan Envelope
	closed bool
}

// Bus is the event bus core. The zero value is not usable; construct with
// New.
type Bus struct {
	mu sync.Mutex

	history     []Envelope
	historyCap  int
	pending     []Envelope
	handlers    []Handler
	subscribers map[int]*subscriber
	nextSubID   int

	clock  clock.Clock
	idgen  idgen.Generator
	logger mlog.Logger
	relay  Relay

	// Parallel, when true, dispatches to matching handlers concurrently
	// instead of in registration order. Registration order is the
	// teacher's default for deterministic tests (spec.md §9); parallel
	// dispatch is opt-in for production throughput.
	Parallel bool

	metrics Metrics
}

// Option configures a Bus at construction time.
type Option func(*Bus)

func WithHistorySize(n int) Option {
	return func(b *Bus) { b.historyCap = n }
}

func WithRelay(r Relay) Option {
	return func(b *Bus) { b.relay = r }
}

func WithParallelDispatch(parallel bool) Option {
	return func(b *Bus) { b.Parallel = parallel }
}

// New constructs a Bus. clk and ids are injected so tests can drive
// deterministic timestamps and event IDs (spec.md §9).
func New(clk clock.Clock, ids idgen.Generator, logger mlog.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	b := &Bus{
		historyCap:  DefaultHistorySize,
		subscribers: make(map[int]*subscriber),
		clock:       clk,
		idgen:       ids,
		logger:      logger,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Metrics returns the bus's counters.
func (b *Bus) Metrics() Snapshot {
	return b.metrics.Snapshot()
}

// RegisterHandler adds a handler to the dispatch registry. Handlers are
// invoked for every envelope where CanHandle returns true, in registration
// order (concurrently when Parallel is set).
func (b *Bus) RegisterHandler(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = append(b.handlers, h)
}

// Subscribe returns a receive-only channel of every envelope published
// from this point forward, and an unsubscribe func. Matches spec.md
// §4.1's "subscribe() -> receiver" pull-mode contract.
func (b *Bus) Subscribe() (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++

	sub := &subscriber{ch: make(chan Envelope, DefaultSubscriberBuffer)}
	b.subscribers[id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if s, ok := b.subscribers[id]; ok && !s.closed {
			s.closed = true
			close(s.ch)
			delete(b.subscribers, id)
		}
	}

	return sub.ch, unsubscribe
}

// Publish appends an event to the bus: it's recorded in history, queued
// for pull-mode dispatch via ProcessPending, broadcast to subscribers, and
// (if a relay is configured) forwarded cross-service. It returns the
// generated event ID.
func (b *Bus) Publish(ctx context.Context, eventType, source string, payload map[string]any, correlationID *string) (string, error) {
	return b.publishAt(ctx, eventType, source, payload, correlationID, 0)
}

func (b *Bus) publishAt(ctx context.Context, eventType, source string, payload map[string]any, correlationID *string, depth int) (string, error) {
	if depth > MaxRepublishDepth {
		b.metrics.Dropped.Add(1)
		return "", fmt.Errorf("eventbus: republish depth %d exceeds max %d for event %s", depth, MaxRepublishDepth, eventType)
	}

	id := b.idgen.NewID()

	env := Envelope{
		EventID:         id.String(),
		EventType:       eventType,
		Payload:         payload,
		SourceComponent: source,
		CorrelationID:   correlationID,
		CreatedAt:       b.clock.Now(),
		RetryCount:      0,
		depth:           depth,
	}

	b.mu.Lock()
	b.history = append(b.history, env)
	if len(b.history) > b.historyCap {
		trim := len(b.history) - b.historyCap
		b.history = b.history[trim:]
	}
	b.pending = append(b.pending, env)
	b.mu.Unlock()

	b.metrics.Published.Add(1)
	b.broadcast(env)

	if b.relay != nil {
		if err := b.relay.Relay(ctx, env); err != nil {
			b.logger.Errorf("eventbus: relay failed for event %s: %v", env.EventID, err)
		}
	}

	return env.EventID, nil
}

func (b *Bus) broadcast(env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			b.metrics.Dropped.Add(1)
		}
	}
}

// History returns a copy of the retained event history, oldest first.
func (b *Bus) History() []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Envelope, len(b.history))
	copy(out, b.history)
	return out
}

// ProcessPending drains every queued envelope, dispatching each to its
// matching handlers (in Parallel mode, concurrently), and recursively
// publishing any follow-up events the handlers return. It is the
// deterministic, synchronous-drive entry point used by tests and by a
// caller-driven dispatch loop (spec.md §4.1, "process_pending() ->
// []Result").
func (b *Bus) ProcessPending(ctx context.Context) ([]Result, error) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.Unlock()

	results := make([]Result, 0, len(batch))

	for _, env := range batch {
		matched := make([]Handler, 0, len(handlers))
		for _, h := range handlers {
			if h.CanHandle(env) {
				matched = append(matched, h)
			}
		}

		errs := make(map[string]error)
		var followUps []Envelope

		if b.Parallel {
			var mu sync.Mutex
			var wg sync.WaitGroup
			wg.Add(len(matched))
			for _, h := range matched {
				go func(h Handler) {
					defer wg.Done()
					out, err := h.Handle(ctx, env)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs[h.Name()] = err
						b.metrics.HandlerErrors.Add(1)
					}
					followUps = append(followUps, out...)
				}(h)
			}
			wg.Wait()
		} else {
			for _, h := range matched {
				out, err := h.Handle(ctx, env)
				if err != nil {
					errs[h.Name()] = err
					b.metrics.HandlerErrors.Add(1)
				}
				followUps = append(followUps, out...)
			}
		}

		b.metrics.Dispatched.Add(1)
		results = append(results, Result{Envelope: env, HandlerErrors: errs})

		for _, fu := range followUps {
			corrID := fu.CorrelationID
			if corrID == nil {
				corrID = env.CorrelationID
			}
			if _, err := b.publishAt(ctx, fu.EventType, fu.SourceComponent, fu.Payload, corrID, env.depth+1); err != nil {
				b.logger.Warnf("eventbus: dropped follow-up event from handler: %v", err)
			}
		}
	}

	return results, nil
}
