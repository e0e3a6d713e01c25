// Package bus implements the in-process event bus at the center of session
// orchestration: typed publish/subscribe with a priority-ordered waiting
// queue, bounded capacity, per-handler retry, and a composable middleware
// chain in front of the queue.
//
// The bus processes at most one event at a time. Concurrent publishes are
// serialized through the queue, so handlers for two events never overlap on
// one bus instance. A slow handler therefore delays everything queued behind
// it; that head-of-line blocking is accepted in exchange for handlers that
// never need to synchronize with each other.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/billchurch/webssh2-sub007/internal/events"
)

// ErrQueueFull is returned by Publish when the waiting queue is at capacity.
// The event currently being processed does not count against capacity.
var ErrQueueFull = errors.New("event queue full")

const (
	DefaultMaxQueueSize = 100
	DefaultMaxRetries   = 3
)

type Config struct {
	// MaxQueueSize bounds the number of waiting events. Zero means
	// DefaultMaxQueueSize.
	MaxQueueSize int
	// MaxRetries is how many times a failing handler is immediately
	// re-invoked for one event before the failure is recorded and the next
	// handler runs. Zero means DefaultMaxRetries.
	MaxRetries int
}

// Stats is a point-in-time snapshot of bus counters. Published counts events
// accepted for processing, Processed counts events whose handler pass
// finished, Failed counts events where at least one handler exhausted its
// retries, Dropped counts queue-full rejections and middleware drops.
type Stats struct {
	Published uint64
	Processed uint64
	Failed    uint64
	Dropped   uint64
	Handlers  map[events.Type]int
}

// Envelope carries an event through the middleware chain and the waiting
// queue together with its publish-time priority.
type Envelope struct {
	Event    events.Event
	Priority Priority

	enqueued bool
	done     chan struct{}
}

// Done is closed once the event's processing finished, or immediately when
// the event was dropped before reaching the queue.
func (e *Envelope) Done() <-chan struct{} { return e.done }

// Enqueued reports whether the event was accepted into the queue. Middleware
// running after next() can use it to tell drops from accepted events.
func (e *Envelope) Enqueued() bool { return e.enqueued }

// PublishFunc is one stage of the publish path; the innermost stage enqueues.
type PublishFunc func(env *Envelope) error

// Middleware wraps the publish path. Returning without calling next drops
// the event; the publisher still sees success.
type Middleware func(next PublishFunc) PublishFunc

type Bus struct {
	cfg Config

	mu         sync.Mutex
	subs       map[events.Type][]*subscription
	wildcards  []*subscription
	nextSeq    uint64
	queues     [numPriorities][]*Envelope
	queued     int
	processing bool
	middleware []Middleware
	chain      PublishFunc
	idle       []chan struct{}
	stats      Stats
}

func New(cfg Config) *Bus {
	if cfg.MaxQueueSize == 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	b := &Bus{
		cfg:  cfg,
		subs: make(map[events.Type][]*subscription),
	}
	b.chain = b.enqueue
	return b
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(t events.Type, h Handler, opts ...SubscribeOption) func() {
	s := &subscription{priority: Normal, handler: h}
	for _, opt := range opts {
		opt(s)
	}

	b.mu.Lock()
	s.seq = b.nextSeq
	b.nextSeq++
	b.subs[t] = append(b.subs[t], s)
	sortSubs(b.subs[t])
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.removeLocked(t, s)
	}
}

// SubscribeAll registers a handler invoked for every event type. Wildcard
// handlers share the same priority ordering as typed ones.
func (b *Bus) SubscribeAll(h Handler, opts ...SubscribeOption) func() {
	s := &subscription{priority: Normal, handler: h, wildcard: true}
	for _, opt := range opts {
		opt(s)
	}

	b.mu.Lock()
	s.seq = b.nextSeq
	b.nextSeq++
	b.wildcards = append(b.wildcards, s)
	sortSubs(b.wildcards)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcards = removeFromSlice(b.wildcards, s)
	}
}

func (b *Bus) removeLocked(t events.Type, s *subscription) {
	if s.wildcard {
		b.wildcards = removeFromSlice(b.wildcards, s)
		return
	}
	b.subs[t] = removeFromSlice(b.subs[t], s)
	if len(b.subs[t]) == 0 {
		delete(b.subs, t)
	}
}

// Publish places the event on the bus at the given priority. If nothing is
// in flight it begins processing immediately; otherwise it waits in the
// queue. The only error is ErrQueueFull; handler failures never propagate to
// the publisher.
func (b *Bus) Publish(evt events.Event, prio Priority) error {
	_, err := b.publish(evt, prio)
	return err
}

// PublishSync publishes and then waits until the event's own processing
// finished (or the event was dropped), or ctx expires. Handlers must use
// Publish instead; waiting from inside a handler never returns because the
// bus processes one event at a time.
func (b *Bus) PublishSync(ctx context.Context, evt events.Event, prio Priority) error {
	env, err := b.publish(evt, prio)
	if err != nil {
		return err
	}
	select {
	case <-env.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) publish(evt events.Event, prio Priority) (*Envelope, error) {
	env := &Envelope{
		Event:    evt,
		Priority: clampPriority(prio),
		done:     make(chan struct{}),
	}

	b.mu.Lock()
	chain := b.chain
	b.mu.Unlock()

	err := chain(env)
	if !env.enqueued {
		// Rejected or dropped before the queue; release sync waiters.
		close(env.done)
	}
	return env, err
}

// enqueue is the innermost stage of the publish path.
func (b *Bus) enqueue(env *Envelope) error {
	b.mu.Lock()
	if !b.processing {
		b.processing = true
		b.stats.Published++
		env.enqueued = true
		b.mu.Unlock()
		go b.dispatchLoop(env)
		return nil
	}
	if b.queued >= b.cfg.MaxQueueSize {
		b.stats.Dropped++
		waiting := b.queued
		b.mu.Unlock()
		return fmt.Errorf("%w: %d events waiting (max %d)", ErrQueueFull, waiting, b.cfg.MaxQueueSize)
	}
	b.queues[env.Priority] = append(b.queues[env.Priority], env)
	b.queued++
	b.stats.Published++
	env.enqueued = true
	b.mu.Unlock()
	return nil
}

// dispatchLoop drains the queue one event at a time, highest priority first,
// FIFO within a level. It exits once the queue is empty.
func (b *Bus) dispatchLoop(env *Envelope) {
	for {
		b.process(env)

		b.mu.Lock()
		next := b.popLocked()
		if next == nil {
			b.processing = false
			b.notifyIdleLocked()
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
		env = next
	}
}

func (b *Bus) popLocked() *Envelope {
	for i := range b.queues {
		if len(b.queues[i]) > 0 {
			env := b.queues[i][0]
			b.queues[i] = b.queues[i][1:]
			if len(b.queues[i]) == 0 {
				b.queues[i] = nil
			}
			b.queued--
			return env
		}
	}
	return nil
}

// process runs every matching handler for one event. Handler failures are
// retried immediately up to MaxRetries, then recorded; they never stop the
// remaining handlers.
func (b *Bus) process(env *Envelope) {
	defer close(env.done)

	subs := b.handlersFor(env.Event.Type)
	failed := false
	for _, s := range subs {
		if s.filter != nil && !s.filter(env.Event) {
			continue
		}
		if err := b.invoke(s, env.Event); err != nil {
			failed = true
			log.Printf("[bus] handler failed for %s after %d attempts: %v",
				env.Event.Type, b.cfg.MaxRetries+1, err)
		}
		if s.once {
			b.mu.Lock()
			b.removeLocked(env.Event.Type, s)
			b.mu.Unlock()
		}
	}

	b.mu.Lock()
	b.stats.Processed++
	if failed {
		b.stats.Failed++
	}
	b.mu.Unlock()
}

// handlersFor snapshots the handlers that apply to one event type, typed and
// wildcard combined, in priority order with registration-order ties.
func (b *Bus) handlersFor(t events.Type) []*subscription {
	b.mu.Lock()
	combined := make([]*subscription, 0, len(b.subs[t])+len(b.wildcards))
	combined = append(combined, b.subs[t]...)
	combined = append(combined, b.wildcards...)
	b.mu.Unlock()

	sortSubs(combined)
	return combined
}

func (b *Bus) invoke(s *subscription, evt events.Event) error {
	var err error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if err = callHandler(s.handler, evt); err == nil {
			return nil
		}
	}
	return err
}

func callHandler(h Handler, evt events.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(evt)
}

// Flush blocks until the queue is empty and no event is in flight. Like
// PublishSync it must not be called from a handler.
func (b *Bus) Flush(ctx context.Context) error {
	b.mu.Lock()
	if !b.processing && b.queued == 0 {
		b.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	b.idle = append(b.idle, ch)
	b.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) notifyIdleLocked() {
	for _, ch := range b.idle {
		close(ch)
	}
	b.idle = nil
}

// Clear drops every subscription and discards all queued events without
// processing them. An event already in flight finishes normally. Waiters on
// discarded events are released.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = make(map[events.Type][]*subscription)
	b.wildcards = nil

	var discarded []*Envelope
	for i := range b.queues {
		discarded = append(discarded, b.queues[i]...)
		b.queues[i] = nil
	}
	b.queued = 0
	if !b.processing {
		b.notifyIdleLocked()
	}
	b.mu.Unlock()

	for _, env := range discarded {
		close(env.done)
	}
}

// Use appends a middleware to the publish chain. Middlewares run in
// registration order, outermost first.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
	b.rebuildChainLocked()
}

// ClearMiddleware removes every registered middleware.
func (b *Bus) ClearMiddleware() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = nil
	b.rebuildChainLocked()
}

func (b *Bus) rebuildChainLocked() {
	next := PublishFunc(b.enqueue)
	for i := len(b.middleware) - 1; i >= 0; i-- {
		next = b.middleware[i](next)
	}
	b.chain = next
}

// GetStats returns a snapshot of the counters plus the active typed handler
// count per event type.
func (b *Bus) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.stats
	out.Handlers = make(map[events.Type]int, len(b.subs))
	for t, subs := range b.subs {
		out.Handlers[t] = len(subs)
	}
	return out
}

func (b *Bus) ResetStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = Stats{}
}

// HasHandlers reports whether any handler (typed or wildcard) would see an
// event of type t.
func (b *Bus) HasHandlers(t events.Type) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[t]) > 0 || len(b.wildcards) > 0
}

// GetHandlerCount returns how many handlers (typed plus wildcard) would see
// an event of type t.
func (b *Bus) GetHandlerCount(t events.Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[t]) + len(b.wildcards)
}

// GetQueueSize returns the number of waiting events. The in-flight event is
// not included.
func (b *Bus) GetQueueSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queued
}
