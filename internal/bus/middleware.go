package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/billchurch/webssh2-sub007/internal/events"
)

// signature identifies an event for deduplication: type plus the JSON form
// of its payload.
func signature(evt events.Event) string {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		return string(evt.Type) + "\x00" + fmt.Sprintf("%+v", evt.Payload)
	}
	return string(evt.Type) + "\x00" + string(data)
}

const dedupSweepThreshold = 256

// Deduper drops a republished event (same type and payload signature) seen
// again within the window.
type Deduper struct {
	mu      sync.Mutex
	window  time.Duration
	seen    map[string]time.Time
	dropped uint64
	nowFn   func() time.Time
}

func NewDeduper(window time.Duration) *Deduper {
	return &Deduper{
		window: window,
		seen:   make(map[string]time.Time),
		nowFn:  time.Now,
	}
}

func (d *Deduper) Middleware() Middleware {
	return func(next PublishFunc) PublishFunc {
		return func(env *Envelope) error {
			sig := signature(env.Event)
			now := d.nowFn()

			d.mu.Lock()
			last, ok := d.seen[sig]
			if ok && now.Sub(last) < d.window {
				d.dropped++
				d.mu.Unlock()
				log.Printf("[bus] dedup dropped %s", events.Describe(env.Event))
				return nil
			}
			d.seen[sig] = now
			if len(d.seen) >= dedupSweepThreshold {
				d.sweepLocked(now)
			}
			d.mu.Unlock()

			return next(env)
		}
	}
}

func (d *Deduper) sweepLocked(now time.Time) {
	for sig, ts := range d.seen {
		if now.Sub(ts) >= d.window {
			delete(d.seen, sig)
		}
	}
}

// Dropped returns how many events the deduper has discarded.
func (d *Deduper) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// RateLimiter drops events of a type once more than max of them were
// published within the sliding window.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	perType map[events.Type]*slidingWindow
	dropped uint64
	nowFn   func() time.Time
}

type slidingWindow struct {
	times []time.Time
}

// count prunes entries older than window and returns how many remain.
func (w *slidingWindow) count(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.times = kept
	return len(w.times)
}

func (w *slidingWindow) add(now time.Time) {
	w.times = append(w.times, now)
}

func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		window:  window,
		max:     max,
		perType: make(map[events.Type]*slidingWindow),
		nowFn:   time.Now,
	}
}

func (r *RateLimiter) Middleware() Middleware {
	return func(next PublishFunc) PublishFunc {
		return func(env *Envelope) error {
			now := r.nowFn()

			r.mu.Lock()
			w := r.perType[env.Event.Type]
			if w == nil {
				w = &slidingWindow{}
				r.perType[env.Event.Type] = w
			}
			if w.count(now, r.window) >= r.max {
				r.dropped++
				r.mu.Unlock()
				log.Printf("[bus] rate limit dropped %s (max %d per %s)", env.Event.Type, r.max, r.window)
				return nil
			}
			w.add(now)
			r.mu.Unlock()

			return next(env)
		}
	}
}

// Dropped returns how many events the limiter has discarded.
func (r *RateLimiter) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// TypeMetrics aggregates publish-to-completion timing for one event type.
type TypeMetrics struct {
	Count   uint64
	Total   time.Duration
	Max     time.Duration
	Dropped uint64
}

// Metrics records per-type throughput and completion latency without
// altering event flow.
type Metrics struct {
	mu      sync.Mutex
	perType map[events.Type]*TypeMetrics
}

func NewMetrics() *Metrics {
	return &Metrics{perType: make(map[events.Type]*TypeMetrics)}
}

func (m *Metrics) Middleware() Middleware {
	return func(next PublishFunc) PublishFunc {
		return func(env *Envelope) error {
			start := time.Now()
			err := next(env)
			if err != nil || !env.Enqueued() {
				m.recordDrop(env.Event.Type)
				return err
			}
			go func() {
				<-env.Done()
				m.observe(env.Event.Type, time.Since(start))
			}()
			return nil
		}
	}
}

func (m *Metrics) entryLocked(t events.Type) *TypeMetrics {
	e := m.perType[t]
	if e == nil {
		e = &TypeMetrics{}
		m.perType[t] = e
	}
	return e
}

func (m *Metrics) observe(t events.Type, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(t)
	e.Count++
	e.Total += d
	if d > e.Max {
		e.Max = d
	}
}

func (m *Metrics) recordDrop(t events.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryLocked(t).Dropped++
}

// Snapshot returns a copy of the per-type metrics.
func (m *Metrics) Snapshot() map[events.Type]TypeMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[events.Type]TypeMetrics, len(m.perType))
	for t, e := range m.perType {
		out[t] = *e
	}
	return out
}

// EventLogger emits one diagnostic log line per publish attempt, including
// rejections and middleware drops further down the chain.
func EventLogger() Middleware {
	return func(next PublishFunc) PublishFunc {
		return func(env *Envelope) error {
			err := next(env)
			switch {
			case err != nil:
				log.Printf("[bus] rejected %s: %v", events.Describe(env.Event), err)
			case !env.Enqueued():
				log.Printf("[bus] dropped %s", events.Describe(env.Event))
			default:
				log.Printf("[bus] publish %s priority=%s", events.Describe(env.Event), env.Priority)
			}
			return err
		}
	}
}
