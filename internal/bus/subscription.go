package bus

import (
	"sort"

	"github.com/billchurch/webssh2-sub007/internal/events"
)

// Handler processes one event. A non-nil error (or a panic) counts as a
// failed attempt and triggers the bus retry policy.
type Handler func(evt events.Event) error

// Filter decides whether a subscription sees a given event.
type Filter func(evt events.Event) bool

type subscription struct {
	seq      uint64 // registration order, tie-break within a priority
	priority Priority
	handler  Handler
	filter   Filter
	once     bool
	wildcard bool
}

// SubscribeOption adjusts a subscription at registration time.
type SubscribeOption func(*subscription)

// WithPriority sets the handler priority. Handlers for one event run in
// priority order, registration order within the same priority.
func WithPriority(p Priority) SubscribeOption {
	return func(s *subscription) { s.priority = clampPriority(p) }
}

// WithFilter attaches a predicate; events it rejects are skipped for this
// subscription only.
func WithFilter(f Filter) SubscribeOption {
	return func(s *subscription) { s.filter = f }
}

// Once removes the subscription after the first event it fires for.
func Once() SubscribeOption {
	return func(s *subscription) { s.once = true }
}

func sortSubs(subs []*subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority < subs[j].priority
		}
		return subs[i].seq < subs[j].seq
	})
}

func removeFromSlice(subs []*subscription, target *subscription) []*subscription {
	for i, s := range subs {
		if s == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
