package session

import (
	"sort"
	"sync"
	"time"
)

// Store keeps one State record per session id. Dispatches are synchronous
// pure transitions; the map itself is lock-guarded so any goroutine may
// dispatch. Records for different sessions evolve independently.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*State

	// nowFn injects time for reducers; tests override it.
	nowFn func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*State),
		nowFn:    time.Now,
	}
}

// Dispatch runs the reducer pipeline for one session, creating its initial
// record on first use. It returns the resulting state; when the action
// changed nothing, that is the identical pointer the session already had.
func (s *Store) Dispatch(sessionID string, a Action) *State {
	if sessionID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[sessionID]
	if !ok {
		cur = newState(sessionID, s.nowFn())
		s.sessions[sessionID] = cur
	}

	next := Reduce(cur, a, s.nowFn())
	if next != cur {
		s.sessions[sessionID] = next
	}
	return next
}

// GetState returns the session's current record, or nil when the session is
// unknown.
func (s *Store) GetState(sessionID string) *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}

// Delete removes a session's record entirely. SESSION_END marks a record
// terminal but keeps it; Delete is the explicit removal that follows.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SetNowFunc sets the clock function used for testing.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// SessionIDs returns the known session ids in sorted order.
func (s *Store) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// States returns every record, sorted by session id.
func (s *Store) States() []*State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*State, 0, len(s.sessions))
	for _, st := range s.sessions {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
