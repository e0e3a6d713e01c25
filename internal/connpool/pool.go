// Package connpool tracks active backend connections for the gateway. The
// pool is the single owner of two indexes kept in lockstep: connections by
// connection id, and connection-id sets by owning session id. Lifecycle
// wiring (lifecycle.go) binds a backend client's native callbacks to pool
// mutation, session-store dispatch, and structured logging.
package connpool

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/billchurch/webssh2-sub007/internal/backend"
)

// Status is a managed connection's last known state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConnected Status = "connected"
	StatusError     Status = "error"
	StatusClosed    Status = "closed"
)

// Conn is one managed backend connection. A connection belongs to exactly
// one session; a session may own any number of connections. The pool stores
// its own copy; callers read snapshots and mutate through pool methods.
type Conn struct {
	ID           string
	SessionID    string
	Host         string
	Port         int
	Username     string
	Status       Status
	CreatedAt    time.Time
	LastActivity time.Time
	Client       backend.Client
}

// Pool is safe for concurrent use.
type Pool struct {
	mu        sync.RWMutex
	conns     map[string]*Conn
	bySession map[string]map[string]struct{}

	nowFn func() time.Time
}

func New() *Pool {
	return &Pool{
		conns:     make(map[string]*Conn),
		bySession: make(map[string]map[string]struct{}),
		nowFn:     time.Now,
	}
}

// Add registers a connection under both indexes. Re-adding an id replaces
// the previous entry consistently.
func (p *Pool) Add(c Conn) {
	if c.ID == "" || c.SessionID == "" {
		log.Printf("[connpool] dropping connection with empty id (%q) or session (%q)", c.ID, c.SessionID)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.conns[c.ID]; exists {
		p.removeLocked(c.ID)
	}
	stored := c
	p.conns[c.ID] = &stored
	set := p.bySession[c.SessionID]
	if set == nil {
		set = make(map[string]struct{})
		p.bySession[c.SessionID] = set
	}
	set[c.ID] = struct{}{}
}

// Get returns a snapshot of the connection, if present.
func (p *Pool) Get(id string) (Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[id]
	if !ok {
		return Conn{}, false
	}
	return *c, true
}

// Remove drops a connection from both indexes. Removing a session's last
// connection removes the session's index entry entirely.
func (p *Pool) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.conns[id]
	if !ok {
		return false
	}
	p.removeLocked(id)
	return true
}

func (p *Pool) removeLocked(id string) {
	c := p.conns[id]
	delete(p.conns, id)
	if set, ok := p.bySession[c.SessionID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(p.bySession, c.SessionID)
		}
	}
}

// BySession returns snapshots of a session's connections, oldest first.
func (p *Pool) BySession(sessionID string) []Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()

	set := p.bySession[sessionID]
	out := make([]Conn, 0, len(set))
	for id := range set {
		if c, ok := p.conns[id]; ok {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Touch stamps a connection's last-activity time.
func (p *Pool) Touch(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[id]; ok {
		c.LastActivity = p.nowFn()
	}
}

// SetStatus updates a connection's last known status.
func (p *Pool) SetStatus(id string, st Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[id]; ok {
		c.Status = st
	}
}

// Clear terminates every managed connection and empties both indexes. A
// failing or panicking terminate is logged and never stops the remaining
// connections from being terminated.
func (p *Pool) Clear() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*Conn)
	p.bySession = make(map[string]map[string]struct{})
	p.mu.Unlock()

	for id, c := range conns {
		terminate(id, c.Client)
	}
	if len(conns) > 0 {
		log.Printf("[connpool] cleared %d connections", len(conns))
	}
}

func terminate(id string, client backend.Client) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[connpool] terminate %s panicked: %v", id, r)
		}
	}()
	if client == nil {
		return
	}
	if err := client.Terminate(); err != nil {
		log.Printf("[connpool] terminate %s: %v", id, err)
	}
}

// Count returns the number of managed connections.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// SessionCount returns how many sessions currently own connections.
func (p *Pool) SessionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.bySession)
}

// Idle returns snapshots of connections whose last activity is older than
// the given age. Used by the periodic idle sweep.
func (p *Pool) Idle(age time.Duration) []Conn {
	cutoff := p.nowFn().Add(-age)

	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Conn
	for _, c := range p.conns {
		if c.LastActivity.Before(cutoff) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
