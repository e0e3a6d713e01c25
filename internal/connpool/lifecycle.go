package connpool

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/billchurch/webssh2-sub007/internal/backend"
	"github.com/billchurch/webssh2-sub007/internal/logging"
	"github.com/billchurch/webssh2-sub007/internal/session"
)

// Hooks carries the collaborators a wired connection reports into. Timeout
// is the caller-owned connect timer; wiring stops it on ready or error but
// never starts one. The optional OnReady, OnError, and OnClose hooks run
// after the pool update, state dispatch, and log entry for their transition;
// OnError receives the annotated backend error.
type Hooks struct {
	Pool      *Pool
	Store     *session.Store
	Log       logging.Logger
	Timeout   *time.Timer
	StartedAt time.Time
	OnReady   func()
	OnError   func(error)
	OnClose   func()
}

// Wire binds conn.Client's ready, error, and close callbacks to pool
// membership, session-state dispatch, and structured logging. The callbacks
// fire on the backend transport's goroutines; everything they touch here is
// safe for that.
//
// Ready adds the connection to the pool and marks the session connected.
// Error marks the session errored and keeps the connection's last known
// status; close removes the connection and logs session_end with
// status=failure when the connection last errored, status=success otherwise.
func Wire(conn Conn, h Hooks) {
	client := conn.Client
	if client == nil {
		return
	}
	sink := h.Log
	if sink == nil {
		sink = logging.StdLogger{}
	}

	b := &binding{}

	client.OnReady(func() {
		if h.Timeout != nil {
			h.Timeout.Stop()
		}
		c := conn
		c.Status = StatusConnected
		c.LastActivity = time.Now()
		h.Pool.Add(c)
		h.Store.Dispatch(conn.SessionID, session.ConnectionEstablished(conn.ID))

		ctx := map[string]any{
			"session_id":    conn.SessionID,
			"connection_id": conn.ID,
			"host":          conn.Host,
			"port":          conn.Port,
			"username":      conn.Username,
		}
		if !h.StartedAt.IsZero() {
			ctx["elapsed_ms"] = time.Since(h.StartedAt).Milliseconds()
		}
		sink.Log(logging.LevelInfo, logging.Entry{
			Event:   "session_start",
			Message: fmt.Sprintf("connected to %s:%d", conn.Host, conn.Port),
			Context: ctx,
		})

		if h.OnReady != nil {
			h.OnReady()
		}
	})

	client.OnError(func(err error) {
		if h.Timeout != nil {
			h.Timeout.Stop()
		}
		b.markErrored()
		h.Pool.SetStatus(conn.ID, StatusError)

		msg := normalizeError(err)
		h.Store.Dispatch(conn.SessionID, session.ConnectionError(msg))

		ctx := map[string]any{
			"session_id":    conn.SessionID,
			"connection_id": conn.ID,
			"host":          conn.Host,
			"port":          conn.Port,
		}
		if d, ok := client.(backend.Diagnoser); ok {
			if diags := d.Diagnostics(); len(diags) > 0 {
				ctx["diagnostics"] = strings.Join(diags, "; ")
			}
		}
		sink.Log(logging.LevelError, logging.Entry{
			Event:   "error",
			Message: msg,
			Context: ctx,
		})

		if h.OnError != nil {
			h.OnError(fmt.Errorf("backend %s:%d: %w", conn.Host, conn.Port, err))
		}
	})

	client.OnClose(func() {
		h.Pool.Remove(conn.ID)
		h.Store.Dispatch(conn.SessionID, session.ConnectionClosed())

		status := "success"
		level := logging.LevelInfo
		if b.hasErrored() {
			status = "failure"
			level = logging.LevelWarn
		}
		sink.Log(level, logging.Entry{
			Event:   "session_end",
			Message: fmt.Sprintf("connection to %s:%d closed", conn.Host, conn.Port),
			Context: map[string]any{
				"session_id":    conn.SessionID,
				"connection_id": conn.ID,
				"host":          conn.Host,
				"port":          conn.Port,
				"status":        status,
			},
		})

		if h.OnClose != nil {
			h.OnClose()
		}
	})
}

// binding remembers whether a wired connection ever reported an error, so
// the close callback can classify the session_end entry.
type binding struct {
	mu      sync.Mutex
	errored bool
}

func (b *binding) markErrored() {
	b.mu.Lock()
	b.errored = true
	b.mu.Unlock()
}

func (b *binding) hasErrored() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errored
}

func normalizeError(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := logging.Sanitize(strings.TrimSpace(err.Error()))
	if msg == "" {
		return "unknown error"
	}
	return msg
}
