// Package session holds per-session gateway state and the pure reducer
// pipeline that evolves it. Each session id maps to one immutable State
// record; dispatching an action produces either a new record or, when
// nothing changed, the identical one, so consumers can detect change with a
// pointer comparison.
package session

import "time"

// AuthStatus tracks where a session is in its authentication lifecycle.
type AuthStatus string

const (
	AuthPending        AuthStatus = "pending"
	AuthAuthenticating AuthStatus = "authenticating"
	AuthAuthenticated  AuthStatus = "authenticated"
	AuthFailed         AuthStatus = "failed"
)

// ConnStatus tracks the session's backend connection.
type ConnStatus string

const (
	ConnIdle       ConnStatus = "idle"
	ConnConnecting ConnStatus = "connecting"
	ConnConnected  ConnStatus = "connected"
	ConnError      ConnStatus = "error"
	ConnClosed     ConnStatus = "closed"
)

type AuthState struct {
	Status   AuthStatus
	Username string
}

type ConnectionState struct {
	Status       ConnStatus
	ConnectionID string
	ErrorMessage string
}

type TerminalState struct {
	Term string
	Rows int
	Cols int
	Env  map[string]string
	Cwd  string
}

type MetadataState struct {
	ClientIP  string
	UserAgent string
	UserID    string
	UpdatedAt time.Time
}

// State is one session's full record. Sub-states are owned by their
// reducers; an unchanged sub-state keeps its pointer across dispatches.
// Records are immutable once returned; callers must never write through
// them.
type State struct {
	ID         string
	Auth       *AuthState
	Connection *ConnectionState
	Terminal   *TerminalState
	Metadata   *MetadataState
}

func newState(id string, now time.Time) *State {
	return &State{
		ID:         id,
		Auth:       &AuthState{Status: AuthPending},
		Connection: &ConnectionState{Status: ConnIdle},
		Terminal:   &TerminalState{},
		Metadata:   &MetadataState{UpdatedAt: now},
	}
}

func copyEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
