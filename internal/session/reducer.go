package session

import "time"

// Reduce maps (state, action) to the next state. It special-cases the two
// session-level actions and otherwise fans out to the four sub-reducers,
// recombining only when at least one returned a new pointer. Reducers are
// pure: no I/O, no mutation of their inputs; time enters only through now.
func Reduce(s *State, a Action, now time.Time) *State {
	switch a.Type {
	case ActionSessionReset:
		return newState(s.ID, now)

	case ActionSessionEnd:
		if s.Connection.Status == ConnClosed && s.Auth.Status == AuthPending {
			return s
		}
		conn := *s.Connection
		conn.Status = ConnClosed
		auth := *s.Auth
		auth.Status = AuthPending
		return &State{
			ID:         s.ID,
			Auth:       &auth,
			Connection: &conn,
			Terminal:   s.Terminal,
			Metadata:   s.Metadata,
		}
	}

	auth := reduceAuth(s.Auth, a)
	conn := reduceConnection(s.Connection, a)
	term := reduceTerminal(s.Terminal, a)
	meta := reduceMetadata(s.Metadata, a, now)

	if auth == s.Auth && conn == s.Connection && term == s.Terminal && meta == s.Metadata {
		return s
	}
	return &State{
		ID:         s.ID,
		Auth:       auth,
		Connection: conn,
		Terminal:   term,
		Metadata:   meta,
	}
}

func reduceAuth(st *AuthState, a Action) *AuthState {
	switch a.Type {
	case ActionAuthRequest:
		next := *st
		next.Status = AuthAuthenticating
		if a.Username != "" {
			next.Username = a.Username
		}
		return &next
	case ActionAuthSuccess:
		next := *st
		next.Status = AuthAuthenticated
		if a.Username != "" {
			next.Username = a.Username
		}
		return &next
	case ActionAuthFailure:
		next := *st
		next.Status = AuthFailed
		return &next
	default:
		return st
	}
}

func reduceConnection(st *ConnectionState, a Action) *ConnectionState {
	switch a.Type {
	case ActionConnectionStart:
		next := *st
		next.Status = ConnConnecting
		return &next
	case ActionConnectionEstablished:
		next := *st
		next.Status = ConnConnected
		next.ConnectionID = a.ConnectionID
		return &next
	case ActionConnectionError:
		next := *st
		next.Status = ConnError
		next.ErrorMessage = a.ErrorMessage
		return &next
	case ActionConnectionClosed:
		next := *st
		next.Status = ConnClosed
		return &next
	default:
		return st
	}
}

func reduceTerminal(st *TerminalState, a Action) *TerminalState {
	switch a.Type {
	case ActionTerminalInit:
		return &TerminalState{
			Term: a.Term,
			Rows: a.Rows,
			Cols: a.Cols,
			Env:  copyEnv(a.Env),
			Cwd:  a.Cwd,
		}
	case ActionTerminalResize:
		next := *st
		next.Rows = a.Rows
		next.Cols = a.Cols
		return &next
	case ActionTerminalSetEnv:
		next := *st
		merged := copyEnv(st.Env)
		if merged == nil {
			merged = make(map[string]string, len(a.Env))
		}
		for k, v := range a.Env {
			merged[k] = v
		}
		next.Env = merged
		return &next
	case ActionTerminalDestroy:
		return &TerminalState{}
	default:
		return st
	}
}

func reduceMetadata(st *MetadataState, a Action, now time.Time) *MetadataState {
	switch a.Type {
	case ActionAuthSuccess:
		next := *st
		if a.UserID != "" {
			next.UserID = a.UserID
		}
		next.UpdatedAt = now
		return &next
	case ActionConnectionActivity, ActionTerminalResize:
		next := *st
		next.UpdatedAt = now
		return &next
	case ActionMetadataSetClient:
		next := *st
		next.ClientIP = a.ClientIP
		next.UserAgent = a.UserAgent
		next.UpdatedAt = now
		return &next
	case ActionMetadataUpdate:
		next := *st
		if a.ClientIP != "" {
			next.ClientIP = a.ClientIP
		}
		if a.UserAgent != "" {
			next.UserAgent = a.UserAgent
		}
		if a.UserID != "" {
			next.UserID = a.UserID
		}
		next.UpdatedAt = now
		return &next
	default:
		return st
	}
}
