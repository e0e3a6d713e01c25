package session

// ActionType discriminates the closed set of session actions.
type ActionType string

const (
	ActionAuthRequest ActionType = "AUTH_REQUEST"
	ActionAuthSuccess ActionType = "AUTH_SUCCESS"
	ActionAuthFailure ActionType = "AUTH_FAILURE"

	ActionConnectionStart       ActionType = "CONNECTION_START"
	ActionConnectionEstablished ActionType = "CONNECTION_ESTABLISHED"
	ActionConnectionError       ActionType = "CONNECTION_ERROR"
	ActionConnectionClosed      ActionType = "CONNECTION_CLOSED"
	ActionConnectionActivity    ActionType = "CONNECTION_ACTIVITY"

	ActionTerminalInit    ActionType = "TERMINAL_INIT"
	ActionTerminalResize  ActionType = "TERMINAL_RESIZE"
	ActionTerminalSetEnv  ActionType = "TERMINAL_SET_ENV"
	ActionTerminalDestroy ActionType = "TERMINAL_DESTROY"

	ActionMetadataSetClient ActionType = "METADATA_SET_CLIENT"
	ActionMetadataUpdate    ActionType = "METADATA_UPDATE"

	ActionSessionReset ActionType = "SESSION_RESET"
	ActionSessionEnd   ActionType = "SESSION_END"
)

// Action carries an action type plus the fields the type uses; unused fields
// stay zero. The constructors below build the common shapes.
type Action struct {
	Type ActionType

	Username     string
	UserID       string
	ConnectionID string
	ErrorMessage string

	Term string
	Rows int
	Cols int
	Env  map[string]string
	Cwd  string

	ClientIP  string
	UserAgent string
}

func AuthRequest(username string) Action {
	return Action{Type: ActionAuthRequest, Username: username}
}

func AuthSuccess(username, userID string) Action {
	return Action{Type: ActionAuthSuccess, Username: username, UserID: userID}
}

func AuthFailure() Action {
	return Action{Type: ActionAuthFailure}
}

func ConnectionStart() Action {
	return Action{Type: ActionConnectionStart}
}

func ConnectionEstablished(connectionID string) Action {
	return Action{Type: ActionConnectionEstablished, ConnectionID: connectionID}
}

func ConnectionError(message string) Action {
	return Action{Type: ActionConnectionError, ErrorMessage: message}
}

func ConnectionClosed() Action {
	return Action{Type: ActionConnectionClosed}
}

func ConnectionActivity() Action {
	return Action{Type: ActionConnectionActivity}
}

func TerminalInit(term string, rows, cols int, env map[string]string, cwd string) Action {
	return Action{Type: ActionTerminalInit, Term: term, Rows: rows, Cols: cols, Env: env, Cwd: cwd}
}

func TerminalResize(rows, cols int) Action {
	return Action{Type: ActionTerminalResize, Rows: rows, Cols: cols}
}

func TerminalSetEnv(env map[string]string) Action {
	return Action{Type: ActionTerminalSetEnv, Env: env}
}

func TerminalDestroy() Action {
	return Action{Type: ActionTerminalDestroy}
}

func MetadataSetClient(clientIP, userAgent string) Action {
	return Action{Type: ActionMetadataSetClient, ClientIP: clientIP, UserAgent: userAgent}
}

// MetadataUpdate patches metadata fields; empty strings leave the current
// value in place.
func MetadataUpdate(clientIP, userAgent, userID string) Action {
	return Action{Type: ActionMetadataUpdate, ClientIP: clientIP, UserAgent: userAgent, UserID: userID}
}

func SessionReset() Action {
	return Action{Type: ActionSessionReset}
}

func SessionEnd() Action {
	return Action{Type: ActionSessionEnd}
}
