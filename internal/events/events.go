// Package events defines the closed catalog of domain events exchanged on
// the gateway's in-process bus. Event types are namespaced `domain.verb`
// strings; payload shapes are owned here so publishers and subscribers agree
// on them at compile time.
package events

import "fmt"

// Type classifies events for routing and filtering.
type Type string

// Namespace prefixes keep event names globally unique.
const (
	// Authentication events
	EventAuthRequest Type = "auth.request"
	EventAuthSuccess Type = "auth.success"
	EventAuthFailure Type = "auth.failure"

	// Backend connection events
	EventConnectionRequest     Type = "connection.request"
	EventConnectionEstablished Type = "connection.established"
	EventConnectionError       Type = "connection.error"

	// Terminal events
	EventTerminalResize Type = "terminal.resize"
	EventTerminalDataIn Type = "terminal.data.in"

	// System-level events
	EventSystemError   Type = "system.error"
	EventSystemWarning Type = "system.warning"
	EventSystemMetrics Type = "system.metrics"
	EventSystemHealth  Type = "system.health"
)

// Event pairs a catalog type with its payload. The bus is generic over this
// shape; payload structs below define what each type carries.
type Event struct {
	Type    Type
	Payload any
}

func (e Event) String() string {
	return string(e.Type)
}

// AuthPayload accompanies the auth.* events.
type AuthPayload struct {
	SessionID string
	Username  string
	Method    string // "password", "stored-target", "local"
	Reason    string // set on auth.failure
}

// ConnectionPayload accompanies the connection.* events.
type ConnectionPayload struct {
	SessionID    string
	ConnectionID string
	Host         string
	Port         int
	Error        string // set on connection.error
}

// ResizePayload accompanies terminal.resize.
type ResizePayload struct {
	SessionID string
	Rows      int
	Cols      int
}

// DataPayload accompanies terminal.data.in. Data is the raw byte chunk from
// the browser; it is not retained after handlers return.
type DataPayload struct {
	SessionID string
	Data      []byte
}

// NoticePayload accompanies system.error and system.warning.
type NoticePayload struct {
	Component string
	Message   string
	Err       string
}

// MetricsPayload accompanies system.metrics.
type MetricsPayload struct {
	CPUPercent     float64
	MemUsedPercent float64
	Load1          float64
	Goroutines     int
	Sessions       int
	Connections    int
}

// Health status values carried by HealthPayload.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// HealthPayload accompanies system.health.
type HealthPayload struct {
	Status  string
	Reasons []string
}

func NewAuthRequest(sessionID, username, method string) Event {
	return Event{Type: EventAuthRequest, Payload: AuthPayload{SessionID: sessionID, Username: username, Method: method}}
}

func NewAuthSuccess(sessionID, username string) Event {
	return Event{Type: EventAuthSuccess, Payload: AuthPayload{SessionID: sessionID, Username: username}}
}

func NewAuthFailure(sessionID, username, reason string) Event {
	return Event{Type: EventAuthFailure, Payload: AuthPayload{SessionID: sessionID, Username: username, Reason: reason}}
}

func NewConnectionRequest(sessionID, host string, port int) Event {
	return Event{Type: EventConnectionRequest, Payload: ConnectionPayload{SessionID: sessionID, Host: host, Port: port}}
}

func NewConnectionEstablished(sessionID, connectionID, host string, port int) Event {
	return Event{Type: EventConnectionEstablished, Payload: ConnectionPayload{
		SessionID: sessionID, ConnectionID: connectionID, Host: host, Port: port,
	}}
}

func NewConnectionError(sessionID, connectionID string, err error) Event {
	p := ConnectionPayload{SessionID: sessionID, ConnectionID: connectionID}
	if err != nil {
		p.Error = err.Error()
	}
	return Event{Type: EventConnectionError, Payload: p}
}

func NewTerminalResize(sessionID string, rows, cols int) Event {
	return Event{Type: EventTerminalResize, Payload: ResizePayload{SessionID: sessionID, Rows: rows, Cols: cols}}
}

func NewTerminalDataIn(sessionID string, data []byte) Event {
	return Event{Type: EventTerminalDataIn, Payload: DataPayload{SessionID: sessionID, Data: data}}
}

func NewSystemError(component, message string, err error) Event {
	p := NoticePayload{Component: component, Message: message}
	if err != nil {
		p.Err = err.Error()
	}
	return Event{Type: EventSystemError, Payload: p}
}

func NewSystemWarning(component, message string) Event {
	return Event{Type: EventSystemWarning, Payload: NoticePayload{Component: component, Message: message}}
}

func NewSystemMetrics(m MetricsPayload) Event {
	return Event{Type: EventSystemMetrics, Payload: m}
}

func NewSystemHealth(status string, reasons ...string) Event {
	return Event{Type: EventSystemHealth, Payload: HealthPayload{Status: status, Reasons: reasons}}
}

// Describe renders a short human-readable form for diagnostics, e.g.
// "connection.established session=abc conn=def". Unknown payloads fall back
// to the bare type.
func Describe(e Event) string {
	switch p := e.Payload.(type) {
	case AuthPayload:
		return fmt.Sprintf("%s session=%s user=%s", e.Type, p.SessionID, p.Username)
	case ConnectionPayload:
		return fmt.Sprintf("%s session=%s conn=%s host=%s:%d", e.Type, p.SessionID, p.ConnectionID, p.Host, p.Port)
	case ResizePayload:
		return fmt.Sprintf("%s session=%s rows=%d cols=%d", e.Type, p.SessionID, p.Rows, p.Cols)
	case DataPayload:
		return fmt.Sprintf("%s session=%s bytes=%d", e.Type, p.SessionID, len(p.Data))
	case NoticePayload:
		return fmt.Sprintf("%s component=%s", e.Type, p.Component)
	case HealthPayload:
		return fmt.Sprintf("%s status=%s", e.Type, p.Status)
	default:
		return string(e.Type)
	}
}
