package logging

import "log"

// Level classifies structured session-log entries.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one structured session-log record: a stable event name
// (session_start, session_end, error, ...), a human message, and a context
// bag of event-specific fields.
type Entry struct {
	Event   string
	Message string
	Context map[string]any
}

// Logger is the structured sink consumed by connection lifecycle wiring and
// other session-scoped emitters. Implementations must be safe for concurrent
// use.
type Logger interface {
	Log(level Level, e Entry)
}

// StdLogger writes entries to the process log as single key=value lines.
// It is the default sink when no persistent auditor is configured.
type StdLogger struct{}

func (StdLogger) Log(level Level, e Entry) {
	msg := Sanitize(e.Message)
	if ctx := FormatContext(e.Context); ctx != "" {
		log.Printf("[sessionlog] level=%s event=%s msg=%q %s", level, e.Event, msg, ctx)
		return
	}
	log.Printf("[sessionlog] level=%s event=%s msg=%q", level, e.Event, msg)
}

// Discard drops every entry. Useful in tests that do not assert on logs.
type Discard struct{}

func (Discard) Log(Level, Entry) {}
