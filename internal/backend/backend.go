// Package backend defines the lifecycle contract between the gateway core
// and a wire-level shell transport, plus the concrete SSH and local-PTY
// implementations. The orchestration core (pool, lifecycle wiring) depends
// only on Client; everything transport-specific stays behind it.
package backend

import (
	"context"
	"io"
	"time"
)

// Client is a backend connection as the orchestration core sees it. The
// transport fires the registered callbacks from its own goroutines: ready
// once the shell is usable, error on any fatal failure, close exactly once
// when the connection is gone. Callbacks registered after the fact do not
// fire retroactively.
type Client interface {
	OnReady(func())
	OnError(func(error))
	OnClose(func())

	// Terminate tears the connection down. It is safe to call more than
	// once and triggers the close callback.
	Terminate() error
}

// Diagnoser is optionally implemented by clients that capture
// protocol-negotiation diagnostics (server banners, key exchange details)
// worth attaching to error logs.
type Diagnoser interface {
	Diagnostics() []string
}

// TerminalClient is implemented by dialable clients that expose an
// interactive terminal stream.
type TerminalClient interface {
	Client

	// Connect starts the transport. All outcomes are reported through the
	// lifecycle callbacks, never a return value; the context only bounds
	// the dial phase.
	Connect(ctx context.Context)

	// Write sends input bytes to the remote terminal.
	io.Writer
	// Stdout is the remote terminal's output stream.
	Stdout() io.Reader
	// Resize changes the remote pty dimensions.
	Resize(rows, cols int) error
}

// Config carries everything needed to open a terminal-bearing connection.
// Shell is only used by the local backend; Host/Port/Username/Password only
// by remote ones.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	Term string
	Rows int
	Cols int
	Env  map[string]string

	Shell string

	ConnectTimeout    time.Duration
	KeepaliveInterval time.Duration
}

const (
	DefaultTerm = "xterm-256color"
	DefaultRows = 24
	DefaultCols = 80
)

// withDefaults fills the zero-valued terminal fields.
func (c Config) withDefaults() Config {
	if c.Term == "" {
		c.Term = DefaultTerm
	}
	if c.Rows <= 0 {
		c.Rows = DefaultRows
	}
	if c.Cols <= 0 {
		c.Cols = DefaultCols
	}
	if c.Port <= 0 {
		c.Port = 22
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}
