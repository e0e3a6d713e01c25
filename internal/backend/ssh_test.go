package backend

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// lifecycleRecorder collects callback firings in order.
type lifecycleRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *lifecycleRecorder) record(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *lifecycleRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *lifecycleRecorder) bind(c Client) {
	c.OnReady(func() { r.record("ready") })
	c.OnError(func(error) { r.record("error") })
	c.OnClose(func() { r.record("close") })
}

func TestConfigDefaults(t *testing.T) {
	c := NewSSHClient(Config{Host: "example.com"})
	if c.cfg.Term != DefaultTerm {
		t.Errorf("Term = %q, want %q", c.cfg.Term, DefaultTerm)
	}
	if c.cfg.Rows != DefaultRows || c.cfg.Cols != DefaultCols {
		t.Errorf("dimensions = %dx%d, want %dx%d", c.cfg.Rows, c.cfg.Cols, DefaultRows, DefaultCols)
	}
	if c.cfg.Port != 22 {
		t.Errorf("Port = %d, want 22", c.cfg.Port)
	}
	if c.cfg.ConnectTimeout <= 0 {
		t.Error("ConnectTimeout not defaulted")
	}
}

func TestConnectRefusedFiresErrorThenClose(t *testing.T) {
	// Port 1 on loopback refuses immediately on any sane CI host.
	c := NewSSHClient(Config{
		Host:           "127.0.0.1",
		Port:           1,
		Username:       "nobody",
		Password:       "nope",
		ConnectTimeout: 2 * time.Second,
	})
	rec := &lifecycleRecorder{}
	rec.bind(c)

	c.Connect(context.Background())

	got := rec.snapshot()
	want := []string{"error", "close"}
	if len(got) != len(want) {
		t.Fatalf("lifecycle events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("lifecycle events = %v, want %v", got, want)
		}
	}

	diags := c.Diagnostics()
	if len(diags) == 0 {
		t.Fatal("no diagnostics collected for failed dial")
	}
	if !strings.Contains(diags[0], "dialing 127.0.0.1:1") {
		t.Errorf("diags[0] = %q, want dial trail", diags[0])
	}
}

func TestConnectCancelledContext(t *testing.T) {
	c := NewSSHClient(Config{Host: "203.0.113.1", Port: 22, ConnectTimeout: 5 * time.Second})
	rec := &lifecycleRecorder{}
	rec.bind(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Connect(ctx)

	got := rec.snapshot()
	if len(got) != 2 || got[0] != "error" || got[1] != "close" {
		t.Errorf("lifecycle events = %v, want [error close]", got)
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	c := NewSSHClient(Config{Host: "example.com"})
	closes := 0
	c.OnClose(func() { closes++ })

	if err := c.Terminate(); err != nil {
		t.Fatalf("first terminate: %v", err)
	}
	if err := c.Terminate(); err != nil {
		t.Fatalf("second terminate: %v", err)
	}
	if closes != 1 {
		t.Errorf("close fired %d times, want 1", closes)
	}
}

func TestWriteAndResizeBeforeConnect(t *testing.T) {
	c := NewSSHClient(Config{Host: "example.com"})
	if _, err := c.Write([]byte("ls\n")); err == nil {
		t.Error("Write before connect succeeded, want error")
	}
	if err := c.Resize(50, 120); err == nil {
		t.Error("Resize before connect succeeded, want error")
	}
}

func TestClassifyDialError(t *testing.T) {
	refused := errors.New("dial tcp 127.0.0.1:22: connect: connection refused")
	if got := classifyDialError(refused); !strings.Contains(got, "no ssh service") {
		t.Errorf("classifyDialError(refused) = %q, want service hint", got)
	}

	noHost := errors.New("dial tcp: lookup nope.invalid: no such host")
	if got := classifyDialError(noHost); !strings.Contains(got, "did not resolve") {
		t.Errorf("classifyDialError(no host) = %q, want resolve hint", got)
	}

	if got := classifyDialError(timeoutErr{}); !strings.Contains(got, "unreachable or firewalled") {
		t.Errorf("classifyDialError(timeout) = %q, want reachability hint", got)
	}
}

func TestClassifyHandshakeError(t *testing.T) {
	authErr := errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]")
	if got := classifyHandshakeError(authErr); !strings.Contains(got, "credentials rejected") {
		t.Errorf("classifyHandshakeError(auth) = %q, want credentials hint", got)
	}

	other := errors.New("ssh: handshake failed: EOF")
	if got := classifyHandshakeError(other); strings.Contains(got, "credentials") {
		t.Errorf("classifyHandshakeError(EOF) = %q, want no credentials hint", got)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp 10.0.0.1:22: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
