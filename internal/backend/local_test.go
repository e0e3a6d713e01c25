//go:build !windows

package backend

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestLocalClientMissingShell(t *testing.T) {
	c := NewLocalClient(Config{Shell: "/nonexistent/shell-xyz"})
	rec := &lifecycleRecorder{}
	rec.bind(c)

	c.Connect(context.Background())

	got := rec.snapshot()
	if len(got) != 2 || got[0] != "error" || got[1] != "close" {
		t.Errorf("lifecycle events = %v, want [error close]", got)
	}
}

func TestLocalClientShellRoundTrip(t *testing.T) {
	c := NewLocalClient(Config{Shell: "/bin/cat", Rows: 24, Cols: 80})
	ready := make(chan struct{})
	closed := make(chan struct{})
	c.OnReady(func() { close(ready) })
	c.OnClose(func() { close(closed) })

	c.Connect(context.Background())

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("shell never became ready")
	}

	if _, err := c.Write([]byte("ping\n")); err != nil {
		t.Fatalf("write to shell: %v", err)
	}

	// cat reflects input through the pty; read until it shows up.
	found := make(chan struct{})
	go func() {
		var buf bytes.Buffer
		chunk := make([]byte, 1024)
		for {
			n, err := c.Stdout().Read(chunk)
			if n > 0 {
				buf.Write(chunk[:n])
				if bytes.Contains(buf.Bytes(), []byte("ping")) {
					close(found)
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	select {
	case <-found:
	case <-time.After(5 * time.Second):
		t.Fatal("wrote ping but never read it back")
	}

	if err := c.Resize(40, 120); err != nil {
		t.Errorf("resize live shell: %v", err)
	}

	if err := c.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close callback never fired after terminate")
	}
}

func TestLocalClientTerminateBeforeConnect(t *testing.T) {
	c := NewLocalClient(Config{})
	closes := 0
	c.OnClose(func() { closes++ })

	if err := c.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if err := c.Terminate(); err != nil {
		t.Fatalf("second terminate: %v", err)
	}
	if closes != 1 {
		t.Errorf("close fired %d times, want 1", closes)
	}
}
