//go:build !windows

package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

var _ TerminalClient = (*LocalClient)(nil)

// LocalClient runs a shell on the gateway host itself behind a pty. Used in
// demo deployments where no remote target is configured.
type LocalClient struct {
	cfg Config
	cb  callbacks

	mu     sync.Mutex
	cmd    *exec.Cmd
	ptmx   *os.File
	closed bool
}

func NewLocalClient(cfg Config) *LocalClient {
	return &LocalClient{cfg: cfg.withDefaults()}
}

func (c *LocalClient) OnReady(fn func())      { c.cb.setReady(fn) }
func (c *LocalClient) OnError(fn func(error)) { c.cb.setError(fn) }
func (c *LocalClient) OnClose(fn func())      { c.cb.setClose(fn) }

// Connect starts the shell under a pty and fires ready. Failures fire error
// followed by close.
func (c *LocalClient) Connect(ctx context.Context) {
	shell := c.cfg.Shell
	if shell == "" {
		shell = "/bin/bash"
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM="+c.cfg.Term)
	for k, v := range c.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(c.cfg.Rows),
		Cols: uint16(c.cfg.Cols),
	})
	if err != nil {
		c.cb.fireError(fmt.Errorf("start local shell %s: %w", shell, err))
		c.cb.fireClose()
		return
	}

	c.mu.Lock()
	c.cmd = cmd
	c.ptmx = ptmx
	c.mu.Unlock()

	go c.waitLoop()
	c.cb.fireReady()
}

// waitLoop blocks until the shell exits. Exit status is irrelevant; the
// session simply ended.
func (c *LocalClient) waitLoop() {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil {
		return
	}
	_ = cmd.Wait()
	c.teardown(false)
	c.cb.fireClose()
}

func (c *LocalClient) Write(p []byte) (int, error) {
	c.mu.Lock()
	ptmx := c.ptmx
	c.mu.Unlock()
	if ptmx == nil {
		return 0, fmt.Errorf("not connected")
	}
	return ptmx.Write(p)
}

func (c *LocalClient) Stdout() io.Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ptmx
}

func (c *LocalClient) Resize(rows, cols int) error {
	c.mu.Lock()
	ptmx := c.ptmx
	c.mu.Unlock()
	if ptmx == nil {
		return fmt.Errorf("not connected")
	}
	return pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Terminate kills the shell and releases the pty. Safe to call repeatedly.
func (c *LocalClient) Terminate() error {
	c.teardown(true)
	c.cb.fireClose()
	return nil
}

func (c *LocalClient) teardown(kill bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cmd := c.cmd
	ptmx := c.ptmx
	c.mu.Unlock()

	if kill && cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if ptmx != nil {
		ptmx.Close()
	}
}
