//go:build windows

package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/UserExistsError/conpty"
)

var _ TerminalClient = (*LocalClient)(nil)

// LocalClient runs a shell on the gateway host behind a Windows pseudo
// console.
type LocalClient struct {
	cfg Config
	cb  callbacks

	mu     sync.Mutex
	cpty   *conpty.ConPty
	closed bool
}

func NewLocalClient(cfg Config) *LocalClient {
	return &LocalClient{cfg: cfg.withDefaults()}
}

func (c *LocalClient) OnReady(fn func())      { c.cb.setReady(fn) }
func (c *LocalClient) OnError(fn func(error)) { c.cb.setError(fn) }
func (c *LocalClient) OnClose(fn func())      { c.cb.setClose(fn) }

// Connect starts the shell under a pseudo console and fires ready. Failures
// fire error followed by close.
func (c *LocalClient) Connect(ctx context.Context) {
	shell := c.cfg.Shell
	if shell == "" {
		shell = "cmd.exe"
	}

	env := append(os.Environ(), "TERM="+c.cfg.Term)
	for k, v := range c.cfg.Env {
		env = append(env, k+"="+v)
	}

	cpty, err := conpty.Start(shell,
		conpty.ConPtyDimensions(c.cfg.Cols, c.cfg.Rows),
		conpty.ConPtyEnv(env),
	)
	if err != nil {
		c.cb.fireError(fmt.Errorf("start local shell %s: %w", shell, err))
		c.cb.fireClose()
		return
	}

	c.mu.Lock()
	c.cpty = cpty
	c.mu.Unlock()

	go c.waitLoop()
	c.cb.fireReady()
}

func (c *LocalClient) waitLoop() {
	c.mu.Lock()
	cpty := c.cpty
	c.mu.Unlock()
	if cpty == nil {
		return
	}
	_, _ = cpty.Wait(context.Background())
	c.teardown()
	c.cb.fireClose()
}

func (c *LocalClient) Write(p []byte) (int, error) {
	c.mu.Lock()
	cpty := c.cpty
	c.mu.Unlock()
	if cpty == nil {
		return 0, fmt.Errorf("not connected")
	}
	return cpty.Write(p)
}

func (c *LocalClient) Stdout() io.Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cpty
}

func (c *LocalClient) Resize(rows, cols int) error {
	c.mu.Lock()
	cpty := c.cpty
	c.mu.Unlock()
	if cpty == nil {
		return fmt.Errorf("not connected")
	}
	return cpty.Resize(cols, rows)
}

// Terminate closes the pseudo console, killing the shell. Safe to call
// repeatedly.
func (c *LocalClient) Terminate() error {
	c.teardown()
	c.cb.fireClose()
	return nil
}

func (c *LocalClient) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cpty := c.cpty
	c.mu.Unlock()

	if cpty != nil {
		cpty.Close()
	}
}
