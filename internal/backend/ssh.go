package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

var (
	_ TerminalClient = (*SSHClient)(nil)
	_ Diagnoser      = (*SSHClient)(nil)
)

// SSHClient runs an interactive shell on a remote host over SSH. Connect is
// expected to run on its own goroutine; outcomes are reported through the
// registered lifecycle callbacks, never as a return value.
type SSHClient struct {
	cfg Config
	cb  callbacks

	mu      sync.Mutex
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	cancel  context.CancelFunc
	diags   []string
	closed  bool
}

func NewSSHClient(cfg Config) *SSHClient {
	return &SSHClient{cfg: cfg.withDefaults()}
}

func (c *SSHClient) OnReady(fn func())      { c.cb.setReady(fn) }
func (c *SSHClient) OnError(fn func(error)) { c.cb.setError(fn) }
func (c *SSHClient) OnClose(fn func())      { c.cb.setClose(fn) }

// Diagnostics returns the negotiation trail collected while connecting.
func (c *SSHClient) Diagnostics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.diags))
	copy(out, c.diags)
	return out
}

func (c *SSHClient) addDiag(format string, args ...any) {
	c.mu.Lock()
	c.diags = append(c.diags, fmt.Sprintf(format, args...))
	c.mu.Unlock()
}

// Connect dials the host, opens a PTY-backed shell, and fires ready. Any
// failure fires error followed by close.
func (c *SSHClient) Connect(ctx context.Context) {
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	// Some servers only offer keyboard-interactive for password logins;
	// answer every prompt with the supplied password.
	interactive := func(name, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = c.cfg.Password
		}
		return answers, nil
	}

	sshCfg := &ssh.ClientConfig{
		User: c.cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(c.cfg.Password),
			ssh.KeyboardInteractive(interactive),
		},
		HostKeyCallback: c.recordHostKey,
		BannerCallback: func(message string) error {
			if message = strings.TrimSpace(message); message != "" {
				c.addDiag("server banner: %s", message)
			}
			return nil
		},
		Timeout: c.cfg.ConnectTimeout,
	}

	c.addDiag("dialing %s", addr)
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.addDiag("tcp dial failed: %s", classifyDialError(err))
		c.fail(fmt.Errorf("dial %s: %w", addr, err))
		return
	}
	c.addDiag("tcp connection established")

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshCfg)
	if err != nil {
		netConn.Close()
		c.addDiag("ssh handshake failed: %s", classifyHandshakeError(err))
		c.fail(fmt.Errorf("ssh handshake with %s: %w", addr, err))
		return
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	c.addDiag("ssh handshake complete")

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		c.fail(fmt.Errorf("create ssh session: %w", err))
		return
	}

	for k, v := range c.cfg.Env {
		// AcceptEnv is typically restricted server-side
		if err := session.Setenv(k, v); err != nil {
			c.addDiag("env %s rejected by server", k)
		}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(c.cfg.Term, c.cfg.Rows, c.cfg.Cols, modes); err != nil {
		session.Close()
		client.Close()
		c.fail(fmt.Errorf("request pty: %w", err))
		return
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		c.fail(fmt.Errorf("stdin pipe: %w", err))
		return
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		c.fail(fmt.Errorf("stdout pipe: %w", err))
		return
	}
	// With a PTY the remote merges stderr into the terminal stream; the
	// extended-data channel only carries stray protocol-level messages,
	// which are worth keeping as diagnostics.
	session.Stderr = &stderrDiagWriter{c: c}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		c.fail(fmt.Errorf("start shell: %w", err))
		return
	}

	keepCtx, keepCancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.client = client
	c.session = session
	c.stdin = stdin
	c.stdout = stdout
	c.cancel = keepCancel
	c.mu.Unlock()

	if c.cfg.KeepaliveInterval > 0 {
		go c.keepalive(keepCtx)
	}
	go c.waitLoop()

	c.cb.fireReady()
}

// fail reports a connect-phase failure: error first, then close, since the
// connection never became usable.
func (c *SSHClient) fail(err error) {
	c.cb.fireError(err)
	c.cb.fireClose()
}

func (c *SSHClient) recordHostKey(hostname string, remote net.Addr, key ssh.PublicKey) error {
	// Host keys are accepted and fingerprint-logged rather than verified;
	// the gateway fronts arbitrary user-chosen hosts.
	fp := ssh.FingerprintSHA256(key)
	c.addDiag("host key %s %s", key.Type(), fp)
	log.Printf("[backend] %s host key %s %s", hostname, key.Type(), fp)
	return nil
}

func (c *SSHClient) keepalive(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			client := c.client
			c.mu.Unlock()
			if client == nil {
				return
			}
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				log.Printf("[backend] keepalive to %s failed: %v", c.cfg.Host, err)
				c.cb.fireError(fmt.Errorf("keepalive: %w", err))
				c.Terminate()
				return
			}
		}
	}
}

// waitLoop blocks until the remote shell exits, then fires close. A nonzero
// exit status is a normal shell exit, not a transport error.
func (c *SSHClient) waitLoop() {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return
	}

	err := session.Wait()
	var exitErr *ssh.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		c.mu.Lock()
		alreadyClosed := c.closed
		c.mu.Unlock()
		if !alreadyClosed {
			c.cb.fireError(fmt.Errorf("session ended: %w", err))
		}
	}
	c.teardown()
	c.cb.fireClose()
}

func (c *SSHClient) Write(p []byte) (int, error) {
	c.mu.Lock()
	stdin := c.stdin
	c.mu.Unlock()
	if stdin == nil {
		return 0, fmt.Errorf("not connected")
	}
	return stdin.Write(p)
}

func (c *SSHClient) Stdout() io.Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stdout
}

func (c *SSHClient) Resize(rows, cols int) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return fmt.Errorf("not connected")
	}
	return session.WindowChange(rows, cols)
}

// Terminate tears the connection down. Safe to call repeatedly.
func (c *SSHClient) Terminate() error {
	c.teardown()
	c.cb.fireClose()
	return nil
}

func (c *SSHClient) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	session := c.session
	client := c.client
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if session != nil {
		session.Close()
	}
	if client != nil {
		client.Close()
	}
}

type stderrDiagWriter struct {
	c *SSHClient
}

func (w *stderrDiagWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		w.c.addDiag("stderr: %s", firstLine(msg))
	}
	return len(p), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func classifyDialError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("%v (host unreachable or firewalled)", err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return fmt.Sprintf("%v (no ssh service on that port)", err)
	case strings.Contains(msg, "no such host"):
		return fmt.Sprintf("%v (hostname did not resolve)", err)
	}
	return msg
}

func classifyHandshakeError(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "password") {
		return fmt.Sprintf("%v (credentials rejected)", err)
	}
	return msg
}
