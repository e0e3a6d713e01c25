package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/billchurch/webssh2-sub007/internal/audit"
	"github.com/billchurch/webssh2-sub007/internal/backend"
	"github.com/billchurch/webssh2-sub007/internal/bus"
	"github.com/billchurch/webssh2-sub007/internal/config"
	"github.com/billchurch/webssh2-sub007/internal/connpool"
	"github.com/billchurch/webssh2-sub007/internal/crypto"
	"github.com/billchurch/webssh2-sub007/internal/database"
	"github.com/billchurch/webssh2-sub007/internal/events"
	"github.com/billchurch/webssh2-sub007/internal/logging"
	"github.com/billchurch/webssh2-sub007/internal/middleware"
	"github.com/billchurch/webssh2-sub007/internal/session"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// terminalRateLimit defines the maximum number of messages allowed per second
// per WebSocket connection. Messages beyond this rate are dropped.
const terminalRateLimit = 200

// terminalRateBurst is the token bucket burst size, allowing short bursts
// of rapid input (e.g., paste operations) before rate limiting kicks in.
const terminalRateBurst = 200

// maxInputMessage caps one binary input frame from the browser.
const maxInputMessage = 64 * 1024

// Resize requests beyond these bounds are clamped.
const (
	maxResizeCols = 500
	maxResizeRows = 500
)

// Wired from main.go during init.
var (
	Bus   *bus.Bus
	Store *session.Store
	Pool  *connpool.Pool
)

type termResizeMsg struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// parseResize interprets a text control frame. Anything other than a valid
// resize request is ignored; oversized dimensions are clamped rather than
// rejected.
func parseResize(data []byte) (rows, cols int, ok bool) {
	var msg termResizeMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, 0, false
	}
	if msg.Type != "resize" || msg.Cols == 0 || msg.Rows == 0 {
		return 0, 0, false
	}
	cols = int(msg.Cols)
	rows = int(msg.Rows)
	if cols > maxResizeCols {
		cols = maxResizeCols
	}
	if rows > maxResizeRows {
		rows = maxResizeRows
	}
	return rows, cols, true
}

// tokenBucket implements a simple token bucket rate limiter for terminal
// messages.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens added per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow checks if a message is allowed and consumes a token.
func (tb *tokenBucket) allow() bool {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now

	tb.tokens += int(elapsed.Seconds() * float64(tb.refillRate))
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}

	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}

// publish drops events on a full queue; terminal traffic must never block on
// bus backpressure.
func publish(evt events.Event, prio bus.Priority) {
	if Bus == nil {
		return
	}
	if err := Bus.Publish(evt, prio); err != nil {
		log.Printf("[handlers] publish %s: %v", evt.Type, err)
	}
}

func termParam(r *http.Request) string {
	if t := r.URL.Query().Get("term"); t != "" {
		return t
	}
	if config.Cfg.SSHTerm != "" {
		return config.Cfg.SSHTerm
	}
	return backend.DefaultTerm
}

// SSHTerminalWS upgrades the browser connection and bridges it to an
// interactive shell on the requested host. Credentials come from HTTP Basic
// auth; the SSH server is the authority that accepts or rejects them.
func SSHTerminalWS(w http.ResponseWriter, r *http.Request) {
	host := strings.ToLower(chi.URLParam(r, "host"))
	if host == "" {
		writeError(w, http.StatusBadRequest, "Host is required")
		return
	}
	if !config.HostAllowed(host) {
		audit.LogAuthFailure("", clientIP(r), "host "+host+" not in allowlist")
		writeError(w, http.StatusForbidden, "Host not allowed")
		return
	}

	port := config.Cfg.SSHPort
	if v := r.URL.Query().Get("port"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > 65535 {
			writeError(w, http.StatusBadRequest, "Invalid port")
			return
		}
		port = p
	}

	username, password, ok := r.BasicAuth()
	if !ok || username == "" {
		w.Header().Set("WWW-Authenticate", `Basic realm="WebSSH2"`)
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	cfg := backend.Config{
		Host:              host,
		Port:              port,
		Username:          username,
		Password:          password,
		Term:              termParam(r),
		ConnectTimeout:    config.Duration(config.Cfg.SSHConnectTimeout, 10*time.Second),
		KeepaliveInterval: config.Duration(config.Cfg.SSHKeepaliveInterval, 30*time.Second),
	}
	serveTerminal(w, r, terminalParams{
		Username: username,
		Method:   "password",
		Host:     host,
		Port:     port,
		Term:     cfg.Term,
		Timeout:  cfg.ConnectTimeout,
		Client:   backend.NewSSHClient(cfg),
	})
}

// TargetTerminalWS opens a terminal to a saved target using its stored
// credentials. The route sits behind token authentication.
func TargetTerminalWS(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, err := database.GetTargetByName(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "Target not found")
		return
	}
	if !config.HostAllowed(t.Host) {
		writeError(w, http.StatusForbidden, "Host not allowed")
		return
	}

	password, err := crypto.Decrypt(t.Password)
	if err != nil {
		log.Printf("[handlers] decrypt password for target %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, "Failed to decrypt target password")
		return
	}

	cfg := backend.Config{
		Host:              t.Host,
		Port:              t.Port,
		Username:          t.Username,
		Password:          password,
		Term:              termParam(r),
		ConnectTimeout:    config.Duration(config.Cfg.SSHConnectTimeout, 10*time.Second),
		KeepaliveInterval: config.Duration(config.Cfg.SSHKeepaliveInterval, 30*time.Second),
	}
	serveTerminal(w, r, terminalParams{
		Username: t.Username,
		Method:   "stored-target",
		Host:     t.Host,
		Port:     t.Port,
		Term:     cfg.Term,
		Timeout:  cfg.ConnectTimeout,
		Client:   backend.NewSSHClient(cfg),
	})
}

// LocalTerminalWS opens a terminal on the gateway host itself. Disabled
// unless explicitly enabled in config; the route sits behind token
// authentication.
func LocalTerminalWS(w http.ResponseWriter, r *http.Request) {
	if !config.Cfg.LocalShellEnabled {
		writeError(w, http.StatusNotFound, "Local shell is disabled")
		return
	}

	cfg := backend.Config{
		Shell: config.Cfg.LocalShell,
		Term:  termParam(r),
	}
	serveTerminal(w, r, terminalParams{
		Username: middleware.Username(r),
		Method:   "local",
		Host:     "local",
		Term:     cfg.Term,
		Timeout:  10 * time.Second,
		Client:   backend.NewLocalClient(cfg),
	})
}

// terminalParams describes one terminal bridge about to be served.
type terminalParams struct {
	Username string
	Method   string // password, stored-target, local
	Host     string
	Port     int
	Term     string
	Timeout  time.Duration
	Client   backend.TerminalClient
}

// serveTerminal runs the full terminal session: it records the session in
// the store, publishes the auth and connection events, dials the backend
// with lifecycle wiring, and relays frames until either side goes away.
func serveTerminal(w http.ResponseWriter, r *http.Request, p terminalParams) {
	clientConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[handlers] accept terminal websocket: %v", err)
		return
	}
	defer clientConn.CloseNow()

	if Bus == nil || Store == nil || Pool == nil {
		clientConn.Close(4500, "Gateway not initialized")
		return
	}

	ctx := r.Context()
	sessionID := uuid.NewString()
	ip := clientIP(r)

	Store.Dispatch(sessionID, session.MetadataSetClient(ip, r.UserAgent()))
	Store.Dispatch(sessionID, session.AuthRequest(p.Username))
	Store.Dispatch(sessionID, session.TerminalInit(p.Term, backend.DefaultRows, backend.DefaultCols, nil, ""))
	publish(events.NewAuthRequest(sessionID, p.Username, p.Method), bus.Normal)

	Store.Dispatch(sessionID, session.ConnectionStart())
	publish(events.NewConnectionRequest(sessionID, p.Host, p.Port), bus.High)

	conn := connpool.Conn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Host:      p.Host,
		Port:      p.Port,
		Username:  p.Username,
		Status:    connpool.StatusPending,
		CreatedAt: time.Now(),
		Client:    p.Client,
	}

	ready := make(chan struct{})
	closed := make(chan struct{})

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.AfterFunc(timeout, func() {
		log.Printf("[handlers] connect timeout for session %s after %s", sessionID, timeout)
		p.Client.Terminate()
	})
	defer timer.Stop()

	connpool.Wire(conn, connpool.Hooks{
		Pool:      Pool,
		Store:     Store,
		Log:       audit.Sink(),
		Timeout:   timer,
		StartedAt: time.Now(),
		OnReady: func() {
			publish(events.NewAuthSuccess(sessionID, p.Username), bus.Normal)
			publish(events.NewConnectionEstablished(sessionID, conn.ID, p.Host, p.Port), bus.High)
			close(ready)
		},
		OnError: func(err error) {
			if isAuthError(err) {
				Store.Dispatch(sessionID, session.AuthFailure())
				audit.LogAuthFailure(p.Username, ip, "backend rejected credentials")
				publish(events.NewAuthFailure(sessionID, p.Username, "backend rejected credentials"), bus.Normal)
			}
			publish(events.NewConnectionError(sessionID, conn.ID, err), bus.High)
		},
		OnClose: func() { close(closed) },
	})

	go p.Client.Connect(ctx)

	select {
	case <-ready:
	case <-closed:
		code, detail := connectFailure(Store.GetState(sessionID))
		clientConn.Close(code, detail)
		Store.Dispatch(sessionID, session.SessionEnd())
		return
	case <-ctx.Done():
		p.Client.Terminate()
		Store.Dispatch(sessionID, session.SessionEnd())
		return
	}

	defer p.Client.Terminate()

	bridgeTerminal(ctx, clientConn, sessionID, conn.ID, ip, p.Client, closed)

	Store.Dispatch(sessionID, session.SessionEnd())
	clientConn.Close(websocket.StatusNormalClosure, "")
}

// connectFailure picks the close code and reason for a connection that died
// before it became ready. WebSocket close reasons are capped at 125 bytes.
func connectFailure(st *session.State) (websocket.StatusCode, string) {
	if st != nil && st.Auth.Status == session.AuthFailed {
		return 4401, "Authentication failed"
	}
	if st != nil && st.Connection.ErrorMessage != "" {
		return 4500, logging.Truncate(st.Connection.ErrorMessage, 120)
	}
	return 4500, "Failed to establish connection"
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "password")
}

// bridgeTerminal relays WebSocket frames to the backend terminal and back.
// Binary frames carry terminal bytes in both directions; text frames carry
// JSON control messages from the browser. Returns when the browser or the
// backend goes away.
func bridgeTerminal(ctx context.Context, clientConn *websocket.Conn, sessionID, connID, ip string, tc backend.TerminalClient, backendClosed <-chan struct{}) {
	clientConn.SetReadLimit(1024 * 1024)

	relayCtx, relayCancel := context.WithCancel(ctx)
	defer relayCancel()

	// Watch for backend termination
	go func() {
		select {
		case <-backendClosed:
			relayCancel()
		case <-relayCtx.Done():
		}
	}()

	// Shell stdout -> Browser
	go func() {
		defer relayCancel()
		buf := make([]byte, 32*1024)
		out := tc.Stdout()
		for {
			n, err := out.Read(buf)
			if n > 0 {
				if werr := clientConn.Write(relayCtx, websocket.MessageBinary, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	limiter := newTokenBucket(terminalRateBurst, terminalRateLimit)
	rateLogged := false

	// Browser -> Shell stdin
	for {
		msgType, data, err := clientConn.Read(relayCtx)
		if err != nil {
			return
		}

		// Rate limit: drop messages that exceed the allowed rate
		if !limiter.allow() {
			if !rateLogged {
				audit.LogRateLimited(sessionID, ip, "terminal input")
				rateLogged = true
			}
			continue
		}

		if msgType == websocket.MessageBinary {
			if len(data) > maxInputMessage {
				log.Printf("[handlers] input frame too large: session=%s size=%d limit=%d", sessionID, len(data), maxInputMessage)
				continue
			}
			if _, err := tc.Write(data); err != nil {
				return
			}
			Pool.Touch(connID)
			if Bus != nil && Bus.HasHandlers(events.EventTerminalDataIn) {
				publish(events.NewTerminalDataIn(sessionID, data), bus.Low)
			}
		} else {
			rows, cols, ok := parseResize(data)
			if !ok {
				continue
			}
			if err := tc.Resize(rows, cols); err != nil {
				log.Printf("[handlers] resize session=%s: %v", sessionID, err)
				continue
			}
			Store.Dispatch(sessionID, session.TerminalResize(rows, cols))
			publish(events.NewTerminalResize(sessionID, rows, cols), bus.Normal)
		}
	}
}
