// Package pushchan maintains the live event connection from a front end to
// the daemon. A Client owns one logical push-channel session: it dials the
// daemon's events socket, fans incoming {event, data} frames out to
// subscribers, and transparently reconnects with exponential backoff when a
// previously established session drops. Initial dial failures are surfaced
// to the caller and never retried; the caller decides whether a daemon that
// was never reachable is worth waiting for.
package pushchan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tmuxagents/tmux-agents/internal/logging"
)

const (
	// DefaultBaseDelay is the first reconnect delay; attempt n waits
	// DefaultBaseDelay * 2^(n-1).
	DefaultBaseDelay = time.Second

	// DefaultMaxAttempts is the reconnect budget before the client gives
	// up and goes to StateFailed.
	DefaultMaxAttempts = 10
)

// Event is one inbound push-channel frame. Data is left raw for the
// subscriber to decode.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler receives broadcast events. Handlers run on the read loop
// goroutine; a slow handler delays subsequent frames but a panicking one is
// contained.
type Handler func(Event)

// DialFunc opens the underlying WebSocket session.
type DialFunc func(ctx context.Context) (*websocket.Conn, error)

// Options configures a Client.
type Options struct {
	// SocketPath is the daemon's events socket. Ignored when Dial is set.
	SocketPath string

	// BaseDelay is the backoff base (default 1s).
	BaseDelay time.Duration

	// MaxAttempts is the reconnect budget (default 10).
	MaxAttempts int

	// Logger receives channel diagnostics. Optional.
	Logger *logging.Logger

	// Dial overrides the transport dialer; tests use this to point the
	// client at an in-process server.
	Dial DialFunc
}

// Client owns a single logical push-channel session.
type Client struct {
	baseDelay   time.Duration
	maxAttempts int
	log         *logging.Logger
	dial        DialFunc

	mu            sync.Mutex
	state         State
	ws            *websocket.Conn
	attempts      int
	autoReconnect bool
	retryTimer    *time.Timer
	// gen invalidates read loops and retry callbacks that belong to a
	// session the owner has since torn down or replaced.
	gen     uint64
	subs    map[int]Handler
	nextSub int
}

// New creates a disconnected Client.
func New(opts Options) *Client {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	log := opts.Logger
	if log == nil {
		log, _ = logging.New(logging.Options{Console: io.Discard})
	}
	dial := opts.Dial
	if dial == nil {
		dial = unixDialer(opts.SocketPath)
	}
	return &Client{
		baseDelay:   opts.BaseDelay,
		maxAttempts: opts.MaxAttempts,
		log:         log,
		dial:        dial,
		state:       StateDisconnected,
		subs:        make(map[int]Handler),
	}
}

// unixDialer dials the WebSocket endpoint over the daemon's unix socket.
func unixDialer(socketPath string) DialFunc {
	dialer := &websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		HandshakeTimeout: 5 * time.Second,
	}
	return func(ctx context.Context) (*websocket.Conn, error) {
		// Host is a placeholder; routing happens via the unix socket.
		ws, resp, err := dialer.DialContext(ctx, "ws://tma/events", nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return ws, err
	}
}

// Backoff returns the reconnect delay for the given attempt (1-based):
// base * 2^(attempt-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Past ~30 doublings the shift overflows; nobody configures budgets
	// that large, but don't return garbage if they do.
	if attempt > 30 {
		attempt = 30
	}
	return base << uint(attempt-1)
}

// Connect establishes the session. It is idempotent while connected. A
// dial failure is returned to the caller exactly once and leaves the client
// disconnected with no retry scheduled; the retry loop serves only
// sessions that were established and later dropped.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected, StateConnecting:
		c.mu.Unlock()
		return nil
	default:
	}
	// An explicit Connect supersedes any pending retry.
	c.stopRetryLocked()
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.mu.Unlock()

	ws, err := c.dial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// Disconnect ran while we were dialing; the owner wins.
		if ws != nil {
			_ = ws.Close()
		}
		return nil
	}
	if err != nil {
		c.state = StateDisconnected
		return fmt.Errorf("dial push channel: %w", err)
	}

	c.ws = ws
	c.state = StateConnected
	c.attempts = 0
	c.autoReconnect = true
	c.log.Debug("pushchan", "connected", nil)
	go c.readLoop(ws, gen)
	return nil
}

// Subscribe registers a broadcast handler and returns its unsubscribe
// function. A failure in one handler never suppresses delivery to others.
func (c *Client) Subscribe(fn Handler) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.nextSub
	c.nextSub++
	c.subs[token] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, token)
	}
}

// Disconnect tears the session down: it synchronously cancels any pending
// reconnect timer, disables auto-reconnect, closes the transport, and
// forces StateDisconnected with the attempt counter reset. Safe from any
// state; no reconnect may fire after Disconnect returns.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.autoReconnect = false
	c.stopRetryLocked()
	c.gen++
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
	c.state = StateDisconnected
	c.attempts = 0
	c.log.Debug("pushchan", "disconnected", nil)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the session is established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// readLoop pumps frames from one transport session until it closes.
func (c *Client) readLoop(ws *websocket.Conn, gen uint64) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleClose(gen)
			return
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			// Malformed frames never affect channel state.
			c.log.Warn("pushchan", "malformed frame dropped", map[string]string{"error": err.Error()})
			continue
		}
		c.dispatch(event)
	}
}

// dispatch fans one event out to all subscribers, isolating failures.
func (c *Client) dispatch(event Event) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subs))
	for _, fn := range c.subs {
		handlers = append(handlers, fn)
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("pushchan", "event handler panicked", map[string]any{"event": event.Event, "panic": fmt.Sprint(r)})
				}
			}()
			fn(event)
		}()
	}
}

// handleClose reacts to an unexpected transport close.
func (c *Client) handleClose(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		// The owner already tore this session down or replaced it.
		return
	}
	c.ws = nil
	if !c.autoReconnect {
		c.state = StateDisconnected
		return
	}
	c.log.Warn("pushchan", "connection lost", nil)
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the single reconnect timer for the next
// attempt, or gives up once the budget is spent. Caller holds c.mu.
func (c *Client) scheduleReconnectLocked() {
	c.attempts++
	if c.attempts > c.maxAttempts {
		c.state = StateFailed
		c.log.Error("pushchan", "reconnect budget exhausted", map[string]int{"attempts": c.maxAttempts})
		return
	}

	c.state = StateReconnecting
	delay := Backoff(c.baseDelay, c.attempts)
	c.log.Info("pushchan", "reconnect scheduled", map[string]any{"attempt": c.attempts, "delay_ms": delay.Milliseconds()})

	gen := c.gen
	c.retryTimer = time.AfterFunc(delay, func() { c.retryConnect(gen) })
}

// retryConnect is the reconnect timer callback.
func (c *Client) retryConnect(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	ws, err := c.dial(ctx)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != StateReconnecting {
		// Disconnect (or a fresh Connect) happened mid-dial.
		if ws != nil {
			_ = ws.Close()
		}
		return
	}
	if err != nil {
		c.log.Warn("pushchan", "reconnect attempt failed", map[string]any{"attempt": c.attempts, "error": err.Error()})
		c.scheduleReconnectLocked()
		return
	}

	c.ws = ws
	c.state = StateConnected
	c.attempts = 0
	c.log.Info("pushchan", "reconnected", nil)
	go c.readLoop(ws, gen)
}

// stopRetryLocked cancels the pending reconnect timer, if any. Caller
// holds c.mu; the gen bump by callers guarantees an already-fired callback
// cannot act after this returns.
func (c *Client) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}
