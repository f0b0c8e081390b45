// Package core maintains the websocket connection to the core and moves
// protocol frames across it.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/gsbridge/pkg/gscore"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
)

// DefaultReconnectInterval is the wait between a close and the next dial.
const DefaultReconnectInterval = 5 * time.Second

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventError        EventKind = "error"
	EventClosed       EventKind = "closed"
	EventReconnecting EventKind = "reconnecting"
	EventDisposed     EventKind = "disposed"
)

// Event reports a lifecycle change for observability.
type Event struct {
	Kind    EventKind
	Err     error
	Attempt uint64
}

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with a gorilla websocket.Dialer.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d WebsocketDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Handler receives every routed frame, one at a time, in arrival order.
type Handler func(msg gscore.MessageReceive)

type Config struct {
	URL               string
	ReconnectInterval time.Duration
	Dev               bool
}

type Option func(*Client)

func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithAfter replaces time.After for the reconnect wait.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Client) { c.after = after }
}

func WithEventHandler(fn func(Event)) Option {
	return func(c *Client) { c.onEvent = fn }
}

// Client owns one core connection and redials it until disposed.
type Client struct {
	cfg     Config
	handler Handler
	dialer  Dialer
	after   func(time.Duration) <-chan time.Time
	onEvent func(Event)

	state    atomic.Int32
	disposed atomic.Bool
	attempts atomic.Uint64
	done     chan struct{}

	mu      sync.Mutex // guards conn
	conn    Conn
	writeMu sync.Mutex
}

func NewClient(cfg Config, handler Handler, opts ...Option) *Client {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	c := &Client{
		cfg:     cfg,
		handler: handler,
		dialer:  WebsocketDialer{},
		after:   time.After,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the core endpoint the client dials.
func (c *Client) URL() string {
	return c.cfg.URL
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// Attempts returns how many dials have been started.
func (c *Client) Attempts() uint64 {
	return c.attempts.Load()
}

func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Start runs the connection loop in the background.
func (c *Client) Start(ctx context.Context) {
	go c.Run(ctx)
}

// Run dials, reads until the connection closes, waits the reconnect interval
// and repeats. It returns only after Dispose or when ctx is done, which
// disposes the client.
func (c *Client) Run(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			c.Dispose()
		case <-c.done:
		}
	}()

	for {
		if c.disposed.Load() {
			return
		}

		attempt := c.attempts.Add(1)
		c.setState(StateConnecting)
		conn, err := c.dialer.DialContext(ctx, c.cfg.URL)
		if err != nil {
			err = &ConnectionError{Op: "dial", Err: err}
			logger.ErrorCF("core", "Failed to connect to core", map[string]any{
				"url":     c.cfg.URL,
				"attempt": attempt,
				"error":   err.Error(),
			})
			c.emit(Event{Kind: EventError, Err: err, Attempt: attempt})
		} else if c.adopt(conn) {
			c.setState(StateConnected)
			logger.InfoCF("core", "Connected to core", map[string]any{"url": c.cfg.URL, "attempt": attempt})
			c.emit(Event{Kind: EventConnected, Attempt: attempt})

			err := c.readLoop(conn)
			c.release(conn)
			logger.WarnCF("core", "Core connection closed", map[string]any{"error": errString(err)})
			c.emit(Event{Kind: EventClosed, Err: err, Attempt: attempt})
		}

		if c.disposed.Load() {
			logger.InfoC("core", "Client disposed, not reconnecting")
			return
		}

		c.setState(StateDisconnected)
		logger.InfoCF("core", "Reconnecting to core", map[string]any{
			"interval": c.cfg.ReconnectInterval.String(),
		})
		c.emit(Event{Kind: EventReconnecting, Attempt: attempt})

		select {
		case <-c.after(c.cfg.ReconnectInterval):
		case <-c.done:
			return
		}
	}
}

// adopt stores conn as the live connection unless the client was disposed
// while the dial was in flight.
func (c *Client) adopt(conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed.Load() {
		conn.Close()
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) release(conn Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) readLoop(conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.disposed.Load() {
				return nil
			}
			err = &ConnectionError{Op: "read", Err: err}
			c.emit(Event{Kind: EventError, Err: err})
			return err
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	if c.cfg.Dev {
		logger.DebugCF("core", "Frame received", map[string]any{"frame": string(data)})
	}

	var msg gscore.MessageReceive
	if err := json.Unmarshal(data, &msg); err != nil {
		derr := &DecodeError{Frame: data, Err: err}
		logger.ErrorCF("core", "Dropping malformed frame", map[string]any{"error": derr.Error()})
		return
	}

	if msg.IsLog() {
		for _, el := range msg.Content {
			line, err := el.Text()
			if err != nil {
				line = string(el.Data)
			}
			logger.InfoCF("core", "Core log", map[string]any{"level": el.Type, "data": line})
		}
		return
	}

	if c.handler != nil {
		c.handler(msg)
	}
}

// Send writes msg as one text frame. There is no delivery confirmation.
func (c *Client) Send(msg gscore.MessageSend) error {
	if c.disposed.Load() {
		return ErrDisposed
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// Dispose closes the connection and stops all further reconnects. It is
// safe to call more than once.
func (c *Client) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}
	c.state.Store(int32(StateDisposed))
	close(c.done)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}

	logger.InfoC("core", "Core client disposed")
	c.emit(Event{Kind: EventDisposed})
}

// setState moves to s unless the client is already disposed.
func (c *Client) setState(s State) {
	for {
		cur := c.state.Load()
		if State(cur) == StateDisposed {
			return
		}
		if c.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

func (c *Client) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
