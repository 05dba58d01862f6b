// Package pushchannel connects to the backend's socket server. Frames in both
// directions are JSON envelopes {"event": name, "data": {...}}. The connection is
// re-established with exponential backoff and reconnect listeners run after every
// successful connect so rooms can be joined or re-joined.
package pushchannel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"merchantdispatch/internal/pkg/errs"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
)

const (
	DefaultWriteTimeout     = 10 * time.Second
	DefaultHandshakeTimeout = 15 * time.Second
	DefaultInitialBackoff   = 500 * time.Millisecond
	DefaultMaxBackoff       = 30 * time.Second
)

// ErrNotConnected is returned by Emit while the socket is down.
var ErrNotConnected = errors.New("push channel is not connected")

// Config configures a Client.
type Config struct {
	URL              string
	Token            string
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outgoing struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client implements ports.PushChannel over one websocket connection.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	mu          sync.Mutex
	nextID      uint64
	handlers    map[string]map[uint64]func([]byte)
	onReconnect map[uint64]func()

	writeMu sync.Mutex
	conn    *websocket.Conn

	connects atomic.Int64
	closed   atomic.Bool
}

// NewClient validates cfg. The connection is opened by Run.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	var errList []error
	if cfg.URL == "" {
		errList = append(errList, errs.NewValueIsRequiredError("push url"))
	}
	if logger == nil {
		errList = append(errList, errs.NewValueIsRequiredError("logger"))
	}
	if err := errors.Join(errList...); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}

	return &Client{
		cfg:         cfg,
		dialer:      &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:      logger.With("component", "push_channel"),
		handlers:    make(map[string]map[uint64]func([]byte)),
		onReconnect: make(map[uint64]func()),
	}, nil
}

// Run keeps the connection open until ctx is done or Close is called.
func (c *Client) Run(ctx context.Context) error {
	for !c.closed.Load() {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil || c.closed.Load() {
				return nil
			}
			return err
		}

		c.writeMu.Lock()
		c.conn = conn
		c.writeMu.Unlock()

		n := c.connects.Inc()
		c.logger.InfoContext(ctx, "Push channel connected", "attempt", n)
		for _, fn := range c.reconnectListeners() {
			fn()
		}

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		c.readLoop(ctx, conn)
		stop()

		c.writeMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.writeMu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	var conn *websocket.Conn
	op := func() error {
		if c.closed.Load() {
			return backoff.Permanent(ErrNotConnected)
		}
		ws, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return errs.NewNetworkError("dial push channel", err)
		}
		conn = ws
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "Push channel dial failed", "error", err, "retry_in", wait.String())
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && ctx.Err() == nil {
				c.logger.WarnContext(ctx, "Push channel read failed", "error", err)
			}
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.logger.Debug("Dropping unparseable push frame", "error", err)
			continue
		}
		for _, h := range c.handlersFor(env.Event) {
			h(env.Data)
		}
	}
}

// Emit sends one envelope. It fails with ErrNotConnected while the socket is down.
func (c *Client) Emit(ctx context.Context, event string, data any) error {
	frame, err := json.Marshal(outgoing{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return errs.NewNetworkError("emit "+event, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errs.NewNetworkError("emit "+event, err)
	}
	return nil
}

// Subscribe registers handler for the raw data of event.
func (c *Client) Subscribe(event string, handler func(data []byte)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]func([]byte))
	}
	c.handlers[event][id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

// OnReconnect registers fn to run after every successful connect, the first one
// included, so callers that emitted before the socket came up can catch up.
func (c *Client) OnReconnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.onReconnect[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onReconnect, id)
	}
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn != nil
}

// Close stops Run and closes the socket.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *Client) handlersFor(event string) []func([]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]func([]byte), 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		out = append(out, h)
	}
	return out
}

func (c *Client) reconnectListeners() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]func(), 0, len(c.onReconnect))
	for _, fn := range c.onReconnect {
		out = append(out, fn)
	}
	return out
}
