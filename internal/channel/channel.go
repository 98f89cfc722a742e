// Package channel maintains the single realtime connection between the
// client and the server. One logical connection serves the whole process:
// it is created after authentication, survives chat switches, redials on
// far-end loss and is torn down only at logout.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Wire event names, matching the server protocol.
const (
	EventAIMessage  = "ai-message"
	EventAIResponse = "ai-response"
)

var (
	// ErrNotConnected is returned by Emit when the channel has no live
	// connection. Sends are never queued.
	ErrNotConnected = errors.New("realtime channel not connected")

	// ErrAuthRejected means the server refused the handshake credentials.
	// Distinguishable from transient loss so the UI can prompt for
	// re-authentication instead of retrying silently.
	ErrAuthRejected = errors.New("realtime channel authentication rejected")
)

// Envelope is the JSON frame exchanged over the connection.
type Envelope struct {
	Event   string `json:"event"`
	Chat    string `json:"chat,omitempty"`
	Content string `json:"content,omitempty"`
}

// Options configures the channel.
type Options struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxRetries       int
}

// DefaultOptions mirrors the server's keepalive expectations.
func DefaultOptions(url, token string) Options {
	return Options{
		URL:              url,
		Token:            token,
		HandshakeTimeout: 30 * time.Second,
		WriteTimeout:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxRetries:       3,
	}
}

// Channel is the realtime transport. Inbound envelopes are delivered to the
// bound handler; connectivity failures that exhaust the retry budget are
// delivered to the bound connectivity callback.
type Channel struct {
	opts Options

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	writeMu sync.Mutex

	connected atomic.Bool
	closed    atomic.Bool

	onEvent        func(Envelope)
	onConnectivity func(error)
}

// New builds a channel. Handlers are bound before Connect.
func New(opts Options) *Channel {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Channel{opts: opts}
}

// OnEvent binds the inbound event handler.
func (c *Channel) OnEvent(fn func(Envelope)) { c.onEvent = fn }

// OnConnectivityError binds the callback for unrecoverable connectivity
// failures (auth rejection, retry budget exhausted).
func (c *Channel) OnConnectivityError(fn func(error)) { c.onConnectivity = fn }

// Connect dials the server, retrying transient failures with linear
// backoff. An authentication rejection aborts immediately with
// ErrAuthRejected.
func (c *Channel) Connect(ctx context.Context) error {
	var lastErr error
	for i := 0; i < c.opts.MaxRetries; i++ {
		err := c.dial(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAuthRejected) {
			return err
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		retryDelay := time.Duration(i+1) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return fmt.Errorf("connect failed after %d retries: %w", c.opts.MaxRetries, lastErr)
}

// dial performs a single handshake and, on success, starts the read and
// ping loops.
func (c *Channel) dial(ctx context.Context) error {
	dialer := &websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: %s", ErrAuthRejected, resp.Status)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		return nil
	})

	c.connected.Store(true)
	go c.readLoop(loopCtx, conn)
	go c.pingLoop(loopCtx, conn)
	return nil
}

// Connected reports liveness. Callers must check this before every send and
// fail fast rather than queue.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Emit writes an outbound envelope. It fails immediately with
// ErrNotConnected when there is no live connection.
func (c *Channel) Emit(ev Envelope) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("emit %s: %w", ev.Event, err)
	}
	return nil
}

// Close tears the channel down intentionally. No reconnection follows.
func (c *Channel) Close() {
	c.closed.Store(true)
	c.connected.Store(false)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

// readLoop delivers inbound envelopes until the connection drops. A
// far-end drop triggers reconnection; an intentional Close does not.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var ev Envelope
		if err := conn.ReadJSON(&ev); err != nil {
			c.connected.Store(false)
			if c.closed.Load() || ctx.Err() != nil {
				return
			}
			log.Printf("[channel] connection lost: %v", err)
			c.reconnect()
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

// reconnect redials after a far-end loss. Exhausting the retry budget or an
// auth rejection surfaces through the connectivity callback.
func (c *Channel) reconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.opts.MaxRetries)*c.opts.HandshakeTimeout)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		log.Printf("[channel] reconnect failed: %v", err)
		if c.onConnectivity != nil {
			c.onConnectivity(err)
		}
		return
	}
	log.Printf("[channel] reconnected")
}

// pingLoop keeps the connection alive; a failed ping lets the read loop
// observe the drop.
func (c *Channel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
