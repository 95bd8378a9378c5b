// Package acdsclient is a thin WebSocket transport for carrying
// signalproto's binary SDP/ICE packets between a creator and a joiner
// process. It is explicitly not the ACDS wire protocol (out of scope per
// spec.md §1) — it exists only so the demo CLI and integration tests have
// something concrete to dial; production deployments would plug the
// manager's callbacks into the real discovery/signaling service instead.
package acdsclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// FrameKind discriminates the two packet shapes signalproto defines.
type FrameKind byte

const (
	KindSDP FrameKind = 0
	KindICE FrameKind = 1
)

// Frame is a signalproto packet tagged with its kind, the unit exchanged
// over the relay connection.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// ReconnectConfig controls the reconnection backoff strategy.
type ReconnectConfig struct {
	Enabled      bool
	InitialDelay time.Duration // default 1s
	MaxDelay     time.Duration // default 30s
	MaxAttempts  int           // 0 means unlimited
}

// Config configures a Client.
type Config struct {
	// ServerURL is the relay's WebSocket URL, e.g.
	// "ws://localhost:8080/session/<session_id>".
	ServerURL string

	Logger            *slog.Logger
	MessageBufferSize int // default 64
	DialTimeout       time.Duration // default 10s
	Reconnect         ReconnectConfig
}

// Client relays signalproto frames over a WebSocket connection, with
// optional automatic reconnection (grounded on the signaling client's
// dial/receive-loop/backoff structure).
type Client struct {
	cfg  Config
	log  *slog.Logger
	msgCh chan Frame
	done chan struct{}
	cancel context.CancelFunc

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient builds a Client. Call Connect to dial and begin receiving.
func NewClient(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "acdsclient")

	bufSize := cfg.MessageBufferSize
	if bufSize <= 0 {
		bufSize = 64
	}

	return &Client{
		cfg:   cfg,
		log:   log,
		msgCh: make(chan Frame, bufSize),
		done:  make(chan struct{}),
	}
}

// Frames returns a read-only channel of inbound frames, closed when the
// client shuts down or reconnection is exhausted.
func (c *Client) Frames() <-chan Frame {
	return c.msgCh
}

// Connect dials the relay and starts the receive loop in the background.
// It blocks until the initial connection succeeds or fails.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.dial(ctx); err != nil {
		cancel()
		return fmt.Errorf("acdsclient: connecting: %w", err)
	}

	c.log.Info("connected to signaling relay", "url", c.cfg.ServerURL)
	go c.receiveLoop(ctx)
	return nil
}

// Send writes a frame to the relay.
func (c *Client) Send(ctx context.Context, kind FrameKind, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return errors.New("acdsclient: not connected")
	}

	buf := make([]byte, 1+len(payload))
	buf[0] = byte(kind)
	copy(buf[1:], payload)

	if err := conn.Write(ctx, websocket.MessageBinary, buf); err != nil {
		return fmt.Errorf("acdsclient: writing frame: %w", err)
	}
	return nil
}

// Close shuts down the client and waits for the receive loop to exit.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	timeout := c.cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, dialCancel := context.WithTimeout(ctx, timeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, c.cfg.ServerURL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "closing")
	}
}

func (c *Client) receiveLoop(ctx context.Context) {
	defer close(c.done)
	defer close(c.msgCh)

	for {
		err := c.readFrames(ctx)
		if err == nil || ctx.Err() != nil {
			c.closeConn()
			return
		}

		c.log.Warn("signaling relay connection lost", "error", err)
		c.closeConn()

		if !c.cfg.Reconnect.Enabled {
			return
		}
		if !c.reconnect(ctx) {
			return
		}
	}
}

func (c *Client) readFrames(ctx context.Context) error {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return errors.New("acdsclient: no connection")
		}

		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary || len(data) < 1 {
			c.log.Warn("ignoring malformed frame", "message_type", typ, "len", len(data))
			continue
		}

		frame := Frame{Kind: FrameKind(data[0]), Payload: data[1:]}
		select {
		case c.msgCh <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reconnect retries the dial with exponential backoff, capped at MaxDelay.
func (c *Client) reconnect(ctx context.Context) bool {
	initialDelay := c.cfg.Reconnect.InitialDelay
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	maxDelay := c.cfg.Reconnect.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	maxAttempts := c.cfg.Reconnect.MaxAttempts

	for attempt := 1; maxAttempts == 0 || attempt <= maxAttempts; attempt++ {
		backoff := maxDelay
		if attempt <= 62 {
			backoff = time.Duration(float64(initialDelay) * math.Pow(2, float64(attempt-1)))
		}
		if backoff <= 0 || backoff > maxDelay {
			backoff = maxDelay
		}

		c.log.Info("reconnecting to signaling relay", "attempt", attempt, "backoff", backoff)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		if err := c.dial(ctx); err != nil {
			c.log.Warn("reconnection failed", "attempt", attempt, "error", err)
			continue
		}

		c.log.Info("reconnected to signaling relay", "attempt", attempt)
		return true
	}

	c.log.Error("signaling relay reconnection attempts exhausted")
	return false
}
