// Package client provides a reconnecting websocket client for campaign
// sessions. It maintains a single connection to the server, resynchronizes
// from the snapshot pushed on every (re)connect, and retries dropped
// connections with jittered exponential backoff.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the connection lifecycle state, observable via OnStateChange.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Backoff defaults. Delay for attempt n is initial*multiplier^n, capped at
// max, scaled by a random jitter factor in [0.75, 1.25) so a burst of
// disconnected clients does not reconnect in lockstep.
const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultMultiplier     = 2.0

	jitterMin   = 0.75
	jitterRange = 0.5
)

// ErrNotConnected is returned by Send when no connection is open.
var ErrNotConnected = errors.New("client: not connected")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("client: closed")

// Options configures a Client. URL is required; zero-valued backoff fields
// take the defaults above.
type Options struct {
	// URL is the full websocket endpoint, including any auth query string.
	URL string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// OnMessage receives every raw inbound frame. Called from the read
	// goroutine; implementations must not block.
	OnMessage func(data []byte)

	// OnStateChange observes lifecycle transitions. Optional.
	OnStateChange func(state State)

	Logger *zap.SugaredLogger
}

// Client is a reconnecting websocket session client. Safe for concurrent
// use; Send may be called from any goroutine.
type Client struct {
	opts   Options
	logger *zap.SugaredLogger

	cancel context.CancelFunc
	rng    *rand.Rand

	mu     sync.Mutex
	conn   *websocket.Conn
	state  State
	closed bool
}

// New builds a client without connecting. Call Run to connect.
func New(opts Options) *Client {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.Multiplier <= 1 {
		opts.Multiplier = defaultMultiplier
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Client{
		opts:   opts,
		logger: opts.Logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		state:  StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and keeps the connection alive until ctx is canceled or
// Close is called. It blocks; run it in its own goroutine.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancel = cancel
	c.mu.Unlock()

	attempt := 0
	first := true
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}
		if first {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
		if err != nil {
			delay := c.backoff(attempt)
			attempt++
			c.logger.Warnf("Connection attempt %d failed, retrying in %s: %v", attempt, delay, err)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				c.setState(StateDisconnected)
				return
			}
		}

		// A successful open resets the backoff schedule.
		attempt = 0
		first = false
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)
		c.logger.Infof("Connected to %s", c.opts.URL)

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		closed := c.closed
		c.mu.Unlock()
		if closed || ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		// A dropped connection waits out the backoff schedule too; only the
		// successful open above resets it.
		delay := c.backoff(attempt)
		attempt++
		c.setState(StateReconnecting)
		c.logger.Warnf("Connection lost, reconnecting in %s", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return
		}
	}
}

// readLoop pumps inbound frames until the connection drops or ctx ends.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debugf("Read loop ended: %v", err)
			conn.Close()
			return
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(data)
		}
	}
}

// Send marshals v and writes it as one text frame.
func (c *Client) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close shuts the client down permanently: the current connection is
// closed and no reconnect is attempted.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// backoff computes the jittered delay before reconnect attempt n.
func (c *Client) backoff(attempt int) time.Duration {
	base := float64(c.opts.InitialBackoff) * math.Pow(c.opts.Multiplier, float64(attempt))
	if base > float64(c.opts.MaxBackoff) {
		base = float64(c.opts.MaxBackoff)
	}

	c.mu.Lock()
	jitter := jitterMin + c.rng.Float64()*jitterRange
	c.mu.Unlock()

	return time.Duration(base * jitter)
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(state)
	}
}
