// Package wsclient is a reconnecting client for the journal's websocket
// endpoints. It is what the MT5 bridge and CLI tooling use to stay attached
// to /ws/trades and /ws/mt5 across server restarts and network blips.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config tunes the reconnect behaviour.
type Config struct {
	InitialDelay   time.Duration // first wait before a reconnect attempt
	MaxDelay       time.Duration // backoff ceiling; delay doubles until it hits this
	MaxRetries     int           // consecutive failed attempts before giving up (0 = retry forever)
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

// DefaultConfig returns the 2s, 4s, 8s, 16s backoff ladder.
func DefaultConfig() Config {
	return Config{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     10,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// envelope matches the server's wire frame.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler receives the raw data payload of one named event.
type Handler func(data json.RawMessage)

// Client maintains a websocket session to one journal endpoint and dials
// again with exponential backoff whenever the session drops. The auth token
// travels in the Authorization header of the handshake request.
type Client struct {
	name  string // label for log lines
	url   string
	token string
	cfg   Config

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic State
	retryCount int32 // atomic

	handlers     map[string]Handler
	onConnect    func()
	onDisconnect func(error)
	handlerMu    sync.RWMutex

	closeOnce sync.Once
	closeChan chan struct{}
}

// New builds a client for the given endpoint. Call Connect to dial.
func New(name, url, token string, cfg Config) *Client {
	return &Client{
		name:      name,
		url:       url,
		token:     token,
		cfg:       cfg,
		handlers:  make(map[string]Handler),
		closeChan: make(chan struct{}),
	}
}

// On registers a handler for one event name. Registering again replaces the
// previous handler. Must not be called concurrently with dispatch for the
// same event if ordering matters.
func (c *Client) On(event string, h Handler) {
	c.handlerMu.Lock()
	c.handlers[event] = h
	c.handlerMu.Unlock()
}

// OnConnect registers a callback fired after every successful (re)connect.
func (c *Client) OnConnect(f func()) {
	c.handlerMu.Lock()
	c.onConnect = f
	c.handlerMu.Unlock()
}

// OnDisconnect registers a callback fired when the session drops.
func (c *Client) OnDisconnect(f func(error)) {
	c.handlerMu.Lock()
	c.onDisconnect = f
	c.handlerMu.Unlock()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// IsConnected reports whether a live session exists.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// RetryCount returns the consecutive failed reconnect attempts so far.
func (c *Client) RetryCount() int {
	return int(atomic.LoadInt32(&c.retryCount))
}

// Connect dials the endpoint. On failure the caller gets the error and the
// client stays disconnected; the backoff loop only arms itself after a
// session that was once established drops.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.closeChan:
		return fmt.Errorf("client is closed")
	default:
	}

	atomic.StoreInt32(&c.state, int32(StateConnecting))
	if err := c.dial(ctx); err != nil {
		atomic.StoreInt32(&c.state, int32(StateDisconnected))
		return err
	}
	c.becomeConnected()
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := dialer.DialContext(dialCtx, c.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", c.url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

func (c *Client) becomeConnected() {
	atomic.StoreInt32(&c.state, int32(StateConnected))
	atomic.StoreInt32(&c.retryCount, 0)

	c.handlerMu.RLock()
	onConnect := c.onConnect
	c.handlerMu.RUnlock()
	if onConnect != nil {
		onConnect()
	}

	go c.readPump()
	go c.pingPump()

	log.Printf("[%s] connected to %s", c.name, c.url)
}

func (c *Client) readPump() {
	for {
		select {
		case <-c.closeChan:
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("[%s] unreadable frame: %v", c.name, err)
		return
	}

	c.handlerMu.RLock()
	h := c.handlers[env.Event]
	c.handlerMu.RUnlock()
	if h != nil {
		h(env.Data)
	}
}

func (c *Client) pingPump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeChan:
			return
		case <-ticker.C:
			if c.State() != StateConnected {
				return
			}

			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.handleDisconnect(err)
				return
			}
		}
	}
}

func (c *Client) handleDisconnect(err error) {
	select {
	case <-c.closeChan:
		return
	default:
	}

	// Only one of the pumps gets to run the reconnect loop. Both can fail
	// on the same dropped session at once, so claiming the transition must
	// be a single atomic step.
	if !atomic.CompareAndSwapInt32(&c.state, int32(StateConnected), int32(StateReconnecting)) &&
		!atomic.CompareAndSwapInt32(&c.state, int32(StateConnecting), int32(StateReconnecting)) {
		return
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.handlerMu.RLock()
	onDisconnect := c.onDisconnect
	c.handlerMu.RUnlock()
	if onDisconnect != nil {
		onDisconnect(err)
	}

	if err != nil {
		log.Printf("[%s] disconnected: %v", c.name, err)
	}
	go c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	delay := c.cfg.InitialDelay

	for {
		select {
		case <-c.closeChan:
			return
		default:
		}

		attempt := atomic.AddInt32(&c.retryCount, 1)
		if c.cfg.MaxRetries > 0 && int(attempt) > c.cfg.MaxRetries {
			log.Printf("[%s] giving up after %d reconnect attempts", c.name, c.cfg.MaxRetries)
			atomic.StoreInt32(&c.state, int32(StateDisconnected))
			return
		}

		log.Printf("[%s] reconnecting in %v (attempt %d)", c.name, delay, attempt)
		select {
		case <-c.closeChan:
			return
		case <-time.After(delay):
		}

		if err := c.dial(context.Background()); err != nil {
			log.Printf("[%s] reconnect failed: %v", c.name, err)
			delay *= 2
			if delay > c.cfg.MaxDelay {
				delay = c.cfg.MaxDelay
			}
			continue
		}

		c.becomeConnected()
		log.Printf("[%s] reconnected", c.name)
		return
	}
}

// Send writes one event frame to the server. Used for the diagnostic
// ping/test-message events; fails fast when no session is live.
func (c *Client) Send(event string, data any) error {
	if c.State() != StateConnected {
		return fmt.Errorf("not connected (state: %s)", c.State())
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(envelope{Event: event, Data: payload})
}

// Close tears the session down and stops any reconnect loop. Safe to call
// more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeChan)
		atomic.StoreInt32(&c.state, int32(StateClosed))

		c.connMu.Lock()
		if c.conn != nil {
			err = c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()
	})
	return err
}
