package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the deadline for a single outbound write.
	writeWait = 10 * time.Second

	// pongWait is how long a silent peer is tolerated.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames. The diagnostic surface only
	// accepts tiny echo payloads; anything larger is abuse.
	maxMessageSize = 4096

	// sendBufferSize is the per-socket outbound queue. A client that falls
	// this far behind is evicted as a slow consumer.
	sendBufferSize = 256
)

// Client is one admitted socket. Identity fields are fixed at admission and
// never change for the lifetime of the connection.
type Client struct {
	ID          string
	UserID      string
	Email       string
	Role        string
	ConnectedAt time.Time

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}
}

func newClient(id string, identity *Identity, hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		ID:          id,
		ConnectedAt: time.Now(),
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		quit:        make(chan struct{}),
	}
	if identity != nil {
		c.UserID = identity.UserID
		c.Email = identity.Email
		c.Role = identity.Role
	}
	return c
}

// enqueue offers a message to the outbound queue without blocking. A false
// return means the client cannot keep up or is already shut down. The send
// channel itself is never closed, so a fan-out racing a disconnect at worst
// queues into a buffer nobody will drain.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readPump consumes inbound frames until the peer goes away. Only the
// diagnostic echo events are recognized; everything else is ignored, since
// the product's data flow is strictly server→client.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c.ID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] %s read error on %s: %v", c.hub.name, c.ID, err)
			}
			return
		}

		var frame inbound
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		c.handleFrame(frame)
	}
}

// handleFrame answers the trades endpoint diagnostics: ping→pong is a pure
// echo, test-message→test-response echoes with a server timestamp.
func (c *Client) handleFrame(frame inbound) {
	if !c.hub.diagnostics {
		return
	}
	switch frame.Event {
	case eventPing:
		c.reply(EventPong, json.RawMessage(frame.Data))
	case eventTestMessage:
		c.reply(EventTestResponse, testResponsePayload{
			Echo:      frame.Data,
			Timestamp: time.Now().UTC(),
		})
	}
}

func (c *Client) reply(event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("[WS] encode %s reply: %v", event, err)
		return
	}
	if !c.enqueue(payload) {
		c.hub.evictSlow(c)
	}
}

// writePump owns the connection's write side: it drains the send queue in
// FIFO order (this is what preserves per-socket delivery order) and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.quit:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
