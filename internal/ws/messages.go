package ws

import (
	"encoding/json"
	"fmt"
	"time"
)

// Server→client event names. These are the product's wire contract with the
// browser; renaming any of them breaks deployed frontends.
const (
	EventConnected = "connected"
	// EventConnectionLegacy duplicates the welcome for frontends that still
	// listen on the old name.
	EventConnectionLegacy = "connection"
	EventMT5Connected     = "mt5:connected"
	EventTradeCreated     = "trade:created"
	EventTradeUpdated     = "trade:updated"
	EventTradeDeleted     = "trade:deleted"
	EventTradesBulk       = "trades:bulk"
	EventPositions        = "mt5:positions"
	EventPong             = "pong"
	EventTestResponse     = "test-response"
)

// Client→server event names (diagnostic surface on the trades endpoint).
const (
	eventPing        = "ping"
	eventTestMessage = "test-message"
)

// Envelope is the wire frame: one JSON text message per event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// inbound is a client frame; Data stays raw so echo handlers can relay it
// untouched.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// welcomePayload is sent on admission.
type welcomePayload struct {
	SocketID    string    `json:"socketId"`
	UserID      string    `json:"userId,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// testResponsePayload echoes a test-message with a server timestamp.
type testResponsePayload struct {
	Echo      json.RawMessage `json:"echo,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// encodeEvent marshals an envelope once so fan-out shares one buffer.
func encodeEvent(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event, err)
	}
	return payload, nil
}
