package ws

import (
	"log"

	"journal-core/internal/monitor"
)

// Hub owns one endpoint's registry and fans messages out to it. The trades
// hub broadcasts to everyone; the MT5 hub delivers per user.
type Hub struct {
	name        string
	diagnostics bool // ping/test-message echo surface (trades endpoint only)
	registry    *Registry
	metrics     *monitor.SystemMetrics
}

// NewHub creates a hub for one socket endpoint. metrics may be nil in tests.
func NewHub(name string, diagnostics bool, metrics *monitor.SystemMetrics) *Hub {
	return &Hub{
		name:        name,
		diagnostics: diagnostics,
		registry:    NewRegistry(),
		metrics:     metrics,
	}
}

// Registry exposes the hub's connection registry for operational queries.
func (h *Hub) Registry() *Registry { return h.registry }

// admit registers a socket and, when it carries an identity, indexes it under
// its user.
func (h *Hub) admit(c *Client) {
	h.registry.Register(c)
	if c.UserID != "" {
		h.registry.Bind(c.UserID, c.ID)
	}
	if h.metrics != nil {
		h.metrics.IncrementWSAdmitted()
	}
	log.Printf("[WS] %s client connected: %s (user %s, %d open)",
		h.name, c.ID, orDash(c.UserID), h.registry.ConnectionCount())
}

// remove drops a socket from the registry and signals its write pump to stop.
// The send queue is never closed here: a fan-out that snapshotted the registry
// before this call may still enqueue, and a send on a closed channel would
// panic the broadcasting goroutine. Unregister returns the client to exactly
// one caller, so quit is closed once.
func (h *Hub) remove(socketID string) {
	if c := h.registry.Unregister(socketID); c != nil {
		close(c.quit)
		log.Printf("[WS] %s client disconnected: %s (%d open)",
			h.name, socketID, h.registry.ConnectionCount())
	}
}

// evictSlow disconnects a client whose send queue is full. The write pump
// exits on the quit signal, which closes the connection.
func (h *Hub) evictSlow(c *Client) {
	if h.registry.Unregister(c.ID) != nil {
		close(c.quit)
		if h.metrics != nil {
			h.metrics.IncrementWSSlowEvicted()
		}
		log.Printf("[WS] %s evicted slow client %s", h.name, c.ID)
	}
}

// broadcast delivers one encoded event to every open socket and returns the
// recipient count. Sockets that joined after a previous event are included;
// per-socket order follows call order.
func (h *Hub) broadcast(payload []byte) int {
	clients := h.registry.All()
	delivered := 0
	for _, c := range clients {
		if c.enqueue(payload) {
			delivered++
		} else {
			h.evictSlow(c)
		}
	}
	if h.metrics != nil {
		h.metrics.AddWSDelivered(delivered)
	}
	return delivered
}

// sendToUser delivers one encoded event to every socket of one user (fan-out,
// not round-robin) and returns the recipient count. Zero sockets is the
// expected steady-state for offline users, not an error.
func (h *Hub) sendToUser(userID string, payload []byte) int {
	clients := h.registry.ClientsForUser(userID)
	delivered := 0
	for _, c := range clients {
		if c.enqueue(payload) {
			delivered++
		} else {
			h.evictSlow(c)
		}
	}
	if h.metrics != nil {
		h.metrics.AddWSDelivered(delivered)
	}
	return delivered
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
