package ws

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"journal-core/internal/monitor"
	"journal-core/pkg/cache"
	"journal-core/pkg/config"
)

// Gateway exposes the two socket endpoints. Per-socket lifecycle:
// Connecting → Authenticating → Admitted | Rejected. Rejection happens before
// the upgrade completes, so a rejected client never reaches message-handling
// state; reconnection is entirely the client's responsibility.
type Gateway struct {
	auth      *Authenticator
	upgrader  websocket.Upgrader
	trades    *Hub
	mt5       *Hub
	snapshots *cache.SnapshotCache
	metrics   *monitor.SystemMetrics
}

// NewGateway builds the trades and MT5 endpoints and attaches them to the
// broadcaster.
func NewGateway(auth *Authenticator, origins *config.OriginPolicy, snapshots *cache.SnapshotCache, metrics *monitor.SystemMetrics, b *Broadcaster) *Gateway {
	g := &Gateway{
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return origins.Allow(r.Header.Get("Origin"))
			},
		},
		trades:    NewHub("trades", true, metrics),
		mt5:       NewHub("mt5", false, metrics),
		snapshots: snapshots,
		metrics:   metrics,
	}
	b.Attach(g.trades, g.mt5)
	return g
}

// TradesHub returns the broadcast endpoint's hub (tests, status endpoint).
func (g *Gateway) TradesHub() *Hub { return g.trades }

// MT5Hub returns the per-user endpoint's hub.
func (g *Gateway) MT5Hub() *Hub { return g.mt5 }

// HandleTrades serves the global trade-event endpoint. Every admitted socket
// observes all trade events flowing through the process.
func (g *Gateway) HandleTrades(c *gin.Context) {
	identity, ok := g.admitOrReject(c)
	if !ok {
		return
	}
	g.serve(c, g.trades, identity, EventConnected, false)
}

// HandleMT5 serves the per-user position stream. Unlike the trades endpoint
// it refuses any socket without a user identity, even if admission control
// was somehow bypassed upstream.
func (g *Gateway) HandleMT5(c *gin.Context) {
	identity, ok := g.admitOrReject(c)
	if !ok {
		return
	}
	g.serve(c, g.mt5, identity, EventMT5Connected, true)
}

// admitOrReject runs the authentication handshake and, on failure, ends the
// request before the upgrade with a distinct error class per failure mode.
func (g *Gateway) admitOrReject(c *gin.Context) (*Identity, bool) {
	identity, err := g.auth.Authenticate(c.Request)
	if err == nil {
		return identity, true
	}

	if g.metrics != nil {
		g.metrics.IncrementWSRejected()
	}
	switch {
	case errors.Is(err, ErrTokenMissing):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":  "AUTH_TOKEN_REQUIRED",
			"error": ErrTokenMissing.Error(),
		})
	case errors.Is(err, ErrServerMisconfigured):
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":  "SERVER_MISCONFIGURED",
			"error": ErrServerMisconfigured.Error(),
		})
	default:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":  "INVALID_TOKEN",
			"error": ErrTokenInvalid.Error(),
		})
	}
	return nil, false
}

func (g *Gateway) serve(c *gin.Context, hub *Hub, identity *Identity, welcomeEvent string, requireIdentity bool) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] %s upgrade error: %v", hub.name, err)
		return
	}

	client := newClient(uuid.NewString(), identity, hub, conn)
	hub.admit(client)

	// Identity is mandatory on the MT5 endpoint; a socket without one is
	// force-closed before any positions event could reach it.
	if requireIdentity && client.UserID == "" {
		log.Printf("[WS] %s rejecting socket %s without user identity", hub.name, client.ID)
		hub.remove(client.ID)
		conn.Close()
		return
	}

	payload := welcomePayload{
		SocketID:    client.ID,
		UserID:      client.UserID,
		ConnectedAt: client.ConnectedAt,
	}
	if welcome, err := encodeEvent(welcomeEvent, payload); err == nil {
		client.enqueue(welcome)
	}
	// The trades endpoint repeats the welcome under the legacy event name.
	if welcomeEvent == EventConnected {
		if legacy, err := encodeEvent(EventConnectionLegacy, payload); err == nil {
			client.enqueue(legacy)
		}
	}

	// Replay the last cached positions snapshot so a late-joining tab is
	// immediately consistent with the bridge.
	if requireIdentity && g.snapshots != nil {
		if snap, ok := g.snapshots.Get(client.UserID); ok {
			client.enqueue(snap)
		}
	}

	go client.writePump()
	go client.readPump()
}
