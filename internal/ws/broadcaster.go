package ws

import (
	"log"
	"sync"

	"journal-core/internal/events"
	"journal-core/internal/monitor"
	"journal-core/pkg/cache"
	"journal-core/pkg/db"
)

// Broadcaster is the notification surface the business layer sees. It is
// fire-and-forget end to end: a notification that cannot be delivered is
// logged and dropped, and must never fail the database write that triggered
// it. Hubs attach after the HTTP server boots; until then every call is a
// warning-logged no-op.
type Broadcaster struct {
	mu        sync.RWMutex
	trades    *Hub // global broadcast endpoint
	mt5       *Hub // per-user endpoint
	snapshots *cache.SnapshotCache
	metrics   *monitor.SystemMetrics
}

// NewBroadcaster creates a broadcaster with no transport attached yet.
// snapshots may be nil to disable connect-time replay.
func NewBroadcaster(snapshots *cache.SnapshotCache, metrics *monitor.SystemMetrics) *Broadcaster {
	return &Broadcaster{snapshots: snapshots, metrics: metrics}
}

// Attach wires the hubs once the socket endpoints exist.
func (b *Broadcaster) Attach(trades, mt5 *Hub) {
	b.mu.Lock()
	b.trades = trades
	b.mt5 = mt5
	b.mu.Unlock()
	log.Printf("[WS] broadcaster attached to socket endpoints")
}

// NotifyAll delivers an event to every socket on the trades endpoint. All
// sessions of the authenticated user observe all trade events; isolation
// across tenants is a deployment-level property here.
func (b *Broadcaster) NotifyAll(event string, data any) {
	b.mu.RLock()
	hub := b.trades
	b.mu.RUnlock()
	if hub == nil {
		b.dropNotReady(event)
		return
	}

	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("[WS] %v", err)
		return
	}
	n := hub.broadcast(payload)
	log.Printf("[WS] broadcast %s to %d clients", event, n)
}

// NotifyUser delivers an event to every socket the user currently has on the
// MT5 endpoint. A user with zero connections means a silent drop: this is an
// at-most-once channel, not a queue.
func (b *Broadcaster) NotifyUser(userID, event string, data any) {
	b.mu.RLock()
	hub := b.mt5
	b.mu.RUnlock()
	if hub == nil {
		b.dropNotReady(event)
		return
	}

	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("[WS] %v", err)
		return
	}
	n := hub.sendToUser(userID, payload)
	if n == 0 {
		if b.metrics != nil {
			b.metrics.IncrementWSDropped()
		}
		return
	}
	log.Printf("[WS] sent %s to user %s (%d sockets)", event, userID, n)
}

// IsUserConnected reports whether the user has a live MT5 socket.
func (b *Broadcaster) IsUserConnected(userID string) bool {
	b.mu.RLock()
	hub := b.mt5
	b.mu.RUnlock()
	return hub != nil && hub.registry.IsUserConnected(userID)
}

func (b *Broadcaster) dropNotReady(event string) {
	if b.metrics != nil {
		b.metrics.IncrementWSDropped()
	}
	log.Printf("[WS] socket server not initialized, skipping %s notification", event)
}

// ----------------------------------------
// Typed notification helpers (what the CRUD layer calls)
// ----------------------------------------

// NotifyTradeCreated announces a committed trade to all sessions.
func (b *Broadcaster) NotifyTradeCreated(trade db.Trade) {
	b.NotifyAll(EventTradeCreated, trade)
}

// NotifyTradeUpdated announces an updated trade to all sessions.
func (b *Broadcaster) NotifyTradeUpdated(trade db.Trade) {
	b.NotifyAll(EventTradeUpdated, trade)
}

// NotifyTradeDeleted announces a removed trade id to all sessions.
func (b *Broadcaster) NotifyTradeDeleted(tradeID string) {
	b.NotifyAll(EventTradeDeleted, map[string]string{"id": tradeID})
}

// NotifyBulkOperation announces a bulk import/delete. trades is nil for
// deletes.
func (b *Broadcaster) NotifyBulkOperation(operation string, count int, trades []db.Trade) {
	b.NotifyAll(EventTradesBulk, events.TradesBulk{
		Operation: operation,
		Count:     count,
		Trades:    trades,
	})
}

// NotifyPositions streams a positions snapshot to its owner's sessions and
// caches the encoded frame so sockets connecting later can be replayed the
// last known state.
func (b *Broadcaster) NotifyPositions(snapshot events.PositionsSnapshot) {
	payload, err := encodeEvent(EventPositions, snapshot)
	if err != nil {
		log.Printf("[WS] %v", err)
		return
	}
	if b.snapshots != nil {
		b.snapshots.Set(snapshot.UserID, payload)
	}

	b.mu.RLock()
	hub := b.mt5
	b.mu.RUnlock()
	if hub == nil {
		b.dropNotReady(EventPositions)
		return
	}
	if n := hub.sendToUser(snapshot.UserID, payload); n > 0 {
		log.Printf("[WS] sent %s to user %s (%d sockets)", EventPositions, snapshot.UserID, n)
	} else if b.metrics != nil {
		b.metrics.IncrementWSDropped()
	}
}
