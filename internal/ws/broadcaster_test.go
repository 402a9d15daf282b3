package ws

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"journal-core/internal/events"
	"journal-core/pkg/cache"
	"journal-core/pkg/db"
)

// drain pops one frame off a client's send queue and decodes the envelope.
func drain(t *testing.T, c *Client) (string, json.RawMessage) {
	t.Helper()
	select {
	case raw := <-c.send:
		var env inbound
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("Failed to decode frame: %v", err)
		}
		return env.Event, env.Data
	case <-time.After(time.Second):
		t.Fatal("no frame enqueued")
		return "", nil
	}
}

func attachedBroadcaster(snapshots *cache.SnapshotCache) (*Broadcaster, *Hub, *Hub) {
	b := NewBroadcaster(snapshots, nil)
	trades := NewHub("trades", true, nil)
	mt5 := NewHub("mt5", false, nil)
	b.Attach(trades, mt5)
	return b, trades, mt5
}

func admit(hub *Hub, id, userID string) *Client {
	c := testClient(id, userID)
	c.hub = hub
	hub.admit(c)
	return c
}

func TestNotifyBeforeAttachIsNoop(t *testing.T) {
	b := NewBroadcaster(nil, nil)

	// Must not panic or block when the socket server has not started.
	b.NotifyTradeCreated(db.Trade{ID: "t1"})
	b.NotifyUser("user-a", EventPositions, nil)
	if b.IsUserConnected("user-a") {
		t.Error("no transport attached, nobody can be connected")
	}
}

func TestNotifyAllReachesEverySocket(t *testing.T) {
	b, trades, _ := attachedBroadcaster(nil)

	c1 := admit(trades, "sock-1", "user-a")
	c2 := admit(trades, "sock-2", "user-b")

	b.NotifyTradeCreated(db.Trade{ID: "t1", Symbol: "EURUSD"})

	for _, c := range []*Client{c1, c2} {
		event, data := drain(t, c)
		if event != EventTradeCreated {
			t.Errorf("expected %s, got %s", EventTradeCreated, event)
		}
		var trade db.Trade
		if err := json.Unmarshal(data, &trade); err != nil {
			t.Fatalf("Failed to decode trade: %v", err)
		}
		if trade.ID != "t1" || trade.Symbol != "EURUSD" {
			t.Errorf("unexpected trade payload: %+v", trade)
		}
	}
}

func TestNotifyAllIncludesLateJoiners(t *testing.T) {
	b, trades, _ := attachedBroadcaster(nil)

	c1 := admit(trades, "sock-1", "user-a")
	b.NotifyTradeDeleted("t1")

	// A socket admitted after the first event still gets the second.
	c2 := admit(trades, "sock-2", "user-b")
	b.NotifyTradeDeleted("t2")

	if event, _ := drain(t, c1); event != EventTradeDeleted {
		t.Errorf("expected %s, got %s", EventTradeDeleted, event)
	}
	if event, _ := drain(t, c1); event != EventTradeDeleted {
		t.Errorf("expected second delete on sock-1, got %s", event)
	}
	event, data := drain(t, c2)
	if event != EventTradeDeleted {
		t.Errorf("expected %s, got %s", EventTradeDeleted, event)
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if payload.ID != "t2" {
		t.Errorf("late joiner got %s, want t2", payload.ID)
	}
}

func TestNotifyUserFansOutToAllUserSockets(t *testing.T) {
	b, _, mt5 := attachedBroadcaster(nil)

	c1 := admit(mt5, "sock-1", "user-a")
	c2 := admit(mt5, "sock-2", "user-a")
	other := admit(mt5, "sock-3", "user-b")

	b.NotifyUser("user-a", EventPositions, events.PositionsSnapshot{UserID: "user-a"})

	for _, c := range []*Client{c1, c2} {
		if event, _ := drain(t, c); event != EventPositions {
			t.Errorf("expected %s, got %s", EventPositions, event)
		}
	}
	select {
	case raw := <-other.send:
		t.Errorf("user-b received user-a's event: %s", raw)
	default:
	}
}

func TestNotifyUserOfflineIsSilentDrop(t *testing.T) {
	b, _, _ := attachedBroadcaster(nil)

	// Nobody connected: no panic, no queue, nothing.
	b.NotifyUser("ghost", EventPositions, events.PositionsSnapshot{UserID: "ghost"})
	if b.IsUserConnected("ghost") {
		t.Error("ghost reported connected")
	}
}

func TestNotifyPositionsCachesSnapshot(t *testing.T) {
	snapshots := cache.NewSnapshotCache(time.Minute)
	b, _, mt5 := attachedBroadcaster(snapshots)

	c := admit(mt5, "sock-1", "user-a")
	snap := events.PositionsSnapshot{
		UserID:    "user-a",
		AccountID: "acct-1",
		Positions: []events.Position{{Ticket: 42, Symbol: "XAUUSD", Volume: 0.1}},
	}
	b.NotifyPositions(snap)

	if event, _ := drain(t, c); event != EventPositions {
		t.Errorf("expected %s, got %s", EventPositions, event)
	}

	// The encoded frame is retained for connect-time replay.
	cached, ok := snapshots.Get("user-a")
	if !ok {
		t.Fatal("snapshot not cached")
	}
	var env inbound
	if err := json.Unmarshal(cached, &env); err != nil {
		t.Fatalf("Failed to decode cached frame: %v", err)
	}
	if env.Event != EventPositions {
		t.Errorf("cached frame has event %s", env.Event)
	}
}

func TestBroadcastEvictsSlowClient(t *testing.T) {
	_, trades, _ := attachedBroadcaster(nil)

	c := admit(trades, "sock-1", "user-a")
	// Fill the outbound queue so the next broadcast cannot enqueue.
	for i := 0; i < sendBufferSize; i++ {
		if !c.enqueue([]byte("{}")) {
			t.Fatalf("queue filled early at %d", i)
		}
	}

	n := trades.broadcast([]byte(`{"event":"trade:created"}`))
	if n != 0 {
		t.Errorf("expected 0 deliveries, got %d", n)
	}
	if trades.Registry().ConnectionCount() != 0 {
		t.Error("slow client still registered")
	}
	// Eviction signals the write pump (if any) to terminate.
	select {
	case <-c.quit:
	default:
		t.Error("evicted client was not signalled to shut down")
	}
	// Enqueue after eviction reports failure instead of queueing blindly.
	if c.enqueue([]byte("{}")) {
		t.Error("enqueue succeeded on an evicted client")
	}
}

func TestBroadcastSurvivesConcurrentDisconnects(t *testing.T) {
	_, trades, _ := attachedBroadcaster(nil)

	// One goroutine tears every socket down while another fans out. A
	// removal landing between the registry snapshot and the enqueue must
	// degrade to a dropped frame, never a panic.
	for round := 0; round < 10; round++ {
		clients := make([]*Client, 0, 150)
		for i := 0; i < 150; i++ {
			clients = append(clients, admit(trades, fmt.Sprintf("sock-%d-%d", round, i), "user-a"))
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for _, c := range clients {
				trades.remove(c.ID)
			}
		}()
		for i := 0; i < 50; i++ {
			trades.broadcast([]byte(`{"event":"trade:created"}`))
		}
		<-done
	}

	if n := trades.Registry().ConnectionCount(); n != 0 {
		t.Errorf("%d sockets still registered after teardown", n)
	}
}
