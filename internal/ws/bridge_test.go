package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"journal-core/internal/events"
	"journal-core/pkg/db"
)

func TestBridgeForwardsBusEvents(t *testing.T) {
	bus := events.NewBus()
	b, trades, mt5 := attachedBroadcaster(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunBridge(ctx, bus, b)

	tradesClient := admit(trades, "sock-1", "user-a")
	mt5Client := admit(mt5, "sock-2", "user-a")

	// Give the bridge a moment to register its subscriptions.
	time.Sleep(50 * time.Millisecond)

	bus.Publish(events.TopicTradeCreated, events.TradeCreated{
		Trade: db.Trade{ID: "t1", Symbol: "EURUSD"},
	})
	event, data := drain(t, tradesClient)
	if event != EventTradeCreated {
		t.Errorf("expected %s, got %s", EventTradeCreated, event)
	}
	var trade db.Trade
	if err := json.Unmarshal(data, &trade); err != nil {
		t.Fatalf("Failed to decode trade: %v", err)
	}
	if trade.ID != "t1" {
		t.Errorf("unexpected trade: %+v", trade)
	}

	bus.Publish(events.TopicTradesBulk, events.TradesBulk{Operation: "delete", Count: 5})
	event, data = drain(t, tradesClient)
	if event != EventTradesBulk {
		t.Errorf("expected %s, got %s", EventTradesBulk, event)
	}
	var bulk events.TradesBulk
	if err := json.Unmarshal(data, &bulk); err != nil {
		t.Fatalf("Failed to decode bulk payload: %v", err)
	}
	if bulk.Operation != "delete" || bulk.Count != 5 {
		t.Errorf("unexpected bulk payload: %+v", bulk)
	}

	bus.Publish(events.TopicPositionsSnapshot, events.PositionsSnapshot{
		UserID:    "user-a",
		AccountID: "acct-1",
	})
	if event, _ = drain(t, mt5Client); event != EventPositions {
		t.Errorf("expected %s, got %s", EventPositions, event)
	}

	// A malformed payload is skipped without killing the relay.
	bus.Publish(events.TopicTradeDeleted, "not-a-struct")
	bus.Publish(events.TopicTradeDeleted, events.TradeDeleted{ID: "t2"})
	if event, _ = drain(t, tradesClient); event != EventTradeDeleted {
		t.Errorf("expected %s after bad payload, got %s", EventTradeDeleted, event)
	}
}
