package ws

import (
	"context"
	"log"

	"journal-core/internal/events"
)

// RunBridge subscribes the broadcaster to the domain event bus and forwards
// each topic to its audience. Runs until ctx is cancelled; payloads of an
// unexpected type are logged and skipped rather than crashing the relay.
func RunBridge(ctx context.Context, bus *events.Bus, b *Broadcaster) {
	const buffer = 128

	created, unsubCreated := bus.Subscribe(events.TopicTradeCreated, buffer)
	defer unsubCreated()
	updated, unsubUpdated := bus.Subscribe(events.TopicTradeUpdated, buffer)
	defer unsubUpdated()
	deleted, unsubDeleted := bus.Subscribe(events.TopicTradeDeleted, buffer)
	defer unsubDeleted()
	bulk, unsubBulk := bus.Subscribe(events.TopicTradesBulk, buffer)
	defer unsubBulk()
	positions, unsubPositions := bus.Subscribe(events.TopicPositionsSnapshot, buffer)
	defer unsubPositions()

	log.Printf("[WS] event bridge running")
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-created:
			if ev, ok := msg.(events.TradeCreated); ok {
				b.NotifyTradeCreated(ev.Trade)
			} else {
				logBadPayload(events.TopicTradeCreated, msg)
			}
		case msg := <-updated:
			if ev, ok := msg.(events.TradeUpdated); ok {
				b.NotifyTradeUpdated(ev.Trade)
			} else {
				logBadPayload(events.TopicTradeUpdated, msg)
			}
		case msg := <-deleted:
			if ev, ok := msg.(events.TradeDeleted); ok {
				b.NotifyTradeDeleted(ev.ID)
			} else {
				logBadPayload(events.TopicTradeDeleted, msg)
			}
		case msg := <-bulk:
			if ev, ok := msg.(events.TradesBulk); ok {
				b.NotifyBulkOperation(ev.Operation, ev.Count, ev.Trades)
			} else {
				logBadPayload(events.TopicTradesBulk, msg)
			}
		case msg := <-positions:
			if ev, ok := msg.(events.PositionsSnapshot); ok {
				b.NotifyPositions(ev)
			} else {
				logBadPayload(events.TopicPositionsSnapshot, msg)
			}
		}
	}
}

func logBadPayload(t events.Topic, msg any) {
	log.Printf("[WS] unexpected payload %T on topic %s", msg, t)
}
