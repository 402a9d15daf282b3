package events

import "journal-core/pkg/db"

// Topic enumerates the pub/sub channels between the CRUD layer and the
// websocket fan-out.
type Topic string

const (
	TopicTradeCreated      Topic = "trade.created"
	TopicTradeUpdated      Topic = "trade.updated"
	TopicTradeDeleted      Topic = "trade.deleted"
	TopicTradesBulk        Topic = "trades.bulk"
	TopicPositionsSnapshot Topic = "mt5.positions"
)

// Payloads are typed per topic so the producer and the socket layer agree on
// shape at compile time rather than by duck typing.

// TradeCreated is published after a trade row is committed.
type TradeCreated struct {
	Trade db.Trade
}

// TradeUpdated is published after an update commits.
type TradeUpdated struct {
	Trade db.Trade
}

// TradeDeleted carries only the removed id.
type TradeDeleted struct {
	ID string
}

// TradesBulk describes a bulk import or bulk delete. Trades is nil for
// deletes. The struct doubles as the wire payload of the trades:bulk event.
type TradesBulk struct {
	Operation string     `json:"operation"`
	Count     int        `json:"count"`
	Trades    []db.Trade `json:"trades,omitempty"`
}

// Position is one open MT5 position as reported by the terminal bridge.
type Position struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Volume     float64 `json:"volume"`
	OpenPrice  float64 `json:"openPrice"`
	CurrentPx  float64 `json:"currentPrice"`
	Profit     float64 `json:"profit"`
	Swap       float64 `json:"swap"`
	OpenedAt   int64   `json:"openedAt"`
	Comment    string  `json:"comment,omitempty"`
}

// PositionsSnapshot is a full replace-style snapshot for one user's account.
type PositionsSnapshot struct {
	UserID    string     `json:"userId"`
	AccountID string     `json:"accountId"`
	Positions []Position `json:"positions"`
}
