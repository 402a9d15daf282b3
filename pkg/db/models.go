package db

import "time"

// Trade is a journaled trade owned by a user. Entry/exit are recorded after
// the fact; PnL is whatever the importer or the user supplied.
type Trade struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`   // LONG or SHORT
	Status     string    `json:"status"` // OPEN or CLOSED
	EntryPrice float64   `json:"entryPrice"`
	ExitPrice  float64   `json:"exitPrice"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	Notes      string    `json:"notes"`
	OpenedAt   time.Time `json:"openedAt"`
	ClosedAt   time.Time `json:"closedAt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MT5Account links a user to a terminal-bridge MT5 login. The investor
// password is stored encrypted (ENC[vN]: ciphertext), never plaintext.
type MT5Account struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Login       string    `json:"login"`
	Server      string    `json:"server"`
	PasswordEnc string    `json:"-"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
