// Package db provides user-isolated database queries for multi-tenant architecture.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// UserQueries provides user-isolated database queries.
type UserQueries struct {
	db *sql.DB
}

// NewUserQueries creates a new UserQueries instance.
func NewUserQueries(db *sql.DB) *UserQueries {
	return &UserQueries{db: db}
}

// ----------------------------------------
// Trade Queries
// ----------------------------------------

const tradeColumns = `id, user_id, symbol, side, status, entry_price,
       COALESCE(exit_price, 0), qty, COALESCE(pnl, 0), COALESCE(notes, ''),
       opened_at, closed_at, created_at, updated_at`

// GetTradesByUser returns recent trades for a specific user.
func (q *UserQueries) GetTradesByUser(ctx context.Context, userID string, limit int) ([]Trade, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetTradeByID returns one trade, scoped to its owner.
func (q *UserQueries) GetTradeByID(ctx context.Context, userID, tradeID string) (*Trade, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	row := q.db.QueryRowContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE id = ? AND user_id = ?
	`, tradeID, userID)

	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTrade inserts a new trade row.
func (q *UserQueries) CreateTrade(ctx context.Context, t Trade) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO trades (id, user_id, symbol, side, status, entry_price, exit_price,
		                    qty, pnl, notes, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Symbol, t.Side, t.Status, t.EntryPrice, t.ExitPrice,
		t.Quantity, t.PnL, t.Notes, nullTime(t.OpenedAt), nullTime(t.ClosedAt))
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// UpdateTrade rewrites mutable fields of an existing trade, scoped to its owner.
func (q *UserQueries) UpdateTrade(ctx context.Context, t Trade) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE trades
		SET symbol = ?, side = ?, status = ?, entry_price = ?, exit_price = ?,
		    qty = ?, pnl = ?, notes = ?, opened_at = ?, closed_at = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?
	`, t.Symbol, t.Side, t.Status, t.EntryPrice, t.ExitPrice,
		t.Quantity, t.PnL, t.Notes, nullTime(t.OpenedAt), nullTime(t.ClosedAt),
		t.ID, t.UserID)
	if err != nil {
		return fmt.Errorf("update trade: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTrade removes one trade, scoped to its owner.
func (q *UserQueries) DeleteTrade(ctx context.Context, userID, tradeID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	res, err := q.db.ExecContext(ctx, `
		DELETE FROM trades WHERE id = ? AND user_id = ?
	`, tradeID, userID)
	if err != nil {
		return fmt.Errorf("delete trade: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkInsertTrades inserts a batch of trades in one transaction (importer path).
func (q *UserQueries) BulkInsertTrades(ctx context.Context, userID string, trades []Trade) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	if len(trades) == 0 {
		return nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (id, user_id, symbol, side, status, entry_price, exit_price,
		                    qty, pnl, notes, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare bulk insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx, t.ID, userID, t.Symbol, t.Side, t.Status,
			t.EntryPrice, t.ExitPrice, t.Quantity, t.PnL, t.Notes,
			nullTime(t.OpenedAt), nullTime(t.ClosedAt)); err != nil {
			return fmt.Errorf("bulk insert trade %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteAllTrades removes every trade of a user and reports how many went.
func (q *UserQueries) DeleteAllTrades(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrUserIDRequired
	}

	res, err := q.db.ExecContext(ctx, `DELETE FROM trades WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete trades: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ----------------------------------------
// MT5 Account Queries
// ----------------------------------------

// CreateMT5Account inserts a new bridged account row.
func (q *UserQueries) CreateMT5Account(ctx context.Context, a MT5Account) error {
	if a.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO mt5_accounts (id, user_id, name, login, server, password_enc, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.Name, a.Login, a.Server, a.PasswordEnc, a.IsActive)
	if err != nil {
		return fmt.Errorf("insert mt5 account: %w", err)
	}
	return nil
}

// GetMT5AccountsByUser returns the active bridged accounts for a user.
// Soft-deleted accounts stay in the table but drop out of the listing.
func (q *UserQueries) GetMT5AccountsByUser(ctx context.Context, userID string) ([]MT5Account, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, name, login, server, password_enc, is_active, created_at, updated_at
		FROM mt5_accounts
		WHERE user_id = ? AND is_active = 1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query mt5 accounts: %w", err)
	}
	defer rows.Close()

	var accounts []MT5Account
	for rows.Next() {
		var a MT5Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Login, &a.Server,
			&a.PasswordEnc, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan mt5 account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeactivateMT5Account soft-deletes a bridged account, scoped to its owner.
func (q *UserQueries) DeactivateMT5Account(ctx context.Context, userID, accountID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE mt5_accounts
		SET is_active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?
	`, accountID, userID)
	if err != nil {
		return fmt.Errorf("deactivate mt5 account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ----------------------------------------
// Scan helpers
// ----------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (Trade, error) {
	var (
		t        Trade
		openedAt sql.NullTime
		closedAt sql.NullTime
	)
	if err := r.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.Status, &t.EntryPrice,
		&t.ExitPrice, &t.Quantity, &t.PnL, &t.Notes,
		&openedAt, &closedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scan trade: %w", err)
	}
	t.OpenedAt = openedAt.Time
	t.ClosedAt = closedAt.Time
	return t, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
