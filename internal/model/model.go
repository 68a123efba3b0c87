// Package model defines the core domain types shared across the trading engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is a known trade side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Account holds a user's virtual cash balance. Accounts are created at
// registration by the auth service; the engine only debits (buy) and
// credits (sell) the balance, which never goes negative.
type Account struct {
	ID        string          `json:"id" db:"id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Holding is an account's open position in one symbol. A row exists iff
// quantity > 0. The average entry price is recomputed on buys only — a
// partial sell leaves it unchanged.
type Holding struct {
	AccountID string          `json:"account_id" db:"account_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	AvgPrice  decimal.Decimal `json:"avg_price" db:"avg_price"`
}

// LedgerEntry is the record of one executed trade. Immutable once written,
// except for the free-text note.
type LedgerEntry struct {
	ID          string           `json:"id" db:"id"`
	AccountID   string           `json:"account_id" db:"account_id"`
	Symbol      string           `json:"symbol" db:"symbol"`
	Side        Side             `json:"side" db:"side"`
	Price       decimal.Decimal  `json:"price" db:"price"`
	Quantity    decimal.Decimal  `json:"quantity" db:"quantity"`
	Total       decimal.Decimal  `json:"total" db:"total"` // price × quantity
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty" db:"realized_pnl"` // SELL only
	Note        string           `json:"note,omitempty" db:"note"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// Dashboard aggregates an account's current state for the UI: cash balance,
// open holdings, and the most recent trades.
type Dashboard struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Holdings  []Holding       `json:"holdings"`
	Recent    []LedgerEntry   `json:"recent_trades"`
}
