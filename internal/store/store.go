// Package store defines the persistence interface for the trading engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

var (
	// ErrNotFound is returned when the requested account or ledger entry
	// does not exist (or is not owned by the requesting account).
	ErrNotFound = errors.New("store: not found")

	// ErrTxConflict is returned when a trade transaction lost a
	// serialization conflict against a concurrent writer. Callers may
	// retry the whole read-modify-write sequence.
	ErrTxConflict = errors.New("store: transaction conflict")
)

// LedgerQuery filters, sorts, and pages ledger entries. The zero value
// means "everything, newest first".
type LedgerQuery struct {
	// Symbol is a case-insensitive substring match; empty matches all.
	Symbol string

	// Side restricts entries to one trade direction; empty matches both.
	Side model.Side

	// SortField is one of created_at, symbol, price, quantity, total,
	// realized_pnl. Empty defaults to created_at.
	SortField string

	// Ascending flips the default descending order.
	Ascending bool

	Offset int
	Limit  int
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Accounts ---

	// CreateAccount persists a new account with its opening cash balance.
	// Account creation normally happens at user registration; the engine
	// exposes it for seeding and tests.
	CreateAccount(ctx context.Context, account *model.Account) error

	// GetAccount retrieves an account by ID.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// --- Holdings ---

	// ListHoldings returns all open positions for an account.
	ListHoldings(ctx context.Context, accountID string) ([]model.Holding, error)

	// --- Ledger reads ---

	// QueryLedger returns the matching entries for one account plus the
	// total match count (before offset/limit).
	QueryLedger(ctx context.Context, accountID string, q LedgerQuery) ([]model.LedgerEntry, int64, error)

	// --- Ledger corrections ---

	// UpdateNote overwrites the note on one entry. Returns ErrNotFound if
	// the entry does not exist or belongs to another account.
	UpdateNote(ctx context.Context, accountID, entryID, note string) error

	// DeleteEntry removes one ledger row. The entry's effect on balance
	// and holdings is not reversed. Returns ErrNotFound as above.
	DeleteEntry(ctx context.Context, accountID, entryID string) error

	// DeleteAllEntries removes every ledger row for the account and
	// returns the number deleted. Balance and holdings are untouched.
	DeleteAllEntries(ctx context.Context, accountID string) (int64, error)

	// --- Trade transaction ---

	// BeginTrade opens a scoped transaction for one account's trade.
	// Reads within the transaction see a consistent snapshot; the balance,
	// holding, and ledger writes commit atomically or not at all. Two
	// concurrent trades on the same account serialize (one may fail with
	// ErrTxConflict); trades on different accounts do not block each other.
	BeginTrade(ctx context.Context, accountID string) (TradeTx, error)
}

// TradeTx is the scoped transaction a single trade executes under:
// read balance and holding, write all three records, commit or roll back.
type TradeTx interface {
	// Account returns the account row as of the transaction snapshot.
	Account(ctx context.Context) (*model.Account, error)

	// Holding returns the account's position in symbol, or (nil, nil)
	// when no position is open.
	Holding(ctx context.Context, symbol string) (*model.Holding, error)

	// SetBalance stages the new cash balance.
	SetBalance(ctx context.Context, balance decimal.Decimal) error

	// PutHolding stages a holding upsert.
	PutHolding(ctx context.Context, h model.Holding) error

	// DeleteHolding stages removal of the position in symbol.
	DeleteHolding(ctx context.Context, symbol string) error

	// AppendEntry stages a new ledger row.
	AppendEntry(ctx context.Context, e *model.LedgerEntry) error

	// Commit makes all staged writes durable. May return ErrTxConflict.
	Commit(ctx context.Context) error

	// Rollback discards staged writes. Safe to call after Commit.
	Rollback(ctx context.Context) error
}
