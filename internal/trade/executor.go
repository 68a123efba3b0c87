// Package trade implements the accounting core of the paper-trading
// engine: validated, atomic buy/sell execution against an account's cash
// balance and holdings, ledger history queries, and ledger corrections —
// plus the HTTP handlers that expose them.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/metrics"
	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/position"
	"github.com/papertrade/trading-engine/internal/store"
)

// DefaultMaxRetries bounds how many times a trade is re-run after losing a
// serialization conflict before ErrConflictRetryExhausted is returned.
const DefaultMaxRetries = 5

// Executor validates and atomically applies trades. All state lives in the
// store, so multiple engine instances stay consistent; per-account
// serialization comes from the store's trade transaction, not from shared
// memory.
type Executor struct {
	store      store.Store
	maxRetries int
}

// NewExecutor creates an executor over the given store.
func NewExecutor(st store.Store) *Executor {
	return &Executor{store: st, maxRetries: DefaultMaxRetries}
}

// Result is the outcome of one executed trade.
type Result struct {
	Entry       model.LedgerEntry `json:"trade"`
	NewBalance  decimal.Decimal   `json:"new_balance"`
	RealizedPnL *decimal.Decimal  `json:"realized_pnl,omitempty"` // SELL only
}

// Execute validates and applies one buy or sell for the account at the
// caller-supplied market price. The balance update, holding upsert/delete,
// and ledger insert commit as one unit; a failed trade leaves no trace.
//
// Lost serialization conflicts are retried up to the retry budget; every
// other failure is permanent for the given input.
func (e *Executor) Execute(ctx context.Context, accountID, symbol string, side model.Side, price, qty decimal.Decimal) (*Result, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	switch {
	case accountID == "":
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	case symbol == "":
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	case !side.Valid():
		return nil, fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidInput)
	case price.LessThanOrEqual(decimal.Zero):
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	case qty.LessThanOrEqual(decimal.Zero):
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.TxRetries.Inc()
			slog.Warn("retrying trade after conflict",
				"account", accountID, "symbol", symbol, "attempt", attempt)
		}

		res, err := e.executeOnce(ctx, accountID, symbol, side, price, qty)
		if errors.Is(err, store.ErrTxConflict) {
			continue
		}
		return res, err
	}

	return nil, ErrConflictRetryExhausted
}

// executeOnce runs the whole read-modify-write sequence in one scoped
// transaction. A store.ErrTxConflict return means the caller should retry
// from scratch.
func (e *Executor) executeOnce(ctx context.Context, accountID, symbol string, side model.Side, price, qty decimal.Decimal) (*Result, error) {
	tx, err := e.store.BeginTrade(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback(ctx)
		}
	}()

	account, err := tx.Account(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
		}
		return nil, storeErr(err)
	}

	holding, err := tx.Holding(ctx, symbol)
	if err != nil {
		return nil, storeErr(err)
	}

	total := price.Mul(qty)
	entry := model.LedgerEntry{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}

	var newBalance decimal.Decimal

	switch side {
	case model.SideBuy:
		if account.Balance.LessThan(total) {
			return nil, fmt.Errorf("%w: cost %s exceeds balance %s",
				ErrInsufficientFunds, total, account.Balance)
		}
		newBalance = account.Balance.Sub(total)
		if err := tx.PutHolding(ctx, position.ApplyBuy(holding, accountID, symbol, price, qty)); err != nil {
			return nil, storeErr(err)
		}

	case model.SideSell:
		sell, err := position.ApplySell(holding, price, qty)
		if errors.Is(err, position.ErrNoPosition) {
			return nil, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
		}
		if errors.Is(err, position.ErrInsufficientShares) {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientShares, symbol)
		}
		if err != nil {
			return nil, err
		}

		newBalance = account.Balance.Add(total)
		pnl := sell.RealizedPnL
		entry.RealizedPnL = &pnl

		if sell.Closed {
			if err := tx.DeleteHolding(ctx, symbol); err != nil {
				return nil, storeErr(err)
			}
		} else {
			if err := tx.PutHolding(ctx, sell.Holding); err != nil {
				return nil, storeErr(err)
			}
		}
	}

	if err := tx.SetBalance(ctx, newBalance); err != nil {
		return nil, storeErr(err)
	}
	if err := tx.AppendEntry(ctx, &entry); err != nil {
		return nil, storeErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr(err)
	}
	committed = true

	slog.Info("trade executed",
		"trade_id", entry.ID,
		"account", accountID,
		"symbol", symbol,
		"side", string(side),
		"price", price.String(),
		"qty", qty.String(),
		"total", total.String(),
		"new_balance", newBalance.String(),
	)

	return &Result{
		Entry:       entry,
		NewBalance:  newBalance,
		RealizedPnL: entry.RealizedPnL,
	}, nil
}

// Dashboard returns the account's cash balance, open holdings, and its 20
// most recent trades.
func (e *Executor) Dashboard(ctx context.Context, accountID string) (*model.Dashboard, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
		}
		return nil, storeErr(err)
	}

	holdings, err := e.store.ListHoldings(ctx, accountID)
	if err != nil {
		return nil, storeErr(err)
	}
	if holdings == nil {
		holdings = []model.Holding{}
	}

	recent, _, err := e.store.QueryLedger(ctx, accountID, store.LedgerQuery{Limit: 20})
	if err != nil {
		return nil, storeErr(err)
	}
	if recent == nil {
		recent = []model.LedgerEntry{}
	}

	return &model.Dashboard{
		AccountID: accountID,
		Balance:   account.Balance,
		Holdings:  holdings,
		Recent:    recent,
	}, nil
}

// storeErr wraps unexpected persistence failures, preserving conflict and
// not-found sentinels for the callers that branch on them.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrTxConflict) || errors.Is(err, store.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
