package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papertrade/trading-engine/internal/store"
)

// The correction operations below edit the ledger only. Deleting entries
// does NOT reverse their effect on the account balance or holdings: the
// ledger is a journal of what happened, not the source the balances are
// derived from. Callers correcting history get a cleaned journal and an
// unchanged account.

// SetNote overwrites the free-text note on one of the account's trades.
func (e *Executor) SetNote(ctx context.Context, accountID, tradeID, note string) error {
	if accountID == "" || tradeID == "" {
		return fmt.Errorf("%w: account id and trade id are required", ErrInvalidInput)
	}

	err := e.store.UpdateNote(ctx, accountID, tradeID, note)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: trade %s", ErrNotFound, tradeID)
	}
	return storeErr(err)
}

// DeleteTrade removes one ledger entry owned by the account.
func (e *Executor) DeleteTrade(ctx context.Context, accountID, tradeID string) error {
	if accountID == "" || tradeID == "" {
		return fmt.Errorf("%w: account id and trade id are required", ErrInvalidInput)
	}

	err := e.store.DeleteEntry(ctx, accountID, tradeID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: trade %s", ErrNotFound, tradeID)
	}
	if err != nil {
		return storeErr(err)
	}

	slog.Info("trade deleted", "account", accountID, "trade_id", tradeID)
	return nil
}

// ResetHistory deletes the account's entire ledger and returns the number
// of entries removed.
func (e *Executor) ResetHistory(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}

	deleted, err := e.store.DeleteAllEntries(ctx, accountID)
	if err != nil {
		return 0, storeErr(err)
	}

	slog.Info("trade history reset", "account", accountID, "deleted", deleted)
	return deleted, nil
}
