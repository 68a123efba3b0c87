package trade

import (
	"context"
	"fmt"

	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/store"
)

// HistoryQuery selects a page of an account's ledger.
//
// Zero values mean "not provided" and take the documented defaults; only
// out-of-range values (negative page or limit, unknown side, sort field,
// or sort order) are rejected as invalid input.
type HistoryQuery struct {
	// Page is 1-indexed. Zero defaults to 1.
	Page int

	// Limit bounds the page size and must be positive. Zero defaults to
	// DefaultPageSize.
	Limit int

	// Symbol is a case-insensitive substring match; empty matches all.
	Symbol string

	// Side filters to BUY or SELL; empty matches both.
	Side model.Side

	// SortField is one of created_at, symbol, price, quantity, total,
	// realized_pnl. Empty defaults to created_at.
	SortField string

	// SortOrder is "asc" or "desc". Empty defaults to "desc".
	SortOrder string
}

// DefaultPageSize is the history page size when none is requested.
const DefaultPageSize = 10

var historySortFields = map[string]bool{
	"created_at":   true,
	"symbol":       true,
	"price":        true,
	"quantity":     true,
	"total":        true,
	"realized_pnl": true,
}

// HistoryPage is one page of ledger entries plus the pagination totals.
type HistoryPage struct {
	Entries    []model.LedgerEntry `json:"data"`
	TotalCount int64               `json:"total"`
	Page       int                 `json:"page"`
	PageCount  int                 `json:"pages"`
}

// History returns the requested page of the account's ledger, scoped
// strictly to that account. A page past the end returns an empty list, not
// an error.
func (e *Executor) History(ctx context.Context, accountID string, q HistoryQuery) (*HistoryPage, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageSize
	}
	if q.Page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", ErrInvalidInput)
	}
	if q.Limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	if q.Side != "" && !q.Side.Valid() {
		return nil, fmt.Errorf("%w: side filter must be BUY or SELL", ErrInvalidInput)
	}
	if q.SortField != "" && !historySortFields[q.SortField] {
		return nil, fmt.Errorf("%w: unknown sort field %q", ErrInvalidInput, q.SortField)
	}
	switch q.SortOrder {
	case "", "asc", "desc":
	default:
		return nil, fmt.Errorf("%w: sort order must be asc or desc", ErrInvalidInput)
	}

	entries, total, err := e.store.QueryLedger(ctx, accountID, store.LedgerQuery{
		Symbol:    q.Symbol,
		Side:      q.Side,
		SortField: q.SortField,
		Ascending: q.SortOrder == "asc",
		Offset:    (q.Page - 1) * q.Limit,
		Limit:     q.Limit,
	})
	if err != nil {
		return nil, storeErr(err)
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	pageCount := int((total + int64(q.Limit) - 1) / int64(q.Limit))

	return &HistoryPage{
		Entries:    entries,
		TotalCount: total,
		Page:       q.Page,
		PageCount:  pageCount,
	}, nil
}
