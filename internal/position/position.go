// Package position implements the cost-basis accounting for a single
// holding: weighted-average entry price on buys, realized profit/loss on
// sells.
//
// Everything here is a pure function of its inputs — no store access, no
// hidden state — so the math is testable without any persistence layer.
// The average price is recomputed on buys only. A partial sell reduces
// quantity and leaves the average untouched; that asymmetry is intentional
// (average cost basis does not change when part of a position is closed).
//
// All monetary values use shopspring/decimal — never float64 for money.
package position

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

var (
	// ErrNoPosition is returned when selling a symbol with no open holding.
	ErrNoPosition = errors.New("position: no open position for symbol")

	// ErrInsufficientShares is returned when a sell quantity exceeds the
	// held quantity.
	ErrInsufficientShares = errors.New("position: sell quantity exceeds held quantity")
)

// ApplyBuy returns the holding state after buying qty units at price.
// A nil holding means no position is open yet; the result is then a fresh
// holding at the buy price. Otherwise the average entry price becomes the
// quantity-weighted mean:
//
//	newAvg = (oldQty*oldAvg + qty*price) / (oldQty + qty)
//
// Callers must validate price > 0 and qty > 0 before calling.
func ApplyBuy(h *model.Holding, accountID, symbol string, price, qty decimal.Decimal) model.Holding {
	if h == nil || h.Quantity.IsZero() {
		return model.Holding{
			AccountID: accountID,
			Symbol:    symbol,
			Quantity:  qty,
			AvgPrice:  price,
		}
	}

	newQty := h.Quantity.Add(qty)
	newAvg := h.Quantity.Mul(h.AvgPrice).Add(qty.Mul(price)).Div(newQty)

	return model.Holding{
		AccountID: h.AccountID,
		Symbol:    h.Symbol,
		Quantity:  newQty,
		AvgPrice:  newAvg,
	}
}

// SellResult is the outcome of applying a sell to a holding.
type SellResult struct {
	// Holding is the remaining position. Meaningless when Closed is true.
	Holding model.Holding

	// Closed reports that the sell consumed the entire position and the
	// holding row must be deleted.
	Closed bool

	// RealizedPnL = (sellPrice − avgPriceAtTimeOfSale) × qty.
	RealizedPnL decimal.Decimal
}

// ApplySell returns the holding state and realized P/L after selling qty
// units at price. The average price is never recomputed here — only the
// quantity shrinks.
func ApplySell(h *model.Holding, price, qty decimal.Decimal) (SellResult, error) {
	if h == nil || h.Quantity.IsZero() {
		return SellResult{}, ErrNoPosition
	}
	if h.Quantity.LessThan(qty) {
		return SellResult{}, ErrInsufficientShares
	}

	pnl := price.Sub(h.AvgPrice).Mul(qty)
	remaining := h.Quantity.Sub(qty)

	if remaining.LessThanOrEqual(decimal.Zero) {
		return SellResult{Closed: true, RealizedPnL: pnl}, nil
	}

	return SellResult{
		Holding: model.Holding{
			AccountID: h.AccountID,
			Symbol:    h.Symbol,
			Quantity:  remaining,
			AvgPrice:  h.AvgPrice,
		},
		RealizedPnL: pnl,
	}, nil
}
