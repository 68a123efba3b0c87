package trade_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/store"
	"github.com/papertrade/trading-engine/internal/trade"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newExec(t *testing.T) (*trade.Executor, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return trade.NewExecutor(ms), ms
}

func seedAccount(t *testing.T, ms *store.MemoryStore, id string, balance float64) {
	t.Helper()
	err := ms.CreateAccount(context.Background(), &model.Account{
		ID:        id,
		Balance:   d(balance),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

// --- Buy ---

func TestExecute_BuyInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)
	before := ms.Snapshot()

	// cost = 200000 * 0.01 = 2000 > 1000
	_, err := exec.Execute(ctx, "a1", "BTCUSDT", model.SideBuy, d(200000), d(0.01))
	assert.ErrorIs(t, err, trade.ErrInsufficientFunds)

	assert.Equal(t, before, ms.Snapshot(), "failed buy must leave no trace")
}

func TestExecute_BuySuccess(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)

	res, err := exec.Execute(ctx, "a1", "BTCUSDT", model.SideBuy, d(50000), d(0.01))
	require.NoError(t, err)

	assert.True(t, res.NewBalance.Equal(d(500)), "balance=%s", res.NewBalance)
	assert.Nil(t, res.RealizedPnL, "buys have no realized P/L")
	assert.Equal(t, model.SideBuy, res.Entry.Side)
	assert.True(t, res.Entry.Total.Equal(d(500)))

	holdings, err := ms.ListHoldings(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].Quantity.Equal(d(0.01)))
	assert.True(t, holdings[0].AvgPrice.Equal(d(50000)))
}

func TestExecute_BuyLowercaseSymbolNormalized(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)

	res, err := exec.Execute(ctx, "a1", " btcusdt ", model.SideBuy, d(100), d(1))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", res.Entry.Symbol)

	holdings, _ := ms.ListHoldings(ctx, "a1")
	require.Len(t, holdings, 1)
	assert.Equal(t, "BTCUSDT", holdings[0].Symbol)
}

func TestExecute_SecondBuyRecomputesWeightedAverage(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 10000)

	_, err := exec.Execute(ctx, "a1", "ETHUSDT", model.SideBuy, d(100), d(1))
	require.NoError(t, err)
	_, err = exec.Execute(ctx, "a1", "ETHUSDT", model.SideBuy, d(200), d(1))
	require.NoError(t, err)

	holdings, _ := ms.ListHoldings(ctx, "a1")
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].Quantity.Equal(d(2)))
	assert.True(t, holdings[0].AvgPrice.Equal(d(150)), "avg=%s", holdings[0].AvgPrice)
}

// --- Sell ---

func TestExecute_SellRealizesPnLAndClosesPosition(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)

	_, err := exec.Execute(ctx, "a1", "BTCUSDT", model.SideBuy, d(50000), d(0.01))
	require.NoError(t, err)

	res, err := exec.Execute(ctx, "a1", "BTCUSDT", model.SideSell, d(60000), d(0.01))
	require.NoError(t, err)

	require.NotNil(t, res.RealizedPnL)
	assert.True(t, res.RealizedPnL.Equal(d(100)), "pnl=%s", res.RealizedPnL)
	// 500 after the buy, +600 revenue.
	assert.True(t, res.NewBalance.Equal(d(1100)), "balance=%s", res.NewBalance)

	holdings, _ := ms.ListHoldings(ctx, "a1")
	assert.Empty(t, holdings, "full sell must remove the holding row")
}

func TestExecute_PartialSellKeepsAveragePrice(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)

	_, err := exec.Execute(ctx, "a1", "ETHUSDT", model.SideBuy, d(100), d(4))
	require.NoError(t, err)

	_, err = exec.Execute(ctx, "a1", "ETHUSDT", model.SideSell, d(150), d(1))
	require.NoError(t, err)

	holdings, _ := ms.ListHoldings(ctx, "a1")
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].Quantity.Equal(d(3)))
	assert.True(t, holdings[0].AvgPrice.Equal(d(100)), "partial sell must not move avg")
}

func TestExecute_SellNoPosition(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)

	_, err := exec.Execute(ctx, "a1", "DOGEUSDT", model.SideSell, d(1), d(1))
	assert.ErrorIs(t, err, trade.ErrNoPosition)
}

func TestExecute_SellInsufficientSharesLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)

	_, err := exec.Execute(ctx, "a1", "ETHUSDT", model.SideBuy, d(100), d(1))
	require.NoError(t, err)
	before := ms.Snapshot()

	_, err = exec.Execute(ctx, "a1", "ETHUSDT", model.SideSell, d(100), d(2))
	assert.ErrorIs(t, err, trade.ErrInsufficientShares)

	assert.Equal(t, before, ms.Snapshot(), "failed sell must leave no trace")
}

// --- Validation ---

func TestExecute_InvalidInput(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)

	tests := []struct {
		name      string
		accountID string
		symbol    string
		side      model.Side
		price     decimal.Decimal
		qty       decimal.Decimal
	}{
		{"missing account", "", "BTCUSDT", model.SideBuy, d(1), d(1)},
		{"empty symbol", "a1", "  ", model.SideBuy, d(1), d(1)},
		{"bad side", "a1", "BTCUSDT", model.Side("HOLD"), d(1), d(1)},
		{"zero price", "a1", "BTCUSDT", model.SideBuy, d(0), d(1)},
		{"negative price", "a1", "BTCUSDT", model.SideBuy, d(-5), d(1)},
		{"zero quantity", "a1", "BTCUSDT", model.SideBuy, d(1), d(0)},
		{"negative quantity", "a1", "BTCUSDT", model.SideSell, d(1), d(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Execute(ctx, tt.accountID, tt.symbol, tt.side, tt.price, tt.qty)
			assert.ErrorIs(t, err, trade.ErrInvalidInput)
		})
	}
}

func TestExecute_UnknownAccount(t *testing.T) {
	exec, _ := newExec(t)
	_, err := exec.Execute(context.Background(), "ghost", "BTCUSDT", model.SideBuy, d(1), d(1))
	assert.ErrorIs(t, err, trade.ErrNotFound)
}

// --- Accounting invariants ---

func TestExecute_BalanceConservation(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 10000)

	type step struct {
		side       model.Side
		price, qty float64
	}
	steps := []step{
		{model.SideBuy, 100, 10},
		{model.SideBuy, 120, 5},
		{model.SideSell, 130, 8},
		{model.SideBuy, 90, 3},
		{model.SideSell, 110, 10},
	}

	expected := d(10000)
	for _, st := range steps {
		_, err := exec.Execute(ctx, "a1", "ETHUSDT", st.side, d(st.price), d(st.qty))
		require.NoError(t, err)
		delta := d(st.price).Mul(d(st.qty))
		if st.side == model.SideBuy {
			expected = expected.Sub(delta)
		} else {
			expected = expected.Add(delta)
		}
	}

	a, err := ms.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(expected), "balance=%s want=%s", a.Balance, expected)
}

// TestExecute_ConcurrentBuysNeverOverspend launches concurrent buys that
// together would cost more than the balance and checks that the account
// never goes negative — a lost update would let two buys both spend the
// same cash.
func TestExecute_ConcurrentBuysNeverOverspend(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)

	const n = 10
	cost := d(250) // only 4 of the 10 can possibly fit

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exec.Execute(ctx, "a1", "BTCUSDT", model.SideBuy, cost, d(1))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !assert.ErrorIs(t, err, trade.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	a, err := ms.GetAccount(ctx, "a1")
	require.NoError(t, err)

	assert.False(t, a.Balance.IsNegative(), "balance went negative: %s", a.Balance)
	assert.Equal(t, 4, succeeded)
	spent := cost.Mul(decimal.NewFromInt(int64(succeeded)))
	assert.True(t, a.Balance.Equal(d(1000).Sub(spent)),
		"balance=%s, spent=%s", a.Balance, spent)
}

// --- Corrections: the journal-is-a-log gap ---
//
// Deleting ledger entries intentionally does NOT reverse their effect on
// the balance or holdings. These tests pin that behavior down so nobody
// "fixes" it by accident.

func TestDeleteTrade_DoesNotReverseItsEffects(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)

	res, err := exec.Execute(ctx, "a1", "BTCUSDT", model.SideBuy, d(100), d(2))
	require.NoError(t, err)

	require.NoError(t, exec.DeleteTrade(ctx, "a1", res.Entry.ID))

	a, _ := ms.GetAccount(ctx, "a1")
	assert.True(t, a.Balance.Equal(d(800)), "balance must keep the buy's debit")
	holdings, _ := ms.ListHoldings(ctx, "a1")
	assert.Len(t, holdings, 1, "holding must survive the journal edit")

	page, err := exec.History(ctx, "a1", trade.HistoryQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, page.TotalCount)
}

func TestDeleteTrade_NotOwned(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)
	seedAccount(t, ms, "a2", 1000)

	res, err := exec.Execute(ctx, "a1", "BTCUSDT", model.SideBuy, d(100), d(1))
	require.NoError(t, err)

	assert.ErrorIs(t, exec.DeleteTrade(ctx, "a2", res.Entry.ID), trade.ErrNotFound)
}

func TestResetHistory_CountsAndLeavesAccountAlone(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 10000)

	for i := 0; i < 3; i++ {
		_, err := exec.Execute(ctx, "a1", "ETHUSDT", model.SideBuy, d(100), d(1))
		require.NoError(t, err)
	}

	deleted, err := exec.ResetHistory(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	a, _ := ms.GetAccount(ctx, "a1")
	assert.True(t, a.Balance.Equal(d(9700)), "reset must not refund trades")
	holdings, _ := ms.ListHoldings(ctx, "a1")
	assert.Len(t, holdings, 1, "reset must not touch holdings")
}

func TestSetNote(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)

	res, err := exec.Execute(ctx, "a1", "BTCUSDT", model.SideBuy, d(100), d(1))
	require.NoError(t, err)

	require.NoError(t, exec.SetNote(ctx, "a1", res.Entry.ID, "breakout entry"))

	page, err := exec.History(ctx, "a1", trade.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "breakout entry", page.Entries[0].Note)

	assert.ErrorIs(t, exec.SetNote(ctx, "a1", "no-such-id", "x"), trade.ErrNotFound)
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	exec, ms := newExec(t)
	seedAccount(t, ms, "a1", 1000)

	_, err := exec.Execute(ctx, "a1", "BTCUSDT", model.SideBuy, d(100), d(1))
	require.NoError(t, err)

	dash, err := exec.Dashboard(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, dash.Balance.Equal(d(900)))
	assert.Len(t, dash.Holdings, 1)
	assert.Len(t, dash.Recent, 1)
}
