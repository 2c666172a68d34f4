package portfolio

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/logger"
	"tradesim/pkg/model"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestLedger(cash float64) *Ledger {
	n := 0
	return NewLedger(cash,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("tx-%d", n) }),
		WithLogger(logger.Discard()),
	)
}

func asset(id string, price float64) model.Asset {
	return model.Asset{
		ID:           id,
		Name:         "Asset " + id,
		Symbol:       id,
		CurrentPrice: price,
		PriceHistory: []model.PricePoint{{Value: price, Time: fixedNow}},
		DailyData:    []model.OHLCBar{{Open: price, High: price, Low: price, Close: price}},
	}
}

func TestExecuteTrade_WeightedAverageCost(t *testing.T) {
	l := newTestLedger(DefaultStartingCash)
	l.Track(asset("1", 100))

	_, err := l.ExecuteTrade("1", model.Buy, 10)
	require.NoError(t, err)

	require.NoError(t, l.SetPrice("1", 200))
	tx, err := l.ExecuteTrade("1", model.Buy, 10)
	require.NoError(t, err)

	a, ok := l.Asset("1")
	require.True(t, ok)
	assert.Equal(t, 20, a.QuantityHeld)
	assert.InDelta(t, 150.0, a.AvgBuyPrice, 1e-9)
	assert.InDelta(t, DefaultStartingCash-3000, l.Cash(), 1e-9)

	assert.Equal(t, "tx-2", tx.ID)
	assert.Equal(t, 200.0, tx.Price)
	assert.Equal(t, fixedNow, tx.Time)
	assert.Len(t, l.Transactions(), 2)
}

func TestExecuteTrade_SellKeepsAverageCost(t *testing.T) {
	l := newTestLedger(10000)
	l.Track(asset("1", 100))

	_, err := l.ExecuteTrade("1", model.Buy, 10)
	require.NoError(t, err)
	require.NoError(t, l.SetPrice("1", 120))

	tx, err := l.ExecuteTrade("1", model.Sell, 4)
	require.NoError(t, err)
	assert.Equal(t, model.Sell, tx.Kind)
	assert.Equal(t, 480.0, tx.Amount())

	a, _ := l.Asset("1")
	assert.Equal(t, 6, a.QuantityHeld)
	assert.Equal(t, 100.0, a.AvgBuyPrice)
	assert.InDelta(t, 10000-1000+480, l.Cash(), 1e-9)
}

func TestExecuteTrade_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		kind   model.TradeKind
		qty    int
		want   error
		reason string
	}{
		{"insufficient funds", "1", model.Buy, 101, ErrInsufficientFunds, "insufficient_funds"},
		{"insufficient shares", "1", model.Sell, 6, ErrInsufficientShares, "insufficient_shares"},
		{"zero quantity", "1", model.Buy, 0, ErrInvalidQuantity, "invalid_quantity"},
		{"negative quantity", "1", model.Sell, -3, ErrInvalidQuantity, "invalid_quantity"},
		{"unknown asset", "nope", model.Buy, 1, ErrUnknownAsset, "unknown_asset"},
		{"unknown kind", "1", model.TradeKind("short"), 1, ErrInvalidKind, "invalid_kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(10500)
			l.Track(asset("1", 100))
			_, err := l.ExecuteTrade("1", model.Buy, 5)
			require.NoError(t, err)

			before := l.Snapshot()

			tx, err := l.ExecuteTrade(tt.id, tt.kind, tt.qty)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.reason, Reason(err))
			assert.Equal(t, model.Transaction{}, tx)

			var tradeErr *TradeError
			require.True(t, errors.As(err, &tradeErr))
			assert.Equal(t, tt.id, tradeErr.AssetID)
			assert.Equal(t, tt.qty, tradeErr.Quantity)

			assert.Equal(t, before, l.Snapshot(), "rejected trade must not change state")
		})
	}
}

func TestAddPosition(t *testing.T) {
	l := newTestLedger(0)

	assert.True(t, l.AddPosition(asset("1", 50), 0))
	a, _ := l.Asset("1")
	assert.Equal(t, 1, a.QuantityHeld, "shares clamp to 1")
	assert.Equal(t, 50.0, a.AvgBuyPrice)

	assert.False(t, l.AddPosition(asset("1", 80), 7), "already held")
	a, _ = l.Asset("1")
	assert.Equal(t, 1, a.QuantityHeld)
	assert.Equal(t, 50.0, a.CurrentPrice)

	// tracked but not held is replaced
	l.Track(asset("2", 10))
	assert.True(t, l.AddPosition(asset("2", 12), 3))
	a, _ = l.Asset("2")
	assert.Equal(t, 3, a.QuantityHeld)
	assert.Equal(t, 12.0, a.CurrentPrice)
	assert.Len(t, l.Assets(), 2)
}

func TestRemovePosition(t *testing.T) {
	l := newTestLedger(0)
	l.AddPosition(asset("1", 50), 4)

	l.RemovePosition("1")
	l.RemovePosition("missing")

	a, ok := l.Asset("1")
	require.True(t, ok)
	assert.False(t, a.Held())
	assert.Empty(t, l.Held())
}

func TestUpdateShares_RoundTrip(t *testing.T) {
	l := newTestLedger(0)
	l.AddPosition(asset("1", 50), 4)

	for _, n := range []int{7, 1, 0, -5, 250} {
		require.NoError(t, l.UpdateShares("1", n))
		a, _ := l.Asset("1")
		assert.Equal(t, max(1, n), a.QuantityHeld, "n=%d", n)
	}

	assert.ErrorIs(t, l.UpdateShares("missing", 3), ErrUnknownAsset)
}

func TestUnrealizedPnL(t *testing.T) {
	l := newTestLedger(10000)
	l.Track(asset("1", 100))

	pnl, err := l.UnrealizedPnL("1")
	require.NoError(t, err)
	assert.Zero(t, pnl, "nothing held")

	_, err = l.ExecuteTrade("1", model.Buy, 10)
	require.NoError(t, err)
	require.NoError(t, l.SetPrice("1", 112.5))

	pnl, err = l.UnrealizedPnL("1")
	require.NoError(t, err)
	assert.InDelta(t, 125.0, pnl, 1e-9)
	assert.InDelta(t, 125.0, l.TotalPnL(), 1e-9)

	_, err = l.UnrealizedPnL("missing")
	assert.ErrorIs(t, err, ErrUnknownAsset)
}

func TestReprice_PreservesPosition(t *testing.T) {
	l := newTestLedger(10000)
	l.Track(asset("1", 100))
	l.Track(asset("2", 20))
	_, err := l.ExecuteTrade("1", model.Buy, 3)
	require.NoError(t, err)

	l.Reprice(func(a model.Asset) model.Asset {
		a.CurrentPrice *= 2
		a.QuantityHeld = 999
		a.AvgBuyPrice = 1
		return a
	})

	a, _ := l.Asset("1")
	assert.Equal(t, 200.0, a.CurrentPrice)
	assert.Equal(t, 3, a.QuantityHeld)
	assert.Equal(t, 100.0, a.AvgBuyPrice)

	b, _ := l.Asset("2")
	assert.Equal(t, 40.0, b.CurrentPrice)
	assert.Zero(t, b.QuantityHeld)
}

func TestReadsReturnCopies(t *testing.T) {
	l := newTestLedger(0)
	l.AddPosition(asset("1", 50), 2)

	held := l.Held()
	held[0].QuantityHeld = 100
	held[0].PriceHistory[0].Value = -1

	a, _ := l.Asset("1")
	assert.Equal(t, 2, a.QuantityHeld)
	assert.Equal(t, 50.0, a.PriceHistory[0].Value)
}

func TestAllocationAndSnapshot(t *testing.T) {
	l := newTestLedger(1000)
	l.AddPosition(asset("1", 30), 10) // 300
	l.AddPosition(asset("2", 100), 1) // 100
	l.Track(asset("3", 5))

	alloc := l.Allocation()
	require.Len(t, alloc, 2)
	assert.Equal(t, "1", alloc[0].AssetID)
	assert.InDelta(t, 75.0, alloc[0].Pct, 1e-9)
	assert.InDelta(t, 25.0, alloc[1].Pct, 1e-9)

	snap := l.Snapshot()
	assert.Equal(t, 1000.0, snap.Cash)
	assert.Equal(t, 400.0, snap.TotalValue)
	assert.Len(t, snap.Positions, 2)
	assert.Equal(t, fixedNow, snap.Time)
}

func TestClampQuantity(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{5, 5},
		{2.9, 2},
		{0.4, 1},
		{0, 1},
		{-12, 1},
		{math.NaN(), 1},
		{math.Inf(1), 1},
		{math.Inf(-1), 1},
		{1e12, math.MaxInt32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampQuantity(tt.in), "in=%v", tt.in)
	}
}

func TestOpenPosition(t *testing.T) {
	l := newTestLedger(0)
	l.Track(asset("1", 40))

	ok, err := l.OpenPosition("1", -2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.OpenPosition("1", 9)
	require.NoError(t, err)
	assert.False(t, ok, "already held")

	a, _ := l.Asset("1")
	assert.Equal(t, 1, a.QuantityHeld)
	assert.Equal(t, 40.0, a.AvgBuyPrice)

	_, err = l.OpenPosition("missing", 1)
	assert.ErrorIs(t, err, ErrUnknownAsset)
}

func TestReopenAfterFullSell_ResetsCostBasis(t *testing.T) {
	tests := []struct {
		name   string
		reopen func(l *Ledger) error
	}{
		{"open position", func(l *Ledger) error {
			_, err := l.OpenPosition("1", 5)
			return err
		}},
		{"update shares", func(l *Ledger) error {
			return l.UpdateShares("1", 5)
		}},
		{"add position", func(l *Ledger) error {
			a, _ := l.Asset("1")
			l.AddPosition(a, 5)
			return nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(10000)
			l.Track(asset("1", 100))

			_, err := l.ExecuteTrade("1", model.Buy, 10)
			require.NoError(t, err)
			_, err = l.ExecuteTrade("1", model.Sell, 10)
			require.NoError(t, err)
			require.NoError(t, l.SetPrice("1", 200))

			require.NoError(t, tt.reopen(l))

			a, _ := l.Asset("1")
			assert.Equal(t, 5, a.QuantityHeld)
			assert.Equal(t, 200.0, a.AvgBuyPrice)

			pnl, err := l.UnrealizedPnL("1")
			require.NoError(t, err)
			assert.Zero(t, pnl)
		})
	}
}

func TestTotals_SumInTrackingOrder(t *testing.T) {
	l := newTestLedger(0)
	// 1e16 absorbs a lone +1, so only left-to-right order yields exactly 1e16
	l.AddPosition(asset("big", 1e16), 1)
	l.AddPosition(asset("b", 1), 1)
	l.AddPosition(asset("c", 1), 1)

	for range 50 {
		assert.Equal(t, 1e16, l.TotalValue())
		assert.Equal(t, 1e16, l.Snapshot().TotalValue)
		assert.Zero(t, l.TotalPnL())
	}
}
