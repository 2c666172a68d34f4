package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/analyzer"
	"tradesim/internal/backtest"
	"tradesim/internal/config"
	"tradesim/internal/logger"
	"tradesim/internal/portfolio"
	"tradesim/pkg/model"
)

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Simulation.Seed = 42
	cfg.Simulation.TickInterval = 100 * time.Millisecond
	cfg.Backtest.Delay = 0
	cfg.Backtest.RunsPerMinute = 0
	return cfg
}

func newTestSession(t *testing.T, mutate ...func(*config.Config)) *Session {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	s, err := NewSession(cfg,
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(logger.Discard()))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewSession_SeedsCatalog(t *testing.T) {
	s := newTestSession(t)

	assets := s.Ledger().Assets()
	require.Len(t, assets, 9)
	assert.Equal(t, "AAPL", assets[0].Symbol)
	assert.Equal(t, 182.63, assets[0].CurrentPrice)
	for _, a := range assets {
		assert.Len(t, a.PriceHistory, 31, a.Symbol)
		assert.Len(t, a.DailyData, 30, a.Symbol)
		assert.False(t, a.Held())
	}
	assert.Equal(t, 100000.0, s.Ledger().Cash())
	assert.Len(t, s.Strategies(), 3)
}

func TestNewSession_Reproducible(t *testing.T) {
	a := newTestSession(t)
	b := newTestSession(t)

	a.TickPrices()
	b.TickPrices()
	assert.Equal(t, a.Ledger().Assets(), b.Ledger().Assets())
}

func TestNewSession_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Indicators.Enabled = []string{"macd"}
	_, err := NewSession(cfg, WithLogger(logger.Discard()))
	assert.ErrorContains(t, err, "unknown indicator")

	cfg = testConfig()
	cfg.Backtest.Strategies = []string{"martingale"}
	_, err = NewSession(cfg, WithLogger(logger.Discard()))
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Simulation.OHLCDays = 1
	_, err = NewSession(cfg, WithLogger(logger.Discard()))
	assert.ErrorContains(t, err, "invalid config")
}

func TestTickPrices(t *testing.T) {
	s := newTestSession(t)
	ok, err := s.AddPosition("1", 5)
	require.NoError(t, err)
	require.True(t, ok)

	before, _ := s.Ledger().Asset("1")
	s.TickPrices()
	after, _ := s.Ledger().Asset("1")

	assert.Len(t, after.PriceHistory, len(before.PriceHistory))
	assert.Len(t, after.DailyData, len(before.DailyData))
	assert.Equal(t, before.DailyData[1], after.DailyData[0], "window shifts by one bar")
	assert.InDelta(t, before.CurrentPrice, after.CurrentPrice, 10)
	assert.InDelta(t, after.CurrentPrice-before.CurrentPrice, after.ChangeAbs, 1e-9)
	assert.Equal(t, 5, after.QuantityHeld)
	assert.Equal(t, before.AvgBuyPrice, after.AvgBuyPrice)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().TicksTotal))
}

func TestTrade_RecordsMetrics(t *testing.T) {
	s := newTestSession(t)

	tx, err := s.Trade("2", model.Buy, 10)
	require.NoError(t, err)
	assert.Equal(t, "2", tx.AssetID)
	assert.NotEmpty(t, tx.ID)

	_, err = s.Trade("2", model.Sell, 11)
	assert.ErrorIs(t, err, portfolio.ErrInsufficientShares)
	_, err = s.Trade("2", model.Buy, 1000)
	assert.ErrorIs(t, err, portfolio.ErrInsufficientFunds)

	m := s.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("buy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradeRejections.WithLabelValues("insufficient_shares")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradeRejections.WithLabelValues("insufficient_funds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PositionsHeld))
}

func TestPositions(t *testing.T) {
	s := newTestSession(t)

	ok, err := s.AddPosition("3", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AddPosition("3", 4)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.UpdateShares("3", 12))
	a, _ := s.Ledger().Asset("3")
	assert.Equal(t, 12, a.QuantityHeld)

	s.RemovePosition("3")
	assert.Empty(t, s.Ledger().Held())

	_, err = s.AddPosition("x", 1)
	assert.ErrorIs(t, err, portfolio.ErrUnknownAsset)
	assert.ErrorIs(t, s.UpdateShares("x", 1), portfolio.ErrUnknownAsset)
}

func TestRunBacktest(t *testing.T) {
	s := newTestSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.RunBacktest(ctx, 0).Wait(ctx)
	assert.ErrorIs(t, err, backtest.ErrEmptyPortfolio)

	_, err = s.AddPosition("1", 10)
	require.NoError(t, err)

	results, err := s.RunBacktest(ctx, 0).Wait(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Len(t, r.History, 30)
		assert.Equal(t, 30, r.Trades)
		assert.GreaterOrEqual(t, r.WinRate, 0.0)
		assert.LessOrEqual(t, r.WinRate, 100.0)
	}
	assert.False(t, s.Backtesting())
}

func TestClose_CancelsBacktests(t *testing.T) {
	s := newTestSession(t, func(c *config.Config) { c.Backtest.Delay = time.Hour })
	_, err := s.AddPosition("1", 1)
	require.NoError(t, err)

	task := s.RunBacktest(context.Background(), 5)
	assert.True(t, s.Backtesting())

	s.Close()
	_, err = task.Result()
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Backtesting())
}

func TestTicker_StartStop(t *testing.T) {
	s := newTestSession(t)

	require.NoError(t, s.StartTicker())
	require.NoError(t, s.StartTicker())
	assert.True(t, s.Ticking())

	ticks := s.Metrics().TicksTotal
	require.Eventually(t, func() bool { return testutil.ToFloat64(ticks) >= 2 }, 3*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.Ticking())

	stopped := testutil.ToFloat64(ticks)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, stopped, testutil.ToFloat64(ticks))
}

func TestDashboard(t *testing.T) {
	s := newTestSession(t)

	d, err := s.Dashboard("1")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", d.Symbol)
	assert.Len(t, d.ShortMA, 31)
	assert.NotZero(t, d.LatestShortMA)
	assert.GreaterOrEqual(t, d.LatestRSI, 0.0)
	assert.LessOrEqual(t, d.LatestRSI, 100.0)
	assert.NotNil(t, d.Patterns)

	enabled, err := s.ToggleMetric(analyzer.MetricRSI)
	require.NoError(t, err)
	assert.False(t, enabled)
	d, err = s.Dashboard("1")
	require.NoError(t, err)
	assert.Nil(t, d.RSI)

	_, err = s.ToggleMetric("macd")
	assert.Error(t, err)

	_, err = s.Dashboard("nope")
	assert.ErrorIs(t, err, portfolio.ErrUnknownAsset)

	patterns, err := s.Patterns("1")
	require.NoError(t, err)
	assert.Equal(t, d.Patterns, patterns)
}
