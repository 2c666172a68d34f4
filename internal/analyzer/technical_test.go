package analyzer

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/pkg/model"
)

func constantSeries(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func rampSeries(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestMovingAverage_Constant(t *testing.T) {
	for _, period := range []int{1, 5, 10, 30} {
		ma := MovingAverage(constantSeries(7.5, 30), period)
		require.Len(t, ma, 30)
		for i, v := range ma {
			if i < period-1 {
				assert.Equal(t, 0.0, v, "period %d index %d", period, i)
			} else {
				assert.InDelta(t, 7.5, v, 1e-9, "period %d index %d", period, i)
			}
		}
	}
}

func TestMovingAverage_Window(t *testing.T) {
	ma := MovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	assert.Equal(t, []float64{0, 0, 2, 3, 4}, ma)
}

func TestMovingAverage_DegenerateInput(t *testing.T) {
	assert.Empty(t, MovingAverage(nil, 5))
	assert.Equal(t, []float64{0, 0}, MovingAverage([]float64{1, 2}, 5))
	assert.Equal(t, []float64{0, 0, 0}, MovingAverage([]float64{1, 2, 3}, 0))
}

func TestVolatility(t *testing.T) {
	t.Run("constant series", func(t *testing.T) {
		for _, v := range Volatility(constantSeries(2456.75, 20), 10) {
			assert.Equal(t, 0.0, v)
		}
	})

	t.Run("population std-dev", func(t *testing.T) {
		vol := Volatility([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
		require.Len(t, vol, 8)
		assert.InDelta(t, 2.0, vol[7], 1e-12)
		for _, v := range vol[:7] {
			assert.Equal(t, 0.0, v)
		}
	})
}

func TestRSI_Monotonic(t *testing.T) {
	up := RSI(rampSeries(100, 1.5, 40), 14)
	down := RSI(rampSeries(200, -1.5, 40), 14)

	for i := 0; i < 14; i++ {
		assert.Equal(t, 0.0, up[i])
		assert.Equal(t, 0.0, down[i])
	}
	for i := 14; i < 40; i++ {
		assert.InDelta(t, 100.0, up[i], 1.0)
		assert.Equal(t, 0.0, down[i])
	}
}

func TestRSI_FlatWindowTieBreak(t *testing.T) {
	rsi := RSI(constantSeries(50, 20), 14)
	want := 100 - 100.0/101.0
	for i := 14; i < 20; i++ {
		assert.Equal(t, want, rsi[i])
	}
}

func TestRSI_Balanced(t *testing.T) {
	prices := make([]float64, 15)
	prices[0] = 100
	for i := 1; i < len(prices); i++ {
		if i%2 == 1 {
			prices[i] = prices[i-1] + 1
		} else {
			prices[i] = prices[i-1] - 1
		}
	}

	rsi := RSI(prices, 14)
	assert.InDelta(t, 50.0, rsi[14], 1e-9)
}

func TestRSI_Bounded(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	prices := make([]float64, 500)
	prices[0] = 1000
	for i := 1; i < len(prices); i++ {
		prices[i] = prices[i-1] + rng.Float64()*40 - 20
	}

	for _, period := range []int{2, 5, 14, 30} {
		for _, v := range RSI(prices, period) {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestRSISignal(t *testing.T) {
	assert.Equal(t, "overbought", RSISignal(75))
	assert.Equal(t, "oversold", RSISignal(25))
	assert.Equal(t, "neutral", RSISignal(70))
	assert.Equal(t, "neutral", RSISignal(30))
}

func TestTrendSignal(t *testing.T) {
	assert.Equal(t, "uptrend", TrendSignal(110, 105, 100))
	assert.Equal(t, "downtrend", TrendSignal(90, 95, 100))
	assert.Equal(t, "neutral", TrendSignal(100, 0, 100))
	assert.Equal(t, "neutral", TrendSignal(101, 99, 100))
}

func testAsset() model.Asset {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := make([]model.PricePoint, 31)
	for i := range history {
		history[i] = model.PricePoint{Value: 100 + float64(i), Time: start.AddDate(0, 0, i)}
	}
	return model.Asset{
		ID:           "1",
		Symbol:       "TEST",
		CurrentPrice: 130,
		PriceHistory: history,
		DailyData: []model.OHLCBar{
			bar(100, 101, 99, 100.5),
			bar(100.5, 101, 99.5, 100),
			bar(100, 100, 90, 100),
		},
	}
}

func TestTechnicalAnalyzer_Analyze(t *testing.T) {
	a := NewTechnicalAnalyzer(DefaultTechnicalConfig())
	d := a.Analyze(testAsset())

	require.Len(t, d.ShortMA, 31)
	assert.InDelta(t, 128.0, d.LatestShortMA, 1e-9)  // mean of 126..130
	assert.InDelta(t, 125.5, d.LatestLongMA, 1e-9)   // mean of 121..130
	assert.InDelta(t, 2.8722813, d.LatestVolatility, 1e-6)
	assert.Equal(t, "overbought", d.RSISignal)
	assert.Equal(t, "uptrend", d.TrendSignal)
	assert.Equal(t, []string{PatternHangingMan, PatternDoji}, names(d.Patterns))
	assert.Len(t, d.ChartPatterns, 2)
	assert.Equal(t, []int{5, 10, 10, 14}, []int{d.ShortWindow, d.LongWindow, d.VolatilityWindow, d.RSIPeriod})
}

func TestTechnicalAnalyzer_Toggle(t *testing.T) {
	a := NewTechnicalAnalyzer(DefaultTechnicalConfig())

	assert.False(t, a.Toggle(MetricRSI))
	assert.False(t, a.Toggle(MetricPatterns))

	d := a.Analyze(testAsset())
	assert.Nil(t, d.RSI)
	assert.Empty(t, d.RSISignal)
	assert.Nil(t, d.Patterns)
	assert.NotNil(t, d.ShortMA)

	assert.True(t, a.Toggle(MetricRSI))
	assert.True(t, a.Enabled(MetricRSI))
}
