package analyzer

import (
	"math"

	"tradesim/pkg/model"
)

// MovingAverage returns the simple moving average of every window ending
// at i. Indices before the first full window hold 0.
func MovingAverage(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	if period <= 0 {
		return out
	}

	for i := period - 1; i < len(prices); i++ {
		var sum float64
		for _, p := range prices[i-period+1 : i+1] {
			sum += p
		}
		out[i] = sum / float64(period)
	}
	return out
}

// Volatility returns the population standard deviation of every window
// ending at i. Indices before the first full window hold 0.
func Volatility(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	if period <= 0 {
		return out
	}

	for i := period - 1; i < len(prices); i++ {
		window := prices[i-period+1 : i+1]

		var sum float64
		for _, p := range window {
			sum += p
		}
		avg := sum / float64(period)

		var variance float64
		for _, p := range window {
			variance += math.Pow(p-avg, 2)
		}
		out[i] = math.Sqrt(variance / float64(period))
	}
	return out
}

// RSI returns the Relative Strength Index over simple averages of the last
// period price changes. Indices below period hold 0.
func RSI(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	if period <= 0 {
		return out
	}

	for i := period; i < len(prices); i++ {
		var gains, losses float64
		for j := i - period + 1; j <= i; j++ {
			change := prices[j] - prices[j-1]
			if change > 0 {
				gains += change
			} else {
				losses -= change
			}
		}

		avgGain := gains / float64(period)
		avgLoss := losses / float64(period)

		// a window without losses (flat included) is pinned to RS=100
		rs := 100.0
		if avgLoss != 0 {
			rs = avgGain / avgLoss
		}
		out[i] = 100 - (100 / (1 + rs))
	}
	return out
}

// Closes extracts the values of a price history
func Closes(history []model.PricePoint) []float64 {
	out := make([]float64, len(history))
	for i, p := range history {
		out[i] = p.Value
	}
	return out
}

// BarCloses extracts bar closes
func BarCloses(bars []model.OHLCBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Last returns the final element of a series, or 0 when empty
func Last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// RSISignal interprets an RSI value
func RSISignal(rsi float64) string {
	if rsi > 70 {
		return "overbought"
	} else if rsi < 30 {
		return "oversold"
	}
	return "neutral"
}

// TrendSignal compares price with its short and long averages
func TrendSignal(price, maShort, maLong float64) string {
	if maShort == 0 || maLong == 0 {
		return "neutral"
	}
	if price > maShort && maShort > maLong {
		return "uptrend"
	} else if price < maShort && maShort < maLong {
		return "downtrend"
	}
	return "neutral"
}

// Metric identifies a dashboard indicator
type Metric string

const (
	MetricMA5        Metric = "ma5"
	MetricMA10       Metric = "ma10"
	MetricVolatility Metric = "volatility"
	MetricRSI        Metric = "rsi"
	MetricPatterns   Metric = "patterns"
)

// DefaultMetrics is the metric set enabled out of the box
var DefaultMetrics = []Metric{MetricMA5, MetricMA10, MetricVolatility, MetricRSI, MetricPatterns}

// TechnicalConfig holds indicator windows
type TechnicalConfig struct {
	ShortMA          int
	LongMA           int
	VolatilityWindow int
	RSIPeriod        int
	ChartBars        int // bars shown on the candlestick chart
	Enabled          []Metric
}

// DefaultTechnicalConfig returns the dashboard defaults
func DefaultTechnicalConfig() TechnicalConfig {
	return TechnicalConfig{
		ShortMA:          5,
		LongMA:           10,
		VolatilityWindow: 10,
		RSIPeriod:        14,
		ChartBars:        20,
		Enabled:          DefaultMetrics,
	}
}

// Dashboard holds the computed analytics for one asset
type Dashboard struct {
	AssetID string  `json:"asset_id"`
	Symbol  string  `json:"symbol"`
	Price   float64 `json:"price"`

	// windows the series below were computed with
	ShortWindow      int `json:"short_window"`
	LongWindow       int `json:"long_window"`
	VolatilityWindow int `json:"volatility_window"`
	RSIPeriod        int `json:"rsi_period"`

	ShortMA    []float64 `json:"short_ma,omitempty"`
	LongMA     []float64 `json:"long_ma,omitempty"`
	Volatility []float64 `json:"volatility,omitempty"`
	RSI        []float64 `json:"rsi,omitempty"`

	LatestShortMA    float64 `json:"latest_short_ma"`
	LatestLongMA     float64 `json:"latest_long_ma"`
	LatestVolatility float64 `json:"latest_volatility"`
	LatestRSI        float64 `json:"latest_rsi"`
	RSISignal        string  `json:"rsi_signal,omitempty"`
	TrendSignal      string  `json:"trend_signal,omitempty"`

	Patterns      []model.Pattern `json:"patterns,omitempty"`
	ChartPatterns []model.Pattern `json:"chart_patterns,omitempty"`
}

// TechnicalAnalyzer computes the enabled dashboard metrics
type TechnicalAnalyzer struct {
	config   TechnicalConfig
	enabled  map[Metric]bool
	detector *PatternDetector
}

// NewTechnicalAnalyzer creates a new technical analyzer
func NewTechnicalAnalyzer(cfg TechnicalConfig) *TechnicalAnalyzer {
	enabled := make(map[Metric]bool, len(cfg.Enabled))
	for _, m := range cfg.Enabled {
		enabled[m] = true
	}
	return &TechnicalAnalyzer{
		config:   cfg,
		enabled:  enabled,
		detector: NewPatternDetector(),
	}
}

// Enabled reports whether a metric is switched on
func (t *TechnicalAnalyzer) Enabled(m Metric) bool {
	return t.enabled[m]
}

// Toggle flips a metric and returns its new state
func (t *TechnicalAnalyzer) Toggle(m Metric) bool {
	t.enabled[m] = !t.enabled[m]
	return t.enabled[m]
}

// Analyze computes the dashboard for an asset
func (t *TechnicalAnalyzer) Analyze(asset model.Asset) *Dashboard {
	prices := Closes(asset.PriceHistory)

	d := &Dashboard{
		AssetID: asset.ID,
		Symbol:  asset.Symbol,
		Price:   asset.CurrentPrice,

		ShortWindow:      t.config.ShortMA,
		LongWindow:       t.config.LongMA,
		VolatilityWindow: t.config.VolatilityWindow,
		RSIPeriod:        t.config.RSIPeriod,
	}

	if t.enabled[MetricMA5] {
		d.ShortMA = MovingAverage(prices, t.config.ShortMA)
		d.LatestShortMA = Last(d.ShortMA)
	}
	if t.enabled[MetricMA10] {
		d.LongMA = MovingAverage(prices, t.config.LongMA)
		d.LatestLongMA = Last(d.LongMA)
	}
	if t.enabled[MetricVolatility] {
		d.Volatility = Volatility(prices, t.config.VolatilityWindow)
		d.LatestVolatility = Last(d.Volatility)
	}
	if t.enabled[MetricRSI] {
		d.RSI = RSI(prices, t.config.RSIPeriod)
		d.LatestRSI = Last(d.RSI)
		d.RSISignal = RSISignal(d.LatestRSI)
	}
	if d.ShortMA != nil && d.LongMA != nil {
		d.TrendSignal = TrendSignal(asset.CurrentPrice, d.LatestShortMA, d.LatestLongMA)
	}
	if t.enabled[MetricPatterns] {
		d.Patterns = t.detector.Detect(asset.DailyData)
		d.ChartPatterns = PatternsInWindow(d.Patterns, len(asset.DailyData), t.config.ChartBars)
	}

	return d
}
