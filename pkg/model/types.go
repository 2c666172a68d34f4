package model

import "time"

// PricePoint is a single recorded price
type PricePoint struct {
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// OHLCBar represents one synthetic trading period
type OHLCBar struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Body returns the absolute distance between open and close
func (b OHLCBar) Body() float64 {
	if b.Close > b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Range returns high minus low
func (b OHLCBar) Range() float64 {
	return b.High - b.Low
}

// Asset represents a tracked stock and the position held in it
type Asset struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Symbol       string       `json:"symbol"`
	CurrentPrice float64      `json:"current_price"`
	ChangeAbs    float64      `json:"change_abs"`
	ChangePct    float64      `json:"change_pct"`
	QuantityHeld int          `json:"quantity_held"`
	AvgBuyPrice  float64      `json:"avg_buy_price"` // meaningful only when QuantityHeld > 0
	PriceHistory []PricePoint `json:"price_history"`
	DailyData    []OHLCBar    `json:"daily_data"`
}

// Held reports whether a position is open
func (a Asset) Held() bool {
	return a.QuantityHeld > 0
}

// Value returns the market value of the held quantity
func (a Asset) Value() float64 {
	return a.CurrentPrice * float64(a.QuantityHeld)
}

// Clone returns a copy that shares no slices with a
func (a Asset) Clone() Asset {
	c := a
	if a.PriceHistory != nil {
		c.PriceHistory = make([]PricePoint, len(a.PriceHistory))
		copy(c.PriceHistory, a.PriceHistory)
	}
	if a.DailyData != nil {
		c.DailyData = make([]OHLCBar, len(a.DailyData))
		copy(c.DailyData, a.DailyData)
	}
	return c
}

// CloneAssets deep-copies a slice of assets
func CloneAssets(assets []Asset) []Asset {
	out := make([]Asset, len(assets))
	for i, a := range assets {
		out[i] = a.Clone()
	}
	return out
}

// TradeKind is the side of a transaction
type TradeKind string

const (
	Buy  TradeKind = "buy"
	Sell TradeKind = "sell"
)

// Transaction is an executed trade. Never mutated after creation.
type Transaction struct {
	ID       string    `json:"id"`
	AssetID  string    `json:"asset_id"`
	Kind     TradeKind `json:"kind"`
	Price    float64   `json:"price"`
	Quantity int       `json:"quantity"`
	Time     time.Time `json:"time"`
}

// Amount returns price * quantity
func (t Transaction) Amount() float64 {
	return t.Price * float64(t.Quantity)
}

// Bias is the direction a pattern points to
type Bias string

const (
	Bullish Bias = "bullish"
	Bearish Bias = "bearish"
	Neutral Bias = "neutral"
)

// Pattern is a candlestick pattern found at a bar index
type Pattern struct {
	Name    string `json:"name"`
	Index   int    `json:"index"`
	Bullish bool   `json:"bullish"`
	Bias    Bias   `json:"bias"`
}

// ValuePoint is one sample of a simulated equity curve
type ValuePoint struct {
	Time           time.Time `json:"time"`
	PortfolioValue float64   `json:"portfolio_value"`
}

// BacktestResult is the outcome of one strategy run
type BacktestResult struct {
	StrategyID string       `json:"strategy_id"`
	Strategy   string       `json:"strategy"`
	Profit     float64      `json:"profit"`
	Trades     int          `json:"trades"`
	Wins       int          `json:"wins"`
	WinRate    float64      `json:"win_rate"` // percent, 1 decimal
	History    []ValuePoint `json:"history"`
}

// Allocation is an asset's share of portfolio value
type Allocation struct {
	AssetID string  `json:"asset_id"`
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Pct     float64 `json:"pct"`
}
