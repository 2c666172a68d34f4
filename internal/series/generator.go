// Package series produces synthetic price and OHLC history.
package series

import (
	"math"
	"math/rand/v2"
	"time"

	"tradesim/pkg/model"
)

// Source is the random source used by all stochastic code.
// *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// NewSeeded returns a reproducible source for the given seed
func NewSeeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Config holds live-update parameters
type Config struct {
	TickStep float64 // max absolute price change per tick
	Wick     float64 // max shadow added to a tick bar
}

// DefaultConfig returns the default tick parameters
func DefaultConfig() Config {
	return Config{
		TickStep: 10,
		Wick:     10,
	}
}

// Generator builds random-walk series from an injected source
type Generator struct {
	config Config
	rng    Source
	now    func() time.Time
}

// Option configures a Generator
type Option func(*Generator)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a new generator
func NewGenerator(cfg Config, rng Source, opts ...Option) *Generator {
	g := &Generator{
		config: cfg,
		rng:    rng,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// uniform returns a value in [lo, hi)
func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// GenerateHistory returns window+1 daily points ending today. Each step
// moves the running price by up to ±1%; recorded values are rounded to cents.
func (g *Generator) GenerateHistory(basePrice float64, window int) []model.PricePoint {
	if window < 0 {
		window = 0
	}

	today := g.now()
	price := basePrice
	history := make([]model.PricePoint, 0, window+1)

	for i := window; i >= 0; i-- {
		price = price * (1 + g.uniform(-0.01, 0.01))
		history = append(history, model.PricePoint{
			Value: Round(price, 2),
			Time:  today.AddDate(0, 0, -i),
		})
	}

	return history
}

// GenerateOHLC returns days independent bars scattered around basePrice
func (g *Generator) GenerateOHLC(basePrice float64, days int) []model.OHLCBar {
	if days < 0 {
		days = 0
	}

	bars := make([]model.OHLCBar, days)
	for i := range bars {
		open := basePrice + g.uniform(-100, 100)
		closePrice := open + g.uniform(-50, 50)
		high := math.Max(open, closePrice) + g.uniform(0, 50)
		low := math.Min(open, closePrice) - g.uniform(0, 50)
		bars[i] = model.OHLCBar{Open: open, High: high, Low: low, Close: closePrice}
	}
	return bars
}

// TickAsset applies one live update. The window lengths are preserved:
// the oldest point and bar are dropped and a new one is appended.
func (g *Generator) TickAsset(asset model.Asset) model.Asset {
	next := asset.Clone()

	change := g.uniform(-g.config.TickStep, g.config.TickStep)
	newPrice := asset.CurrentPrice + change

	next.CurrentPrice = newPrice
	next.ChangeAbs = change
	if asset.CurrentPrice != 0 {
		next.ChangePct = change / asset.CurrentPrice * 100
	} else {
		next.ChangePct = 0
	}

	point := model.PricePoint{Value: newPrice, Time: g.now()}
	if len(next.PriceHistory) > 0 {
		next.PriceHistory = append(next.PriceHistory[1:], point)
	} else {
		next.PriceHistory = []model.PricePoint{point}
	}

	lastClose := asset.CurrentPrice
	if n := len(asset.DailyData); n > 0 {
		lastClose = asset.DailyData[n-1].Close
	}
	bar := model.OHLCBar{
		Open:  lastClose,
		Close: newPrice,
		High:  math.Max(lastClose, newPrice) + g.uniform(0, g.config.Wick),
		Low:   math.Min(lastClose, newPrice) - g.uniform(0, g.config.Wick),
	}
	if len(next.DailyData) > 0 {
		next.DailyData = append(next.DailyData[1:], bar)
	} else {
		next.DailyData = []model.OHLCBar{bar}
	}

	return next
}

// Tick applies TickAsset to every asset and returns the new slice
func (g *Generator) Tick(assets []model.Asset) []model.Asset {
	out := make([]model.Asset, len(assets))
	for i, a := range assets {
		out[i] = g.TickAsset(a)
	}
	return out
}

// SeedAsset builds a fresh, unheld asset with generated history
func (g *Generator) SeedAsset(id, name, symbol string, price float64, window, days int) model.Asset {
	return model.Asset{
		ID:           id,
		Name:         name,
		Symbol:       symbol,
		CurrentPrice: price,
		PriceHistory: g.GenerateHistory(price, window),
		DailyData:    g.GenerateOHLC(price, days),
	}
}

// Round rounds v to the given number of decimals
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
