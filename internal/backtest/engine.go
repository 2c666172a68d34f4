package backtest

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"tradesim/internal/series"
	"tradesim/internal/strategy"
	"tradesim/pkg/model"
)

// DefaultDays is the simulated period used when a run asks for none
const DefaultDays = 30

// ErrEmptyPortfolio is returned when a backtest is requested with no held assets
var ErrEmptyPortfolio = errors.New("no held assets to backtest")

// ProgressCallback reports simulated days completed across all strategies
type ProgressCallback func(done, total int, strategy string)

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source used to stamp the equity curve
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithProgress sets the progress callback
func WithProgress(fn ProgressCallback) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithLogger sets the engine logger
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// Engine simulates strategies against a fixed set of held positions.
// Runs are serialized since they share one random source.
type Engine struct {
	mu       sync.Mutex
	rng      series.Source
	now      func() time.Time
	progress ProgressCallback
	log      *slog.Logger
}

// NewEngine creates a backtest engine drawing from rng
func NewEngine(rng series.Source, opts ...Option) *Engine {
	e := &Engine{
		rng: rng,
		now: time.Now,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetProgressCallback replaces the progress callback
func (e *Engine) SetProgressCallback(fn ProgressCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = fn
}

// Run simulates days trading days of each strategy over held.
// Every day each asset produces one trade worth TradeResult * QuantityHeld.
func (e *Engine) Run(held []model.Asset, strategies []strategy.Strategy, days int) ([]model.BacktestResult, error) {
	if len(held) == 0 {
		return nil, ErrEmptyPortfolio
	}
	if days <= 0 {
		days = DefaultDays
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	totalValue := 0.0
	for _, a := range held {
		totalValue += a.Value()
	}

	now := e.now()
	total := len(strategies) * days
	done := 0

	results := make([]model.BacktestResult, 0, len(strategies))
	for _, s := range strategies {
		profit := 0.0
		trades, wins := 0, 0
		history := make([]model.ValuePoint, 0, days)

		for day := 0; day < days; day++ {
			dayProfit := 0.0
			for _, a := range held {
				result := s.TradeResult(a, e.rng)
				trades++
				if result > 0 {
					wins++
				}
				dayProfit += result * float64(a.QuantityHeld)
			}
			profit += dayProfit

			history = append(history, model.ValuePoint{
				Time:           now.AddDate(0, 0, -(days - day)),
				PortfolioValue: totalValue + profit,
			})

			done++
			if e.progress != nil {
				e.progress(done, total, s.Name())
			}
		}

		winRate := 0.0
		if trades > 0 {
			winRate = float64(wins) / float64(trades) * 100
		}

		results = append(results, model.BacktestResult{
			StrategyID: s.ID(),
			Strategy:   s.Name(),
			Profit:     series.Round(profit, 2),
			Trades:     trades,
			Wins:       wins,
			WinRate:    series.Round(winRate, 1),
			History:    history,
		})

		e.log.Debug("strategy simulated",
			slog.String("strategy", s.ID()),
			slog.Int("days", days),
			slog.Int("trades", trades),
			slog.Float64("profit", profit))
	}

	return results, nil
}
