package strategy

import (
	"tradesim/internal/series"
	"tradesim/pkg/model"
)

// Strategy IDs
const (
	MovingAverageID = "moving_avg"
	MomentumID      = "momentum"
	MeanReversionID = "mean_reversion"
)

// Strategy defines the interface for simulated trading strategies
type Strategy interface {
	// ID returns the registry key
	ID() string

	// Name returns the display name
	Name() string

	// Description returns a brief description
	Description() string

	// TradeResult returns the signed per-share return of one simulated
	// trade in asset
	TradeResult(asset model.Asset, rng series.Source) float64
}

// MovingAverageStrategy buys on a coin-flip crossover signal
type MovingAverageStrategy struct {
	GainPct float64
	LossPct float64
}

// NewMovingAverageStrategy creates the strategy with +2% / -1% outcomes
func NewMovingAverageStrategy() *MovingAverageStrategy {
	return &MovingAverageStrategy{GainPct: 0.02, LossPct: 0.01}
}

func (s *MovingAverageStrategy) ID() string   { return MovingAverageID }
func (s *MovingAverageStrategy) Name() string { return "Moving Average Crossover" }

func (s *MovingAverageStrategy) Description() string {
	return "Random crossover signal: win 2% of price on a buy signal, lose 1% otherwise"
}

func (s *MovingAverageStrategy) TradeResult(asset model.Asset, rng series.Source) float64 {
	shouldBuy := rng.Float64() > 0.5
	if shouldBuy {
		return asset.CurrentPrice * s.GainPct
	}
	return -asset.CurrentPrice * s.LossPct
}

// MomentumStrategy follows the last price change
type MomentumStrategy struct {
	GainPct float64
	LossPct float64
}

// NewMomentumStrategy creates the strategy with +1.5% / -1% outcomes
func NewMomentumStrategy() *MomentumStrategy {
	return &MomentumStrategy{GainPct: 0.015, LossPct: 0.01}
}

func (s *MomentumStrategy) ID() string   { return MomentumID }
func (s *MomentumStrategy) Name() string { return "Momentum Strategy" }

func (s *MomentumStrategy) Description() string {
	return "Wins 1.5% of price when the asset is rising, loses 1% otherwise"
}

func (s *MomentumStrategy) TradeResult(asset model.Asset, _ series.Source) float64 {
	if asset.ChangePct > 0 {
		return asset.CurrentPrice * s.GainPct
	}
	return -asset.CurrentPrice * s.LossPct
}

// MeanReversionStrategy bets against the last price change
type MeanReversionStrategy struct {
	GainPct float64
	LossPct float64
}

// NewMeanReversionStrategy creates the strategy with +1% / -0.5% outcomes
func NewMeanReversionStrategy() *MeanReversionStrategy {
	return &MeanReversionStrategy{GainPct: 0.01, LossPct: 0.005}
}

func (s *MeanReversionStrategy) ID() string   { return MeanReversionID }
func (s *MeanReversionStrategy) Name() string { return "Mean Reversion" }

func (s *MeanReversionStrategy) Description() string {
	return "Wins 1% of price when the asset is falling, loses 0.5% otherwise"
}

func (s *MeanReversionStrategy) TradeResult(asset model.Asset, _ series.Source) float64 {
	if asset.ChangePct < 0 {
		return asset.CurrentPrice * s.GainPct
	}
	return -asset.CurrentPrice * s.LossPct
}
