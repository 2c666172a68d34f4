package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Indicators IndicatorConfig  `yaml:"indicators"`
	Log        LogConfig        `yaml:"log"`
	Assets     []AssetConfig    `yaml:"assets"`
}

// SimulationConfig holds session and price-tick settings
type SimulationConfig struct {
	StartingCash  float64       `yaml:"starting_cash"`
	HistoryWindow int           `yaml:"history_window"` // price points kept (plus one)
	OHLCDays      int           `yaml:"ohlc_days"`      // bars kept
	TickInterval  time.Duration `yaml:"tick_interval"`
	TickStep      float64       `yaml:"tick_step"` // max absolute change per tick
	Wick          float64       `yaml:"wick"`      // max shadow on a tick bar
	Seed          uint64        `yaml:"seed"`      // 0 = time based
}

// BacktestConfig holds backtest settings
type BacktestConfig struct {
	Days          int           `yaml:"days"`
	Delay         time.Duration `yaml:"delay"`           // simulated processing time
	RunsPerMinute int           `yaml:"runs_per_minute"` // 0 disables throttling
	Strategies    []string      `yaml:"strategies"`      // empty = all registered
}

// IndicatorConfig holds dashboard windows
type IndicatorConfig struct {
	ShortMA          int      `yaml:"short_ma"`
	LongMA           int      `yaml:"long_ma"`
	VolatilityWindow int      `yaml:"volatility_window"`
	RSIPeriod        int      `yaml:"rsi_period"`
	ChartBars        int      `yaml:"chart_bars"`
	Enabled          []string `yaml:"enabled"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// AssetConfig is one catalog entry
type AssetConfig struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Symbol string  `yaml:"symbol"`
	Price  float64 `yaml:"price"`
}

// DefaultAssets is the built-in catalog
func DefaultAssets() []AssetConfig {
	return []AssetConfig{
		{ID: "1", Name: "Apple", Symbol: "AAPL", Price: 182.63},
		{ID: "2", Name: "Microsoft", Symbol: "MSFT", Price: 413.64},
		{ID: "3", Name: "Google", Symbol: "GOOGL", Price: 171.95},
		{ID: "4", Name: "Amazon", Symbol: "AMZN", Price: 185.71},
		{ID: "5", Name: "Tesla", Symbol: "TSLA", Price: 177.48},
		{ID: "6", Name: "Reliance", Symbol: "RELIANCE", Price: 2456.75},
		{ID: "7", Name: "TCS", Symbol: "TCS", Price: 3456.25},
		{ID: "8", Name: "HDFC Bank", Symbol: "HDFCBANK", Price: 1456.80},
		{ID: "9", Name: "Infosys", Symbol: "INFY", Price: 1520.50},
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			StartingCash:  100000,
			HistoryWindow: 30,
			OHLCDays:      30,
			TickInterval:  3 * time.Second,
			TickStep:      10,
			Wick:          10,
		},
		Backtest: BacktestConfig{
			Days:          30,
			Delay:         1500 * time.Millisecond,
			RunsPerMinute: 30,
		},
		Indicators: IndicatorConfig{
			ShortMA:          5,
			LongMA:           10,
			VolatilityWindow: 10,
			RSIPeriod:        14,
			ChartBars:        20,
			Enabled:          []string{"ma5", "ma10", "volatility", "rsi", "patterns"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Assets: DefaultAssets(),
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Use defaults if file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Override with environment variables if set
	if v := os.Getenv("TRADESIM_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing TRADESIM_SEED: %w", err)
		}
		cfg.Simulation.Seed = seed
	}
	if v := os.Getenv("TRADESIM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Simulation.StartingCash < 0 {
		return fmt.Errorf("starting_cash must not be negative")
	}
	if c.Simulation.HistoryWindow < 1 {
		return fmt.Errorf("history_window must be at least 1")
	}
	if c.Simulation.OHLCDays < 3 {
		return fmt.Errorf("ohlc_days must be at least 3")
	}
	if c.Simulation.TickInterval < 100*time.Millisecond {
		return fmt.Errorf("tick_interval must be at least 100ms")
	}
	if c.Backtest.Days < 1 {
		return fmt.Errorf("backtest days must be at least 1")
	}
	if c.Backtest.RunsPerMinute < 0 {
		return fmt.Errorf("runs_per_minute must not be negative")
	}
	if c.Indicators.ShortMA < 1 || c.Indicators.LongMA < 1 ||
		c.Indicators.VolatilityWindow < 1 || c.Indicators.RSIPeriod < 1 {
		return fmt.Errorf("indicator windows must be at least 1")
	}

	seen := make(map[string]bool, len(c.Assets))
	for _, a := range c.Assets {
		if a.ID == "" {
			return fmt.Errorf("asset %q has no id", a.Symbol)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate asset id %q", a.ID)
		}
		seen[a.ID] = true
		if a.Price <= 0 {
			return fmt.Errorf("asset %q must have a positive price", a.ID)
		}
	}
	return nil
}
