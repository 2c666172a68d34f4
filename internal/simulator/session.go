// Package simulator wires the ledger, price generator, analytics and
// backtests into one trading session.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"tradesim/internal/analyzer"
	"tradesim/internal/backtest"
	"tradesim/internal/config"
	"tradesim/internal/logger"
	"tradesim/internal/metrics"
	"tradesim/internal/portfolio"
	"tradesim/internal/ratelimit"
	"tradesim/internal/scheduler"
	"tradesim/internal/series"
	"tradesim/internal/strategy"
	"tradesim/pkg/model"
)

// Option configures a Session
type Option func(*Session)

// WithPriceSource sets the random source of the price generator
func WithPriceSource(src series.Source) Option {
	return func(s *Session) { s.priceSrc = src }
}

// WithTradeSource sets the random source of backtest strategies
func WithTradeSource(src series.Source) Option {
	return func(s *Session) { s.tradeSrc = src }
}

// WithClock overrides the wall clock everywhere in the session
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithProgress reports backtest progress
func WithProgress(fn backtest.ProgressCallback) Option {
	return func(s *Session) { s.progress = fn }
}

// WithLogger sets the base logger
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// Session is one simulated trading desk
type Session struct {
	cfg *config.Config

	priceSrc series.Source
	tradeSrc series.Source
	now      func() time.Time
	progress backtest.ProgressCallback
	log      *slog.Logger

	ledger     *portfolio.Ledger
	gen        *series.Generator
	genMu      sync.Mutex // generator is not safe for concurrent use
	runner     *backtest.Runner
	strategies []strategy.Strategy
	sched      *scheduler.Scheduler
	metrics    *metrics.Metrics

	mu       sync.Mutex
	analyzer *analyzer.TechnicalAnalyzer
	tickID   scheduler.EntryID
	ticking  bool
	tasks    map[*backtest.Task]struct{}
}

// NewSession validates cfg and seeds the asset catalog
func NewSession(cfg *config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Session{
		cfg:   cfg,
		now:   time.Now,
		tasks: make(map[*backtest.Task]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if s.priceSrc == nil {
		s.priceSrc = series.NewSeeded(seed)
	}
	if s.tradeSrc == nil {
		s.tradeSrc = series.NewSeeded(seed + 1)
	}

	strategies, err := strategy.Resolve(cfg.Backtest.Strategies)
	if err != nil {
		return nil, err
	}
	s.strategies = strategies

	metricSet, err := parseMetrics(cfg.Indicators.Enabled)
	if err != nil {
		return nil, err
	}
	s.analyzer = analyzer.NewTechnicalAnalyzer(analyzer.TechnicalConfig{
		ShortMA:          cfg.Indicators.ShortMA,
		LongMA:           cfg.Indicators.LongMA,
		VolatilityWindow: cfg.Indicators.VolatilityWindow,
		RSIPeriod:        cfg.Indicators.RSIPeriod,
		ChartBars:        cfg.Indicators.ChartBars,
		Enabled:          metricSet,
	})

	s.gen = series.NewGenerator(series.Config{
		TickStep: cfg.Simulation.TickStep,
		Wick:     cfg.Simulation.Wick,
	}, s.priceSrc, series.WithClock(s.now))

	s.ledger = portfolio.NewLedger(cfg.Simulation.StartingCash,
		portfolio.WithClock(s.now),
		portfolio.WithLogger(s.log.With(slog.String("component", "ledger"))))

	for _, a := range cfg.Assets {
		s.ledger.Track(s.gen.SeedAsset(a.ID, a.Name, a.Symbol, a.Price,
			cfg.Simulation.HistoryWindow, cfg.Simulation.OHLCDays))
	}

	engineOpts := []backtest.Option{
		backtest.WithClock(s.now),
		backtest.WithLogger(s.log.With(slog.String("component", "backtest"))),
	}
	if s.progress != nil {
		engineOpts = append(engineOpts, backtest.WithProgress(s.progress))
	}
	s.runner = backtest.NewRunner(backtest.NewEngine(s.tradeSrc, engineOpts...),
		backtest.WithDelay(cfg.Backtest.Delay),
		backtest.WithLimiter(ratelimit.NewLimiter("backtest", cfg.Backtest.RunsPerMinute)),
		backtest.WithMetrics(s.metrics),
		backtest.WithRunnerLogger(s.log.With(slog.String("component", "runner"))))

	s.sched = scheduler.New(s.log.With(slog.String("component", "scheduler")))

	s.observe()
	s.log.Info("session ready",
		slog.Int("assets", len(cfg.Assets)),
		slog.Float64("cash", cfg.Simulation.StartingCash),
		slog.Uint64("seed", seed))
	return s, nil
}

// NewDefaultSession creates a session from the default config
func NewDefaultSession(opts ...Option) (*Session, error) {
	opts = append([]Option{WithLogger(logger.For("session"))}, opts...)
	return NewSession(config.DefaultConfig(), opts...)
}

func parseMetrics(names []string) ([]analyzer.Metric, error) {
	out := make([]analyzer.Metric, 0, len(names))
	for _, n := range names {
		m := analyzer.Metric(n)
		if !slices.Contains(analyzer.DefaultMetrics, m) {
			return nil, fmt.Errorf("unknown indicator %q", n)
		}
		out = append(out, m)
	}
	return out, nil
}

// Ledger exposes the position ledger
func (s *Session) Ledger() *portfolio.Ledger {
	return s.ledger
}

// Metrics exposes the session metrics
func (s *Session) Metrics() *metrics.Metrics {
	return s.metrics
}

// Strategies returns the strategies used by backtests
func (s *Session) Strategies() []strategy.Strategy {
	return slices.Clone(s.strategies)
}

// Config returns the session configuration
func (s *Session) Config() *config.Config {
	return s.cfg
}

// TickPrices advances every tracked asset by one price step
func (s *Session) TickPrices() {
	start := time.Now()

	s.genMu.Lock()
	s.ledger.Reprice(s.gen.TickAsset)
	s.genMu.Unlock()

	s.metrics.TicksTotal.Inc()
	s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	s.observe()
}

// StartTicker begins the periodic price tick
func (s *Session) StartTicker() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticking {
		return nil
	}
	id, err := s.sched.Every(s.cfg.Simulation.TickInterval, s.TickPrices)
	if err != nil {
		return fmt.Errorf("start ticker: %w", err)
	}
	s.tickID = id
	s.ticking = true
	s.sched.Start()

	s.log.Info("price ticker started", slog.Duration("interval", s.cfg.Simulation.TickInterval))
	return nil
}

// Ticking reports whether the periodic tick is active
func (s *Session) Ticking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticking
}

// Stop cancels the periodic tick and waits for an in-flight tick to end
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.ticking {
		s.mu.Unlock()
		return
	}
	s.sched.Remove(s.tickID)
	s.ticking = false
	s.mu.Unlock()

	<-s.sched.Stop().Done()
	s.log.Info("price ticker stopped")
}

// Close stops the ticker and cancels pending backtests
func (s *Session) Close() {
	s.Stop()

	s.mu.Lock()
	tasks := make([]*backtest.Task, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
		<-t.Done()
	}
}

// AddPosition opens a position in a tracked asset.
// It returns false when the asset is already held.
func (s *Session) AddPosition(id string, shares int) (bool, error) {
	ok, err := s.ledger.OpenPosition(id, shares)
	if err == nil {
		s.observe()
	}
	return ok, err
}

// RemovePosition closes the position in id
func (s *Session) RemovePosition(id string) {
	s.ledger.RemovePosition(id)
	s.observe()
}

// UpdateShares sets the held quantity of id to max(1, n)
func (s *Session) UpdateShares(id string, n int) error {
	if err := s.ledger.UpdateShares(id, n); err != nil {
		return err
	}
	s.observe()
	return nil
}

// Trade executes a buy or sell at the current price
func (s *Session) Trade(id string, kind model.TradeKind, qty int) (model.Transaction, error) {
	tx, err := s.ledger.ExecuteTrade(id, kind, qty)
	if err != nil {
		s.metrics.TradeRejections.WithLabelValues(portfolio.Reason(err)).Inc()
		return tx, err
	}
	s.metrics.TradesTotal.WithLabelValues(string(kind)).Inc()
	s.observe()
	return tx, nil
}

// RunBacktest submits a backtest of the currently held positions.
// days <= 0 uses the configured period.
func (s *Session) RunBacktest(ctx context.Context, days int) *backtest.Task {
	if days <= 0 {
		days = s.cfg.Backtest.Days
	}
	task := s.runner.Submit(ctx, s.ledger.Held(), s.strategies, days)

	s.mu.Lock()
	s.tasks[task] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-task.Done()
		s.mu.Lock()
		delete(s.tasks, task)
		s.mu.Unlock()
	}()

	return task
}

// Backtesting reports whether a backtest is pending or running
func (s *Session) Backtesting() bool {
	return s.runner.Running()
}

// Dashboard computes the indicator dashboard for a tracked asset
func (s *Session) Dashboard(id string) (*analyzer.Dashboard, error) {
	asset, ok := s.ledger.Asset(id)
	if !ok {
		return nil, fmt.Errorf("dashboard %s: %w", id, portfolio.ErrUnknownAsset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzer.Analyze(asset), nil
}

// Patterns returns the candlestick patterns of a tracked asset
func (s *Session) Patterns(id string) ([]model.Pattern, error) {
	asset, ok := s.ledger.Asset(id)
	if !ok {
		return nil, fmt.Errorf("patterns %s: %w", id, portfolio.ErrUnknownAsset)
	}
	return analyzer.DetectPatterns(asset.DailyData), nil
}

// ToggleMetric switches a dashboard metric and returns its new state
func (s *Session) ToggleMetric(m analyzer.Metric) (bool, error) {
	if !slices.Contains(analyzer.DefaultMetrics, m) {
		return false, fmt.Errorf("unknown indicator %q", m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzer.Toggle(m), nil
}

// Snapshot returns the current ledger state
func (s *Session) Snapshot() portfolio.Snapshot {
	return s.ledger.Snapshot()
}

func (s *Session) observe() {
	snap := s.ledger.Snapshot()
	s.metrics.ObservePortfolio(snap.Cash, snap.TotalValue, len(snap.Positions))
}
