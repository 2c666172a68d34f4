package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"tradesim/internal/metrics"
	"tradesim/internal/ratelimit"
	"tradesim/internal/strategy"
	"tradesim/pkg/model"
)

// DefaultDelay is the simulated computation time of a backtest
const DefaultDelay = 1500 * time.Millisecond

// ErrThrottled is returned when the run limit would not allow a start in time
var ErrThrottled = errors.New("backtest throttled")

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithDelay overrides the simulated delay before a run starts
func WithDelay(d time.Duration) RunnerOption {
	return func(r *Runner) { r.delay = d }
}

// WithLimiter throttles how often runs may start
func WithLimiter(l *ratelimit.Limiter) RunnerOption {
	return func(r *Runner) { r.limiter = l }
}

// WithMetrics records run outcomes and durations
func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithRunnerLogger sets the runner logger
func WithRunnerLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// Runner executes backtests asynchronously
type Runner struct {
	engine  *Engine
	delay   time.Duration
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	log     *slog.Logger

	inflight atomic.Int32
}

// NewRunner creates a runner around engine
func NewRunner(engine *Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine: engine,
		delay:  DefaultDelay,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Running reports whether any submitted task has not completed yet
func (r *Runner) Running() bool {
	return r.inflight.Load() > 0
}

// Submit starts a backtest of a copy of held in the background
func (r *Runner) Submit(ctx context.Context, held []model.Asset, strategies []strategy.Strategy, days int) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := newTask(cancel)

	held = model.CloneAssets(held)
	strategies = append([]strategy.Strategy(nil), strategies...)

	r.inflight.Add(1)
	go func() {
		defer cancel()
		start := time.Now()

		results, err := r.run(ctx, held, strategies, days)

		r.observe(start, err)
		task.complete(results, err, func() { r.inflight.Add(-1) })
	}()

	return task
}

func (r *Runner) run(ctx context.Context, held []model.Asset, strategies []strategy.Strategy, days int) ([]model.BacktestResult, error) {
	if len(held) == 0 {
		return nil, ErrEmptyPortfolio
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrThrottled, err)
		}
	}

	if r.delay > 0 {
		timer := time.NewTimer(r.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	r.log.Info("backtest started",
		slog.Int("assets", len(held)),
		slog.Int("strategies", len(strategies)),
		slog.Int("days", days))

	return r.engine.Run(held, strategies, days)
}

func (r *Runner) observe(start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrEmptyPortfolio):
		outcome = "empty"
	case errors.Is(err, ErrThrottled):
		outcome = "throttled"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	default:
		outcome = "error"
	}

	if err != nil {
		r.log.Warn("backtest finished without results", slog.String("outcome", outcome), slog.Any("error", err))
	} else {
		r.log.Info("backtest finished", slog.Duration("elapsed", time.Since(start)))
	}

	if r.metrics == nil {
		return
	}
	r.metrics.BacktestsTotal.WithLabelValues(outcome).Inc()
	r.metrics.BacktestDur.Observe(time.Since(start).Seconds())
}
