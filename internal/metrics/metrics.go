// Package metrics exposes Prometheus instrumentation for a simulation session.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for a session.
// Each instance owns its registry so sessions never collide.
type Metrics struct {
	registry *prometheus.Registry

	TradesTotal     *prometheus.CounterVec // labels: kind
	TradeRejections *prometheus.CounterVec // labels: reason
	TicksTotal      prometheus.Counter
	TickDuration    prometheus.Histogram
	BacktestsTotal  *prometheus.CounterVec // labels: outcome
	BacktestDur     prometheus.Histogram
	CashBalance     prometheus.Gauge
	PortfolioValue  prometheus.Gauge
	PositionsHeld   prometheus.Gauge
}

// New creates and registers the session metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_trades_total",
			Help: "Executed trades by kind.",
		}, []string{"kind"}),
		TradeRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_trade_rejections_total",
			Help: "Rejected trade commands by reason.",
		}, []string{"reason"}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesim_price_ticks_total",
			Help: "Price ticks applied.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesim_price_tick_duration_seconds",
			Help:    "Time spent applying one price tick.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		BacktestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_backtests_total",
			Help: "Backtest runs by outcome.",
		}, []string{"outcome"}),
		BacktestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesim_backtest_duration_seconds",
			Help:    "Backtest wall time including the simulated delay.",
			Buckets: prometheus.DefBuckets,
		}),
		CashBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesim_cash_balance",
			Help: "Current cash balance.",
		}),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesim_portfolio_value",
			Help: "Market value of held positions.",
		}),
		PositionsHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesim_positions_held",
			Help: "Number of assets with a non-zero position.",
		}),
	}

	reg.MustRegister(
		m.TradesTotal,
		m.TradeRejections,
		m.TicksTotal,
		m.TickDuration,
		m.BacktestsTotal,
		m.BacktestDur,
		m.CashBalance,
		m.PortfolioValue,
		m.PositionsHeld,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePortfolio updates the portfolio gauges
func (m *Metrics) ObservePortfolio(cash, value float64, held int) {
	m.CashBalance.Set(cash)
	m.PortfolioValue.Set(value)
	m.PositionsHeld.Set(float64(held))
}
