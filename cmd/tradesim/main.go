package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"tradesim/internal/backtest"
	"tradesim/internal/config"
	"tradesim/internal/logger"
	"tradesim/internal/portfolio"
	"tradesim/internal/simulator"
	"tradesim/internal/strategy"
	"tradesim/internal/web"
	"tradesim/pkg/model"
)

var (
	cfgFile    string
	seed       uint64
	format     string
	logLevel   string
	holdings   string
	days       int
	strategies string
	duration   time.Duration
	interval   time.Duration
	metricAddr string
	listenAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tradesim",
		Short: "Simulated stock portfolio with indicators, patterns and backtests",
		Long: `Tradesim runs a simulated trading session over a catalog of synthetic stocks.

Prices follow a random walk, each asset carries MA / volatility / RSI
indicators and candlestick patterns, and held positions can be backtested
against simple strategies.

Examples:
  tradesim assets
  tradesim dashboard AAPL
  tradesim backtest --hold AAPL=10,TSLA=5 --days 30
  tradesim simulate --hold AAPL=10 --duration 30s
  tradesim serve --addr :8080
  tradesim shell`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "random seed (0 = time based)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "output format: table, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn, error")

	assetsCmd := &cobra.Command{
		Use:   "assets",
		Short: "List the asset catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return renderAssets(os.Stdout, s.Ledger().Assets())
		},
	}

	dashboardCmd := &cobra.Command{
		Use:   "dashboard <symbol>",
		Short: "Show indicators and patterns for an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := resolveAsset(s, args[0])
			if err != nil {
				return err
			}
			d, err := s.Dashboard(id)
			if err != nil {
				return err
			}
			return renderDashboard(os.Stdout, d)
		},
	}

	patternsCmd := &cobra.Command{
		Use:   "patterns <symbol>",
		Short: "List every candlestick pattern in an asset's bars",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := resolveAsset(s, args[0])
			if err != nil {
				return err
			}
			patterns, err := s.Patterns(id)
			if err != nil {
				return err
			}
			return renderPatterns(os.Stdout, patterns)
		},
	}

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest strategies over held positions",
		Args:  cobra.NoArgs,
		RunE:  runBacktest,
	}
	backtestCmd.Flags().StringVar(&holdings, "hold", "", "positions to hold, e.g. AAPL=10,MSFT=5")
	backtestCmd.Flags().IntVar(&days, "days", 0, "simulated days (default from config)")
	backtestCmd.Flags().StringVar(&strategies, "strategies", "", "comma-separated strategy ids (default: all)")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the live price ticker and print the portfolio on every tick",
		Args:  cobra.NoArgs,
		RunE:  runSimulate,
	}
	simulateCmd.Flags().StringVar(&holdings, "hold", "", "positions to hold, e.g. AAPL=10,MSFT=5")
	simulateCmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "how long to run (0 = until interrupted)")
	simulateCmd.Flags().DurationVar(&interval, "interval", 0, "tick interval override")
	simulateCmd.Flags().StringVar(&metricAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	strategiesCmd := &cobra.Command{
		Use:   "strategies",
		Short: "List backtest strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderStrategies(os.Stdout, strategy.AllInfo())
		},
	}

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive session: trade, edit positions, view dashboards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.StartTicker(); err != nil {
				return err
			}
			return newShell(s, os.Stdin, os.Stdout).Run(cmd.Context())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session as a JSON API with Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&holdings, "hold", "", "positions to hold, e.g. AAPL=10,MSFT=5")
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().DurationVar(&interval, "interval", 0, "tick interval override")

	rootCmd.AddCommand(assetsCmd, dashboardCmd, patternsCmd, backtestCmd, simulateCmd, strategiesCmd, shellCmd, serveCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newSession loads config, applies flag overrides and builds a session
func newSession(cmd *cobra.Command, opts ...simulator.Option) (*simulator.Session, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// Override config with CLI flags
	if cmd.Flags().Changed("seed") {
		cfg.Simulation.Seed = seed
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("days") && days > 0 {
		cfg.Backtest.Days = days
	}
	if cmd.Flags().Changed("strategies") {
		cfg.Backtest.Strategies = splitList(strategies)
	}
	if cmd.Flags().Changed("interval") && interval > 0 {
		cfg.Simulation.TickInterval = interval
	}

	log, err := logger.Init(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	opts = append([]simulator.Option{simulator.WithLogger(log)}, opts...)
	s, err := simulator.NewSession(cfg, opts...)
	if err != nil {
		return nil, err
	}

	if err := applyHoldings(s, holdings); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Backtesting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	s, err := newSession(cmd, simulator.WithProgress(func(done, total int, name string) {
		bar.ChangeMax(total)
		bar.Describe(name)
		bar.Set(done)
	}))
	if err != nil {
		return err
	}
	defer s.Close()

	if len(s.Ledger().Held()) == 0 {
		return fmt.Errorf("%w: use --hold SYMBOL=SHARES", backtest.ErrEmptyPortfolio)
	}

	results, err := s.RunBacktest(cmd.Context(), 0).Wait(cmd.Context())
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	if format == "json" {
		return outputJSON(os.Stdout, results)
	}
	return renderBacktest(os.Stdout, results)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if metricAddr != "" {
		srv := &http.Server{Addr: metricAddr, Handler: s.Metrics().Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
		defer srv.Close()
	}

	if err := s.StartTicker(); err != nil {
		return err
	}

	ticker := time.NewTicker(s.Config().Simulation.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return renderSnapshot(os.Stdout, s.Snapshot())
		case <-ticker.C:
			if format == "json" {
				if err := outputJSON(os.Stdout, s.Snapshot()); err != nil {
					return err
				}
				continue
			}
			if err := renderPortfolio(os.Stdout, s.Snapshot()); err != nil {
				return err
			}
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.StartTicker(); err != nil {
		return err
	}

	srv := web.NewServer(s, logger.For("web"))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(listenAddr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-cmd.Context().Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// applyHoldings opens the positions given as SYMBOL=SHARES pairs.
// Unparseable share counts become 1.
func applyHoldings(s *simulator.Session, spec string) error {
	for _, pair := range splitList(spec) {
		key, qty, _ := strings.Cut(pair, "=")
		id, err := resolveAsset(s, key)
		if err != nil {
			return err
		}
		shares := portfolio.ClampQuantity(parseQuantity(qty))
		if _, err := s.AddPosition(id, shares); err != nil {
			return err
		}
	}
	return nil
}

// resolveAsset accepts an asset id or a (case-insensitive) symbol
func resolveAsset(s *simulator.Session, key string) (string, error) {
	key = strings.TrimSpace(key)
	for _, a := range s.Ledger().Assets() {
		if a.ID == key || strings.EqualFold(a.Symbol, key) {
			return a.ID, nil
		}
	}
	return "", fmt.Errorf("%q: %w", key, portfolio.ErrUnknownAsset)
}

// parseQuantity returns NaN for input that is not a number
func parseQuantity(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseKind(s string) (model.TradeKind, error) {
	switch strings.ToLower(s) {
	case "buy", "b":
		return model.Buy, nil
	case "sell", "s":
		return model.Sell, nil
	}
	return "", fmt.Errorf("%q: %w", s, portfolio.ErrInvalidKind)
}
