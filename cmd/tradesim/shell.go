package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"tradesim/internal/analyzer"
	"tradesim/internal/portfolio"
	"tradesim/internal/simulator"
	"tradesim/pkg/model"
)

const shellHelp = `Commands:
  assets                      list the catalog
  portfolio                   positions, cash and P&L
  add <symbol> [shares]       open a position (ignored if already held)
  remove <symbol>             close a position
  shares <symbol> <n>         set the held quantity (min 1)
  buy <symbol> <qty>          buy at the current price (min 1)
  sell <symbol> <qty>         sell at the current price (min 1)
  pnl <symbol>                unrealized P&L
  dashboard <symbol>          indicators and patterns
  toggle <metric>             ma5, ma10, volatility, rsi, patterns
  backtest [days]             backtest held positions in the background
  history                     transaction log
  tick                        apply one price tick now
  quit`

// shell is a line-oriented front end over a session
type shell struct {
	session *simulator.Session
	in      io.Reader

	mu  sync.Mutex // guards out; backtest results arrive asynchronously
	out io.Writer
	wg  sync.WaitGroup
}

func newShell(s *simulator.Session, in io.Reader, out io.Writer) *shell {
	return &shell{session: s, in: in, out: out}
}

// Run reads commands until quit, EOF or ctx ends, then waits for
// backtests started from the shell.
func (sh *shell) Run(ctx context.Context) error {
	defer sh.wg.Wait()

	sh.printf("tradesim shell, type 'help' for commands\n")
	scanner := bufio.NewScanner(sh.in)
	for {
		sh.printf("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := sh.exec(ctx, fields[0], fields[1:]); err != nil {
			sh.printf("error: %v\n", err)
		}
	}
}

func (sh *shell) printf(format string, args ...any) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fmt.Fprintf(sh.out, format, args...)
}

func (sh *shell) render(fn func(io.Writer) error) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return fn(sh.out)
}

func (sh *shell) exec(ctx context.Context, cmd string, args []string) error {
	s := sh.session

	arg := func(i int) (string, error) {
		if i >= len(args) {
			return "", fmt.Errorf("%s: missing argument", cmd)
		}
		return args[i], nil
	}
	asset := func() (string, error) {
		key, err := arg(0)
		if err != nil {
			return "", err
		}
		return resolveAsset(s, key)
	}
	quantity := func(i int) int {
		if i >= len(args) {
			return 1
		}
		return portfolio.ClampQuantity(parseQuantity(args[i]))
	}

	switch cmd {
	case "help", "?":
		sh.printf("%s\n", shellHelp)

	case "assets", "ls":
		return sh.render(func(w io.Writer) error { return renderAssets(w, s.Ledger().Assets()) })

	case "portfolio", "p":
		return sh.render(func(w io.Writer) error { return renderPortfolio(w, s.Snapshot()) })

	case "add":
		id, err := asset()
		if err != nil {
			return err
		}
		added, err := s.AddPosition(id, quantity(1))
		if err != nil {
			return err
		}
		if !added {
			sh.printf("%s already held\n", args[0])
			return nil
		}
		sh.printf("added %s\n", args[0])

	case "remove", "rm":
		id, err := asset()
		if err != nil {
			return err
		}
		s.RemovePosition(id)
		sh.printf("removed %s\n", args[0])

	case "shares":
		id, err := asset()
		if err != nil {
			return err
		}
		if _, err := arg(1); err != nil {
			return err
		}
		n := quantity(1)
		if err := s.UpdateShares(id, n); err != nil {
			return err
		}
		sh.printf("%s now %d shares\n", args[0], n)

	case "buy", "sell":
		kind, err := parseKind(cmd)
		if err != nil {
			return err
		}
		id, err := asset()
		if err != nil {
			return err
		}
		if _, err := arg(1); err != nil {
			return err
		}
		tx, err := s.Trade(id, kind, quantity(1))
		if err != nil {
			return err
		}
		sh.printf("%s %d %s @ %s (cash %s)\n",
			strings.ToUpper(string(tx.Kind)), tx.Quantity, args[0], money(tx.Price), money(s.Ledger().Cash()))

	case "pnl":
		id, err := asset()
		if err != nil {
			return err
		}
		pnl, err := s.Ledger().UnrealizedPnL(id)
		if err != nil {
			return err
		}
		sh.printf("%s unrealized P&L %s\n", args[0], signed(pnl))

	case "dashboard", "d":
		id, err := asset()
		if err != nil {
			return err
		}
		d, err := s.Dashboard(id)
		if err != nil {
			return err
		}
		return sh.render(func(w io.Writer) error { return renderDashboard(w, d) })

	case "toggle":
		name, err := arg(0)
		if err != nil {
			return err
		}
		on, err := s.ToggleMetric(analyzer.Metric(strings.ToLower(name)))
		if err != nil {
			return err
		}
		sh.printf("%s %s\n", name, map[bool]string{true: "on", false: "off"}[on])

	case "backtest", "bt":
		days := 0
		if len(args) > 0 {
			d, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("days %q: %w", args[0], err)
			}
			days = d
		}
		task := s.RunBacktest(ctx, days)
		sh.wg.Add(1)
		task.OnComplete(func(results []model.BacktestResult, err error) {
			defer sh.wg.Done()
			if err != nil {
				sh.printf("\nbacktest failed: %v\n", err)
				return
			}
			sh.printf("\n")
			_ = sh.render(func(w io.Writer) error { return renderBacktest(w, results) })
		})
		sh.printf("backtest running...\n")

	case "history", "h":
		return sh.render(func(w io.Writer) error { return renderTransactions(w, s.Ledger().Transactions()) })

	case "tick":
		s.TickPrices()
		sh.printf("prices updated\n")

	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	return nil
}
