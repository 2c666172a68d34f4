package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"tradesim/internal/analyzer"
	"tradesim/internal/portfolio"
	"tradesim/internal/strategy"
	"tradesim/pkg/model"
)

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func signed(v float64) string {
	return fmt.Sprintf("%+.2f", v)
}

func renderAssets(w io.Writer, assets []model.Asset) error {
	if format == "json" {
		return outputJSON(w, assets)
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"ID", "Symbol", "Name", "Price", "Change", "Change %", "Held"}),
	)
	for _, a := range assets {
		table.Append([]string{
			a.ID,
			a.Symbol,
			a.Name,
			money(a.CurrentPrice),
			signed(a.ChangeAbs),
			fmt.Sprintf("%+.2f%%", a.ChangePct),
			fmt.Sprintf("%d", a.QuantityHeld),
		})
	}
	return table.Render()
}

func renderDashboard(w io.Writer, d *analyzer.Dashboard) error {
	if format == "json" {
		return outputJSON(w, d)
	}

	fmt.Fprintf(w, "[%s] %s\n\n", d.Symbol, money(d.Price))

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Indicator", "Value", "Signal"}),
	)
	if d.ShortMA != nil {
		table.Append([]string{fmt.Sprintf("MA%d", d.ShortWindow), money(d.LatestShortMA), d.TrendSignal})
	}
	if d.LongMA != nil {
		table.Append([]string{fmt.Sprintf("MA%d", d.LongWindow), money(d.LatestLongMA), ""})
	}
	if d.Volatility != nil {
		table.Append([]string{fmt.Sprintf("Volatility(%d)", d.VolatilityWindow), money(d.LatestVolatility), ""})
	}
	if d.RSI != nil {
		table.Append([]string{fmt.Sprintf("RSI(%d)", d.RSIPeriod), fmt.Sprintf("%.1f", d.LatestRSI), d.RSISignal})
	}
	if err := table.Render(); err != nil {
		return err
	}

	if d.Patterns == nil {
		return nil
	}
	fmt.Fprintf(w, "\nPatterns in the last %d bars:\n", len(d.ChartPatterns))
	return renderPatterns(w, d.ChartPatterns)
}

func renderPatterns(w io.Writer, patterns []model.Pattern) error {
	if format == "json" {
		return outputJSON(w, patterns)
	}
	if len(patterns) == 0 {
		fmt.Fprintln(w, "No patterns detected")
		return nil
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Bar", "Pattern", "Bias"}),
	)
	for _, p := range patterns {
		table.Append([]string{fmt.Sprintf("%d", p.Index), p.Name, string(p.Bias)})
	}
	if err := table.Render(); err != nil {
		return err
	}

	counts := analyzer.CountByBias(patterns)
	fmt.Fprintf(w, "bullish %d | bearish %d | neutral %d\n",
		counts[model.Bullish], counts[model.Bearish], counts[model.Neutral])
	return nil
}

func renderBacktest(w io.Writer, results []model.BacktestResult) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Strategy", "Profit", "Trades", "Win Rate", "Final Value"}),
	)

	best := -1
	for i, r := range results {
		final := 0.0
		if n := len(r.History); n > 0 {
			final = r.History[n-1].PortfolioValue
		}
		table.Append([]string{
			r.Strategy,
			signed(r.Profit),
			fmt.Sprintf("%d", r.Trades),
			fmt.Sprintf("%.1f%%", r.WinRate),
			money(final),
		})
		if best < 0 || r.Profit > results[best].Profit {
			best = i
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if best >= 0 {
		fmt.Fprintf(w, "\nBest strategy: %s (%s)\n", results[best].Strategy, signed(results[best].Profit))
	}
	return nil
}

func renderStrategies(w io.Writer, infos []strategy.StrategyInfo) error {
	if format == "json" {
		return outputJSON(w, infos)
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"ID", "Name", "Description"}),
	)
	for _, info := range infos {
		table.Append([]string{info.ID, info.Name, info.Description})
	}
	return table.Render()
}

func renderPortfolio(w io.Writer, snap portfolio.Snapshot) error {
	if len(snap.Positions) == 0 {
		fmt.Fprintf(w, "%s  cash %s  (no positions)\n", snap.Time.Format("15:04:05"), money(snap.Cash))
		return nil
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Symbol", "Shares", "Avg Cost", "Price", "Value", "P&L", "Alloc"}),
	)
	for i, a := range snap.Positions {
		pct := 0.0
		if i < len(snap.Allocation) {
			pct = snap.Allocation[i].Pct
		}
		table.Append([]string{
			a.Symbol,
			fmt.Sprintf("%d", a.QuantityHeld),
			money(a.AvgBuyPrice),
			money(a.CurrentPrice),
			money(a.Value()),
			signed((a.CurrentPrice - a.AvgBuyPrice) * float64(a.QuantityHeld)),
			fmt.Sprintf("%.1f%%", pct),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s  cash %s  value %s  P&L %s\n\n",
		snap.Time.Format("15:04:05"), money(snap.Cash), money(snap.TotalValue), signed(snap.TotalPnL))
	return nil
}

func renderSnapshot(w io.Writer, snap portfolio.Snapshot) error {
	if format == "json" {
		return outputJSON(w, snap)
	}
	if err := renderPortfolio(w, snap); err != nil {
		return err
	}
	return renderTransactions(w, snap.Transactions)
}

func renderTransactions(w io.Writer, txns []model.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Time", "Kind", "Asset", "Qty", "Price", "Amount"}),
	)
	for _, tx := range txns {
		table.Append([]string{
			tx.Time.Format("15:04:05"),
			strings.ToUpper(string(tx.Kind)),
			tx.AssetID,
			fmt.Sprintf("%d", tx.Quantity),
			money(tx.Price),
			money(tx.Amount()),
		})
	}
	return table.Render()
}
