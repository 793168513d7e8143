// Package report renders the account, risk and trade history as text
// tables for the report command.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// RiskView is the gate surface the report reads.
type RiskView interface {
	CheckStatus() domain.RiskStatus
	Limits() domain.RiskLimits
}

// LedgerView exposes the open book.
type LedgerView interface {
	Snapshot() domain.LedgerSnapshot
}

// TradeHistory reads closed trades.
type TradeHistory interface {
	ListClosedTrades(ctx context.Context, opts domain.ListOpts) ([]domain.ClosedTrade, error)
	TradeStats(ctx context.Context) (domain.TradeStats, error)
}

// PriceLookup returns whatever cached prices exist for tokenIDs.
type PriceLookup interface {
	GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// Data is everything one report shows.
type Data struct {
	GeneratedAt time.Time
	Paper       bool
	Status      domain.RiskStatus
	Limits      domain.RiskLimits
	Snapshot    domain.LedgerSnapshot
	Prices      map[string]float64
	Stats       domain.TradeStats
	Recent      []domain.ClosedTrade
}

// Collect gathers Data. prices may be nil; positions are then shown
// unpriced.
func Collect(ctx context.Context, gate RiskView, ledger LedgerView, history TradeHistory, prices PriceLookup, recent int) (Data, error) {
	d := Data{
		GeneratedAt: time.Now().UTC(),
		Status:      gate.CheckStatus(),
		Limits:      gate.Limits(),
		Snapshot:    ledger.Snapshot(),
	}

	stats, err := history.TradeStats(ctx)
	if err != nil {
		return Data{}, fmt.Errorf("report: trade stats: %w", err)
	}
	d.Stats = stats

	if recent > 0 {
		d.Recent, err = history.ListClosedTrades(ctx, domain.ListOpts{Limit: recent})
		if err != nil {
			return Data{}, fmt.Errorf("report: recent trades: %w", err)
		}
	}

	if prices != nil && len(d.Snapshot.Positions) > 0 {
		// a cold cache still yields a report
		d.Prices, _ = prices.GetPrices(ctx, d.Snapshot.Tokens())
	}
	return d, nil
}

// Write renders d to w.
func Write(w io.Writer, d Data) error {
	mode := "LIVE"
	if d.Paper {
		mode = "PAPER"
	}
	fmt.Fprintf(w, "========================================================\n")
	fmt.Fprintf(w, "  AUTOBOT RISK REPORT (%s)  %s\n", mode, d.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "========================================================\n\n")

	if err := writeAccount(w, d); err != nil {
		return err
	}
	if err := writePositions(w, d); err != nil {
		return err
	}
	return writeHistory(w, d)
}

func writeAccount(w io.Writer, d Data) error {
	st := d.Status
	trading := "ALLOWED"
	if !st.TradingAllowed {
		trading = "BLOCKED: " + st.Reason
	}

	tbl := tablewriter.NewWriter(w)
	tbl.Header("Metric", "Value", "Limit")
	rows := [][]string{
		{"Equity", money(st.Equity), ""},
		{"Daily P&L", fmt.Sprintf("%s (%+.2f%%)", signed(st.DailyPnL), st.DailyPnLPct), "-" + money(d.Limits.MaxDailyLoss)},
		{"Total P&L", signed(d.Snapshot.State.TotalPnL), ""},
		{"Open positions", fmt.Sprintf("%d", st.OpenPositions), fmt.Sprintf("%d", d.Limits.MaxConcurrent)},
		{"Exposure", fmt.Sprintf("%s (%.1f%%)", money(st.TotalExposure), st.ExposurePct), fmt.Sprintf("%.0f%%", d.Limits.MaxExposurePct)},
		{"Risk per trade", money(d.Limits.RiskPerTrade), fmt.Sprintf("%.1f%%", d.Limits.RiskPerTradePct*100)},
		{"Max position", money(d.Limits.MaxPosition), fmt.Sprintf("%.1f%%", d.Limits.MaxPositionPct*100)},
		{"Trading", trading, ""},
	}
	for _, r := range rows {
		if err := tbl.Append(r); err != nil {
			return fmt.Errorf("report: account table: %w", err)
		}
	}
	if err := tbl.Render(); err != nil {
		return fmt.Errorf("report: account table: %w", err)
	}
	for _, warn := range st.Warnings {
		fmt.Fprintf(w, "  ! %s\n", warn)
	}
	fmt.Fprintln(w)
	return nil
}

func writePositions(w io.Writer, d Data) error {
	fmt.Fprintf(w, "  --- OPEN POSITIONS (%d) ---\n", len(d.Snapshot.Positions))
	if len(d.Snapshot.Positions) == 0 {
		fmt.Fprintln(w, "  none")
		fmt.Fprintln(w)
		return nil
	}

	tbl := tablewriter.NewWriter(w)
	tbl.Header("Market", "Side", "Shares", "Entry", "Now", "Stop", "Target", "Unrealized", "Flags")
	for _, p := range d.Snapshot.Positions {
		now, unreal := "-", "-"
		if price, ok := d.Prices[p.TokenID]; ok {
			v := p.Mark(price)
			now = fmt.Sprintf("%.3f", price)
			unreal = fmt.Sprintf("%s (%+.1f%%)", signed(v.UnrealizedPnL), v.UnrealizedPnLPct)
		}
		if err := tbl.Append([]string{
			label(p.Market, p.MarketID),
			string(p.Side),
			fmt.Sprintf("%.2f", p.Size),
			fmt.Sprintf("%.3f", p.EntryPrice),
			now,
			fmt.Sprintf("%.3f", p.StopLossPrice),
			fmt.Sprintf("%.3f", p.TakeProfitPrice),
			unreal,
			flags(p),
		}); err != nil {
			return fmt.Errorf("report: positions table: %w", err)
		}
	}
	if err := tbl.Render(); err != nil {
		return fmt.Errorf("report: positions table: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

func writeHistory(w io.Writer, d Data) error {
	s := d.Stats
	fmt.Fprintf(w, "  --- HISTORY ---\n")
	fmt.Fprintf(w, "  Trades:     %d (%d won / %d lost, %.1f%% win rate)\n", s.TotalTrades, s.Wins, s.Losses, s.WinRate)
	fmt.Fprintf(w, "  Total P&L:  %s\n", signed(s.TotalPnL))
	fmt.Fprintf(w, "  Avg win:    %s   Avg loss: %s\n", signed(s.AvgWin), signed(s.AvgLoss))
	fmt.Fprintf(w, "  Best:       %s   Worst:    %s\n\n", signed(s.BestTrade), signed(s.WorstTrade))

	if len(d.Recent) == 0 {
		return nil
	}
	tbl := tablewriter.NewWriter(w)
	tbl.Header("Closed", "Market", "Side", "Entry", "Exit", "P&L", "Reason")
	for _, t := range d.Recent {
		if err := tbl.Append([]string{
			t.ExitTime.Format("01-02 15:04"),
			label(t.Market, t.MarketID),
			string(t.Side),
			fmt.Sprintf("%.3f", t.EntryPrice),
			fmt.Sprintf("%.3f", t.ExitPrice),
			fmt.Sprintf("%s (%+.1f%%)", signed(t.PnL), t.PnLPct),
			string(t.CloseReason),
		}); err != nil {
			return fmt.Errorf("report: history table: %w", err)
		}
	}
	if err := tbl.Render(); err != nil {
		return fmt.Errorf("report: history table: %w", err)
	}
	return nil
}

func money(v float64) string { return fmt.Sprintf("$%.2f", v) }

func signed(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}

func label(market, id string) string {
	s := market
	if s == "" {
		s = id
	}
	if r := []rune(s); len(r) > 40 {
		return string(r[:37]) + "..."
	}
	return s
}

func flags(p domain.Position) string {
	var f []string
	if p.BreakevenTriggered {
		f = append(f, "BE")
	}
	if p.TrailingStopActive {
		f = append(f, "TRAIL")
	}
	if p.Paper {
		f = append(f, "PAPER")
	}
	return strings.Join(f, ",")
}
