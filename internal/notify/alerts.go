package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// Event types accepted by the notifier's filter.
const (
	EventTradeExecuted  = "trade_executed"
	EventOpportunity    = "opportunity"
	EventPositionClosed = "position_closed"
	EventRiskPaused     = "risk_paused"
	EventDailySummary   = "daily_summary"
	EventStartup        = "startup"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

// Alerts formats trading events and hands them to a Notifier.
type Alerts struct {
	n      *Notifier
	now    func() time.Time
	logger *slog.Logger
}

// NewAlerts wraps n.
func NewAlerts(n *Notifier, logger *slog.Logger) *Alerts {
	return &Alerts{
		n:      n,
		now:    time.Now,
		logger: logger.With(slog.String("component", "alerts")),
	}
}

// WithClock replaces the timestamp source.
func (a *Alerts) WithClock(now func() time.Time) *Alerts {
	a.now = now
	return a
}

// OnDecision alerts on executed trades and on approved opportunities that
// were not executed. Rejections are silent.
func (a *Alerts) OnDecision(ctx context.Context, d domain.TradeDecision) error {
	switch {
	case d.Executed:
		return a.n.Notify(ctx, EventTradeExecuted, "TRADE EXECUTED", a.tradeBody(d))
	case d.Approved:
		return a.n.Notify(ctx, EventOpportunity, "OPPORTUNITY DETECTED", a.opportunityBody(d))
	}
	return nil
}

func (a *Alerts) tradeBody(d domain.TradeDecision) string {
	o := d.Opportunity
	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\n", truncate(o.Question, 100))
	fmt.Fprintf(&b, "Side: %s\n", o.RecommendedSide)
	fmt.Fprintf(&b, "Size: $%.2f (%.2f shares)\n", d.SizeUSD, d.SizeShares)
	fmt.Fprintf(&b, "Price: $%.3f\n", d.Price)
	fmt.Fprintf(&b, "Edge: %.1f%%\n", o.Edge*100)
	fmt.Fprintf(&b, "Risk: $%.2f\n", d.RiskAmount)
	fmt.Fprintf(&b, "Fair Value: $%.3f\n", o.FairValue)
	fmt.Fprintf(&b, "Confidence: %.1f%%\n", o.Confidence*100)
	if o.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", o.Source)
	}
	b.WriteString(a.now().UTC().Format(timeLayout))
	return b.String()
}

func (a *Alerts) opportunityBody(d domain.TradeDecision) string {
	o := d.Opportunity
	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\n", truncate(o.Question, 100))
	fmt.Fprintf(&b, "Current Price: $%.3f YES / $%.3f NO\n", o.YesPrice, o.NoPrice)
	fmt.Fprintf(&b, "Fair Value: $%.3f\n", o.FairValue)
	fmt.Fprintf(&b, "Edge: %.1f%%\n", o.Edge*100)
	fmt.Fprintf(&b, "Action: BUY %s\n", o.RecommendedSide)
	fmt.Fprintf(&b, "Not executed: %s\n", d.Reason)
	b.WriteString(a.now().UTC().Format(timeLayout))
	return b.String()
}

// OnClose alerts on a closed position. Delivery failures are logged.
func (a *Alerts) OnClose(ctx context.Context, t domain.ClosedTrade) {
	title := "POSITION CLOSED - " + strings.ReplaceAll(string(t.CloseReason), "_", " ")

	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\n", truncate(t.Market, 80))
	fmt.Fprintf(&b, "Entry: $%.3f\n", t.EntryPrice)
	fmt.Fprintf(&b, "Exit: $%.3f\n", t.ExitPrice)
	fmt.Fprintf(&b, "Size: %.2f shares\n", t.Size)
	fmt.Fprintf(&b, "P&L: $%+.2f (%+.1f%%)\n", t.PnL, t.PnLPct)
	b.WriteString(t.ExitTime.UTC().Format(timeLayout))

	if err := a.n.Notify(ctx, EventPositionClosed, title, b.String()); err != nil {
		a.logger.WarnContext(ctx, "alerts: close alert failed",
			slog.String("position_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
}

// TradingPaused alerts that the risk gate stopped new entries.
func (a *Alerts) TradingPaused(ctx context.Context, st domain.RiskStatus) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", st.Reason)
	fmt.Fprintf(&b, "Equity: $%.2f\n", st.Equity)
	fmt.Fprintf(&b, "Daily P&L: $%+.2f (%+.1f%%)\n", st.DailyPnL, st.DailyPnLPct)
	fmt.Fprintf(&b, "Open positions: %d\n", st.OpenPositions)
	b.WriteString(a.now().UTC().Format(timeLayout))
	return a.n.Notify(ctx, EventRiskPaused, "RISK ALERT", b.String())
}

// DailySummary reports the closing trading day.
func (a *Alerts) DailySummary(ctx context.Context, trades int, pnl, balance float64) error {
	msg := fmt.Sprintf("Trades: %d\nP&L: $%+.2f\nBalance: $%.2f\n%s",
		trades, pnl, balance, a.now().UTC().Format("2006-01-02"))
	return a.n.Notify(ctx, EventDailySummary, "DAILY SUMMARY", msg)
}

// StartupInfo describes the running configuration for the startup alert.
type StartupInfo struct {
	PaperTrading    bool
	AutoTrade       bool
	Balance         float64
	RiskPerTradePct float64
	MaxPositionPct  float64
	MaxDailyLossPct float64
	MinEdge         float64
}

// Startup announces that the bot is running.
func (a *Alerts) Startup(ctx context.Context, info StartupInfo) error {
	mode := "LIVE"
	if info.PaperTrading {
		mode = "PAPER"
	}
	auto := "DISABLED"
	if info.AutoTrade {
		auto = "ENABLED"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s TRADING\n", mode)
	fmt.Fprintf(&b, "Auto-Trade: %s\n", auto)
	fmt.Fprintf(&b, "Balance: $%.2f\n", info.Balance)
	fmt.Fprintf(&b, "Risk Per Trade: %.0f%% of equity\n", info.RiskPerTradePct*100)
	fmt.Fprintf(&b, "Max Position: %.0f%% of equity\n", info.MaxPositionPct*100)
	fmt.Fprintf(&b, "Daily Loss Limit: %.0f%% of equity\n", info.MaxDailyLossPct*100)
	fmt.Fprintf(&b, "Min Edge: %.0f%%\n", info.MinEdge*100)
	b.WriteString(a.now().UTC().Format(timeLayout))
	return a.n.Notify(ctx, EventStartup, "BOT STARTED", b.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
