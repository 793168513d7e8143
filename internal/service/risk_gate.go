package service

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// PortfolioReader exposes a consistent read-only view of the ledger.
type PortfolioReader interface {
	Snapshot() domain.LedgerSnapshot
}

// RiskConfig holds the account-level limits enforced before every trade.
type RiskConfig struct {
	StartingCapital        float64
	RiskPerTradePct        float64
	MaxPositionPct         float64
	MaxDailyLossPct        float64
	MaxConcurrentPositions int
	// MaxExposurePct is a whole percentage of equity (80 = 80%).
	MaxExposurePct  float64
	StopLossPct     float64
	PauseDuration   time.Duration
	WarnExposurePct float64
}

// RiskGate decides whether new trades may be opened. It owns only its pause
// timer; everything else is derived from the ledger on each call.
type RiskGate struct {
	portfolio PortfolioReader
	sizer     PositionSizer
	cfg       RiskConfig
	now       func() time.Time
	logger    *slog.Logger

	mu          sync.Mutex
	pausedUntil time.Time
	pauseReason string
}

// NewRiskGate creates a RiskGate reading account figures from portfolio.
func NewRiskGate(portfolio PortfolioReader, cfg RiskConfig, logger *slog.Logger) *RiskGate {
	if cfg.PauseDuration <= 0 {
		cfg.PauseDuration = 4 * time.Hour
	}
	if cfg.MaxExposurePct <= 0 {
		cfg.MaxExposurePct = 80
	}
	if cfg.WarnExposurePct <= 0 {
		cfg.WarnExposurePct = 60
	}
	return &RiskGate{
		portfolio: portfolio,
		sizer:     NewPositionSizer(cfg.MaxPositionPct),
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "risk_gate")),
	}
}

// WithClock replaces the wall clock used for the pause timer.
func (g *RiskGate) WithClock(now func() time.Time) *RiskGate {
	g.now = now
	return g
}

// CheckStatus evaluates the limits in order; the first failing check wins.
func (g *RiskGate) CheckStatus() domain.RiskStatus {
	snap := g.portfolio.Snapshot()
	equity := snap.State.Balance
	exposure := snap.Exposure()

	st := domain.RiskStatus{
		TradingAllowed: true,
		Equity:         equity,
		DailyPnL:       snap.State.DailyPnL,
		OpenPositions:  len(snap.Positions),
		TotalExposure:  exposure,
	}
	if g.cfg.StartingCapital > 0 {
		st.DailyPnLPct = snap.State.DailyPnL / g.cfg.StartingCapital * 100
	}
	if equity > 0 {
		st.ExposurePct = exposure / equity * 100
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.pausedUntil.IsZero() {
		if now.Before(g.pausedUntil) {
			st.TradingAllowed = false
			st.Reason = g.pauseReason
			return st
		}
		g.logger.Info("risk_gate: trading pause expired", slog.String("reason", g.pauseReason))
		g.pausedUntil = time.Time{}
		g.pauseReason = ""
	}

	maxLoss := equity * g.cfg.MaxDailyLossPct
	if st.DailyPnL < 0 && st.DailyPnL <= -maxLoss {
		st.TradingAllowed = false
		st.Reason = fmt.Sprintf("Daily loss limit hit: $%.2f (max: -$%.0f)", st.DailyPnL, maxLoss)
		st.Warnings = append(st.Warnings, st.Reason)
		g.pausedUntil = now.Add(g.cfg.PauseDuration)
		g.pauseReason = st.Reason
		g.logger.Warn("risk_gate: daily loss limit hit, pausing trading",
			slog.Float64("daily_pnl", st.DailyPnL),
			slog.Float64("max_loss", maxLoss),
			slog.Time("paused_until", g.pausedUntil),
		)
		return st
	}

	if st.OpenPositions >= g.cfg.MaxConcurrentPositions {
		st.TradingAllowed = false
		st.Reason = fmt.Sprintf("Max positions (%d) reached", g.cfg.MaxConcurrentPositions)
		return st
	}

	if st.ExposurePct > g.cfg.MaxExposurePct {
		st.TradingAllowed = false
		st.Reason = fmt.Sprintf("Exposure too high: %.1f%%", st.ExposurePct)
		st.Warnings = append(st.Warnings, st.Reason)
		return st
	}

	if st.DailyPnL < 0 && st.DailyPnL <= -maxLoss*0.5 {
		st.Warnings = append(st.Warnings, fmt.Sprintf("Approaching daily loss limit: $%.2f", st.DailyPnL))
	}
	if st.ExposurePct > g.cfg.WarnExposurePct {
		st.Warnings = append(st.Warnings, fmt.Sprintf("High exposure: %.1f%%", st.ExposurePct))
	}
	return st
}

// CanTrade reports whether CheckStatus currently allows trading.
func (g *RiskGate) CanTrade() bool {
	return g.CheckStatus().TradingAllowed
}

// Paused reports whether a pause timer is armed and still running.
func (g *RiskGate) Paused() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pausedUntil.IsZero() || !g.now().Before(g.pausedUntil) {
		return false, ""
	}
	return true, g.pauseReason
}

// ValidateTrade checks a proposed USD notional against the per-trade and
// exposure ceilings. It returns "OK" when the trade may proceed.
func (g *RiskGate) ValidateTrade(size, price float64) (bool, string) {
	st := g.CheckStatus()
	if !st.TradingAllowed {
		return false, st.Reason
	}
	if price <= 0 || price >= 1 {
		return false, "Invalid price"
	}

	maxSize := st.Equity * g.cfg.MaxPositionPct
	if size > maxSize {
		return false, fmt.Sprintf("Size $%.0f exceeds max $%.0f (%.0f%% of equity)", size, maxSize, g.cfg.MaxPositionPct*100)
	}

	if st.Equity > 0 {
		newPct := (st.TotalExposure + size) / st.Equity * 100
		if newPct > g.cfg.MaxExposurePct {
			return false, fmt.Sprintf("Would exceed exposure limit: %.1f%%", newPct)
		}
	}
	return true, "OK"
}

// SuggestSize sizes a trade from the current equity.
func (g *RiskGate) SuggestSize(edge, confidence float64) float64 {
	equity := g.portfolio.Snapshot().State.Balance
	return g.sizer.Size(equity, g.cfg.RiskPerTradePct, g.cfg.StopLossPct, edge, confidence)
}

// SuggestRisk is the USD risk budget for one trade at current equity.
func (g *RiskGate) SuggestRisk() float64 {
	return RiskAmount(g.portfolio.Snapshot().State.Balance, g.cfg.RiskPerTradePct)
}

// Limits returns the absolute limits implied by the current equity.
func (g *RiskGate) Limits() domain.RiskLimits {
	equity := g.portfolio.Snapshot().State.Balance
	return domain.RiskLimits{
		RiskPerTrade:    RiskAmount(equity, g.cfg.RiskPerTradePct),
		MaxPosition:     equity * g.cfg.MaxPositionPct,
		MaxDailyLoss:    equity * g.cfg.MaxDailyLossPct,
		MaxConcurrent:   g.cfg.MaxConcurrentPositions,
		RiskPerTradePct: g.cfg.RiskPerTradePct * 100,
		MaxPositionPct:  g.cfg.MaxPositionPct * 100,
		MaxDailyLossPct: g.cfg.MaxDailyLossPct * 100,
		MaxExposurePct:  g.cfg.MaxExposurePct,
	}
}
