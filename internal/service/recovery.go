package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// cooldownScanLimit bounds how much closed-trade history is scanned to
// rebuild cooldowns.
const cooldownScanLimit = 500

// RecoveryConfig controls how persisted state is reconciled at startup.
type RecoveryConfig struct {
	StartingCapital float64
	Cooldown        time.Duration
	Location        *time.Location
	// ReadOnly skips writing the reconciled state back.
	ReadOnly bool
}

// Recovered is everything rebuilt from storage at startup.
type Recovered struct {
	State     domain.LedgerState
	Positions []domain.Position
	Cooldowns map[string]time.Time
	// Fresh is set when no ledger state had been saved before.
	Fresh bool
}

// RecoveryLoader rebuilds ledger and cooldown state from the store. Stored
// P&L figures are not trusted: they are recomputed from closed trades.
type RecoveryLoader struct {
	store  domain.LedgerStore
	cfg    RecoveryConfig
	logger *slog.Logger
}

// NewRecoveryLoader creates a RecoveryLoader.
func NewRecoveryLoader(store domain.LedgerStore, cfg RecoveryConfig, logger *slog.Logger) *RecoveryLoader {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &RecoveryLoader{
		store:  store,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "recovery")),
	}
}

// Load reconciles persisted state as of now and, unless ReadOnly is set,
// writes the reconciled state back so the next start sees consistent figures.
func (r *RecoveryLoader) Load(ctx context.Context, now time.Time) (Recovered, error) {
	stored, ok, err := r.store.LoadState(ctx)
	if err != nil {
		return Recovered{}, fmt.Errorf("recovery: load state: %w", err)
	}

	positions, err := r.store.ListOpenPositions(ctx)
	if err != nil {
		return Recovered{}, fmt.Errorf("recovery: list open positions: %w", err)
	}

	since := TradingDayStart(now, r.cfg.Location)
	if stored.LastDailyReset.After(since) {
		since = stored.LastDailyReset
	}
	total, daily, err := r.store.PnLSince(ctx, since)
	if err != nil {
		return Recovered{}, fmt.Errorf("recovery: sum pnl: %w", err)
	}

	balance := r.cfg.StartingCapital + total
	for _, p := range positions {
		balance += OpenCashFlow(p)
	}

	state := domain.LedgerState{
		Balance:        balance,
		DailyPnL:       daily,
		TotalPnL:       total,
		LastDailyReset: stored.LastDailyReset,
	}
	if !ok {
		state.LastDailyReset = since
	}

	cooldowns, err := r.cooldowns(ctx, now)
	if err != nil {
		return Recovered{}, err
	}

	if !r.cfg.ReadOnly {
		if err := r.store.SaveState(ctx, state); err != nil {
			return Recovered{}, fmt.Errorf("recovery: save reconciled state: %w", err)
		}
	}

	if ok && (!near(stored.Balance, state.Balance) || !near(stored.TotalPnL, state.TotalPnL) || !near(stored.DailyPnL, state.DailyPnL)) {
		r.logger.WarnContext(ctx, "recovery: stored ledger state disagreed with history",
			slog.Float64("stored_balance", stored.Balance),
			slog.Float64("balance", state.Balance),
			slog.Float64("stored_total_pnl", stored.TotalPnL),
			slog.Float64("total_pnl", state.TotalPnL),
			slog.Float64("stored_daily_pnl", stored.DailyPnL),
			slog.Float64("daily_pnl", state.DailyPnL),
		)
	}
	r.logger.InfoContext(ctx, "recovery: state loaded",
		slog.Float64("balance", state.Balance),
		slog.Float64("daily_pnl", state.DailyPnL),
		slog.Float64("total_pnl", state.TotalPnL),
		slog.Int("open_positions", len(positions)),
		slog.Int("cooldowns", len(cooldowns)),
		slog.Bool("fresh", !ok),
	)

	return Recovered{
		State:     state,
		Positions: positions,
		Cooldowns: cooldowns,
		Fresh:     !ok,
	}, nil
}

// cooldowns returns the most recent activity per token still inside the
// cooldown window.
func (r *RecoveryLoader) cooldowns(ctx context.Context, now time.Time) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	if r.cfg.Cooldown <= 0 {
		return out, nil
	}
	trades, err := r.store.ListClosedTrades(ctx, domain.ListOpts{Limit: cooldownScanLimit})
	if err != nil {
		return nil, fmt.Errorf("recovery: list closed trades: %w", err)
	}
	cutoff := now.Add(-r.cfg.Cooldown)
	for _, t := range trades {
		if t.TokenID == "" {
			continue
		}
		at := t.LastActivity()
		if at.IsZero() || !at.After(cutoff) {
			continue
		}
		if prev, seen := out[t.TokenID]; !seen || at.After(prev) {
			out[t.TokenID] = at
		}
	}
	return out, nil
}

// TradingDayStart is midnight of now's calendar day in loc.
func TradingDayStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}
