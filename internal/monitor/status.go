package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// StatsSource provides aggregate statistics over closed trades.
type StatsSource interface {
	TradeStats(ctx context.Context) (domain.TradeStats, error)
}

// StatusLogger writes a periodic summary of the account to the log.
type StatusLogger struct {
	gate     RiskSource
	stats    StatsSource
	interval time.Duration
	logger   *slog.Logger
}

// NewStatusLogger creates a StatusLogger.
func NewStatusLogger(gate RiskSource, stats StatsSource, interval time.Duration, logger *slog.Logger) *StatusLogger {
	if interval <= 0 {
		interval = time.Hour
	}
	return &StatusLogger{
		gate:     gate,
		stats:    stats,
		interval: interval,
		logger:   logger.With(slog.String("component", "status")),
	}
}

// Log writes one summary line.
func (s *StatusLogger) Log(ctx context.Context) {
	st := s.gate.CheckStatus()
	attrs := []any{
		slog.Float64("equity", st.Equity),
		slog.Float64("daily_pnl", st.DailyPnL),
		slog.Float64("daily_pnl_pct", st.DailyPnLPct),
		slog.Int("open_positions", st.OpenPositions),
		slog.Float64("exposure_pct", st.ExposurePct),
		slog.Bool("trading_allowed", st.TradingAllowed),
	}

	ts, err := s.stats.TradeStats(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "status: trade stats unavailable", slog.String("error", err.Error()))
	} else {
		attrs = append(attrs,
			slog.Int("total_trades", ts.TotalTrades),
			slog.Float64("win_rate", ts.WinRate),
			slog.Float64("total_pnl", ts.TotalPnL),
		)
	}
	s.logger.InfoContext(ctx, "status", attrs...)
}

// Run logs on every interval until ctx is cancelled.
func (s *StatusLogger) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Log(ctx)
		}
	}
}
