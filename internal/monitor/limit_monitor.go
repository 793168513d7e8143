// Package monitor runs the periodic loops that watch open positions and the
// account: limit sweeps, risk checks, daily rollover and status logging.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/metrics"
	"github.com/alanyoungcy/autobot/internal/service"
)

// PositionBook is the part of the ledger the limit monitor drives.
type PositionBook interface {
	Snapshot() domain.LedgerSnapshot
	ApplyPrice(ctx context.Context, positionID string, price float64) (service.TickResult, error)
}

// LimitMonitor polls prices for every open position and feeds them through
// the ledger's exit state machine.
type LimitMonitor struct {
	book         PositionBook
	prices       domain.PriceSource
	interval     time.Duration
	priceTimeout time.Duration
	logger       *slog.Logger
}

// NewLimitMonitor creates a LimitMonitor.
func NewLimitMonitor(book PositionBook, prices domain.PriceSource, interval, priceTimeout time.Duration, logger *slog.Logger) *LimitMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if priceTimeout <= 0 {
		priceTimeout = 10 * time.Second
	}
	return &LimitMonitor{
		book:         book,
		prices:       prices,
		interval:     interval,
		priceTimeout: priceTimeout,
		logger:       logger.With(slog.String("component", "limit_monitor")),
	}
}

// Sweep checks every open position once and returns the trades closed by
// this pass. A position whose price cannot be fetched is skipped.
func (m *LimitMonitor) Sweep(ctx context.Context) []domain.ClosedTrade {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	var closed []domain.ClosedTrade
	for _, pos := range m.book.Snapshot().Positions {
		if ctx.Err() != nil {
			break
		}

		price, err := m.fetch(ctx, pos.TokenID)
		if err != nil {
			metrics.PriceFetchErrors.Inc()
			m.logger.WarnContext(ctx, "limit_monitor: price fetch failed",
				slog.String("position_id", pos.ID),
				slog.String("token_id", pos.TokenID),
				slog.String("error", err.Error()),
			)
			continue
		}

		res, err := m.book.ApplyPrice(ctx, pos.ID, price)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// closed elsewhere since the snapshot
				continue
			}
			m.logger.ErrorContext(ctx, "limit_monitor: apply price failed",
				slog.String("position_id", pos.ID),
				slog.Float64("price", price),
				slog.String("error", err.Error()),
			)
			continue
		}

		if res.Closed != nil {
			closed = append(closed, *res.Closed)
			continue
		}
		if res.Tick.Changed {
			m.logger.DebugContext(ctx, "limit_monitor: stop adjusted",
				slog.String("position_id", pos.ID),
				slog.Float64("price", price),
				slog.Float64("stop_loss", res.Position.StopLossPrice),
				slog.Bool("trailing", res.Position.TrailingStopActive),
			)
		}
	}
	return closed
}

func (m *LimitMonitor) fetch(ctx context.Context, tokenID string) (float64, error) {
	pctx, cancel := context.WithTimeout(ctx, m.priceTimeout)
	defer cancel()
	return m.prices.Price(pctx, tokenID)
}

// Run sweeps immediately and then on every interval until ctx is cancelled.
func (m *LimitMonitor) Run(ctx context.Context) error {
	m.logger.Info("limit monitor started", slog.Duration("interval", m.interval))
	m.sweepAndLog(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("limit monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.sweepAndLog(ctx)
		}
	}
}

func (m *LimitMonitor) sweepAndLog(ctx context.Context) {
	for _, t := range m.Sweep(ctx) {
		m.logger.InfoContext(ctx, "limit_monitor: position closed",
			slog.String("position_id", t.ID),
			slog.String("reason", string(t.CloseReason)),
			slog.Float64("exit_price", t.ExitPrice),
			slog.Float64("pnl", t.PnL),
		)
	}
}
