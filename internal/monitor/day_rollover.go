package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/service"
)

// DailyResetter zeroes the ledger's daily P&L.
type DailyResetter interface {
	Snapshot() domain.LedgerSnapshot
	ResetDaily(ctx context.Context, at time.Time) error
}

// RolloverHook receives the ledger state as it stood at the end of the
// previous trading day.
type RolloverHook func(ctx context.Context, closing domain.LedgerState, dayStart time.Time)

// DayRollover resets the daily P&L once per trading day in the configured
// timezone.
type DayRollover struct {
	ledger   DailyResetter
	loc      *time.Location
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	hooks    []RolloverHook
}

// NewDayRollover creates a DayRollover that checks every interval.
func NewDayRollover(ledger DailyResetter, loc *time.Location, interval time.Duration, logger *slog.Logger) *DayRollover {
	if loc == nil {
		loc = time.UTC
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &DayRollover{
		ledger:   ledger,
		loc:      loc,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "day_rollover")),
	}
}

// WithClock replaces the wall clock.
func (d *DayRollover) WithClock(now func() time.Time) *DayRollover {
	d.now = now
	return d
}

// OnRollover registers a hook run after each reset. It is not called for the
// first reset of a fresh ledger.
func (d *DayRollover) OnRollover(h RolloverHook) {
	d.hooks = append(d.hooks, h)
}

// Check resets the daily P&L when the last reset predates the current
// trading day. It reports whether a reset happened.
func (d *DayRollover) Check(ctx context.Context) (bool, error) {
	dayStart := service.TradingDayStart(d.now(), d.loc)
	closing := d.ledger.Snapshot().State
	last := closing.LastDailyReset
	if !last.Before(dayStart) {
		return false, nil
	}
	if err := d.ledger.ResetDaily(ctx, dayStart); err != nil {
		return false, err
	}
	if !last.IsZero() {
		for _, h := range d.hooks {
			h(ctx, closing, dayStart)
		}
	}
	d.logger.InfoContext(ctx, "day_rollover: new trading day",
		slog.Time("day_start", dayStart),
		slog.Time("previous_reset", last),
	)
	return true, nil
}

// Run checks immediately and then on every interval until ctx is cancelled.
func (d *DayRollover) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.Check(ctx); err != nil {
			d.logger.ErrorContext(ctx, "day_rollover: reset failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
