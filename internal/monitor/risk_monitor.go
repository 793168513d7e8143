package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/metrics"
)

// RiskSource reports the account's risk status.
type RiskSource interface {
	CheckStatus() domain.RiskStatus
	Paused() (bool, string)
}

// PauseAlerter is told when trading becomes paused.
type PauseAlerter interface {
	TradingPaused(ctx context.Context, st domain.RiskStatus) error
}

// RiskMonitor periodically evaluates the risk gate, exports the account
// gauges and raises one alert per pause.
type RiskMonitor struct {
	gate     RiskSource
	alerter  PauseAlerter
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	wasPaused bool
}

// NewRiskMonitor creates a RiskMonitor. alerter may be nil.
func NewRiskMonitor(gate RiskSource, alerter PauseAlerter, interval time.Duration, logger *slog.Logger) *RiskMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RiskMonitor{
		gate:     gate,
		alerter:  alerter,
		interval: interval,
		logger:   logger.With(slog.String("component", "risk_monitor")),
	}
}

// Check runs one evaluation and returns the status it saw.
func (m *RiskMonitor) Check(ctx context.Context) domain.RiskStatus {
	st := m.gate.CheckStatus()
	metrics.ObserveStatus(st)

	for _, w := range st.Warnings {
		m.logger.WarnContext(ctx, "risk_monitor: "+w)
	}
	if !st.TradingAllowed {
		m.logger.WarnContext(ctx, "risk_monitor: trading disallowed", slog.String("reason", st.Reason))
	}

	paused, reason := m.gate.Paused()

	m.mu.Lock()
	first := paused && !m.wasPaused
	m.wasPaused = paused
	m.mu.Unlock()

	if first && m.alerter != nil {
		if st.Reason == "" {
			st.Reason = reason
		}
		if err := m.alerter.TradingPaused(ctx, st); err != nil {
			m.logger.ErrorContext(ctx, "risk_monitor: pause alert failed", slog.String("error", err.Error()))
		}
	}
	return st
}

// Run checks immediately and then on every interval until ctx is cancelled.
func (m *RiskMonitor) Run(ctx context.Context) error {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
