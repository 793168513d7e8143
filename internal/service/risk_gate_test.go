package service_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubPortfolio struct {
	mu   sync.Mutex
	snap domain.LedgerSnapshot
}

func (s *stubPortfolio) Snapshot() domain.LedgerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubPortfolio) set(balance, dailyPnL float64, positions ...domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = domain.LedgerSnapshot{
		State:     domain.LedgerState{Balance: balance, DailyPnL: dailyPnL},
		Positions: positions,
	}
}

func notional(token string, usd float64) domain.Position {
	return domain.Position{TokenID: token, Side: domain.OrderSideBuy, Size: usd / 0.5, EntryPrice: 0.5}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func riskConfig() service.RiskConfig {
	return service.RiskConfig{
		StartingCapital:        10000,
		RiskPerTradePct:        0.05,
		MaxPositionPct:         0.30,
		MaxDailyLossPct:        0.10,
		MaxConcurrentPositions: 3,
		MaxExposurePct:         80,
		StopLossPct:            0.15,
		PauseDuration:          4 * time.Hour,
	}
}

func newGate(p *stubPortfolio) (*service.RiskGate, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)}
	return service.NewRiskGate(p, riskConfig(), discardLogger()).WithClock(clock.Now), clock
}

func TestRiskGateAllowsHealthyAccount(t *testing.T) {
	p := &stubPortfolio{}
	p.set(10000, 0)
	gate, _ := newGate(p)

	st := gate.CheckStatus()
	assert.True(t, st.TradingAllowed)
	assert.Empty(t, st.Reason)
	assert.Empty(t, st.Warnings)
	assert.Equal(t, 10000.0, st.Equity)
	assert.True(t, gate.CanTrade())
}

func TestRiskGateDailyLossPausesAndStaysPaused(t *testing.T) {
	p := &stubPortfolio{}
	p.set(10000, -1000)
	gate, clock := newGate(p)

	st := gate.CheckStatus()
	require.False(t, st.TradingAllowed)
	assert.Equal(t, "Daily loss limit hit: $-1000.00 (max: -$1000)", st.Reason)
	assert.InDelta(t, -10.0, st.DailyPnLPct, 1e-9)

	// P&L recovers intraday but the pause is sticky
	p.set(10000, 200)
	clock.Advance(3 * time.Hour)
	st = gate.CheckStatus()
	assert.False(t, st.TradingAllowed)
	assert.Equal(t, "Daily loss limit hit: $-1000.00 (max: -$1000)", st.Reason)
	paused, _ := gate.Paused()
	assert.True(t, paused)

	clock.Advance(time.Hour + time.Second)
	st = gate.CheckStatus()
	assert.True(t, st.TradingAllowed)
	paused, _ = gate.Paused()
	assert.False(t, paused)
}

func TestRiskGateCheckOrder(t *testing.T) {
	p := &stubPortfolio{}
	// daily loss and position count both fail; daily loss wins
	p.set(10000, -2000, notional("a", 100), notional("b", 100), notional("c", 100))
	gate, _ := newGate(p)
	assert.Contains(t, gate.CheckStatus().Reason, "Daily loss limit hit")

	p2 := &stubPortfolio{}
	p2.set(1000, 0, notional("a", 300), notional("b", 300), notional("c", 300))
	gate2, _ := newGate(p2)
	st := gate2.CheckStatus()
	assert.False(t, st.TradingAllowed)
	assert.Equal(t, "Max positions (3) reached", st.Reason)
}

func TestRiskGateExposureLimit(t *testing.T) {
	p := &stubPortfolio{}
	p.set(1000, 0, notional("a", 450), notional("b", 400))
	gate, _ := newGate(p)

	st := gate.CheckStatus()
	assert.False(t, st.TradingAllowed)
	assert.Equal(t, "Exposure too high: 85.0%", st.Reason)
	assert.Contains(t, st.Warnings, st.Reason)
}

func TestRiskGateWarnings(t *testing.T) {
	p := &stubPortfolio{}
	p.set(1000, -60, notional("a", 650))
	gate, _ := newGate(p)

	st := gate.CheckStatus()
	assert.True(t, st.TradingAllowed)
	assert.Equal(t, []string{
		"Approaching daily loss limit: $-60.00",
		"High exposure: 65.0%",
	}, st.Warnings)
}

func TestRiskGateValidateTrade(t *testing.T) {
	p := &stubPortfolio{}
	p.set(10000, 0, notional("a", 5000))
	gate, _ := newGate(p)

	ok, reason := gate.ValidateTrade(2000, 0.5)
	assert.True(t, ok)
	assert.Equal(t, "OK", reason)

	ok, reason = gate.ValidateTrade(3500, 0.5)
	assert.False(t, ok)
	assert.Equal(t, "Size $3500 exceeds max $3000 (30% of equity)", reason)

	ok, reason = gate.ValidateTrade(3001, 0)
	assert.False(t, ok)
	assert.Equal(t, "Invalid price", reason)

	p.set(10000, 0, notional("a", 6000))
	ok, reason = gate.ValidateTrade(2500, 0.5)
	assert.False(t, ok)
	assert.Equal(t, "Would exceed exposure limit: 85.0%", reason)
}

func TestRiskGateValidateTradeWhilePaused(t *testing.T) {
	p := &stubPortfolio{}
	p.set(10000, -1500)
	gate, _ := newGate(p)

	ok, reason := gate.ValidateTrade(100, 0.5)
	assert.False(t, ok)
	assert.Contains(t, reason, "Daily loss limit hit")
}

func TestRiskGateSuggestSizeAndLimits(t *testing.T) {
	p := &stubPortfolio{}
	p.set(10000, 0)
	gate, _ := newGate(p)

	assert.InDelta(t, 3000, gate.SuggestSize(0.3, 1.0), 1e-9)
	assert.InDelta(t, 500, gate.SuggestRisk(), 1e-9)

	limits := gate.Limits()
	assert.InDelta(t, 3000, limits.MaxPosition, 1e-9)
	assert.InDelta(t, 1000, limits.MaxDailyLoss, 1e-9)
	assert.Equal(t, 3, limits.MaxConcurrent)
	assert.Equal(t, 80.0, limits.MaxExposurePct)
}
