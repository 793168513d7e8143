package report_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/report"
)

type fakeGate struct{}

func (fakeGate) CheckStatus() domain.RiskStatus {
	return domain.RiskStatus{
		TradingAllowed: false,
		Reason:         "Daily loss limit hit",
		Equity:         9400,
		DailyPnL:       -1100,
		DailyPnLPct:    -11,
		OpenPositions:  1,
		TotalExposure:  500,
		ExposurePct:    5.3,
		Warnings:       []string{"Daily loss at 110% of limit"},
	}
}

func (fakeGate) Limits() domain.RiskLimits {
	return domain.RiskLimits{RiskPerTrade: 470, MaxPosition: 2820, MaxDailyLoss: 940, MaxConcurrent: 5, RiskPerTradePct: 0.05, MaxPositionPct: 0.3, MaxExposurePct: 80}
}

type fakeLedger struct{ snap domain.LedgerSnapshot }

func (l fakeLedger) Snapshot() domain.LedgerSnapshot { return l.snap }

type fakeHistory struct {
	trades []domain.ClosedTrade
	err    error
	limit  int
}

func (h *fakeHistory) ListClosedTrades(_ context.Context, opts domain.ListOpts) ([]domain.ClosedTrade, error) {
	h.limit = opts.Limit
	return h.trades, h.err
}

func (h *fakeHistory) TradeStats(context.Context) (domain.TradeStats, error) {
	return domain.ComputeTradeStats(h.trades), h.err
}

type fakePrices map[string]float64

func (p fakePrices) GetPrices(_ context.Context, ids []string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, id := range ids {
		if v, ok := p[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func book() domain.LedgerSnapshot {
	return domain.LedgerSnapshot{
		State: domain.LedgerState{Balance: 9400, TotalPnL: -600},
		Positions: []domain.Position{{
			ID: "p1", MarketID: "m1", Market: "Will the Fed cut rates in March?", TokenID: "tok",
			Side: domain.OrderSideBuy, Size: 1000, EntryPrice: 0.5,
			StopLossPrice: 0.5, TakeProfitPrice: 0.65, BreakevenTriggered: true,
		}},
	}
}

func TestCollectAndWrite(t *testing.T) {
	history := &fakeHistory{trades: []domain.ClosedTrade{{
		ID: "t1", Market: "Old market", Side: domain.OrderSideBuy, EntryPrice: 0.4, ExitPrice: 0.34,
		PnL: -600, PnLPct: -15, CloseReason: domain.CloseReasonStopLoss,
		ExitTime: time.Date(2026, 3, 2, 15, 4, 0, 0, time.UTC),
	}}}

	d, err := report.Collect(context.Background(), fakeGate{}, fakeLedger{book()}, history, fakePrices{"tok": 0.6}, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, history.limit)
	assert.Equal(t, 0.6, d.Prices["tok"])

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, d))
	out := buf.String()

	assert.Contains(t, out, "AUTOBOT RISK REPORT (LIVE)")
	assert.Contains(t, out, "$9400.00")
	assert.Contains(t, out, "BLOCKED: Daily loss limit hit")
	assert.Contains(t, out, "! Daily loss at 110% of limit")
	assert.Contains(t, out, "OPEN POSITIONS (1)")
	assert.Contains(t, out, "Will the Fed cut rates in March?")
	assert.Contains(t, out, "+$100.00 (+20.0%)")
	assert.Contains(t, out, "BE")
	assert.Contains(t, out, "STOP_LOSS")
	assert.Contains(t, out, "03-02 15:04")
	assert.Contains(t, out, "Trades:     1 (0 won / 1 lost, 0.0% win rate)")
}

func TestWriteWithoutPricesOrPositions(t *testing.T) {
	d, err := report.Collect(context.Background(), fakeGate{}, fakeLedger{book()}, &fakeHistory{}, nil, 0)
	require.NoError(t, err)
	d.Paper = true

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, d))
	assert.Contains(t, buf.String(), "(PAPER)")
	assert.NotContains(t, buf.String(), "Unrealized:")

	d.Snapshot.Positions = nil
	buf.Reset()
	require.NoError(t, report.Write(&buf, d))
	assert.Contains(t, buf.String(), "OPEN POSITIONS (0)")
	assert.Contains(t, buf.String(), "none")
}

func TestCollectPropagatesStoreErrors(t *testing.T) {
	_, err := report.Collect(context.Background(), fakeGate{}, fakeLedger{}, &fakeHistory{err: errors.New("db down")}, nil, 5)
	assert.ErrorContains(t, err, "db down")
}
