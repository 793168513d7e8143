package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func position(id, token string, entry time.Time) domain.Position {
	return domain.Position{
		ID:                    id,
		MarketID:              "m-" + token,
		Market:                "Will " + token + "?",
		TokenID:               token,
		Side:                  domain.OrderSideBuy,
		Size:                  1000,
		EntryPrice:            0.5,
		RiskAmount:            75,
		StopLossPrice:         0.425,
		TakeProfitPrice:       0.65,
		BreakevenTriggerPrice: 0.55,
		HighestPrice:          0.5,
		EntryTime:             entry,
		Paper:                 true,
	}
}

func trade(id string, pnl float64, exit time.Time) domain.ClosedTrade {
	return domain.ClosedTrade{
		ID:          id,
		TokenID:     "tok-" + id,
		Side:        domain.OrderSideBuy,
		Size:        100,
		EntryPrice:  0.5,
		ExitPrice:   0.5 + pnl/100,
		PnL:         pnl,
		PnLPct:      pnl / 50 * 100,
		Won:         pnl >= 0,
		CloseReason: domain.CloseReasonManual,
		EntryTime:   exit.Add(-time.Hour),
		ExitTime:    exit,
		Paper:       true,
	}
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, ok, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	want := domain.LedgerState{Balance: 9500.25, DailyPnL: -12.5, TotalPnL: 40, LastDailyReset: t0}
	require.NoError(t, s.SaveState(ctx, want))
	require.NoError(t, s.SaveState(ctx, want))

	got, ok, err := s.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Balance, got.Balance)
	assert.Equal(t, want.DailyPnL, got.DailyPnL)
	assert.Equal(t, want.TotalPnL, got.TotalPnL)
	assert.True(t, want.LastDailyReset.Equal(got.LastDailyReset))
}

func TestPositionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	p1 := position("p1", "a", t0)
	p2 := position("p2", "b", t0.Add(time.Minute))
	require.NoError(t, s.OpenPosition(ctx, p2, domain.LedgerState{Balance: 9500}))
	require.NoError(t, s.OpenPosition(ctx, p1, domain.LedgerState{Balance: 9000}))

	dup := position("p3", "a", t0)
	err := s.OpenPosition(ctx, dup, domain.LedgerState{Balance: 1})
	assert.ErrorIs(t, err, domain.ErrPositionExists)
	st, _, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9000.0, st.Balance, "failed open leaves state untouched")

	open, err := s.ListOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "p1", open[0].ID)
	assert.Equal(t, p1.Market, open[0].Market)
	assert.True(t, open[0].EntryTime.Equal(t0))
	assert.True(t, open[0].Paper)

	p1.StopLossPrice = 0.5
	p1.HighestPrice = 0.56
	p1.BreakevenTriggered = true
	require.NoError(t, s.UpdatePosition(ctx, p1))
	open, err = s.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.5, open[0].StopLossPrice)
	assert.True(t, open[0].BreakevenTriggered)
	assert.False(t, open[0].TrailingStopActive)

	assert.ErrorIs(t, s.UpdatePosition(ctx, position("nope", "z", t0)), domain.ErrNotFound)

	closed := p1.CloseAt(0.5, domain.CloseReasonBreakevenStop, t0.Add(2*time.Hour))
	require.NoError(t, s.ClosePosition(ctx, p1.ID, closed, domain.LedgerState{Balance: 9500}))
	assert.ErrorIs(t, s.ClosePosition(ctx, p1.ID, closed, domain.LedgerState{}), domain.ErrNotFound)

	open, err = s.ListOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	trades, err := s.ListClosedTrades(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.CloseReasonBreakevenStop, trades[0].CloseReason)
	assert.True(t, trades[0].BreakevenTriggered)
	assert.True(t, trades[0].ExitTime.Equal(t0.Add(2*time.Hour)))
}

func TestClosedTradeQueries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	seed := []domain.ClosedTrade{
		trade("a", 30, t0),
		trade("b", -20, t0.Add(time.Hour)),
		trade("c", 10, t0.Add(2*time.Hour)),
		trade("d", -40, t0.Add(3*time.Hour)),
	}
	for i, tr := range seed {
		pos := position(tr.ID, tr.TokenID, tr.EntryTime)
		require.NoError(t, s.OpenPosition(ctx, pos, domain.LedgerState{}))
		require.NoError(t, s.ClosePosition(ctx, tr.ID, seed[i], domain.LedgerState{}))
	}

	all, err := s.ListClosedTrades(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].ID, "newest first")

	page, err := s.ListClosedTrades(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)

	tail, err := s.ListClosedTrades(ctx, domain.ListOpts{Offset: 3})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "a", tail[0].ID)

	since, err := s.ClosedTradesSince(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, since, 2)

	between, err := s.ClosedTradesBetween(ctx, t0.Add(time.Hour), t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, "c", between[0].ID)

	total, recent, err := s.PnLSince(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, -20, total, 1e-9)
	assert.InDelta(t, -50, recent, 1e-9)

	stats, err := s.TradeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ComputeTradeStats(seed), stats)
}

func TestTradeStatsEmpty(t *testing.T) {
	stats, err := newStore(t).TradeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStats{}, stats)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.OpenPosition(ctx, position("p1", "a", t0), domain.LedgerState{Balance: 9500}))
	require.NoError(t, s.Close())

	s, err = sqlite.Open(path)
	require.NoError(t, err)
	defer s.Close()

	open, err := s.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	st, ok, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9500.0, st.Balance)
}

func TestBackupKeepsNewest(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveState(ctx, domain.LedgerState{Balance: 1234}))
	dir := filepath.Join(t.TempDir(), "backups")

	var last string
	for i := 0; i < 4; i++ {
		path, err := s.Backup(ctx, dir, 2)
		require.NoError(t, err)
		last = path
		time.Sleep(2 * time.Millisecond)
	}

	files, err := sqlite.Backups(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, last, files[1])

	copyStore, err := sqlite.Open(last)
	require.NoError(t, err)
	defer copyStore.Close()
	st, ok, err := copyStore.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1234.0, st.Balance)
}
