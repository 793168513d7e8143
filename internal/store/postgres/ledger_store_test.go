package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/store/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://bot:pw@db:5432/autobot?sslmode=disable",
		postgres.DSN(postgres.ClientConfig{Host: "db", Database: "autobot", User: "bot", Password: "pw"}))
	assert.Equal(t, "postgres://x@y/z",
		postgres.DSN(postgres.ClientConfig{DSN: "postgres://x@y/z", Host: "ignored"}))
	assert.Equal(t, "postgres://u:p@h:6543/d?sslmode=require",
		postgres.DSN(postgres.ClientConfig{Host: "h", Port: 6543, Database: "d", User: "u", Password: "p", SSLMode: "require"}))
}

// Runs against a real server when AUTOBOT_TEST_POSTGRES_DSN is set.
func TestLedgerStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("AUTOBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AUTOBOT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	client, err := postgres.New(ctx, postgres.ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	_, err = client.RunMigrations(ctx)
	require.NoError(t, err)
	_, err = client.Pool().Exec(ctx, `TRUNCATE open_positions, closed_trades, ledger_state`)
	require.NoError(t, err)

	s := postgres.NewLedgerStore(client.Pool())
	t0 := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	_, ok, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	pos, err := domain.NewPosition("p1", "m1", "Q?", "tok", domain.OrderSideBuy, 1000, 0.5, 0, domain.TriggerRules{
		StopLossPct: 0.15, TakeProfitPct: 0.30, BreakevenTriggerPct: 0.10, TrailingStopPct: 0.10,
	}, t0, true)
	require.NoError(t, err)
	require.NoError(t, s.OpenPosition(ctx, pos, domain.LedgerState{Balance: 9500, LastDailyReset: t0}))

	dup := pos
	dup.ID = "p2"
	assert.ErrorIs(t, s.OpenPosition(ctx, dup, domain.LedgerState{}), domain.ErrPositionExists)

	open, err := s.ListOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, 0.425, open[0].StopLossPrice, 1e-9)

	trade := pos.CloseAt(0.6, domain.CloseReasonManual, t0.Add(time.Hour))
	require.NoError(t, s.ClosePosition(ctx, pos.ID, trade, domain.LedgerState{Balance: 10100, DailyPnL: 100, TotalPnL: 100, LastDailyReset: t0}))
	assert.ErrorIs(t, s.ClosePosition(ctx, pos.ID, trade, domain.LedgerState{}), domain.ErrNotFound)

	st, ok, err := s.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10100.0, st.Balance)
	assert.True(t, st.LastDailyReset.Equal(t0))

	total, recent, err := s.PnLSince(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 100, total, 1e-9)
	assert.Zero(t, recent)

	stats, err := s.TradeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTrades)
	assert.InDelta(t, 100, stats.AvgWin, 1e-9)
}
