package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/service"
	"github.com/alanyoungcy/autobot/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerConfig(paper bool) service.LedgerConfig {
	return service.LedgerConfig{
		StartingCapital: 10000,
		Paper:           paper,
		Rules: domain.TriggerRules{
			StopLossPct:         0.15,
			TakeProfitPct:       0.30,
			BreakevenTriggerPct: 0.10,
			TrailingStopPct:     0.10,
			UseTrailingStop:     true,
		},
	}
}

func newLedger(t *testing.T) (*service.PositionLedger, *memory.Store, *fakeClock) {
	t.Helper()
	store := memory.New()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)}
	l := service.NewPositionLedger(store, ledgerConfig(true), discardLogger()).WithClock(clock.Now)
	return l, store, clock
}

func buyReq(token string, shares, price float64) service.OpenRequest {
	return service.OpenRequest{
		MarketID: "m-" + token,
		Market:   "Question about " + token,
		TokenID:  token,
		Side:     domain.OrderSideBuy,
		Size:     shares,
		Price:    price,
	}
}

func TestLedgerOpenDebitsAndPersists(t *testing.T) {
	ctx := context.Background()
	l, store, _ := newLedger(t)

	pos, err := l.Open(ctx, buyReq("tok", 2000, 0.5))
	require.NoError(t, err)
	assert.NotEmpty(t, pos.ID)
	assert.True(t, pos.Paper)
	assert.InDelta(t, 0.425, pos.StopLossPrice, 1e-9)

	snap := l.Snapshot()
	assert.InDelta(t, 9000, snap.State.Balance, 1e-9)
	require.Len(t, snap.Positions, 1)
	assert.InDelta(t, 1000, snap.Exposure(), 1e-9)

	stored, err := store.ListOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, pos.ID, stored[0].ID)
	state, ok, err := store.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 9000, state.Balance, 1e-9)
}

func TestLedgerOpenRejections(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLedger(t)

	_, err := l.Open(ctx, buyReq("tok", 100, 0.5))
	require.NoError(t, err)

	_, err = l.Open(ctx, buyReq("tok", 100, 0.5))
	assert.ErrorIs(t, err, domain.ErrPositionExists)

	_, err = l.Open(ctx, buyReq("big", 100000, 0.5))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = l.Open(ctx, buyReq("bad", 100, 1.0))
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)

	assert.Len(t, l.Snapshot().Positions, 1)
}

func TestLedgerStoreFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	l, store, _ := newLedger(t)

	pos, err := l.Open(ctx, buyReq("tok", 1000, 0.5))
	require.NoError(t, err)
	before := l.Snapshot()

	store.FailWrites(errors.New("disk full"))
	_, err = l.Open(ctx, buyReq("other", 100, 0.5))
	require.Error(t, err)
	_, err = l.Close(ctx, pos.ID, 0.6, domain.CloseReasonManual)
	require.Error(t, err)
	_, err = l.ApplyPrice(ctx, pos.ID, 0.58)
	require.Error(t, err)

	assert.Equal(t, before, l.Snapshot())
}

func TestLedgerCloseCreditsAndRecords(t *testing.T) {
	ctx := context.Background()
	l, store, clock := newLedger(t)

	var hooked []domain.ClosedTrade
	l.OnClose(func(_ context.Context, tr domain.ClosedTrade) { hooked = append(hooked, tr) })

	pos, err := l.Open(ctx, buyReq("tok", 1000, 0.5))
	require.NoError(t, err)
	clock.Advance(time.Hour)

	trade, err := l.Close(ctx, pos.ID, 0.6, domain.CloseReasonManual)
	require.NoError(t, err)
	assert.InDelta(t, 100, trade.PnL, 1e-9)
	assert.InDelta(t, 20, trade.PnLPct, 1e-9)
	assert.True(t, trade.Won)
	assert.Equal(t, clock.Now(), trade.ExitTime)

	snap := l.Snapshot()
	assert.Empty(t, snap.Positions)
	assert.InDelta(t, 10100, snap.State.Balance, 1e-9)
	assert.InDelta(t, 100, snap.State.DailyPnL, 1e-9)
	assert.InDelta(t, 100, snap.State.TotalPnL, 1e-9)

	trades, err := store.ListClosedTrades(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Len(t, hooked, 1)
	assert.Equal(t, pos.ID, hooked[0].ID)

	_, err = l.Close(ctx, pos.ID, 0.6, domain.CloseReasonManual)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerSellAccountingNetsToPnL(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLedger(t)

	req := buyReq("tok", 1000, 0.5)
	req.Side = domain.OrderSideSell
	pos, err := l.Open(ctx, req)
	require.NoError(t, err)
	assert.InDelta(t, 10500, l.Snapshot().State.Balance, 1e-9)

	trade, err := l.Close(ctx, pos.ID, 0.4, domain.CloseReasonManual)
	require.NoError(t, err)
	assert.InDelta(t, 100, trade.PnL, 1e-9)
	assert.InDelta(t, 10100, l.Snapshot().State.Balance, 1e-9)
}

func TestLedgerApplyPriceTrailsThenCloses(t *testing.T) {
	ctx := context.Background()
	l, store, _ := newLedger(t)

	pos, err := l.Open(ctx, buyReq("tok", 1000, 0.5))
	require.NoError(t, err)

	res, err := l.ApplyPrice(ctx, pos.ID, 0.60)
	require.NoError(t, err)
	assert.True(t, res.Tick.Changed)
	assert.Nil(t, res.Closed)
	stored, err := store.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.True(t, stored[0].TrailingStopActive)
	assert.InDelta(t, 0.54, stored[0].StopLossPrice, 1e-9)

	res, err = l.ApplyPrice(ctx, pos.ID, 0.55)
	require.NoError(t, err)
	assert.False(t, res.Tick.Changed)

	res, err = l.ApplyPrice(ctx, pos.ID, 0.50)
	require.NoError(t, err)
	require.NotNil(t, res.Closed)
	assert.Equal(t, domain.CloseReasonTrailingStop, res.Closed.CloseReason)
	assert.InDelta(t, 0.54, res.Closed.ExitPrice, 1e-9)
	assert.InDelta(t, 40, res.Closed.PnL, 1e-9)
	assert.True(t, res.Closed.TrailingStopActive)
	assert.Empty(t, l.Snapshot().Positions)
}

func TestLedgerApplyPriceUnknownOrInvalid(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLedger(t)

	_, err := l.ApplyPrice(ctx, "missing", 0.5)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, bad := range []float64{-0.01, 1.01} {
		_, err = l.ApplyPrice(ctx, "missing", bad)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
	}
}

func TestLedgerApplyPriceAtZeroStopsOut(t *testing.T) {
	ctx := context.Background()
	l, store, _ := newLedger(t)

	pos, err := l.Open(ctx, buyReq("tok", 1000, 0.5))
	require.NoError(t, err)

	res, err := l.ApplyPrice(ctx, pos.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, res.Closed)
	assert.Equal(t, domain.CloseReasonStopLoss, res.Closed.CloseReason)
	assert.InDelta(t, 0.425, res.Closed.ExitPrice, 1e-9)
	assert.Empty(t, l.Snapshot().Positions)

	open, err := store.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestLedgerResetDaily(t *testing.T) {
	ctx := context.Background()
	l, store, clock := newLedger(t)

	pos, err := l.Open(ctx, buyReq("tok", 1000, 0.5))
	require.NoError(t, err)
	_, err = l.Close(ctx, pos.ID, 0.4, domain.CloseReasonManual)
	require.NoError(t, err)
	require.InDelta(t, -100, l.Snapshot().State.DailyPnL, 1e-9)

	require.NoError(t, l.ResetDaily(ctx, clock.Now()))
	snap := l.Snapshot()
	assert.Zero(t, snap.State.DailyPnL)
	assert.InDelta(t, -100, snap.State.TotalPnL, 1e-9)
	assert.Equal(t, clock.Now(), snap.State.LastDailyReset)

	state, _, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Zero(t, state.DailyPnL)
}

func TestLedgerSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLedger(t)
	_, err := l.Open(ctx, buyReq("tok", 100, 0.5))
	require.NoError(t, err)

	snap := l.Snapshot()
	snap.Positions[0].StopLossPrice = 0.99
	snap.State.Balance = 0

	again := l.Snapshot()
	assert.InDelta(t, 0.425, again.Positions[0].StopLossPrice, 1e-9)
	assert.InDelta(t, 9950, again.State.Balance, 1e-9)
}

type stubSubmitter struct {
	mu     sync.Mutex
	result domain.OrderResult
	err    error
	reqs   []domain.OrderRequest
}

func (s *stubSubmitter) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return domain.OrderResult{}, errors.New("submit called without deadline")
	}
	s.reqs = append(s.reqs, req)
	return s.result, s.err
}

func TestLedgerLiveModeSubmitsOrder(t *testing.T) {
	ctx := context.Background()
	sub := &stubSubmitter{result: domain.OrderResult{Success: true, OrderID: "0xorder"}}
	l := service.NewPositionLedger(memory.New(), ledgerConfig(false), discardLogger()).WithOrderSubmitter(sub)

	pos, err := l.Open(ctx, buyReq("tok", 100, 0.5))
	require.NoError(t, err)
	assert.Equal(t, "0xorder", pos.ID)
	assert.False(t, pos.Paper)
	require.Len(t, sub.reqs, 1)
	assert.Equal(t, domain.OrderRequest{MarketID: "m-tok", TokenID: "tok", Side: domain.OrderSideBuy, Price: 0.5, Shares: 100}, sub.reqs[0])
}

func TestLedgerLiveModeRejectionIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	sub := &stubSubmitter{result: domain.OrderResult{Success: false, Message: "not enough balance"}}
	store := memory.New()
	l := service.NewPositionLedger(store, ledgerConfig(false), discardLogger()).WithOrderSubmitter(sub)

	_, err := l.Open(ctx, buyReq("tok", 100, 0.5))
	require.ErrorIs(t, err, domain.ErrOrderRejected)

	snap := l.Snapshot()
	assert.Empty(t, snap.Positions)
	assert.Equal(t, 10000.0, snap.State.Balance)
	_, saved, _ := store.LoadState(ctx)
	assert.False(t, saved)

	sub.err = errors.New("timeout")
	_, err = l.Open(ctx, buyReq("tok", 100, 0.5))
	require.Error(t, err)
	assert.Empty(t, l.Snapshot().Positions)
}

func TestLedgerLiveModeCloseSubmitsExitOrder(t *testing.T) {
	ctx := context.Background()
	sub := &stubSubmitter{result: domain.OrderResult{Success: true, OrderID: "0xentry"}}
	l := service.NewPositionLedger(memory.New(), ledgerConfig(false), discardLogger()).WithOrderSubmitter(sub)

	pos, err := l.Open(ctx, buyReq("tok", 100, 0.5))
	require.NoError(t, err)

	res, err := l.ApplyPrice(ctx, pos.ID, 0.40)
	require.NoError(t, err)
	require.NotNil(t, res.Closed)
	assert.Equal(t, domain.CloseReasonStopLoss, res.Closed.CloseReason)

	require.Len(t, sub.reqs, 2)
	assert.Equal(t, domain.OrderRequest{MarketID: "m-tok", TokenID: "tok", Side: domain.OrderSideSell, Price: 0.425, Shares: 100}, sub.reqs[1])
	assert.InDelta(t, 10000-50+42.5, l.Snapshot().State.Balance, 1e-9)
}

func TestLedgerLiveModeFailedExitKeepsPosition(t *testing.T) {
	ctx := context.Background()
	sub := &stubSubmitter{result: domain.OrderResult{Success: true, OrderID: "0xentry"}}
	store := memory.New()
	l := service.NewPositionLedger(store, ledgerConfig(false), discardLogger()).WithOrderSubmitter(sub)

	pos, err := l.Open(ctx, buyReq("tok", 100, 0.5))
	require.NoError(t, err)

	var closed int
	l.OnClose(func(context.Context, domain.ClosedTrade) { closed++ })

	sub.result = domain.OrderResult{Success: false, Message: "no liquidity"}
	_, err = l.Close(ctx, pos.ID, 0.45, domain.CloseReasonManual)
	require.ErrorIs(t, err, domain.ErrOrderRejected)

	sub.result, sub.err = domain.OrderResult{}, errors.New("timeout")
	_, err = l.ApplyPrice(ctx, pos.ID, 0.40)
	require.Error(t, err)

	snap := l.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.InDelta(t, 9950, snap.State.Balance, 1e-9)
	assert.Zero(t, snap.State.DailyPnL)
	assert.Zero(t, closed)

	trades, err := store.ListClosedTrades(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, trades)

	// the exit goes through once the exchange accepts it
	sub.result, sub.err = domain.OrderResult{Success: true}, nil
	trade, err := l.Close(ctx, pos.ID, 0.45, domain.CloseReasonManual)
	require.NoError(t, err)
	assert.InDelta(t, -5, trade.PnL, 1e-9)
	assert.Equal(t, 1, closed)
}

func TestLedgerLiveModeWithoutSubmitter(t *testing.T) {
	l := service.NewPositionLedger(memory.New(), ledgerConfig(false), discardLogger())
	_, err := l.Open(context.Background(), buyReq("tok", 100, 0.5))
	assert.Error(t, err)
}

func TestLedgerConcurrentReadsDuringMutation(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := l.Snapshot()
				// cash plus notional at entry is conserved while nothing closes
				assert.InDelta(t, 10000, snap.State.Balance+snap.Exposure(), 1e-6)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		_, err := l.Open(ctx, buyReq(string(rune('a'+i)), 10, 0.5))
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Len(t, l.Snapshot().Positions, 20)
}
