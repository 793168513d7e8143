package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerStore persists the ledger: one state row, the open positions and
// the closed-trade history. OpenPosition and ClosePosition write the
// position change and the new state atomically.
type LedgerStore interface {
	LoadState(ctx context.Context) (LedgerState, bool, error)
	SaveState(ctx context.Context, state LedgerState) error

	OpenPosition(ctx context.Context, pos Position, state LedgerState) error
	UpdatePosition(ctx context.Context, pos Position) error
	ClosePosition(ctx context.Context, positionID string, trade ClosedTrade, state LedgerState) error
	ListOpenPositions(ctx context.Context) ([]Position, error)

	ListClosedTrades(ctx context.Context, opts ListOpts) ([]ClosedTrade, error)
	ClosedTradesSince(ctx context.Context, since time.Time) ([]ClosedTrade, error)
	ClosedTradesBetween(ctx context.Context, from, to time.Time) ([]ClosedTrade, error)
	// PnLSince returns the realised P&L of all closed trades and of those
	// that exited at or after since.
	PnLSince(ctx context.Context, since time.Time) (total, sinceTotal float64, err error)
	TradeStats(ctx context.Context) (TradeStats, error)
}
