package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/google/uuid"
)

// OrderSubmitter places a live order and returns once the exchange answers.
type OrderSubmitter interface {
	Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// LedgerConfig holds the exit rules applied to every new position.
type LedgerConfig struct {
	StartingCapital float64
	Rules           domain.TriggerRules
	Paper           bool
	OrderTimeout    time.Duration
}

// OpenRequest describes a position to open. Size is in shares.
type OpenRequest struct {
	MarketID   string
	Market     string
	TokenID    string
	Side       domain.OrderSide
	Size       float64
	Price      float64
	RiskAmount float64
}

// TickResult reports what one price observation did to a position.
type TickResult struct {
	Position domain.Position
	Tick     domain.Tick
	Closed   *domain.ClosedTrade
}

// CloseHook is called after a position has been closed and persisted.
type CloseHook func(ctx context.Context, trade domain.ClosedTrade)

// PositionLedger owns the cash balance, the open positions and realised
// P&L. Every mutation is persisted before it becomes visible in memory, so a
// failed write leaves the ledger exactly as it was.
type PositionLedger struct {
	store  domain.LedgerStore
	orders OrderSubmitter
	cfg    LedgerConfig
	now    func() time.Time
	logger *slog.Logger

	// writeMu serialises mutations end to end, including store and order I/O.
	writeMu sync.Mutex

	mu        sync.RWMutex
	state     domain.LedgerState
	positions map[string]domain.Position

	hooksMu sync.RWMutex
	hooks   []CloseHook
}

// NewPositionLedger creates a ledger holding StartingCapital in cash and no
// positions. Call Restore to install recovered state.
func NewPositionLedger(store domain.LedgerStore, cfg LedgerConfig, logger *slog.Logger) *PositionLedger {
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 15 * time.Second
	}
	return &PositionLedger{
		store:     store,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "ledger")),
		state:     domain.LedgerState{Balance: cfg.StartingCapital},
		positions: make(map[string]domain.Position),
	}
}

// WithOrderSubmitter attaches the live order path. Without one the ledger
// can only run in paper mode.
func (l *PositionLedger) WithOrderSubmitter(s OrderSubmitter) *PositionLedger {
	l.orders = s
	return l
}

// WithClock replaces the wall clock used for entry and exit timestamps.
func (l *PositionLedger) WithClock(now func() time.Time) *PositionLedger {
	l.now = now
	return l
}

// OnClose registers a hook run after every successful close.
func (l *PositionLedger) OnClose(h CloseHook) {
	l.hooksMu.Lock()
	l.hooks = append(l.hooks, h)
	l.hooksMu.Unlock()
}

// Rules returns the exit rules applied to positions.
func (l *PositionLedger) Rules() domain.TriggerRules {
	return l.cfg.Rules
}

// Paper reports whether orders are simulated.
func (l *PositionLedger) Paper() bool {
	return l.cfg.Paper
}

// Restore replaces the in-memory state with recovered figures.
func (l *PositionLedger) Restore(state domain.LedgerState, positions []domain.Position) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	m := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		m[p.ID] = p
	}
	l.mu.Lock()
	l.state = state
	l.positions = m
	l.mu.Unlock()
}

// Snapshot returns a deep copy of the ledger, positions ordered by entry.
func (l *PositionLedger) Snapshot() domain.LedgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := domain.LedgerSnapshot{
		State:     l.state,
		Positions: make([]domain.Position, 0, len(l.positions)),
	}
	for _, p := range l.positions {
		out.Positions = append(out.Positions, p)
	}
	sort.Slice(out.Positions, func(i, j int) bool {
		a, b := out.Positions[i], out.Positions[j]
		if !a.EntryTime.Equal(b.EntryTime) {
			return a.EntryTime.Before(b.EntryTime)
		}
		return a.ID < b.ID
	})
	return out
}

// Position returns the open position with the given id.
func (l *PositionLedger) Position(id string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[id]
	return p, ok
}

// HasOpenPosition reports whether a position is open on tokenID.
func (l *PositionLedger) HasOpenPosition(tokenID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.positions {
		if p.TokenID == tokenID {
			return true
		}
	}
	return false
}

// Open opens a position. In live mode the order is submitted first and the
// bookkeeping only happens once the exchange accepts it.
func (l *PositionLedger) Open(ctx context.Context, req OpenRequest) (domain.Position, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.HasOpenPosition(req.TokenID) {
		return domain.Position{}, fmt.Errorf("ledger: open %s: %w", req.TokenID, domain.ErrPositionExists)
	}

	pos, err := domain.NewPosition(uuid.NewString(), req.MarketID, req.Market, req.TokenID, req.Side,
		req.Size, req.Price, req.RiskAmount, l.cfg.Rules, l.now(), l.cfg.Paper)
	if err != nil {
		return domain.Position{}, fmt.Errorf("ledger: open: %w", err)
	}

	l.mu.RLock()
	state := l.state
	l.mu.RUnlock()

	if pos.Side == domain.OrderSideBuy && pos.Value() > state.Balance {
		return domain.Position{}, fmt.Errorf("ledger: open %s: need $%.2f, have $%.2f: %w",
			req.TokenID, pos.Value(), state.Balance, domain.ErrInsufficientBalance)
	}

	if !l.cfg.Paper {
		orderID, err := l.submit(ctx, domain.OrderRequest{
			MarketID: req.MarketID,
			TokenID:  req.TokenID,
			Side:     req.Side,
			Price:    req.Price,
			Shares:   req.Size,
		})
		if err != nil {
			return domain.Position{}, err
		}
		if orderID != "" {
			pos.ID = orderID
		}
	}

	state.Balance += openCash(pos)
	if err := l.store.OpenPosition(ctx, pos, state); err != nil {
		return domain.Position{}, fmt.Errorf("ledger: persist open %s: %w", pos.ID, err)
	}

	l.mu.Lock()
	l.positions[pos.ID] = pos
	l.state = state
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "ledger: position opened",
		slog.String("position_id", pos.ID),
		slog.String("token_id", pos.TokenID),
		slog.String("side", string(pos.Side)),
		slog.Float64("size", pos.Size),
		slog.Float64("price", pos.EntryPrice),
		slog.Float64("stop_loss", pos.StopLossPrice),
		slog.Float64("take_profit", pos.TakeProfitPrice),
		slog.Float64("risk", pos.RiskAmount),
		slog.Float64("balance", state.Balance),
		slog.Bool("paper", pos.Paper),
	)
	return pos, nil
}

func (l *PositionLedger) submit(ctx context.Context, req domain.OrderRequest) (string, error) {
	if l.orders == nil {
		return "", errors.New("ledger: live trading requires an order submitter")
	}
	octx, cancel := context.WithTimeout(ctx, l.cfg.OrderTimeout)
	defer cancel()

	res, err := l.orders.Submit(octx, req)
	if err != nil {
		return "", fmt.Errorf("ledger: submit %s order: %w", req.Side, err)
	}
	if !res.Success {
		return "", fmt.Errorf("ledger: %w: %s", domain.ErrOrderRejected, res.Message)
	}
	return res.OrderID, nil
}

// exitSide is the order side that unwinds pos.
func exitSide(pos domain.Position) domain.OrderSide {
	if pos.Side == domain.OrderSideSell {
		return domain.OrderSideBuy
	}
	return domain.OrderSideSell
}

// Close closes an open position at exitPrice.
func (l *PositionLedger) Close(ctx context.Context, positionID string, exitPrice float64, reason domain.CloseReason) (domain.ClosedTrade, error) {
	l.writeMu.Lock()
	pos, ok := l.Position(positionID)
	if !ok {
		l.writeMu.Unlock()
		return domain.ClosedTrade{}, fmt.Errorf("ledger: close %s: %w", positionID, domain.ErrNotFound)
	}
	trade, err := l.closeLocked(ctx, pos, exitPrice, reason)
	l.writeMu.Unlock()
	if err != nil {
		return domain.ClosedTrade{}, err
	}

	l.fireClose(ctx, trade)
	return trade, nil
}

// closeLocked persists and commits a close. Live positions are unwound on
// the exchange first; a failed exit order leaves the position open. writeMu
// must be held.
func (l *PositionLedger) closeLocked(ctx context.Context, pos domain.Position, exitPrice float64, reason domain.CloseReason) (domain.ClosedTrade, error) {
	if exitPrice < 0 || exitPrice > 1 {
		return domain.ClosedTrade{}, fmt.Errorf("ledger: close %s: exit price %.4f outside [0, 1]", pos.ID, exitPrice)
	}
	if !l.cfg.Paper && !pos.Paper {
		if exitPrice == 0 {
			// Nothing can be sold or bought back at zero; the shares are
			// written off at their worthless value.
			l.logger.WarnContext(ctx, "ledger: exit at zero recorded without an order",
				slog.String("position_id", pos.ID),
				slog.String("token_id", pos.TokenID),
			)
		} else if _, err := l.submit(ctx, domain.OrderRequest{
			MarketID: pos.MarketID,
			TokenID:  pos.TokenID,
			Side:     exitSide(pos),
			Price:    exitPrice,
			Shares:   pos.Size,
		}); err != nil {
			return domain.ClosedTrade{}, fmt.Errorf("ledger: close %s: %w", pos.ID, err)
		}
	}
	trade := pos.CloseAt(exitPrice, reason, l.now())

	l.mu.RLock()
	state := l.state
	l.mu.RUnlock()

	state.Balance += closeCash(pos, exitPrice)
	state.DailyPnL += trade.PnL
	state.TotalPnL += trade.PnL

	if err := l.store.ClosePosition(ctx, pos.ID, trade, state); err != nil {
		return domain.ClosedTrade{}, fmt.Errorf("ledger: persist close %s: %w", pos.ID, err)
	}

	l.mu.Lock()
	delete(l.positions, pos.ID)
	l.state = state
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "ledger: position closed",
		slog.String("position_id", pos.ID),
		slog.String("token_id", pos.TokenID),
		slog.String("reason", string(reason)),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl", trade.PnL),
		slog.Float64("pnl_pct", trade.PnLPct),
		slog.Float64("balance", state.Balance),
	)
	return trade, nil
}

// ApplyPrice feeds one price observation through the position's exit state
// machine. Trailing and breakeven updates are persisted only when something
// moved; a triggered exit closes the position at the limit level.
func (l *PositionLedger) ApplyPrice(ctx context.Context, positionID string, price float64) (TickResult, error) {
	if price < 0 || price > 1 {
		return TickResult{}, fmt.Errorf("ledger: apply price %.4f to %s: price outside [0, 1]", price, positionID)
	}

	l.writeMu.Lock()
	pos, ok := l.Position(positionID)
	if !ok {
		l.writeMu.Unlock()
		return TickResult{}, fmt.Errorf("ledger: apply price to %s: %w", positionID, domain.ErrNotFound)
	}

	next := pos
	tick := next.Observe(price, l.cfg.Rules)
	res := TickResult{Position: next, Tick: tick}

	if tick.Triggered {
		trade, err := l.closeLocked(ctx, next, tick.ExitPrice, tick.Reason)
		l.writeMu.Unlock()
		if err != nil {
			return res, err
		}
		res.Closed = &trade
		l.fireClose(ctx, trade)
		return res, nil
	}

	if tick.Changed {
		if err := l.store.UpdatePosition(ctx, next); err != nil {
			l.writeMu.Unlock()
			return TickResult{Position: pos}, fmt.Errorf("ledger: persist update %s: %w", positionID, err)
		}
		l.mu.Lock()
		l.positions[positionID] = next
		l.mu.Unlock()

		if next.BreakevenTriggered && !pos.BreakevenTriggered {
			l.logger.InfoContext(ctx, "ledger: breakeven triggered",
				slog.String("position_id", positionID),
				slog.Float64("price", price),
				slog.Float64("stop_loss", next.StopLossPrice),
			)
		}
	}
	l.writeMu.Unlock()
	return res, nil
}

// ResetDaily zeroes the daily P&L at the start of a trading day.
func (l *PositionLedger) ResetDaily(ctx context.Context, at time.Time) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.RLock()
	state := l.state
	l.mu.RUnlock()

	prev := state.DailyPnL
	state.DailyPnL = 0
	state.LastDailyReset = at.UTC()
	if err := l.store.SaveState(ctx, state); err != nil {
		return fmt.Errorf("ledger: persist daily reset: %w", err)
	}

	l.mu.Lock()
	l.state = state
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "ledger: daily pnl reset", slog.Float64("previous_daily_pnl", prev))
	return nil
}

func (l *PositionLedger) fireClose(ctx context.Context, trade domain.ClosedTrade) {
	l.hooksMu.RLock()
	hooks := append([]CloseHook(nil), l.hooks...)
	l.hooksMu.RUnlock()
	for _, h := range hooks {
		h(ctx, trade)
	}
}

// openCash is the balance change when pos is opened: a buyer pays the
// notional, a seller receives it.
func openCash(pos domain.Position) float64 {
	if pos.Side == domain.OrderSideSell {
		return pos.Value()
	}
	return -pos.Value()
}

// closeCash is the balance change when pos is closed at exit.
func closeCash(pos domain.Position, exit float64) float64 {
	if pos.Side == domain.OrderSideSell {
		return -pos.Size * exit
	}
	return pos.Size * exit
}

// OpenCashFlow is the cash effect of holding pos, used to reconcile the
// balance from history.
func OpenCashFlow(pos domain.Position) float64 {
	return openCash(pos)
}
