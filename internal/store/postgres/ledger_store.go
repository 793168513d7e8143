package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *LedgerStore) LoadState(ctx context.Context) (domain.LedgerState, bool, error) {
	var st domain.LedgerState
	var reset *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT balance, daily_pnl, total_pnl, last_daily_reset FROM ledger_state WHERE id = 1`,
	).Scan(&st.Balance, &st.DailyPnL, &st.TotalPnL, &reset)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LedgerState{}, false, nil
	}
	if err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("postgres: load state: %w", err)
	}
	if reset != nil {
		st.LastDailyReset = reset.UTC()
	}
	return st, true, nil
}

func saveState(ctx context.Context, db execer, st domain.LedgerState) error {
	var reset *time.Time
	if !st.LastDailyReset.IsZero() {
		r := st.LastDailyReset.UTC()
		reset = &r
	}
	_, err := db.Exec(ctx, `
		INSERT INTO ledger_state (id, balance, daily_pnl, total_pnl, last_daily_reset, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			balance = EXCLUDED.balance,
			daily_pnl = EXCLUDED.daily_pnl,
			total_pnl = EXCLUDED.total_pnl,
			last_daily_reset = EXCLUDED.last_daily_reset,
			updated_at = NOW()`,
		st.Balance, st.DailyPnL, st.TotalPnL, reset,
	)
	return err
}

func (s *LedgerStore) SaveState(ctx context.Context, st domain.LedgerState) error {
	if err := saveState(ctx, s.pool, st); err != nil {
		return fmt.Errorf("postgres: save state: %w", err)
	}
	return nil
}

func (s *LedgerStore) OpenPosition(ctx context.Context, p domain.Position, st domain.LedgerState) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO open_positions (
				id, market_id, market, token_id, side, size, price, risk_amount,
				stop_loss_price, take_profit_price, breakeven_trigger_price, highest_price,
				breakeven_triggered, trailing_stop_active, entry_time, paper
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			p.ID, p.MarketID, p.Market, p.TokenID, string(p.Side), p.Size, p.EntryPrice, p.RiskAmount,
			p.StopLossPrice, p.TakeProfitPrice, p.BreakevenTriggerPrice, p.HighestPrice,
			p.BreakevenTriggered, p.TrailingStopActive, p.EntryTime.UTC(), p.Paper,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("insert position: %w", domain.ErrPositionExists)
			}
			return fmt.Errorf("insert position: %w", err)
		}
		return saveState(ctx, tx, st)
	})
	if err != nil {
		return fmt.Errorf("postgres: open position %s: %w", p.ID, err)
	}
	return nil
}

func (s *LedgerStore) UpdatePosition(ctx context.Context, p domain.Position) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE open_positions SET
			stop_loss_price = $1, take_profit_price = $2, highest_price = $3,
			breakeven_triggered = $4, trailing_stop_active = $5, updated_at = NOW()
		WHERE id = $6`,
		p.StopLossPrice, p.TakeProfitPrice, p.HighestPrice,
		p.BreakevenTriggered, p.TrailingStopActive, p.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *LedgerStore) ClosePosition(ctx context.Context, positionID string, t domain.ClosedTrade, st domain.LedgerState) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM open_positions WHERE id = $1`, positionID)
		if err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO closed_trades (
				id, market_id, market, token_id, side, size, entry_price, exit_price, risk_amount,
				pnl, pnl_pct, won, close_reason, entry_time, exit_time,
				stop_loss_price, take_profit_price, breakeven_triggered, trailing_stop_active,
				highest_price, paper
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			t.ID, t.MarketID, t.Market, t.TokenID, string(t.Side), t.Size, t.EntryPrice, t.ExitPrice, t.RiskAmount,
			t.PnL, t.PnLPct, t.Won, string(t.CloseReason), t.EntryTime.UTC(), t.ExitTime.UTC(),
			t.StopLossPrice, t.TakeProfitPrice, t.BreakevenTriggered, t.TrailingStopActive,
			t.HighestPrice, t.Paper,
		); err != nil {
			return fmt.Errorf("insert closed trade: %w", err)
		}
		return saveState(ctx, tx, st)
	})
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", positionID, err)
	}
	return nil
}

func (s *LedgerStore) ListOpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, market_id, market, token_id, side, size, price, risk_amount,
		       stop_loss_price, take_profit_price, breakeven_trigger_price, highest_price,
		       breakeven_triggered, trailing_stop_active, entry_time, paper
		FROM open_positions ORDER BY entry_time, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var side string
		if err := rows.Scan(&p.ID, &p.MarketID, &p.Market, &p.TokenID, &side, &p.Size, &p.EntryPrice, &p.RiskAmount,
			&p.StopLossPrice, &p.TakeProfitPrice, &p.BreakevenTriggerPrice, &p.HighestPrice,
			&p.BreakevenTriggered, &p.TrailingStopActive, &p.EntryTime, &p.Paper); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		p.Side = domain.OrderSide(side)
		p.EntryTime = p.EntryTime.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

const tradeSelectCols = `id, market_id, market, token_id, side, size, entry_price, exit_price, risk_amount,
	pnl, pnl_pct, won, close_reason, entry_time, exit_time,
	stop_loss_price, take_profit_price, breakeven_triggered, trailing_stop_active,
	highest_price, paper`

func scanTradeRows(rows pgx.Rows) ([]domain.ClosedTrade, error) {
	var out []domain.ClosedTrade
	for rows.Next() {
		var t domain.ClosedTrade
		var side, reason string
		if err := rows.Scan(&t.ID, &t.MarketID, &t.Market, &t.TokenID, &side, &t.Size, &t.EntryPrice, &t.ExitPrice, &t.RiskAmount,
			&t.PnL, &t.PnLPct, &t.Won, &reason, &t.EntryTime, &t.ExitTime,
			&t.StopLossPrice, &t.TakeProfitPrice, &t.BreakevenTriggered, &t.TrailingStopActive,
			&t.HighestPrice, &t.Paper); err != nil {
			return nil, err
		}
		t.Side = domain.OrderSide(side)
		t.CloseReason = domain.CloseReason(reason)
		t.EntryTime = t.EntryTime.UTC()
		t.ExitTime = t.ExitTime.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListClosedTrades returns trades newest exit first.
func (s *LedgerStore) ListClosedTrades(ctx context.Context, opts domain.ListOpts) ([]domain.ClosedTrade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM closed_trades
		WHERE ($1::timestamptz IS NULL OR exit_time >= $1)
		  AND ($2::timestamptz IS NULL OR exit_time < $2)
		ORDER BY exit_time DESC, id`
	args := []any{opts.Since, opts.Until}
	if opts.Limit > 0 {
		query += ` LIMIT $3 OFFSET $4`
		args = append(args, opts.Limit, opts.Offset)
	} else if opts.Offset > 0 {
		query += ` OFFSET $3`
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed trades: %w", err)
	}
	return trades, nil
}

func (s *LedgerStore) ClosedTradesSince(ctx context.Context, since time.Time) ([]domain.ClosedTrade, error) {
	return s.ListClosedTrades(ctx, domain.ListOpts{Since: &since})
}

func (s *LedgerStore) ClosedTradesBetween(ctx context.Context, from, to time.Time) ([]domain.ClosedTrade, error) {
	return s.ListClosedTrades(ctx, domain.ListOpts{Since: &from, Until: &to})
}

func (s *LedgerStore) PnLSince(ctx context.Context, since time.Time) (float64, float64, error) {
	var total, recent float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(pnl), 0),
		       COALESCE(SUM(pnl) FILTER (WHERE exit_time >= $1), 0)
		FROM closed_trades`, since.UTC(),
	).Scan(&total, &recent)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: pnl since: %w", err)
	}
	return total, recent, nil
}

func (s *LedgerStore) TradeStats(ctx context.Context) (domain.TradeStats, error) {
	var st domain.TradeStats
	var total, avgWin, avgLoss, best, worst *float64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE won),
		       SUM(pnl),
		       AVG(pnl) FILTER (WHERE won),
		       AVG(pnl) FILTER (WHERE NOT won),
		       MAX(pnl),
		       MIN(pnl)
		FROM closed_trades`,
	).Scan(&st.TotalTrades, &st.Wins, &total, &avgWin, &avgLoss, &best, &worst)
	if err != nil {
		return domain.TradeStats{}, fmt.Errorf("postgres: trade stats: %w", err)
	}
	if st.TotalTrades == 0 {
		return domain.TradeStats{}, nil
	}

	st.Losses = st.TotalTrades - st.Wins
	st.WinRate = float64(st.Wins) / float64(st.TotalTrades) * 100
	st.TotalPnL = deref(total)
	st.AvgWin = deref(avgWin)
	st.AvgLoss = deref(avgLoss)
	st.BestTrade = deref(best)
	st.WorstTrade = deref(worst)
	return st, nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
