// Package sqlite implements domain.LedgerStore on a local SQLite file using
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC text so that string order is
// time order.
const timeLayout = "2006-01-02 15:04:05.000000000"

// Store is a SQLite-backed LedgerStore.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		// rows written by other tools
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) LoadState(ctx context.Context) (domain.LedgerState, bool, error) {
	var st domain.LedgerState
	var reset string
	err := s.db.QueryRowContext(ctx,
		`SELECT balance, daily_pnl, total_pnl, last_daily_reset FROM ledger_state WHERE id = 1`,
	).Scan(&st.Balance, &st.DailyPnL, &st.TotalPnL, &reset)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LedgerState{}, false, nil
	}
	if err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("sqlite: load state: %w", err)
	}
	if st.LastDailyReset, err = parseTime(reset); err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("sqlite: load state: parse last_daily_reset: %w", err)
	}
	return st, true, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveState(ctx context.Context, db execer, st domain.LedgerState) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ledger_state (id, balance, daily_pnl, total_pnl, last_daily_reset, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			balance = excluded.balance,
			daily_pnl = excluded.daily_pnl,
			total_pnl = excluded.total_pnl,
			last_daily_reset = excluded.last_daily_reset,
			updated_at = excluded.updated_at`,
		st.Balance, st.DailyPnL, st.TotalPnL, formatTime(st.LastDailyReset), formatTime(time.Now()),
	)
	return err
}

func (s *Store) SaveState(ctx context.Context, st domain.LedgerState) error {
	if err := saveState(ctx, s.db, st); err != nil {
		return fmt.Errorf("sqlite: save state: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) OpenPosition(ctx context.Context, pos domain.Position, st domain.LedgerState) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO open_positions (
				id, market_id, market, token_id, side, size, price, risk_amount,
				stop_loss_price, take_profit_price, breakeven_trigger_price, highest_price,
				breakeven_triggered, trailing_stop_active, entry_time, paper
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pos.ID, pos.MarketID, pos.Market, pos.TokenID, string(pos.Side), pos.Size, pos.EntryPrice, pos.RiskAmount,
			pos.StopLossPrice, pos.TakeProfitPrice, pos.BreakevenTriggerPrice, pos.HighestPrice,
			boolInt(pos.BreakevenTriggered), boolInt(pos.TrailingStopActive), formatTime(pos.EntryTime), boolInt(pos.Paper),
		); err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return fmt.Errorf("insert position: %w", domain.ErrPositionExists)
			}
			return fmt.Errorf("insert position: %w", err)
		}
		return saveState(ctx, tx, st)
	})
	if err != nil {
		return fmt.Errorf("sqlite: open position %s: %w", pos.ID, err)
	}
	return nil
}

func (s *Store) UpdatePosition(ctx context.Context, pos domain.Position) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE open_positions SET
			stop_loss_price = ?, take_profit_price = ?, highest_price = ?,
			breakeven_triggered = ?, trailing_stop_active = ?
		WHERE id = ?`,
		pos.StopLossPrice, pos.TakeProfitPrice, pos.HighestPrice,
		boolInt(pos.BreakevenTriggered), boolInt(pos.TrailingStopActive), pos.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update position %s: %w", pos.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: update position %s: %w", pos.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ClosePosition(ctx context.Context, positionID string, t domain.ClosedTrade, st domain.LedgerState) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM open_positions WHERE id = ?`, positionID)
		if err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO closed_trades (
				id, market_id, market, token_id, side, size, entry_price, exit_price, risk_amount,
				pnl, pnl_pct, won, close_reason, entry_time, exit_time,
				stop_loss_price, take_profit_price, breakeven_triggered, trailing_stop_active,
				highest_price, paper
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.MarketID, t.Market, t.TokenID, string(t.Side), t.Size, t.EntryPrice, t.ExitPrice, t.RiskAmount,
			t.PnL, t.PnLPct, boolInt(t.Won), string(t.CloseReason), formatTime(t.EntryTime), formatTime(t.ExitTime),
			t.StopLossPrice, t.TakeProfitPrice, boolInt(t.BreakevenTriggered), boolInt(t.TrailingStopActive),
			t.HighestPrice, boolInt(t.Paper),
		); err != nil {
			return fmt.Errorf("insert closed trade: %w", err)
		}
		return saveState(ctx, tx, st)
	})
	if err != nil {
		return fmt.Errorf("sqlite: close position %s: %w", positionID, err)
	}
	return nil
}

const positionColumns = `id, market_id, market, token_id, side, size, price, risk_amount,
	stop_loss_price, take_profit_price, breakeven_trigger_price, highest_price,
	breakeven_triggered, trailing_stop_active, entry_time, paper`

func (s *Store) ListOpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM open_positions ORDER BY entry_time, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var side, entry string
		var be, trailing, paper int
		if err := rows.Scan(&p.ID, &p.MarketID, &p.Market, &p.TokenID, &side, &p.Size, &p.EntryPrice, &p.RiskAmount,
			&p.StopLossPrice, &p.TakeProfitPrice, &p.BreakevenTriggerPrice, &p.HighestPrice,
			&be, &trailing, &entry, &paper); err != nil {
			return nil, fmt.Errorf("sqlite: scan position: %w", err)
		}
		p.Side = domain.OrderSide(side)
		p.BreakevenTriggered = be != 0
		p.TrailingStopActive = trailing != 0
		p.Paper = paper != 0
		if p.EntryTime, err = parseTime(entry); err != nil {
			return nil, fmt.Errorf("sqlite: position %s entry_time: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const tradeColumns = `id, market_id, market, token_id, side, size, entry_price, exit_price, risk_amount,
	pnl, pnl_pct, won, close_reason, entry_time, exit_time,
	stop_loss_price, take_profit_price, breakeven_triggered, trailing_stop_active,
	highest_price, paper`

// ListClosedTrades returns trades newest exit first.
func (s *Store) ListClosedTrades(ctx context.Context, opts domain.ListOpts) ([]domain.ClosedTrade, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		where = append(where, "exit_time >= ?")
		args = append(args, formatTime(*opts.Since))
	}
	if opts.Until != nil {
		where = append(where, "exit_time < ?")
		args = append(args, formatTime(*opts.Until))
	}

	q := `SELECT ` + tradeColumns + ` FROM closed_trades`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY exit_time DESC, id"
	if opts.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		q += " LIMIT -1"
	}
	if opts.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list closed trades: %w", err)
	}
	defer rows.Close()

	var out []domain.ClosedTrade
	for rows.Next() {
		var t domain.ClosedTrade
		var side, reason, entry, exit string
		var won, be, trailing, paper int
		if err := rows.Scan(&t.ID, &t.MarketID, &t.Market, &t.TokenID, &side, &t.Size, &t.EntryPrice, &t.ExitPrice, &t.RiskAmount,
			&t.PnL, &t.PnLPct, &won, &reason, &entry, &exit,
			&t.StopLossPrice, &t.TakeProfitPrice, &be, &trailing,
			&t.HighestPrice, &paper); err != nil {
			return nil, fmt.Errorf("sqlite: scan closed trade: %w", err)
		}
		t.Side = domain.OrderSide(side)
		t.CloseReason = domain.CloseReason(reason)
		t.Won = won != 0
		t.BreakevenTriggered = be != 0
		t.TrailingStopActive = trailing != 0
		t.Paper = paper != 0
		if t.EntryTime, err = parseTime(entry); err != nil {
			return nil, fmt.Errorf("sqlite: trade %s entry_time: %w", t.ID, err)
		}
		if t.ExitTime, err = parseTime(exit); err != nil {
			return nil, fmt.Errorf("sqlite: trade %s exit_time: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ClosedTradesSince(ctx context.Context, since time.Time) ([]domain.ClosedTrade, error) {
	return s.ListClosedTrades(ctx, domain.ListOpts{Since: &since})
}

func (s *Store) ClosedTradesBetween(ctx context.Context, from, to time.Time) ([]domain.ClosedTrade, error) {
	return s.ListClosedTrades(ctx, domain.ListOpts{Since: &from, Until: &to})
}

func (s *Store) PnLSince(ctx context.Context, since time.Time) (float64, float64, error) {
	var total, recent float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(pnl), 0),
		       COALESCE(SUM(CASE WHEN exit_time >= ? THEN pnl ELSE 0 END), 0)
		FROM closed_trades`,
		formatTime(since),
	).Scan(&total, &recent)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: pnl since: %w", err)
	}
	return total, recent, nil
}

func (s *Store) TradeStats(ctx context.Context) (domain.TradeStats, error) {
	var st domain.TradeStats
	var wins sql.NullInt64
	var total, winSum, lossSum, best, worst sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       SUM(won),
		       SUM(pnl),
		       SUM(CASE WHEN won = 1 THEN pnl ELSE 0 END),
		       SUM(CASE WHEN won = 0 THEN pnl ELSE 0 END),
		       MAX(pnl),
		       MIN(pnl)
		FROM closed_trades`,
	).Scan(&st.TotalTrades, &wins, &total, &winSum, &lossSum, &best, &worst)
	if err != nil {
		return domain.TradeStats{}, fmt.Errorf("sqlite: trade stats: %w", err)
	}
	if st.TotalTrades == 0 {
		return domain.TradeStats{}, nil
	}

	st.Wins = int(wins.Int64)
	st.Losses = st.TotalTrades - st.Wins
	st.WinRate = float64(st.Wins) / float64(st.TotalTrades) * 100
	st.TotalPnL = total.Float64
	st.BestTrade = best.Float64
	st.WorstTrade = worst.Float64
	if st.Wins > 0 {
		st.AvgWin = winSum.Float64 / float64(st.Wins)
	}
	if st.Losses > 0 {
		st.AvgLoss = lossSum.Float64 / float64(st.Losses)
	}
	return st, nil
}
