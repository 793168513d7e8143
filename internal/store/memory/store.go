// Package memory implements domain.LedgerStore with in-process maps. It backs
// tests and the "memory" storage driver; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// Store is an in-memory LedgerStore.
type Store struct {
	mu        sync.RWMutex
	state     domain.LedgerState
	hasState  bool
	positions map[string]domain.Position
	trades    []domain.ClosedTrade
	writeErr  error
}

// New creates an empty store.
func New() *Store {
	return &Store{positions: make(map[string]domain.Position)}
}

// FailWrites makes every subsequent write return err until cleared with nil.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

func (s *Store) LoadState(_ context.Context) (domain.LedgerState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.hasState, nil
}

func (s *Store) SaveState(_ context.Context, state domain.LedgerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.state, s.hasState = state, true
	return nil
}

func (s *Store) OpenPosition(_ context.Context, pos domain.Position, state domain.LedgerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if _, ok := s.positions[pos.ID]; ok {
		return fmt.Errorf("memory: position %s already exists", pos.ID)
	}
	s.positions[pos.ID] = pos
	s.state, s.hasState = state, true
	return nil
}

func (s *Store) UpdatePosition(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if _, ok := s.positions[pos.ID]; !ok {
		return fmt.Errorf("memory: update position %s: %w", pos.ID, domain.ErrNotFound)
	}
	s.positions[pos.ID] = pos
	return nil
}

func (s *Store) ClosePosition(_ context.Context, positionID string, trade domain.ClosedTrade, state domain.LedgerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if _, ok := s.positions[positionID]; !ok {
		return fmt.Errorf("memory: close position %s: %w", positionID, domain.ErrNotFound)
	}
	delete(s.positions, positionID)
	s.trades = append(s.trades, trade)
	s.state, s.hasState = state, true
	return nil
}

func (s *Store) ListOpenPositions(_ context.Context) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

// ListClosedTrades returns trades newest exit first.
func (s *Store) ListClosedTrades(_ context.Context, opts domain.ListOpts) ([]domain.ClosedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ClosedTrade
	for i := len(s.trades) - 1; i >= 0; i-- {
		t := s.trades[i]
		if opts.Since != nil && t.ExitTime.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !t.ExitTime.Before(*opts.Until) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExitTime.After(out[j].ExitTime) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) ClosedTradesSince(ctx context.Context, since time.Time) ([]domain.ClosedTrade, error) {
	return s.ListClosedTrades(ctx, domain.ListOpts{Since: &since})
}

func (s *Store) ClosedTradesBetween(ctx context.Context, from, to time.Time) ([]domain.ClosedTrade, error) {
	return s.ListClosedTrades(ctx, domain.ListOpts{Since: &from, Until: &to})
}

func (s *Store) PnLSince(_ context.Context, since time.Time) (float64, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total, recent float64
	for _, t := range s.trades {
		total += t.PnL
		if !t.ExitTime.Before(since) {
			recent += t.PnL
		}
	}
	return total, recent, nil
}

func (s *Store) TradeStats(_ context.Context) (domain.TradeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.ComputeTradeStats(s.trades), nil
}

// AddClosedTrade seeds history directly, bypassing the ledger.
func (s *Store) AddClosedTrade(t domain.ClosedTrade) {
	s.mu.Lock()
	s.trades = append(s.trades, t)
	s.mu.Unlock()
}
