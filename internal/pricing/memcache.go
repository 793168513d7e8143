package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

type entry struct {
	price float64
	ts    time.Time
}

// MemoryCache is an in-process domain.PriceCache used when Redis is
// disabled.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry)}
}

// SetPrice stores the price unless a newer one is already cached.
func (m *MemoryCache) SetPrice(_ context.Context, tokenID string, price float64, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[tokenID]; ok && cur.ts.After(ts) {
		return nil
	}
	m.entries[tokenID] = entry{price: price, ts: ts}
	return nil
}

// GetPrice returns the cached price and its timestamp.
func (m *MemoryCache) GetPrice(_ context.Context, tokenID string) (float64, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[tokenID]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("pricing: cache miss %s: %w", tokenID, domain.ErrNotFound)
	}
	return e.price, e.ts, nil
}

// GetPrices returns the cached prices for the tokens that have one.
func (m *MemoryCache) GetPrices(_ context.Context, tokenIDs []string) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(tokenIDs))
	for _, id := range tokenIDs {
		if e, ok := m.entries[id]; ok {
			out[id] = e.price
		}
	}
	return out, nil
}
