// Package pricing provides the price sources the limit monitor reads from.
package pricing

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// FedSource serves prices that are pushed into it. Each token has a queue of
// scripted prices; every read pops the head until one value is left, which
// then repeats. It backs scripted simulations and tests.
type FedSource struct {
	mu     sync.Mutex
	queues map[string][]float64
	errs   map[string]error
}

// NewFedSource creates an empty FedSource.
func NewFedSource() *FedSource {
	return &FedSource{
		queues: make(map[string][]float64),
		errs:   make(map[string]error),
	}
}

// Set replaces the token's queue with a single standing price.
func (f *FedSource) Set(tokenID string, price float64) {
	f.Script(tokenID, price)
}

// Script replaces the token's queue with the given sequence.
func (f *FedSource) Script(tokenID string, prices ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[tokenID] = append([]float64(nil), prices...)
	delete(f.errs, tokenID)
}

// Fail makes reads for the token return err until the next Set or Script.
func (f *FedSource) Fail(tokenID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[tokenID] = err
}

// Price implements domain.PriceSource.
func (f *FedSource) Price(ctx context.Context, tokenID string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.errs[tokenID]; err != nil {
		return 0, err
	}
	q := f.queues[tokenID]
	if len(q) == 0 {
		return 0, fmt.Errorf("pricing: no price for %s: %w", tokenID, domain.ErrNotFound)
	}
	p := q[0]
	if len(q) > 1 {
		f.queues[tokenID] = q[1:]
	}
	return p, nil
}
