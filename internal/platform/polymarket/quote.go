package polymarket

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// Midpointer returns a token's midpoint price.
type Midpointer interface {
	Midpoint(ctx context.Context, tokenID string) (float64, error)
}

// QuoteSource is a domain.PriceSource backed by CLOB midpoint quotes.
type QuoteSource struct {
	client  Midpointer
	timeout time.Duration
}

// NewQuoteSource wraps client. Each quote is bounded by timeout.
func NewQuoteSource(client Midpointer, timeout time.Duration) *QuoteSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &QuoteSource{client: client, timeout: timeout}
}

// Price implements domain.PriceSource.
func (q *QuoteSource) Price(ctx context.Context, tokenID string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	mid, err := q.client.Midpoint(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	if mid < 0 || mid > 1 {
		return 0, fmt.Errorf("polymarket/quote: midpoint %.4f for %s outside [0, 1]", mid, tokenID)
	}
	return mid, nil
}

var _ domain.PriceSource = (*QuoteSource)(nil)
