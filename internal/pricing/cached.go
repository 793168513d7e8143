package pricing

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// CachedSource reads prices from a cache kept warm by the live feed and falls
// back to a direct quote when the cached value is missing or older than
// maxAge. Fallback quotes are written back to the cache.
type CachedSource struct {
	cache    domain.PriceCache
	fallback domain.PriceSource
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewCachedSource creates a CachedSource. fallback may be nil, in which case
// a stale or missing cache entry is an error.
func NewCachedSource(cache domain.PriceCache, fallback domain.PriceSource, maxAge time.Duration, logger *slog.Logger) *CachedSource {
	if maxAge <= 0 {
		maxAge = 2 * time.Minute
	}
	return &CachedSource{
		cache:    cache,
		fallback: fallback,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "cached_price_source")),
	}
}

// WithClock replaces the wall clock used for staleness checks.
func (c *CachedSource) WithClock(now func() time.Time) *CachedSource {
	c.now = now
	return c
}

// Price implements domain.PriceSource.
func (c *CachedSource) Price(ctx context.Context, tokenID string) (float64, error) {
	price, ts, err := c.cache.GetPrice(ctx, tokenID)
	now := c.now()
	if err == nil && price >= 0 && price <= 1 && now.Sub(ts) <= c.maxAge {
		return price, nil
	}

	if c.fallback == nil {
		if err != nil {
			return 0, err
		}
		return 0, domain.ErrStalePrice
	}

	price, err = c.fallback.Price(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	if err := c.cache.SetPrice(ctx, tokenID, price, now); err != nil {
		c.logger.WarnContext(ctx, "cached_price_source: write-through failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}
	return price, nil
}
