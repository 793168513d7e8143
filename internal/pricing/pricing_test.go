package pricing_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFedSourceScript(t *testing.T) {
	ctx := context.Background()
	f := pricing.NewFedSource()

	_, err := f.Price(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.Script("tok", 0.5, 0.6, 0.7)
	for _, want := range []float64{0.5, 0.6, 0.7, 0.7} {
		got, err := f.Price(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	boom := errors.New("boom")
	f.Fail("tok", boom)
	_, err = f.Price(ctx, "tok")
	assert.ErrorIs(t, err, boom)

	f.Set("tok", 0.4)
	got, err := f.Price(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 0.4, got)
}

func TestFedSourceHonoursContext(t *testing.T) {
	f := pricing.NewFedSource()
	f.Set("tok", 0.5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Price(ctx, "tok")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachedSource(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cache := pricing.NewMemoryCache()
	fallback := pricing.NewFedSource()
	fallback.Set("tok", 0.61)

	src := pricing.NewCachedSource(cache, fallback, 2*time.Minute, logger).
		WithClock(func() time.Time { return now })

	t.Run("fresh cache hit", func(t *testing.T) {
		require.NoError(t, cache.SetPrice(ctx, "tok", 0.55, now.Add(-time.Minute)))
		p, err := src.Price(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, 0.55, p)
	})

	t.Run("stale entry falls back and writes through", func(t *testing.T) {
		now = now.Add(5 * time.Minute)
		p, err := src.Price(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, 0.61, p)

		cached, ts, err := cache.GetPrice(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, 0.61, cached)
		assert.Equal(t, now, ts)
	})

	t.Run("zero is a valid cached price", func(t *testing.T) {
		require.NoError(t, cache.SetPrice(ctx, "resolved", 0, now))
		p, err := src.Price(ctx, "resolved")
		require.NoError(t, err)
		assert.Zero(t, p)
	})

	t.Run("miss without fallback", func(t *testing.T) {
		bare := pricing.NewCachedSource(pricing.NewMemoryCache(), nil, time.Minute, logger)
		_, err := bare.Price(ctx, "other")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("stale without fallback", func(t *testing.T) {
		c := pricing.NewMemoryCache()
		require.NoError(t, c.SetPrice(ctx, "tok", 0.5, now.Add(-time.Hour)))
		bare := pricing.NewCachedSource(c, nil, time.Minute, logger).WithClock(func() time.Time { return now })
		_, err := bare.Price(ctx, "tok")
		assert.ErrorIs(t, err, domain.ErrStalePrice)
	})
}

func TestMemoryCacheKeepsNewest(t *testing.T) {
	ctx := context.Background()
	c := pricing.NewMemoryCache()
	t0 := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	require.NoError(t, c.SetPrice(ctx, "a", 0.5, t0))
	require.NoError(t, c.SetPrice(ctx, "a", 0.4, t0.Add(-time.Second)))
	require.NoError(t, c.SetPrice(ctx, "b", 0.3, t0))

	p, _, err := c.GetPrice(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0.5, p)

	got, err := c.GetPrices(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"a": 0.5, "b": 0.3}, got)
}
