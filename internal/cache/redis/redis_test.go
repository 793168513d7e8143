package redis_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/autobot/internal/cache/redis"
	"github.com/alanyoungcy/autobot/internal/domain"
)

// newClient connects to AUTOBOT_TEST_REDIS_ADDR under a throwaway prefix.
func newClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("AUTOBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AUTOBOT_TEST_REDIS_ADDR not set")
	}
	c, err := redis.New(context.Background(), redis.ClientConfig{
		Addr:      addr,
		KeyPrefix: "autobot-test:" + uuid.NewString() + ":",
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPriceCache(t *testing.T) {
	ctx := context.Background()
	pc := redis.NewPriceCache(newClient(t))
	ts := time.Date(2026, 3, 2, 15, 0, 0, 123, time.UTC)

	_, _, err := pc.GetPrice(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, pc.SetPrice(ctx, "tok", 0.615, ts))
	p, got, err := pc.GetPrice(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 0.615, p)
	assert.True(t, got.Equal(ts))

	prices, err := pc.GetPrices(ctx, []string{"tok", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"tok": 0.615}, prices)
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	lm := redis.NewLockManager(newClient(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	unlock, err := lm.Acquire(ctx, "ledger", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "ledger", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	release, lost, err := lm.Hold(ctx, "ledger", 300*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(time.Second)
	select {
	case <-lost:
		t.Fatal("held lock was lost")
	default:
	}
	_, err = lm.Acquire(ctx, "ledger", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	release()
}

func TestSignalBus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus := redis.NewSignalBus(newClient(t))

	sub, err := bus.Subscribe(ctx, "events")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "events", []byte(`{"type":"ping"}`)))
	select {
	case msg := <-sub:
		assert.JSONEq(t, `{"type":"ping"}`, string(msg))
	case <-ctx.Done():
		t.Fatal("no message received")
	}

	require.NoError(t, bus.StreamAppend(ctx, "log", []byte("a")))
	require.NoError(t, bus.StreamAppend(ctx, "log", []byte("b")))
	msgs, err := bus.StreamRead(ctx, "log", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", string(msgs[1].Payload))

	more, err := bus.StreamRead(ctx, "log", msgs[1].ID, 10)
	require.NoError(t, err)
	assert.Empty(t, more)
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	rl := redis.NewRateLimiter(newClient(t))

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "client", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "client", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
