package domain

import (
	"context"
	"time"
)

// PriceSource returns the current price of an outcome token.
type PriceSource interface {
	Price(ctx context.Context, tokenID string) (float64, error)
}

// PriceCache holds the last observed price of each token with the time it
// was observed. GetPrice returns ErrNotFound for an unknown token; GetPrices
// omits unknown tokens.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// LockManager hands out expiring exclusive locks. Acquire returns
// ErrLockHeld when someone else owns key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one entry of a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries events between processes: fire-and-forget channels for
// live consumers and capped streams for replay.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter decides whether one more request under key fits in limit per
// window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
