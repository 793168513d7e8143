package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Deletes the lock only if the caller still owns it.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Extends the lock only if the caller still owns it.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements domain.LockManager using SET NX with a TTL. It
// guards the ledger so only one trading process runs per account.
type LockManager struct {
	c        *Client
	unlockSc *redis.Script
	extendSc *redis.Script
	logger   *slog.Logger
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		c:        c,
		unlockSc: redis.NewScript(unlockLua),
		extendSc: redis.NewScript(extendLua),
		logger:   logger.With(slog.String("component", "redis_lock")),
	}
}

func (lm *LockManager) key(name string) string {
	return lm.c.Key("lock:" + name)
}

// Acquire takes the lock for ttl. The returned unlock function is safe to
// call more than once. It returns domain.ErrLockHeld when another holder
// owns the lock.
func (lm *LockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	key := lm.key(name)

	ok, err := lm.c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", name, domain.ErrLockHeld)
	}
	return lm.releaser(key, token), nil
}

// Hold takes the lock and keeps extending it every ttl/3 until ctx is done
// or the returned unlock is called. lost is closed if the lock could not be
// extended, meaning another process may now own it.
func (lm *LockManager) Hold(ctx context.Context, name string, ttl time.Duration) (unlock func(), lost <-chan struct{}, err error) {
	token := uuid.NewString()
	key := lm.key(name)

	ok, err := lm.c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redis: hold lock %s: %w", name, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("redis: hold lock %s: %w", name, domain.ErrLockHeld)
	}

	release := lm.releaser(key, token)
	stop := make(chan struct{})
	lostCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				n, err := lm.extendSc.Run(ctx, lm.c.rdb, []string{key}, token, ttl.Milliseconds()).Int64()
				if err != nil || n == 0 {
					lm.logger.Error("redis_lock: lost lock",
						slog.String("lock", name),
						slog.Any("error", err),
					)
					close(lostCh)
					return
				}
			}
		}
	}()

	stopped := false
	return func() {
		if !stopped {
			stopped = true
			close(stop)
		}
		release()
	}, lostCh, nil
}

func (lm *LockManager) releaser(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true

		// the caller's context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.unlockSc.Run(ctx, lm.c.rdb, []string{key}, token).Err()
	}
}

var _ domain.LockManager = (*LockManager)(nil)
