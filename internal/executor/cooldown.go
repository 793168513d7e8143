package executor

import (
	"sync"
	"time"
)

// Cooldown blocks re-entry into a token for a fixed window after the last
// trade on it. It is safe for concurrent use.
type Cooldown struct {
	last   map[string]time.Time // tokenID -> last trade activity
	window time.Duration
	mu     sync.Mutex
}

// NewCooldown creates a Cooldown with the given window.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		last:   make(map[string]time.Time),
		window: window,
	}
}

// Remaining returns how long tokenID stays blocked as of now; zero when it
// is free.
func (c *Cooldown) Remaining(tokenID string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.last[tokenID]
	if !ok {
		return 0
	}
	if left := at.Add(c.window).Sub(now); left > 0 {
		return left
	}
	return 0
}

// Record marks activity on tokenID at the given time. Older timestamps never
// overwrite newer ones.
func (c *Cooldown) Record(tokenID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.last[tokenID]; ok && prev.After(at) {
		return
	}
	c.last[tokenID] = at
}

// Restore merges recovered timestamps.
func (c *Cooldown) Restore(entries map[string]time.Time) {
	for token, at := range entries {
		c.Record(token, at)
	}
}

// Cleanup removes entries whose window has passed. This should be called
// periodically to prevent unbounded memory growth.
func (c *Cooldown) Cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for token, at := range c.last {
		if now.Sub(at) >= c.window {
			delete(c.last, token)
		}
	}
}

// Len returns the number of tracked tokens.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
