package executor_test

import (
	"testing"
	"time"

	"github.com/alanyoungcy/autobot/internal/executor"
	"github.com/stretchr/testify/assert"
)

func TestCooldown(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	c := executor.NewCooldown(4 * time.Hour)

	assert.Zero(t, c.Remaining("tok", base))

	c.Record("tok", base)
	assert.Equal(t, 4*time.Hour, c.Remaining("tok", base))
	assert.Equal(t, time.Hour, c.Remaining("tok", base.Add(3*time.Hour)))
	assert.Zero(t, c.Remaining("tok", base.Add(4*time.Hour)))

	// older activity never shortens the window
	c.Record("tok", base.Add(-2*time.Hour))
	assert.Equal(t, 4*time.Hour, c.Remaining("tok", base))

	c.Restore(map[string]time.Time{"other": base.Add(-5 * time.Hour)})
	assert.Equal(t, 2, c.Len())

	c.Cleanup(base)
	assert.Equal(t, 1, c.Len())
	c.Cleanup(base.Add(4 * time.Hour))
	assert.Zero(t, c.Len())
}
