package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/autobot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := config.Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10000.0, cfg.Trading.StartingCapital)
	assert.Equal(t, 0.05, cfg.Trading.RiskPerTradePct)
	assert.Equal(t, 0.30, cfg.Trading.MaxPositionPct)
	assert.Equal(t, 10, cfg.Trading.MaxConcurrentPositions)
	assert.Equal(t, 80.0, cfg.Trading.MaxExposurePct)
	assert.Equal(t, 4*time.Hour, cfg.Trading.Cooldown())
	assert.Equal(t, 4*time.Hour, cfg.Trading.PauseDuration.Duration)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval.Duration)
	assert.True(t, cfg.Trading.PaperTrading)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autobot.toml")
	body := `
mode = "monitor"

[trading]
starting_capital = 2500
stop_loss_pct = 0.2
pause_duration = "90m"

[monitor]
interval = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 2500.0, cfg.Trading.StartingCapital)
	assert.Equal(t, 0.2, cfg.Trading.StopLossPct)
	assert.Equal(t, 90*time.Minute, cfg.Trading.PauseDuration.Duration)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval.Duration)
	// untouched keys keep their defaults
	assert.Equal(t, 0.30, cfg.Trading.TakeProfitPct)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUTOBOT_TRADING_STARTING_CAPITAL", "500")
	t.Setenv("AUTOBOT_TRADING_PAPER_TRADING", "false")
	t.Setenv("AUTOBOT_STORAGE_DRIVER", "memory")
	t.Setenv("AUTOBOT_MONITOR_INTERVAL", "1m")
	t.Setenv("AUTOBOT_NOTIFY_EVENTS", "trade_executed, risk_paused ,")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 500.0, cfg.Trading.StartingCapital)
	assert.False(t, cfg.Trading.PaperTrading)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, time.Minute, cfg.Monitor.Interval.Duration)
	assert.Equal(t, []string{"trade_executed", "risk_paused"}, cfg.Notify.Events)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "yolo"
	cfg.Trading.StopLossPct = 0
	cfg.Trading.MaxConcurrentPositions = 0
	cfg.Storage.Driver = "mongo"
	cfg.Trading.PaperTrading = false

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "yolo"`)
	assert.Contains(t, msg, "stop_loss_pct must be in (0, 1)")
	assert.Contains(t, msg, "max_concurrent_positions must be >= 1")
	assert.Contains(t, msg, `unknown driver "mongo"`)
	// an unknown mode never sends orders
	assert.NotContains(t, msg, "wallet:")
}

func TestValidateLiveTradingNeedsWallet(t *testing.T) {
	cfg := config.Defaults()
	cfg.Trading.PaperTrading = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet: either private_key or encrypted_key_path")

	cfg.Wallet.PrivateKey = "0xabc"
	assert.NoError(t, cfg.Validate())
}

func TestLiveOrdersByMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Trading.PaperTrading = false
	for mode, want := range map[string]bool{"trade": true, "monitor": true, "report": false} {
		cfg.Mode = mode
		assert.Equal(t, want, cfg.LiveOrders(), mode)
	}

	cfg.Mode = "trade"
	cfg.Trading.PaperTrading = true
	assert.False(t, cfg.LiveOrders())
}

func TestRedactedConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Wallet.PrivateKey = "0xsecret"
	cfg.Storage.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "tg"
	cfg.Server.APIKey = ""

	out := config.RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Storage.Postgres.Password)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.Server.APIKey)

	out.Notify.Events[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Notify.Events[0])
	assert.Equal(t, "0xsecret", cfg.Wallet.PrivateKey)
}
