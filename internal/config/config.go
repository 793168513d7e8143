// Package config defines the top-level configuration for autobot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AUTOBOT_* environment variables.
type Config struct {
	Trading    TradingConfig    `toml:"trading"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Storage    StorageConfig    `toml:"storage"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// TradingConfig holds the risk limits, exit rules and entry filters.
// Percentages are fractions (0.05 = 5%) except MaxExposurePct, which is a
// whole percentage of equity.
type TradingConfig struct {
	StartingCapital        float64  `toml:"starting_capital"`
	RiskPerTradePct        float64  `toml:"risk_per_trade_pct"`
	MaxPositionPct         float64  `toml:"max_position_pct"`
	MaxDailyLossPct        float64  `toml:"max_daily_loss_pct"`
	MaxConcurrentPositions int      `toml:"max_concurrent_positions"`
	MaxExposurePct         float64  `toml:"max_exposure_pct"`
	StopLossPct            float64  `toml:"stop_loss_pct"`
	TakeProfitPct          float64  `toml:"take_profit_pct"`
	TrailingStopPct        float64  `toml:"trailing_stop_pct"`
	BreakevenTriggerPct    float64  `toml:"breakeven_trigger_pct"`
	UseTrailingStop        bool     `toml:"use_trailing_stop"`
	MinEdgeToTrade         float64  `toml:"min_edge_to_trade"`
	MinConfidence          float64  `toml:"min_confidence"`
	MinLiquidity           float64  `toml:"min_liquidity"`
	AutoTradeEnabled       bool     `toml:"auto_trade_enabled"`
	PaperTrading           bool     `toml:"paper_trading"`
	CooldownHours          float64  `toml:"cooldown_hours"`
	PauseDuration          duration `toml:"pause_duration"`
	// Timezone anchors the trading day used for daily P&L.
	Timezone string `toml:"timezone"`
}

// Cooldown returns the per-token re-entry window.
func (t TradingConfig) Cooldown() time.Duration {
	return time.Duration(t.CooldownHours * float64(time.Hour))
}

// Location resolves Timezone, falling back to UTC.
func (t TradingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MonitorConfig holds loop intervals and I/O timeouts.
type MonitorConfig struct {
	Interval        duration `toml:"interval"`
	RiskInterval    duration `toml:"risk_interval"`
	StatusInterval  duration `toml:"status_interval"`
	PriceTimeout    duration `toml:"price_timeout"`
	MaxPriceAge     duration `toml:"max_price_age"`
	FeedRefresh     duration `toml:"feed_refresh"`
	ArchiveInterval duration `toml:"archive_interval"`
	BackupInterval  duration `toml:"backup_interval"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	SafeAddress      string `toml:"safe_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string   `toml:"clob_host"`
	WsHost        string   `toml:"ws_host"`
	ChainID       int      `toml:"chain_id"`
	SignatureType int      `toml:"signature_type"`
	OrderTimeout  duration `toml:"order_timeout"`
	QuoteRPS      float64  `toml:"quote_rps"`
	FeedEnabled   bool     `toml:"feed_enabled"`
}

// StorageConfig selects and configures the ledger store.
type StorageConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory".
	Driver     string         `toml:"driver"`
	SQLitePath string         `toml:"sqlite_path"`
	BackupDir  string         `toml:"backup_dir"`
	BackupKeep int            `toml:"backup_keep"`
	Postgres   PostgresConfig `toml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled            bool   `toml:"enabled"`
	Addr               string `toml:"addr"`
	Password           string `toml:"password"`
	DB                 int    `toml:"db"`
	PoolSize           int    `toml:"pool_size"`
	MaxRetries         int    `toml:"max_retries"`
	TLSEnabled         bool   `toml:"tls_enabled"`
	// OpportunityChannel is namespaced with the "autobot:" key prefix.
	OpportunityChannel string `toml:"opportunity_channel"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards mutating endpoints when set.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per RateWindow per client; zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			StartingCapital:        10000,
			RiskPerTradePct:        0.05,
			MaxPositionPct:         0.30,
			MaxDailyLossPct:        0.10,
			MaxConcurrentPositions: 10,
			MaxExposurePct:         80,
			StopLossPct:            0.15,
			TakeProfitPct:          0.30,
			TrailingStopPct:        0.10,
			BreakevenTriggerPct:    0.10,
			UseTrailingStop:        true,
			MinEdgeToTrade:         0.30,
			MinConfidence:          0.6,
			MinLiquidity:           1000,
			AutoTradeEnabled:       true,
			PaperTrading:           true,
			CooldownHours:          4,
			PauseDuration:          duration{4 * time.Hour},
			Timezone:               "America/Chicago",
		},
		Monitor: MonitorConfig{
			Interval:        duration{30 * time.Second},
			RiskInterval:    duration{60 * time.Second},
			StatusInterval:  duration{time.Hour},
			PriceTimeout:    duration{10 * time.Second},
			MaxPriceAge:     duration{2 * time.Minute},
			FeedRefresh:     duration{time.Minute},
			ArchiveInterval: duration{24 * time.Hour},
			BackupInterval:  duration{24 * time.Hour},
		},
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
			OrderTimeout:  duration{15 * time.Second},
			QuoteRPS:      5,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "data/autobot.db",
			BackupDir:  "data/backups",
			BackupKeep: 10,
			Postgres: PostgresConfig{
				Host:          "localhost",
				Port:          5432,
				Database:      "postgres",
				User:          "postgres",
				SSLMode:       "disable",
				PoolMaxConns:  10,
				PoolMinConns:  2,
				RunMigrations: true,
			},
		},
		Redis: RedisConfig{
			Addr:               "localhost:6379",
			PoolSize:           20,
			MaxRetries:         3,
			OpportunityChannel: "opportunities",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "autobot-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_executed", "position_closed", "risk_paused", "daily_summary", "startup"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// LiveOrders reports whether the configured mode sends orders to the
// exchange. Trade and monitor modes both close positions.
func (c *Config) LiveOrders() bool {
	m := strings.ToLower(c.Mode)
	return !c.Trading.PaperTrading && (m == "trade" || m == "monitor")
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"report":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validDrivers = map[string]bool{
	"sqlite":   true,
	"postgres": true,
	"memory":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, report)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Trading
	t := c.Trading
	if t.StartingCapital <= 0 {
		errs = append(errs, "trading: starting_capital must be > 0")
	}
	for name, v := range map[string]float64{
		"risk_per_trade_pct": t.RiskPerTradePct,
		"max_position_pct":   t.MaxPositionPct,
		"max_daily_loss_pct": t.MaxDailyLossPct,
		"stop_loss_pct":      t.StopLossPct,
	} {
		if v <= 0 || v >= 1 {
			errs = append(errs, fmt.Sprintf("trading: %s must be in (0, 1), got %g", name, v))
		}
	}
	if t.TakeProfitPct <= 0 {
		errs = append(errs, "trading: take_profit_pct must be > 0")
	}
	if t.TrailingStopPct <= 0 || t.TrailingStopPct >= 1 {
		errs = append(errs, fmt.Sprintf("trading: trailing_stop_pct must be in (0, 1), got %g", t.TrailingStopPct))
	}
	if t.BreakevenTriggerPct < 0 {
		errs = append(errs, "trading: breakeven_trigger_pct must be >= 0")
	}
	if t.MaxConcurrentPositions < 1 {
		errs = append(errs, "trading: max_concurrent_positions must be >= 1")
	}
	if t.MaxExposurePct <= 0 || t.MaxExposurePct > 100 {
		errs = append(errs, fmt.Sprintf("trading: max_exposure_pct must be in (0, 100], got %g", t.MaxExposurePct))
	}
	if t.MinConfidence < 0 || t.MinConfidence > 1 {
		errs = append(errs, "trading: min_confidence must be in [0, 1]")
	}
	if t.CooldownHours < 0 {
		errs = append(errs, "trading: cooldown_hours must be >= 0")
	}
	if t.PauseDuration.Duration <= 0 {
		errs = append(errs, "trading: pause_duration must be > 0")
	}
	if _, err := time.LoadLocation(t.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("trading: unknown timezone %q", t.Timezone))
	}

	// Monitor
	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be > 0")
	}
	if c.Monitor.PriceTimeout.Duration <= 0 {
		errs = append(errs, "monitor: price_timeout must be > 0")
	}

	// Wallet is only needed when orders actually reach the exchange.
	if c.LiveOrders() {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for live trading")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Polymarket
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType < 0 || c.Polymarket.SignatureType > 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}
	if c.Polymarket.SignatureType != 0 && c.LiveOrders() && c.Wallet.SafeAddress == "" {
		errs = append(errs, "wallet: safe_address is required for proxy or Safe signature types")
	}
	if c.Polymarket.QuoteRPS <= 0 {
		errs = append(errs, "polymarket: quote_rps must be > 0")
	}

	// Storage
	if !validDrivers[c.Storage.Driver] {
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: sqlite, postgres, memory)", c.Storage.Driver))
	}
	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		errs = append(errs, "storage: sqlite_path must not be empty")
	}
	if c.Storage.Driver == "postgres" {
		pg := c.Storage.Postgres
		if strings.TrimSpace(pg.DSN) == "" {
			if pg.Host == "" {
				errs = append(errs, "storage.postgres: host must not be empty (or set dsn)")
			}
			if pg.Port <= 0 || pg.Port > 65535 {
				errs = append(errs, fmt.Sprintf("storage.postgres: port must be 1-65535, got %d", pg.Port))
			}
		}
		if pg.PoolMinConns > pg.PoolMaxConns {
			errs = append(errs, "storage.postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
