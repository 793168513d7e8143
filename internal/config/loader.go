package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // trading timezone must resolve on minimal images

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AUTOBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AUTOBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Trading ──
	setFloat64(&cfg.Trading.StartingCapital, "AUTOBOT_TRADING_STARTING_CAPITAL")
	setFloat64(&cfg.Trading.RiskPerTradePct, "AUTOBOT_TRADING_RISK_PER_TRADE_PCT")
	setFloat64(&cfg.Trading.MaxPositionPct, "AUTOBOT_TRADING_MAX_POSITION_PCT")
	setFloat64(&cfg.Trading.MaxDailyLossPct, "AUTOBOT_TRADING_MAX_DAILY_LOSS_PCT")
	setInt(&cfg.Trading.MaxConcurrentPositions, "AUTOBOT_TRADING_MAX_CONCURRENT_POSITIONS")
	setFloat64(&cfg.Trading.MaxExposurePct, "AUTOBOT_TRADING_MAX_EXPOSURE_PCT")
	setFloat64(&cfg.Trading.StopLossPct, "AUTOBOT_TRADING_STOP_LOSS_PCT")
	setFloat64(&cfg.Trading.TakeProfitPct, "AUTOBOT_TRADING_TAKE_PROFIT_PCT")
	setFloat64(&cfg.Trading.TrailingStopPct, "AUTOBOT_TRADING_TRAILING_STOP_PCT")
	setFloat64(&cfg.Trading.BreakevenTriggerPct, "AUTOBOT_TRADING_BREAKEVEN_TRIGGER_PCT")
	setBool(&cfg.Trading.UseTrailingStop, "AUTOBOT_TRADING_USE_TRAILING_STOP")
	setFloat64(&cfg.Trading.MinEdgeToTrade, "AUTOBOT_TRADING_MIN_EDGE_TO_TRADE")
	setFloat64(&cfg.Trading.MinConfidence, "AUTOBOT_TRADING_MIN_CONFIDENCE")
	setFloat64(&cfg.Trading.MinLiquidity, "AUTOBOT_TRADING_MIN_LIQUIDITY")
	setBool(&cfg.Trading.AutoTradeEnabled, "AUTOBOT_TRADING_AUTO_TRADE_ENABLED")
	setBool(&cfg.Trading.PaperTrading, "AUTOBOT_TRADING_PAPER_TRADING")
	setFloat64(&cfg.Trading.CooldownHours, "AUTOBOT_TRADING_COOLDOWN_HOURS")
	setDuration(&cfg.Trading.PauseDuration, "AUTOBOT_TRADING_PAUSE_DURATION")
	setStr(&cfg.Trading.Timezone, "AUTOBOT_TRADING_TIMEZONE")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "AUTOBOT_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.RiskInterval, "AUTOBOT_MONITOR_RISK_INTERVAL")
	setDuration(&cfg.Monitor.StatusInterval, "AUTOBOT_MONITOR_STATUS_INTERVAL")
	setDuration(&cfg.Monitor.PriceTimeout, "AUTOBOT_MONITOR_PRICE_TIMEOUT")
	setDuration(&cfg.Monitor.MaxPriceAge, "AUTOBOT_MONITOR_MAX_PRICE_AGE")
	setDuration(&cfg.Monitor.FeedRefresh, "AUTOBOT_MONITOR_FEED_REFRESH")
	setDuration(&cfg.Monitor.ArchiveInterval, "AUTOBOT_MONITOR_ARCHIVE_INTERVAL")
	setDuration(&cfg.Monitor.BackupInterval, "AUTOBOT_MONITOR_BACKUP_INTERVAL")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "AUTOBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.SafeAddress, "AUTOBOT_WALLET_SAFE_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "AUTOBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "AUTOBOT_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "AUTOBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "AUTOBOT_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "AUTOBOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "AUTOBOT_POLYMARKET_SIGNATURE_TYPE")
	setDuration(&cfg.Polymarket.OrderTimeout, "AUTOBOT_POLYMARKET_ORDER_TIMEOUT")
	setFloat64(&cfg.Polymarket.QuoteRPS, "AUTOBOT_POLYMARKET_QUOTE_RPS")
	setBool(&cfg.Polymarket.FeedEnabled, "AUTOBOT_POLYMARKET_FEED_ENABLED")

	// ── Storage ──
	setStr(&cfg.Storage.Driver, "AUTOBOT_STORAGE_DRIVER")
	setStr(&cfg.Storage.SQLitePath, "AUTOBOT_STORAGE_SQLITE_PATH")
	setStr(&cfg.Storage.BackupDir, "AUTOBOT_STORAGE_BACKUP_DIR")
	setInt(&cfg.Storage.BackupKeep, "AUTOBOT_STORAGE_BACKUP_KEEP")
	setStr(&cfg.Storage.Postgres.DSN, "AUTOBOT_POSTGRES_DSN")
	setStr(&cfg.Storage.Postgres.Host, "AUTOBOT_POSTGRES_HOST")
	setInt(&cfg.Storage.Postgres.Port, "AUTOBOT_POSTGRES_PORT")
	setStr(&cfg.Storage.Postgres.Database, "AUTOBOT_POSTGRES_DATABASE")
	setStr(&cfg.Storage.Postgres.User, "AUTOBOT_POSTGRES_USER")
	setStr(&cfg.Storage.Postgres.Password, "AUTOBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Storage.Postgres.SSLMode, "AUTOBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Storage.Postgres.PoolMaxConns, "AUTOBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Storage.Postgres.PoolMinConns, "AUTOBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Storage.Postgres.RunMigrations, "AUTOBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "AUTOBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AUTOBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUTOBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUTOBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUTOBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUTOBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUTOBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.OpportunityChannel, "AUTOBOT_REDIS_OPPORTUNITY_CHANNEL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AUTOBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AUTOBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUTOBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUTOBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AUTOBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUTOBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUTOBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUTOBOT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AUTOBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AUTOBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AUTOBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AUTOBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "AUTOBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "AUTOBOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AUTOBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AUTOBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AUTOBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AUTOBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AUTOBOT_MODE")
	setStr(&cfg.LogLevel, "AUTOBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
