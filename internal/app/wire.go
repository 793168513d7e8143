package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/autobot/internal/blob/s3"
	"github.com/alanyoungcy/autobot/internal/cache/redis"
	"github.com/alanyoungcy/autobot/internal/config"
	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/notify"
	"github.com/alanyoungcy/autobot/internal/pricing"
	"github.com/alanyoungcy/autobot/internal/relay"
	"github.com/alanyoungcy/autobot/internal/server/handler"
	"github.com/alanyoungcy/autobot/internal/server/middleware"
	"github.com/alanyoungcy/autobot/internal/store/memory"
	"github.com/alanyoungcy/autobot/internal/store/postgres"
	"github.com/alanyoungcy/autobot/internal/store/sqlite"
)

// localStreamMaxLen bounds the in-process event stream when Redis is off.
const localStreamMaxLen = 10000

// Dependencies bundles the infrastructure every mode builds on. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store domain.LedgerStore
	// SQLite is set when the sqlite driver is in use; it owns backups.
	SQLite *sqlite.Store

	PriceCache domain.PriceCache
	Bus        domain.SignalBus
	Limiter    domain.RateLimiter
	// Locks is nil without Redis; single-instance locking is then skipped.
	Locks *redis.LockManager

	// Blobs is nil unless S3 is enabled.
	Blobs *s3blob.Client

	Notifier *notify.Notifier
	Checks   map[string]handler.Check
}

// Wire constructs the concrete infrastructure from cfg and returns it with a
// cleanup function that releases everything in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- Ledger store ---
	switch cfg.Storage.Driver {
	case "sqlite":
		st, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = st.Close() })
		deps.Store, deps.SQLite = st, st
		deps.Checks["store"] = func(ctx context.Context) error {
			_, _, err := st.LoadState(ctx)
			return err
		}

	case "postgres":
		pg := cfg.Storage.Postgres
		client, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      pg.DSN,
			Host:     pg.Host,
			Port:     pg.Port,
			Database: pg.Database,
			User:     pg.User,
			Password: pg.Password,
			SSLMode:  pg.SSLMode,
			MaxConns: pg.PoolMaxConns,
			MinConns: pg.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, client.Close)

		if pg.RunMigrations {
			applied, err := client.RunMigrations(ctx)
			if err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
			if len(applied) > 0 {
				logger.Info("wire: migrations applied", slog.Any("migrations", applied))
			}
		}
		deps.Store = postgres.NewLedgerStore(client.Pool())
		deps.Checks["store"] = client.Ping

	default:
		logger.Warn("wire: memory store in use, nothing survives a restart")
		deps.Store = memory.New()
	}

	// --- Redis, or in-process equivalents ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.PriceCache = redis.NewPriceCache(rc)
		deps.Bus = redis.NewSignalBus(rc)
		deps.Limiter = redis.NewRateLimiter(rc)
		deps.Locks = redis.NewLockManager(rc, logger)
		deps.Checks["redis"] = rc.Ping
	} else {
		deps.PriceCache = pricing.NewMemoryCache()
		deps.Bus = relay.NewLocalBus(localStreamMaxLen)
		deps.Limiter = middleware.NewLocalLimiter()
	}

	// --- S3 ---
	if cfg.S3.Enabled {
		s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Blobs = s3c
		deps.Checks["s3"] = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return s3c.Health(ctx)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
