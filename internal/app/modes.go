package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/autobot/internal/blob/s3"
	"github.com/alanyoungcy/autobot/internal/crypto"
	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/executor"
	"github.com/alanyoungcy/autobot/internal/feed"
	"github.com/alanyoungcy/autobot/internal/metrics"
	"github.com/alanyoungcy/autobot/internal/monitor"
	"github.com/alanyoungcy/autobot/internal/notify"
	"github.com/alanyoungcy/autobot/internal/platform/polymarket"
	"github.com/alanyoungcy/autobot/internal/pricing"
	"github.com/alanyoungcy/autobot/internal/relay"
	"github.com/alanyoungcy/autobot/internal/report"
	"github.com/alanyoungcy/autobot/internal/server"
	"github.com/alanyoungcy/autobot/internal/server/handler"
	"github.com/alanyoungcy/autobot/internal/server/ws"
	"github.com/alanyoungcy/autobot/internal/service"
)

const (
	// ledgerLockName guards the ledger so one process trades per account.
	ledgerLockName = "ledger"
	ledgerLockTTL  = 30 * time.Second

	// orderRateLimit caps live order submissions per second per signer.
	orderRateLimit = 5

	opportunityBuffer = 64
	reportRecent      = 20
)

// errLockLost ends the run when another process may own the ledger.
var errLockLost = errors.New("app: ledger lock lost")

// core is the trading machinery shared by every mode.
type core struct {
	ledger    *service.PositionLedger
	gate      *service.RiskGate
	exec      *executor.Executor // nil outside trade mode
	alerts    *notify.Alerts
	publisher *relay.Publisher
	prices    domain.PriceSource
}

// coreOptions selects which optional parts buildCore wires.
type coreOptions struct {
	// orders enables live order submission when paper trading is off.
	orders bool
	// executor builds the opportunity executor.
	executor bool
	// readOnly recovers state without writing it back.
	readOnly bool
}

// TradeMode runs the full system: opportunity intake, execution, limit
// monitoring, the risk and status loops, and the HTTP API.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting trade mode",
		slog.Bool("paper", a.cfg.Trading.PaperTrading),
		slog.Bool("auto_trade", a.cfg.Trading.AutoTradeEnabled),
	)

	g, ctx := errgroup.WithContext(ctx)
	if err := a.holdLedgerLock(ctx, g, deps); err != nil {
		return err
	}

	c, err := a.buildCore(ctx, deps, coreOptions{orders: true, executor: true})
	if err != nil {
		return err
	}

	opps := make(chan domain.Opportunity, opportunityBuffer)
	intake := relay.NewIntake(deps.Bus, a.cfg.Redis.OpportunityChannel, a.logger)
	g.Go(func() error { return intake.Run(ctx, opps) })
	g.Go(func() error { return c.exec.Run(ctx, opps) })

	a.startBackground(ctx, g, deps, c)
	if err := a.startServer(ctx, g, deps, c); err != nil {
		return err
	}
	a.sendStartup(ctx, c)

	return g.Wait()
}

// MonitorMode watches open positions and account risk without taking new
// trades. Limit exits still close positions.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting monitor mode",
		slog.Bool("paper", a.cfg.Trading.PaperTrading),
	)

	g, ctx := errgroup.WithContext(ctx)
	if err := a.holdLedgerLock(ctx, g, deps); err != nil {
		return err
	}

	c, err := a.buildCore(ctx, deps, coreOptions{orders: true})
	if err != nil {
		return err
	}

	a.startBackground(ctx, g, deps, c)
	if err := a.startServer(ctx, g, deps, c); err != nil {
		return err
	}

	return g.Wait()
}

// ReportMode prints the risk report to stdout and returns. It never writes
// to the ledger, so it is safe to run beside a trading process.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	c, err := a.buildCore(ctx, deps, coreOptions{readOnly: true})
	if err != nil {
		return err
	}

	d, err := report.Collect(ctx, c.gate, c.ledger, deps.Store, deps.PriceCache, reportRecent)
	if err != nil {
		return fmt.Errorf("app: collect report: %w", err)
	}
	d.Paper = a.cfg.Trading.PaperTrading
	if err := report.Write(os.Stdout, d); err != nil {
		return fmt.Errorf("app: write report: %w", err)
	}
	return nil
}

// buildCore recovers persisted state and assembles the ledger, risk gate,
// price source and, when asked, the live order path and executor.
func (a *App) buildCore(ctx context.Context, deps *Dependencies, opts coreOptions) (*core, error) {
	tc := a.cfg.Trading

	rec, err := service.NewRecoveryLoader(deps.Store, service.RecoveryConfig{
		StartingCapital: tc.StartingCapital,
		Cooldown:        tc.Cooldown(),
		Location:        tc.Location(),
		ReadOnly:        opts.readOnly,
	}, a.logger).Load(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("app: recover ledger: %w", err)
	}

	ledger := service.NewPositionLedger(deps.Store, service.LedgerConfig{
		StartingCapital: tc.StartingCapital,
		Rules: domain.TriggerRules{
			StopLossPct:         tc.StopLossPct,
			TakeProfitPct:       tc.TakeProfitPct,
			BreakevenTriggerPct: tc.BreakevenTriggerPct,
			TrailingStopPct:     tc.TrailingStopPct,
			UseTrailingStop:     tc.UseTrailingStop,
		},
		Paper:        tc.PaperTrading,
		OrderTimeout: a.cfg.Polymarket.OrderTimeout.Duration,
	}, a.logger)
	ledger.Restore(rec.State, rec.Positions)

	if opts.orders && !tc.PaperTrading {
		orders, err := a.buildOrderService(ctx, deps)
		if err != nil {
			return nil, err
		}
		ledger.WithOrderSubmitter(orders)
	}

	gate := service.NewRiskGate(ledger, service.RiskConfig{
		StartingCapital:        tc.StartingCapital,
		RiskPerTradePct:        tc.RiskPerTradePct,
		MaxPositionPct:         tc.MaxPositionPct,
		MaxDailyLossPct:        tc.MaxDailyLossPct,
		MaxConcurrentPositions: tc.MaxConcurrentPositions,
		MaxExposurePct:         tc.MaxExposurePct,
		StopLossPct:            tc.StopLossPct,
		PauseDuration:          tc.PauseDuration.Duration,
	}, a.logger)

	c := &core{
		ledger:    ledger,
		gate:      gate,
		alerts:    notify.NewAlerts(deps.Notifier, a.logger),
		publisher: relay.NewPublisher(deps.Bus, a.logger),
		prices:    a.buildPriceSource(deps),
	}

	ledger.OnClose(func(ctx context.Context, t domain.ClosedTrade) {
		metrics.ObserveClose(t)
		c.publisher.OnClose(ctx, t)
		c.alerts.OnClose(ctx, t)
	})

	if opts.executor {
		c.exec = executor.New(ledger, gate, executor.Config{
			MinEdge:       tc.MinEdgeToTrade,
			MinConfidence: tc.MinConfidence,
			MinLiquidity:  tc.MinLiquidity,
			AutoTrade:     tc.AutoTradeEnabled,
			Cooldown:      tc.Cooldown(),
		}, a.logger)
		c.exec.RestoreCooldowns(rec.Cooldowns)

		ledger.OnClose(func(_ context.Context, t domain.ClosedTrade) {
			c.exec.RecordClose(t)
		})
		c.exec.OnDecision(func(_ context.Context, d domain.TradeDecision) error {
			metrics.ObserveDecision(d)
			return nil
		})
		c.exec.OnDecision(c.publisher.OnDecision)
		c.exec.OnDecision(c.alerts.OnDecision)
	}

	snap := ledger.Snapshot()
	a.logger.InfoContext(ctx, "app: ledger ready",
		slog.Bool("fresh", rec.Fresh),
		slog.Float64("balance", snap.State.Balance),
		slog.Float64("daily_pnl", snap.State.DailyPnL),
		slog.Int("open_positions", len(snap.Positions)),
		slog.Int("cooldowns", len(rec.Cooldowns)),
	)
	return c, nil
}

// buildPriceSource reads the price cache first and falls back to CLOB
// midpoint quotes.
func (a *App) buildPriceSource(deps *Dependencies) domain.PriceSource {
	pc := a.cfg.Polymarket
	quotes := polymarket.NewClobClient(pc.ClobHost, nil, nil,
		polymarket.WithRateLimit(pc.QuoteRPS, int(pc.QuoteRPS)+1),
	)
	return pricing.NewCachedSource(deps.PriceCache,
		polymarket.NewQuoteSource(quotes, a.cfg.Monitor.PriceTimeout.Duration),
		a.cfg.Monitor.MaxPriceAge.Duration,
		a.logger,
	)
}

// buildOrderService loads the wallet key, derives CLOB API credentials and
// returns the live order path.
func (a *App) buildOrderService(ctx context.Context, deps *Dependencies) (*service.OrderService, error) {
	wc, pc := a.cfg.Wallet, a.cfg.Polymarket

	key, err := crypto.LoadKey(crypto.KeyConfig{
		PrivateKey:       wc.PrivateKey,
		EncryptedKeyPath: wc.EncryptedKeyPath,
		Password:         wc.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: load wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(key, pc.ChainID)
	if err != nil {
		return nil, fmt.Errorf("app: create signer: %w", err)
	}

	clob := polymarket.NewClobClient(pc.ClobHost, signer, nil)
	if err := clob.DeriveAPIKey(ctx); err != nil {
		return nil, fmt.Errorf("app: derive api key: %w", err)
	}
	a.logger.InfoContext(ctx, "app: live trading enabled",
		slog.String("signer", signer.Address().Hex()),
		slog.Int("signature_type", pc.SignatureType),
	)

	return service.NewOrderService(signer, clob, service.OrderServiceConfig{
		SignatureType: pc.SignatureType,
		FunderAddress: wc.SafeAddress,
		OrderType:     domain.OrderTypeFOK,
		RateLimit:     orderRateLimit,
	}, a.logger).
		WithRateLimiter(deps.Limiter).
		WithBus(deps.Bus), nil
}

// startBackground launches the monitoring loops, the price feed, the
// archiver and database backups.
func (a *App) startBackground(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	mc := a.cfg.Monitor

	limits := monitor.NewLimitMonitor(c.ledger, c.prices, mc.Interval.Duration, mc.PriceTimeout.Duration, a.logger)
	g.Go(func() error { return limits.Run(ctx) })

	risk := monitor.NewRiskMonitor(c.gate, pauseFanout{c.alerts, c.publisher}, mc.RiskInterval.Duration, a.logger)
	g.Go(func() error { return risk.Run(ctx) })

	status := monitor.NewStatusLogger(c.gate, deps.Store, mc.StatusInterval.Duration, a.logger)
	g.Go(func() error { return status.Run(ctx) })

	rollover := monitor.NewDayRollover(c.ledger, a.cfg.Trading.Location(), time.Minute, a.logger)
	rollover.OnRollover(func(ctx context.Context, closing domain.LedgerState, dayStart time.Time) {
		trades, err := deps.Store.ClosedTradesBetween(ctx, dayStart.AddDate(0, 0, -1), dayStart)
		if err != nil {
			a.logger.WarnContext(ctx, "app: daily summary trades unavailable", slog.String("error", err.Error()))
		}
		if err := c.alerts.DailySummary(ctx, len(trades), closing.DailyPnL, closing.Balance); err != nil {
			a.logger.WarnContext(ctx, "app: daily summary failed", slog.String("error", err.Error()))
		}
	})
	g.Go(func() error { return rollover.Run(ctx) })

	if a.cfg.Polymarket.FeedEnabled && a.cfg.Polymarket.WsHost != "" {
		wsURL := strings.TrimSuffix(a.cfg.Polymarket.WsHost, "/") + "/ws/market"
		pf := feed.NewPriceFeed(wsURL, c.ledger, deps.PriceCache, mc.FeedRefresh.Duration, a.logger)
		g.Go(func() error { return pf.Run(ctx) })
	}

	var archiver *s3blob.Archiver
	if deps.Blobs != nil {
		archiver = s3blob.NewArchiver(deps.Blobs, deps.Blobs, deps.Store, a.logger)
		if mc.ArchiveInterval.Duration > 0 {
			g.Go(func() error { return archiver.Run(ctx, mc.ArchiveInterval.Duration) })
		}
	}

	if deps.SQLite != nil && mc.BackupInterval.Duration > 0 {
		g.Go(func() error { return a.runBackups(ctx, deps, archiver) })
	}
}

// runBackups writes a sqlite backup every BackupInterval and uploads it when
// an archiver is configured. Failures are logged and retried next interval.
func (a *App) runBackups(ctx context.Context, deps *Dependencies, archiver *s3blob.Archiver) error {
	sc := a.cfg.Storage
	ticker := time.NewTicker(a.cfg.Monitor.BackupInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		path, err := deps.SQLite.Backup(ctx, sc.BackupDir, sc.BackupKeep)
		if err != nil {
			a.logger.ErrorContext(ctx, "app: backup failed", slog.String("error", err.Error()))
			continue
		}
		a.logger.InfoContext(ctx, "app: backup written", slog.String("path", path))

		if archiver == nil {
			continue
		}
		if _, err := archiver.UploadBackup(ctx, path); err != nil {
			a.logger.ErrorContext(ctx, "app: backup upload failed", slog.String("error", err.Error()))
		}
	}
}

// startServer registers the HTTP API and WebSocket hub when enabled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) error {
	sc := a.cfg.Server
	if !sc.Enabled {
		return nil
	}

	hub := ws.NewHub(deps.Bus, c.gate.CheckStatus, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Checks, a.logger),
		Positions: handler.NewPositionHandler(c.ledger, c.prices, a.cfg.Monitor.PriceTimeout.Duration, a.logger),
		Trades:    handler.NewTradeHandler(deps.Store, a.logger),
		Hub:       hub,
	}
	if c.exec != nil {
		handlers.Status = handler.NewStatusHandler(a.cfg.Mode, a.cfg.Trading.PaperTrading, c.gate, c.exec)
		handlers.Opportunities = handler.NewOpportunityHandler(c.exec, a.logger)
	} else {
		handlers.Status = handler.NewStatusHandler(a.cfg.Mode, a.cfg.Trading.PaperTrading, c.gate, nil)
	}

	srv := server.NewServer(server.Config{
		Port:        sc.Port,
		CORSOrigins: sc.CORSOrigins,
		APIKey:      sc.APIKey,
		RateLimit:   sc.RateLimit,
		RateWindow:  sc.RateWindow.Duration,
	}, handlers, deps.Limiter, a.logger)
	g.Go(func() error { return srv.Run(ctx) })
	return nil
}

// holdLedgerLock takes the single-instance lock when Redis is available.
// Losing it cancels the run.
func (a *App) holdLedgerLock(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Locks == nil {
		return nil
	}
	unlock, lost, err := deps.Locks.Hold(ctx, ledgerLockName, ledgerLockTTL)
	if err != nil {
		return fmt.Errorf("app: acquire ledger lock: %w", err)
	}
	a.closers = append(a.closers, unlock)

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-lost:
			return errLockLost
		}
	})
	return nil
}

func (a *App) sendStartup(ctx context.Context, c *core) {
	tc := a.cfg.Trading
	err := c.alerts.Startup(ctx, notify.StartupInfo{
		PaperTrading:    tc.PaperTrading,
		AutoTrade:       tc.AutoTradeEnabled,
		Balance:         c.ledger.Snapshot().State.Balance,
		RiskPerTradePct: tc.RiskPerTradePct,
		MaxPositionPct:  tc.MaxPositionPct,
		MaxDailyLossPct: tc.MaxDailyLossPct,
		MinEdge:         tc.MinEdgeToTrade,
	})
	if err != nil {
		a.logger.WarnContext(ctx, "app: startup alert failed", slog.String("error", err.Error()))
	}
}

// pauseFanout forwards a pause to every alerter.
type pauseFanout []monitor.PauseAlerter

func (f pauseFanout) TradingPaused(ctx context.Context, st domain.RiskStatus) error {
	var errs []error
	for _, al := range f {
		if err := al.TradingPaused(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
