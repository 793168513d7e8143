package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/service"
)

// Ledger is the slice of the position ledger the executor needs.
type Ledger interface {
	Open(ctx context.Context, req service.OpenRequest) (domain.Position, error)
	HasOpenPosition(tokenID string) bool
}

// Gate answers the account-level risk questions.
type Gate interface {
	CheckStatus() domain.RiskStatus
	ValidateTrade(size, price float64) (bool, string)
	SuggestSize(edge, confidence float64) float64
	SuggestRisk() float64
}

// Observer receives every processed decision. Errors are logged only.
type Observer func(ctx context.Context, d domain.TradeDecision) error

// Config holds the entry filters.
type Config struct {
	MinEdge       float64
	MinConfidence float64
	MinLiquidity  float64
	AutoTrade     bool
	Cooldown      time.Duration
}

// Stats counts what the executor has done since start.
type Stats struct {
	OpportunitiesSeen int       `json:"opportunities_seen"`
	TradesApproved    int       `json:"trades_approved"`
	TradesExecuted    int       `json:"trades_executed"`
	TotalVolume       float64   `json:"total_volume"`
	LastTradeAt       time.Time `json:"last_trade_at,omitempty"`
}

// Executor turns opportunities into positions. One opportunity is handled at
// a time, so the duplicate and cooldown checks cannot race with an open.
type Executor struct {
	ledger   Ledger
	gate     Gate
	cfg      Config
	cooldown *Cooldown
	now      func() time.Time
	logger   *slog.Logger

	cleanupInterval time.Duration

	pipeMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats

	obsMu     sync.RWMutex
	observers []Observer
}

// New creates an Executor.
func New(ledger Ledger, gate Gate, cfg Config, logger *slog.Logger) *Executor {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.6
	}
	if cfg.MinLiquidity <= 0 {
		cfg.MinLiquidity = 1000
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 4 * time.Hour
	}
	return &Executor{
		ledger:          ledger,
		gate:            gate,
		cfg:             cfg,
		cooldown:        NewCooldown(cfg.Cooldown),
		now:             time.Now,
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 10 * time.Minute,
	}
}

// WithClock replaces the wall clock used for cooldowns.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// OnDecision registers an observer.
func (e *Executor) OnDecision(o Observer) {
	e.obsMu.Lock()
	e.observers = append(e.observers, o)
	e.obsMu.Unlock()
}

// RestoreCooldowns installs cooldowns rebuilt from trade history.
func (e *Executor) RestoreCooldowns(entries map[string]time.Time) {
	e.cooldown.Restore(entries)
}

// RecordClose restarts the token's cooldown from the close time.
func (e *Executor) RecordClose(trade domain.ClosedTrade) {
	e.cooldown.Record(trade.TokenID, trade.LastActivity())
}

// Stats returns a copy of the counters.
func (e *Executor) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Evaluate decides whether opp should be traded and at what size.
func (e *Executor) Evaluate(ctx context.Context, opp domain.Opportunity) domain.TradeDecision {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()
	return e.evaluate(ctx, opp)
}

// Execute opens the position for an approved decision and notifies
// observers. It reports whether a position was opened.
func (e *Executor) Execute(ctx context.Context, d *domain.TradeDecision) bool {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()
	return e.execute(ctx, d)
}

// Process evaluates and, when approved, executes opp. Observers see the
// decision exactly once.
func (e *Executor) Process(ctx context.Context, opp domain.Opportunity) domain.TradeDecision {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()

	d := e.evaluate(ctx, opp)
	if !d.Approved {
		e.logger.DebugContext(ctx, "executor: opportunity rejected",
			slog.String("market_id", opp.MarketID),
			slog.String("reason", d.Reason),
		)
		e.notify(ctx, d)
		return d
	}
	if !e.execute(ctx, &d) {
		e.logger.WarnContext(ctx, "executor: approved trade not executed",
			slog.String("market_id", opp.MarketID),
			slog.String("reason", d.Reason),
		)
		e.notify(ctx, d)
	}
	return d
}

func (e *Executor) evaluate(ctx context.Context, opp domain.Opportunity) domain.TradeDecision {
	now := e.now()
	d := domain.TradeDecision{
		Opportunity: opp,
		TokenID:     opp.Token(),
		Side:        domain.OrderSideBuy,
		Price:       opp.Price(),
		DecidedAt:   now.UTC(),
	}

	e.statsMu.Lock()
	e.stats.OpportunitiesSeen++
	e.statsMu.Unlock()

	if d.TokenID == "" {
		d.Reason = "Missing outcome token"
		return d
	}
	if e.ledger.HasOpenPosition(d.TokenID) {
		d.Reason = "Already have open position on this market"
		return d
	}
	if left := e.cooldown.Remaining(d.TokenID, now); left > 0 {
		d.Reason = fmt.Sprintf("Market on cooldown (%.1fh remaining)", left.Hours())
		return d
	}
	if opp.Edge < e.cfg.MinEdge {
		d.Reason = fmt.Sprintf("Edge %.1f%% below minimum %.1f%%", opp.Edge*100, e.cfg.MinEdge*100)
		return d
	}
	if opp.Confidence < e.cfg.MinConfidence {
		d.Reason = fmt.Sprintf("Confidence %.1f%% too low", opp.Confidence*100)
		return d
	}
	if opp.Liquidity < e.cfg.MinLiquidity {
		d.Reason = fmt.Sprintf("Liquidity $%.0f too low", opp.Liquidity)
		return d
	}
	if st := e.gate.CheckStatus(); !st.TradingAllowed {
		d.Reason = st.Reason
		return d
	}
	if d.Price <= 0 || d.Price >= 1 {
		d.Reason = "Invalid price"
		return d
	}

	size := e.gate.SuggestSize(opp.Edge, opp.Confidence)
	if ok, reason := e.gate.ValidateTrade(size, d.Price); !ok {
		d.Reason = reason
		return d
	}
	if size <= 0 {
		d.Reason = "Position size is zero"
		return d
	}

	d.SizeUSD = size
	d.SizeShares = size / d.Price
	d.RiskAmount = e.gate.SuggestRisk()
	d.Approved = true
	d.Reason = fmt.Sprintf("Edge: %.1f%%, Risk: $%.0f, Size: $%.0f", opp.Edge*100, d.RiskAmount, d.SizeUSD)

	e.statsMu.Lock()
	e.stats.TradesApproved++
	e.statsMu.Unlock()

	e.logger.InfoContext(ctx, "executor: opportunity approved",
		slog.String("market_id", opp.MarketID),
		slog.String("token_id", d.TokenID),
		slog.String("reason", d.Reason),
	)
	return d
}

func (e *Executor) execute(ctx context.Context, d *domain.TradeDecision) bool {
	if !d.Approved {
		e.logger.WarnContext(ctx, "executor: attempted to execute unapproved trade",
			slog.String("token_id", d.TokenID),
		)
		return false
	}
	if !e.cfg.AutoTrade {
		d.Reason = "Auto-trade disabled"
		return false
	}

	pos, err := e.ledger.Open(ctx, service.OpenRequest{
		MarketID:   d.Opportunity.MarketID,
		Market:     d.Opportunity.Question,
		TokenID:    d.TokenID,
		Side:       d.Side,
		Size:       d.SizeShares,
		Price:      d.Price,
		RiskAmount: d.RiskAmount,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "executor: open position failed",
			slog.String("token_id", d.TokenID),
			slog.String("error", err.Error()),
		)
		d.Reason = fmt.Sprintf("Order placement failed: %v", err)
		return false
	}

	now := e.now()
	d.Executed = true
	d.PositionID = pos.ID
	e.cooldown.Record(d.TokenID, now)

	e.statsMu.Lock()
	e.stats.TradesExecuted++
	e.stats.TotalVolume += d.SizeUSD
	e.stats.LastTradeAt = now.UTC()
	e.statsMu.Unlock()

	e.logger.InfoContext(ctx, "executor: trade executed",
		slog.String("position_id", pos.ID),
		slog.String("market_id", d.Opportunity.MarketID),
		slog.String("token_id", d.TokenID),
		slog.Float64("size_usd", d.SizeUSD),
		slog.Float64("shares", d.SizeShares),
		slog.Float64("price", d.Price),
	)

	e.notify(ctx, *d)
	return true
}

func (e *Executor) notify(ctx context.Context, d domain.TradeDecision) {
	e.obsMu.RLock()
	observers := append([]Observer(nil), e.observers...)
	e.obsMu.RUnlock()

	for _, o := range observers {
		if err := o(ctx, d); err != nil {
			e.logger.ErrorContext(ctx, "executor: observer failed",
				slog.String("token_id", d.TokenID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Run processes opportunities from in until the context is cancelled or the
// channel is closed. On cancellation, opportunities already buffered are
// drained with a short deadline.
func (e *Executor) Run(ctx context.Context, in <-chan domain.Opportunity) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain(in)
			return ctx.Err()

		case opp, ok := <-in:
			if !ok {
				return nil
			}
			e.Process(ctx, opp)

		case <-cleanupTicker.C:
			e.cooldown.Cleanup(e.now())
		}
	}
}

func (e *Executor) drain(in <-chan domain.Opportunity) {
	for {
		select {
		case opp, ok := <-in:
			if !ok {
				return
			}
			e.logger.Warn("executor: draining opportunity after shutdown",
				slog.String("market_id", opp.MarketID),
			)
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.Process(drainCtx, opp)
			cancel()
		default:
			return
		}
	}
}
