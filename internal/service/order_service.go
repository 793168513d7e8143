package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/autobot/internal/crypto"
	"github.com/alanyoungcy/autobot/internal/domain"
)

// OrdersChannel carries an event for every order sent to the exchange.
const OrdersChannel = "orders"

const zeroAddress = "0x0000000000000000000000000000000000000000"

// Signer abstracts EIP-712 order signing so the service layer never depends
// on concrete key-management implementations.
type Signer interface {
	SignOrder(payload crypto.OrderPayload) (string, error)
	Address() common.Address
}

// ClobPoster submits signed orders to the Polymarket CLOB API.
type ClobPoster interface {
	PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error)
}

// OrderServiceConfig controls how orders are built.
type OrderServiceConfig struct {
	// SignatureType is 0 (EOA), 1 (POLY_PROXY) or 2 (POLY_GNOSIS_SAFE).
	SignatureType int
	// FunderAddress is the proxy or Safe holding the funds. Ignored for EOA.
	FunderAddress string
	OrderType     domain.OrderType
	// Orders per second allowed per signer; zero disables the check.
	RateLimit int
}

// OrderService turns ledger order requests into signed CLOB orders.
type OrderService struct {
	signer  Signer
	poster  ClobPoster
	limiter domain.RateLimiter
	bus     domain.SignalBus
	cfg     OrderServiceConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(signer Signer, poster ClobPoster, cfg OrderServiceConfig, logger *slog.Logger) *OrderService {
	if cfg.OrderType == "" {
		cfg.OrderType = domain.OrderTypeFOK
	}
	return &OrderService{
		signer: signer,
		poster: poster,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "order_service")),
	}
}

// WithRateLimiter throttles submissions per signer address.
func (s *OrderService) WithRateLimiter(l domain.RateLimiter) *OrderService {
	s.limiter = l
	return s
}

// WithBus publishes an event on OrdersChannel for every submission.
func (s *OrderService) WithBus(b domain.SignalBus) *OrderService {
	s.bus = b
	return s
}

// OrderEvent is the payload published on OrdersChannel.
type OrderEvent struct {
	Type     string           `json:"type"`
	OrderID  string           `json:"order_id"`
	LocalID  string           `json:"local_id"`
	MarketID string           `json:"market_id"`
	TokenID  string           `json:"token_id"`
	Side     domain.OrderSide `json:"side"`
	Price    float64          `json:"price"`
	Shares   float64          `json:"shares"`
	Success  bool             `json:"success"`
	Message  string           `json:"message,omitempty"`
	At       time.Time        `json:"at"`
}

// Submit builds, signs and posts an order for req. An exchange rejection is
// returned as an unsuccessful result with a nil error.
func (s *OrderService) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	signerAddr := s.signer.Address().Hex()

	if s.limiter != nil && s.cfg.RateLimit > 0 {
		allowed, err := s.limiter.Allow(ctx, "orders:"+signerAddr, s.cfg.RateLimit, time.Second)
		if err != nil {
			return domain.OrderResult{}, fmt.Errorf("order_service: rate limiter: %w", err)
		}
		if !allowed {
			return domain.OrderResult{Message: "rate limited", ShouldRetry: true}, domain.ErrRateLimited
		}
	}

	order, err := s.BuildOrder(req)
	if err != nil {
		return domain.OrderResult{}, err
	}

	sig, err := s.signer.SignOrder(payloadFor(order))
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: %w: %v", domain.ErrSigningFailed, err)
	}
	order.Signature = sig

	res, err := s.poster.PostOrder(ctx, order)
	if err != nil {
		s.logger.Error("order_service: post failed",
			slog.String("token_id", req.TokenID),
			slog.String("error", err.Error()),
		)
		return domain.OrderResult{}, fmt.Errorf("order_service: post order: %w", err)
	}

	level := slog.LevelInfo
	if !res.Success {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "order_service: order posted",
		slog.String("order_id", res.OrderID),
		slog.String("token_id", req.TokenID),
		slog.String("side", string(req.Side)),
		slog.Float64("price", req.Price),
		slog.Float64("shares", req.Shares),
		slog.String("status", string(res.Status)),
		slog.String("message", res.Message),
	)
	s.publish(ctx, order, res)
	return res, nil
}

// BuildOrder converts req into an unsigned order with 1e6 fixed-point
// amounts. A BUY gives USDC and receives shares; a SELL does the reverse.
func (s *OrderService) BuildOrder(req domain.OrderRequest) (domain.Order, error) {
	if req.TokenID == "" {
		return domain.Order{}, fmt.Errorf("order_service: missing token id")
	}
	if req.Price <= 0 || req.Price >= 1 {
		return domain.Order{}, fmt.Errorf("order_service: price %.4f outside (0, 1)", req.Price)
	}
	if req.Shares <= 0 {
		return domain.Order{}, fmt.Errorf("order_service: shares must be positive, got %.4f", req.Shares)
	}

	price := decimal.NewFromFloat(req.Price)
	shares := decimal.NewFromFloat(req.Shares).Truncate(2)
	if !shares.IsPositive() {
		return domain.Order{}, fmt.Errorf("order_service: shares %.4f round to zero", req.Shares)
	}
	usdc := shares.Mul(price).Truncate(6)

	var maker, taker *big.Int
	switch req.Side {
	case domain.OrderSideBuy:
		maker, taker = microUnits(usdc), microUnits(shares)
	case domain.OrderSideSell:
		maker, taker = microUnits(shares), microUnits(usdc)
	default:
		return domain.Order{}, fmt.Errorf("order_service: unknown side %q", req.Side)
	}

	signerAddr := s.signer.Address().Hex()
	wallet := signerAddr
	if s.cfg.SignatureType != 0 && s.cfg.FunderAddress != "" {
		wallet = s.cfg.FunderAddress
	}

	return domain.Order{
		ID:            uuid.NewString(),
		MarketID:      req.MarketID,
		TokenID:       req.TokenID,
		Wallet:        wallet,
		Signer:        signerAddr,
		Side:          req.Side,
		Type:          s.cfg.OrderType,
		Price:         req.Price,
		Shares:        shares.InexactFloat64(),
		MakerAmount:   maker,
		TakerAmount:   taker,
		Salt:          strconv.FormatInt(s.now().UnixNano()&(1<<53-1), 10),
		SignatureType: s.cfg.SignatureType,
		CreatedAt:     s.now().UTC(),
	}, nil
}

func payloadFor(o domain.Order) crypto.OrderPayload {
	side := 0
	if o.Side == domain.OrderSideSell {
		side = 1
	}
	return crypto.OrderPayload{
		Salt:          o.Salt,
		Maker:         o.Wallet,
		Signer:        o.Signer,
		Taker:         zeroAddress,
		TokenID:       o.TokenID,
		MakerAmount:   o.MakerAmount.String(),
		TakerAmount:   o.TakerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          side,
		SignatureType: o.SignatureType,
	}
}

func microUnits(d decimal.Decimal) *big.Int {
	return d.Shift(6).Truncate(0).BigInt()
}

func (s *OrderService) publish(ctx context.Context, o domain.Order, res domain.OrderResult) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(OrderEvent{
		Type:     "order_placed",
		OrderID:  res.OrderID,
		LocalID:  o.ID,
		MarketID: o.MarketID,
		TokenID:  o.TokenID,
		Side:     o.Side,
		Price:    o.Price,
		Shares:   o.Shares,
		Success:  res.Success,
		Message:  res.Message,
		At:       o.CreatedAt,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, OrdersChannel, payload); err != nil {
		s.logger.Warn("order_service: publish event failed", slog.String("error", err.Error()))
	}
}
