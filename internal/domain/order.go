package domain

import (
	"math/big"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Order is a signed limit order as submitted to the exchange.
type Order struct {
	ID            string
	MarketID      string
	TokenID       string
	Wallet        string // maker: the funder address (EOA or Safe)
	Signer        string // EOA that signed the order
	Side          OrderSide
	Type          OrderType
	Price         float64
	Shares        float64
	MakerAmount   *big.Int // 1e6 fixed-point amount the maker gives
	TakerAmount   *big.Int // 1e6 fixed-point amount the maker receives
	Salt          string
	SignatureType int    // 0 EOA, 1 POLY_PROXY, 2 POLY_GNOSIS_SAFE
	Signature     string // EIP-712 hex
	CreatedAt     time.Time
}

// OrderRequest is what the ledger asks the live order path to fill.
type OrderRequest struct {
	MarketID string
	TokenID  string
	Side     OrderSide
	Price    float64
	Shares   float64
}

// OrderResult wraps the API response after order submission.
type OrderResult struct {
	Success     bool
	OrderID     string
	Status      OrderStatus
	Message     string
	ShouldRetry bool
}
