package polymarket

import (
	"strconv"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// ToDomainOrderResult converts an APIOrderResult to a domain.OrderResult.
func (r *APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	result := domain.OrderResult{
		Success:     r.Success,
		OrderID:     r.OrderID,
		Message:     r.ErrorMsg,
		ShouldRetry: r.ShouldRetry,
	}

	switch r.Status {
	case "live", "open":
		result.Status = domain.OrderStatusOpen
	case "matched":
		result.Status = domain.OrderStatusMatched
	case "delayed", "unmatched":
		result.Status = domain.OrderStatusPending
	default:
		if r.Success {
			result.Status = domain.OrderStatusPending
		} else {
			result.Status = domain.OrderStatusFailed
		}
	}
	return result
}

// midpointResponse is the body of GET /midpoint. The API sends the price as
// a decimal string.
type midpointResponse struct {
	Mid string `json:"mid"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// BookMessage represents a full orderbook snapshot delivered over WebSocket.
type BookMessage struct {
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
}

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// PriceMessage carries the most recent trade price for an asset.
type PriceMessage struct {
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

// WSCommand is the JSON payload sent to the WebSocket to subscribe.
type WSCommand struct {
	Type   string   `json:"type"`
	Assets []string `json:"assets_ids,omitempty"`
}

// PriceTick is one price observation for a token.
type PriceTick struct {
	TokenID string
	Price   float64
	At      time.Time
}

// BookToTick derives the mid price from a book snapshot. A one-sided book
// yields no tick.
func BookToTick(b *BookMessage) (PriceTick, bool) {
	var bestBid, bestAsk float64
	for _, lvl := range b.Bids {
		if p, err := strconv.ParseFloat(lvl.Price, 64); err == nil && p > bestBid {
			bestBid = p
		}
	}
	for _, lvl := range b.Asks {
		if p, err := strconv.ParseFloat(lvl.Price, 64); err == nil && (bestAsk == 0 || p < bestAsk) {
			bestAsk = p
		}
	}
	if bestBid <= 0 || bestAsk <= 0 {
		return PriceTick{}, false
	}
	return PriceTick{
		TokenID: b.AssetID,
		Price:   (bestBid + bestAsk) / 2,
		At:      parseTimestamp(b.Timestamp),
	}, true
}

// LastTradeToTick converts a last_trade_price message.
func LastTradeToTick(p *PriceMessage) (PriceTick, bool) {
	price, err := strconv.ParseFloat(p.Price, 64)
	if err != nil || price < 0 || price > 1 {
		return PriceTick{}, false
	}
	return PriceTick{TokenID: p.AssetID, Price: price, At: parseTimestamp(p.Timestamp)}, true
}

// parseTimestamp accepts unix milliseconds, unix seconds or RFC 3339 and
// falls back to now.
func parseTimestamp(s string) time.Time {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}
