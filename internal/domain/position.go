package domain

import (
	"fmt"
	"time"
)

// Position is an open holding of an outcome token. Trigger prices are fixed
// at entry and only ever tightened afterwards.
type Position struct {
	ID                    string    `json:"id"`
	MarketID              string    `json:"market_id"`
	Market                string    `json:"market"`
	TokenID               string    `json:"token_id"`
	Side                  OrderSide `json:"side"`
	Size                  float64   `json:"size"`
	EntryPrice            float64   `json:"price"`
	RiskAmount            float64   `json:"risk_amount"`
	StopLossPrice         float64   `json:"stop_loss_price"`
	TakeProfitPrice       float64   `json:"take_profit_price"`
	BreakevenTriggerPrice float64   `json:"breakeven_trigger_price"`
	HighestPrice          float64   `json:"highest_price"`
	BreakevenTriggered    bool      `json:"breakeven_triggered"`
	TrailingStopActive    bool      `json:"trailing_stop_active"`
	EntryTime             time.Time `json:"entry_time"`
	Paper                 bool      `json:"paper"`
}

// TriggerRules are the fractional distances used to derive a position's
// stop-loss, take-profit and breakeven levels and to trail the stop.
type TriggerRules struct {
	StopLossPct         float64
	TakeProfitPct       float64
	BreakevenTriggerPct float64
	TrailingStopPct     float64
	UseTrailingStop     bool
}

// NewPosition validates the entry parameters and derives the trigger levels.
func NewPosition(id, marketID, market, tokenID string, side OrderSide, size, price, riskAmount float64, rules TriggerRules, entry time.Time, paper bool) (Position, error) {
	if tokenID == "" {
		return Position{}, fmt.Errorf("%w: token id is required", ErrInvalidPosition)
	}
	if side != OrderSideBuy && side != OrderSideSell {
		return Position{}, fmt.Errorf("%w: unknown side %q", ErrInvalidPosition, side)
	}
	if price <= 0 || price >= 1 {
		return Position{}, fmt.Errorf("%w: price %.4f outside (0, 1)", ErrInvalidPosition, price)
	}
	if size <= 0 {
		return Position{}, fmt.Errorf("%w: size %.4f must be positive", ErrInvalidPosition, size)
	}
	if riskAmount <= 0 {
		riskAmount = size * price * rules.StopLossPct
	}

	p := Position{
		ID:           id,
		MarketID:     marketID,
		Market:       market,
		TokenID:      tokenID,
		Side:         side,
		Size:         size,
		EntryPrice:   price,
		RiskAmount:   riskAmount,
		HighestPrice: price,
		EntryTime:    entry.UTC(),
		Paper:        paper,
	}
	if side == OrderSideBuy {
		p.StopLossPrice = price * (1 - rules.StopLossPct)
		p.TakeProfitPrice = price * (1 + rules.TakeProfitPct)
		p.BreakevenTriggerPrice = price * (1 + rules.BreakevenTriggerPct)
	} else {
		p.StopLossPrice = price * (1 + rules.StopLossPct)
		p.TakeProfitPrice = price * (1 - rules.TakeProfitPct)
		p.BreakevenTriggerPrice = price * (1 - rules.BreakevenTriggerPct)
	}
	return p, nil
}

// Value is the notional paid at entry.
func (p Position) Value() float64 {
	return p.Size * p.EntryPrice
}

// PnLAt returns the P&L the position would realise at exit.
func (p Position) PnLAt(exit float64) float64 {
	if p.Side == OrderSideSell {
		return (p.EntryPrice - exit) * p.Size
	}
	return (exit - p.EntryPrice) * p.Size
}

// PnLPctAt returns PnLAt as a percentage of the entry notional.
func (p Position) PnLPctAt(exit float64) float64 {
	v := p.Value()
	if v <= 0 {
		return 0
	}
	return p.PnLAt(exit) / v * 100
}

// better reports whether a is a more favourable price than b for this side.
func (p Position) better(a, b float64) bool {
	if p.Side == OrderSideSell {
		return a < b
	}
	return a > b
}

// reached reports whether price has touched level in the favourable direction.
func (p Position) reached(price, level float64) bool {
	if p.Side == OrderSideSell {
		return price <= level
	}
	return price >= level
}

// stopHit reports whether price is at or through the stop.
func (p Position) stopHit(price float64) bool {
	if p.Side == OrderSideSell {
		return price >= p.StopLossPrice
	}
	return price <= p.StopLossPrice
}

// Tick is the outcome of observing one price against a position.
type Tick struct {
	// Changed is set when any persisted field moved (highest price, stop,
	// breakeven or trailing flags).
	Changed bool
	// Triggered is set when the position must be closed at ExitPrice.
	Triggered bool
	Reason    CloseReason
	ExitPrice float64
}

// Observe advances the position state machine by one price observation.
// Breakeven fires once, then the trailing stop ratchets behind the best price
// seen. Stop-loss is evaluated before take-profit, so take-profit wins when
// both are hit in the same observation. Exits are reported at the limit
// level, not at the observed price.
func (p *Position) Observe(price float64, rules TriggerRules) Tick {
	var t Tick

	if p.better(price, p.HighestPrice) {
		p.HighestPrice = price
		t.Changed = true
	}

	if !p.BreakevenTriggered && p.reached(price, p.BreakevenTriggerPrice) {
		p.BreakevenTriggered = true
		p.StopLossPrice = p.EntryPrice
		p.TrailingStopActive = rules.UseTrailingStop
		t.Changed = true
	}

	if p.TrailingStopActive {
		var trail float64
		if p.Side == OrderSideSell {
			trail = p.HighestPrice * (1 + rules.TrailingStopPct)
		} else {
			trail = p.HighestPrice * (1 - rules.TrailingStopPct)
		}
		if p.better(trail, p.StopLossPrice) {
			p.StopLossPrice = trail
			t.Changed = true
		}
	}

	if p.StopLossPrice > 0 && p.stopHit(price) {
		t.Triggered = true
		t.ExitPrice = p.StopLossPrice
		switch {
		case p.TrailingStopActive:
			t.Reason = CloseReasonTrailingStop
		case p.BreakevenTriggered:
			t.Reason = CloseReasonBreakevenStop
		default:
			t.Reason = CloseReasonStopLoss
		}
	}

	if p.TakeProfitPrice > 0 && p.reached(price, p.TakeProfitPrice) {
		t.Triggered = true
		t.ExitPrice = p.TakeProfitPrice
		t.Reason = CloseReasonTakeProfit
	}

	return t
}

// PositionView is a position annotated with a current mark.
type PositionView struct {
	Position
	CurrentPrice     float64 `json:"current_price"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
	Priced           bool    `json:"priced"`
}

// Mark builds a PositionView at the given price.
func (p Position) Mark(price float64) PositionView {
	return PositionView{
		Position:         p,
		CurrentPrice:     price,
		UnrealizedPnL:    p.PnLAt(price),
		UnrealizedPnLPct: p.PnLPctAt(price),
		Priced:           true,
	}
}
