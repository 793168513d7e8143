package service

// PositionSizer turns a risk budget into an order notional. The notional is
// chosen so that a stop-loss exit loses at most equity*riskPct, then scaled
// for edge and confidence and capped at MaxPositionPct of equity.
type PositionSizer struct {
	MaxPositionPct float64
}

// NewPositionSizer returns a sizer capped at maxPositionPct of equity.
func NewPositionSizer(maxPositionPct float64) PositionSizer {
	return PositionSizer{MaxPositionPct: maxPositionPct}
}

// Size returns the USD notional for a trade. It is never negative.
func (s PositionSizer) Size(equity, riskPct, stopLossPct, edge, confidence float64) float64 {
	if equity <= 0 || stopLossPct <= 0 {
		return 0
	}
	base := RiskAmount(equity, riskPct) / stopLossPct
	size := base * edgeMultiplier(edge) * confidence
	if ceiling := equity * s.MaxPositionPct; size > ceiling {
		size = ceiling
	}
	if size < 0 {
		return 0
	}
	return size
}

// RiskAmount is the USD the trader accepts losing on one trade.
func RiskAmount(equity, riskPct float64) float64 {
	if equity <= 0 || riskPct <= 0 {
		return 0
	}
	return equity * riskPct
}

func edgeMultiplier(edge float64) float64 {
	m := 0.8 + edge
	switch {
	case m < 0.8:
		return 0.8
	case m > 1.2:
		return 1.2
	}
	return m
}
