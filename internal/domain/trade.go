package domain

import "time"

// CloseReason tags why a position was closed. The same tag is used for
// alerting and statistics.
type CloseReason string

const (
	CloseReasonStopLoss      CloseReason = "STOP_LOSS"
	CloseReasonTakeProfit    CloseReason = "TAKE_PROFIT"
	CloseReasonTrailingStop  CloseReason = "TRAILING_STOP"
	CloseReasonBreakevenStop CloseReason = "BREAKEVEN_STOP"
	CloseReasonManual        CloseReason = "MANUAL"
)

// Valid reports whether r is one of the known close reasons.
func (r CloseReason) Valid() bool {
	switch r {
	case CloseReasonStopLoss, CloseReasonTakeProfit, CloseReasonTrailingStop,
		CloseReasonBreakevenStop, CloseReasonManual:
		return true
	}
	return false
}

// ClosedTrade is the immutable record of a position at close time.
type ClosedTrade struct {
	ID                 string      `json:"id"`
	MarketID           string      `json:"market_id"`
	Market             string      `json:"market"`
	TokenID            string      `json:"token_id"`
	Side               OrderSide   `json:"side"`
	Size               float64     `json:"size"`
	EntryPrice         float64     `json:"entry_price"`
	ExitPrice          float64     `json:"exit_price"`
	RiskAmount         float64     `json:"risk_amount"`
	PnL                float64     `json:"pnl"`
	PnLPct             float64     `json:"pnl_pct"`
	Won                bool        `json:"won"`
	CloseReason        CloseReason `json:"close_reason"`
	EntryTime          time.Time   `json:"entry_time"`
	ExitTime           time.Time   `json:"exit_time"`
	StopLossPrice      float64     `json:"stop_loss_price"`
	TakeProfitPrice    float64     `json:"take_profit_price"`
	BreakevenTriggered bool        `json:"breakeven_triggered"`
	TrailingStopActive bool        `json:"trailing_stop_active"`
	HighestPrice       float64     `json:"highest_price"`
	Paper              bool        `json:"paper"`
}

// CloseAt snapshots p as a ClosedTrade exiting at exit.
func (p Position) CloseAt(exit float64, reason CloseReason, at time.Time) ClosedTrade {
	pnl := p.PnLAt(exit)
	return ClosedTrade{
		ID:                 p.ID,
		MarketID:           p.MarketID,
		Market:             p.Market,
		TokenID:            p.TokenID,
		Side:               p.Side,
		Size:               p.Size,
		EntryPrice:         p.EntryPrice,
		ExitPrice:          exit,
		RiskAmount:         p.RiskAmount,
		PnL:                pnl,
		PnLPct:             p.PnLPctAt(exit),
		Won:                pnl >= 0,
		CloseReason:        reason,
		EntryTime:          p.EntryTime,
		ExitTime:           at.UTC(),
		StopLossPrice:      p.StopLossPrice,
		TakeProfitPrice:    p.TakeProfitPrice,
		BreakevenTriggered: p.BreakevenTriggered,
		TrailingStopActive: p.TrailingStopActive,
		HighestPrice:       p.HighestPrice,
		Paper:              p.Paper,
	}
}

// LastActivity is the exit time, or the entry time for rows missing one.
func (t ClosedTrade) LastActivity() time.Time {
	if !t.ExitTime.IsZero() {
		return t.ExitTime
	}
	return t.EntryTime
}

// TradeStats aggregates closed-trade history.
type TradeStats struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	TotalPnL    float64 `json:"total_pnl"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`
	BestTrade   float64 `json:"best_trade"`
	WorstTrade  float64 `json:"worst_trade"`
}

// ComputeTradeStats folds trades into TradeStats. Stores without an
// aggregate query use it directly.
func ComputeTradeStats(trades []ClosedTrade) TradeStats {
	var s TradeStats
	var winSum, lossSum float64
	for i, t := range trades {
		s.TotalTrades++
		s.TotalPnL += t.PnL
		if t.Won {
			s.Wins++
			winSum += t.PnL
		} else {
			s.Losses++
			lossSum += t.PnL
		}
		if i == 0 || t.PnL > s.BestTrade {
			s.BestTrade = t.PnL
		}
		if i == 0 || t.PnL < s.WorstTrade {
			s.WorstTrade = t.PnL
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	if s.Wins > 0 {
		s.AvgWin = winSum / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = lossSum / float64(s.Losses)
	}
	return s
}
