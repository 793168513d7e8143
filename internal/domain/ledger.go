package domain

import "time"

// LedgerState is the single persisted row of account-level figures.
type LedgerState struct {
	Balance        float64   `json:"balance"`
	DailyPnL       float64   `json:"daily_pnl"`
	TotalPnL       float64   `json:"total_pnl"`
	LastDailyReset time.Time `json:"last_daily_reset"`
}

// LedgerSnapshot is a consistent copy of the ledger for readers.
type LedgerSnapshot struct {
	State     LedgerState `json:"state"`
	Positions []Position  `json:"positions"`
}

// Exposure is the summed entry notional of all open positions.
func (s LedgerSnapshot) Exposure() float64 {
	var total float64
	for _, p := range s.Positions {
		total += p.Value()
	}
	return total
}

// HasToken reports whether an open position exists on tokenID.
func (s LedgerSnapshot) HasToken(tokenID string) bool {
	for _, p := range s.Positions {
		if p.TokenID == tokenID {
			return true
		}
	}
	return false
}

// Tokens returns the distinct token ids with open positions.
func (s LedgerSnapshot) Tokens() []string {
	seen := make(map[string]struct{}, len(s.Positions))
	out := make([]string, 0, len(s.Positions))
	for _, p := range s.Positions {
		if _, ok := seen[p.TokenID]; ok {
			continue
		}
		seen[p.TokenID] = struct{}{}
		out = append(out, p.TokenID)
	}
	return out
}
