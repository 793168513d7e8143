package domain

import "time"

// Outcome is the side of a binary market an opportunity recommends.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Opportunity is a candidate trade produced outside the core.
type Opportunity struct {
	MarketID        string    `json:"market_id"`
	Question        string    `json:"question"`
	YesTokenID      string    `json:"yes_token_id"`
	NoTokenID       string    `json:"no_token_id"`
	YesPrice        float64   `json:"yes_price"`
	NoPrice         float64   `json:"no_price"`
	FairValue       float64   `json:"fair_value"`
	Edge            float64   `json:"edge"`
	RecommendedSide Outcome   `json:"recommended_side"`
	Confidence      float64   `json:"confidence"`
	Liquidity       float64   `json:"liquidity"`
	Source          string    `json:"source,omitempty"`
	DetectedAt      time.Time `json:"detected_at"`
}

// Token returns the outcome token the opportunity recommends buying.
func (o Opportunity) Token() string {
	if o.RecommendedSide == OutcomeNo {
		return o.NoTokenID
	}
	return o.YesTokenID
}

// Price returns the current price of the recommended outcome token.
func (o Opportunity) Price() float64 {
	if o.RecommendedSide == OutcomeNo {
		return o.NoPrice
	}
	return o.YesPrice
}

// TradeDecision is the verdict on one opportunity. It is emitted to
// observers once per processed opportunity.
type TradeDecision struct {
	Opportunity Opportunity `json:"opportunity"`
	TokenID     string      `json:"token_id"`
	Side        OrderSide   `json:"side"`
	Price       float64     `json:"price"`
	SizeUSD     float64     `json:"size_usd"`
	SizeShares  float64     `json:"size_shares"`
	RiskAmount  float64     `json:"risk_amount"`
	Approved    bool        `json:"approved"`
	Executed    bool        `json:"executed"`
	Reason      string      `json:"reason"`
	PositionID  string      `json:"position_id,omitempty"`
	DecidedAt   time.Time   `json:"decided_at"`
}
