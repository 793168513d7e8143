package domain

// RiskStatus is recomputed on every check and never persisted.
type RiskStatus struct {
	TradingAllowed bool     `json:"trading_allowed"`
	Reason         string   `json:"reason,omitempty"`
	Equity         float64  `json:"equity"`
	DailyPnL       float64  `json:"daily_pnl"`
	DailyPnLPct    float64  `json:"daily_pnl_pct"`
	OpenPositions  int      `json:"open_positions"`
	TotalExposure  float64  `json:"total_exposure"`
	ExposurePct    float64  `json:"exposure_pct"`
	Warnings       []string `json:"warnings,omitempty"`
}

// RiskLimits are the absolute dollar limits implied by the current equity.
type RiskLimits struct {
	RiskPerTrade    float64 `json:"risk_per_trade"`
	MaxPosition     float64 `json:"max_position"`
	MaxDailyLoss    float64 `json:"max_daily_loss"`
	MaxConcurrent   int     `json:"max_concurrent"`
	RiskPerTradePct float64 `json:"risk_per_trade_pct"`
	MaxPositionPct  float64 `json:"max_position_pct"`
	MaxDailyLossPct float64 `json:"max_daily_loss_pct"`
	MaxExposurePct  float64 `json:"max_exposure_pct"`
}
