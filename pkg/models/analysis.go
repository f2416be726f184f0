package models

import "time"

// RiskLevel is the qualitative tier derived from a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY HIGH"
)

// RiskMetrics is computed fresh on every request from current holdings and
// a historical return window. It is never cached across price changes.
type RiskMetrics struct {
	PortfolioID       string    `json:"portfolio_id"`
	TotalValue        float64   `json:"total_value"`
	VaR95             float64   `json:"daily_var_95"` // one-day loss in INR, >= 0
	VaR99             float64   `json:"daily_var_99"` // one-day loss in INR, >= VaR95
	Beta              float64   `json:"beta"`
	SharpeRatio       float64   `json:"sharpe_ratio"`
	Volatility        float64   `json:"volatility"`   // annualised
	MaxDrawdown       float64   `json:"max_drawdown"` // fraction, positive
	CorrelationRisk   float64   `json:"correlation_risk"`
	ConcentrationRisk float64   `json:"concentration_risk"` // Herfindahl index
	RiskScore         int       `json:"risk_score"`         // 1..100
	RiskLevel         RiskLevel `json:"risk_level"`
	Recommendation    string    `json:"recommendation"`

	// InsufficientData is set when fewer than two usable return series were
	// available; Beta is then 1.0 and CorrelationRisk 0.
	InsufficientData bool      `json:"insufficient_data"`
	DroppedSymbols   []string  `json:"dropped_symbols,omitempty"`
	Observations     int       `json:"observations"`
	ComputedAt       time.Time `json:"computed_at"`
}

// CorrelationMatrix holds pairwise Pearson correlations of daily returns.
// Values[i][j] is the correlation of Symbols[i] with Symbols[j].
type CorrelationMatrix struct {
	PortfolioID    string      `json:"portfolio_id"`
	Symbols        []string    `json:"symbols"`
	Values         [][]float64 `json:"values"`
	Observations   int         `json:"observations"`
	DroppedSymbols []string    `json:"dropped_symbols,omitempty"`
}

// Objective selects what the optimizer solves for.
type Objective string

const (
	MaxSharpe     Objective = "max_sharpe"
	MinVolatility Objective = "min_volatility"
)

// OptimizationResult is the optimizer's proposal for a portfolio.
type OptimizationResult struct {
	PortfolioID        string             `json:"portfolio_id"`
	Objective          Objective          `json:"objective"`
	TargetReturn       *float64           `json:"target_return,omitempty"`
	Weights            map[string]float64 `json:"weights"`
	CurrentWeights     map[string]float64 `json:"current_weights"`
	ExpectedReturn     float64            `json:"expected_return"`     // annualised
	ExpectedVolatility float64            `json:"expected_volatility"` // annualised
	SharpeRatio        float64            `json:"sharpe_ratio"`
	CurrentSharpe      float64            `json:"current_sharpe"`
	Actions            []RebalanceAction  `json:"rebalancing_actions"`
	Improvement        string             `json:"potential_improvement"`

	// Converged is false when the solver failed and equal weights were used.
	Converged      bool     `json:"converged"`
	Degraded       string   `json:"degraded,omitempty"`
	DroppedSymbols []string `json:"dropped_symbols,omitempty"`
}

// StressResult is the loss of one shock scenario.
type StressResult struct {
	Scenario string  `json:"scenario"`
	Shock    float64 `json:"shock"` // signed fraction, e.g. -0.20
	Loss     float64 `json:"loss"`  // INR, >= 0
}
