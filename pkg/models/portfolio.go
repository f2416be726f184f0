package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RiskProfile tags a portfolio with the owner's risk appetite.
type RiskProfile string

const (
	Conservative RiskProfile = "Conservative"
	Moderate     RiskProfile = "Moderate"
	Aggressive   RiskProfile = "Aggressive"
)

// ParseRiskProfile accepts any casing of the three known profiles.
func ParseRiskProfile(s string) (RiskProfile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conservative":
		return Conservative, nil
	case "", "moderate":
		return Moderate, nil
	case "aggressive":
		return Aggressive, nil
	}
	return "", fmt.Errorf("%w: unknown risk profile %q", ErrValidation, s)
}

// DefaultInvestmentGoals is used when a portfolio is created without goals.
func DefaultInvestmentGoals() []string {
	return []string{"Long-term Growth", "Diversification"}
}

// DefaultTargetAllocation is the sector split (percent) for a new Indian
// equity portfolio.
func DefaultTargetAllocation() map[string]float64 {
	return map[string]float64{
		"IT":      25.0,
		"Banking": 20.0,
		"Auto":    15.0,
		"Pharma":  10.0,
		"Energy":  10.0,
		"FMCG":    10.0,
		"Others":  10.0,
	}
}

// Portfolio is the bookkeeping root. CashBalance never goes negative and
// TotalInvested moves only with BUY/SELL transactions.
type Portfolio struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	RiskProfile      RiskProfile        `json:"risk_profile"`
	CashBalance      decimal.Decimal    `json:"cash_balance"`
	TotalInvested    decimal.Decimal    `json:"total_invested"`
	CurrentValue     decimal.Decimal    `json:"current_value"`
	TargetAllocation map[string]float64 `json:"target_allocation"`
	InvestmentGoals  []string           `json:"investment_goals"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Holding is a position in a single instrument, owned by exactly one portfolio.
type Holding struct {
	ID             string          `json:"id"`
	PortfolioID    string          `json:"portfolio_id"`
	Symbol         string          `json:"symbol"`
	CompanyName    string          `json:"company_name"`
	Quantity       int64           `json:"quantity"`
	AvgCost        decimal.Decimal `json:"avg_cost"`
	LastPrice      decimal.Decimal `json:"last_price"`
	Sector         string          `json:"sector"`
	DividendYield  float64         `json:"dividend_yield"`
	AcquiredAt     time.Time       `json:"acquired_at"`
	PriceUpdatedAt time.Time       `json:"price_updated_at"`
}

// PositionValue is quantity × last known price.
func (h Holding) PositionValue() decimal.Decimal {
	return h.LastPrice.Mul(decimal.NewFromInt(h.Quantity))
}

// CostBasis is quantity × average cost.
func (h Holding) CostBasis() decimal.Decimal {
	return h.AvgCost.Mul(decimal.NewFromInt(h.Quantity))
}

// UnrealizedPnL is position value minus cost basis.
func (h Holding) UnrealizedPnL() decimal.Decimal {
	return h.PositionValue().Sub(h.CostBasis())
}

// HoldingSummary is the per-position row of a PortfolioSummary.
type HoldingSummary struct {
	Symbol       string  `json:"symbol"`
	CompanyName  string  `json:"company_name"`
	Sector       string  `json:"sector"`
	Quantity     int64   `json:"quantity"`
	AvgCost      float64 `json:"avg_cost"`
	CurrentPrice float64 `json:"current_price"`
	CurrentValue float64 `json:"current_value"`
	Investment   float64 `json:"investment"`
	PnL          float64 `json:"pnl"`
	PnLPct       float64 `json:"pnl_pct"`
	Weight       float64 `json:"weight"` // percent of holdings value
}

// PortfolioSummary is the valuation view returned by the position store.
type PortfolioSummary struct {
	PortfolioID      string             `json:"portfolio_id"`
	Name             string             `json:"name"`
	RiskProfile      RiskProfile        `json:"risk_profile"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	TotalValue       float64            `json:"total_value"`
	CashBalance      float64            `json:"cash_balance"`
	HoldingsValue    float64            `json:"holdings_value"`
	TotalInvestment  float64            `json:"total_investment"`
	TotalReturn      float64            `json:"total_return"`
	TotalReturnPct   float64            `json:"total_return_pct"`
	Holdings         []HoldingSummary   `json:"holdings"`
	SectorAllocation map[string]float64 `json:"sector_allocation"` // percent
	TargetAllocation map[string]float64 `json:"target_allocation"`
	InvestmentGoals  []string           `json:"investment_goals"`
}

// PortfolioListing is one row of the portfolio index.
type PortfolioListing struct {
	PortfolioID   string      `json:"portfolio_id"`
	Name          string      `json:"name"`
	RiskProfile   RiskProfile `json:"risk_profile"`
	CurrentValue  float64     `json:"current_value"`
	TotalInvested float64     `json:"total_invested"`
	ReturnPct     float64     `json:"return_pct"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Snapshot is a persisted point-in-time valuation of a portfolio.
type Snapshot struct {
	ID               string             `json:"id"`
	PortfolioID      string             `json:"portfolio_id"`
	TakenAt          time.Time          `json:"taken_at"`
	TotalValue       float64            `json:"total_value"`
	TotalInvested    float64            `json:"total_invested"`
	CashBalance      float64            `json:"cash_balance"`
	SectorAllocation map[string]float64 `json:"sector_allocation"`
}
