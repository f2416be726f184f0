package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of ledger entry.
type TransactionType string

const (
	Buy      TransactionType = "BUY"
	Sell     TransactionType = "SELL"
	Dividend TransactionType = "DIVIDEND"
)

// Transaction is an immutable, append-only ledger entry against a portfolio.
// Transactions are never updated after creation; the holdings table can be
// rebuilt by replaying them in ExecutedAt order.
type Transaction struct {
	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Type        TransactionType `json:"type"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Fees        decimal.Decimal `json:"fees"`
	ExecutedAt  time.Time       `json:"executed_at"`
	Note        string          `json:"note,omitempty"`
}

// Amount returns the gross value of the transaction (quantity × price).
// For a DIVIDEND the quantity is 1 and the price carries the payout.
func (t Transaction) Amount() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// RebalanceAction is one trade suggested by the optimizer.
type RebalanceAction struct {
	Symbol        string          `json:"symbol"`
	Action        TransactionType `json:"action"`         // BUY or SELL
	Amount        float64         `json:"amount"`         // in INR
	CurrentWeight float64         `json:"current_weight"` // percent
	TargetWeight  float64         `json:"target_weight"`  // percent
	WeightChange  float64         `json:"weight_change"`  // percent points, signed
}
