package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/openseai-risk/pkg/models"
)

// PortfolioRecord is the persisted form of models.Portfolio.
type PortfolioRecord struct {
	ID               string             `gorm:"type:varchar(36);primaryKey"`
	Name             string             `gorm:"type:varchar(200);not null"`
	RiskProfile      string             `gorm:"type:varchar(20);not null"`
	CashBalance      decimal.Decimal    `gorm:"type:decimal(20,4);not null"`
	TotalInvested    decimal.Decimal    `gorm:"type:decimal(20,4);not null"`
	CurrentValue     decimal.Decimal    `gorm:"type:decimal(20,4);not null"`
	TargetAllocation map[string]float64 `gorm:"type:text;serializer:json"`
	InvestmentGoals  []string           `gorm:"type:text;serializer:json"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (PortfolioRecord) TableName() string { return "portfolios" }

// HoldingRecord is the persisted form of models.Holding. A portfolio holds
// at most one row per symbol.
type HoldingRecord struct {
	ID             string          `gorm:"type:varchar(36);primaryKey"`
	PortfolioID    string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_holding_symbol"`
	Symbol         string          `gorm:"type:varchar(32);not null;uniqueIndex:idx_holding_symbol"`
	CompanyName    string          `gorm:"type:varchar(200)"`
	Quantity       int64           `gorm:"not null"`
	AvgCost        decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	LastPrice      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Sector         string          `gorm:"type:varchar(64)"`
	DividendYield  float64
	AcquiredAt     time.Time
	PriceUpdatedAt time.Time
}

func (HoldingRecord) TableName() string { return "holdings" }

// TransactionRecord is an append-only audit row.
type TransactionRecord struct {
	ID          string          `gorm:"type:varchar(36);primaryKey"`
	PortfolioID string          `gorm:"type:varchar(36);not null;index:idx_tx_portfolio_time"`
	Symbol      string          `gorm:"type:varchar(32);not null"`
	Type        string          `gorm:"type:varchar(10);not null"`
	Quantity    int64           `gorm:"not null"`
	Price       decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Fees        decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	ExecutedAt  time.Time       `gorm:"not null;index:idx_tx_portfolio_time"`
	Note        string          `gorm:"type:varchar(255)"`
	Seq         int64           `gorm:"not null;index:idx_tx_portfolio_time"`
}

func (TransactionRecord) TableName() string { return "transactions" }

// SnapshotRecord is one row of portfolio_snapshots.
type SnapshotRecord struct {
	ID               string             `gorm:"type:varchar(36);primaryKey"`
	PortfolioID      string             `gorm:"type:varchar(36);not null;index"`
	TakenAt          time.Time          `gorm:"not null"`
	TotalValue       decimal.Decimal    `gorm:"type:decimal(20,4);not null"`
	TotalInvested    decimal.Decimal    `gorm:"type:decimal(20,4);not null"`
	CashBalance      decimal.Decimal    `gorm:"type:decimal(20,4);not null"`
	SectorAllocation map[string]float64 `gorm:"type:text;serializer:json"`
}

func (SnapshotRecord) TableName() string { return "portfolio_snapshots" }

func (r PortfolioRecord) toModel() models.Portfolio {
	return models.Portfolio{
		ID:               r.ID,
		Name:             r.Name,
		RiskProfile:      models.RiskProfile(r.RiskProfile),
		CashBalance:      r.CashBalance,
		TotalInvested:    r.TotalInvested,
		CurrentValue:     r.CurrentValue,
		TargetAllocation: r.TargetAllocation,
		InvestmentGoals:  r.InvestmentGoals,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (r HoldingRecord) toModel() models.Holding {
	return models.Holding{
		ID:             r.ID,
		PortfolioID:    r.PortfolioID,
		Symbol:         r.Symbol,
		CompanyName:    r.CompanyName,
		Quantity:       r.Quantity,
		AvgCost:        r.AvgCost,
		LastPrice:      r.LastPrice,
		Sector:         r.Sector,
		DividendYield:  r.DividendYield,
		AcquiredAt:     r.AcquiredAt,
		PriceUpdatedAt: r.PriceUpdatedAt,
	}
}

func (r TransactionRecord) toModel() models.Transaction {
	return models.Transaction{
		ID:          r.ID,
		PortfolioID: r.PortfolioID,
		Symbol:      r.Symbol,
		Type:        models.TransactionType(r.Type),
		Quantity:    r.Quantity,
		Price:       r.Price,
		Fees:        r.Fees,
		ExecutedAt:  r.ExecutedAt,
		Note:        r.Note,
	}
}

func (r SnapshotRecord) toModel() models.Snapshot {
	return models.Snapshot{
		ID:               r.ID,
		PortfolioID:      r.PortfolioID,
		TakenAt:          r.TakenAt,
		TotalValue:       r.TotalValue.InexactFloat64(),
		TotalInvested:    r.TotalInvested.InexactFloat64(),
		CashBalance:      r.CashBalance.InexactFloat64(),
		SectorAllocation: r.SectorAllocation,
	}
}
