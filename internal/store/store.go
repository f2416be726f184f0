// Package store is the position store: portfolios, holdings, the
// transaction ledger and valuation snapshots, persisted through gorm.
//
// Mutations of one portfolio are serialised by a per-portfolio lock and
// run inside a single database transaction; distinct portfolios proceed
// in parallel.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seenimoa/openseai-risk/internal/infra"
	"github.com/seenimoa/openseai-risk/internal/logger"
	"github.com/seenimoa/openseai-risk/internal/marketdata"
	"github.com/seenimoa/openseai-risk/pkg/models"
	"github.com/seenimoa/openseai-risk/pkg/utils"
)

// DefaultSector is assigned when no sector is given or resolvable.
const DefaultSector = "Others"

// Store persists portfolios and values them against the last known prices.
type Store struct {
	db       *gorm.DB
	prices   marketdata.PriceProvider
	profiles marketdata.ProfileResolver
	locks    *infra.KeyedMutex
	fetch    marketdata.FetchOptions
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithProfileResolver fills in company name and sector for new holdings.
func WithProfileResolver(r marketdata.ProfileResolver) Option {
	return func(s *Store) { s.profiles = r }
}

// WithFetchOptions bounds the price refresh fan-out.
func WithFetchOptions(o marketdata.FetchOptions) Option {
	return func(s *Store) { s.fetch = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = logger.OrNop(l) }
}

// WithClock replaces time.Now (used by tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store over a migrated database.
func New(db *gorm.DB, prices marketdata.PriceProvider, opts ...Option) *Store {
	s := &Store{
		db:     db,
		prices: prices,
		locks:  infra.NewKeyedMutex(),
		fetch:  marketdata.FetchOptions{Concurrency: 5, Timeout: 10 * time.Second},
		log:    zap.NewNop(),
		now:    utils.NowIST,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreatePortfolioInput describes a new portfolio.
type CreatePortfolioInput struct {
	Name             string
	InitialCash      decimal.Decimal
	RiskProfile      string
	Goals            []string
	TargetAllocation map[string]float64 // sector → percent
}

// maxNoteLen matches the width of the transactions.note column.
const maxNoteLen = 255

// AddHoldingInput describes a BUY.
type AddHoldingInput struct {
	Symbol      string
	Quantity    int64
	Price       decimal.Decimal
	Fees        decimal.Decimal
	At          time.Time // zero means now
	Sector      string
	CompanyName string
	Note        string // defaults to a description of the purchase
}

// SellInput describes a SELL.
type SellInput struct {
	Symbol   string
	Quantity int64
	Price    decimal.Decimal
	Fees     decimal.Decimal
	At       time.Time
	Note     string
}

// DividendInput describes a cash dividend.
type DividendInput struct {
	Symbol string
	Amount decimal.Decimal
	At     time.Time
	Note   string
}

// CreatePortfolio validates the input and persists an empty portfolio
// holding only cash.
func (s *Store) CreatePortfolio(ctx context.Context, in CreatePortfolioInput) (string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", fmt.Errorf("%w: portfolio name is required", models.ErrValidation)
	}
	if in.InitialCash.IsNegative() {
		return "", fmt.Errorf("%w: initial cash must be >= 0, got %s", models.ErrValidation, in.InitialCash)
	}
	profile, err := models.ParseRiskProfile(in.RiskProfile)
	if err != nil {
		return "", err
	}

	goals := in.Goals
	if len(goals) == 0 {
		goals = models.DefaultInvestmentGoals()
	}
	target := in.TargetAllocation
	if len(target) == 0 {
		target = models.DefaultTargetAllocation()
	}
	for sector, pct := range target {
		if pct < 0 || pct > 100 {
			return "", fmt.Errorf("%w: target allocation for %s must be within 0..100", models.ErrValidation, sector)
		}
	}

	now := s.now()
	rec := PortfolioRecord{
		ID:               uuid.NewString(),
		Name:             name,
		RiskProfile:      string(profile),
		CashBalance:      in.InitialCash,
		TotalInvested:    decimal.Zero,
		CurrentValue:     in.InitialCash,
		TargetAllocation: target,
		InvestmentGoals:  goals,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("store: create portfolio: %w", err)
	}

	s.log.Info("portfolio created",
		zap.String("portfolio_id", rec.ID),
		zap.String("name", name),
		zap.String("initial_cash", in.InitialCash.StringFixed(2)))
	return rec.ID, nil
}

// AddHolding records a BUY: cash is debited by quantity × price + fees and
// TotalInvested credited by quantity × price. Buying a symbol already held
// tops up the existing holding at weighted-average cost and returns its id.
func (s *Store) AddHolding(ctx context.Context, portfolioID string, in AddHoldingInput) (string, error) {
	symbol := utils.NormalizeSymbol(in.Symbol)
	switch {
	case symbol == "":
		return "", fmt.Errorf("%w: symbol is required", models.ErrValidation)
	case in.Quantity <= 0:
		return "", fmt.Errorf("%w: quantity must be > 0, got %d", models.ErrValidation, in.Quantity)
	case !in.Price.IsPositive():
		return "", fmt.Errorf("%w: price must be > 0, got %s", models.ErrValidation, in.Price)
	case in.Fees.IsNegative():
		return "", fmt.Errorf("%w: fees must be >= 0", models.ErrValidation)
	case len(in.Note) > maxNoteLen:
		return "", fmt.Errorf("%w: note must be at most %d bytes", models.ErrValidation, maxNoteLen)
	}
	at := in.At
	if at.IsZero() {
		at = s.now()
	}

	profile := s.resolveProfile(ctx, symbol, in.Sector, in.CompanyName)

	unlock := s.locks.Lock(portfolioID)
	defer unlock()

	var holdingID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadPortfolio(tx, portfolioID)
		if err != nil {
			return err
		}

		qty := decimal.NewFromInt(in.Quantity)
		cost := in.Price.Mul(qty)
		debit := cost.Add(in.Fees)
		if p.CashBalance.LessThan(debit) {
			return fmt.Errorf("%w: need %s, have %s", models.ErrInsufficientFunds,
				debit.StringFixed(2), p.CashBalance.StringFixed(2))
		}

		note := in.Note
		var h HoldingRecord
		err = tx.Where("portfolio_id = ? AND symbol = ?", portfolioID, symbol).Take(&h).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			h = HoldingRecord{
				ID:             uuid.NewString(),
				PortfolioID:    portfolioID,
				Symbol:         symbol,
				CompanyName:    profile.CompanyName,
				Quantity:       in.Quantity,
				AvgCost:        in.Price,
				LastPrice:      in.Price,
				Sector:         profile.Sector,
				DividendYield:  profile.DividendYield,
				AcquiredAt:     at,
				PriceUpdatedAt: at,
			}
			if err := tx.Create(&h).Error; err != nil {
				return fmt.Errorf("store: create holding: %w", err)
			}
			if note == "" {
				note = fmt.Sprintf("Initial purchase of %d shares", in.Quantity)
			}
		case err != nil:
			return fmt.Errorf("store: load holding: %w", err)
		default:
			newQty := h.Quantity + in.Quantity
			h.AvgCost = h.AvgCost.Mul(decimal.NewFromInt(h.Quantity)).Add(cost).
				Div(decimal.NewFromInt(newQty)).Round(4)
			h.Quantity = newQty
			h.LastPrice = in.Price
			h.PriceUpdatedAt = at
			if err := tx.Save(&h).Error; err != nil {
				return fmt.Errorf("store: update holding: %w", err)
			}
			if note == "" {
				note = fmt.Sprintf("Additional purchase of %d shares", in.Quantity)
			}
		}
		holdingID = h.ID

		p.CashBalance = p.CashBalance.Sub(debit)
		p.TotalInvested = p.TotalInvested.Add(cost)

		if _, err := appendTransaction(tx, TransactionRecord{
			PortfolioID: portfolioID,
			Symbol:      symbol,
			Type:        string(models.Buy),
			Quantity:    in.Quantity,
			Price:       in.Price,
			Fees:        in.Fees,
			ExecutedAt:  at,
			Note:        note,
		}); err != nil {
			return err
		}
		return s.revalue(tx, p)
	})
	if err != nil {
		return "", err
	}

	s.log.Info("holding added",
		zap.String("portfolio_id", portfolioID),
		zap.String("symbol", symbol),
		zap.Int64("quantity", in.Quantity),
		zap.String("price", in.Price.StringFixed(2)))
	return holdingID, nil
}

// SellHolding records a SELL: cash is credited by quantity × price − fees
// and TotalInvested reduced by the cost basis of the sold quantity. The
// holding is removed when its quantity reaches zero.
func (s *Store) SellHolding(ctx context.Context, portfolioID string, in SellInput) (string, error) {
	symbol := utils.NormalizeSymbol(in.Symbol)
	switch {
	case symbol == "":
		return "", fmt.Errorf("%w: symbol is required", models.ErrValidation)
	case in.Quantity <= 0:
		return "", fmt.Errorf("%w: quantity must be > 0, got %d", models.ErrValidation, in.Quantity)
	case !in.Price.IsPositive():
		return "", fmt.Errorf("%w: price must be > 0, got %s", models.ErrValidation, in.Price)
	case in.Fees.IsNegative():
		return "", fmt.Errorf("%w: fees must be >= 0", models.ErrValidation)
	case len(in.Note) > maxNoteLen:
		return "", fmt.Errorf("%w: note must be at most %d bytes", models.ErrValidation, maxNoteLen)
	}
	at := in.At
	if at.IsZero() {
		at = s.now()
	}

	unlock := s.locks.Lock(portfolioID)
	defer unlock()

	var txID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadPortfolio(tx, portfolioID)
		if err != nil {
			return err
		}

		var h HoldingRecord
		err = tx.Where("portfolio_id = ? AND symbol = ?", portfolioID, symbol).Take(&h).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s is not held in portfolio %s", models.ErrNotFound, symbol, portfolioID)
		}
		if err != nil {
			return fmt.Errorf("store: load holding: %w", err)
		}
		if in.Quantity > h.Quantity {
			return fmt.Errorf("%w: cannot sell %d %s, holding %d", models.ErrValidation, in.Quantity, symbol, h.Quantity)
		}

		qty := decimal.NewFromInt(in.Quantity)
		credit := in.Price.Mul(qty).Sub(in.Fees)
		if p.CashBalance.Add(credit).IsNegative() {
			return fmt.Errorf("%w: fees exceed proceeds and cash", models.ErrInsufficientFunds)
		}
		p.CashBalance = p.CashBalance.Add(credit)
		p.TotalInvested = p.TotalInvested.Sub(h.AvgCost.Mul(qty))
		if p.TotalInvested.IsNegative() {
			p.TotalInvested = decimal.Zero
		}

		h.Quantity -= in.Quantity
		if h.Quantity == 0 {
			if err := tx.Delete(&h).Error; err != nil {
				return fmt.Errorf("store: delete holding: %w", err)
			}
		} else {
			h.LastPrice = in.Price
			h.PriceUpdatedAt = at
			if err := tx.Save(&h).Error; err != nil {
				return fmt.Errorf("store: update holding: %w", err)
			}
		}

		note := in.Note
		if note == "" {
			note = fmt.Sprintf("Sold %d shares", in.Quantity)
		}
		txID, err = appendTransaction(tx, TransactionRecord{
			PortfolioID: portfolioID,
			Symbol:      symbol,
			Type:        string(models.Sell),
			Quantity:    in.Quantity,
			Price:       in.Price,
			Fees:        in.Fees,
			ExecutedAt:  at,
			Note:        note,
		})
		if err != nil {
			return err
		}
		return s.revalue(tx, p)
	})
	if err != nil {
		return "", err
	}

	s.log.Info("holding sold",
		zap.String("portfolio_id", portfolioID),
		zap.String("symbol", symbol),
		zap.Int64("quantity", in.Quantity))
	return txID, nil
}

// RecordDividend credits a cash dividend. TotalInvested is unchanged.
func (s *Store) RecordDividend(ctx context.Context, portfolioID string, in DividendInput) (string, error) {
	symbol := utils.NormalizeSymbol(in.Symbol)
	amount := in.Amount
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", models.ErrValidation)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: dividend amount must be > 0, got %s", models.ErrValidation, amount)
	}
	if len(in.Note) > maxNoteLen {
		return "", fmt.Errorf("%w: note must be at most %d bytes", models.ErrValidation, maxNoteLen)
	}
	at := in.At
	if at.IsZero() {
		at = s.now()
	}
	note := in.Note
	if note == "" {
		note = fmt.Sprintf("Dividend of %s from %s", amount.StringFixed(2), symbol)
	}

	unlock := s.locks.Lock(portfolioID)
	defer unlock()

	var txID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadPortfolio(tx, portfolioID)
		if err != nil {
			return err
		}
		p.CashBalance = p.CashBalance.Add(amount)

		txID, err = appendTransaction(tx, TransactionRecord{
			PortfolioID: portfolioID,
			Symbol:      symbol,
			Type:        string(models.Dividend),
			Quantity:    1,
			Price:       amount,
			Fees:        decimal.Zero,
			ExecutedAt:  at,
			Note:        note,
		})
		if err != nil {
			return err
		}
		return s.revalue(tx, p)
	})
	if err != nil {
		return "", err
	}

	s.log.Info("dividend recorded",
		zap.String("portfolio_id", portfolioID),
		zap.String("symbol", symbol),
		zap.String("amount", amount.StringFixed(2)))
	return txID, nil
}

// RefreshPrices fetches current prices for every holding and commits the
// successful ones in a single transaction. Symbols whose fetch fails keep
// their previous price and are logged; the returned map holds only the
// prices that were applied.
func (s *Store) RefreshPrices(ctx context.Context, portfolioID string) (map[string]float64, error) {
	if _, err := loadPortfolio(s.db.WithContext(ctx), portfolioID); err != nil {
		return nil, err
	}
	holdings, err := holdingsOf(s.db.WithContext(ctx), portfolioID)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, len(holdings))
	for i, h := range holdings {
		symbols[i] = h.Symbol
	}

	// Network calls happen outside the portfolio lock.
	fetched := make(map[string]float64, len(symbols))
	for _, r := range marketdata.FetchPrices(ctx, s.prices, symbols, s.fetch) {
		if r.Err != nil || r.Price <= 0 {
			s.log.Warn("price refresh failed",
				zap.String("portfolio_id", portfolioID),
				zap.String("symbol", r.Symbol),
				zap.Error(r.Err))
			continue
		}
		fetched[r.Symbol] = r.Price
	}

	unlock := s.locks.Lock(portfolioID)
	defer unlock()

	applied := make(map[string]float64, len(fetched))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadPortfolio(tx, portfolioID)
		if err != nil {
			return err
		}
		current, err := holdingsOf(tx, portfolioID)
		if err != nil {
			return err
		}

		now := s.now()
		for i := range current {
			px, ok := fetched[current[i].Symbol]
			if !ok {
				continue
			}
			current[i].LastPrice = decimal.NewFromFloat(px)
			current[i].PriceUpdatedAt = now
			if err := tx.Save(&current[i]).Error; err != nil {
				return fmt.Errorf("store: update price %s: %w", current[i].Symbol, err)
			}
			applied[current[i].Symbol] = px
		}
		return s.revalue(tx, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("prices refreshed",
		zap.String("portfolio_id", portfolioID),
		zap.Int("updated", len(applied)),
		zap.Int("failed", len(symbols)-len(applied)))
	return applied, nil
}

// GetSummary values the portfolio against the last known prices.
func (s *Store) GetSummary(ctx context.Context, portfolioID string) (*models.PortfolioSummary, error) {
	db := s.db.WithContext(ctx)
	p, err := loadPortfolio(db, portfolioID)
	if err != nil {
		return nil, err
	}
	holdings, err := holdingsOf(db, portfolioID)
	if err != nil {
		return nil, err
	}
	return summarize(p, holdings), nil
}

// GetWeights returns each holding's share of the holdings value, cash
// excluded. The weights sum to one.
func (s *Store) GetWeights(ctx context.Context, portfolioID string) (map[string]float64, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadPortfolio(db, portfolioID); err != nil {
		return nil, err
	}
	holdings, err := holdingsOf(db, portfolioID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrEmptyPortfolio, portfolioID)
	}
	return weightsOf(holdings), nil
}

// TotalValue is the holdings value plus cash.
func (s *Store) TotalValue(ctx context.Context, portfolioID string) (float64, error) {
	db := s.db.WithContext(ctx)
	p, err := loadPortfolio(db, portfolioID)
	if err != nil {
		return 0, err
	}
	holdings, err := holdingsOf(db, portfolioID)
	if err != nil {
		return 0, err
	}
	return holdingsValue(holdings).Add(p.CashBalance).InexactFloat64(), nil
}

// Holdings returns the positions of a portfolio ordered by symbol.
func (s *Store) Holdings(ctx context.Context, portfolioID string) ([]models.Holding, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadPortfolio(db, portfolioID); err != nil {
		return nil, err
	}
	recs, err := holdingsOf(db, portfolioID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Holding, len(recs))
	for i, r := range recs {
		out[i] = r.toModel()
	}
	return out, nil
}

// ListPortfolios returns one row per portfolio, oldest first.
func (s *Store) ListPortfolios(ctx context.Context) ([]models.PortfolioListing, error) {
	var recs []PortfolioRecord
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("store: list portfolios: %w", err)
	}

	out := make([]models.PortfolioListing, len(recs))
	for i, r := range recs {
		invested := r.TotalInvested.InexactFloat64()
		holdings := r.CurrentValue.Sub(r.CashBalance).InexactFloat64()
		var ret float64
		if invested > 0 {
			ret = (holdings - invested) / invested * 100
		}
		out[i] = models.PortfolioListing{
			PortfolioID:   r.ID,
			Name:          r.Name,
			RiskProfile:   models.RiskProfile(r.RiskProfile),
			CurrentValue:  r.CurrentValue.InexactFloat64(),
			TotalInvested: invested,
			ReturnPct:     ret,
			CreatedAt:     r.CreatedAt,
		}
	}
	return out, nil
}

// Transactions returns the ledger of a portfolio in execution order.
func (s *Store) Transactions(ctx context.Context, portfolioID string) ([]models.Transaction, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadPortfolio(db, portfolioID); err != nil {
		return nil, err
	}
	var recs []TransactionRecord
	if err := db.Where("portfolio_id = ?", portfolioID).
		Order("executed_at, seq").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("store: list transactions: %w", err)
	}
	out := make([]models.Transaction, len(recs))
	for i, r := range recs {
		out[i] = r.toModel()
	}
	return out, nil
}

// TakeSnapshot persists the current valuation of a portfolio.
func (s *Store) TakeSnapshot(ctx context.Context, portfolioID string) (*models.Snapshot, error) {
	unlock := s.locks.Lock(portfolioID)
	defer unlock()

	var snap SnapshotRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadPortfolio(tx, portfolioID)
		if err != nil {
			return err
		}
		holdings, err := holdingsOf(tx, portfolioID)
		if err != nil {
			return err
		}
		sum := summarize(p, holdings)

		snap = SnapshotRecord{
			ID:               uuid.NewString(),
			PortfolioID:      portfolioID,
			TakenAt:          s.now(),
			TotalValue:       holdingsValue(holdings).Add(p.CashBalance),
			TotalInvested:    p.TotalInvested,
			CashBalance:      p.CashBalance,
			SectorAllocation: sum.SectorAllocation,
		}
		if err := tx.Create(&snap).Error; err != nil {
			return fmt.Errorf("store: create snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m := snap.toModel()
	return &m, nil
}

// Snapshots returns the stored snapshots of a portfolio, oldest first.
func (s *Store) Snapshots(ctx context.Context, portfolioID string) ([]models.Snapshot, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadPortfolio(db, portfolioID); err != nil {
		return nil, err
	}
	var recs []SnapshotRecord
	if err := db.Where("portfolio_id = ?", portfolioID).Order("taken_at").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	out := make([]models.Snapshot, len(recs))
	for i, r := range recs {
		out[i] = r.toModel()
	}
	return out, nil
}

// --- helpers ---

func (s *Store) resolveProfile(ctx context.Context, symbol, sector, company string) models.StockProfile {
	p := models.StockProfile{Symbol: symbol, Sector: sector, CompanyName: company}
	if (sector == "" || company == "") && s.profiles != nil {
		rctx, cancel := ctx, context.CancelFunc(func() {})
		if s.fetch.Timeout > 0 {
			rctx, cancel = context.WithTimeout(ctx, s.fetch.Timeout)
		}
		resolved, err := s.profiles.Profile(rctx, symbol)
		cancel()
		if err != nil {
			s.log.Warn("profile lookup failed", zap.String("symbol", symbol), zap.Error(err))
		} else {
			if p.Sector == "" {
				p.Sector = resolved.Sector
			}
			if p.CompanyName == "" {
				p.CompanyName = resolved.CompanyName
			}
			p.DividendYield = resolved.DividendYield
		}
	}
	if p.Sector == "" {
		p.Sector = DefaultSector
	}
	if p.CompanyName == "" {
		p.CompanyName = utils.BaseTicker(symbol)
	}
	return p
}

// revalue recomputes CurrentValue from the holdings rows and saves p.
func (s *Store) revalue(tx *gorm.DB, p *PortfolioRecord) error {
	holdings, err := holdingsOf(tx, p.ID)
	if err != nil {
		return err
	}
	p.CurrentValue = holdingsValue(holdings).Add(p.CashBalance)
	p.UpdatedAt = s.now()
	if err := tx.Save(p).Error; err != nil {
		return fmt.Errorf("store: save portfolio: %w", err)
	}
	return nil
}

func loadPortfolio(db *gorm.DB, id string) (*PortfolioRecord, error) {
	var p PortfolioRecord
	err := db.Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: portfolio %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load portfolio: %w", err)
	}
	return &p, nil
}

func holdingsOf(db *gorm.DB, portfolioID string) ([]HoldingRecord, error) {
	var hs []HoldingRecord
	if err := db.Where("portfolio_id = ?", portfolioID).Order("symbol").Find(&hs).Error; err != nil {
		return nil, fmt.Errorf("store: load holdings: %w", err)
	}
	return hs, nil
}

func appendTransaction(tx *gorm.DB, rec TransactionRecord) (string, error) {
	var maxSeq int64
	if err := tx.Model(&TransactionRecord{}).
		Where("portfolio_id = ?", rec.PortfolioID).
		Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
		return "", fmt.Errorf("store: next sequence: %w", err)
	}
	rec.ID = uuid.NewString()
	rec.Seq = maxSeq + 1
	if err := tx.Create(&rec).Error; err != nil {
		return "", fmt.Errorf("store: append transaction: %w", err)
	}
	return rec.ID, nil
}

func holdingsValue(hs []HoldingRecord) decimal.Decimal {
	total := decimal.Zero
	for _, h := range hs {
		total = total.Add(h.LastPrice.Mul(decimal.NewFromInt(h.Quantity)))
	}
	return total
}

// weightsOf normalises position values to sum to one. The last weight
// absorbs floating-point residue.
func weightsOf(hs []HoldingRecord) map[string]float64 {
	total := holdingsValue(hs)
	weights := make(map[string]float64, len(hs))
	if !total.IsPositive() {
		eq := 1 / float64(len(hs))
		for _, h := range hs {
			weights[h.Symbol] = eq
		}
		return weights
	}

	sum := 0.0
	for i, h := range hs {
		if i == len(hs)-1 {
			weights[h.Symbol] = 1 - sum
			break
		}
		w := h.LastPrice.Mul(decimal.NewFromInt(h.Quantity)).Div(total).InexactFloat64()
		weights[h.Symbol] = w
		sum += w
	}
	return weights
}

func summarize(p *PortfolioRecord, hs []HoldingRecord) *models.PortfolioSummary {
	sum := &models.PortfolioSummary{
		PortfolioID:      p.ID,
		Name:             p.Name,
		RiskProfile:      models.RiskProfile(p.RiskProfile),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		CashBalance:      p.CashBalance.InexactFloat64(),
		Holdings:         make([]models.HoldingSummary, 0, len(hs)),
		SectorAllocation: make(map[string]float64),
		TargetAllocation: p.TargetAllocation,
		InvestmentGoals:  p.InvestmentGoals,
	}

	value := holdingsValue(hs)
	invested := decimal.Zero
	sectors := make(map[string]decimal.Decimal)
	for _, h := range hs {
		m := h.toModel()
		cv := m.PositionValue()
		cb := m.CostBasis()
		invested = invested.Add(cb)
		sectors[h.Sector] = sectors[h.Sector].Add(cv)

		row := models.HoldingSummary{
			Symbol:       h.Symbol,
			CompanyName:  h.CompanyName,
			Sector:       h.Sector,
			Quantity:     h.Quantity,
			AvgCost:      h.AvgCost.InexactFloat64(),
			CurrentPrice: h.LastPrice.InexactFloat64(),
			CurrentValue: cv.InexactFloat64(),
			Investment:   cb.InexactFloat64(),
			PnL:          cv.Sub(cb).InexactFloat64(),
		}
		if cb.IsPositive() {
			row.PnLPct = cv.Sub(cb).Div(cb).InexactFloat64() * 100
		}
		if value.IsPositive() {
			row.Weight = cv.Div(value).InexactFloat64() * 100
		}
		sum.Holdings = append(sum.Holdings, row)
	}

	if value.IsPositive() {
		for sector, v := range sectors {
			sum.SectorAllocation[sector] = v.Div(value).InexactFloat64() * 100
		}
	}
	sort.Slice(sum.Holdings, func(i, j int) bool {
		return sum.Holdings[i].CurrentValue > sum.Holdings[j].CurrentValue
	})

	sum.HoldingsValue = value.InexactFloat64()
	sum.TotalValue = value.Add(p.CashBalance).InexactFloat64()
	sum.TotalInvestment = invested.InexactFloat64()
	sum.TotalReturn = value.Sub(invested).InexactFloat64()
	if invested.IsPositive() {
		sum.TotalReturnPct = value.Sub(invested).Div(invested).InexactFloat64() * 100
	}
	return sum
}
