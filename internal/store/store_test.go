package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/openseai-risk/internal/config"
	"github.com/seenimoa/openseai-risk/internal/marketdata"
	"github.com/seenimoa/openseai-risk/pkg/models"
)

var t0 = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, prices marketdata.PriceProvider, opts ...Option) *Store {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	if prices == nil {
		prices = marketdata.NewStatic()
	}
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	return New(db, prices, opts...)
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func createPortfolio(t *testing.T, s *Store, cash string) string {
	t.Helper()
	id, err := s.CreatePortfolio(context.Background(), CreatePortfolioInput{
		Name:        "Core Equity",
		InitialCash: d(cash),
	})
	require.NoError(t, err)
	return id
}

func buy(t *testing.T, s *Store, id, symbol string, qty int64, price string) string {
	t.Helper()
	hid, err := s.AddHolding(context.Background(), id, AddHoldingInput{
		Symbol: symbol, Quantity: qty, Price: d(price), Sector: "IT",
	})
	require.NoError(t, err)
	return hid
}

// ═══════════════════════════════════════════════════════════════════
// CreatePortfolio
// ═══════════════════════════════════════════════════════════════════

func TestCreatePortfolioDefaults(t *testing.T) {
	s := newTestStore(t, nil)
	id := createPortfolio(t, s, "100000")

	sum, err := s.GetSummary(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Core Equity", sum.Name)
	assert.Equal(t, models.Moderate, sum.RiskProfile)
	assert.Equal(t, 100000.0, sum.TotalValue)
	assert.Equal(t, 100000.0, sum.CashBalance)
	assert.Equal(t, models.DefaultInvestmentGoals(), sum.InvestmentGoals)
	assert.Equal(t, models.DefaultTargetAllocation(), sum.TargetAllocation)
	assert.Empty(t, sum.Holdings)
}

func TestCreatePortfolioValidation(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreatePortfolioInput
	}{
		{"negative cash", CreatePortfolioInput{Name: "x", InitialCash: d("-1")}},
		{"empty name", CreatePortfolioInput{Name: "  ", InitialCash: d("10")}},
		{"unknown profile", CreatePortfolioInput{Name: "x", RiskProfile: "YOLO"}},
		{"bad target", CreatePortfolioInput{Name: "x", TargetAllocation: map[string]float64{"IT": 120}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreatePortfolio(ctx, tt.in)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestCreatePortfolioZeroCashAllowed(t *testing.T) {
	s := newTestStore(t, nil)
	id, err := s.CreatePortfolio(context.Background(), CreatePortfolioInput{Name: "empty", RiskProfile: "aggressive"})
	require.NoError(t, err)

	sum, err := s.GetSummary(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.Aggressive, sum.RiskProfile)
	assert.Zero(t, sum.TotalValue)
}

// ═══════════════════════════════════════════════════════════════════
// AddHolding
// ═══════════════════════════════════════════════════════════════════

func TestAddHoldingRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	id := createPortfolio(t, s, "100000")

	buy(t, s, id, "x", 10, "100")

	holdings, err := s.Holdings(ctx, id)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "X", holdings[0].Symbol)
	assert.Equal(t, int64(10), holdings[0].Quantity)
	assert.True(t, holdings[0].AvgCost.Equal(d("100")))

	var p PortfolioRecord
	require.NoError(t, s.db.Where("id = ?", id).Take(&p).Error)
	assert.True(t, p.CashBalance.Equal(d("99000")), "cash = %s", p.CashBalance)
	assert.True(t, p.TotalInvested.Equal(d("1000")))
	assert.True(t, p.CurrentValue.Equal(d("100000")))

	txs, err := s.Transactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.Buy, txs[0].Type)
	assert.True(t, txs[0].Amount().Equal(d("1000")))
}

func TestAddHoldingFeesDebitCashOnly(t *testing.T) {
	s := newTestStore(t, nil)
	id := createPortfolio(t, s, "10000")

	_, err := s.AddHolding(context.Background(), id, AddHoldingInput{
		Symbol: "TCS.NS", Quantity: 2, Price: d("3500"), Fees: d("20"),
	})
	require.NoError(t, err)

	var p PortfolioRecord
	require.NoError(t, s.db.Where("id = ?", id).Take(&p).Error)
	assert.True(t, p.CashBalance.Equal(d("2980")))
	assert.True(t, p.TotalInvested.Equal(d("7000")))
}

func TestAddHoldingInsufficientFunds(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	id := createPortfolio(t, s, "500")

	_, err := s.AddHolding(ctx, id, AddHoldingInput{Symbol: "X", Quantity: 10, Price: d("100")})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	sum, err := s.GetSummary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 500.0, sum.CashBalance)
	assert.Empty(t, sum.Holdings)

	txs, err := s.Transactions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestAddHoldingValidation(t *testing.T) {
	s := newTestStore(t, nil)
	id := createPortfolio(t, s, "1000")

	for name, in := range map[string]AddHoldingInput{
		"zero qty":     {Symbol: "X", Quantity: 0, Price: d("1")},
		"zero price":   {Symbol: "X", Quantity: 1, Price: d("0")},
		"no symbol":    {Symbol: " ", Quantity: 1, Price: d("1")},
		"neg fees":     {Symbol: "X", Quantity: 1, Price: d("1"), Fees: d("-1")},
		"neg quantity": {Symbol: "X", Quantity: -5, Price: d("1")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.AddHolding(context.Background(), id, in)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestAddHoldingUnknownPortfolio(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.AddHolding(context.Background(), "nope", AddHoldingInput{Symbol: "X", Quantity: 1, Price: d("1")})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAddHoldingTopUpWeightedAverage(t *testing.T) {
	s := newTestStore(t, nil)
	id := createPortfolio(t, s, "100000")

	first := buy(t, s, id, "INFY", 10, "100")
	second := buy(t, s, id, "INFY", 30, "200")
	assert.Equal(t, first, second)

	holdings, err := s.Holdings(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(40), holdings[0].Quantity)
	assert.True(t, holdings[0].AvgCost.Equal(d("175")), "avg = %s", holdings[0].AvgCost)
}

func TestAddHoldingResolvesProfile(t *testing.T) {
	static := marketdata.NewStatic().SetProfile(models.StockProfile{
		Symbol: "RELIANCE.NS", CompanyName: "Reliance Industries Ltd", Sector: "Energy", DividendYield: 0.35,
	})
	s := newTestStore(t, static, WithProfileResolver(static))
	id := createPortfolio(t, s, "100000")

	_, err := s.AddHolding(context.Background(), id, AddHoldingInput{Symbol: "RELIANCE.NS", Quantity: 1, Price: d("2800")})
	require.NoError(t, err)
	_, err = s.AddHolding(context.Background(), id, AddHoldingInput{Symbol: "UNKNOWN.NS", Quantity: 1, Price: d("10")})
	require.NoError(t, err)

	holdings, err := s.Holdings(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, "Energy", holdings[0].Sector)
	assert.Equal(t, "Reliance Industries Ltd", holdings[0].CompanyName)
	assert.Equal(t, DefaultSector, holdings[1].Sector)
	assert.Equal(t, "UNKNOWN", holdings[1].CompanyName)
}

func TestAddHoldingConcurrentSamePortfolio(t *testing.T) {
	s := newTestStore(t, nil)
	id := createPortfolio(t, s, "2000")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, blocked int
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddHolding(context.Background(), id, AddHoldingInput{Symbol: "X", Quantity: 1, Price: d("100")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, models.ErrInsufficientFunds):
				blocked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, ok)
	assert.Equal(t, 5, blocked)

	sum, err := s.GetSummary(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, sum.CashBalance)
	require.Len(t, sum.Holdings, 1)
	assert.Equal(t, int64(20), sum.Holdings[0].Quantity)
}

// ═══════════════════════════════════════════════════════════════════
// SellHolding / RecordDividend
// ═══════════════════════════════════════════════════════════════════

func TestSellHoldingPartialAndFull(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	id := createPortfolio(t, s, "10000")
	buy(t, s, id, "X", 10, "100")

	_, err := s.SellHolding(ctx, id, SellInput{Symbol: "X", Quantity: 4, Price: d("150"), Fees: d("10")})
	require.NoError(t, err)

	var p PortfolioRecord
	require.NoError(t, s.db.Where("id = ?", id).Take(&p).Error)
	assert.True(t, p.CashBalance.Equal(d("9590")), "cash = %s", p.CashBalance) // 9000 + 600 - 10
	assert.True(t, p.TotalInvested.Equal(d("600")))

	_, err = s.SellHolding(ctx, id, SellInput{Symbol: "X", Quantity: 6, Price: d("150")})
	require.NoError(t, err)

	holdings, err := s.Holdings(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, holdings)

	_, err = s.GetWeights(ctx, id)
	assert.ErrorIs(t, err, models.ErrEmptyPortfolio)

	txs, err := s.Transactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []models.TransactionType{models.Buy, models.Sell, models.Sell},
		[]models.TransactionType{txs[0].Type, txs[1].Type, txs[2].Type})
}

func TestSellHoldingErrors(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	id := createPortfolio(t, s, "10000")
	buy(t, s, id, "X", 10, "100")

	_, err := s.SellHolding(ctx, id, SellInput{Symbol: "X", Quantity: 11, Price: d("100")})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = s.SellHolding(ctx, id, SellInput{Symbol: "Y", Quantity: 1, Price: d("100")})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRecordDividend(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	id := createPortfolio(t, s, "10000")
	buy(t, s, id, "ITC", 100, "50")

	_, err := s.RecordDividend(ctx, id, DividendInput{Symbol: "ITC", Amount: d("625")})
	require.NoError(t, err)

	var p PortfolioRecord
	require.NoError(t, s.db.Where("id = ?", id).Take(&p).Error)
	assert.True(t, p.CashBalance.Equal(d("5625")))
	assert.True(t, p.TotalInvested.Equal(d("5000")))

	_, err = s.RecordDividend(ctx, id, DividendInput{Symbol: "ITC", Amount: d("0")})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestTransactionNotes(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	id := createPortfolio(t, s, "100000")

	buy(t, s, id, "ITC", 100, "50")
	buy(t, s, id, "ITC", 20, "55")
	_, err := s.SellHolding(ctx, id, SellInput{Symbol: "ITC", Quantity: 30, Price: d("60")})
	require.NoError(t, err)
	_, err = s.RecordDividend(ctx, id, DividendInput{Symbol: "ITC", Amount: d("625")})
	require.NoError(t, err)
	_, err = s.AddHolding(ctx, id, AddHoldingInput{Symbol: "TCS", Quantity: 2, Price: d("3500"), Note: "SIP tranche 1"})
	require.NoError(t, err)
	_, err = s.SellHolding(ctx, id, SellInput{Symbol: "TCS", Quantity: 1, Price: d("3600"), Note: "rebalance"})
	require.NoError(t, err)

	txs, err := s.Transactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, txs, 6)
	assert.Equal(t, "Initial purchase of 100 shares", txs[0].Note)
	assert.Equal(t, "Additional purchase of 20 shares", txs[1].Note)
	assert.Equal(t, "Sold 30 shares", txs[2].Note)
	assert.Equal(t, "Dividend of 625.00 from ITC", txs[3].Note)
	assert.Equal(t, "SIP tranche 1", txs[4].Note)
	assert.Equal(t, "rebalance", txs[5].Note)

	_, err = s.SellHolding(ctx, id, SellInput{Symbol: "TCS", Quantity: 1, Price: d("3600"), Note: strings.Repeat("x", 256)})
	assert.ErrorIs(t, err, models.ErrValidation)
}

// ═══════════════════════════════════════════════════════════════════
// Valuation
// ═══════════════════════════════════════════════════════════════════

func TestGetWeightsSumToOne(t *testing.T) {
	s := newTestStore(t, nil)
	id := createPortfolio(t, s, "1000000")
	buy(t, s, id, "A", 3, "101.37")
	buy(t, s, id, "B", 7, "333.33")
	buy(t, s, id, "C", 11, "77.7")

	w, err := s.GetWeights(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, w, 3)

	sum := 0.0
	for _, v := range w {
		assert.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 7*333.33/(3*101.37+7*333.33+11*77.7), w["B"], 1e-9)
}

func TestGetWeightsEmpty(t *testing.T) {
	s := newTestStore(t, nil)
	id := createPortfolio(t, s, "1000")
	_, err := s.GetWeights(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrEmptyPortfolio)

	_, err = s.GetWeights(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRefreshPricesSkipsFailures(t *testing.T) {
	static := marketdata.NewStatic().
		SetPrice("A", 120).
		Fail("B", errors.New("feed down"))
	s := newTestStore(t, static)
	ctx := context.Background()
	id := createPortfolio(t, s, "10000")
	buy(t, s, id, "A", 10, "100")
	buy(t, s, id, "B", 10, "100")

	applied, err := s.RefreshPrices(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A": 120}, applied)

	sum, err := s.GetSummary(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 2200, sum.HoldingsValue, 1e-9)
	assert.InDelta(t, 10200, sum.TotalValue, 1e-9)
	assert.InDelta(t, 2000, sum.TotalInvestment, 1e-9)
	assert.InDelta(t, 200, sum.TotalReturn, 1e-9)
	assert.InDelta(t, 10, sum.TotalReturnPct, 1e-9)

	var p PortfolioRecord
	require.NoError(t, s.db.Where("id = ?", id).Take(&p).Error)
	assert.True(t, p.TotalInvested.Equal(d("2000")), "price refresh must not touch TotalInvested")
	assert.True(t, p.CurrentValue.Equal(d("10200")))
}

func TestRefreshPricesUnknownPortfolio(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.RefreshPrices(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetSummarySectorAllocation(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	id := createPortfolio(t, s, "100000")
	_, err := s.AddHolding(ctx, id, AddHoldingInput{Symbol: "TCS", Quantity: 3, Price: d("100"), Sector: "IT"})
	require.NoError(t, err)
	_, err = s.AddHolding(ctx, id, AddHoldingInput{Symbol: "HDFCBANK", Quantity: 1, Price: d("100"), Sector: "Banking"})
	require.NoError(t, err)

	sum, err := s.GetSummary(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 75, sum.SectorAllocation["IT"], 1e-9)
	assert.InDelta(t, 25, sum.SectorAllocation["Banking"], 1e-9)
	require.Len(t, sum.Holdings, 2)
	assert.Equal(t, "TCS", sum.Holdings[0].Symbol)
	assert.InDelta(t, 75, sum.Holdings[0].Weight, 1e-9)

	total, err := s.TotalValue(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 100000, total, 1e-9)
}

// ═══════════════════════════════════════════════════════════════════
// Listing / Snapshots
// ═══════════════════════════════════════════════════════════════════

func TestListPortfolios(t *testing.T) {
	s := newTestStore(t, marketdata.NewStatic().SetPrice("X", 110))
	ctx := context.Background()
	a := createPortfolio(t, s, "1000")
	b := createPortfolio(t, s, "5000")
	buy(t, s, b, "X", 10, "100")
	_, err := s.RefreshPrices(ctx, b)
	require.NoError(t, err)

	list, err := s.ListPortfolios(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[string]float64{}
	for _, l := range list {
		byID[l.PortfolioID] = l.ReturnPct
	}
	assert.Zero(t, byID[a])
	assert.InDelta(t, 10, byID[b], 1e-9)
}

func TestSnapshots(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	id := createPortfolio(t, s, "10000")
	buy(t, s, id, "X", 10, "100")

	snap, err := s.TakeSnapshot(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 10000, snap.TotalValue, 1e-9)
	assert.InDelta(t, 9000, snap.CashBalance, 1e-9)
	assert.InDelta(t, 100, snap.SectorAllocation["IT"], 1e-9)

	snaps, err := s.Snapshots(ctx, id)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, snap.ID, snaps[0].ID)

	_, err = s.TakeSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
