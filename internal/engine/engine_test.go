package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/openseai-risk/internal/config"
	"github.com/seenimoa/openseai-risk/internal/marketdata"
	"github.com/seenimoa/openseai-risk/internal/store"
	"github.com/seenimoa/openseai-risk/pkg/models"
)

var day0 = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func path(n int, drift, amp, phase float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = drift + amp*math.Sin(float64(i)*0.8+phase)
	}
	return out
}

func testEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Provider.Name = "static"
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}

	hp := marketdata.NewStatic().
		SetHistory("INFY.NS", marketdata.FromReturns(day0, 1500, path(80, 0.0010, 0.012, 0))).
		SetHistory("HDFCBANK.NS", marketdata.FromReturns(day0, 1600, path(80, 0.0004, 0.010, 2.1))).
		SetHistory("ITC.NS", marketdata.FromReturns(day0, 400, path(80, 0.0002, 0.007, 4.2))).
		SetBenchmark(marketdata.FromReturns(day0, 22000, path(80, 0.0005, 0.008, 1.0)))

	db, err := store.Open(cfg.Database, nil)
	require.NoError(t, err)
	st := store.New(db, hp, store.WithFetchOptions(FetchOptions(cfg.Provider)))

	rec := &recorder{}
	return New(st, hp, cfg, WithPublisher(rec)), rec
}

func seed(t *testing.T, e *Engine) string {
	t.Helper()
	ctx := context.Background()
	id, err := e.CreatePortfolio(ctx, store.CreatePortfolioInput{
		Name:        "Nifty Core",
		InitialCash: decimal.NewFromInt(1_000_000),
	})
	require.NoError(t, err)

	for _, h := range []struct {
		symbol string
		qty    int64
		price  int64
		sector string
	}{
		{"INFY.NS", 100, 1500, "IT"},
		{"HDFCBANK.NS", 50, 1600, "Banking"},
		{"ITC.NS", 200, 400, "FMCG"},
	} {
		_, err := e.AddHolding(ctx, id, store.AddHoldingInput{
			Symbol:   h.symbol,
			Quantity: h.qty,
			Price:    decimal.NewFromInt(h.price),
			Sector:   h.sector,
		})
		require.NoError(t, err)
	}
	return id
}

func TestEngineEndToEnd(t *testing.T) {
	e, rec := testEngine(t)
	ctx := context.Background()
	id := seed(t, e)

	m, err := e.ComputeRisk(ctx, id)
	require.NoError(t, err)
	assert.False(t, m.InsufficientData)
	assert.Equal(t, 80, m.Observations)
	assert.InDelta(t, 1_000_000, m.TotalValue, 1e-6)
	assert.GreaterOrEqual(t, m.VaR99, m.VaR95)
	assert.GreaterOrEqual(t, m.RiskScore, 1)
	assert.LessOrEqual(t, m.RiskScore, 100)

	opt, err := e.Optimize(ctx, id, nil)
	require.NoError(t, err)
	sum := 0.0
	for _, w := range opt.Weights {
		sum += w
		assert.LessOrEqual(t, w, 0.4+1e-9)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	results, err := e.StressTest(ctx, id)
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, "Market Crash (-20%)", results[0].Scenario)
	assert.InDelta(t, 200_000, results[0].Loss, 1e-6)

	cm, err := e.CorrelationMatrix(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"HDFCBANK.NS", "INFY.NS", "ITC.NS"}, cm.Symbols)

	_, err = e.TakeSnapshot(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventPortfolioCreated,
		EventHoldingAdded, EventHoldingAdded, EventHoldingAdded,
		EventSnapshotTaken,
	}, rec.types())
}

func TestEngineRefreshSellAndDividend(t *testing.T) {
	e, rec := testEngine(t)
	ctx := context.Background()
	id := seed(t, e)

	prices, err := e.RefreshPrices(ctx, id)
	require.NoError(t, err)
	assert.Len(t, prices, 3)

	_, err = e.SellHolding(ctx, id, store.SellInput{Symbol: "ITC.NS", Quantity: 200, Price: decimal.NewFromInt(410)})
	require.NoError(t, err)
	_, err = e.RecordDividend(ctx, id, store.DividendInput{Symbol: "INFY.NS", Amount: decimal.NewFromInt(2500), Note: "final dividend FY25"})
	require.NoError(t, err)

	sum, err := e.GetSummary(ctx, id)
	require.NoError(t, err)
	assert.Len(t, sum.Holdings, 2)

	txs, err := e.Transactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, txs, 5)
	assert.Equal(t, "Sold 200 shares", txs[3].Note)
	assert.Equal(t, "final dividend FY25", txs[4].Note)

	types := rec.types()
	assert.Equal(t, []string{EventPricesRefreshed, EventHoldingSold, EventDividendRecorded}, types[4:])
}

func TestEngineErrorsAreNotPublished(t *testing.T) {
	e, rec := testEngine(t)
	_, err := e.AddHolding(context.Background(), "missing", store.AddHoldingInput{
		Symbol: "INFY.NS", Quantity: 1, Price: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, rec.types())
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.ProviderConfig{Name: "static"})
	require.NoError(t, err)
	assert.Equal(t, "static", p.Name())

	p, err = NewProvider(config.ProviderConfig{Name: "yfinance", CacheTTL: 60, RequestsPerSec: 2, Benchmark: "^BSESN"})
	require.NoError(t, err)
	assert.Equal(t, "Yahoo Finance", p.Name())

	_, err = NewProvider(config.ProviderConfig{Name: "bloomberg"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestFetchOptions(t *testing.T) {
	o := FetchOptions(config.ProviderConfig{ConcurrentFetches: 3, Timeout: 2 * time.Second})
	assert.Equal(t, 3, o.Concurrency)
	assert.Equal(t, 2*time.Second, o.Timeout)
}
