// Package engine composes the position store, the risk engine, the
// optimizer and the stress tester behind one API used by the HTTP server
// and the CLI.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seenimoa/openseai-risk/internal/config"
	"github.com/seenimoa/openseai-risk/internal/logger"
	"github.com/seenimoa/openseai-risk/internal/marketdata"
	"github.com/seenimoa/openseai-risk/internal/optimizer"
	"github.com/seenimoa/openseai-risk/internal/risk"
	"github.com/seenimoa/openseai-risk/internal/store"
	"github.com/seenimoa/openseai-risk/internal/stress"
	"github.com/seenimoa/openseai-risk/pkg/models"
	"github.com/seenimoa/openseai-risk/pkg/utils"
)

// Event types published after successful mutations.
const (
	EventPortfolioCreated = "portfolio_created"
	EventHoldingAdded     = "holding_added"
	EventHoldingSold      = "holding_sold"
	EventDividendRecorded = "dividend_recorded"
	EventPricesRefreshed  = "prices_refreshed"
	EventSnapshotTaken    = "snapshot_taken"
)

// Event describes a change to a portfolio.
type Event struct {
	Type        string    `json:"type"`
	PortfolioID string    `json:"portfolio_id"`
	Data        any       `json:"data,omitempty"`
	At          time.Time `json:"at"`
}

// Publisher receives portfolio events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish calls f(e).
func (f PublisherFunc) Publish(e Event) { f(e) }

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

// Engine is the exposed API of the system.
type Engine struct {
	store     *store.Store
	risk      *risk.Engine
	optimizer *optimizer.Optimizer
	stress    *stress.Tester
	publisher Publisher
	log       *zap.Logger
	closer    func() error
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets where portfolio events go.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = logger.OrNop(l) }
}

// New wires the analytics services over an existing store.
func New(st *store.Store, history marketdata.HistoryProvider, cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		publisher: nopPublisher{},
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}

	fetch := FetchOptions(cfg.Provider)
	e.risk = risk.New(st, history, risk.Settings{
		RiskFreeRate:        cfg.Risk.RiskFreeRate,
		LookbackDays:        cfg.Risk.LookbackDays,
		MinBetaObservations: cfg.Risk.MinBetaObservations,
		Fetch:               fetch,
	}, risk.WithLogger(e.log.Named("risk")))

	e.optimizer = optimizer.New(st, history, optimizer.Settings{
		RiskFreeRate:       cfg.Risk.RiskFreeRate,
		LookbackDays:       cfg.Risk.LookbackDays,
		MaxWeight:          cfg.Optimizer.MaxWeight,
		RebalanceThreshold: cfg.Optimizer.RebalanceThreshold,
		Solver: optimizer.SolverSettings{
			MaxIterations: cfg.Optimizer.MaxIterations,
			Restarts:      cfg.Optimizer.Restarts,
		},
		Fetch: fetch,
	}, optimizer.WithLogger(e.log.Named("optimizer")))

	e.stress = stress.NewTester(st, e.risk, e.log.Named("stress"))
	return e
}

// Open builds the full stack from configuration: database, market-data
// provider, position store and analytics.
func Open(cfg *config.Config, log *zap.Logger, opts ...Option) (*Engine, error) {
	log = logger.OrNop(log)

	db, err := store.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	provider, err := NewProvider(cfg.Provider)
	if err != nil {
		_ = closeDB(db)()
		return nil, err
	}

	storeOpts := []store.Option{
		store.WithFetchOptions(FetchOptions(cfg.Provider)),
		store.WithLogger(log.Named("store")),
	}
	if cfg.Provider.Screener && cfg.Provider.Name == "yfinance" {
		storeOpts = append(storeOpts, store.WithProfileResolver(marketdata.NewScreener("")))
	}
	st := store.New(db, provider, storeOpts...)

	log.Info("engine ready",
		zap.String("provider", provider.Name()),
		zap.String("database", cfg.Database.Driver),
		zap.String("dsn", cfg.Database.RedactedDSN()))

	e := New(st, provider, cfg, append([]Option{WithLogger(log)}, opts...)...)
	e.closer = closeDB(db)
	return e, nil
}

func closeDB(db *gorm.DB) func() error {
	return func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}

// Close releases the database connection opened by Open.
func (e *Engine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

// NewProvider selects the market-data provider named in the configuration.
func NewProvider(cfg config.ProviderConfig) (marketdata.Provider, error) {
	switch cfg.Name {
	case "yfinance", "":
		opts := []marketdata.YFinanceOption{
			marketdata.WithCacheTTL(time.Duration(cfg.CacheTTL) * time.Second),
			marketdata.WithRateLimit(cfg.RequestsPerSec),
		}
		if cfg.Benchmark != "" {
			opts = append(opts, marketdata.WithBenchmark(cfg.Benchmark))
		}
		return marketdata.NewYFinance(opts...), nil
	case "static":
		return marketdata.NewStatic(), nil
	}
	return nil, fmt.Errorf("%w: unknown provider %q", models.ErrValidation, cfg.Name)
}

// FetchOptions derives the fan-out bounds from the provider configuration.
func FetchOptions(cfg config.ProviderConfig) marketdata.FetchOptions {
	return marketdata.FetchOptions{Concurrency: cfg.ConcurrentFetches, Timeout: cfg.Timeout}
}

func (e *Engine) publish(typ, portfolioID string, data any) {
	e.publisher.Publish(Event{Type: typ, PortfolioID: portfolioID, Data: data, At: utils.NowIST()})
}

// ════════════════════════════════════════════════════════════════════
// Portfolio bookkeeping
// ════════════════════════════════════════════════════════════════════

// CreatePortfolio creates a portfolio holding only cash.
func (e *Engine) CreatePortfolio(ctx context.Context, in store.CreatePortfolioInput) (string, error) {
	id, err := e.store.CreatePortfolio(ctx, in)
	if err != nil {
		return "", err
	}
	e.publish(EventPortfolioCreated, id, map[string]any{"name": in.Name})
	return id, nil
}

// AddHolding records a BUY.
func (e *Engine) AddHolding(ctx context.Context, portfolioID string, in store.AddHoldingInput) (string, error) {
	id, err := e.store.AddHolding(ctx, portfolioID, in)
	if err != nil {
		return "", err
	}
	e.publish(EventHoldingAdded, portfolioID, map[string]any{
		"holding_id": id,
		"symbol":     utils.NormalizeSymbol(in.Symbol),
		"quantity":   in.Quantity,
		"price":      in.Price,
	})
	return id, nil
}

// SellHolding records a SELL.
func (e *Engine) SellHolding(ctx context.Context, portfolioID string, in store.SellInput) (string, error) {
	txID, err := e.store.SellHolding(ctx, portfolioID, in)
	if err != nil {
		return "", err
	}
	e.publish(EventHoldingSold, portfolioID, map[string]any{
		"transaction_id": txID,
		"symbol":         utils.NormalizeSymbol(in.Symbol),
		"quantity":       in.Quantity,
		"price":          in.Price,
	})
	return txID, nil
}

// RecordDividend credits a dividend payout.
func (e *Engine) RecordDividend(ctx context.Context, portfolioID string, in store.DividendInput) (string, error) {
	txID, err := e.store.RecordDividend(ctx, portfolioID, in)
	if err != nil {
		return "", err
	}
	e.publish(EventDividendRecorded, portfolioID, map[string]any{
		"transaction_id": txID,
		"symbol":         utils.NormalizeSymbol(in.Symbol),
		"amount":         in.Amount,
	})
	return txID, nil
}

// RefreshPrices updates last prices from the price provider.
func (e *Engine) RefreshPrices(ctx context.Context, portfolioID string) (map[string]float64, error) {
	prices, err := e.store.RefreshPrices(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	e.publish(EventPricesRefreshed, portfolioID, prices)
	return prices, nil
}

// GetSummary returns the valuation view of a portfolio.
func (e *Engine) GetSummary(ctx context.Context, portfolioID string) (*models.PortfolioSummary, error) {
	return e.store.GetSummary(ctx, portfolioID)
}

// ListPortfolios returns every portfolio, oldest first.
func (e *Engine) ListPortfolios(ctx context.Context) ([]models.PortfolioListing, error) {
	return e.store.ListPortfolios(ctx)
}

// Transactions returns the ledger in execution order.
func (e *Engine) Transactions(ctx context.Context, portfolioID string) ([]models.Transaction, error) {
	return e.store.Transactions(ctx, portfolioID)
}

// TakeSnapshot persists the current valuation.
func (e *Engine) TakeSnapshot(ctx context.Context, portfolioID string) (*models.Snapshot, error) {
	snap, err := e.store.TakeSnapshot(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	e.publish(EventSnapshotTaken, portfolioID, snap)
	return snap, nil
}

// Snapshots returns the stored valuations, oldest first.
func (e *Engine) Snapshots(ctx context.Context, portfolioID string) ([]models.Snapshot, error) {
	return e.store.Snapshots(ctx, portfolioID)
}

// ════════════════════════════════════════════════════════════════════
// Analytics
// ════════════════════════════════════════════════════════════════════

// ComputeRisk returns fresh risk metrics.
func (e *Engine) ComputeRisk(ctx context.Context, portfolioID string) (*models.RiskMetrics, error) {
	return e.risk.Compute(ctx, portfolioID)
}

// Optimize proposes an allocation. targetReturn is an annual fraction or nil.
func (e *Engine) Optimize(ctx context.Context, portfolioID string, targetReturn *float64) (*models.OptimizationResult, error) {
	return e.optimizer.Optimize(ctx, portfolioID, targetReturn)
}

// StressTest returns the loss of every scenario.
func (e *Engine) StressTest(ctx context.Context, portfolioID string) ([]models.StressResult, error) {
	return e.stress.Results(ctx, portfolioID)
}

// CorrelationMatrix returns pairwise return correlations.
func (e *Engine) CorrelationMatrix(ctx context.Context, portfolioID string) (*models.CorrelationMatrix, error) {
	return e.risk.CorrelationMatrix(ctx, portfolioID)
}
