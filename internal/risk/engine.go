// Package risk computes portfolio risk measures from aligned daily returns:
// historical VaR, beta against the benchmark, Sharpe ratio, volatility,
// maximum drawdown, correlation and concentration, folded into a 1..100
// score with a qualitative tier.
package risk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/openseai-risk/internal/logger"
	"github.com/seenimoa/openseai-risk/internal/marketdata"
	"github.com/seenimoa/openseai-risk/internal/metrics"
	"github.com/seenimoa/openseai-risk/pkg/models"
	"github.com/seenimoa/openseai-risk/pkg/utils"
)

// Positions is the slice of the position store the analytics read.
type Positions interface {
	GetWeights(ctx context.Context, portfolioID string) (map[string]float64, error)
	TotalValue(ctx context.Context, portfolioID string) (float64, error)
}

// Settings tunes the computation.
type Settings struct {
	RiskFreeRate        float64 // annual
	LookbackDays        int
	MinBetaObservations int
	Fetch               marketdata.FetchOptions
}

// DefaultSettings matches the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		RiskFreeRate:        0.07,
		LookbackDays:        252,
		MinBetaObservations: 30,
		Fetch:               marketdata.FetchOptions{Concurrency: 5, Timeout: 10 * time.Second},
	}
}

// Engine computes RiskMetrics on demand. It holds no per-portfolio state.
type Engine struct {
	positions Positions
	history   marketdata.HistoryProvider
	settings  Settings
	log       *zap.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = logger.OrNop(l) }
}

// WithClock replaces time.Now (used by tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a risk engine.
func New(positions Positions, history marketdata.HistoryProvider, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		positions: positions,
		history:   history,
		settings:  settings,
		log:       zap.NewNop(),
		now:       utils.NowIST,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Compute returns the risk metrics of a portfolio over the configured
// lookback window. Missing symbol histories degrade the result instead of
// failing it.
func (e *Engine) Compute(ctx context.Context, portfolioID string) (*models.RiskMetrics, error) {
	defer metrics.Time("risk")()

	weights, err := e.positions.GetWeights(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	total, err := e.positions.TotalValue(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	var (
		win   *Window
		bench marketdata.SeriesResult
		g     errgroup.Group
	)
	g.Go(func() error {
		win = LoadWindow(ctx, e.history, weights, e.settings.LookbackDays, e.settings.Fetch, e.log)
		return nil
	})
	g.Go(func() error {
		bench = marketdata.FetchBenchmark(ctx, e.history, e.settings.LookbackDays, e.settings.Fetch)
		if bench.Err != nil {
			e.log.Warn("benchmark history unavailable", zap.Error(bench.Err))
		}
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &models.RiskMetrics{
		PortfolioID:       portfolioID,
		TotalValue:        total,
		Beta:              1.0,
		ConcentrationRisk: Herfindahl(weights),
		DroppedSymbols:    win.Dropped,
		Observations:      win.Observations(),
		ComputedAt:        e.now(),
	}

	p := win.Portfolio
	m.VaR95 = HistoricalVaR(p, 0.95, total)
	m.VaR99 = HistoricalVaR(p, 0.99, total)
	m.SharpeRatio = SharpeRatio(p, e.settings.RiskFreeRate)
	m.Volatility = AnnualVolatility(p)
	m.MaxDrawdown = MaxDrawdown(p)

	if win.Usable() {
		m.CorrelationRisk = MeanAbsCorrelation(win.Returns)
		if pr, br, ok := win.WithBenchmark(bench, weights, e.settings.LookbackDays); ok {
			m.Beta = Beta(pr, br, e.settings.MinBetaObservations)
		}
	} else {
		m.InsufficientData = true
		metrics.Degraded("risk")
		e.log.Warn("insufficient data for covariance measures",
			zap.String("portfolio_id", portfolioID),
			zap.Int("usable_series", len(win.Symbols)),
			zap.Strings("dropped", win.Dropped))
	}

	m.RiskScore = Score(m.Volatility, m.MaxDrawdown, m.CorrelationRisk, m.ConcentrationRisk)
	m.RiskLevel, m.Recommendation = Classify(m.RiskScore)
	return m, nil
}

// CorrelationMatrix returns the pairwise correlation of the portfolio's
// aligned daily returns.
func (e *Engine) CorrelationMatrix(ctx context.Context, portfolioID string) (*models.CorrelationMatrix, error) {
	weights, err := e.positions.GetWeights(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	win := LoadWindow(ctx, e.history, weights, e.settings.LookbackDays, e.settings.Fetch, e.log)
	if !win.Usable() {
		return nil, fmt.Errorf("%w: %d usable series for %s", models.ErrInsufficientData, len(win.Symbols), portfolioID)
	}
	return &models.CorrelationMatrix{
		PortfolioID:    portfolioID,
		Symbols:        win.Symbols,
		Values:         Correlation(win.Returns),
		Observations:   win.Observations(),
		DroppedSymbols: win.Dropped,
	}, nil
}

// PortfolioReturns returns the weighted daily return series of a portfolio.
// It fails with ErrDataUnavailable when no symbol has usable history.
func (e *Engine) PortfolioReturns(ctx context.Context, portfolioID string) ([]float64, error) {
	weights, err := e.positions.GetWeights(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	win := LoadWindow(ctx, e.history, weights, e.settings.LookbackDays, e.settings.Fetch, e.log)
	if win.Observations() == 0 {
		return nil, fmt.Errorf("%w: no usable history for %s", models.ErrDataUnavailable, portfolioID)
	}
	return win.Portfolio, nil
}
