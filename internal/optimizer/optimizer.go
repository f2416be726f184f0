// Package optimizer proposes a long-only mean-variance allocation for a
// portfolio and the trades that would move it there.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/seenimoa/openseai-risk/internal/logger"
	"github.com/seenimoa/openseai-risk/internal/marketdata"
	"github.com/seenimoa/openseai-risk/internal/metrics"
	"github.com/seenimoa/openseai-risk/internal/risk"
	"github.com/seenimoa/openseai-risk/pkg/models"
)

// Settings tunes the optimizer.
type Settings struct {
	RiskFreeRate       float64 // annual
	LookbackDays       int
	MaxWeight          float64
	RebalanceThreshold float64 // weight fraction, 0.05 = 5 pp
	Solver             SolverSettings
	Fetch              marketdata.FetchOptions
}

// DefaultSettings matches the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		RiskFreeRate:       0.07,
		LookbackDays:       252,
		MaxWeight:          0.4,
		RebalanceThreshold: 0.05,
		Solver:             SolverSettings{MaxIterations: 2000, Restarts: 2},
		Fetch:              marketdata.FetchOptions{Concurrency: 5, Timeout: 10 * time.Second},
	}
}

// Optimizer computes allocation proposals on demand.
type Optimizer struct {
	positions risk.Positions
	history   marketdata.HistoryProvider
	settings  Settings
	log       *zap.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Optimizer) { o.log = logger.OrNop(l) }
}

// New creates an optimizer.
func New(positions risk.Positions, history marketdata.HistoryProvider, settings Settings, opts ...Option) *Optimizer {
	o := &Optimizer{
		positions: positions,
		history:   history,
		settings:  settings,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize proposes weights for the portfolio's current holdings. With a
// nil targetReturn it maximises the Sharpe ratio; otherwise it minimises
// volatility at that annual return. Solver failure is not an error: the
// result carries equal weights with Converged false.
func (o *Optimizer) Optimize(ctx context.Context, portfolioID string, targetReturn *float64) (*models.OptimizationResult, error) {
	defer metrics.Time("optimize")()

	weights, err := o.positions.GetWeights(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	total, err := o.positions.TotalValue(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	win := risk.LoadWindow(ctx, o.history, weights, o.settings.LookbackDays, o.settings.Fetch, o.log)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var res *models.OptimizationResult
	switch {
	case len(weights) == 1 && win.Observations() < 2:
		res = single(weights, targetReturn)
	case len(weights) == 1 || (len(win.Symbols) >= 2 && win.Observations() >= 2):
		held := make([]float64, len(win.Symbols))
		for i, s := range win.Symbols {
			held[i] = weights[s]
		}
		fixed := make(map[string]float64, len(win.Dropped))
		for _, s := range win.Dropped {
			fixed[s] = weights[s]
		}
		res = o.Plan(Inputs{
			Symbols:    win.Symbols,
			Returns:    win.Returns,
			Current:    win.Weights,
			Held:       held,
			Fixed:      fixed,
			TotalValue: total,
			Target:     targetReturn,
		})
	default:
		return nil, fmt.Errorf("%w: %d usable series with %d observations for %s",
			models.ErrInsufficientData, len(win.Symbols), win.Observations(), portfolioID)
	}
	res.PortfolioID = portfolioID
	res.DroppedSymbols = win.Dropped
	return res, nil
}

// single is the trivial allocation of a one-instrument portfolio.
func single(weights map[string]float64, target *float64) *models.OptimizationResult {
	w := make(map[string]float64, 1)
	for s := range weights {
		w[s] = 1.0
	}
	return &models.OptimizationResult{
		Objective:      objectiveOf(target),
		TargetReturn:   target,
		Weights:        w,
		CurrentWeights: w,
		Actions:        []models.RebalanceAction{},
		Improvement:    Improvement(0, 0),
		Converged:      true,
	}
}

// Inputs is the aligned data one optimisation runs on.
type Inputs struct {
	Symbols    []string
	Returns    [][]float64 // daily simple returns, Returns[i] for Symbols[i]
	Current    []float64   // current weights, Σ = 1
	// Held are the portfolio weights of Symbols when some holdings were
	// left out of the solve; Σ Held is their combined share. Nil means
	// Current.
	Held []float64
	// Fixed are the weights of holdings left out of the solve. They are
	// reported unchanged and never traded.
	Fixed      map[string]float64
	TotalValue float64
	Target     *float64 // annual return
}

// Plan runs the solver over aligned returns and derives the rebalancing
// actions. It performs no I/O. Returns must hold at least two observations.
func (o *Optimizer) Plan(in Inputs) *models.OptimizationResult {
	mu, cov := Moments(in.Returns)

	sol := Solve(Problem{
		Mu:           mu,
		Cov:          cov,
		RiskFreeRate: o.settings.RiskFreeRate,
		MaxWeight:    o.settings.MaxWeight,
		Target:       in.Target,
	}, o.settings.Solver)

	held := in.Held
	if held == nil {
		held = in.Current
	}
	// The solved weights split the share of the portfolio the solved
	// symbols hold today.
	target := make([]float64, len(sol.Weights))
	floats.ScaleTo(target, floats.Sum(held), sol.Weights)

	res := &models.OptimizationResult{
		Objective:      objectiveOf(in.Target),
		TargetReturn:   in.Target,
		Weights:        withFixed(toMap(in.Symbols, target), in.Fixed),
		CurrentWeights: withFixed(toMap(in.Symbols, held), in.Fixed),
		Converged:      sol.Converged,
		Degraded:       sol.Reason,
	}
	if !sol.Converged {
		metrics.Degraded("optimize")
		o.log.Warn("falling back to equal weights",
			zap.Error(models.ErrOptimizationNonConvergence),
			zap.String("reason", sol.Reason),
			zap.Strings("symbols", in.Symbols))
	}

	var curSharpe float64
	res.ExpectedReturn, res.ExpectedVolatility, res.SharpeRatio = Performance(sol.Weights, mu, cov, o.settings.RiskFreeRate)
	_, _, curSharpe = Performance(in.Current, mu, cov, o.settings.RiskFreeRate)
	res.CurrentSharpe = curSharpe
	res.Actions = Rebalance(in.Symbols, held, target, in.TotalValue, o.settings.RebalanceThreshold)
	res.Improvement = Improvement(curSharpe, res.SharpeRatio)
	return res
}

// Moments returns annualised mean returns and the annualised sample
// covariance matrix of the series.
func Moments(returns [][]float64) ([]float64, *mat.SymDense) {
	n, t := len(returns), len(returns[0])
	mu := make([]float64, n)
	x := mat.NewDense(t, n, nil)
	for i, r := range returns {
		mu[i] = stat.Mean(r, nil) * risk.TradingDays
		x.SetCol(i, r)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)
	cov.ScaleSym(risk.TradingDays, &cov)
	return mu, &cov
}

// Rebalance lists the trades moving current to target weights, skipping
// changes of threshold or less, largest amount first.
func Rebalance(symbols []string, current, target []float64, totalValue, threshold float64) []models.RebalanceAction {
	actions := []models.RebalanceAction{}
	for i, s := range symbols {
		d := target[i] - current[i]
		if math.Abs(d) <= threshold {
			continue
		}
		action := models.Buy
		if d < 0 {
			action = models.Sell
		}
		actions = append(actions, models.RebalanceAction{
			Symbol:        s,
			Action:        action,
			Amount:        math.Abs(d) * totalValue,
			CurrentWeight: current[i] * 100,
			TargetWeight:  target[i] * 100,
			WeightChange:  d * 100,
		})
	}
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Amount > actions[j].Amount
	})
	return actions
}

// Improvement formats the Sharpe ratio change, e.g.
// "Sharpe ratio: 0.812 → 1.204 (+48.3%)".
func Improvement(current, optimized float64) string {
	s := fmt.Sprintf("Sharpe ratio: %.3f → %.3f", current, optimized)
	if current == 0 {
		return s
	}
	return s + fmt.Sprintf(" (%+.1f%%)", (optimized-current)/math.Abs(current)*100)
}

func objectiveOf(target *float64) models.Objective {
	if target != nil {
		return models.MinVolatility
	}
	return models.MaxSharpe
}

func toMap(symbols []string, w []float64) map[string]float64 {
	m := make(map[string]float64, len(symbols))
	for i, s := range symbols {
		m[s] = w[i]
	}
	return m
}

func withFixed(m, fixed map[string]float64) map[string]float64 {
	for s, w := range fixed {
		m[s] = w
	}
	return m
}
