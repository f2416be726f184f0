package optimizer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/seenimoa/openseai-risk/internal/marketdata"
	"github.com/seenimoa/openseai-risk/pkg/models"
)

var day0 = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

type fakePositions struct {
	weights map[string]float64
	total   float64
}

func (f *fakePositions) GetWeights(context.Context, string) (map[string]float64, error) {
	if len(f.weights) == 0 {
		return nil, models.ErrEmptyPortfolio
	}
	return f.weights, nil
}

func (f *fakePositions) TotalValue(context.Context, string) (float64, error) {
	return f.total, nil
}

// series builds a deterministic daily return path with the given drift
// and amplitude; phase decorrelates paths.
func series(n int, drift, amp, phase float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = drift + amp*math.Sin(float64(i)*0.9+phase) + 0.3*amp*math.Cos(float64(i)*2.3+2*phase)
	}
	return out
}

func diagCov(v ...float64) *mat.SymDense {
	c := mat.NewSymDense(len(v), nil)
	for i, x := range v {
		c.SetSym(i, i, x)
	}
	return c
}

func assertSimplex(t *testing.T, w []float64, maxW float64) {
	t.Helper()
	assert.InDelta(t, 1.0, floats.Sum(w), 1e-9)
	for _, v := range w {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, maxW+1e-9)
	}
}

// ═══════════════════════════════════════════════════════════════════
// Projection
// ═══════════════════════════════════════════════════════════════════

func TestProject(t *testing.T) {
	w := Project([]float64{0.9, 0.05, 0.05}, 0.4)
	assert.InDeltaSlice(t, []float64{0.4, 0.3, 0.3}, w, 1e-9)

	eq := Project([]float64{0.25, 0.25, 0.25, 0.25}, 0.4)
	assert.InDeltaSlice(t, []float64{0.25, 0.25, 0.25, 0.25}, eq, 1e-9)

	w = Project([]float64{-3, 7, math.NaN(), 0.1}, 0.4)
	assertSimplex(t, w, 0.4)
	assert.Zero(t, w[0])
}

func TestEqualWeights(t *testing.T) {
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, EqualWeights(4))
}

// ═══════════════════════════════════════════════════════════════════
// Solver
// ═══════════════════════════════════════════════════════════════════

func TestSolveSingleInstrument(t *testing.T) {
	sol := Solve(Problem{Mu: []float64{0.1}, Cov: diagCov(0.04), MaxWeight: 0.4}, SolverSettings{MaxIterations: 100})
	assert.True(t, sol.Converged)
	assert.Equal(t, []float64{1}, sol.Weights)
}

func TestSolveMaxSharpeRespectsCap(t *testing.T) {
	p := Problem{
		Mu:           []float64{0.30, 0.10, 0.05},
		Cov:          diagCov(0.04, 0.04, 0.04),
		RiskFreeRate: 0.07,
		MaxWeight:    0.4,
	}
	sol := Solve(p, SolverSettings{MaxIterations: 2000, Restarts: 2})
	require.True(t, sol.Converged, sol.Reason)
	assertSimplex(t, sol.Weights, 0.4)
	assert.InDelta(t, 0.4, sol.Weights[0], 5e-3)
	assert.GreaterOrEqual(t, sol.Weights[1], sol.Weights[2])

	_, _, optSharpe := Performance(sol.Weights, p.Mu, p.Cov, p.RiskFreeRate)
	_, _, eqSharpe := Performance(EqualWeights(3), p.Mu, p.Cov, p.RiskFreeRate)
	assert.Greater(t, optSharpe, eqSharpe)
}

func TestSolveRaisesInfeasibleCap(t *testing.T) {
	p := Problem{Mu: []float64{0.2, 0.1}, Cov: diagCov(0.04, 0.04), MaxWeight: 0.4}
	sol := Solve(p, SolverSettings{MaxIterations: 2000})
	require.True(t, sol.Converged, sol.Reason)
	assertSimplex(t, sol.Weights, 0.5)
}

func TestSolveTargetReturn(t *testing.T) {
	target := 0.15
	p := Problem{
		Mu:        []float64{0.20, 0.10},
		Cov:       diagCov(0.04, 0.01),
		MaxWeight: 1,
		Target:    &target,
	}
	sol := Solve(p, SolverSettings{MaxIterations: 2000, Restarts: 2})
	require.True(t, sol.Converged, sol.Reason)
	assert.InDelta(t, 0.5, sol.Weights[0], 0.01)

	ret, _, _ := Performance(sol.Weights, p.Mu, p.Cov, 0)
	assert.InDelta(t, target, ret, targetTolerance)
}

func TestSolveKeepsFeasiblePointAtIterationLimit(t *testing.T) {
	// Equal weights already earn the target; one iteration cannot do worse.
	target := 0.15
	p := Problem{Mu: []float64{0.20, 0.10}, Cov: diagCov(0.04, 0.01), MaxWeight: 1, Target: &target}
	sol := Solve(p, SolverSettings{MaxIterations: 1})
	require.True(t, sol.Converged, sol.Reason)
	assert.Empty(t, sol.Reason)
	assertSimplex(t, sol.Weights, 1)

	ret, _, _ := Performance(sol.Weights, p.Mu, p.Cov, 0)
	assert.InDelta(t, target, ret, targetTolerance)
}

func TestSolveMaxSharpeAtIterationLimit(t *testing.T) {
	p := Problem{Mu: []float64{0.20, 0.10, 0.15}, Cov: diagCov(0.04, 0.01, 0.02), RiskFreeRate: 0.07, MaxWeight: 0.6}
	sol := Solve(p, SolverSettings{MaxIterations: 3})
	require.True(t, sol.Converged, sol.Reason)
	assertSimplex(t, sol.Weights, 0.6)
}

func TestSolveUnreachableTargetFallsBack(t *testing.T) {
	target := 0.9
	p := Problem{Mu: []float64{0.20, 0.10}, Cov: diagCov(0.04, 0.01), MaxWeight: 1, Target: &target}
	sol := Solve(p, SolverSettings{MaxIterations: 2000})
	assert.False(t, sol.Converged)
	assert.NotEmpty(t, sol.Reason)
	assert.Equal(t, []float64{0.5, 0.5}, sol.Weights)
}

func TestPerformance(t *testing.T) {
	ret, vol, sharpe := Performance([]float64{0.5, 0.5}, []float64{0.2, 0.1}, diagCov(0.04, 0.04), 0.07)
	assert.InDelta(t, 0.15, ret, 1e-12)
	assert.InDelta(t, math.Sqrt(0.02), vol, 1e-12)
	assert.InDelta(t, 0.08/math.Sqrt(0.02), sharpe, 1e-12)

	_, _, sharpe = Performance([]float64{1}, []float64{0.1}, diagCov(0), 0.07)
	assert.Zero(t, sharpe)
}

// ═══════════════════════════════════════════════════════════════════
// Rebalancing
// ═══════════════════════════════════════════════════════════════════

func TestRebalance(t *testing.T) {
	symbols := []string{"A", "B", "C", "D"}
	current := []float64{0.50, 0.30, 0.10, 0.10}
	target := []float64{0.40, 0.28, 0.30, 0.02}

	actions := Rebalance(symbols, current, target, 1_000_000, 0.05)
	require.Len(t, actions, 3)

	assert.Equal(t, "C", actions[0].Symbol)
	assert.Equal(t, models.Buy, actions[0].Action)
	assert.InDelta(t, 200_000, actions[0].Amount, 1e-6)
	assert.InDelta(t, 20, actions[0].WeightChange, 1e-9)

	assert.Equal(t, "A", actions[1].Symbol)
	assert.Equal(t, models.Sell, actions[1].Action)
	assert.InDelta(t, 100_000, actions[1].Amount, 1e-6)
	assert.InDelta(t, 50, actions[1].CurrentWeight, 1e-9)
	assert.InDelta(t, 40, actions[1].TargetWeight, 1e-9)

	assert.Equal(t, "D", actions[2].Symbol)
	assert.Equal(t, models.Sell, actions[2].Action)
}

func TestRebalanceNoChange(t *testing.T) {
	w := []float64{0.5, 0.5}
	actions := Rebalance([]string{"A", "B"}, w, w, 100, 0.05)
	assert.NotNil(t, actions)
	assert.Empty(t, actions)
}

func TestImprovement(t *testing.T) {
	assert.Equal(t, "Sharpe ratio: 0.812 → 1.204 (+48.3%)", Improvement(0.812, 1.204))
	assert.Equal(t, "Sharpe ratio: 1.000 → 0.500 (-50.0%)", Improvement(1, 0.5))
	assert.Equal(t, "Sharpe ratio: 0.000 → 0.000", Improvement(0, 0))
}

// ═══════════════════════════════════════════════════════════════════
// Plan / Optimize
// ═══════════════════════════════════════════════════════════════════

func threeAssets() [][]float64 {
	return [][]float64{
		series(120, 0.0012, 0.010, 0.0),
		series(120, 0.0006, 0.012, 1.7),
		series(120, 0.0003, 0.008, 3.1),
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	o := New(nil, nil, DefaultSettings())
	symbols := []string{"A.NS", "B.NS", "C.NS"}
	returns := threeAssets()

	first := o.Plan(Inputs{Symbols: symbols, Returns: returns, Current: EqualWeights(3), TotalValue: 1_000_000})
	require.True(t, first.Converged, first.Degraded)

	optimal := []float64{first.Weights["A.NS"], first.Weights["B.NS"], first.Weights["C.NS"]}
	assertSimplex(t, optimal, 0.4)

	second := o.Plan(Inputs{Symbols: symbols, Returns: returns, Current: optimal, TotalValue: 1_000_000})
	assert.Empty(t, second.Actions)
	assert.InDelta(t, second.SharpeRatio, second.CurrentSharpe, 1e-9)
}

func TestPlanTargetUnreachableIsDegradedNotError(t *testing.T) {
	o := New(nil, nil, DefaultSettings())
	target := 50.0
	res := o.Plan(Inputs{
		Symbols:    []string{"A.NS", "B.NS", "C.NS"},
		Returns:    threeAssets(),
		Current:    []float64{0.6, 0.3, 0.1},
		TotalValue: 100_000,
		Target:     &target,
	})
	assert.False(t, res.Converged)
	assert.NotEmpty(t, res.Degraded)
	assert.Equal(t, models.MinVolatility, res.Objective)
	for _, w := range res.Weights {
		assert.InDelta(t, 1.0/3, w, 1e-12)
	}
	require.NotEmpty(t, res.Actions)
	assert.Equal(t, "A.NS", res.Actions[0].Symbol)
}

func TestOptimizeSingleHolding(t *testing.T) {
	hp := marketdata.NewStatic().SetHistory("TCS.NS", marketdata.FromReturns(day0, 3500, series(60, 0.001, 0.01, 0)))
	pos := &fakePositions{weights: map[string]float64{"TCS.NS": 1}, total: 350_000}

	res, err := New(pos, hp, DefaultSettings()).Optimize(context.Background(), "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"TCS.NS": 1.0}, res.Weights)
	assert.Empty(t, res.Actions)
	assert.True(t, res.Converged)
	assert.Equal(t, "p1", res.PortfolioID)
}

func TestOptimizeSingleHoldingWithoutHistory(t *testing.T) {
	pos := &fakePositions{weights: map[string]float64{"TCS.NS": 1}, total: 350_000}

	res, err := New(pos, marketdata.NewStatic(), DefaultSettings()).Optimize(context.Background(), "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"TCS.NS": 1.0}, res.Weights)
	assert.Empty(t, res.Actions)
	assert.Equal(t, []string{"TCS.NS"}, res.DroppedSymbols)
}

func TestOptimizeInsufficientData(t *testing.T) {
	hp := marketdata.NewStatic().
		SetHistory("A.NS", marketdata.FromReturns(day0, 100, series(60, 0.001, 0.01, 0))).
		Fail("B.NS", errors.New("feed down"))
	pos := &fakePositions{weights: map[string]float64{"A.NS": 0.5, "B.NS": 0.5}, total: 100_000}

	_, err := New(pos, hp, DefaultSettings()).Optimize(context.Background(), "p1", nil)
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestOptimizeThreeHoldings(t *testing.T) {
	r := threeAssets()
	hp := marketdata.NewStatic().
		SetHistory("A.NS", marketdata.FromReturns(day0, 100, r[0])).
		SetHistory("B.NS", marketdata.FromReturns(day0, 200, r[1])).
		SetHistory("C.NS", marketdata.FromReturns(day0, 300, r[2]))
	pos := &fakePositions{weights: map[string]float64{"A.NS": 0.2, "B.NS": 0.5, "C.NS": 0.3}, total: 1_000_000}

	res, err := New(pos, hp, DefaultSettings()).Optimize(context.Background(), "p1", nil)
	require.NoError(t, err)
	require.True(t, res.Converged, res.Degraded)
	assert.Equal(t, models.MaxSharpe, res.Objective)

	w := []float64{res.Weights["A.NS"], res.Weights["B.NS"], res.Weights["C.NS"]}
	assertSimplex(t, w, 0.4)
	assert.GreaterOrEqual(t, res.SharpeRatio, res.CurrentSharpe-1e-9)
	for i := 1; i < len(res.Actions); i++ {
		assert.GreaterOrEqual(t, res.Actions[i-1].Amount, res.Actions[i].Amount)
	}
	assert.Contains(t, res.Improvement, "Sharpe ratio: ")
}

func TestOptimizeKeepsDroppedHoldings(t *testing.T) {
	r := threeAssets()
	hp := marketdata.NewStatic().
		SetHistory("A.NS", marketdata.FromReturns(day0, 100, r[0])).
		SetHistory("B.NS", marketdata.FromReturns(day0, 200, r[1])).
		Fail("C.NS", errors.New("feed down"))
	held := map[string]float64{"A.NS": 0.50, "B.NS": 0.25, "C.NS": 0.25}
	pos := &fakePositions{weights: held, total: 1_000_000}

	settings := DefaultSettings()
	settings.MaxWeight = 1
	res, err := New(pos, hp, settings).Optimize(context.Background(), "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"C.NS"}, res.DroppedSymbols)

	assert.InDeltaMapValues(t, held, res.CurrentWeights, 1e-12)
	assert.InDelta(t, 0.25, res.Weights["C.NS"], 1e-12)
	assert.InDelta(t, 0.75, res.Weights["A.NS"]+res.Weights["B.NS"], 1e-9)

	var sum float64
	for _, w := range res.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	for _, a := range res.Actions {
		assert.NotEqual(t, "C.NS", a.Symbol)
		assert.InDelta(t, held[a.Symbol]*100, a.CurrentWeight, 1e-9, a.Symbol)
		assert.InDelta(t, res.Weights[a.Symbol]*100, a.TargetWeight, 1e-9, a.Symbol)
		assert.InDelta(t, math.Abs(res.Weights[a.Symbol]-held[a.Symbol])*1_000_000, a.Amount, 1e-3, a.Symbol)
	}
}

func TestOptimizeEmptyPortfolio(t *testing.T) {
	_, err := New(&fakePositions{}, marketdata.NewStatic(), DefaultSettings()).Optimize(context.Background(), "p1", nil)
	assert.ErrorIs(t, err, models.ErrEmptyPortfolio)
}
