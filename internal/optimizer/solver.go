package optimizer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	targetPenalty   = 1e4
	targetTolerance = 1e-3
	minVolatility   = 1e-12
)

// Problem is a long-only mean-variance allocation over n instruments.
type Problem struct {
	Mu           []float64     // annualised expected returns
	Cov          *mat.SymDense // annualised covariance
	RiskFreeRate float64
	MaxWeight    float64
	// Target, when set, switches the objective from maximum Sharpe ratio to
	// minimum volatility at wᵀμ = *Target.
	Target *float64
}

// SolverSettings bounds the Nelder-Mead search.
type SolverSettings struct {
	MaxIterations int
	Restarts      int
}

// Solution is the solver outcome. When Converged is false Weights holds
// the equal-weight fallback and Reason says why.
type Solution struct {
	Weights   []float64
	Converged bool
	Reason    string
}

// Performance returns the annualised return, volatility and Sharpe ratio
// of weights w.
func Performance(w, mu []float64, cov *mat.SymDense, riskFree float64) (ret, vol, sharpe float64) {
	ret = floats.Dot(w, mu)
	v := mat.NewVecDense(len(w), w)
	vol = math.Sqrt(math.Max(mat.Inner(v, cov, v), 0))
	if vol > minVolatility {
		sharpe = (ret - riskFree) / vol
	}
	return ret, vol, sharpe
}

// Solve searches the capped simplex {Σw = 1, 0 ≤ wᵢ ≤ cap} starting from
// equal weights. The cap is raised to 1/n when it would leave no feasible
// allocation.
func Solve(p Problem, s SolverSettings) Solution {
	n := len(p.Mu)
	equal := EqualWeights(n)
	if n == 1 {
		return Solution{Weights: equal, Converged: true}
	}

	capW := math.Max(p.MaxWeight, 1/float64(n))
	if p.MaxWeight <= 0 {
		capW = 1
	}

	objective := func(x []float64) float64 {
		w := Project(x, capW)
		ret, vol, _ := Performance(w, p.Mu, p.Cov, p.RiskFreeRate)
		if p.Target != nil {
			d := ret - *p.Target
			return vol + targetPenalty*d*d
		}
		return -(ret - p.RiskFreeRate) / math.Max(vol, minVolatility)
	}

	settings := &optimize.Settings{
		MajorIterations: s.MaxIterations,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-10, Iterations: 100},
	}

	x := equal
	best := math.Inf(1)
	for attempt := 0; attempt <= s.Restarts; attempt++ {
		res, err := optimize.Minimize(optimize.Problem{Func: objective}, x, settings, &optimize.NelderMead{})
		if err != nil {
			return fallback(equal, fmt.Sprintf("solver error: %v", err))
		}
		limited := limitReached(res.Status)
		if !accepted(res.Status) && !limited {
			return fallback(equal, fmt.Sprintf("solver stopped with status %s", res.Status))
		}
		if res.F >= best-1e-12 {
			break
		}
		best = res.F
		x = Project(res.X, capW)
		// The best point found within the budget is kept when it passes the
		// checks below; restarting would only spend the same budget again.
		if limited {
			break
		}
	}

	w := Project(x, capW)
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fallback(equal, "non-finite weights")
		}
	}
	if p.Target != nil {
		ret, _, _ := Performance(w, p.Mu, p.Cov, p.RiskFreeRate)
		if math.Abs(ret-*p.Target) > targetTolerance {
			return fallback(equal, fmt.Sprintf("target return %.4f not reachable (best %.4f)", *p.Target, ret))
		}
	}
	return Solution{Weights: w, Converged: true}
}

func accepted(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionConvergence, optimize.GradientThreshold, optimize.MethodConverge:
		return true
	}
	return false
}

func limitReached(s optimize.Status) bool {
	switch s {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
		return true
	}
	return false
}

func fallback(equal []float64, reason string) Solution {
	return Solution{Weights: equal, Reason: reason}
}

// EqualWeights returns n weights of 1/n.
func EqualWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// Project returns the Euclidean projection of x onto the capped simplex
// {Σw = 1, 0 ≤ wᵢ ≤ maxW}: wᵢ = clip(xᵢ − τ, 0, maxW) with τ found by
// bisection. maxW must be at least 1/len(x).
func Project(x []float64, maxW float64) []float64 {
	n := len(x)
	w := make([]float64, n)
	if n == 0 {
		return w
	}
	clean := make([]float64, n)
	for i, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean[i] = v
		}
	}

	fill := func(tau float64) float64 {
		sum := 0.0
		for i, v := range clean {
			w[i] = math.Min(math.Max(v-tau, 0), maxW)
			sum += w[i]
		}
		return sum
	}

	// Σ clip(x − τ) is n·maxW ≥ 1 at lo and 0 at hi, non-increasing in τ.
	lo, hi := floats.Min(clean)-maxW, floats.Max(clean)
	for k := 0; k < 100; k++ {
		mid := (lo + hi) / 2
		if fill(mid) > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	sum := fill((lo + hi) / 2)
	if sum <= 0 {
		return EqualWeights(n)
	}
	floats.Scale(1/sum, w)
	return w
}
