package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/seenimoa/openseai-risk/pkg/models"
)

// TradingDays annualises daily statistics.
const TradingDays = 252

// ════════════════════════════════════════════════════════════════════
// Return series
// ════════════════════════════════════════════════════════════════════

// PortfolioReturns combines per-symbol daily returns with fixed weights:
// p[t] = Σ w[i]·r[i][t].
func PortfolioReturns(returns [][]float64, weights []float64) []float64 {
	if len(returns) == 0 {
		return nil
	}
	p := make([]float64, len(returns[0]))
	for i, r := range returns {
		floats.AddScaled(p, weights[i], r)
	}
	return p
}

// ════════════════════════════════════════════════════════════════════
// Value at Risk
// ════════════════════════════════════════════════════════════════════

// HistoricalVaR is the one-day loss, in currency, not exceeded with the
// given confidence (0.95, 0.99), read from the empirical distribution of
// returns. A quantile above zero means no loss and yields 0.
func HistoricalVaR(returns []float64, confidence, totalValue float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)

	q := stat.Quantile(1-confidence, stat.LinInterp, sorted, nil)
	if math.IsNaN(q) {
		return 0
	}
	return math.Max(0, -q) * totalValue
}

// ════════════════════════════════════════════════════════════════════
// Beta, Sharpe, volatility
// ════════════════════════════════════════════════════════════════════

// Beta is cov(p, b) / var(b) with sample statistics. It is 1.0 (market
// neutral assumption) with fewer than minObs observations or a flat
// benchmark.
func Beta(portfolio, benchmark []float64, minObs int) float64 {
	if len(portfolio) != len(benchmark) || len(benchmark) < minObs || len(benchmark) < 2 {
		return 1.0
	}
	v := stat.Variance(benchmark, nil)
	if v == 0 || math.IsNaN(v) {
		return 1.0
	}
	return stat.Covariance(portfolio, benchmark, nil) / v
}

// SharpeRatio annualises (mean − rf/252) / sd by √252. riskFreeRate is
// annual. Zero when the series is flat or too short.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, sd := stat.MeanStdDev(returns, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return (mean - riskFreeRate/TradingDays) / sd * math.Sqrt(TradingDays)
}

// AnnualVolatility is the sample standard deviation scaled by √252.
func AnnualVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(TradingDays)
}

// MaxDrawdown is the largest peak-to-trough decline of the compounded
// return curve, as a positive fraction.
func MaxDrawdown(returns []float64) float64 {
	equity, peak, maxDD := 1.0, 1.0, 0.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// ════════════════════════════════════════════════════════════════════
// Diversification
// ════════════════════════════════════════════════════════════════════

// Correlation returns the Pearson correlation matrix of the series.
// Pairs involving a constant series are reported as 0.
func Correlation(returns [][]float64) [][]float64 {
	n := len(returns)
	if n == 0 {
		return nil
	}
	if len(returns[0]) < 2 {
		return identity(n)
	}
	x := columns(returns)

	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, x, nil)

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			v := corr.At(i, j)
			if i == j {
				v = 1
			} else if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			out[i][j] = v
		}
	}
	return out
}

// MeanAbsCorrelation averages |ρ| over the off-diagonal pairs.
func MeanAbsCorrelation(returns [][]float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	corr := Correlation(returns)
	sum := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += math.Abs(corr[i][j])
		}
	}
	return sum / float64(n*(n-1)/2)
}

// Herfindahl is Σ w² of the weights: 1/N for an equal split, 1 for a
// single holding.
func Herfindahl(weights map[string]float64) float64 {
	h := 0.0
	for _, w := range weights {
		h += w * w
	}
	return h
}

// ════════════════════════════════════════════════════════════════════
// Score
// ════════════════════════════════════════════════════════════════════

// Score combines the measures into an integer 1..100: 30% volatility and
// 30% drawdown (both saturating at 50%), 20% correlation, 20% concentration.
func Score(volatility, maxDrawdown, correlation, concentration float64) int {
	s := 0.3*math.Min(volatility/0.5, 1) +
		0.3*math.Min(maxDrawdown/0.5, 1) +
		0.2*correlation +
		0.2*concentration
	score := int(s * 100)
	switch {
	case score < 1:
		return 1
	case score > 100:
		return 100
	}
	return score
}

// Classify maps a score to its tier and advisory text.
func Classify(score int) (models.RiskLevel, string) {
	switch {
	case score < 30:
		return models.RiskLow, "LOW RISK: Portfolio is well-diversified with conservative risk profile"
	case score < 60:
		return models.RiskModerate, "MODERATE RISK: Balanced portfolio with acceptable risk levels"
	case score < 80:
		return models.RiskHigh, "HIGH RISK: Consider diversification and risk reduction strategies"
	default:
		return models.RiskVeryHigh, "VERY HIGH RISK: Immediate action required to reduce portfolio risk"
	}
}

// columns lays out one series per column: rows are dates.
func columns(returns [][]float64) *mat.Dense {
	n, t := len(returns), len(returns[0])
	x := mat.NewDense(t, n, nil)
	for j, r := range returns {
		x.SetCol(j, r)
	}
	return x
}

func identity(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		out[i][i] = 1
	}
	return out
}
