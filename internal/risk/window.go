package risk

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/seenimoa/openseai-risk/internal/marketdata"
)

// Window is the aligned return history of a portfolio's surviving symbols.
type Window struct {
	Symbols []string
	// Weights are the store weights of Symbols, renormalised to sum to 1.
	Weights []float64
	// Returns[i][t] is the daily return of Symbols[i].
	Returns [][]float64
	// Portfolio[t] is Σ Weights[i]·Returns[i][t].
	Portfolio []float64
	Dropped   []string
	// Series keeps the raw fetch results for re-alignment against a benchmark.
	Series []marketdata.SeriesResult
}

// Observations is the number of aligned return dates.
func (w *Window) Observations() int { return len(w.Portfolio) }

// Usable reports whether at least two series survived with observations.
func (w *Window) Usable() bool {
	return len(w.Symbols) >= 2 && w.Observations() > 0
}

// LoadWindow fetches the history of every weighted symbol, aligns the
// survivors on common dates and builds the portfolio return series.
// Symbols without data are logged and listed in Dropped; it never fails.
func LoadWindow(ctx context.Context, hp marketdata.HistoryProvider, weights map[string]float64,
	lookbackDays int, fetch marketdata.FetchOptions, log *zap.Logger) *Window {
	symbols := make([]string, 0, len(weights))
	for s := range weights {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	series := marketdata.FetchHistories(ctx, hp, symbols, lookbackDays, fetch)
	for _, s := range series {
		if s.Err != nil {
			log.Warn("history unavailable, dropping symbol",
				zap.String("symbol", s.Symbol), zap.Error(s.Err))
		}
	}
	return windowFrom(series, weights, lookbackDays)
}

func windowFrom(series []marketdata.SeriesResult, weights map[string]float64, lookbackDays int) *Window {
	a := marketdata.Align(series, lookbackDays)
	w := &Window{
		Symbols: a.Symbols,
		Dropped: a.Dropped,
		Series:  series,
	}
	if len(a.Symbols) == 0 || a.Observations() == 0 {
		return w
	}

	w.Returns = a.Returns
	w.Weights = make([]float64, len(a.Symbols))
	sum := 0.0
	for i, s := range a.Symbols {
		w.Weights[i] = weights[s]
		sum += weights[s]
	}
	for i := range w.Weights {
		if sum > 0 {
			w.Weights[i] /= sum
		} else {
			w.Weights[i] = 1 / float64(len(w.Weights))
		}
	}
	w.Portfolio = PortfolioReturns(w.Returns, w.Weights)
	return w
}

// WithBenchmark re-aligns the surviving series together with the benchmark
// and returns the portfolio and benchmark returns on their common dates.
// ok is false when the benchmark has no usable data.
func (w *Window) WithBenchmark(bench marketdata.SeriesResult, weights map[string]float64, lookbackDays int) (portfolio, benchmark []float64, ok bool) {
	if bench.Err != nil || len(w.Symbols) == 0 {
		return nil, nil, false
	}
	usable := make([]marketdata.SeriesResult, 0, len(w.Series)+1)
	for _, s := range w.Series {
		if s.Err == nil {
			usable = append(usable, s)
		}
	}
	usable = append(usable, bench)

	a := marketdata.Align(usable, lookbackDays)
	bi := a.Index(bench.Symbol)
	if bi < 0 || a.Observations() == 0 {
		return nil, nil, false
	}

	ws := make([]float64, 0, len(a.Symbols)-1)
	rets := make([][]float64, 0, len(a.Symbols)-1)
	sum := 0.0
	for i, s := range a.Symbols {
		if i == bi {
			continue
		}
		ws = append(ws, weights[s])
		rets = append(rets, a.Returns[i])
		sum += weights[s]
	}
	if len(rets) == 0 || sum <= 0 {
		return nil, nil, false
	}
	for i := range ws {
		ws[i] /= sum
	}
	return PortfolioReturns(rets, ws), a.Returns[bi], true
}
