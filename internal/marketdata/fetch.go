package marketdata

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/openseai-risk/internal/metrics"
	"github.com/seenimoa/openseai-risk/pkg/models"
)

// SeriesResult is the outcome of one history fetch. Exactly one of Points
// and Err is meaningful.
type SeriesResult struct {
	Symbol string
	Points []models.PricePoint
	Err    error
}

// PriceResult is the outcome of one current-price fetch.
type PriceResult struct {
	Symbol string
	Price  float64
	Err    error
}

// FetchOptions bounds a fan-out.
type FetchOptions struct {
	Concurrency int           // max in-flight calls, >= 1
	Timeout     time.Duration // per call; zero means no extra deadline
}

func (o FetchOptions) limit() int {
	if o.Concurrency < 1 {
		return 1
	}
	return o.Concurrency
}

func (o FetchOptions) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

// FetchHistories fetches the history of every symbol concurrently. Results
// are returned in input order; a failed symbol never cancels the others.
func FetchHistories(ctx context.Context, p HistoryProvider, symbols []string, lookbackDays int, opts FetchOptions) []SeriesResult {
	results := make([]SeriesResult, len(symbols))

	var g errgroup.Group
	g.SetLimit(opts.limit())
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			cctx, cancel := opts.callContext(ctx)
			defer cancel()

			points, err := p.History(cctx, sym, lookbackDays)
			metrics.ObserveFetch("history", err)
			results[i] = SeriesResult{Symbol: sym, Points: points, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// FetchBenchmark fetches the benchmark under the same per-call timeout.
func FetchBenchmark(ctx context.Context, p HistoryProvider, lookbackDays int, opts FetchOptions) SeriesResult {
	cctx, cancel := opts.callContext(ctx)
	defer cancel()

	points, err := p.BenchmarkHistory(cctx, lookbackDays)
	metrics.ObserveFetch("benchmark", err)
	return SeriesResult{Symbol: "benchmark", Points: points, Err: err}
}

// FetchPrices fetches current prices concurrently, in input order.
func FetchPrices(ctx context.Context, p PriceProvider, symbols []string, opts FetchOptions) []PriceResult {
	results := make([]PriceResult, len(symbols))

	var g errgroup.Group
	g.SetLimit(opts.limit())
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			cctx, cancel := opts.callContext(ctx)
			defer cancel()

			px, err := p.CurrentPrice(cctx, sym)
			metrics.ObserveFetch("price", err)
			results[i] = PriceResult{Symbol: sym, Price: px, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
