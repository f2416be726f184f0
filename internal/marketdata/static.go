package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seenimoa/openseai-risk/pkg/models"
	"github.com/seenimoa/openseai-risk/pkg/utils"
)

// Static serves prices and history held in memory. With nothing loaded every
// request fails with models.ErrDataUnavailable, which makes it the null
// provider for offline use.
type Static struct {
	mu        sync.RWMutex
	history   map[string][]models.PricePoint
	prices    map[string]float64
	profiles  map[string]models.StockProfile
	failures  map[string]error
	benchmark []models.PricePoint
}

// NewStatic returns an empty static provider.
func NewStatic() *Static {
	return &Static{
		history:  make(map[string][]models.PricePoint),
		prices:   make(map[string]float64),
		profiles: make(map[string]models.StockProfile),
		failures: make(map[string]error),
	}
}

// Name returns the provider name.
func (s *Static) Name() string { return "static" }

// SetHistory stores the closes returned for symbol.
func (s *Static) SetHistory(symbol string, points []models.PricePoint) *Static {
	s.mu.Lock()
	s.history[utils.NormalizeSymbol(symbol)] = points
	s.mu.Unlock()
	return s
}

// SetBenchmark stores the benchmark closes.
func (s *Static) SetBenchmark(points []models.PricePoint) *Static {
	s.mu.Lock()
	s.benchmark = points
	s.mu.Unlock()
	return s
}

// SetPrice fixes the current price for symbol.
func (s *Static) SetPrice(symbol string, price float64) *Static {
	s.mu.Lock()
	s.prices[utils.NormalizeSymbol(symbol)] = price
	s.mu.Unlock()
	return s
}

// SetProfile stores descriptive data for symbol.
func (s *Static) SetProfile(p models.StockProfile) *Static {
	s.mu.Lock()
	s.profiles[utils.NormalizeSymbol(p.Symbol)] = p
	s.mu.Unlock()
	return s
}

// Fail makes every request for symbol return err.
func (s *Static) Fail(symbol string, err error) *Static {
	s.mu.Lock()
	s.failures[utils.NormalizeSymbol(symbol)] = err
	s.mu.Unlock()
	return s
}

// History returns the stored closes trimmed to lookbackDays+1 points.
func (s *Static) History(ctx context.Context, symbol string, lookbackDays int) ([]models.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(symbol, err)
	}
	key := utils.NormalizeSymbol(symbol)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures[key]; err != nil {
		return nil, unavailable(symbol, err)
	}
	points, ok := s.history[key]
	if !ok || len(points) == 0 {
		return nil, unavailable(symbol, fmt.Errorf("no history loaded"))
	}
	return tail(points, lookbackDays), nil
}

// BenchmarkHistory returns the stored benchmark closes.
func (s *Static) BenchmarkHistory(ctx context.Context, lookbackDays int) ([]models.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("benchmark", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.benchmark) == 0 {
		return nil, unavailable("benchmark", fmt.Errorf("no history loaded"))
	}
	return tail(s.benchmark, lookbackDays), nil
}

// CurrentPrice returns the fixed price, or the last stored close.
func (s *Static) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(symbol, err)
	}
	key := utils.NormalizeSymbol(symbol)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures[key]; err != nil {
		return 0, unavailable(symbol, err)
	}
	if px, ok := s.prices[key]; ok {
		return px, nil
	}
	if points := s.history[key]; len(points) > 0 {
		return points[len(points)-1].Close, nil
	}
	return 0, unavailable(symbol, fmt.Errorf("no price loaded"))
}

// Profile returns the stored profile for symbol.
func (s *Static) Profile(_ context.Context, symbol string) (*models.StockProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[utils.NormalizeSymbol(symbol)]
	if !ok {
		return nil, unavailable(symbol, fmt.Errorf("no profile loaded"))
	}
	return &p, nil
}

func tail(points []models.PricePoint, lookbackDays int) []models.PricePoint {
	if lookbackDays > 0 && len(points) > lookbackDays+1 {
		points = points[len(points)-lookbackDays-1:]
	}
	out := make([]models.PricePoint, len(points))
	copy(out, points)
	return out
}

// FromReturns builds a weekday close series starting at startPrice on start,
// compounding the given simple daily returns. The result has len(returns)+1
// points.
func FromReturns(start time.Time, startPrice float64, returns []float64) []models.PricePoint {
	points := make([]models.PricePoint, 0, len(returns)+1)
	day := start
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	px := startPrice
	points = append(points, models.PricePoint{Date: day, Close: px})
	for _, r := range returns {
		day = nextWeekday(day)
		px *= 1 + r
		points = append(points, models.PricePoint{Date: day, Close: px})
	}
	return points
}

func nextWeekday(t time.Time) time.Time {
	t = t.AddDate(0, 0, 1)
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
