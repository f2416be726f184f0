package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/seenimoa/openseai-risk/internal/infra"
	"github.com/seenimoa/openseai-risk/pkg/models"
	"github.com/seenimoa/openseai-risk/pkg/utils"
)

const yfinanceBaseURL = "https://query1.finance.yahoo.com"

// YFinance serves history and prices from the Yahoo Finance chart API.
type YFinance struct {
	client    *http.Client
	baseURL   string
	benchmark string
	history   *infra.Cache[[]models.PricePoint]
	prices    *infra.Cache[float64]
	limiter   *infra.RateLimiter
	now       func() time.Time
}

// YFinanceOption configures a YFinance provider.
type YFinanceOption func(*YFinance)

// WithBaseURL points the provider at a different host (used by tests).
func WithBaseURL(u string) YFinanceOption {
	return func(y *YFinance) { y.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) YFinanceOption {
	return func(y *YFinance) { y.client = c }
}

// WithBenchmark sets the index used by BenchmarkHistory.
func WithBenchmark(symbol string) YFinanceOption {
	return func(y *YFinance) { y.benchmark = symbol }
}

// WithCacheTTL sets how long fetched data is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) YFinanceOption {
	return func(y *YFinance) {
		y.history = infra.NewCache[[]models.PricePoint](ttl)
		y.prices = infra.NewCache[float64](ttl)
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSec float64) YFinanceOption {
	return func(y *YFinance) { y.limiter = infra.NewRateLimiterPerSecond(perSec) }
}

// NewYFinance creates a Yahoo Finance provider benchmarked against NIFTY 50.
func NewYFinance(opts ...YFinanceOption) *YFinance {
	y := &YFinance{
		client:    newHTTPClient(),
		baseURL:   yfinanceBaseURL,
		benchmark: "^NSEI",
		history:   infra.NewCache[[]models.PricePoint](5 * time.Minute),
		prices:    infra.NewCache[float64](time.Minute),
		limiter:   infra.NewRateLimiterPerSecond(5),
		now:       time.Now,
	}
	for _, o := range opts {
		o(y)
	}
	return y
}

// Name returns the provider name.
func (y *YFinance) Name() string { return "Yahoo Finance" }

// --- Yahoo Finance v8 chart API types ---

type yfChartResponse struct {
	Chart struct {
		Result []yfChartResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"chart"`
}

type yfChartResult struct {
	Meta       yfChartMeta  `json:"meta"`
	Timestamp  []int64      `json:"timestamp"`
	Indicators yfIndicators `json:"indicators"`
}

type yfChartMeta struct {
	Symbol             string  `json:"symbol"`
	Currency           string  `json:"currency"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
}

type yfIndicators struct {
	Quote    []yfOHLCV    `json:"quote"`
	AdjClose []yfAdjClose `json:"adjclose"`
}

type yfOHLCV struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

type yfAdjClose struct {
	AdjClose []*float64 `json:"adjclose"`
}

type yfError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// --- Public methods ---

// History returns adjusted daily closes for symbol.
func (y *YFinance) History(ctx context.Context, symbol string, lookbackDays int) ([]models.PricePoint, error) {
	yfTicker := utils.ToYFinanceTicker(symbol)

	cacheKey := fmt.Sprintf("hist:%s:%d", yfTicker, lookbackDays)
	if cached, ok := y.history.Get(cacheKey); ok {
		return cached, nil
	}

	to := y.now()
	from := to.AddDate(0, 0, -utils.CalendarWindow(lookbackDays))
	result, err := y.chart(ctx, yfTicker, fmt.Sprintf("period1=%d&period2=%d&interval=1d", from.Unix(), to.Unix()))
	if err != nil {
		return nil, unavailable(symbol, err)
	}

	points := closesFromCandles(parseYFCandles(result))
	if len(points) == 0 {
		return nil, unavailable(symbol, fmt.Errorf("no closes in chart response"))
	}
	if lookbackDays > 0 && len(points) > lookbackDays+1 {
		points = points[len(points)-lookbackDays-1:]
	}

	y.history.Set(cacheKey, points)
	return points, nil
}

// BenchmarkHistory returns closes of the configured index.
func (y *YFinance) BenchmarkHistory(ctx context.Context, lookbackDays int) ([]models.PricePoint, error) {
	return y.History(ctx, y.benchmark, lookbackDays)
}

// CurrentPrice returns the regular market price from the chart meta block,
// falling back to the latest close.
func (y *YFinance) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	yfTicker := utils.ToYFinanceTicker(symbol)

	if cached, ok := y.prices.Get(yfTicker); ok {
		return cached, nil
	}

	result, err := y.chart(ctx, yfTicker, "range=5d&interval=1d")
	if err != nil {
		return 0, unavailable(symbol, err)
	}

	price := result.Meta.RegularMarketPrice
	if price <= 0 {
		if points := closesFromCandles(parseYFCandles(result)); len(points) > 0 {
			price = points[len(points)-1].Close
		}
	}
	if price <= 0 || math.IsNaN(price) {
		return 0, unavailable(symbol, fmt.Errorf("no price in chart response"))
	}

	y.prices.Set(yfTicker, price)
	return price, nil
}

// --- Helpers ---

func (y *YFinance) chart(ctx context.Context, yfTicker, query string) (yfChartResult, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return yfChartResult{}, err
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, yfTicker, query)
	body, err := doGet(ctx, y.client, url, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return yfChartResult{}, fmt.Errorf("yfinance chart %s: %w", yfTicker, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return yfChartResult{}, fmt.Errorf("read response: %w", err)
	}

	var resp yfChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return yfChartResult{}, fmt.Errorf("parse yfinance chart: %w", err)
	}
	if resp.Chart.Error != nil {
		return yfChartResult{}, fmt.Errorf("yfinance chart error: %s", resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return yfChartResult{}, fmt.Errorf("ticker not found: %s", yfTicker)
	}
	return resp.Chart.Result[0], nil
}

func parseYFCandles(result yfChartResult) []models.OHLCV {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}

	q := result.Indicators.Quote[0]
	var adjCloses []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adjCloses = result.Indicators.AdjClose[0].AdjClose
	}

	candles := make([]models.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := models.OHLCV{
			Timestamp: time.Unix(ts, 0).In(utils.IST),
		}
		if i < len(q.Open) && q.Open[i] != nil {
			c.Open = *q.Open[i]
		}
		if i < len(q.High) && q.High[i] != nil {
			c.High = *q.High[i]
		}
		if i < len(q.Low) && q.Low[i] != nil {
			c.Low = *q.Low[i]
		}
		if i < len(q.Close) && q.Close[i] != nil {
			c.Close = *q.Close[i]
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			c.Volume = *q.Volume[i]
		}
		if i < len(adjCloses) && adjCloses[i] != nil {
			c.AdjClose = *adjCloses[i]
		}
		candles = append(candles, c)
	}
	return candles
}

// closesFromCandles keeps one positive close per trading day, preferring the
// dividend/split adjusted close. Holidays come back as null bars and are skipped.
func closesFromCandles(candles []models.OHLCV) []models.PricePoint {
	points := make([]models.PricePoint, 0, len(candles))
	for _, c := range candles {
		px := c.AdjClose
		if px <= 0 {
			px = c.Close
		}
		if px <= 0 || math.IsNaN(px) || math.IsInf(px, 0) {
			continue
		}
		p := models.PricePoint{Date: c.Timestamp, Close: px}
		if n := len(points); n > 0 && points[n-1].DateKey() == p.DateKey() {
			points[n-1] = p
			continue
		}
		points = append(points, p)
	}
	return points
}
