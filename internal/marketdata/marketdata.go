// Package marketdata supplies daily price history and current prices for
// NSE instruments. The analytics services depend only on the HistoryProvider
// and PriceProvider interfaces; YFinance is the production implementation
// and Static the in-memory one used offline and in tests.
package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seenimoa/openseai-risk/pkg/models"
)

// HistoryProvider returns daily closes ordered by date ascending.
// Failures wrap models.ErrDataUnavailable.
type HistoryProvider interface {
	// History returns up to lookbackDays+1 most recent daily closes.
	History(ctx context.Context, symbol string, lookbackDays int) ([]models.PricePoint, error)

	// BenchmarkHistory returns the market index closes over the same window.
	BenchmarkHistory(ctx context.Context, lookbackDays int) ([]models.PricePoint, error)
}

// PriceProvider returns the latest price of an instrument.
type PriceProvider interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// ProfileResolver looks up descriptive data for a symbol (company name,
// sector, dividend yield).
type ProfileResolver interface {
	Profile(ctx context.Context, symbol string) (*models.StockProfile, error)
}

// Provider is a complete market-data source.
type Provider interface {
	HistoryProvider
	PriceProvider
	Name() string
}

// HTTPError reports a non-2xx response from an upstream source.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// DefaultUserAgent is sent with every upstream request.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// doGet performs a GET request and returns the response body.
// The caller is responsible for closing it.
func doGet(ctx context.Context, client *http.Client, url string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return resp.Body, nil
}

// unavailable wraps err as a data-unavailable failure for symbol.
func unavailable(symbol string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrDataUnavailable, symbol, err)
}
