package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/openseai-risk/internal/infra"
	"github.com/seenimoa/openseai-risk/pkg/models"
	"github.com/seenimoa/openseai-risk/pkg/utils"
)

const screenerBaseURL = "https://www.screener.in"

// Screener resolves company name, sector and dividend yield by scraping
// the Screener.in company page.
type Screener struct {
	client  *http.Client
	baseURL string
	cache   *infra.Cache[models.StockProfile]
	limiter *infra.RateLimiter
}

// NewScreener creates a Screener.in profile resolver. An empty baseURL
// selects the public site.
func NewScreener(baseURL string) *Screener {
	if baseURL == "" {
		baseURL = screenerBaseURL
	}
	return &Screener{
		client:  newHTTPClient(),
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   infra.NewCache[models.StockProfile](24 * time.Hour),
		limiter: infra.NewRateLimiterPerSecond(1),
	}
}

// Profile returns the descriptive data for symbol.
func (s *Screener) Profile(ctx context.Context, symbol string) (*models.StockProfile, error) {
	base := utils.BaseTicker(symbol)

	if cached, ok := s.cache.Get(base); ok {
		return &cached, nil
	}

	doc, err := s.fetchPage(ctx, base)
	if err != nil {
		return nil, unavailable(symbol, err)
	}

	profile := models.StockProfile{
		Symbol:      utils.NormalizeSymbol(symbol),
		CompanyName: strings.TrimSpace(doc.Find("h1").First().Text()),
	}

	// The peers section links the sector first, then the industry.
	doc.Find(`#peers a[href^="/market/"]`).Each(func(i int, sel *goquery.Selection) {
		name := strings.TrimSpace(sel.Text())
		switch i {
		case 0:
			profile.Sector = name
		case 1:
			profile.Industry = name
		}
	})

	doc.Find("#top-ratios li").Each(func(_ int, sel *goquery.Selection) {
		name := strings.TrimSpace(sel.Find(".name").Text())
		if strings.Contains(name, "Dividend Yield") {
			profile.DividendYield = parseScreenerNumber(sel.Find(".number").Text())
		}
	})

	if profile.CompanyName == "" && profile.Sector == "" {
		return nil, unavailable(symbol, fmt.Errorf("screener page has no company data"))
	}

	s.cache.Set(base, profile)
	return &profile, nil
}

// fetchPage downloads and parses the Screener.in company page.
func (s *Screener) fetchPage(ctx context.Context, symbol string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	headers := map[string]string{"Accept": "text/html"}
	url := fmt.Sprintf("%s/company/%s/consolidated/", s.baseURL, symbol)
	body, err := doGet(ctx, s.client, url, headers)
	if err != nil {
		// Try standalone if consolidated not found.
		url = fmt.Sprintf("%s/company/%s/", s.baseURL, symbol)
		body, err = doGet(ctx, s.client, url, headers)
		if err != nil {
			return nil, fmt.Errorf("screener.in %s: %w", symbol, err)
		}
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse screener HTML: %w", err)
	}
	return doc, nil
}

// parseScreenerNumber parses a number from Screener.in format.
// Handles commas, percentages, and Cr/Lakh suffixes.
func parseScreenerNumber(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, "₹", "")
	s = strings.TrimSpace(s)

	multiplier := 1.0
	if strings.HasSuffix(s, "Cr") || strings.HasSuffix(s, "Cr.") {
		s = strings.TrimSuffix(s, "Cr.")
		s = strings.TrimSuffix(s, "Cr")
		s = strings.TrimSpace(s)
		multiplier = 1e7
	} else if strings.HasSuffix(s, "Lakh") || strings.HasSuffix(s, "L") {
		s = strings.TrimSuffix(s, "Lakh")
		s = strings.TrimSuffix(s, "L")
		s = strings.TrimSpace(s)
		multiplier = 1e5
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}
