// Package models defines the data structures shared by the OpeNSE risk engine:
// portfolios, holdings, transactions, price history and analytics results.
package models

import "time"

// OHLCV represents a single daily bar as returned by the chart API.
type OHLCV struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	AdjClose  float64   `json:"adj_close,omitempty"`
}

// PricePoint is one daily close. Histories are ordered by Date ascending.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// DateKey returns the calendar day of the point,
// used to align histories of different instruments.
func (p PricePoint) DateKey() string {
	return p.Date.Format("2006-01-02")
}

// StockProfile is the descriptive data resolved for a newly bought symbol.
type StockProfile struct {
	Symbol        string  `json:"symbol"`
	CompanyName   string  `json:"company_name"`
	Sector        string  `json:"sector"`
	Industry      string  `json:"industry,omitempty"`
	DividendYield float64 `json:"dividend_yield,omitempty"` // percent
}
