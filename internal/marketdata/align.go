package marketdata

import (
	"math"
	"sort"
)

// Aligned holds simple daily returns of several instruments over the dates
// on which every one of them traded.
type Aligned struct {
	Symbols []string
	// Dates[t] is the day of the close that ends return t.
	Dates []string
	// Returns[i][t] is the return of Symbols[i] on Dates[t].
	Returns [][]float64
	// Dropped lists symbols whose fetch failed or that had fewer than two
	// usable closes.
	Dropped []string
}

// Observations is the number of aligned return dates.
func (a *Aligned) Observations() int { return len(a.Dates) }

// Index returns the position of symbol in Symbols, or -1.
func (a *Aligned) Index(symbol string) int {
	for i, s := range a.Symbols {
		if s == symbol {
			return i
		}
	}
	return -1
}

// Align intersects the series on date, keeps the most recent
// lookbackDays+1 common closes and converts them to simple returns.
// Symbols with no usable data are moved to Dropped; when the surviving
// series share fewer than two dates the result carries no observations.
func Align(series []SeriesResult, lookbackDays int) *Aligned {
	a := &Aligned{}

	closes := make([]map[string]float64, 0, len(series))
	for _, s := range series {
		if s.Err != nil {
			a.Dropped = append(a.Dropped, s.Symbol)
			continue
		}
		byDate := make(map[string]float64, len(s.Points))
		for _, p := range s.Points {
			if p.Close > 0 && !math.IsInf(p.Close, 0) {
				byDate[p.DateKey()] = p.Close
			}
		}
		if len(byDate) < 2 {
			a.Dropped = append(a.Dropped, s.Symbol)
			continue
		}
		a.Symbols = append(a.Symbols, s.Symbol)
		closes = append(closes, byDate)
	}
	if len(closes) == 0 {
		return a
	}

	var common []string
	for d := range closes[0] {
		inAll := true
		for _, m := range closes[1:] {
			if _, ok := m[d]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			common = append(common, d)
		}
	}
	sort.Strings(common)

	if lookbackDays > 0 && len(common) > lookbackDays+1 {
		common = common[len(common)-lookbackDays-1:]
	}

	a.Returns = make([][]float64, len(closes))
	if len(common) < 2 {
		return a
	}

	a.Dates = common[1:]
	for i, m := range closes {
		r := make([]float64, len(common)-1)
		for t := 1; t < len(common); t++ {
			r[t-1] = m[common[t]]/m[common[t-1]] - 1
		}
		a.Returns[i] = r
	}
	return a
}
