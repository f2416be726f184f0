package utils

import "strings"

// indexSymbols maps index names accepted as a benchmark to Yahoo symbols.
var indexSymbols = map[string]string{
	"NIFTY":      "^NSEI",
	"NIFTY50":    "^NSEI",
	"NIFTY 50":   "^NSEI",
	"BANKNIFTY":  "^NSEBANK",
	"NIFTY BANK": "^NSEBANK",
	"NIFTY IT":   "^CNXIT",
	"SENSEX":     "^BSESN",
}

// NormalizeSymbol upper-cases and trims a user supplied symbol and strips a
// leading "$". Exchange suffixes (".NS", ".BO") are kept so the stored
// symbol is exactly what the market-data provider is asked for.
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return strings.TrimPrefix(symbol, "$")
}

// ToYFinanceTicker maps a symbol to Yahoo Finance form. Index names become
// caret symbols and bare NSE tickers get ".NS".
func ToYFinanceTicker(symbol string) string {
	symbol = NormalizeSymbol(symbol)
	if yf, ok := indexSymbols[symbol]; ok {
		return yf
	}
	if strings.HasPrefix(symbol, "^") ||
		strings.HasSuffix(symbol, ".NS") ||
		strings.HasSuffix(symbol, ".BO") {
		return symbol
	}
	return symbol + ".NS"
}

// BaseTicker strips the exchange suffix: "RELIANCE.NS" → "RELIANCE".
func BaseTicker(symbol string) string {
	symbol = NormalizeSymbol(symbol)
	symbol = strings.TrimSuffix(symbol, ".NS")
	return strings.TrimSuffix(symbol, ".BO")
}
