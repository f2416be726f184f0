package utils

import "time"

// IST is the Indian Standard Time location (UTC+5:30).
var IST *time.Location

func init() {
	var err error
	IST, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		IST = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// NowIST returns the current time in IST.
func NowIST() time.Time {
	return time.Now().In(IST)
}

// CalendarWindow returns how many calendar days to request so that about
// tradingDays sessions come back, padded for exchange holidays.
func CalendarWindow(tradingDays int) int {
	if tradingDays <= 0 {
		return 0
	}
	return tradingDays*365/252 + 30
}

// FormatDateIST formats a time as YYYY-MM-DD in IST.
func FormatDateIST(t time.Time) string {
	return t.In(IST).Format("2006-01-02")
}
