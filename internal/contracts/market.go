package contracts

import (
	"math"
	"strings"
	"time"
)

// Instrument is a tradable security identified by ticker
// ⭐ SSOT: 종목 식별자는 대문자 티커
type Instrument struct {
	Ticker string `json:"ticker"`
}

// NewInstrument normalizes the ticker (trimmed, upper case)
func NewInstrument(ticker string) Instrument {
	return Instrument{Ticker: strings.ToUpper(strings.TrimSpace(ticker))}
}

// Tickers returns the ticker of each instrument in order
func Tickers(instruments []Instrument) []string {
	out := make([]string, len(instruments))
	for i, inst := range instruments {
		out[i] = inst.Ticker
	}
	return out
}

// PriceRow is one daily bar. Missing fields are NaN.
type PriceRow struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   float64   `json:"volume"`
}

// Distribution types
const (
	DistributionDividend = "DIVIDEND"
	DistributionSplit    = "SPLIT"
)

// DistributionEvent is a cash distribution paid on Date
type DistributionEvent struct {
	Date   time.Time `json:"date"`
	Type   string    `json:"type"`
	Amount float64   `json:"amount"`
}

// TradingDay truncates t to UTC midnight so dates from different
// sources join on the same key
func TradingDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", strings.TrimSpace(s), time.UTC)
}

// NaN is the "no value" marker for numeric series
var NaN = math.NaN()

// IsMissing reports whether v carries no value
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}
