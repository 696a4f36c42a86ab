package dataset

import (
	"sort"
	"time"

	"github.com/wonny/ewreturns/internal/contracts"
)

// Field names a per-instrument numeric column
type Field string

const (
	FieldOpen         Field = "Open"
	FieldHigh         Field = "High"
	FieldLow          Field = "Low"
	FieldClose        Field = "Close"
	FieldVolume       Field = "Volume"
	FieldAdjClose     Field = "Adj_Close"
	FieldDistribution Field = "action_amount"
)

// Series is one instrument's column group, aligned to Dataset.Dates.
// Missing values are NaN.
type Series struct {
	Open         []float64
	High         []float64
	Low          []float64
	Close        []float64
	AdjClose     []float64
	Volume       []float64
	Distribution []float64
	Action       []string // distribution type, "" where none
}

func newSeries(n int) *Series {
	nan := func() []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = contracts.NaN
		}
		return s
	}
	return &Series{
		Open:         nan(),
		High:         nan(),
		Low:          nan(),
		Close:        nan(),
		AdjClose:     nan(),
		Volume:       nan(),
		Distribution: nan(),
		Action:       make([]string, n),
	}
}

// Column returns the values of f. Unknown fields return nil.
func (s *Series) Column(f Field) []float64 {
	switch f {
	case FieldOpen:
		return s.Open
	case FieldHigh:
		return s.High
	case FieldLow:
		return s.Low
	case FieldClose:
		return s.Close
	case FieldVolume:
		return s.Volume
	case FieldAdjClose:
		return s.AdjClose
	case FieldDistribution:
		return s.Distribution
	default:
		return nil
	}
}

// Dataset is the merged daily table of every good instrument.
// It is read-only once Build returns.
// ⭐ SSOT: 병합된 시계열은 이 구조체로만 전달
type Dataset struct {
	Dates   []time.Time // ascending, unique
	Tickers []string    // good tickers in input order
	Series  map[string]*Series
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.Dates)
}

// RowOf returns the row index of date
func (d *Dataset) RowOf(date time.Time) (int, bool) {
	i := sort.Search(len(d.Dates), func(i int) bool { return !d.Dates[i].Before(date) })
	if i < len(d.Dates) && d.Dates[i].Equal(date) {
		return i, true
	}
	return -1, false
}

// Value returns ticker's field at row, NaN when absent
func (d *Dataset) Value(ticker string, f Field, row int) float64 {
	s, ok := d.Series[ticker]
	if !ok || row < 0 || row >= len(d.Dates) {
		return contracts.NaN
	}
	col := s.Column(f)
	if col == nil {
		return contracts.NaN
	}
	return col[row]
}

// First returns the first date; ok is false for an empty dataset
func (d *Dataset) First() (time.Time, bool) {
	if len(d.Dates) == 0 {
		return time.Time{}, false
	}
	return d.Dates[0], true
}
