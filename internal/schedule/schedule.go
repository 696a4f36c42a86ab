package schedule

import (
	"fmt"
	"time"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/dataset"
)

// Schedule is the ordered list of rebalance dates. Element 0 is the first
// dataset date; each further element is the last dataset date on or
// before 31 December of one calendar year.
// ⭐ SSOT: 리밸런싱 일정은 여기서만 생성
type Schedule struct {
	Dates []time.Time
}

// Period is one rebalance period. Valuation covers rows StartRow..EndRow
// inclusive, so the boundary row is shared with the neighbour: capital
// rolls at its close and is reinvested at the same close.
type Period struct {
	Index    int
	Start    time.Time
	End      time.Time
	StartRow int
	EndRow   int
}

// Generate derives the schedule for the calendar years of [start, end].
// It fails with ErrEmptyRebalancePeriod when a year has no dataset date
// on or before 31 December, or when that date does not move past the
// previous boundary. A first dataset date that is already its year's last
// trading date opens the schedule without an extra boundary.
func Generate(ds *dataset.Dataset, start, end time.Time) (*Schedule, error) {
	first, ok := ds.First()
	if !ok {
		return nil, fmt.Errorf("%w: dataset has no rows", contracts.ErrEmptyRebalancePeriod)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", contracts.ErrInvalidRange,
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	dates := []time.Time{first}
	for year := start.Year(); year <= end.Year(); year++ {
		cutoff := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
		d, ok := lastOnOrBefore(ds.Dates, cutoff)
		if !ok {
			return nil, fmt.Errorf("%w: no trading date on or before %s", contracts.ErrEmptyRebalancePeriod, cutoff.Format("2006-01-02"))
		}
		prev := dates[len(dates)-1]
		if year == start.Year() && len(dates) == 1 && d.Equal(prev) {
			// the window opens on this year's last trading date
			continue
		}
		if !d.After(prev) {
			return nil, fmt.Errorf("%w: year %d has no trading date after %s", contracts.ErrEmptyRebalancePeriod, year, prev.Format("2006-01-02"))
		}
		dates = append(dates, d)
	}
	if len(dates) < 2 {
		return nil, fmt.Errorf("%w: window %s..%s holds no rebalance period", contracts.ErrEmptyRebalancePeriod,
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	return &Schedule{Dates: dates}, nil
}

// lastOnOrBefore returns the last date <= cutoff in ascending dates
func lastOnOrBefore(dates []time.Time, cutoff time.Time) (time.Time, bool) {
	for i := len(dates) - 1; i >= 0; i-- {
		if !dates[i].After(cutoff) {
			return dates[i], true
		}
	}
	return time.Time{}, false
}

// NumPeriods returns len(Dates)-1
func (s *Schedule) NumPeriods() int {
	if len(s.Dates) == 0 {
		return 0
	}
	return len(s.Dates) - 1
}

// IsRebalanceDate reports whether d is one of the schedule dates
func (s *Schedule) IsRebalanceDate(d time.Time) bool {
	for _, x := range s.Dates {
		if x.Equal(d) {
			return true
		}
	}
	return false
}

// Tag assigns every date the period that closes over it: period 0 owns
// [d0, d1], period t > 0 owns (dt, dt+1]. Dates outside the schedule get -1.
func Tag(dates []time.Time, s *Schedule) []int {
	tags := make([]int, len(dates))
	n := s.NumPeriods()
	t := 0
	for i, d := range dates {
		if n == 0 || d.Before(s.Dates[0]) {
			tags[i] = -1
			continue
		}
		for t < n && d.After(s.Dates[t+1]) {
			t++
		}
		if t >= n {
			tags[i] = -1
			continue
		}
		tags[i] = t
	}
	return tags
}

// Bounds returns the row range of every period
func Bounds(ds *dataset.Dataset, s *Schedule) ([]Period, error) {
	periods := make([]Period, 0, s.NumPeriods())
	for t := 0; t < s.NumPeriods(); t++ {
		startRow, ok := ds.RowOf(s.Dates[t])
		if !ok {
			return nil, fmt.Errorf("%w: %s not in dataset", contracts.ErrEmptyRebalancePeriod, s.Dates[t].Format("2006-01-02"))
		}
		endRow, ok := ds.RowOf(s.Dates[t+1])
		if !ok {
			return nil, fmt.Errorf("%w: %s not in dataset", contracts.ErrEmptyRebalancePeriod, s.Dates[t+1].Format("2006-01-02"))
		}
		periods = append(periods, Period{
			Index:    t,
			Start:    s.Dates[t],
			End:      s.Dates[t+1],
			StartRow: startRow,
			EndRow:   endRow,
		})
	}
	return periods, nil
}
