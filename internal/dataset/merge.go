package dataset

import (
	"sort"
	"strings"
	"time"

	"github.com/wonny/ewreturns/internal/contracts"
)

// instrumentData is one instrument's fetched tables
type instrumentData struct {
	ticker        string
	prices        []contracts.PriceRow
	distributions []contracts.DistributionEvent
}

// merge outer-joins instruments on date. Within an instrument a repeated
// date keeps its first row; distributions are left-joined onto the price
// rows and summed per date.
func merge(items []instrumentData, start, end time.Time) *Dataset {
	type keyed struct {
		rows  map[time.Time]contracts.PriceRow
		order []time.Time
	}

	perTicker := make([]keyed, len(items))
	dateSet := make(map[time.Time]struct{})

	for i, item := range items {
		k := keyed{rows: make(map[time.Time]contracts.PriceRow)}
		for _, r := range item.prices {
			d := contracts.TradingDay(r.Date)
			if d.Before(start) || d.After(end) {
				continue
			}
			if _, dup := k.rows[d]; dup {
				continue
			}
			r.Date = d
			k.rows[d] = r
			k.order = append(k.order, d)
			dateSet[d] = struct{}{}
		}
		perTicker[i] = k
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	ds := &Dataset{
		Dates:   dates,
		Tickers: make([]string, 0, len(items)),
		Series:  make(map[string]*Series, len(items)),
	}

	for i, item := range items {
		s := newSeries(len(dates))
		for _, d := range perTicker[i].order {
			r := perTicker[i].rows[d]
			row := index[d]
			s.Open[row] = r.Open
			s.High[row] = r.High
			s.Low[row] = r.Low
			s.Close[row] = r.Close
			s.AdjClose[row] = r.AdjClose
			s.Volume[row] = r.Volume
		}

		for _, e := range item.distributions {
			d := contracts.TradingDay(e.Date)
			if _, ok := perTicker[i].rows[d]; !ok {
				continue
			}
			row := index[d]
			if contracts.IsMissing(s.Distribution[row]) {
				s.Distribution[row] = 0
			}
			s.Distribution[row] += e.Amount
			s.Action[row] = joinAction(s.Action[row], e.Type)
		}

		ds.Tickers = append(ds.Tickers, item.ticker)
		ds.Series[item.ticker] = s
	}

	return ds
}

func joinAction(existing, typ string) string {
	if typ == "" {
		typ = contracts.DistributionDividend
	}
	if existing == "" {
		return typ
	}
	for _, part := range strings.Split(existing, "|") {
		if part == typ {
			return existing
		}
	}
	return existing + "|" + typ
}
