package returns

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/dataset"
	"github.com/wonny/ewreturns/internal/schedule"
)

var nan = math.NaN()

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type column struct {
	ticker string
	close  []float64
	adj    []float64 // defaults to close
	dist   []float64 // defaults to no events
}

func build(dates []time.Time, cols ...column) *dataset.Dataset {
	ds := &dataset.Dataset{Dates: dates, Series: map[string]*dataset.Series{}}
	n := len(dates)
	fill := func(v []float64) []float64 {
		if v != nil {
			return append([]float64(nil), v...)
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = nan
		}
		return out
	}
	for _, c := range cols {
		adj := c.adj
		if adj == nil {
			adj = c.close
		}
		ds.Tickers = append(ds.Tickers, c.ticker)
		ds.Series[c.ticker] = &dataset.Series{
			Open:         fill(c.close),
			High:         fill(c.close),
			Low:          fill(c.close),
			Close:        fill(c.close),
			AdjClose:     fill(adj),
			Volume:       fill(nil),
			Distribution: fill(c.dist),
			Action:       make([]string, n),
		}
	}
	return ds
}

func compute(t *testing.T, ds *dataset.Dataset, start, end time.Time, capital string, mode contracts.Mode, opts Options) *AnnotatedDataset {
	t.Helper()
	sched, err := schedule.Generate(ds, start, end)
	require.NoError(t, err)
	out, err := Compute(ds, sched, ds.Tickers, decimal.RequireFromString(capital), mode, opts)
	require.NoError(t, err)
	return out
}

// twoYears spans two rebalance periods: [2020-06-01, 2020-12-31], (2020-12-31, 2021-06-30]
var twoYears = []time.Time{
	day(2020, 6, 1), day(2020, 9, 1), day(2020, 12, 31),
	day(2021, 3, 1), day(2021, 6, 30),
}

func TestScenarioEqualAllocation(t *testing.T) {
	dates := []time.Time{day(2020, 1, 2), day(2020, 1, 3), day(2020, 1, 6), day(2020, 1, 7)}
	ds := build(dates,
		column{ticker: "AAA", close: []float64{10, 11, 12, 13}},
		column{ticker: "BBB", close: []float64{20, 21, 22, 23}},
	)

	for _, mode := range contracts.Modes {
		out := compute(t, ds, day(2020, 1, 1), day(2020, 12, 31), "1000", mode, DefaultOptions())

		require.Len(t, out.States, 1)
		assert.InDelta(t, 50, out.Positions["AAA"].Shares[0], 1e-9)
		assert.InDelta(t, 25, out.Positions["BBB"].Shares[0], 1e-9)
		assert.InDelta(t, 1000, out.PortfolioValue[0], 1e-9)
		assert.InDelta(t, 50*13+25*23, out.FinalValue(), 1e-9)
		assert.InDelta(t, 50*13, out.Positions["AAA"].Value[3], 1e-9)
	}
}

func TestScenarioDistributionSweep(t *testing.T) {
	ds := build(twoYears, column{
		ticker: "AAA",
		close:  []float64{10, 10, 10, 10, 10},
		dist:   []float64{nan, 2.0, nan, nan, nan},
	})
	start, end := day(2020, 1, 1), day(2021, 12, 31)

	price := compute(t, ds, start, end, "1000", contracts.ModePrice, DefaultOptions())
	require.Len(t, price.States, 2)
	assert.InDelta(t, 1000, price.States[0].EndValue, 1e-9)
	assert.InDelta(t, 1000, price.States[1].Capital, 1e-9)
	assert.InDelta(t, 0, price.States[0].Distributions, 1e-9)
	assert.InDelta(t, 1000, price.FinalValue(), 1e-9)

	total := compute(t, ds, start, end, "1000", contracts.ModeTotal, DefaultOptions())
	assert.InDelta(t, 1000, total.States[0].EndValue, 1e-9)
	assert.InDelta(t, 2.0, total.States[0].Distributions, 1e-9)
	assert.InDelta(t, 1002, total.States[1].Capital, 1e-9)
	assert.InDelta(t, 100.2, total.States[1].Shares["AAA"], 1e-9)
	assert.InDelta(t, 1002, total.FinalValue(), 1e-9)
	assert.InDelta(t, 1002, total.EndingCapital(), 1e-9)
}

func TestSweepPerShare(t *testing.T) {
	ds := build(twoYears, column{
		ticker: "AAA",
		close:  []float64{10, 10, 10, 10, 10},
		dist:   []float64{nan, 2.0, nan, nan, nan},
	})

	out := compute(t, ds, day(2020, 1, 1), day(2021, 12, 31), "1000", contracts.ModeTotal,
		Options{PriceField: dataset.FieldClose, Sweep: SweepPerShare})
	assert.InDelta(t, 200, out.States[0].Distributions, 1e-9)
	assert.InDelta(t, 1200, out.States[1].Capital, 1e-9)
}

func TestBoundaryDistributionCountedOnce(t *testing.T) {
	// event on the boundary date belongs to the closing period only
	ds := build(twoYears, column{
		ticker: "AAA",
		close:  []float64{10, 10, 10, 10, 10},
		dist:   []float64{nan, nan, 1.5, nan, nan},
	})

	out := compute(t, ds, day(2020, 1, 1), day(2021, 12, 31), "1000", contracts.ModeTotal, DefaultOptions())
	assert.InDelta(t, 1.5, out.States[0].Distributions, 1e-9)
	assert.InDelta(t, 0, out.States[1].Distributions, 1e-9)
}

func TestScenarioGapAtPeriodStart(t *testing.T) {
	ds := build(twoYears,
		column{ticker: "AAA", close: []float64{10, 12, 14, 15, 16}},
		column{ticker: "BBB", close: []float64{20, 22, nan, 24, 25}},
	)

	out := compute(t, ds, day(2020, 1, 1), day(2021, 12, 31), "1000", contracts.ModePrice, DefaultOptions())
	require.Len(t, out.States, 2)

	p0, p1 := out.States[0], out.States[1]
	assert.Equal(t, []string{"AAA", "BBB"}, p0.Eligible)
	// BBB has no row on 2020-12-31: last observed price carries to the period end
	assert.InDelta(t, 50*14+25*22, p0.EndValue, 1e-9)

	// and makes it ineligible for the next period instead of a zero price
	assert.Equal(t, []string{"AAA"}, p1.Eligible)
	assert.Equal(t, 0.0, p1.Shares["BBB"])
	assert.InDelta(t, p0.EndValue/14, p1.Shares["AAA"], 1e-9)
	assert.Equal(t, 0.0, out.Positions["BBB"].Shares[4])
	assert.Equal(t, 0.0, out.Positions["BBB"].Value[4])
	assert.InDelta(t, p1.Shares["AAA"]*16, out.FinalValue(), 1e-9)
}

func TestNonPositivePriceGetsNoShares(t *testing.T) {
	ds := build(twoYears,
		column{ticker: "AAA", close: []float64{10, 11, 12, 13, 14}},
		column{ticker: "ZERO", close: []float64{0, 5, 0, 5, 5}},
		column{ticker: "LATE", close: []float64{nan, nan, 8, 9, 10}},
	)

	out := compute(t, ds, day(2020, 1, 1), day(2021, 12, 31), "1000", contracts.ModeTotal, DefaultOptions())

	for _, s := range out.States {
		for ticker, shares := range s.Shares {
			price := ds.Value(ticker, dataset.FieldClose, s.StartRow)
			if math.IsNaN(price) || price <= 0 {
				assert.Equal(t, 0.0, shares, "period %d %s", s.Period, ticker)
			} else {
				assert.Greater(t, shares, 0.0)
			}
		}
	}
	assert.Equal(t, []string{"AAA"}, out.States[0].Eligible)
	assert.Equal(t, []string{"AAA", "LATE"}, out.States[1].Eligible)
}

func TestDegeneratePeriodHoldsCapital(t *testing.T) {
	ds := build(twoYears,
		column{ticker: "AAA", close: []float64{0, 11, 12, 13, 14}},
	)

	out := compute(t, ds, day(2020, 1, 1), day(2021, 12, 31), "1000", contracts.ModePrice, DefaultOptions())
	require.Len(t, out.States, 2)

	assert.True(t, out.States[0].Degenerate)
	for row := 0; row <= 2; row++ {
		assert.InDelta(t, 1000, out.PortfolioValue[row], 1e-9)
	}
	assert.InDelta(t, 1000, out.States[1].Capital, 1e-9)
	assert.False(t, out.States[1].Degenerate)
	assert.InDelta(t, 1000.0/12*14, out.FinalValue(), 1e-9)
}

func TestCapitalConservationProperties(t *testing.T) {
	dates := []time.Time{
		day(2019, 3, 1), day(2019, 7, 1), day(2019, 12, 31),
		day(2020, 4, 1), day(2020, 12, 31),
		day(2021, 2, 1), day(2021, 8, 2),
	}
	ds := build(dates,
		column{ticker: "AAA", close: []float64{10, 12, 9, 11, 15, 14, 18}, dist: []float64{nan, 0.3, nan, 0.3, nan, 0.4, nan}},
		column{ticker: "BBB", close: []float64{50, 48, 55, 60, 58, 61, 65}},
		column{ticker: "CCC", close: []float64{nan, 3, 3.5, nan, 4, 4.2, 4.1}, dist: []float64{nan, nan, nan, nan, 0.1, nan, nan}},
	)

	for _, mode := range contracts.Modes {
		out := compute(t, ds, day(2019, 1, 1), day(2021, 12, 31), "10000", mode, DefaultOptions())
		require.Len(t, out.States, 3)

		for i, s := range out.States {
			// allocation sums to capital
			sum := 0.0
			for _, ticker := range s.Eligible {
				sum += s.Shares[ticker] * s.StartPrices[ticker]
			}
			assert.InEpsilon(t, s.Capital, sum, 1e-6, "period %d", i)

			// end value is the portfolio value on the period's last row
			assert.InDelta(t, out.PortfolioValue[s.EndRow], s.EndValue, 1e-9)

			if i+1 < len(out.States) {
				want := s.EndValue
				if mode == contracts.ModeTotal {
					want += s.Distributions
				}
				assert.InDelta(t, want, out.States[i+1].Capital, 1e-9)
			}
		}
	}
}

func TestPriceAndTotalMatchWithoutDistributions(t *testing.T) {
	ds := build(twoYears,
		column{ticker: "AAA", close: []float64{10, 12, 14, 15, 16}},
		column{ticker: "BBB", close: []float64{20, 18, 17, 24, 25}},
	)

	price := compute(t, ds, day(2020, 1, 1), day(2021, 12, 31), "1000", contracts.ModePrice, DefaultOptions())
	total := compute(t, ds, day(2020, 1, 1), day(2021, 12, 31), "1000", contracts.ModeTotal, DefaultOptions())

	require.Equal(t, len(price.PortfolioValue), len(total.PortfolioValue))
	for i := range price.PortfolioValue {
		assert.Equal(t, price.PortfolioValue[i], total.PortfolioValue[i], "row %d", i)
	}
}

func TestRunsAreIndependent(t *testing.T) {
	ds := build(twoYears,
		column{ticker: "AAA", close: []float64{10, 10, 10, 10, 10}, dist: []float64{nan, 2, nan, nan, nan}},
	)
	before := append([]float64(nil), ds.Series["AAA"].Close...)

	price := compute(t, ds, day(2020, 1, 1), day(2021, 12, 31), "1000", contracts.ModePrice, DefaultOptions())
	total := compute(t, ds, day(2020, 1, 1), day(2021, 12, 31), "1000", contracts.ModeTotal, DefaultOptions())

	assert.Equal(t, before, ds.Series["AAA"].Close)
	assert.NotEqual(t, price.FinalValue(), total.FinalValue())

	price.PortfolioValue[0] = -1
	price.Positions["AAA"].Shares[0] = -1
	assert.InDelta(t, 1000, total.PortfolioValue[0], 1e-9)
	assert.InDelta(t, 100, total.Positions["AAA"].Shares[0], 1e-9)
}

func TestAdjCloseReference(t *testing.T) {
	ds := build(twoYears[:3], column{
		ticker: "AAA",
		close:  []float64{10, 10, 10},
		adj:    []float64{8, 9, 10},
	})

	out := compute(t, ds, day(2020, 1, 1), day(2020, 12, 31), "800", contracts.ModePrice,
		Options{PriceField: dataset.FieldAdjClose, Sweep: SweepAmount})
	assert.InDelta(t, 100, out.States[0].Shares["AAA"], 1e-9)
	assert.InDelta(t, 1000, out.FinalValue(), 1e-9)
}

func TestReferencePricePerMode(t *testing.T) {
	ds := build(twoYears[:3], column{
		ticker: "AAA",
		close:  []float64{10, 10, 10},
		adj:    []float64{8, 9, 10},
	})

	tests := []struct {
		name       string
		mode       contracts.Mode
		opts       Options
		wantField  dataset.Field
		wantShares float64
		wantFinal  float64
	}{
		{"total values on adj close", contracts.ModeTotal, DefaultOptions(), dataset.FieldAdjClose, 100, 1000},
		{"price values on close", contracts.ModePrice, DefaultOptions(), dataset.FieldClose, 80, 800},
		{"total with close override", contracts.ModeTotal, Options{PriceField: dataset.FieldClose}, dataset.FieldClose, 80, 800},
		{"zero options", contracts.ModeTotal, Options{}, dataset.FieldAdjClose, 100, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := compute(t, ds, day(2020, 1, 1), day(2020, 12, 31), "800", tt.mode, tt.opts)
			assert.Equal(t, tt.wantField, out.Options.PriceField)
			assert.Equal(t, SweepAmount, out.Options.Sweep)
			assert.InDelta(t, tt.wantShares, out.States[0].Shares["AAA"], 1e-9)
			assert.InDelta(t, tt.wantFinal, out.FinalValue(), 1e-9)
		})
	}
}

func TestOptionsForModeKeepsSweep(t *testing.T) {
	got := Options{Sweep: SweepPerShare}.ForMode(contracts.ModeTotal)
	assert.Equal(t, Options{PriceField: dataset.FieldAdjClose, Sweep: SweepPerShare}, got)
}

func TestComputeValidation(t *testing.T) {
	ds := build(twoYears, column{ticker: "AAA", close: []float64{10, 10, 10, 10, 10}})
	sched, err := schedule.Generate(ds, day(2020, 1, 1), day(2021, 12, 31))
	require.NoError(t, err)

	_, err = Compute(ds, sched, ds.Tickers, decimal.Zero, contracts.ModePrice, DefaultOptions())
	assert.True(t, errors.Is(err, contracts.ErrInvalidCapital))

	_, err = Compute(ds, sched, ds.Tickers, decimal.NewFromInt(-5), contracts.ModePrice, DefaultOptions())
	assert.True(t, errors.Is(err, contracts.ErrInvalidCapital))

	_, err = Compute(ds, sched, ds.Tickers, decimal.NewFromInt(1000), contracts.Mode("gross"), DefaultOptions())
	assert.True(t, errors.Is(err, contracts.ErrUnknownMode))

	_, err = Compute(ds, sched, nil, decimal.NewFromInt(1000), contracts.ModePrice, DefaultOptions())
	assert.True(t, errors.Is(err, contracts.ErrNoInstruments))

	_, err = Compute(ds, sched, []string{"ZZZ"}, decimal.NewFromInt(1000), contracts.ModePrice, DefaultOptions())
	assert.Error(t, err)

	_, err = Compute(ds, sched, ds.Tickers, decimal.NewFromInt(1000), contracts.ModePrice, Options{PriceField: dataset.FieldVolume})
	assert.Error(t, err)
}

func TestTagsAndRowOwnership(t *testing.T) {
	ds := build(twoYears,
		column{ticker: "AAA", close: []float64{10, 20, 40, 40, 80}},
	)
	out := compute(t, ds, day(2020, 1, 1), day(2021, 12, 31), "1000", contracts.ModePrice, DefaultOptions())

	assert.Equal(t, []int{0, 0, 0, 1, 1}, out.Tags)
	// the boundary row shows the closing period's holdings
	assert.InDelta(t, 100, out.Positions["AAA"].Shares[2], 1e-9)
	assert.InDelta(t, 4000, out.PortfolioValue[2], 1e-9)
	assert.InDelta(t, 100, out.Positions["AAA"].Shares[3], 1e-9)
	assert.InDelta(t, 8000, out.FinalValue(), 1e-9)
}
