package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/marketdata"
	"github.com/wonny/ewreturns/pkg/logger"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(d time.Time, close float64) contracts.PriceRow {
	return contracts.PriceRow{Date: d, Open: close, High: close, Low: close, Close: close, AdjClose: close, Volume: 1000}
}

func div(d time.Time, amount float64) contracts.DistributionEvent {
	return contracts.DistributionEvent{Date: d, Type: contracts.DistributionDividend, Amount: amount}
}

func instruments(tickers ...string) []contracts.Instrument {
	out := make([]contracts.Instrument, len(tickers))
	for i, t := range tickers {
		out[i] = contracts.NewInstrument(t)
	}
	return out
}

// fingerprint renders every value so NaN compares equal to NaN
func fingerprint(ds *Dataset) string {
	var b strings.Builder
	for _, d := range ds.Dates {
		b.WriteString(d.Format("2006-01-02"))
		b.WriteByte(';')
	}
	for _, t := range ds.Tickers {
		s := ds.Series[t]
		b.WriteString(t)
		for _, col := range [][]float64{s.Open, s.High, s.Low, s.Close, s.AdjClose, s.Volume, s.Distribution} {
			for _, v := range col {
				b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
				b.WriteByte(',')
			}
		}
		b.WriteString(strings.Join(s.Action, ","))
	}
	return b.String()
}

func TestBuildMergesInstruments(t *testing.T) {
	src := marketdata.NewMemory().
		AddPrices("AAA", bar(day(2020, 1, 2), 10), bar(day(2020, 1, 3), 11), bar(day(2020, 1, 3), 99), bar(day(2020, 1, 6), 12)).
		AddPrices("BBB", bar(day(2020, 1, 3), 20), bar(day(2020, 1, 7), 21)).
		AddDistributions("AAA", div(day(2020, 1, 3), 0.5), div(day(2020, 1, 3), 0.25), div(day(2020, 1, 4), 9))

	b := NewBuilder(src, 2, logger.Nop())
	ds, good, err := b.Build(context.Background(), instruments("AAA", "BBB"), day(2020, 1, 1), day(2020, 12, 31))
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB"}, good)
	assert.Equal(t, []time.Time{day(2020, 1, 2), day(2020, 1, 3), day(2020, 1, 6), day(2020, 1, 7)}, ds.Dates)

	aaa := ds.Series["AAA"]
	// repeated date keeps the first row
	assert.Equal(t, 11.0, aaa.Close[1])
	// dates only BBB traded are missing for AAA, never zero
	assert.True(t, contracts.IsMissing(aaa.Close[3]))
	assert.True(t, contracts.IsMissing(ds.Series["BBB"].Close[0]))

	// same-day events sum; an event without a price row is dropped
	assert.InDelta(t, 0.75, aaa.Distribution[1], 1e-12)
	assert.Equal(t, contracts.DistributionDividend, aaa.Action[1])
	assert.True(t, contracts.IsMissing(aaa.Distribution[0]))
	total := 0.0
	for _, v := range aaa.Distribution {
		if !contracts.IsMissing(v) {
			total += v
		}
	}
	assert.InDelta(t, 0.75, total, 1e-12)

	row, ok := ds.RowOf(day(2020, 1, 6))
	require.True(t, ok)
	assert.Equal(t, 12.0, ds.Value("AAA", FieldClose, row))
	_, ok = ds.RowOf(day(2020, 1, 4))
	assert.False(t, ok)
	assert.True(t, contracts.IsMissing(ds.Value("ZZZ", FieldClose, 0)))
}

func TestBuildFiltersWindow(t *testing.T) {
	src := marketdata.NewMemory().AddPrices("AAA", bar(day(2019, 12, 31), 9), bar(day(2020, 1, 2), 10))

	ds, _, err := NewBuilder(src, 1, logger.Nop()).Build(context.Background(), instruments("AAA"), day(2020, 1, 1), day(2020, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2020, 1, 2)}, ds.Dates)
}

func TestBuildSkipsUnknownInstrument(t *testing.T) {
	src := marketdata.NewMemory().
		AddPrices("AAA", bar(day(2020, 1, 2), 10)).
		AddPrices("EMPTY")

	var buf bytes.Buffer
	b := NewBuilder(src, 4, logger.NewWithWriter(&buf, "debug"))

	ds, good, err := b.Build(context.Background(), instruments("AAA", "FAKESTOCK", "EMPTY"), day(2020, 1, 1), day(2020, 12, 31))
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA"}, good)
	assert.NotContains(t, ds.Series, "FAKESTOCK")
	assert.NotContains(t, ds.Series, "EMPTY")
	assert.Contains(t, buf.String(), "no data for ticker FAKESTOCK")
	assert.Contains(t, buf.String(), "no data for ticker EMPTY")
	assert.Contains(t, buf.String(), `"included":"AAA"`)
}

func TestBuildIsolatesProviderErrors(t *testing.T) {
	src := marketdata.NewMemory().
		AddPrices("AAA", bar(day(2020, 1, 2), 10)).
		AddPrices("BBB", bar(day(2020, 1, 2), 20)).
		Fail("BBB", errors.New("connection reset"))

	_, good, err := NewBuilder(src, 2, logger.Nop()).Build(context.Background(), instruments("AAA", "BBB"), day(2020, 1, 1), day(2020, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA"}, good)
}

func TestBuildAllFail(t *testing.T) {
	_, _, err := NewBuilder(marketdata.NewMemory(), 2, logger.Nop()).Build(context.Background(), instruments("X", "Y"), day(2020, 1, 1), day(2020, 12, 31))
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrNoInstruments))

	_, _, err = NewBuilder(marketdata.NewMemory(), 2, logger.Nop()).Build(context.Background(), nil, day(2020, 1, 1), day(2020, 12, 31))
	assert.True(t, errors.Is(err, contracts.ErrNoInstruments))
}

func TestBuildInvalidRange(t *testing.T) {
	_, _, err := NewBuilder(marketdata.NewMemory(), 1, logger.Nop()).Build(context.Background(), instruments("AAA"), day(2021, 1, 1), day(2020, 1, 1))
	assert.True(t, errors.Is(err, contracts.ErrInvalidRange))
}

func TestBuildCanceled(t *testing.T) {
	src := marketdata.NewMemory().AddPrices("AAA", bar(day(2020, 1, 2), 10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewBuilder(src, 1, logger.Nop()).Build(ctx, instruments("AAA"), day(2020, 1, 1), day(2020, 12, 31))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBuildDeterministic(t *testing.T) {
	src := marketdata.NewMemory()
	var tickers []string
	for i := 0; i < 20; i++ {
		ticker := fmt.Sprintf("T%02d", i)
		tickers = append(tickers, ticker)
		for d := 0; d < 30; d++ {
			if (d+i)%7 == 0 {
				continue // gaps differ per instrument
			}
			src.AddPrices(ticker, bar(day(2020, 1, 1).AddDate(0, 0, d), float64(10+i+d)))
		}
		src.AddDistributions(ticker, div(day(2020, 1, 10), float64(i)/10))
	}
	src.Fail("T05", errors.New("flaky"))

	b := NewBuilder(src, 5, logger.Nop())
	first, good1, err := b.Build(context.Background(), instruments(tickers...), day(2020, 1, 1), day(2020, 12, 31))
	require.NoError(t, err)
	second, good2, err := b.Build(context.Background(), instruments(tickers...), day(2020, 1, 1), day(2020, 12, 31))
	require.NoError(t, err)

	assert.Equal(t, good1, good2)
	assert.Len(t, good1, 19)
	assert.Equal(t, "T00", good1[0])
	assert.Equal(t, "T19", good1[18])
	assert.Equal(t, fingerprint(first), fingerprint(second))
}
