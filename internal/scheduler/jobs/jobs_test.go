package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/marketdata"
	"github.com/wonny/ewreturns/internal/pipeline"
	"github.com/wonny/ewreturns/pkg/logger"
)

type fakeRunner struct {
	got pipeline.Request
	err error
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{Good: []string{"AAA"}}, nil
}

func TestReturnsJob(t *testing.T) {
	runner := &fakeRunner{}
	now := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)
	request := func(at time.Time) (pipeline.Request, error) {
		return ClampToToday(pipeline.Request{
			Name:    "nightly",
			Start:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			End:     time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC),
			Capital: decimal.NewFromInt(1000),
		}, at), nil
	}

	job := NewReturnsJob(runner, request, "0 30 18 * * 1-5", logger.Nop())
	job.now = func() time.Time { return now }

	assert.Equal(t, "returns", job.Name())
	assert.Equal(t, "0 30 18 * * 1-5", job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), runner.got.End)

	runner.err = errors.New("boom")
	assert.ErrorContains(t, job.Run(context.Background()), "boom")

	bad := NewReturnsJob(runner, func(time.Time) (pipeline.Request, error) {
		return pipeline.Request{}, errors.New("bad profile")
	}, "@daily", logger.Nop())
	assert.ErrorContains(t, bad.Run(context.Background()), "bad profile")
}

func TestClampToTodayKeepsPastEnd(t *testing.T) {
	end := time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)
	req := ClampToToday(pipeline.Request{End: end}, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, end, req.End)
}

func TestWarmJob(t *testing.T) {
	today := contracts.TradingDay(time.Now())
	mem := marketdata.NewMemory().
		AddPrices("AAA", contracts.PriceRow{Date: today.AddDate(0, 0, -1), Close: 10}).
		Fail("BBB", errors.New("upstream 500"))
	collector := marketdata.NewCollector(mem, logger.Nop())

	list := func(tickers ...string) func() ([]contracts.Instrument, error) {
		return func() ([]contracts.Instrument, error) {
			var out []contracts.Instrument
			for _, t := range tickers {
				out = append(out, contracts.NewInstrument(t))
			}
			return out, nil
		}
	}

	job := NewWarmJob(collector, list("AAA", "BBB", "ZZZ"), 30*24*time.Hour, 2, "@daily", logger.Nop())
	assert.Equal(t, "marketdata_warm", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, mem.Calls("AAA"))

	allFail := NewWarmJob(collector, list("BBB"), 24*time.Hour, 1, "@daily", logger.Nop())
	assert.Error(t, allFail.Run(context.Background()))

	broken := NewWarmJob(collector, func() ([]contracts.Instrument, error) {
		return nil, errors.New("unreadable")
	}, 24*time.Hour, 1, "@daily", logger.Nop())
	assert.ErrorContains(t, broken.Run(context.Background()), "unreadable")
}
