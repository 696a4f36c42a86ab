package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/pkg/logger"
)

// Builder fetches every instrument and merges the results into a Dataset
// ⭐ SSOT: 데이터셋 구성은 여기서만
type Builder struct {
	source  contracts.MarketDataSource
	workers int
	logger  *logger.Logger
}

// NewBuilder creates a new Builder running at most workers fetches at once
func NewBuilder(source contracts.MarketDataSource, workers int, log *logger.Logger) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{
		source:  source,
		workers: workers,
		logger:  log.WithField("module", "dataset"),
	}
}

// fetchResult is one instrument's outcome; data is nil when skipped
type fetchResult struct {
	data *instrumentData
	err  error
}

// Build fetches instruments for [start, end] and returns the merged dataset
// and the good tickers in input order. A failing instrument is logged and
// skipped; only context cancellation aborts the build.
func (b *Builder) Build(ctx context.Context, instruments []contracts.Instrument, start, end time.Time) (*Dataset, []string, error) {
	start, end = contracts.TradingDay(start), contracts.TradingDay(end)
	if end.Before(start) {
		return nil, nil, fmt.Errorf("%w: end %s before start %s", contracts.ErrInvalidRange,
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	if len(instruments) == 0 {
		return nil, nil, fmt.Errorf("%w: empty instrument list", contracts.ErrNoInstruments)
	}

	b.logger.WithFields(map[string]interface{}{
		"instrument_count": len(instruments),
		"from":             start.Format("2006-01-02"),
		"to":               end.Format("2006-01-02"),
		"workers":          b.workers,
		"provider":         b.source.Name(),
	}).Info("Building dataset")

	// each slot is written by exactly one goroutine
	results := make([]fetchResult, len(instruments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i, inst := range instruments {
		i := i
		ticker := inst.Ticker
		g.Go(func() error {
			data, err := b.fetch(gctx, ticker, start, end)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = fetchResult{data: data, err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("build dataset: %w", err)
	}

	var items []instrumentData
	var skipped []string
	for i, r := range results {
		ticker := instruments[i].Ticker
		if r.err != nil {
			skipped = append(skipped, ticker)
			if errors.Is(r.err, contracts.ErrInstrumentNotFound) {
				b.logger.WithField("ticker", ticker).Warnf("no data for ticker %s", ticker)
			} else {
				b.logger.WithError(r.err).WithField("ticker", ticker).Warnf("no data for ticker %s", ticker)
			}
			continue
		}
		items = append(items, *r.data)
	}

	if len(items) == 0 {
		return nil, nil, fmt.Errorf("%w: all %d instruments failed", contracts.ErrNoInstruments, len(instruments))
	}

	ds := merge(items, start, end)

	b.logger.WithFields(map[string]interface{}{
		"included": strings.Join(ds.Tickers, ","),
		"skipped":  strings.Join(skipped, ","),
		"rows":     ds.Len(),
	}).Infof("Dataset built with %d of %d instruments", len(ds.Tickers), len(instruments))

	good := append([]string(nil), ds.Tickers...)
	return ds, good, nil
}

// fetch retrieves one instrument. An empty price table counts as not found.
func (b *Builder) fetch(ctx context.Context, ticker string, start, end time.Time) (*instrumentData, error) {
	prices, err := b.source.FetchPrices(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%s: no price rows in range: %w", ticker, contracts.ErrInstrumentNotFound)
	}

	events, err := b.source.FetchDistributions(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	return &instrumentData{ticker: ticker, prices: prices, distributions: events}, nil
}
