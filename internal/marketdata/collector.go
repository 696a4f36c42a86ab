package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/pkg/logger"
)

// Collector pre-fetches instruments through a source so later runs are
// served from the cache or store
// ⭐ SSOT: 시세 선수집 오케스트레이션은 여기서만
type Collector struct {
	source contracts.MarketDataSource
	logger *logger.Logger
}

// NewCollector creates a new Collector
func NewCollector(source contracts.MarketDataSource, log *logger.Logger) *Collector {
	return &Collector{
		source: source,
		logger: log.WithField("module", "collector"),
	}
}

// FetchResult represents the result of one instrument fetch
type FetchResult struct {
	Ticker            string
	PriceCount        int
	DistributionCount int
	NotFound          bool
	Error             error
}

// FetchAll fetches every instrument with the given number of workers.
// Results come back in input order.
func (c *Collector) FetchAll(ctx context.Context, instruments []contracts.Instrument, from, to time.Time, workers int) []FetchResult {
	if workers < 1 {
		workers = 1
	}

	c.logger.WithFields(map[string]interface{}{
		"instrument_count": len(instruments),
		"from":             from.Format("2006-01-02"),
		"to":               to.Format("2006-01-02"),
		"workers":          workers,
	}).Info("Starting market data collection")

	results := make([]FetchResult, len(instruments))
	jobs := make(chan int, len(instruments))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				results[i] = c.fetchOne(ctx, workerID, instruments[i].Ticker, from, to)
			}
		}(w)
	}

	for i := range instruments {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	success, failed := 0, 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		} else {
			success++
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"success": success,
		"failed":  failed,
		"total":   len(results),
	}).Info("Market data collection completed")

	return results
}

func (c *Collector) fetchOne(ctx context.Context, workerID int, ticker string, from, to time.Time) FetchResult {
	if err := ctx.Err(); err != nil {
		return FetchResult{Ticker: ticker, Error: err}
	}

	fields := map[string]interface{}{"worker": workerID, "ticker": ticker}

	prices, err := c.source.FetchPrices(ctx, ticker, from, to)
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("Failed to fetch prices")
		return FetchResult{Ticker: ticker, Error: err, NotFound: errors.Is(err, contracts.ErrInstrumentNotFound)}
	}

	events, err := c.source.FetchDistributions(ctx, ticker, from, to)
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("Failed to fetch distributions")
		return FetchResult{Ticker: ticker, PriceCount: len(prices), Error: err, NotFound: errors.Is(err, contracts.ErrInstrumentNotFound)}
	}

	c.logger.WithFields(fields).WithField("count", len(prices)).Debug("Fetched instrument")
	return FetchResult{Ticker: ticker, PriceCount: len(prices), DistributionCount: len(events)}
}
