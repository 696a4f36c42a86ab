package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/marketdata"
	"github.com/wonny/ewreturns/pkg/logger"
)

// WarmJob prefetches market data so the next run reads from the store
type WarmJob struct {
	collector   *marketdata.Collector
	instruments func() ([]contracts.Instrument, error)
	lookback    time.Duration
	workers     int
	schedule    string
	logger      *logger.Logger
}

// NewWarmJob creates a new market data warm-up job
func NewWarmJob(collector *marketdata.Collector, instruments func() ([]contracts.Instrument, error), lookback time.Duration, workers int, schedule string, log *logger.Logger) *WarmJob {
	return &WarmJob{
		collector:   collector,
		instruments: instruments,
		lookback:    lookback,
		workers:     workers,
		schedule:    schedule,
		logger:      log,
	}
}

// Name returns the job name
func (j *WarmJob) Name() string {
	return "marketdata_warm"
}

// Schedule returns the cron schedule
func (j *WarmJob) Schedule() string {
	return j.schedule
}

// Run fetches every instrument over the lookback window
func (j *WarmJob) Run(ctx context.Context) error {
	instruments, err := j.instruments()
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}

	to := contracts.TradingDay(time.Now())
	from := to.Add(-j.lookback)

	results := j.collector.FetchAll(ctx, instruments, from, to, j.workers)

	failed := 0
	for _, r := range results {
		if r.Error != nil && !r.NotFound {
			failed++
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed == len(results) && failed > 0 {
		return fmt.Errorf("all %d fetches failed", failed)
	}

	j.logger.WithFields(map[string]interface{}{
		"instruments": len(results),
		"failed":      failed,
	}).Info("Market data warm-up completed")
	return nil
}
