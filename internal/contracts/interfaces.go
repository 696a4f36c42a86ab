package contracts

import (
	"context"
	"time"
)

// MarketDataSource supplies daily bars and distributions per instrument.
// Both methods return ErrInstrumentNotFound (wrapped) when the provider has
// no such ticker. An empty event list is a valid answer.
// ⭐ SSOT: 시세 조회 인터페이스
type MarketDataSource interface {
	Name() string
	FetchPrices(ctx context.Context, ticker string, start, end time.Time) ([]PriceRow, error)
	FetchDistributions(ctx context.Context, ticker string, start, end time.Time) ([]DistributionEvent, error)
}
