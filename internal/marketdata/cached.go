package marketdata

import (
	"context"
	"time"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/pkg/logger"
	"github.com/wonny/ewreturns/pkg/redis"
)

// Cache is the subset of redis.Cache used here
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

var _ Cache = (*redis.Cache)(nil)

// Cached decorates a source with a Redis cache. Errors are never cached,
// so a not-found ticker is asked again on the next run.
// ⭐ SSOT: 시세 캐시는 여기서만
type Cached struct {
	next   contracts.MarketDataSource
	cache  Cache
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time
}

var _ contracts.MarketDataSource = (*Cached)(nil)

// NewCached wraps next with cache
func NewCached(next contracts.MarketDataSource, cache Cache, ttl time.Duration, log *logger.Logger) *Cached {
	return &Cached{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: log,
		now:    time.Now,
	}
}

// Name implements contracts.MarketDataSource
func (c *Cached) Name() string { return c.next.Name() }

// cachedBar is the JSON form of a PriceRow; NaN is encoded as null
type cachedBar struct {
	Date     time.Time `json:"d"`
	Open     *float64  `json:"o"`
	High     *float64  `json:"h"`
	Low      *float64  `json:"l"`
	Close    *float64  `json:"c"`
	AdjClose *float64  `json:"a"`
	Volume   *float64  `json:"v"`
}

// FetchPrices implements contracts.MarketDataSource
func (c *Cached) FetchPrices(ctx context.Context, ticker string, start, end time.Time) ([]contracts.PriceRow, error) {
	key := redis.PriceKey(c.Name(), ticker, start, end)

	var bars []cachedBar
	if found, err := c.cache.Get(ctx, key, &bars); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
	} else if found {
		return fromCachedBars(bars), nil
	}

	rows, err := c.next.FetchPrices(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, toCachedBars(rows), c.ttlFor(end)); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
	return rows, nil
}

// FetchDistributions implements contracts.MarketDataSource
func (c *Cached) FetchDistributions(ctx context.Context, ticker string, start, end time.Time) ([]contracts.DistributionEvent, error) {
	key := redis.DistributionKey(c.Name(), ticker, start, end)

	var events []contracts.DistributionEvent
	if found, err := c.cache.Get(ctx, key, &events); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
	} else if found {
		if events == nil {
			events = []contracts.DistributionEvent{}
		}
		return events, nil
	}

	events, err := c.next.FetchDistributions(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, events, c.ttlFor(end)); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
	return events, nil
}

// ttlFor keeps ranges that reach into the last week short-lived,
// since the provider may still revise them
func (c *Cached) ttlFor(end time.Time) time.Duration {
	if c.now().Sub(end) < 7*24*time.Hour {
		return redis.TTLShort
	}
	return c.ttl
}

func toCachedBars(rows []contracts.PriceRow) []cachedBar {
	out := make([]cachedBar, len(rows))
	for i, r := range rows {
		out[i] = cachedBar{
			Date:     r.Date,
			Open:     ptr(r.Open),
			High:     ptr(r.High),
			Low:      ptr(r.Low),
			Close:    ptr(r.Close),
			AdjClose: ptr(r.AdjClose),
			Volume:   ptr(r.Volume),
		}
	}
	return out
}

func fromCachedBars(bars []cachedBar) []contracts.PriceRow {
	out := make([]contracts.PriceRow, len(bars))
	for i, b := range bars {
		out[i] = contracts.PriceRow{
			Date:     b.Date.UTC(),
			Open:     deref(b.Open),
			High:     deref(b.High),
			Low:      deref(b.Low),
			Close:    deref(b.Close),
			AdjClose: deref(b.AdjClose),
			Volume:   deref(b.Volume),
		}
	}
	return out
}

// ptr maps NaN to nil
func ptr(v float64) *float64 {
	if contracts.IsMissing(v) {
		return nil
	}
	return &v
}

// deref maps nil to NaN
func deref(p *float64) float64 {
	if p == nil {
		return contracts.NaN
	}
	return *p
}
