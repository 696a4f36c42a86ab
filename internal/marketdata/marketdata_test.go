package marketdata

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/pkg/config"
	"github.com/wonny/ewreturns/pkg/database"
	"github.com/wonny/ewreturns/pkg/logger"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// memCache is an in-memory Cache storing JSON like Redis does
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	c.ttls[key] = ttl
	return nil
}

func sampleSource() *Memory {
	return NewMemory().
		AddPrices("SPY",
			contracts.PriceRow{Date: day(2020, 1, 2), Open: 1, High: 2, Low: 0.5, Close: 1.5, AdjClose: 1.4, Volume: contracts.NaN},
			contracts.PriceRow{Date: day(2020, 1, 3), Open: 1.5, High: 2, Low: 1, Close: 1.8, AdjClose: 1.7, Volume: 100},
		).
		AddDistributions("SPY", contracts.DistributionEvent{Date: day(2020, 1, 3), Type: contracts.DistributionDividend, Amount: 0.25})
}

func TestMemory(t *testing.T) {
	src := sampleSource()
	ctx := context.Background()

	rows, err := src.FetchPrices(ctx, "spy", day(2020, 1, 3), day(2020, 1, 31))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, day(2020, 1, 3), rows[0].Date)

	_, err = src.FetchPrices(ctx, "NOPE", day(2020, 1, 1), day(2020, 1, 31))
	assert.True(t, errors.Is(err, contracts.ErrInstrumentNotFound))

	boom := errors.New("timeout")
	src.Fail("SPY", boom)
	_, err = src.FetchDistributions(ctx, "SPY", day(2020, 1, 1), day(2020, 1, 31))
	assert.Equal(t, boom, err)
	assert.Equal(t, 2, src.Calls("SPY"))
}

func TestCachedServesSecondCallFromCache(t *testing.T) {
	src := sampleSource()
	cache := newMemCache()
	cached := NewCached(src, cache, 24*time.Hour, logger.Nop())
	cached.now = func() time.Time { return day(2024, 1, 1) }
	ctx := context.Background()

	first, err := cached.FetchPrices(ctx, "SPY", day(2020, 1, 1), day(2020, 1, 31))
	require.NoError(t, err)
	second, err := cached.FetchPrices(ctx, "SPY", day(2020, 1, 1), day(2020, 1, 31))
	require.NoError(t, err)

	assert.Equal(t, 1, src.Calls("SPY"))
	require.Len(t, second, 2)
	assert.True(t, contracts.IsMissing(second[0].Volume))
	assert.InDelta(t, first[1].Close, second[1].Close, 1e-12)
	assert.Equal(t, first[0].Date, second[0].Date)

	for _, ttl := range cache.ttls {
		assert.Equal(t, 24*time.Hour, ttl)
	}

	ev1, err := cached.FetchDistributions(ctx, "SPY", day(2020, 1, 1), day(2020, 1, 31))
	require.NoError(t, err)
	ev2, err := cached.FetchDistributions(ctx, "SPY", day(2020, 1, 1), day(2020, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, ev1, ev2)
	assert.Equal(t, 2, src.Calls("SPY"))
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	src := NewMemory()
	cached := NewCached(src, newMemCache(), time.Hour, logger.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := cached.FetchPrices(ctx, "NOPE", day(2020, 1, 1), day(2020, 1, 31))
		assert.True(t, errors.Is(err, contracts.ErrInstrumentNotFound))
	}
	assert.Equal(t, 2, src.Calls("NOPE"))
}

func TestCachedRecentRangeShortTTL(t *testing.T) {
	cached := NewCached(NewMemory(), newMemCache(), 24*time.Hour, logger.Nop())
	cached.now = func() time.Time { return day(2020, 2, 3) }

	assert.Less(t, cached.ttlFor(day(2020, 2, 1)), 24*time.Hour)
	assert.Equal(t, 24*time.Hour, cached.ttlFor(day(2019, 12, 31)))
}

func TestCollectorFetchAll(t *testing.T) {
	src := sampleSource().AddPrices("AGG", contracts.PriceRow{Date: day(2020, 1, 2), Close: 100})
	c := NewCollector(src, logger.Nop())

	instruments := []contracts.Instrument{{Ticker: "SPY"}, {Ticker: "NOPE"}, {Ticker: "AGG"}}
	results := c.FetchAll(context.Background(), instruments, day(2020, 1, 1), day(2020, 12, 31), 2)

	require.Len(t, results, 3)
	assert.Equal(t, "SPY", results[0].Ticker)
	assert.Equal(t, 2, results[0].PriceCount)
	assert.Equal(t, 1, results[0].DistributionCount)
	assert.True(t, results[1].NotFound)
	assert.Error(t, results[1].Error)
	assert.Equal(t, "AGG", results[2].Ticker)
	assert.NoError(t, results[2].Error)
}

func TestMergeEvents(t *testing.T) {
	events := []contracts.DistributionEvent{
		{Date: day(2020, 3, 2), Type: contracts.DistributionDividend, Amount: 0.5},
		{Date: day(2020, 3, 2), Type: contracts.DistributionDividend, Amount: 0.25},
		{Date: day(2020, 6, 1), Type: contracts.DistributionDividend, Amount: 1},
	}
	merged := mergeEvents(events)
	require.Len(t, merged, 2)
	assert.InDelta(t, 0.75, merged[0].Amount, 1e-12)
}

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{MarketData: config.MarketDataConfig{
		Provider:      config.ProviderTiingo,
		TiingoBaseURL: "http://localhost",
		YahooBaseURL:  "http://localhost",
	}}

	src, err := NewProvider(cfg, "", logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "tiingo", src.Name())

	src, err = NewProvider(cfg, config.ProviderYahoo, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "yahoo", src.Name())

	_, err = NewProvider(cfg, "quandl", logger.Nop())
	assert.Error(t, err)
}

func TestLayer(t *testing.T) {
	mem := NewMemory()

	bare := Layer(mem, nil, nil, time.Hour, logger.Nop())
	assert.Same(t, mem, bare)

	cached := Layer(mem, nil, newMemCache(), time.Hour, logger.Nop())
	assert.IsType(t, &Cached{}, cached)
	assert.Equal(t, "memory", cached.Name())
}

func TestStoreReadThrough(t *testing.T) {
	if testing.Short() || os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	ctx := context.Background()

	db, err := database.New(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(ctx, db.Pool))

	src := sampleSource()
	store := NewStore(src, db.Pool, logger.Nop())

	_, err = db.Pool.Exec(ctx, `DELETE FROM market.coverage WHERE provider = 'memory'`)
	require.NoError(t, err)

	first, err := store.FetchPrices(ctx, "SPY", day(2020, 1, 1), day(2020, 1, 31))
	require.NoError(t, err)
	second, err := store.FetchPrices(ctx, "SPY", day(2020, 1, 1), day(2020, 1, 31))
	require.NoError(t, err)

	assert.Equal(t, 1, src.Calls("SPY"))
	require.Len(t, second, len(first))
	assert.True(t, contracts.IsMissing(second[0].Volume))

	events, err := store.FetchDistributions(ctx, "SPY", day(2020, 1, 1), day(2020, 1, 31))
	require.NoError(t, err)
	require.Len(t, events, 1)
}
