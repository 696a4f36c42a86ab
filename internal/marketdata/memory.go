package marketdata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wonny/ewreturns/internal/contracts"
)

// Memory is an in-process source holding fixed data per ticker.
// Unknown tickers report ErrInstrumentNotFound.
type Memory struct {
	mu            sync.Mutex
	prices        map[string][]contracts.PriceRow
	distributions map[string][]contracts.DistributionEvent
	failures      map[string]error
	calls         map[string]int
}

var _ contracts.MarketDataSource = (*Memory)(nil)

// NewMemory creates an empty Memory source
func NewMemory() *Memory {
	return &Memory{
		prices:        make(map[string][]contracts.PriceRow),
		distributions: make(map[string][]contracts.DistributionEvent),
		failures:      make(map[string]error),
		calls:         make(map[string]int),
	}
}

// Name implements contracts.MarketDataSource
func (m *Memory) Name() string { return "memory" }

// AddPrices registers bars for ticker
func (m *Memory) AddPrices(ticker string, rows ...contracts.PriceRow) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := strings.ToUpper(ticker)
	m.prices[t] = append(m.prices[t], rows...)
	return m
}

// AddDistributions registers distribution events for ticker
func (m *Memory) AddDistributions(ticker string, events ...contracts.DistributionEvent) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := strings.ToUpper(ticker)
	m.distributions[t] = append(m.distributions[t], events...)
	return m
}

// Fail makes every fetch for ticker return err
func (m *Memory) Fail(ticker string, err error) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[strings.ToUpper(ticker)] = err
	return m
}

// Calls returns how many fetches reached ticker
func (m *Memory) Calls(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[strings.ToUpper(ticker)]
}

func (m *Memory) lookup(ticker string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := strings.ToUpper(ticker)
	m.calls[t]++
	if err, ok := m.failures[t]; ok {
		return t, err
	}
	if _, ok := m.prices[t]; !ok {
		return t, fmt.Errorf("memory %s: %w", t, contracts.ErrInstrumentNotFound)
	}
	return t, nil
}

// FetchPrices implements contracts.MarketDataSource
func (m *Memory) FetchPrices(ctx context.Context, ticker string, start, end time.Time) ([]contracts.PriceRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.lookup(ticker)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := []contracts.PriceRow{}
	for _, r := range m.prices[t] {
		if inRange(r.Date, start, end) {
			out = append(out, r)
		}
	}
	return out, nil
}

// FetchDistributions implements contracts.MarketDataSource
func (m *Memory) FetchDistributions(ctx context.Context, ticker string, start, end time.Time) ([]contracts.DistributionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.lookup(ticker)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := []contracts.DistributionEvent{}
	for _, e := range m.distributions[t] {
		if inRange(e.Date, start, end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func inRange(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}
