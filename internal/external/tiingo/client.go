package tiingo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/pkg/httputil"
	"github.com/wonny/ewreturns/pkg/logger"
)

// Name is the provider name used in cache keys and logs
const Name = "tiingo"

// Client handles communication with the Tiingo end-of-day API
// ⭐ SSOT: Tiingo API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string

	// one /prices response serves both FetchPrices and FetchDistributions
	mu      sync.Mutex
	pending map[string][]dailyBar
	order   []string
}

// maxPending bounds responses held for the paired call
const maxPending = 64

var _ contracts.MarketDataSource = (*Client)(nil)

// NewClient creates a new Tiingo client. The API token is sent as an
// Authorization header on every request.
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL, apiKey string) *Client {
	if apiKey != "" {
		httpClient.WithHeader("Authorization", "Token "+apiKey)
	}
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
		pending:    make(map[string][]dailyBar),
	}
}

// Name implements contracts.MarketDataSource
func (c *Client) Name() string { return Name }

// dailyBar is one element of the /tiingo/daily/{ticker}/prices response
type dailyBar struct {
	Date        string   `json:"date"`
	Open        *float64 `json:"open"`
	High        *float64 `json:"high"`
	Low         *float64 `json:"low"`
	Close       *float64 `json:"close"`
	Volume      *float64 `json:"volume"`
	AdjClose    *float64 `json:"adjClose"`
	DivCash     float64  `json:"divCash"`
	SplitFactor float64  `json:"splitFactor"`
}

// FetchPrices implements contracts.MarketDataSource
func (c *Client) FetchPrices(ctx context.Context, ticker string, start, end time.Time) ([]contracts.PriceRow, error) {
	bars, err := c.fetchDaily(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	rows := make([]contracts.PriceRow, 0, len(bars))
	for _, b := range bars {
		date, err := parseDate(b.Date)
		if err != nil {
			c.logger.WithFields(map[string]interface{}{
				"ticker": ticker,
				"date":   b.Date,
			}).Warn("Skipping bar with unparsable date")
			continue
		}
		rows = append(rows, contracts.PriceRow{
			Date:     date,
			Open:     value(b.Open),
			High:     value(b.High),
			Low:      value(b.Low),
			Close:    value(b.Close),
			AdjClose: value(b.AdjClose),
			Volume:   value(b.Volume),
		})
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  len(rows),
	}).Debug("Fetched prices")
	return rows, nil
}

// FetchDistributions implements contracts.MarketDataSource.
// Tiingo reports cash distributions inline as divCash on the bar.
func (c *Client) FetchDistributions(ctx context.Context, ticker string, start, end time.Time) ([]contracts.DistributionEvent, error) {
	bars, err := c.fetchDaily(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	events := []contracts.DistributionEvent{}
	for _, b := range bars {
		if b.DivCash == 0 {
			continue
		}
		date, err := parseDate(b.Date)
		if err != nil {
			continue
		}
		events = append(events, contracts.DistributionEvent{
			Date:   date,
			Type:   contracts.DistributionDividend,
			Amount: b.DivCash,
		})
	}
	return events, nil
}

// fetchDaily returns the bars for ticker over [start, end]. A fetched
// response is kept until the next call for the same key takes it, so the
// price and distribution halves of one instrument cost a single request.
func (c *Client) fetchDaily(ctx context.Context, ticker string, start, end time.Time) ([]dailyBar, error) {
	key := strings.ToLower(ticker) + "|" + start.Format("2006-01-02") + "|" + end.Format("2006-01-02")
	if bars, ok := c.take(key); ok {
		return bars, nil
	}

	bars, err := c.request(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}
	c.keep(key, bars)
	return bars, nil
}

func (c *Client) take(key string) ([]dailyBar, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bars, ok := c.pending[key]
	if !ok {
		return nil, false
	}
	delete(c.pending, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return bars, true
}

func (c *Client) keep(key string, bars []dailyBar) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[key]; !ok {
		c.order = append(c.order, key)
	}
	c.pending[key] = bars
	for len(c.order) > maxPending {
		delete(c.pending, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *Client) request(ctx context.Context, ticker string, start, end time.Time) ([]dailyBar, error) {
	params := url.Values{}
	params.Set("startDate", start.Format("2006-01-02"))
	params.Set("endDate", end.Format("2006-01-02"))
	params.Set("format", "json")
	params.Set("resampleFreq", "daily")

	fullURL := fmt.Sprintf("%s/tiingo/daily/%s/prices?%s",
		c.baseURL, url.PathEscape(strings.ToLower(ticker)), params.Encode())

	status, body, err := c.httpClient.GetBody(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("tiingo %s: %w", ticker, contracts.ErrInstrumentNotFound)
	default:
		return nil, fmt.Errorf("tiingo %s: unexpected status code: %d", ticker, status)
	}

	var bars []dailyBar
	if err := json.Unmarshal(body, &bars); err != nil {
		return nil, fmt.Errorf("parse response failed: %w", err)
	}
	return bars, nil
}

// parseDate accepts RFC3339 timestamps and plain dates
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return contracts.TradingDay(t), nil
	}
	t, err := contracts.ParseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func value(p *float64) float64 {
	if p == nil {
		return contracts.NaN
	}
	return *p
}
