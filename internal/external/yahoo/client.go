package yahoo

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/pkg/httputil"
	"github.com/wonny/ewreturns/pkg/logger"
)

// Name is the provider name used in cache keys and logs
const Name = "yahoo"

// Client scrapes the Yahoo Finance historical data page
// ⭐ SSOT: Yahoo Finance 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

var _ contracts.MarketDataSource = (*Client)(nil)

// NewClient creates a new Yahoo Finance client
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL string) *Client {
	httpClient.WithHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Name implements contracts.MarketDataSource
func (c *Client) Name() string { return Name }

// FetchPrices implements contracts.MarketDataSource
func (c *Client) FetchPrices(ctx context.Context, ticker string, start, end time.Time) ([]contracts.PriceRow, error) {
	doc, err := c.fetchHistory(ctx, ticker, start, end, "history")
	if err != nil {
		return nil, err
	}

	rows, _ := parseHistory(doc)
	rows = filterRows(rows, start, end)

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  len(rows),
	}).Debug("Fetched prices")
	return rows, nil
}

// FetchDistributions implements contracts.MarketDataSource
func (c *Client) FetchDistributions(ctx context.Context, ticker string, start, end time.Time) ([]contracts.DistributionEvent, error) {
	doc, err := c.fetchHistory(ctx, ticker, start, end, "div")
	if err != nil {
		return nil, err
	}

	_, events := parseHistory(doc)
	out := []contracts.DistributionEvent{}
	for _, e := range events {
		if e.Date.Before(start) || e.Date.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) fetchHistory(ctx context.Context, ticker string, start, end time.Time, filter string) (*goquery.Document, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	// period2 is exclusive
	params.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("filter", filter)

	fullURL := fmt.Sprintf("%s/quote/%s/history?%s", c.baseURL, url.PathEscape(strings.ToUpper(ticker)), params.Encode())

	status, body, err := c.httpClient.GetBody(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("yahoo %s: %w", ticker, contracts.ErrInstrumentNotFound)
	default:
		return nil, fmt.Errorf("yahoo %s: unexpected status code: %d", ticker, status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML failed: %w", err)
	}

	// symbol lookup page has no history table
	if doc.Find("table").Length() == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", ticker, contracts.ErrInstrumentNotFound)
	}
	return doc, nil
}

// parseHistory extracts price rows and dividend rows from the history table.
// 컬럼: Date | Open | High | Low | Close | Adj Close | Volume
// 배당 행: Date | "0.88 Dividend"
func parseHistory(doc *goquery.Document) ([]contracts.PriceRow, []contracts.DistributionEvent) {
	var rows []contracts.PriceRow
	var events []contracts.DistributionEvent

	doc.Find("table tbody tr").Each(func(i int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 2 {
			return
		}

		date, err := parseDate(cells.Eq(0).Text())
		if err != nil {
			return
		}

		if cells.Length() < 7 {
			text := strings.TrimSpace(cells.Eq(1).Text())
			if strings.HasSuffix(text, "Dividend") {
				amount, ok := parseNum(strings.TrimSuffix(text, "Dividend"))
				if ok {
					events = append(events, contracts.DistributionEvent{
						Date:   date,
						Type:   contracts.DistributionDividend,
						Amount: amount,
					})
				}
			}
			return
		}

		num := func(i int) float64 {
			v, ok := parseNum(cells.Eq(i).Text())
			if !ok {
				return contracts.NaN
			}
			return v
		}

		rows = append(rows, contracts.PriceRow{
			Date:     date,
			Open:     num(1),
			High:     num(2),
			Low:      num(3),
			Close:    num(4),
			AdjClose: num(5),
			Volume:   num(6),
		})
	})

	// page lists newest first
	reverseRows(rows)
	reverseEvents(events)
	return rows, events
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"Jan 2, 2006", "Jan 02, 2006", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseNum(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" || s == "null" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func filterRows(rows []contracts.PriceRow, start, end time.Time) []contracts.PriceRow {
	out := make([]contracts.PriceRow, 0, len(rows))
	for _, r := range rows {
		if r.Date.Before(start) || r.Date.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func reverseRows(s []contracts.PriceRow) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func reverseEvents(s []contracts.DistributionEvent) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
