package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/pkg/database"
	"github.com/wonny/ewreturns/pkg/logger"
)

const (
	kindPrices        = "prices"
	kindDistributions = "distributions"
)

// Store is a Postgres read-through layer in front of a source. A range
// is served from the database once it has been fetched in full; otherwise
// the upstream is asked and the answer saved.
// ⭐ SSOT: 시세 저장소는 여기서만
type Store struct {
	next   contracts.MarketDataSource
	db     database.Querier
	logger *logger.Logger
}

var _ contracts.MarketDataSource = (*Store)(nil)

// NewStore creates a new read-through store
func NewStore(next contracts.MarketDataSource, db database.Querier, log *logger.Logger) *Store {
	return &Store{next: next, db: db, logger: log}
}

// Name implements contracts.MarketDataSource
func (s *Store) Name() string { return s.next.Name() }

// FetchPrices implements contracts.MarketDataSource
func (s *Store) FetchPrices(ctx context.Context, ticker string, start, end time.Time) ([]contracts.PriceRow, error) {
	covered, err := s.covered(ctx, ticker, kindPrices, start, end)
	if err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("Coverage lookup failed")
	}
	if covered {
		return s.loadPrices(ctx, ticker, start, end)
	}

	rows, err := s.next.FetchPrices(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	if err := s.savePrices(ctx, ticker, start, end, rows); err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("Failed to save prices")
	}
	return rows, nil
}

// FetchDistributions implements contracts.MarketDataSource
func (s *Store) FetchDistributions(ctx context.Context, ticker string, start, end time.Time) ([]contracts.DistributionEvent, error) {
	covered, err := s.covered(ctx, ticker, kindDistributions, start, end)
	if err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("Coverage lookup failed")
	}
	if covered {
		return s.loadDistributions(ctx, ticker, start, end)
	}

	events, err := s.next.FetchDistributions(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	if err := s.saveDistributions(ctx, ticker, start, end, events); err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("Failed to save distributions")
	}
	return events, nil
}

func (s *Store) covered(ctx context.Context, ticker, kind string, start, end time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM market.coverage
			WHERE provider = $1 AND ticker = $2 AND kind = $3
			  AND from_date <= $4 AND to_date >= $5
		)
	`

	var ok bool
	if err := s.db.QueryRow(ctx, query, s.Name(), ticker, kind, start, end).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Store) loadPrices(ctx context.Context, ticker string, start, end time.Time) ([]contracts.PriceRow, error) {
	query := `
		SELECT trade_date, open, high, low, close, adj_close, volume
		FROM market.daily_prices
		WHERE provider = $1 AND ticker = $2 AND trade_date BETWEEN $3 AND $4
		ORDER BY trade_date ASC
	`

	rows, err := s.db.Query(ctx, query, s.Name(), ticker, start, end)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	out := []contracts.PriceRow{}
	for rows.Next() {
		var date time.Time
		var o, h, l, c, a, v *float64
		if err := rows.Scan(&date, &o, &h, &l, &c, &a, &v); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, contracts.PriceRow{
			Date:     contracts.TradingDay(date),
			Open:     deref(o),
			High:     deref(h),
			Low:      deref(l),
			Close:    deref(c),
			AdjClose: deref(a),
			Volume:   deref(v),
		})
	}
	return out, rows.Err()
}

func (s *Store) loadDistributions(ctx context.Context, ticker string, start, end time.Time) ([]contracts.DistributionEvent, error) {
	query := `
		SELECT pay_date, dist_type, amount
		FROM market.distributions
		WHERE provider = $1 AND ticker = $2 AND pay_date BETWEEN $3 AND $4
		ORDER BY pay_date ASC
	`

	rows, err := s.db.Query(ctx, query, s.Name(), ticker, start, end)
	if err != nil {
		return nil, fmt.Errorf("query distributions: %w", err)
	}
	defer rows.Close()

	out := []contracts.DistributionEvent{}
	for rows.Next() {
		var e contracts.DistributionEvent
		if err := rows.Scan(&e.Date, &e.Type, &e.Amount); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		e.Date = contracts.TradingDay(e.Date)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) savePrices(ctx context.Context, ticker string, start, end time.Time, prices []contracts.PriceRow) error {
	query := `
		INSERT INTO market.daily_prices (provider, ticker, trade_date, open, high, low, close, adj_close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider, ticker, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			adj_close = EXCLUDED.adj_close,
			volume = EXCLUDED.volume
	`

	batch := &pgx.Batch{}
	for _, p := range prices {
		batch.Queue(query, s.Name(), ticker, p.Date,
			ptr(p.Open), ptr(p.High), ptr(p.Low), ptr(p.Close), ptr(p.AdjClose), ptr(p.Volume))
	}
	return s.commit(ctx, batch, ticker, kindPrices, start, end)
}

func (s *Store) saveDistributions(ctx context.Context, ticker string, start, end time.Time, events []contracts.DistributionEvent) error {
	query := `
		INSERT INTO market.distributions (provider, ticker, pay_date, dist_type, amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, ticker, pay_date, dist_type) DO UPDATE SET
			amount = EXCLUDED.amount
	`

	batch := &pgx.Batch{}
	for _, e := range mergeEvents(events) {
		batch.Queue(query, s.Name(), ticker, e.Date, e.Type, e.Amount)
	}
	return s.commit(ctx, batch, ticker, kindDistributions, start, end)
}

// commit writes rows and the coverage record in one transaction
func (s *Store) commit(ctx context.Context, batch *pgx.Batch, ticker, kind string, start, end time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch.Queue(`
		INSERT INTO market.coverage (provider, ticker, kind, from_date, to_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, ticker, kind, from_date, to_date) DO UPDATE SET fetched_at = now()
	`, s.Name(), ticker, kind, start, end)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save %s: %w", kind, err)
	}
	return tx.Commit(ctx)
}

// mergeEvents sums events sharing a date and type so the upsert keeps
// their total
func mergeEvents(events []contracts.DistributionEvent) []contracts.DistributionEvent {
	type key struct {
		date time.Time
		typ  string
	}
	index := make(map[key]int)
	var out []contracts.DistributionEvent
	for _, e := range events {
		k := key{contracts.TradingDay(e.Date), e.Type}
		if i, ok := index[k]; ok {
			out[i].Amount += e.Amount
			continue
		}
		index[k] = len(out)
		e.Date = k.date
		out = append(out, e)
	}
	return out
}
