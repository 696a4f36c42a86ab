package marketdata

import (
	"context"
	"fmt"

	"github.com/wonny/ewreturns/pkg/database"
)

// schemaSQL creates the market data tables used by Store
const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS market;

CREATE TABLE IF NOT EXISTS market.daily_prices (
	provider   TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	trade_date DATE NOT NULL,
	open       DOUBLE PRECISION,
	high       DOUBLE PRECISION,
	low        DOUBLE PRECISION,
	close      DOUBLE PRECISION,
	adj_close  DOUBLE PRECISION,
	volume     DOUBLE PRECISION,
	PRIMARY KEY (provider, ticker, trade_date)
);

CREATE TABLE IF NOT EXISTS market.distributions (
	provider  TEXT NOT NULL,
	ticker    TEXT NOT NULL,
	pay_date  DATE NOT NULL,
	dist_type TEXT NOT NULL,
	amount    DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (provider, ticker, pay_date, dist_type)
);

CREATE TABLE IF NOT EXISTS market.coverage (
	provider   TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	from_date  DATE NOT NULL,
	to_date    DATE NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (provider, ticker, kind, from_date, to_date)
);
`

// EnsureSchema creates the market data tables if missing
func EnsureSchema(ctx context.Context, q database.Querier) error {
	if _, err := q.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create market schema: %w", err)
	}
	return nil
}
