package output

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/returns"
	"github.com/wonny/ewreturns/pkg/database"
)

// ErrRunNotFound is returned when a run id does not exist
var ErrRunNotFound = errors.New("run not found")

const resultsSchemaSQL = `
CREATE SCHEMA IF NOT EXISTS results;

CREATE TABLE IF NOT EXISTS results.runs (
	id           BIGSERIAL PRIMARY KEY,
	mode         TEXT NOT NULL,
	config_hash  TEXT NOT NULL DEFAULT '',
	start_date   DATE NOT NULL,
	end_date     DATE NOT NULL,
	capital      TEXT NOT NULL,
	tickers      TEXT[] NOT NULL,
	final_value  DOUBLE PRECISION,
	metrics      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS results.portfolio_values (
	run_id     BIGINT NOT NULL REFERENCES results.runs(id) ON DELETE CASCADE,
	trade_date DATE NOT NULL,
	value      DOUBLE PRECISION,
	period     INT,
	PRIMARY KEY (run_id, trade_date)
);

CREATE TABLE IF NOT EXISTS results.period_states (
	run_id BIGINT NOT NULL REFERENCES results.runs(id) ON DELETE CASCADE,
	period INT NOT NULL,
	state  JSONB NOT NULL,
	PRIMARY KEY (run_id, period)
);
`

// RunRecord is a stored run header
type RunRecord struct {
	ID         int64           `json:"id"`
	Mode       contracts.Mode  `json:"mode"`
	ConfigHash string          `json:"config_hash"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Capital    string          `json:"capital"`
	Tickers    []string        `json:"tickers"`
	FinalValue *float64        `json:"final_value"`
	Metrics    returns.Metrics `json:"metrics"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ValuePoint is one stored portfolio value
type ValuePoint struct {
	Date   time.Time `json:"date"`
	Value  *float64  `json:"value"`
	Period *int      `json:"period"`
}

// Repository persists run results
// ⭐ SSOT: 결과 저장/조회는 여기서만
type Repository struct {
	db database.Querier
}

// NewRepository creates a new results repository
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the results tables if missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, resultsSchemaSQL); err != nil {
		return fmt.Errorf("create results schema: %w", err)
	}
	return nil
}

// SaveRun stores a result with its value series and period states in one transaction
func (r *Repository) SaveRun(ctx context.Context, a *returns.AnnotatedDataset, configHash string) (int64, error) {
	if a.Len() == 0 || a.Schedule == nil || len(a.Schedule.Dates) == 0 {
		return 0, fmt.Errorf("save run: empty result")
	}

	metrics := returns.ComputeMetrics(a)
	metricsJSON, err := json.Marshal(metricsForJSON(metrics))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal metrics: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `
		INSERT INTO results.runs (
			mode, config_hash, start_date, end_date, capital, tickers, final_value, metrics
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	start, end := a.Schedule.Dates[0], a.Dataset.Dates[a.Len()-1]
	var id int64
	err = tx.QueryRow(ctx, query,
		string(a.Mode), configHash, start, end, a.StartingCapital.String(),
		a.Tickers, nullable(a.FinalValue()), metricsJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for row, date := range a.Dataset.Dates {
		var period *int
		if a.Tags[row] >= 0 {
			p := a.Tags[row]
			period = &p
		}
		batch.Queue(`
			INSERT INTO results.portfolio_values (run_id, trade_date, value, period)
			VALUES ($1, $2, $3, $4)
		`, id, date, nullable(a.PortfolioValue[row]), period)
	}
	for _, st := range a.States {
		stateJSON, err := json.Marshal(st)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal period %d: %w", st.Period, err)
		}
		batch.Queue(`
			INSERT INTO results.period_states (run_id, period, state)
			VALUES ($1, $2, $3)
		`, id, st.Period, stateJSON)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to insert run rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// LatestRuns returns the most recent runs, newest first
func (r *Repository) LatestRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT id, mode, config_hash, start_date, end_date, capital, tickers, final_value, metrics, created_at
		FROM results.runs
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var mode string
		var metricsJSON []byte
		if err := rows.Scan(&rec.ID, &mode, &rec.ConfigHash, &rec.Start, &rec.End,
			&rec.Capital, &rec.Tickers, &rec.FinalValue, &metricsJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.Mode = contracts.Mode(mode)
		var m storedMetrics
		if err := json.Unmarshal(metricsJSON, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		rec.Metrics = m.metrics()
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// GetValues returns the stored value series of a run
func (r *Repository) GetValues(ctx context.Context, runID int64) ([]ValuePoint, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM results.runs WHERE id = $1)`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check run: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("run %d: %w", runID, ErrRunNotFound)
	}

	rows, err := r.db.Query(ctx, `
		SELECT trade_date, value, period
		FROM results.portfolio_values
		WHERE run_id = $1
		ORDER BY trade_date
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query values: %w", err)
	}
	defer rows.Close()

	var points []ValuePoint
	for rows.Next() {
		var p ValuePoint
		if err := rows.Scan(&p.Date, &p.Value, &p.Period); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// nullable maps NaN to SQL NULL
func nullable(x float64) *float64 {
	if contracts.IsMissing(x) {
		return nil
	}
	return &x
}

// storedMetrics is Metrics with NaN-safe numbers for JSONB
type storedMetrics struct {
	Mode        contracts.Mode `json:"mode"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	StartValue  *float64       `json:"start_value"`
	EndValue    *float64       `json:"end_value"`
	TotalReturn *float64       `json:"total_return"`
	CAGR        *float64       `json:"cagr"`
	Volatility  *float64       `json:"volatility"`
	MaxDrawdown *float64       `json:"max_drawdown"`
	Periods     int            `json:"periods"`
	Distributed *float64       `json:"distributed"`
}

func metricsForJSON(m returns.Metrics) storedMetrics {
	return storedMetrics{
		Mode:        m.Mode,
		Start:       m.Start,
		End:         m.End,
		StartValue:  nullable(m.StartValue),
		EndValue:    nullable(m.EndValue),
		TotalReturn: nullable(m.TotalReturn),
		CAGR:        nullable(m.CAGR),
		Volatility:  nullable(m.Volatility),
		MaxDrawdown: nullable(m.MaxDrawdown),
		Periods:     m.Periods,
		Distributed: nullable(m.Distributed),
	}
}

func (s storedMetrics) metrics() returns.Metrics {
	return returns.Metrics{
		Mode:        s.Mode,
		Start:       s.Start,
		End:         s.End,
		StartValue:  orNaN(s.StartValue),
		EndValue:    orNaN(s.EndValue),
		TotalReturn: orNaN(s.TotalReturn),
		CAGR:        orNaN(s.CAGR),
		Volatility:  orNaN(s.Volatility),
		MaxDrawdown: orNaN(s.MaxDrawdown),
		Periods:     s.Periods,
		Distributed: orNaN(s.Distributed),
	}
}

func orNaN(p *float64) float64 {
	if p == nil {
		return contracts.NaN
	}
	return *p
}
