package output

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/dataset"
	"github.com/wonny/ewreturns/internal/returns"
	"github.com/wonny/ewreturns/internal/schedule"
	"github.com/wonny/ewreturns/pkg/config"
	"github.com/wonny/ewreturns/pkg/database"
	"github.com/wonny/ewreturns/pkg/logger"
)

var nan = math.NaN()

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func series(n int, close []float64) *dataset.Series {
	blank := func() []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = nan
		}
		return out
	}
	return &dataset.Series{
		Open:         append([]float64(nil), close...),
		High:         append([]float64(nil), close...),
		Low:          append([]float64(nil), close...),
		Close:        append([]float64(nil), close...),
		AdjClose:     append([]float64(nil), close...),
		Volume:       blank(),
		Distribution: blank(),
		Action:       make([]string, n),
	}
}

// fixture spans two periods; AAA pays 2.0 on 2020-09-01 and BBB has a gap
func fixture(t *testing.T, mode contracts.Mode) *returns.AnnotatedDataset {
	t.Helper()
	dates := []time.Time{
		day(2020, 6, 1), day(2020, 9, 1), day(2020, 12, 31),
		day(2021, 3, 1), day(2021, 6, 30),
	}
	aaa := series(5, []float64{10, 10, 10, 10, 10})
	aaa.Distribution[1] = 2.0
	aaa.Action[1] = contracts.DistributionDividend
	bbb := series(5, []float64{20, nan, 20, 25, 30})

	ds := &dataset.Dataset{
		Dates:   dates,
		Tickers: []string{"AAA", "BBB"},
		Series:  map[string]*dataset.Series{"AAA": aaa, "BBB": bbb},
	}
	sched, err := schedule.Generate(ds, day(2020, 1, 1), day(2021, 12, 31))
	require.NoError(t, err)

	out, err := returns.Compute(ds, sched, ds.Tickers, decimal.NewFromInt(1000), mode, returns.DefaultOptions())
	require.NoError(t, err)
	return out
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteReturn(t *testing.T) {
	a := fixture(t, contracts.ModeTotal)

	var buf bytes.Buffer
	require.NoError(t, WriteReturn(&buf, a))
	records := readCSV(t, buf.Bytes())

	require.Len(t, records, 6)
	header := records[0]
	require.Len(t, header, 1+2*10+3)
	assert.Equal(t, "Date", header[0])
	assert.Equal(t, []string{"AAA_Open", "AAA_High", "AAA_Low", "AAA_Close", "AAA_Volume", "AAA_Adj_Close",
		"AAA_action", "AAA_action_amount", "AAA_Shares", "AAA_Position_Value"}, header[1:11])
	assert.Equal(t, "BBB_Position_Value", header[20])
	assert.Equal(t, []string{"rebalance_date", "rebalance_period", "Portfolio_Value"}, header[21:])

	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("missing column %s", name)
		return -1
	}

	first := records[1]
	assert.Equal(t, "2020-06-01", first[0])
	assert.Equal(t, "50", first[col("AAA_Shares")])
	assert.Equal(t, "500", first[col("AAA_Position_Value")])
	assert.Equal(t, "", first[col("AAA_Volume")])
	assert.Equal(t, "true", first[col("rebalance_date")])
	assert.Equal(t, "0", first[col("rebalance_period")])
	assert.Equal(t, "1000", first[col("Portfolio_Value")])

	second := records[2]
	assert.Equal(t, "", second[col("BBB_Close")])
	assert.Equal(t, "DIVIDEND", second[col("AAA_action")])
	assert.Equal(t, "2", second[col("AAA_action_amount")])
	assert.Equal(t, "", second[col("rebalance_date")])
	assert.Equal(t, "1000", second[col("Portfolio_Value")])

	assert.Equal(t, "1", records[4][col("rebalance_period")])
}

func TestWriteSummary(t *testing.T) {
	a := fixture(t, contracts.ModePrice)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, a))
	records := readCSV(t, buf.Bytes())

	require.Len(t, records, 6)
	assert.Equal(t, []string{"Date", "Portfolio_Value"}, records[0])
	assert.Equal(t, []string{"2020-06-01", "1000"}, records[1])
	assert.Equal(t, "2021-06-30", records[5][0])
}

func TestFileSinkWritesEveryMode(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, logger.Nop())

	paths, err := sink.Write([]*returns.AnnotatedDataset{
		fixture(t, contracts.ModePrice),
		fixture(t, contracts.ModeTotal),
	})
	require.NoError(t, err)
	assert.Len(t, paths, 4)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"price_return_output.csv", "price_summary_output.csv",
		"total_return_output.csv", "total_summary_output.csv",
	}, names)

	data, err := os.ReadFile(filepath.Join(dir, SummaryFileName(contracts.ModeTotal)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Date,Portfolio_Value\n"))
}

func TestFileSinkUnwritableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := NewFileSink(filepath.Join(blocker, "out"), logger.Nop()).Write(
		[]*returns.AnnotatedDataset{fixture(t, contracts.ModePrice)})
	assert.Error(t, err)
}

func TestFmtFloat(t *testing.T) {
	assert.Equal(t, "", fmtFloat(nan))
	assert.Equal(t, "1.5", fmtFloat(1.5))
	assert.Equal(t, "1000", fmtFloat(1000))
}

func TestTables(t *testing.T) {
	price := fixture(t, contracts.ModePrice)
	total := fixture(t, contracts.ModeTotal)

	table := MetricsTable([]returns.Metrics{returns.ComputeMetrics(price), returns.ComputeMetrics(total)})
	assert.Contains(t, table, "MODE")
	assert.Contains(t, table, "price")
	assert.Contains(t, table, "total")

	periods := PeriodTable(total)
	assert.Contains(t, periods, "2020-12-31")
	assert.Contains(t, periods, "1002.0000")

	assert.Equal(t, "<NO DATA>", MetricsTable(nil))
	assert.Equal(t, "<NO DATA>", PeriodTable(&returns.AnnotatedDataset{}))
}

func TestStoredMetricsRoundTripsNaN(t *testing.T) {
	m := returns.Metrics{Mode: contracts.ModePrice, StartValue: 1000, EndValue: nan, Periods: 2}
	back := metricsForJSON(m).metrics()

	assert.Equal(t, 1000.0, back.StartValue)
	assert.True(t, math.IsNaN(back.EndValue))
	assert.Equal(t, 2, back.Periods)
	assert.Nil(t, nullable(nan))
}

func TestRepositoryIntegration(t *testing.T) {
	if testing.Short() || os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()
	db, err := database.New(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db.Pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	a := fixture(t, contracts.ModeTotal)
	id, err := repo.SaveRun(ctx, a, "hash")
	require.NoError(t, err)

	runs, err := repo.LatestRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, contracts.ModeTotal, runs[0].Mode)
	assert.Equal(t, "1000", runs[0].Capital)

	points, err := repo.GetValues(ctx, id)
	require.NoError(t, err)
	assert.Len(t, points, a.Len())

	_, err = repo.GetValues(ctx, -1)
	assert.ErrorIs(t, err, ErrRunNotFound)
}
