package returns

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ewreturns/internal/contracts"
)

func TestComputeMetrics(t *testing.T) {
	dates := []time.Time{day(2020, 1, 2), day(2020, 7, 1), day(2020, 12, 31), day(2021, 6, 30), day(2021, 12, 31)}
	ds := build(dates, column{
		ticker: "AAA",
		close:  []float64{10, 12, 6, 9, 11},
		dist:   []float64{nan, 1, nan, nan, nan},
	})

	out := compute(t, ds, day(2020, 1, 1), day(2021, 12, 31), "1000", contracts.ModeTotal, DefaultOptions())
	m := ComputeMetrics(out)

	assert.Equal(t, contracts.ModeTotal, m.Mode)
	assert.Equal(t, 2, m.Periods)
	assert.InDelta(t, 1, m.Distributed, 1e-9)
	assert.Equal(t, day(2020, 1, 2), m.Start)
	assert.Equal(t, day(2021, 12, 31), m.End)
	assert.InDelta(t, 1000, m.StartValue, 1e-9)
	assert.InDelta(t, out.FinalValue(), m.EndValue, 1e-9)
	assert.InDelta(t, m.EndValue/1000-1, m.TotalReturn, 1e-9)

	// 1200 peak to 600 trough
	assert.InDelta(t, -0.5, m.MaxDrawdown, 1e-9)
	assert.Greater(t, m.Volatility, 0.0)
	assert.False(t, math.IsNaN(m.CAGR))
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"rising", []float64{1, 2, 3}, 0},
		{"single dip", []float64{100, 80, 120, 90}, -0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, maxDrawdown(tt.values), 1e-9)
		})
	}
}

func TestComputeMetricsEmpty(t *testing.T) {
	m := ComputeMetrics(&AnnotatedDataset{Mode: contracts.ModePrice})
	require.True(t, math.IsNaN(m.EndValue))
	assert.Equal(t, 0, m.Periods)
}
