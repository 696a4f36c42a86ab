package returns

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/ewreturns/internal/contracts"
)

// tradingDaysPerYear annualizes daily volatility
const tradingDaysPerYear = 252.0

// Metrics summarizes a portfolio value series
type Metrics struct {
	Mode        contracts.Mode `json:"mode"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	StartValue  float64        `json:"start_value"`
	EndValue    float64        `json:"end_value"`
	TotalReturn float64        `json:"total_return"`
	CAGR        float64        `json:"cagr"`
	Volatility  float64        `json:"volatility"`   // annualized stdev of daily returns
	MaxDrawdown float64        `json:"max_drawdown"` // <= 0
	Periods     int            `json:"periods"`
	Distributed float64        `json:"distributed"` // total swept into capital
}

// ComputeMetrics derives Metrics from an annotated result
func ComputeMetrics(a *AnnotatedDataset) Metrics {
	m := Metrics{
		Mode:    a.Mode,
		Periods: len(a.States),
	}
	for _, s := range a.States {
		m.Distributed += s.Distributions
	}

	dates, values := observed(a)
	if len(values) == 0 {
		m.StartValue, m.EndValue = contracts.NaN, contracts.NaN
		m.TotalReturn, m.CAGR, m.Volatility = contracts.NaN, contracts.NaN, contracts.NaN
		return m
	}

	m.Start, m.End = dates[0], dates[len(dates)-1]
	m.StartValue = a.StartingCapital.InexactFloat64()
	m.EndValue = values[len(values)-1]
	m.TotalReturn = m.EndValue/m.StartValue - 1

	years := m.End.Sub(m.Start).Hours() / 24 / 365.25
	if years > 0 && m.EndValue > 0 {
		m.CAGR = math.Pow(m.EndValue/m.StartValue, 1/years) - 1
	}

	if len(values) > 1 {
		rets := make([]float64, len(values)-1)
		for i := 1; i < len(values); i++ {
			rets[i-1] = values[i]/values[i-1] - 1
		}
		if len(rets) > 1 {
			m.Volatility = stat.StdDev(rets, nil) * math.Sqrt(tradingDaysPerYear)
		}
	}

	m.MaxDrawdown = maxDrawdown(values)
	return m
}

// observed drops rows without a portfolio value
func observed(a *AnnotatedDataset) ([]time.Time, []float64) {
	var dates []time.Time
	var values []float64
	for i, v := range a.PortfolioValue {
		if contracts.IsMissing(v) {
			continue
		}
		dates = append(dates, a.Dataset.Dates[i])
		values = append(values, v)
	}
	return dates, values
}

// maxDrawdown returns the worst peak-to-trough decline as a fraction
func maxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	dd := make([]float64, len(values))
	peak := values[0]
	for i, v := range values {
		peak = math.Max(peak, v)
		if peak > 0 {
			dd[i] = v/peak - 1
		}
	}
	return floats.Min(dd)
}
