package returns

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/dataset"
	"github.com/wonny/ewreturns/internal/schedule"
)

// SweepPolicy decides how distributions enter capital at rebalance in
// total mode
type SweepPolicy string

const (
	// SweepAmount adds the raw distribution amounts paid in the period
	SweepAmount SweepPolicy = "amount"
	// SweepPerShare adds amount × shares held for each payment
	SweepPerShare SweepPolicy = "per_share"
)

// Options tunes Compute
type Options struct {
	PriceField dataset.Field // reference price override; empty picks ReferenceField(mode)
	Sweep      SweepPolicy
}

// DefaultOptions picks the reference price per mode and sweeps raw amounts
func DefaultOptions() Options {
	return Options{Sweep: SweepAmount}
}

// ReferenceField is the price used for eligibility, allocation and
// valuation when no override is set: Close in price mode, Adj_Close in
// total mode
func ReferenceField(mode contracts.Mode) dataset.Field {
	if mode == contracts.ModeTotal {
		return dataset.FieldAdjClose
	}
	return dataset.FieldClose
}

// ForMode fills the unset fields of o for mode
func (o Options) ForMode(mode contracts.Mode) Options {
	if o.PriceField == "" {
		o.PriceField = ReferenceField(mode)
	}
	if o.Sweep == "" {
		o.Sweep = SweepAmount
	}
	return o
}

// Position is one instrument's derived columns aligned to dataset rows.
// Rows show the holdings of the period that owns them.
type Position struct {
	Shares []float64
	Value  []float64
}

// PortfolioState is the snapshot of one rebalance period
type PortfolioState struct {
	Period        int                `json:"period"`
	Start         time.Time          `json:"start"`
	End           time.Time          `json:"end"`
	StartRow      int                `json:"start_row"`
	EndRow        int                `json:"end_row"`
	Capital       float64            `json:"capital"`
	Eligible      []string           `json:"eligible"`
	Shares        map[string]float64 `json:"shares"`
	StartPrices   map[string]float64 `json:"start_prices"`
	EndValue      float64            `json:"end_value"`
	Distributions float64            `json:"distributions"` // swept into the next capital
	NextCapital   float64            `json:"next_capital"`
	Degenerate    bool               `json:"degenerate"` // no eligible instrument
}

// AnnotatedDataset is the result of one Compute call. It references the
// input dataset read-only; every derived slice is owned by this value.
// ⭐ SSOT: 수익률 계산 결과는 이 구조체로만 전달
type AnnotatedDataset struct {
	Mode            contracts.Mode
	Options         Options
	StartingCapital decimal.Decimal
	Dataset         *dataset.Dataset
	Schedule        *schedule.Schedule
	Periods         []schedule.Period
	Tags            []int
	Tickers         []string
	Positions       map[string]*Position
	PortfolioValue  []float64
	States          []PortfolioState
}

// Len returns the number of rows
func (a *AnnotatedDataset) Len() int {
	return len(a.PortfolioValue)
}

// FinalValue returns the portfolio value on the last row
func (a *AnnotatedDataset) FinalValue() float64 {
	if len(a.PortfolioValue) == 0 {
		return contracts.NaN
	}
	return a.PortfolioValue[len(a.PortfolioValue)-1]
}

// EndingCapital is the capital that would fund a following period:
// the last period's end value plus its sweep
func (a *AnnotatedDataset) EndingCapital() float64 {
	if len(a.States) == 0 {
		return contracts.NaN
	}
	return a.States[len(a.States)-1].NextCapital
}
