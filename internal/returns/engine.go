package returns

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/dataset"
	"github.com/wonny/ewreturns/internal/schedule"
	"github.com/wonny/ewreturns/pkg/logger"
)

// Engine computes equal-weight returns
// ⭐ SSOT: 동일가중 수익률 계산은 여기서만
type Engine struct {
	opts   Options
	logger *logger.Logger
}

// NewEngine creates an Engine; zero option fields are resolved per mode
// by Compute
func NewEngine(opts Options, log *logger.Logger) *Engine {
	return &Engine{opts: opts, logger: log.WithField("module", "returns")}
}

// Compute runs one mode with opts and no logging
func Compute(ds *dataset.Dataset, sched *schedule.Schedule, good []string, capital decimal.Decimal, mode contracts.Mode, opts Options) (*AnnotatedDataset, error) {
	return NewEngine(opts, logger.Nop()).Compute(ds, sched, good, capital, mode)
}

// Compute runs the period state machine over ds for one mode. The
// dataset is only read; each call returns fresh state.
func (e *Engine) Compute(ds *dataset.Dataset, sched *schedule.Schedule, good []string, capital decimal.Decimal, mode contracts.Mode) (*AnnotatedDataset, error) {
	if !capital.IsPositive() {
		return nil, fmt.Errorf("%w: %s", contracts.ErrInvalidCapital, capital.String())
	}
	if mode != contracts.ModePrice && mode != contracts.ModeTotal {
		return nil, fmt.Errorf("%w: %q", contracts.ErrUnknownMode, mode)
	}
	if len(good) == 0 {
		return nil, contracts.ErrNoInstruments
	}
	opts := e.opts.ForMode(mode)
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	for _, t := range good {
		if _, ok := ds.Series[t]; !ok {
			return nil, fmt.Errorf("ticker %s has no series in dataset", t)
		}
	}

	periods, err := schedule.Bounds(ds, sched)
	if err != nil {
		return nil, err
	}

	n := ds.Len()
	out := &AnnotatedDataset{
		Mode:            mode,
		Options:         opts,
		StartingCapital: capital,
		Dataset:         ds,
		Schedule:        sched,
		Periods:         periods,
		Tags:            schedule.Tag(ds.Dates, sched),
		Tickers:         append([]string(nil), good...),
		Positions:       make(map[string]*Position, len(good)),
		PortfolioValue:  nanSlice(n),
		States:          make([]PortfolioState, 0, len(periods)),
	}
	for _, t := range good {
		out.Positions[t] = &Position{Shares: nanSlice(n), Value: nanSlice(n)}
	}

	current := capital.InexactFloat64()
	for _, p := range periods {
		state := e.runPeriod(out, p, current)
		out.States = append(out.States, state)
		current = state.NextCapital
	}

	e.logger.WithFields(map[string]interface{}{
		"mode":        string(mode),
		"price_field": string(opts.PriceField),
		"periods":     len(periods),
		"instruments": len(good),
		"final_value": out.FinalValue(),
	}).Info("Returns computed")

	return out, nil
}

func validateOptions(opts Options) error {
	switch opts.PriceField {
	case dataset.FieldClose, dataset.FieldAdjClose:
	default:
		return fmt.Errorf("unsupported reference price field %q", opts.PriceField)
	}
	switch opts.Sweep {
	case SweepAmount, SweepPerShare:
	default:
		return fmt.Errorf("unsupported sweep policy %q", opts.Sweep)
	}
	return nil
}

// runPeriod allocates capital at the period's first row, values the
// holdings through its last row and fills the rows the period owns
func (e *Engine) runPeriod(out *AnnotatedDataset, p schedule.Period, capital float64) PortfolioState {
	ds := out.Dataset
	state := PortfolioState{
		Period:      p.Index,
		Start:       p.Start,
		End:         p.End,
		StartRow:    p.StartRow,
		EndRow:      p.EndRow,
		Capital:     capital,
		Shares:      make(map[string]float64, len(out.Tickers)),
		StartPrices: make(map[string]float64),
	}

	// 1. eligibility: reference price at the first row must be > 0
	for _, t := range out.Tickers {
		price := ds.Value(t, out.Options.PriceField, p.StartRow)
		if contracts.IsMissing(price) || price <= 0 {
			continue
		}
		state.Eligible = append(state.Eligible, t)
		state.StartPrices[t] = price
	}

	// 2. equal allocation
	if len(state.Eligible) == 0 {
		state.Degenerate = true
		e.logger.WithFields(map[string]interface{}{
			"period": p.Index,
			"start":  p.Start.Format("2006-01-02"),
		}).Warn("No eligible instruments at period start; holding capital flat")
	} else {
		alloc := capital / float64(len(state.Eligible))
		for _, t := range state.Eligible {
			state.Shares[t] = alloc / state.StartPrices[t]
		}
	}
	for _, t := range out.Tickers {
		if _, ok := state.Shares[t]; !ok {
			state.Shares[t] = 0
		}
	}

	// 3-4. value holdings over [StartRow, EndRow]; write the owned rows
	last := make(map[string]float64, len(state.Eligible))
	for row := p.StartRow; row <= p.EndRow; row++ {
		total := 0.0
		values := make(map[string]float64, len(state.Eligible))
		for _, t := range state.Eligible {
			price := ds.Value(t, out.Options.PriceField, row)
			if contracts.IsMissing(price) {
				price = last[t]
			} else {
				last[t] = price
			}
			v := state.Shares[t] * price
			values[t] = v
			total += v
		}
		if state.Degenerate {
			total = capital
		}

		if out.Tags[row] == p.Index {
			for _, t := range out.Tickers {
				pos := out.Positions[t]
				pos.Shares[row] = state.Shares[t]
				pos.Value[row] = values[t]
			}
			out.PortfolioValue[row] = total
		}
		if row == p.EndRow {
			state.EndValue = total
		}
	}

	// 5. roll forward
	state.NextCapital = state.EndValue
	if out.Mode.SweepsDistributions() {
		state.Distributions = e.sweep(out, p, state)
		state.NextCapital += state.Distributions
	}

	return state
}

// sweep totals the distributions paid in rows owned by the period
func (e *Engine) sweep(out *AnnotatedDataset, p schedule.Period, state PortfolioState) float64 {
	ds := out.Dataset
	total := 0.0
	for row := p.StartRow; row <= p.EndRow; row++ {
		if out.Tags[row] != p.Index {
			continue
		}
		for _, t := range out.Tickers {
			amount := ds.Series[t].Distribution[row]
			if contracts.IsMissing(amount) {
				continue
			}
			switch out.Options.Sweep {
			case SweepPerShare:
				total += amount * state.Shares[t]
			default:
				total += amount
			}
		}
	}
	return total
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = contracts.NaN
	}
	return s
}
