package pipeline

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/dataset"
	"github.com/wonny/ewreturns/internal/returns"
	"github.com/wonny/ewreturns/internal/runconfig"
)

// Request describes one return run
type Request struct {
	Name        string
	Instruments []contracts.Instrument // used as-is when set
	TickersFile string                 // read when Instruments is empty
	Start       time.Time
	End         time.Time
	Capital     decimal.Decimal
	Modes       []contracts.Mode // defaults to every mode
	Options     returns.Options
	OutputDir   string // empty skips the CSV files
	Persist     bool
	ConfigHash  string
}

// FromProfile converts a validated run profile into a Request.
// defaultCapital applies when the profile has none.
func FromProfile(p *runconfig.Profile, hash string, defaultCapital decimal.Decimal) (Request, error) {
	capital := defaultCapital
	if p.Capital != "" {
		c, err := decimal.NewFromString(p.Capital)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %q", contracts.ErrInvalidCapital, p.Capital)
		}
		capital = c
	}

	req := Request{
		Name:        p.Meta.Name,
		TickersFile: p.Universe.TickersFile,
		Start:       p.Start(),
		End:         p.End(),
		Capital:     capital,
		Options:     returns.DefaultOptions(),
		OutputDir:   p.Output.Dir,
		Persist:     p.Output.Persist,
		ConfigHash:  hash,
	}

	for _, t := range p.Universe.Tickers {
		req.Instruments = append(req.Instruments, contracts.NewInstrument(t))
	}

	for _, m := range p.Modes {
		mode, err := contracts.ParseMode(m)
		if err != nil {
			return Request{}, err
		}
		req.Modes = append(req.Modes, mode)
	}

	switch p.Engine.PriceField {
	case runconfig.PriceFieldAdjClose:
		req.Options.PriceField = dataset.FieldAdjClose
	case runconfig.PriceFieldClose:
		req.Options.PriceField = dataset.FieldClose
	}
	switch p.Engine.Sweep {
	case runconfig.SweepPerShare:
		req.Options.Sweep = returns.SweepPerShare
	default:
		req.Options.Sweep = returns.SweepAmount
	}

	return req, nil
}
