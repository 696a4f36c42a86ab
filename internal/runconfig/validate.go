package runconfig

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/ewreturns/internal/contracts"
)

// Engine option values
const (
	PriceFieldClose    = "close"
	PriceFieldAdjClose = "adj_close"
	SweepAmount        = "amount"
	SweepPerShare      = "per_share"
)

// ValidationError 검증 실패 (실행 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks required fields and parses dates
func Validate(p *Profile) error {
	if p.Meta.Name == "" {
		return ValidationError{"meta.name", "required"}
	}

	if p.Universe.TickersFile == "" && len(p.Universe.Tickers) == 0 {
		return ValidationError{"universe", "tickers_file or tickers required"}
	}

	start, err := contracts.ParseDate(p.Window.Start)
	if err != nil {
		return ValidationError{"window.start", "must be YYYY-MM-DD"}
	}
	end, err := contracts.ParseDate(p.Window.End)
	if err != nil {
		return ValidationError{"window.end", "must be YYYY-MM-DD"}
	}
	if end.Before(start) {
		return ValidationError{"window", "end must not be before start"}
	}
	p.start, p.end = start, end

	if p.Capital != "" {
		c, err := decimal.NewFromString(p.Capital)
		if err != nil || !c.IsPositive() {
			return ValidationError{"capital", "must be a positive decimal"}
		}
	}

	switch p.Provider {
	case "", "tiingo", "yahoo":
	default:
		return ValidationError{"provider", "must be tiingo or yahoo"}
	}

	for _, m := range p.Modes {
		if _, err := contracts.ParseMode(m); err != nil {
			return ValidationError{"modes", err.Error()}
		}
	}

	switch p.Engine.PriceField {
	case "", PriceFieldClose, PriceFieldAdjClose:
	default:
		return ValidationError{"engine.price_field", "must be close or adj_close"}
	}
	switch p.Engine.Sweep {
	case SweepAmount, SweepPerShare:
	default:
		return ValidationError{"engine.sweep", "must be amount or per_share"}
	}

	return nil
}
