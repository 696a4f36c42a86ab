package commands

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/dataset"
	"github.com/wonny/ewreturns/internal/pipeline"
	"github.com/wonny/ewreturns/internal/returns"
	"github.com/wonny/ewreturns/internal/runconfig"
)

// runFlags are the flags describing a run when no profile is given
type runFlags struct {
	tickersFile string
	symbols     string
	start       string
	end         string
	capital     string
	modes       string
	priceField  string
	sweep       string
	outDir      string
	persist     bool
}

var flags runFlags

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flags.tickersFile, "tickers", "", "instrument list file with a Ticker column")
	cmd.Flags().StringVar(&flags.symbols, "symbols", "", "comma-separated tickers (instead of --tickers)")
	cmd.Flags().StringVar(&flags.start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.end, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.capital, "capital", "", "starting capital (default STARTING_CAPITAL)")
	cmd.Flags().StringVar(&flags.modes, "modes", "price,total", "modes to compute")
	cmd.Flags().StringVar(&flags.priceField, "price-field", "", "reference price override (close|adj_close; default close for price, adj_close for total)")
	cmd.Flags().StringVar(&flags.sweep, "sweep", runconfig.SweepAmount, "distribution sweep (amount|per_share)")
	cmd.Flags().StringVar(&flags.outDir, "out", "", "output directory (default OUTPUT_DIR)")
	cmd.Flags().BoolVar(&flags.persist, "persist", false, "save results to Postgres")
}

// resolveRequest builds the run request from --profile or the run flags.
// It returns the provider the profile asks for, if any.
func resolveRequest(defaultCapital decimal.Decimal, defaultOut string) (pipeline.Request, string, error) {
	if profileFile != "" {
		p, _, err := runconfig.Load(profileFile)
		if err != nil {
			return pipeline.Request{}, "", fmt.Errorf("load profile %s: %w", profileFile, err)
		}
		hash, err := runconfig.Hash(p)
		if err != nil {
			return pipeline.Request{}, "", err
		}
		req, err := pipeline.FromProfile(p, hash, defaultCapital)
		if err != nil {
			return pipeline.Request{}, "", err
		}
		if flags.outDir != "" {
			req.OutputDir = flags.outDir
		}
		if req.OutputDir == "" {
			req.OutputDir = defaultOut
		}
		return req, p.Provider, nil
	}

	start, err := contracts.ParseDate(flags.start)
	if err != nil {
		return pipeline.Request{}, "", fmt.Errorf("--start: %w", err)
	}
	end, err := contracts.ParseDate(flags.end)
	if err != nil {
		return pipeline.Request{}, "", fmt.Errorf("--end: %w", err)
	}

	capital := defaultCapital
	if flags.capital != "" {
		capital, err = decimal.NewFromString(flags.capital)
		if err != nil {
			return pipeline.Request{}, "", fmt.Errorf("%w: %q", contracts.ErrInvalidCapital, flags.capital)
		}
	}

	req := pipeline.Request{
		Name:        "cli",
		TickersFile: flags.tickersFile,
		Start:       start,
		End:         end,
		Capital:     capital,
		Options:     returns.DefaultOptions(),
		OutputDir:   flags.outDir,
		Persist:     flags.persist,
	}
	if req.OutputDir == "" {
		req.OutputDir = defaultOut
	}

	for _, s := range splitList(flags.symbols) {
		req.Instruments = append(req.Instruments, contracts.NewInstrument(s))
	}
	if len(req.Instruments) == 0 && req.TickersFile == "" {
		return pipeline.Request{}, "", fmt.Errorf("--tickers or --symbols required")
	}

	for _, m := range splitList(flags.modes) {
		mode, err := contracts.ParseMode(m)
		if err != nil {
			return pipeline.Request{}, "", err
		}
		req.Modes = append(req.Modes, mode)
	}

	switch flags.priceField {
	case "":
	case runconfig.PriceFieldClose:
		req.Options.PriceField = dataset.FieldClose
	case runconfig.PriceFieldAdjClose:
		req.Options.PriceField = dataset.FieldAdjClose
	default:
		return pipeline.Request{}, "", fmt.Errorf("--price-field must be close or adj_close")
	}
	switch flags.sweep {
	case runconfig.SweepAmount:
	case runconfig.SweepPerShare:
		req.Options.Sweep = returns.SweepPerShare
	default:
		return pipeline.Request{}, "", fmt.Errorf("--sweep must be amount or per_share")
	}

	return req, "", nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pickProvider prefers the --provider flag over the profile
func pickProvider(fromProfile string) string {
	if provider != "" {
		return provider
	}
	return fromProfile
}
