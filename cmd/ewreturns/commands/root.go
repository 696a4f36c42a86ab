package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	profileFile string
	provider    string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ewreturns",
	Short: "Equal-weight portfolio returns (price / total)",
	Long: `ewreturns Unified CLI

동일가중 포트폴리오 수익률 계산기.
연말 리밸런싱, 가격 수익률과 분배금 재투자 총수익률.

Usage:
  go run ./cmd/ewreturns [command]

Examples:
  go run ./cmd/ewreturns run --tickers tickers.csv --start 2015-01-02 --end 2020-12-31
  go run ./cmd/ewreturns run --profile profiles/etf.yaml
  go run ./cmd/ewreturns schedule --tickers tickers.csv --start 2015-01-02 --end 2020-12-31
  go run ./cmd/ewreturns api
  go run ./cmd/ewreturns test-db`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFile, "profile", "", "YAML run profile")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "market data provider (tiingo|yahoo, default MARKETDATA_PROVIDER)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
