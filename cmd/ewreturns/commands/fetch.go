package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ewreturns/internal/marketdata"
	"github.com/wonny/ewreturns/internal/universe"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "시세/분배금 사전 수집",
	Long: `종목별 시세와 분배금을 수집하여 캐시/DB에 적재합니다.

DATABASE_URL 또는 REDIS_ENABLED 설정 시 이후 run은 저장된 데이터를 사용합니다.

Example:
  go run ./cmd/ewreturns fetch --tickers tickers.csv --start 2015-01-02 --end 2020-12-31
  go run ./cmd/ewreturns fetch --symbols SPY,AGG --start 2020-01-02 --end 2020-12-31 --workers 8`,
	RunE: runFetch,
}

var fetchWorkers int

func init() {
	rootCmd.AddCommand(fetchCmd)
	addRunFlags(fetchCmd)
	fetchCmd.Flags().IntVar(&fetchWorkers, "workers", 0, "concurrent fetches (default MARKETDATA_WORKERS)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, req, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if a.db == nil && !a.redis.Enabled() {
		PrintWarning("No DATABASE_URL or REDIS_ENABLED; fetched data will not be kept")
	}

	instruments := req.Instruments
	if len(instruments) == 0 {
		instruments, err = universe.LoadFile(req.TickersFile)
		if err != nil {
			return err
		}
	}

	workers := fetchWorkers
	if workers < 1 {
		workers = a.cfg.MarketData.Workers
	}

	PrintRunHeader(RunHeader{
		Title:       "Market data fetch",
		Tag:         "Fetch",
		Start:       req.Start,
		End:         req.End,
		Instruments: fmt.Sprintf("%d instruments, %d workers", len(instruments), workers),
		Provider:    a.source.Name(),
	})

	started := time.Now()
	results := marketdata.NewCollector(a.source, a.log).FetchAll(ctx, instruments, req.Start, req.End, workers)

	fmt.Println()
	failed := 0
	for _, r := range results {
		switch {
		case r.NotFound:
			PrintWarning(fmt.Sprintf("%-8s not found", r.Ticker))
		case r.Error != nil:
			failed++
			PrintError(fmt.Sprintf("%-8s %v", r.Ticker, r.Error))
		default:
			PrintSuccess(fmt.Sprintf("%-8s %d prices, %d distributions", r.Ticker, r.PriceCount, r.DistributionCount))
		}
	}

	PrintCompletion("fetch", time.Since(started))
	if failed > 0 {
		return fmt.Errorf("%d of %d fetches failed", failed, len(results))
	}
	return nil
}
