package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/ewreturns/internal/dataset"
	"github.com/wonny/ewreturns/internal/schedule"
	"github.com/wonny/ewreturns/internal/universe"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "리밸런싱 스케줄 조회",
	Long: `데이터셋을 구성하고 연말 리밸런싱 날짜와 기간을 출력합니다.

수익률은 계산하지 않습니다.

Example:
  go run ./cmd/ewreturns schedule --tickers tickers.csv --start 2015-01-02 --end 2020-12-31`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	addRunFlags(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, req, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	instruments := req.Instruments
	if len(instruments) == 0 {
		instruments, err = universe.LoadFile(req.TickersFile)
		if err != nil {
			return err
		}
	}

	ds, good, err := dataset.NewBuilder(a.source, a.cfg.MarketData.Workers, a.log).Build(ctx, instruments, req.Start, req.End)
	if err != nil {
		return err
	}

	sched, err := schedule.Generate(ds, req.Start, req.End)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	periods, err := schedule.Bounds(ds, sched)
	if err != nil {
		return err
	}

	fmt.Println()
	PrintKeyValue("Instruments", fmt.Sprintf("%d of %d", len(good), len(instruments)), 11)
	PrintKeyValue("Rows", fmt.Sprintf("%d", ds.Len()), 11)
	PrintKeyValue("Periods", fmt.Sprintf("%d", len(periods)), 11)
	PrintSeparator()
	for _, p := range periods {
		fmt.Printf("   #%-3d %s → %s  rows %d..%d\n", p.Index,
			p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"), p.StartRow, p.EndRow)
	}
	return nil
}
