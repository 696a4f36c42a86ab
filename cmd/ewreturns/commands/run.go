package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ewreturns/internal/output"
	"github.com/wonny/ewreturns/internal/pipeline"
	"github.com/wonny/ewreturns/pkg/config"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "수익률 계산 실행",
	Long: `동일가중 포트폴리오의 가격/총수익률을 계산하고 CSV로 저장합니다.

이 명령어는:
- 종목 목록 로드 (--tickers 파일 또는 --symbols)
- 시세/분배금 수집 (종목별 실패는 건너뜀)
- 연말 리밸런싱 스케줄 생성
- 모드별 수익률 계산
- {mode}_return_output.csv, {mode}_summary_output.csv 저장

Example:
  go run ./cmd/ewreturns run --tickers tickers.csv --start 2015-01-02 --end 2020-12-31
  go run ./cmd/ewreturns run --symbols SPY,AGG,GLD --start 2018-01-02 --end 2023-12-29 --modes total
  go run ./cmd/ewreturns run --profile profiles/etf.yaml --persist`,
	RunE: runReturns,
}

var runPeriods bool

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&runPeriods, "periods", false, "print per-period table")
}

func runReturns(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, req, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	PrintRunHeader(RunHeader{
		Title:       "Equal-weight returns",
		Tag:         "Run",
		Start:       req.Start,
		End:         req.End,
		Instruments: describeInstruments(req.TickersFile, len(req.Instruments)),
		Provider:    a.source.Name(),
		Capital:     req.Capital,
		Modes:       req.Modes,
	})

	started := time.Now()
	res, err := a.orchestrator().Run(ctx, req)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	fmt.Println()
	PrintKeyValue("Included", strings.Join(res.Good, ", "), 10)
	if len(res.Skipped) > 0 {
		PrintKeyValue("Skipped", strings.Join(res.Skipped, ", "), 10)
	}
	PrintKeyValue("Rebalance", fmt.Sprintf("%d dates", len(res.Schedule)), 10)
	fmt.Println()
	fmt.Print(output.MetricsTable(res.Metrics))

	if runPeriods {
		for _, r := range res.Results {
			fmt.Println()
			fmt.Print(output.PeriodTable(r))
		}
	}

	if len(res.Files) > 0 {
		fmt.Println()
		PrintInfo("Output files")
		PrintList(res.Files)
	}
	if len(res.RunIDs) > 0 {
		PrintInfo(fmt.Sprintf("Saved runs %v", res.RunIDs))
	}

	PrintCompletion("run", time.Since(started))
	return nil
}

// setup resolves the request and wires the app for it
func setup(ctx context.Context) (*app, pipeline.Request, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, pipeline.Request{}, fmt.Errorf("load config: %w", err)
	}
	req, fromProfile, err := resolveRequest(cfg.Returns.StartingCapital, cfg.Returns.OutputDir)
	if err != nil {
		return nil, pipeline.Request{}, err
	}

	a, err := newApp(ctx, cfg, pickProvider(fromProfile))
	if err != nil {
		return nil, pipeline.Request{}, err
	}
	return a, req, nil
}
