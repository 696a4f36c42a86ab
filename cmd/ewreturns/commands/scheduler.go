package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/marketdata"
	"github.com/wonny/ewreturns/internal/pipeline"
	"github.com/wonny/ewreturns/internal/scheduler"
	"github.com/wonny/ewreturns/internal/scheduler/jobs"
	"github.com/wonny/ewreturns/internal/universe"
	"github.com/wonny/ewreturns/pkg/config"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `정기 수익률 재계산 스케줄러를 시작하거나 작업을 실행합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/ewreturns scheduler start --profile profiles/etf.yaml
  go run ./cmd/ewreturns scheduler run returns --symbols SPY,AGG --start 2018-01-02 --end 2030-12-31`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- returns: RETURN_SCHEDULE (기본 평일 18:30, 수익률 재계산)
- marketdata_warm: --warm-schedule (기본 평일 18:00, 시세 사전 수집)

프로필 파일은 매 실행 시 다시 읽습니다. 종료일은 오늘로 제한됩니다.
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

var (
	warmSchedule string
	warmLookback time.Duration
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	for _, c := range []*cobra.Command{schedulerStartCmd, schedulerListCmd, schedulerRunCmd} {
		addRunFlags(c)
		c.Flags().StringVar(&warmSchedule, "warm-schedule", "0 0 18 * * 1-5", "cron spec of the market data warm-up")
		c.Flags().DurationVar(&warmLookback, "warm-lookback", 14*24*time.Hour, "warm-up window ending today")
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ewreturns Scheduler ===")

	sched, a, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.close()

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		next, _ := sched.NextRun(jobName)
		fmt.Printf("  - %-16s next %s\n", jobName, next.Format("2006-01-02 15:04:05"))
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, a, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.close()

	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	sched, a, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.close()

	result, err := sched.WithRetry(0, 0).RunJob(jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !result.Success {
		PrintError(result.Error)
		return fmt.Errorf("job %s failed", jobName)
	}

	PrintCompletion(jobName, result.Duration)
	return nil
}

func initScheduler() (*scheduler.Scheduler, *app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	// validate once up front; each run re-resolves
	_, fromProfile, err := resolveRequest(cfg.Returns.StartingCapital, cfg.Returns.OutputDir)
	if err != nil {
		return nil, nil, err
	}

	a, err := newApp(context.Background(), cfg, pickProvider(fromProfile))
	if err != nil {
		return nil, nil, err
	}

	request := func(now time.Time) (pipeline.Request, error) {
		req, _, err := resolveRequest(cfg.Returns.StartingCapital, cfg.Returns.OutputDir)
		if err != nil {
			return pipeline.Request{}, err
		}
		return jobs.ClampToToday(req, now), nil
	}

	instruments := func() ([]contracts.Instrument, error) {
		req, err := request(time.Now())
		if err != nil {
			return nil, err
		}
		if len(req.Instruments) > 0 {
			return req.Instruments, nil
		}
		return universe.LoadFile(req.TickersFile)
	}

	sched := scheduler.New(a.log)

	returnsJob := jobs.NewReturnsJob(a.orchestrator(), request, cfg.Returns.Schedule, a.log)
	if err := sched.AddJob(returnsJob); err != nil {
		a.close()
		return nil, nil, err
	}

	collector := marketdata.NewCollector(a.source, a.log)
	warmJob := jobs.NewWarmJob(collector, instruments, warmLookback, cfg.MarketData.Workers, warmSchedule, a.log)
	if err := sched.AddJob(warmJob); err != nil {
		a.close()
		return nil, nil, err
	}

	return sched, a, nil
}
