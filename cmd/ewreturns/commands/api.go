package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/ewreturns/internal/api"
	"github.com/wonny/ewreturns/internal/api/handlers"
	"github.com/wonny/ewreturns/pkg/config"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health                            - Health check
  POST /api/returns/run                   - 수익률 계산 실행
  GET  /api/returns/last                  - 마지막 실행 요약
  GET  /api/returns/last/{mode}/periods   - 기간별 상태
  GET  /api/returns/last/{mode}/csv       - CSV 다운로드 (?kind=return|summary)
  GET  /api/returns/runs                  - 저장된 실행 목록 (DB)
  GET  /api/returns/runs/{id}/values      - 저장된 포트폴리오 가치 (DB)

Example:
  go run ./cmd/ewreturns api
  go run ./cmd/ewreturns api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ewreturns API Server ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}

	a, err := newApp(context.Background(), cfg, provider)
	if err != nil {
		return err
	}
	defer a.close()

	var store handlers.RunStore
	deps := api.Dependencies{"database": nil, "cache": nil}
	if a.repo != nil {
		store = a.repo
		deps["database"] = a.db
	}
	if a.redis.Enabled() {
		deps["cache"] = a.redis
	}

	returnsHandler := handlers.NewReturnsHandler(a.orchestrator(), store, cfg.Returns.StartingCapital, cfg.Returns.OutputDir, a.log)
	router := api.NewRouter(returnsHandler, deps, a.log)
	server := api.New(cfg, a.log, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n✅ Server running on http://localhost%s\n", server.Addr())
	fmt.Println("\nPress Ctrl+C to stop")

	if err := server.Run(ctx); err != nil {
		return err
	}

	a.log.Info("Server stopped")
	return nil
}
