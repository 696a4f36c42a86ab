package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ewreturns/internal/marketdata"
	"github.com/wonny/ewreturns/internal/output"
	"github.com/wonny/ewreturns/pkg/config"
	"github.com/wonny/ewreturns/pkg/database"
)

// testDBCmd represents the test-db command
var testDBCmd = &cobra.Command{
	Use:   "test-db",
	Short: "PostgreSQL 연결 테스트",
	Long: `데이터베이스 연결을 테스트하고 스키마를 준비합니다.

이 명령어는:
- config에서 DATABASE_URL 로드
- Ping / Health Check
- market, results 스키마 생성
- Connection Pool 통계 표시

Example:
  go run ./cmd/ewreturns test-db`,
	RunE: runTestDB,
}

func init() {
	rootCmd.AddCommand(testDBCmd)
}

func runTestDB(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ewreturns Database Connection Test ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("❌ Failed to load config: %w", err)
	}
	if !cfg.Database.Enabled() {
		return fmt.Errorf("❌ DATABASE_URL is not set")
	}
	fmt.Printf("✅ Config loaded (ENV: %s)\n", cfg.Env)
	fmt.Printf("   Database URL: %s\n\n", maskPassword(cfg.Database.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Println("Connecting to database...")
	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("❌ Failed to connect to database: %w", err)
	}
	defer db.Close()
	fmt.Println("✅ Database connection established")

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("❌ Health check failed: %w", err)
	}
	fmt.Printf("✅ Health check (%v)\n", status.ResponseTime)

	if err := marketdata.EnsureSchema(ctx, db.Pool); err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	if err := output.NewRepository(db.Pool).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	fmt.Println("✅ Schemas market, results ready")

	fmt.Println("\n📊 Connection Pool Statistics:")
	PrintKeyValue("Max Connections", fmt.Sprintf("%d", status.Stats.MaxConns), 20)
	PrintKeyValue("Total Connections", fmt.Sprintf("%d", status.Stats.TotalConns), 20)
	PrintKeyValue("Acquired Connections", fmt.Sprintf("%d", status.Stats.AcquiredConns), 20)
	PrintKeyValue("Idle Connections", fmt.Sprintf("%d", status.Stats.IdleConns), 20)

	fmt.Println("\n✅ All tests passed!")
	return nil
}

// maskPassword hides the password of a database URL
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
