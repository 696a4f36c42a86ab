package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database (optional: price store + result repository)
	Database DatabaseConfig

	// Redis (optional: market data cache)
	Redis RedisConfig

	// Market data
	MarketData MarketDataConfig

	// Returns
	Returns ReturnsConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	TTL      time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database URL was configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// MarketDataConfig selects and tunes the market data provider
type MarketDataConfig struct {
	Provider      string // tiingo, yahoo
	TiingoAPIKey  string
	TiingoBaseURL string
	YahooBaseURL  string
	Workers       int     // concurrent instrument fetches
	RPS           float64 // outbound requests per second
	HTTPTimeout   time.Duration
}

// ReturnsConfig holds defaults for return runs
type ReturnsConfig struct {
	StartingCapital decimal.Decimal
	OutputDir       string
	Schedule        string // cron spec for recurring runs
}

// Provider names
const (
	ProviderTiingo = "tiingo"
	ProviderYahoo  = "yahoo"
)

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	capital, err := decimal.NewFromString(getEnv("STARTING_CAPITAL", "10000"))
	if err != nil {
		return nil, fmt.Errorf("STARTING_CAPITAL: %w", err)
	}

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			TTL:      getEnvAsDuration("REDIS_TTL", "24h"),
		},

		MarketData: MarketDataConfig{
			Provider:      getEnv("MARKETDATA_PROVIDER", ProviderTiingo),
			TiingoAPIKey:  getEnv("TIINGO_API_KEY", ""),
			TiingoBaseURL: getEnv("TIINGO_BASE_URL", "https://api.tiingo.com"),
			YahooBaseURL:  getEnv("YAHOO_BASE_URL", "https://finance.yahoo.com"),
			Workers:       getEnvAsInt("MARKETDATA_WORKERS", 4),
			RPS:           getEnvAsFloat("MARKETDATA_RPS", 5),
			HTTPTimeout:   getEnvAsDuration("HTTP_TIMEOUT", "30s"),
		},

		Returns: ReturnsConfig{
			StartingCapital: capital,
			OutputDir:       getEnv("OUTPUT_DIR", "."),
			Schedule:        getEnv("RETURN_SCHEDULE", "0 30 18 * * 1-5"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" && c.Env != "test" {
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	switch c.MarketData.Provider {
	case ProviderTiingo, ProviderYahoo:
	default:
		return fmt.Errorf("MARKETDATA_PROVIDER must be one of: %s, %s", ProviderTiingo, ProviderYahoo)
	}

	if c.MarketData.Workers < 1 {
		return fmt.Errorf("MARKETDATA_WORKERS must be at least 1")
	}

	if !c.Returns.StartingCapital.IsPositive() {
		return fmt.Errorf("STARTING_CAPITAL must be positive")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
