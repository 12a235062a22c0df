package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	CORS      CORSConfig
	Log       LogConfig
	PriceFeed PriceFeedConfig
	TaxReport TaxReportConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// PriceFeedConfig holds the settings of the historical reference-price provider.
type PriceFeedConfig struct {
	BaseURL           string
	Timeframe         string
	PageLimit         int
	RequestsPerMinute int
	FetchAttempts     int
	RetryDelay        time.Duration
	RequestTimeout    time.Duration
}

// TaxReportConfig holds the transaction tax report pipeline settings.
type TaxReportConfig struct {
	Timeout      time.Duration // wall-clock guard for price triangulation
	CacheTTL     time.Duration
	PersistBatch int
	JobRetention time.Duration
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/trx_tax_report.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost"), ","),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		PriceFeed: PriceFeedConfig{
			BaseURL:   getEnv("PRICE_API_URL", "https://api-pub.bitfinex.com"),
			Timeframe: getEnv("PRICE_CANDLE_TIMEFRAME", "1h"),
		},
	}

	var err error
	if config.PriceFeed.PageLimit, err = getEnvInt("PRICE_PAGE_LIMIT", 10000); err != nil {
		return nil, err
	}
	if config.PriceFeed.RequestsPerMinute, err = getEnvInt("PRICE_REQUESTS_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	if config.PriceFeed.FetchAttempts, err = getEnvInt("PRICE_FETCH_ATTEMPTS", 6); err != nil {
		return nil, err
	}
	if config.PriceFeed.RetryDelay, err = getEnvDuration("PRICE_FETCH_RETRY_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	if config.PriceFeed.RequestTimeout, err = getEnvDuration("PRICE_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if config.TaxReport.Timeout, err = getEnvDuration("TAX_REPORT_TIMEOUT", 2*time.Hour); err != nil {
		return nil, err
	}
	if config.TaxReport.CacheTTL, err = getEnvDuration("TAX_REPORT_CACHE_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if config.TaxReport.PersistBatch, err = getEnvInt("TAX_REPORT_PERSIST_BATCH", 20000); err != nil {
		return nil, err
	}
	if config.TaxReport.JobRetention, err = getEnvDuration("REPORT_JOB_RETENTION", time.Hour); err != nil {
		return nil, err
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt parses a positive integer environment variable.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

// getEnvDuration parses a time.Duration environment variable such as "15m".
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}
