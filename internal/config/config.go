package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mihaimyh/golease/internal/logger"
	"github.com/mihaimyh/golease/pkg/golease"
)

// Storage backends
const (
	StorageMemory    = "memory"
	StoragePostgres  = "postgres"
	StorageFirestore = "firestore"
	StorageSQL       = "sql"
)

type Config struct {
	// Storage Configuration
	Storage       string
	ContractsFile string

	DatabaseURL      string
	SQLDriver        string
	SQLDSN           string
	RedisAddr        string
	RedisDB          int
	FirestoreProject string

	// Exchange Rate Configuration
	BNRBaseURL       string
	RateFetchTimeout time.Duration
	BusinessTimezone string
	RatePolicy       golease.RatePolicy

	// HTTP Configuration
	HTTPAddr         string
	MetricsNamespace string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		Storage:          getEnv("GOLEASE_STORAGE", StorageMemory),
		ContractsFile:    getEnv("GOLEASE_CONTRACTS_FILE", ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		SQLDriver:        getEnv("SQL_DRIVER", "sqlite"),
		SQLDSN:           getEnv("SQL_DSN", ""),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		FirestoreProject: getEnv("FIRESTORE_PROJECT", ""),
		BNRBaseURL:       getEnv("BNR_BASE_URL", "https://www.bnr.ro"),
		BusinessTimezone: getEnv("BUSINESS_TIMEZONE", golease.DefaultBusinessTimezone),
		RatePolicy:       golease.RatePolicy(getEnv("RATE_POLICY", string(golease.RatePolicyContract))),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "golease"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:    getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:        getEnv("LOG_OUTPUT", "stderr"),
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		return nil, fmt.Errorf("config validation failed: REDIS_DB must be a non-negative integer")
	}
	config.RedisDB = redisDB

	timeout, err := time.ParseDuration(getEnv("RATE_FETCH_TIMEOUT", "10s"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("config validation failed: RATE_FETCH_TIMEOUT must be a positive duration")
	}
	config.RateFetchTimeout = timeout

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when GOLEASE_STORAGE=postgres")
		}
	case StorageSQL:
		if c.SQLDriver != "postgres" && c.SQLDriver != "sqlite" {
			return fmt.Errorf("SQL_DRIVER must be postgres or sqlite, got %q", c.SQLDriver)
		}
		if c.SQLDSN == "" {
			return fmt.Errorf("SQL_DSN is required when GOLEASE_STORAGE=sql")
		}
	case StorageFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("FIRESTORE_PROJECT is required when GOLEASE_STORAGE=firestore")
		}
	default:
		return fmt.Errorf("GOLEASE_STORAGE must be one of memory, postgres, firestore, sql, got %q", c.Storage)
	}

	switch c.RatePolicy {
	case golease.RatePolicyContract, golease.RatePolicyDaily, golease.RatePolicyIssueDate:
	default:
		return fmt.Errorf("RATE_POLICY must be contract, daily or issue-date, got %q", c.RatePolicy)
	}

	if _, err := golease.LoadBusinessLocation(c.BusinessTimezone); err != nil {
		return fmt.Errorf("BUSINESS_TIMEZONE is invalid: %w", err)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
