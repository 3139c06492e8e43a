package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMemory   = "memory"
)

type Config struct {
	Addr                  string
	Environment           string
	DatabaseURL           string
	StorageDriver         string
	SQLitePath            string
	JWTSecret             string
	DataEncryptionKey     string
	ExportDir             string
	ExportExpiryDays      int
	RetentionBatchSize    int
	RetentionSchedule     string
	ExportCleanupSchedule string
	RetentionPolicyFile   string
	RunMigrations         bool
	MigrationsDir         string
	MetricsEnabled        bool
	MaxBodyBytes          int64
	RateLimitPerMinute    int
	ShutdownTimeout       time.Duration
}

func Load() Config {
	return Config{
		Addr:                  getEnv("APP_ADDR", ":8080"),
		Environment:           getEnv("APP_ENV", "development"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		StorageDriver:         strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres)),
		SQLitePath:            getEnv("SQLITE_PATH", "data/privacy.db"),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		DataEncryptionKey:     getEnv("DATA_ENCRYPTION_KEY", ""),
		ExportDir:             getEnv("EXPORT_DIR", "storage/exports"),
		ExportExpiryDays:      getEnvInt("EXPORT_EXPIRY_DAYS", 30),
		RetentionBatchSize:    getEnvInt("RETENTION_BATCH_SIZE", 100),
		RetentionSchedule:     getEnv("RETENTION_SCHEDULE", "0 2 * * *"),
		ExportCleanupSchedule: getEnv("EXPORT_CLEANUP_SCHEDULE", "30 * * * *"),
		RetentionPolicyFile:   getEnv("RETENTION_POLICY_FILE", ""),
		RunMigrations:         getEnvBool("RUN_MIGRATIONS", true),
		MigrationsDir:         getEnv("MIGRATIONS_DIR", "migrations"),
		MetricsEnabled:        getEnvBool("METRICS_ENABLED", true),
		MaxBodyBytes:          int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:    getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		ShutdownTimeout:       getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER is postgres")
		}
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORAGE_DRIVER is sqlite")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be one of postgres, sqlite, memory")
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.StorageDriver == StorageMemory {
			return fmt.Errorf("STORAGE_DRIVER memory is not allowed in production")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.ExportExpiryDays <= 0 {
		return fmt.Errorf("EXPORT_EXPIRY_DAYS must be positive")
	}
	if c.RetentionBatchSize <= 0 {
		return fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}
	if strings.TrimSpace(c.ExportDir) == "" {
		return fmt.Errorf("EXPORT_DIR is required")
	}
	for key, spec := range map[string]string{
		"RETENTION_SCHEDULE":      c.RetentionSchedule,
		"EXPORT_CLEANUP_SCHEDULE": c.ExportCleanupSchedule,
	} {
		if spec == "" || spec == "off" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s is not a valid cron expression: %w", key, err)
		}
	}
	return nil
}
