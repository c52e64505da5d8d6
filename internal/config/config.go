package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend kinds selectable via CREDITS_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds application configuration. Construct once at process start
// with Load and pass by injection; there is no package-level singleton.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	BackendKind string
	DBHost      string
	DBPort      string
	DBName      string
	DBUser      string
	DBPassword  string
	DBSSLMode   string
	SQLitePath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LedgerFilePath string

	LowCreditThreshold int64
	ExpiringSoonDays   int

	SchedulerInterval time.Duration
	SchedulerLockTTL  time.Duration

	PlanCatalogPath string
}

// Load loads configuration from environment variables and an optional .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "credits"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		BackendKind: normalizeBackend(getenv("CREDITS_BACKEND", BackendMemory)),
		DBHost:      getenv("DATABASE_HOST", "localhost"),
		DBPort:      getenv("DATABASE_PORT", "5432"),
		DBName:      getenv("DATABASE_NAME", "credits"),
		DBUser:      getenv("DATABASE_USER", "postgres"),
		DBPassword:  getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:   getenv("DATABASE_SSLMODE", "disable"),
		SQLitePath:  getenv("DATABASE_SQLITE_PATH", "credits.db"),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		LedgerFilePath: getenv("LEDGER_FILE_PATH", "credit_ledger.jsonl"),

		LowCreditThreshold: getenvInt64("LOW_CREDIT_THRESHOLD", 10),
		ExpiringSoonDays:   int(getenvInt64("EXPIRING_SOON_DAYS", 7)),

		SchedulerInterval: getenvDuration("SCHEDULER_INTERVAL", time.Minute),
		SchedulerLockTTL:  getenvDuration("SCHEDULER_LOCK_TTL", 30*time.Second),

		PlanCatalogPath: getenv("PLAN_CATALOG_PATH", ""),
	}
}

func normalizeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case BackendSQLite:
		return BackendSQLite
	case BackendPostgres:
		return BackendPostgres
	default:
		return BackendMemory
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
