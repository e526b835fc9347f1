package config

import (
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the worker and its CLI tools need, all sourced
// from the environment (with .env as a local-dev convenience layered under it).
type Config struct {
	Port    string
	AppEnv  string
	GinMode string

	// Store
	DatabaseURL string

	// Upstream credentials
	TelegramAPIID        int
	TelegramAPIHash      string
	TelegramPhoneNumber  string
	SessionPath          string
	TelegramSessionB64   string

	// Loop periods
	ActivePollInterval      time.Duration
	FullCatchupInterval     time.Duration
	DialogDiscoveryInterval time.Duration
	DialogDiscoveryLimit    int

	// Upstream call pacing (§5 "Rate limiting")
	UpstreamCallDelayMin time.Duration
	UpstreamCallDelayMax time.Duration

	// Router / Processor (single-consumer bounded queue, see internal/ingest)
	IngestQueueBufferSize int
	IngestDedupMaxSize    int
	IngestDedupTrimTo     int

	// Lock & State Service
	LockHeartbeatInterval time.Duration
	ListenerLockMinutes   int
	GlobalLockMinutes     int
	SingleLockMinutes     int

	// Outbox Sender
	OutboxPollInterval time.Duration
	OutboxLockSeconds  int
	OutboxMaxRetries   int
	AttachmentStoreDir string

	// Database connection pool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime int // minutes
	DBConnMaxLifetime int // minutes

	// Server
	ServerShutdownTimeoutSeconds int

	// Logging
	LogLevel  string
	LogFormat string
}

var AppConfig *Config

// LoadConfig populates the package-level AppConfig from the environment,
// loading a local .env file first when one is present.
func LoadConfig() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		AppEnv:  getEnvOrDefault("APP_ENV", "development"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		DatabaseURL: cleanDatabaseURL(getEnvOrDefault("DATABASE_URL", "")),

		TelegramAPIID:       getEnvAsInt("TELEGRAM_API_ID", 0),
		TelegramAPIHash:     getEnvOrDefault("TELEGRAM_API_HASH", ""),
		TelegramPhoneNumber: getEnvOrDefault("TELEGRAM_PHONE_NUMBER", ""),
		SessionPath:         getEnvOrDefault("SESSION_PATH", "/data/sessions/telegram_session"),
		TelegramSessionB64:  getEnvOrDefault("TELEGRAM_SESSION_BASE64", ""),

		ActivePollInterval:      getEnvAsSeconds("ACTIVE_POLL_INTERVAL", 120*time.Second),
		FullCatchupInterval:     getEnvAsSeconds("FULL_CATCHUP_INTERVAL", 900*time.Second),
		DialogDiscoveryInterval: getEnvAsSeconds("DIALOG_DISCOVERY_INTERVAL", 900*time.Second),
		DialogDiscoveryLimit:    getEnvAsInt("DIALOG_DISCOVERY_LIMIT", 200),

		UpstreamCallDelayMin: getEnvAsDuration("UPSTREAM_CALL_DELAY_MIN", 300*time.Millisecond),
		UpstreamCallDelayMax: getEnvAsDuration("UPSTREAM_CALL_DELAY_MAX", 500*time.Millisecond),

		IngestQueueBufferSize: getEnvAsInt("INGEST_QUEUE_BUFFER_SIZE", 1000),
		IngestDedupMaxSize:    getEnvAsInt("INGEST_DEDUP_MAX_SIZE", 10000),
		IngestDedupTrimTo:     getEnvAsInt("INGEST_DEDUP_TRIM_TO", 5000),

		LockHeartbeatInterval: getEnvAsSeconds("LOCK_HEARTBEAT_INTERVAL", 30*time.Second),
		ListenerLockMinutes:   getEnvAsInt("LISTENER_LOCK_MINUTES", 30),
		GlobalLockMinutes:     getEnvAsInt("GLOBAL_LOCK_MINUTES", 5),
		SingleLockMinutes:     getEnvAsInt("SINGLE_LOCK_MINUTES", 2),

		OutboxPollInterval: getEnvAsSeconds("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxLockSeconds:  getEnvAsInt("OUTBOX_LOCK_SECONDS", 60),
		OutboxMaxRetries:   getEnvAsInt("OUTBOX_MAX_RETRIES", 5),
		AttachmentStoreDir: getEnvOrDefault("ATTACHMENT_STORE_DIR", "/data/attachments"),

		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvAsInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 5),
		DBConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if AppConfig.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if AppConfig.TelegramAPIID == 0 || AppConfig.TelegramAPIHash == "" || AppConfig.TelegramPhoneNumber == "" {
		log.Fatal("TELEGRAM_API_ID, TELEGRAM_API_HASH and TELEGRAM_PHONE_NUMBER are required")
	}
}

// cleanDatabaseURL strips Prisma-style ?schema=... query params that some
// deployments carry over from a Prisma-managed connection string; lib/pq
// doesn't understand that parameter.
func cleanDatabaseURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := parsed.Query()
	if _, ok := q["schema"]; !ok {
		return raw
	}
	q.Del("schema")
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: failed to parse %s=%q as duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

// getEnvAsSeconds reads a bare integer (seconds) env var, matching spec.md's
// "Loop periods in seconds" convention, falling back to defaultValue.
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return time.Duration(parsed) * time.Second
		} else {
			log.Printf("Warning: failed to parse %s=%q as seconds, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: failed to parse %s=%q as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}
