package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Session  SessionConfig
	Store    StoreConfig
	Pipeline PipelineConfig
	Workflow WorkflowConfig
	Otel     OtelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	StreamLogFilePath  string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

type StoreConfig struct {
	Backend string // "memory", "redis" or "postgres"
	TTL     time.Duration
}

type PipelineConfig struct {
	Client    string // "mock" or "http"
	BaseURL   string
	Timeout   time.Duration
	MockDelay time.Duration
}

type WorkflowConfig struct {
	RevealPacing     time.Duration
	DedupStrategy    string // "class", "class_type" or "record"
	RegenConcurrency int
	SelectionStrict  bool
	WorkspaceTTL     time.Duration
}

type OtelConfig struct {
	Enabled  bool
	Endpoint string
}

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	PipelineMock = "mock"
	PipelineHTTP = "http"
)

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			StreamLogFilePath:  getEnv("STREAM_LOG_FILE_PATH", "logs/stream.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Session: SessionConfig{
			Secret: getEnv("SESSION_SECRET", "change-me-in-production"),
			TTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
			TTL:     getEnvAsDuration("STORE_TTL", 24*time.Hour),
		},
		Pipeline: PipelineConfig{
			Client:    strings.ToLower(getEnv("PIPELINE_CLIENT", PipelineMock)),
			BaseURL:   getEnv("PIPELINE_BASE_URL", "http://localhost:8000/api"),
			Timeout:   getEnvAsDuration("PIPELINE_TIMEOUT", 120*time.Second),
			MockDelay: getEnvAsDuration("MOCK_DELAY", time.Second),
		},
		Workflow: WorkflowConfig{
			RevealPacing:     getEnvAsDuration("REVEAL_PACING", 500*time.Millisecond),
			DedupStrategy:    getEnv("DEDUP_STRATEGY", "class"),
			RegenConcurrency: getEnvAsInt("REGEN_CONCURRENCY", 4),
			SelectionStrict:  getEnvAsBool("SELECTION_STRICT", false),
			WorkspaceTTL:     getEnvAsDuration("WORKSPACE_TTL", time.Hour),
		},
		Otel: OtelConfig{
			Enabled:  getEnvAsBool("OTEL_ENABLED", false),
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

// getEnv treats a variable that is set but empty as unset.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("750ms") or plain milliseconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
