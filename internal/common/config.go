package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Scheduler SchedulerConfig
	Pipeline  PipelineConfig
	Extractor ExtractorConfig
	Ingest    IngestConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr string
}

// SchedulerConfig holds worker pool configuration
type SchedulerConfig struct {
	MaxConcurrency int64
	PollInterval   time.Duration
	StaleAfter     time.Duration
	SweepInterval  time.Duration
}

// PipelineConfig holds chunking thresholds for BOQ processing
type PipelineConfig struct {
	MaxRowsPerChunk int
	BlankRunLength  int
}

// ExtractorConfig holds the external extraction service settings
type ExtractorConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// IngestConfig holds inbox watcher configuration
type IngestConfig struct {
	InboxRoots []string
	Debounce   time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		},
		Scheduler: SchedulerConfig{
			MaxConcurrency: int64(getEnvAsInt("MAX_CONCURRENCY", 12)),
			PollInterval:   getEnvAsDuration("POLL_INTERVAL", 2*time.Second),
			StaleAfter:     getEnvAsDuration("JOB_STALE_AFTER", 10*time.Minute),
			SweepInterval:  getEnvAsDuration("JOB_SWEEP_INTERVAL", time.Minute),
		},
		Pipeline: PipelineConfig{
			MaxRowsPerChunk: getEnvAsInt("MAX_ROWS_PER_CHUNK", 350),
			BlankRunLength:  getEnvAsInt("BLANK_RUN_LENGTH", 2),
		},
		Extractor: ExtractorConfig{
			BaseURL: getEnv("EXTRACTOR_URL", ""),
			APIKey:  getEnv("EXTRACTOR_API_KEY", ""),
			Timeout: getEnvAsDuration("EXTRACTOR_TIMEOUT", 90*time.Second),
		},
		Ingest: IngestConfig{
			InboxRoots: getEnvAsList("INBOX_ROOTS"),
			Debounce:   getEnvAsDuration("INBOX_DEBOUNCE", 500*time.Millisecond),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Extractor.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "EXTRACTOR_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Scheduler.MaxConcurrency <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_CONCURRENCY must be positive", ErrInvalidInput)
	}
	if c.Pipeline.MaxRowsPerChunk <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_ROWS_PER_CHUNK must be positive", ErrInvalidInput)
	}
	return nil
}
