// Package config provides centralized configuration management for the
// import service. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Mapper   MapperConfig
	Enhancer EnhancerConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds import pipeline settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 5MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"5242880"`

	// BatchSize is the number of rows written per batch (default: 20)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"20"`

	// BatchPause is the pause between batches (default: 200ms)
	BatchPause time.Duration `env:"IMPORT_BATCH_PAUSE" default:"200ms"`

	// HeaderScanRows is how many leading rows are scanned for the header (default: 10)
	HeaderScanRows int `env:"IMPORT_HEADER_SCAN_ROWS" default:"10"`

	// SampleValues is how many non-empty body values are sampled per column (default: 5)
	SampleValues int `env:"IMPORT_SAMPLE_VALUES" default:"5"`

	// MaxActiveRuns caps concurrent write phases (default: 4)
	MaxActiveRuns int `env:"IMPORT_MAX_ACTIVE_RUNS" default:"4"`

	// RunTimeout is the maximum duration of a write phase (default: 10m)
	RunTimeout time.Duration `env:"IMPORT_RUN_TIMEOUT" default:"10m"`

	// Retention is how long finished runs stay queryable (default: 5m)
	Retention time.Duration `env:"IMPORT_RETENTION" default:"5m"`
}

// MapperConfig holds the header matching thresholds.
type MapperConfig struct {
	// CandidateFloor is the minimum confidence for a proposal (default: 0.5)
	CandidateFloor float64 `env:"MAPPER_CANDIDATE_FLOOR" default:"0.5"`

	// AutoAccept is the confidence at which mappings confirm without review (default: 0.95)
	AutoAccept float64 `env:"MAPPER_AUTO_ACCEPT" default:"0.95"`

	// EnhancerTrigger is the confidence below which the external service is consulted (default: 0.9)
	EnhancerTrigger float64 `env:"MAPPER_ENHANCER_TRIGGER" default:"0.9"`
}

// EnhancerConfig holds settings for the optional external mapping service.
type EnhancerConfig struct {
	// Enabled controls whether the external service is consulted (default: false)
	Enabled bool `env:"ENHANCER_ENABLED" default:"false"`

	// BaseURL is the OpenAI-compatible API base, e.g. https://api.openai.com/v1
	BaseURL string `env:"ENHANCER_BASE_URL"`

	// APIKey is the bearer token for the service
	APIKey string `env:"ENHANCER_API_KEY"`

	// Model is the model name passed through to the service
	Model string `env:"ENHANCER_MODEL" default:"gpt-4o-mini"`

	// Timeout is the hard cap on a single suggestion call (default: 3s)
	Timeout time.Duration `env:"ENHANCER_TIMEOUT" default:"3s"`

	// MaxSampleRows is how many sample rows accompany each request (default: 5)
	MaxSampleRows int `env:"ENHANCER_MAX_SAMPLE_ROWS" default:"5"`

	// MaxConcurrent is the maximum number of parallel suggestion calls (default: 4)
	MaxConcurrent int `env:"ENHANCER_MAX_CONCURRENT" default:"4"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
