// Package config provides centralized configuration management for the registry.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Snapshot SnapshotConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Redis    RedisConfig
	Blob     BlobConfig
	Kafka    KafkaConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, exports stream)
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

// SnapshotConfig holds bulk snapshot processing settings.
type SnapshotConfig struct {
	// MaxFileSize is the maximum allowed snapshot size in bytes (default: 100MB)
	MaxFileSize int64 `env:"SNAPSHOT_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of batches applied in parallel (default: 2)
	MaxConcurrent int `env:"SNAPSHOT_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for a batch slot (default: 30s)
	MaxWaitTime time.Duration `env:"SNAPSHOT_MAX_WAIT_TIME" default:"30s"`

	// ChunkSize is the number of person changes written per chunk (default: 1000)
	ChunkSize int `env:"SNAPSHOT_CHUNK_SIZE" default:"1000"`

	// Timeout is the maximum duration for a single apply (default: 10m)
	Timeout time.Duration `env:"SNAPSHOT_TIMEOUT" default:"10m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// SnapshotLimit is requests per minute for snapshot endpoints (default: 10)
	SnapshotLimit int `env:"RATE_LIMIT_SNAPSHOT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey makes principal headers count only on requests with a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RedisConfig holds the optional Redis connection. Leaving URL empty
// disables the stats cache and falls back to in-process rate limiting.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" default:"3s"`

	// StatsTTL bounds how long cached registry stats are served (default: 1m)
	StatsTTL time.Duration `env:"STATS_CACHE_TTL" default:"1m"`
}

// BlobConfig holds local blob storage settings.
type BlobConfig struct {
	// Dir is where uploaded snapshots and photos are written (default: ./data/blobs)
	Dir string `env:"BLOB_DIR" default:"./data/blobs"`

	// BaseURL prefixes the URLs handed out for stored blobs
	BaseURL string `env:"BLOB_BASE_URL" default:"http://localhost:8080/blobs"`
}

// KafkaConfig holds the optional audit event publisher settings.
type KafkaConfig struct {
	// Brokers is a comma-separated seed broker list; empty disables publishing
	Brokers []string `env:"KAFKA_BROKERS"`

	// AuditTopic receives one record per committed audit entry
	AuditTopic string `env:"KAFKA_AUDIT_TOPIC" default:"registry.audit"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" default:"true"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
