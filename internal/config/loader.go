package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Load builds a Config from the process environment, applying struct tag
// defaults, then validates it.
func Load() (*Config, error) {
	return load(os.LookupEnv)
}

// lookupFunc has the signature of os.LookupEnv.
type lookupFunc func(key string) (string, bool)

func load(lookup lookupFunc) (*Config, error) {
	cfg := &Config{}
	if err := populate(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// populate fills every tagged field of the struct v, descending into
// nested section structs. Tags:
//
//	env      primary variable name
//	envAlt   fallback variable name
//	default  value used when both are unset or empty
//	required "true" fails the load when no value is found
func populate(v reflect.Value, lookup lookupFunc) error {
	t := v.Type()
	for i := range t.NumField() {
		sf, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			if err := populate(fv, lookup); err != nil {
				return err
			}
			continue
		}

		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, found := firstSet(lookup, name, sf.Tag.Get("envAlt"))
		if !found {
			if sf.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", name)
			}
			raw = sf.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := assign(fv, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, raw, err)
		}
	}
	return nil
}

// firstSet returns the first non-empty value among names.
func firstSet(lookup lookupFunc, names ...string) (string, bool) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if val, ok := lookup(n); ok && val != "" {
			return val, true
		}
	}
	return "", false
}

func assign(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		fv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		fv.SetBool(b)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice of %s", fv.Type().Elem().Kind())
		}
		fv.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type: %s", fv.Kind())
	}
	return nil
}

// splitList splits a comma separated list, dropping blank entries.
func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Database.URL != "", "DATABASE_URL is required")
	check(c.Database.MaxConns > 0, "DB_MAX_CONNS must be positive")
	check(c.Database.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
	check(c.Database.MaxConns >= c.Database.MinConns,
		"DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)

	check(c.Server.Port > 0 && c.Server.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	check(c.Server.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	check(c.Server.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")

	check(c.Snapshot.MaxFileSize > 0, "SNAPSHOT_MAX_FILE_SIZE must be positive")
	check(c.Snapshot.MaxConcurrent > 0, "SNAPSHOT_MAX_CONCURRENT must be positive")
	check(c.Snapshot.ChunkSize > 0, "SNAPSHOT_CHUNK_SIZE must be positive")
	check(c.Snapshot.MaxWaitTime > 0, "SNAPSHOT_MAX_WAIT_TIME must be positive")
	check(c.Snapshot.Timeout > 0, "SNAPSHOT_TIMEOUT must be positive")

	if c.Rate.Enabled {
		check(c.Rate.RequestsPerMinute > 0, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		check(c.Rate.SnapshotLimit > 0, "RATE_LIMIT_SNAPSHOT must be positive when rate limiting is enabled")
	}
	if c.Redis.URL != "" {
		check(c.Redis.StatsTTL > 0, "STATS_CACHE_TTL must be positive when REDIS_URL is set")
	}
	check(c.Blob.Dir != "", "BLOB_DIR is required")
	if len(c.Kafka.Brokers) > 0 {
		check(c.Kafka.AuditTopic != "", "KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.Security.RequireAPIKey {
		check(len(c.Security.APIKeys) > 0, "REQUIRE_API_KEY is set but API_KEYS is empty")
	}

	level := strings.ToLower(c.Logging.Level)
	check(slices.Contains([]string{"debug", "info", "warn", "error"}, level),
		"LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	format := strings.ToLower(c.Logging.Format)
	check(format == "text" || format == "json", "LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)

	return errors.Join(errs...)
}

// String renders the config for startup logs. Secrets are masked and API
// keys are only counted.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: {Host: %q, Port: %d}, "+
		"Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, "+
		"Snapshot: {MaxFileSize: %d, MaxConcurrent: %d, ChunkSize: %d}, "+
		"Rate: {Enabled: %t, RequestsPerMinute: %d, Snapshot: %d}, "+
		"Security: {RequireAPIKey: %t, APIKeys: %d}, "+
		"Redis: {Enabled: %t}, Kafka: {Brokers: %v}, Metrics: {Enabled: %t}, "+
		"Logging: {Level: %q, Format: %q}}",
		c.Server.Host, c.Server.Port,
		c.Database.MaxConns, c.Database.MinConns,
		c.Snapshot.MaxFileSize, c.Snapshot.MaxConcurrent, c.Snapshot.ChunkSize,
		c.Rate.Enabled, c.Rate.RequestsPerMinute, c.Rate.SnapshotLimit,
		c.Security.RequireAPIKey, len(c.Security.APIKeys),
		c.Redis.URL != "", c.Kafka.Brokers, c.Metrics.Enabled,
		c.Logging.Level, c.Logging.Format,
	)
}
