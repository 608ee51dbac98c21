package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "atrium.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML path can be overridden with ATRIUM_CONFIG; a missing file is not
// an error.
func Load() (*Config, error) {
	path := os.Getenv("ATRIUM_CONFIG")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "ATRIUM_PORT")
	setString(&cfg.Server.CORSOrigin, "ATRIUM_CORS_ORIGIN")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ATRIUM_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ATRIUM_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ATRIUM_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ATRIUM_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ATRIUM_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Auth.JWTSecret, "ATRIUM_AUTH_JWT_SECRET")
	setDuration(&cfg.Auth.AccessTokenTTL, "ATRIUM_AUTH_ACCESS_TTL")
	setDuration(&cfg.Auth.RefreshTokenTTL, "ATRIUM_AUTH_REFRESH_TTL")
	setInt(&cfg.Auth.BcryptCost, "ATRIUM_AUTH_BCRYPT_COST")

	setString(&cfg.Tenants.DefaultTimezone, "ATRIUM_TENANT_DEFAULT_TIMEZONE")
	setInt(&cfg.Tenants.DefaultPageLimit, "ATRIUM_TENANT_DEFAULT_PAGE_LIMIT")
	setInt(&cfg.Tenants.MaxPageLimit, "ATRIUM_TENANT_MAX_PAGE_LIMIT")

	setInt64(&cfg.Cache.L1MaxSizeMB, "ATRIUM_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "ATRIUM_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "ATRIUM_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "ATRIUM_CACHE_L2_TTL")

	setString(&cfg.Idempotency.Bucket, "ATRIUM_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "ATRIUM_IDEMPOTENCY_TTL")

	setString(&cfg.Logging.Level, "ATRIUM_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ATRIUM_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "ATRIUM_LOG_ASYNC")
	setInt(&cfg.Logging.AsyncBuffer, "ATRIUM_LOG_ASYNC_BUFFER")

	setInt(&cfg.Breaker.MaxFailures, "ATRIUM_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "ATRIUM_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "ATRIUM_RATE_RPS")
	setInt(&cfg.Rate.Burst, "ATRIUM_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "ATRIUM_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "ATRIUM_RATE_MAX_IDLE_TIME")

	setString(&cfg.Telemetry.Endpoint, "ATRIUM_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "ATRIUM_OTLP_INSECURE")
	setDuration(&cfg.Telemetry.Interval, "ATRIUM_OTLP_INTERVAL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return errors.New("auth.bcrypt_cost must be between 4 and 31")
	}
	if cfg.Tenants.DefaultTimezone == "" {
		return errors.New("tenants.default_timezone is required")
	}
	if cfg.Tenants.DefaultPageLimit < 1 || cfg.Tenants.MaxPageLimit < cfg.Tenants.DefaultPageLimit {
		return errors.New("tenants page limits must satisfy 1 <= default <= max")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
