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
const DefaultConfigFile = "vareon.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
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
	setString(&cfg.Server.Port, "VAREON_PORT")
	setString(&cfg.Server.CORSOrigin, "VAREON_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "VAREON_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "VAREON_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "VAREON_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "VAREON_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "VAREON_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "VAREON_LOG_LEVEL")
	setString(&cfg.Logging.Service, "VAREON_LOG_SERVICE")
	setInt(&cfg.Engine.MaxIterations, "VAREON_ENGINE_MAX_ITERATIONS")
	setInt(&cfg.Engine.HumanContextLogs, "VAREON_ENGINE_HUMAN_CONTEXT_LOGS")
	setDuration(&cfg.Engine.ModelCacheTTL, "VAREON_ENGINE_MODEL_CACHE_TTL")
	setDuration(&cfg.Engine.ShellTimeout, "VAREON_ENGINE_SHELL_TIMEOUT")
	setString(&cfg.Secrets.EncryptionKey, "VAREON_ENCRYPTION_KEY")
	setString(&cfg.Metrics.OTLPEndpoint, "VAREON_OTLP_ENDPOINT")
	setDuration(&cfg.Metrics.Interval, "VAREON_METRICS_INTERVAL")
}

// validate rejects configurations that cannot work.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres dsn is required")
	}
	if cfg.Engine.MaxIterations < 1 {
		return fmt.Errorf("engine max_iterations must be >= 1, got %d", cfg.Engine.MaxIterations)
	}
	if cfg.Engine.HumanContextLogs < 0 {
		return fmt.Errorf("engine human_context_logs must be >= 0, got %d", cfg.Engine.HumanContextLogs)
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

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
