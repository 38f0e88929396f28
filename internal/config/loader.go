package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "qagate.yaml"

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
	setString(&cfg.Server.Port, "QAGATE_PORT")
	setString(&cfg.Server.CORSOrigin, "QAGATE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "QAGATE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "QAGATE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "QAGATE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "QAGATE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "QAGATE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "QAGATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "QAGATE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "QAGATE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "QAGATE_BREAKER_TIMEOUT")
	setDuration(&cfg.Scoring.TermTimeout, "QAGATE_TERM_TIMEOUT")
	setInt64(&cfg.Memory.CacheMaxBytes, "QAGATE_CACHE_MAX_BYTES")
	setDuration(&cfg.Memory.EmbedTimeout, "QAGATE_EMBED_TIMEOUT")
	setInt64(&cfg.Memory.MaxInflightEmbed, "QAGATE_MAX_INFLIGHT_EMBED")
	setDuration(&cfg.Review.SweepInterval, "QAGATE_SWEEP_INTERVAL")
	setFloat64(&cfg.Review.StatsAlpha, "QAGATE_STATS_ALPHA")
	setInt(&cfg.Feedback.IssueThreshold, "QAGATE_ISSUE_THRESHOLD")
	setFloat64(&cfg.Pipeline.ReviewThreshold, "QAGATE_REVIEW_THRESHOLD")
	setFloat64(&cfg.Pipeline.MinConfidence, "QAGATE_MIN_CONFIDENCE")
	setString(&cfg.Terminology.BaseURL, "QAGATE_TERMINOLOGY_URL")
	setString(&cfg.Terminology.APIKey, "QAGATE_TERMINOLOGY_API_KEY")
	setString(&cfg.Embedding.BaseURL, "QAGATE_EMBEDDING_URL")
	setString(&cfg.Embedding.APIKey, "QAGATE_EMBEDDING_API_KEY")
	setString(&cfg.Embedding.Model, "QAGATE_EMBEDDING_MODEL")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate rejects misconfiguration that must abort startup.
func validate(cfg *Config) error {
	if err := cfg.Scoring.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring weights: %w", err)
	}
	if err := cfg.Review.Policies.Validate(); err != nil {
		return fmt.Errorf("review policies: %w", err)
	}
	if cfg.Memory.ReinforceReward <= 0 || cfg.Memory.ReinforcePenalty <= 0 {
		return fmt.Errorf("memory reinforcement steps must be positive")
	}
	if cfg.Review.StatsAlpha <= 0 || cfg.Review.StatsAlpha > 1 {
		return fmt.Errorf("review stats_alpha must be in (0,1]")
	}
	if cfg.Pipeline.ReviewThreshold < 0 || cfg.Pipeline.ReviewThreshold > 100 {
		return fmt.Errorf("pipeline review_threshold must be in [0,100]")
	}
	if cfg.Pipeline.MinConfidence < 0 || cfg.Pipeline.MinConfidence > 1 {
		return fmt.Errorf("pipeline min_confidence must be in [0,1]")
	}
	if cfg.Feedback.IssueThreshold < 1 {
		return fmt.Errorf("feedback issue_threshold must be >= 1")
	}
	if cfg.Memory.MaxInflightEmbed < 1 {
		return fmt.Errorf("memory max_inflight_embed must be >= 1")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}
