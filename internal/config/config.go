package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	DatabaseURL string
	RedisURL    string

	LogFormat        string
	LogLevel         string
	OTLPEndpoint     string
	SamplingRatio    float64
	MetricsNamespace string
	MetricsBuckets   string
	MetricsAddr      string

	QueuePrefix            string
	QueueConcurrency       int
	QueueMaxAttempts       int
	QueueVisibilityTimeout time.Duration
	QueueBackoffBase       time.Duration

	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	VatCacheTTL time.Duration
	VatMaxHops  int

	FileServiceURL         string
	FileServiceTimeout     time.Duration
	FileServiceMaxAttempts int

	ItemNamePreferred       int
	ItemNameAppendVariation bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		OTLPEndpoint:     strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		SamplingRatio:    parseFloat(k.String("OTEL_SAMPLING_RATIO"), 1),
		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "orderlines"),
		MetricsBuckets:   k.String("METRICS_LATENCY_BUCKETS_MS"),
		MetricsAddr:      strings.TrimSpace(k.String("METRICS_ADDR")),

		QueuePrefix:            valueOrDefault(k.String("QUEUE_REDIS_PREFIX"), "orderlines"),
		QueueConcurrency:       parseInt(k.String("QUEUE_CONCURRENCY"), 4),
		QueueMaxAttempts:       parseInt(k.String("QUEUE_MAX_ATTEMPTS"), 5),
		QueueVisibilityTimeout: parseDuration(k.String("QUEUE_VISIBILITY_TIMEOUT"), "30s"),
		QueueBackoffBase:       parseDuration(k.String("QUEUE_BACKOFF_BASE"), "500ms"),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		VatCacheTTL: parseDuration(k.String("VAT_CACHE_TTL"), "10m"),
		VatMaxHops:  parseInt(k.String("VAT_MAX_HOPS"), 5),

		FileServiceURL:         strings.TrimRight(strings.TrimSpace(k.String("FILE_SERVICE_URL")), "/"),
		FileServiceTimeout:     parseDuration(k.String("FILE_SERVICE_TIMEOUT"), "5s"),
		FileServiceMaxAttempts: parseInt(k.String("FILE_SERVICE_MAX_ATTEMPTS"), 1),

		ItemNamePreferred:       parseInt(k.String("ITEM_NAME_PREFERRED"), 1),
		ItemNameAppendVariation: parseBool(k.String("ITEM_NAME_APPEND_VARIATION")),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.FileServiceURL == "" {
		return nil, errors.New("FILE_SERVICE_URL is required")
	}
	if cfg.ItemNamePreferred < 1 || cfg.ItemNamePreferred > 3 {
		return nil, fmt.Errorf("ITEM_NAME_PREFERRED must be 1, 2 or 3, got %d", cfg.ItemNamePreferred)
	}
	if cfg.SamplingRatio < 0 || cfg.SamplingRatio > 1 {
		return nil, fmt.Errorf("OTEL_SAMPLING_RATIO must be within [0,1], got %v", cfg.SamplingRatio)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
