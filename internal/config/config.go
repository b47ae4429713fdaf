// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend selects the storage engine.
type Backend string

const (
	BackendEmbedded Backend = "embedded"
	BackendServer   Backend = "server"
)

// Config holds all application configuration.
type Config struct {
	// Identity.
	DefaultTenant  string
	DefaultProject string

	// Storage settings.
	Backend     Backend // "embedded" (SQLite file) or "server" (Postgres)
	DBPath      string  // embedded backend: path to the SQLite file
	DatabaseURL string  // server backend: Postgres DSN

	// Embedding provider settings.
	EmbeddingProvider   string // "auto", "openai", "ollama", or "noop"
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaURL           string
	OllamaModel         string

	// Qdrant optional ANN acceleration.
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Governance thresholds (spec.md §4.4).
	QuarantineErrorThreshold int
	DeleteErrorThreshold     int
	LoopBreakerThreshold     int
	FuzzyTitleJaccardFloor   float64
	FuzzyTitleDominanceFloor float64

	// Cache settings.
	CacheCapacity int
	CacheTTL      time.Duration

	// Audit settings.
	AuditBufferSize   int
	AuditFlushTimeout time.Duration
	AuditMaxRows      int

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		DefaultTenant:      envStr("KIOKU_TENANT", "default"),
		DefaultProject:     envStr("KIOKU_PROJECT", "default"),
		Backend:            Backend(envStr("KIOKU_BACKEND", "embedded")),
		DBPath:             envStr("KIOKU_DB_PATH", "kioku.db"),
		DatabaseURL:        envStr("DATABASE_URL", ""),
		EmbeddingProvider:  envStr("KIOKU_EMBEDDING_PROVIDER", "auto"),
		OpenAIAPIKey:       envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:     envStr("KIOKU_EMBEDDING_MODEL", "text-embedding-3-small"),
		OllamaURL:          envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:        envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		QdrantURL:          envStr("KIOKU_QDRANT_URL", ""),
		QdrantAPIKey:       envStr("KIOKU_QDRANT_API_KEY", ""),
		QdrantCollection:   envStr("KIOKU_QDRANT_COLLECTION", "kioku_items"),
		OTELEndpoint:       envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:        envStr("OTEL_SERVICE_NAME", "kioku"),
		LogLevel:           envStr("KIOKU_LOG_LEVEL", "info"),
	}

	cfg.EmbeddingDimensions, errs = collectInt(errs, "KIOKU_EMBEDDING_DIMENSIONS", 1536)
	cfg.QuarantineErrorThreshold, errs = collectInt(errs, "KIOKU_QUARANTINE_ERROR_THRESHOLD", 3)
	cfg.DeleteErrorThreshold, errs = collectInt(errs, "KIOKU_DELETE_ERROR_THRESHOLD", 5)
	cfg.LoopBreakerThreshold, errs = collectInt(errs, "KIOKU_LOOPBREAKER_THRESHOLD", 3)
	cfg.CacheCapacity, errs = collectInt(errs, "KIOKU_CACHE_CAPACITY", 200)
	cfg.AuditBufferSize, errs = collectInt(errs, "KIOKU_AUDIT_BUFFER_SIZE", 256)
	cfg.AuditMaxRows, errs = collectInt(errs, "KIOKU_AUDIT_MAX_ROWS", 5000)

	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)

	cfg.CacheTTL, errs = collectDuration(errs, "KIOKU_CACHE_TTL", 5*time.Minute)
	cfg.AuditFlushTimeout, errs = collectDuration(errs, "KIOKU_AUDIT_FLUSH_TIMEOUT", 200*time.Millisecond)

	cfg.FuzzyTitleJaccardFloor = envFloat("KIOKU_FUZZY_JACCARD_FLOOR", 0.60)
	cfg.FuzzyTitleDominanceFloor = envFloat("KIOKU_FUZZY_DOMINANCE_FLOOR", 0.80)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that required configuration is present and sane.
func (c Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendEmbedded:
		if c.DBPath == "" {
			errs = append(errs, errors.New("config: KIOKU_DB_PATH is required for the embedded backend"))
		}
	case BackendServer:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required for the server backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: KIOKU_BACKEND must be %q or %q, got %q", BackendEmbedded, BackendServer, c.Backend))
	}

	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("config: KIOKU_EMBEDDING_DIMENSIONS must be positive"))
	}
	if c.QuarantineErrorThreshold <= 0 {
		errs = append(errs, errors.New("config: KIOKU_QUARANTINE_ERROR_THRESHOLD must be positive"))
	}
	if c.DeleteErrorThreshold <= c.QuarantineErrorThreshold {
		errs = append(errs, errors.New("config: KIOKU_DELETE_ERROR_THRESHOLD must exceed KIOKU_QUARANTINE_ERROR_THRESHOLD"))
	}
	if c.LoopBreakerThreshold <= 0 {
		errs = append(errs, errors.New("config: KIOKU_LOOPBREAKER_THRESHOLD must be positive"))
	}
	if c.CacheCapacity <= 0 {
		errs = append(errs, errors.New("config: KIOKU_CACHE_CAPACITY must be positive"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("config: KIOKU_CACHE_TTL must be positive"))
	}
	if c.AuditBufferSize <= 0 {
		errs = append(errs, errors.New("config: KIOKU_AUDIT_BUFFER_SIZE must be positive"))
	}
	if c.AuditFlushTimeout <= 0 {
		errs = append(errs, errors.New("config: KIOKU_AUDIT_FLUSH_TIMEOUT must be positive"))
	}
	if c.FuzzyTitleJaccardFloor <= 0 || c.FuzzyTitleJaccardFloor > 1 {
		errs = append(errs, errors.New("config: KIOKU_FUZZY_JACCARD_FLOOR must be in (0,1]"))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
