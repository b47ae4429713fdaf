package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidInt(t *testing.T) {
	t.Setenv("KIOKU_CACHE_CAPACITY", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid KIOKU_CACHE_CAPACITY")
	}
	// Error should mention the variable name and value.
	if got := err.Error(); !contains(got, "KIOKU_CACHE_CAPACITY") || !contains(got, "abc") {
		t.Fatalf("error should mention KIOKU_CACHE_CAPACITY and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("KIOKU_CACHE_CAPACITY", "abc")
	t.Setenv("KIOKU_EMBEDDING_DIMENSIONS", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "KIOKU_CACHE_CAPACITY") {
		t.Fatalf("error should mention KIOKU_CACHE_CAPACITY, got: %s", got)
	}
	if !contains(got, "KIOKU_EMBEDDING_DIMENSIONS") {
		t.Fatalf("error should mention KIOKU_EMBEDDING_DIMENSIONS, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	// With no env vars set, Load should succeed using all defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Backend != BackendEmbedded {
		t.Fatalf("expected default backend %q, got %q", BackendEmbedded, cfg.Backend)
	}
	if cfg.DeleteErrorThreshold != 5 {
		t.Fatalf("expected default delete threshold 5, got %d", cfg.DeleteErrorThreshold)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestLoad_ServerBackendRequiresDatabaseURL(t *testing.T) {
	t.Setenv("KIOKU_BACKEND", "server")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when KIOKU_BACKEND=server and DATABASE_URL is empty")
	}
	got := err.Error()
	if !contains(got, "DATABASE_URL") {
		t.Fatalf("error should mention DATABASE_URL, got: %s", got)
	}
	if !contains(got, "server backend") {
		t.Fatalf("error should mention the server backend, got: %s", got)
	}
}

func TestLoad_DeleteThresholdMustExceedQuarantine(t *testing.T) {
	t.Run("equal fails", func(t *testing.T) {
		t.Setenv("KIOKU_QUARANTINE_ERROR_THRESHOLD", "3")
		t.Setenv("KIOKU_DELETE_ERROR_THRESHOLD", "3")

		_, err := Load()
		if err == nil {
			t.Fatal("expected Load() to fail when the delete threshold equals the quarantine threshold")
		}
		if !contains(err.Error(), "must exceed") {
			t.Fatalf("error should mention the threshold ordering, got: %s", err.Error())
		}
	})

	t.Run("below fails", func(t *testing.T) {
		t.Setenv("KIOKU_QUARANTINE_ERROR_THRESHOLD", "4")
		t.Setenv("KIOKU_DELETE_ERROR_THRESHOLD", "2")

		_, err := Load()
		if err == nil {
			t.Fatal("expected Load() to fail when the delete threshold is below the quarantine threshold")
		}
		if !contains(err.Error(), "must exceed") {
			t.Fatalf("error should mention the threshold ordering, got: %s", err.Error())
		}
	})

	t.Run("above succeeds", func(t *testing.T) {
		t.Setenv("KIOKU_QUARANTINE_ERROR_THRESHOLD", "3")
		t.Setenv("KIOKU_DELETE_ERROR_THRESHOLD", "4")

		_, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed with delete threshold above quarantine threshold, got: %v", err)
		}
	})
}

func TestLoad_OTELEndpointParsing(t *testing.T) {
	endpoint := "https://otel.example.com:4317"
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", endpoint)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.OTELEndpoint != endpoint {
		t.Fatalf("expected OTELEndpoint %q, got %q", endpoint, cfg.OTELEndpoint)
	}
}

func TestLoad_EmbeddingProviderSelection(t *testing.T) {
	t.Setenv("KIOKU_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", "http://localhost:11434")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.EmbeddingProvider != "ollama" {
		t.Fatalf("expected EmbeddingProvider %q, got %q", "ollama", cfg.EmbeddingProvider)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Fatalf("expected OllamaURL %q, got %q", "http://localhost:11434", cfg.OllamaURL)
	}
}

func TestLoad_QdrantURLValidation(t *testing.T) {
	t.Run("explicit URL", func(t *testing.T) {
		qdrantURL := "https://qdrant.example.com:6334"
		t.Setenv("KIOKU_QDRANT_URL", qdrantURL)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed, got: %v", err)
		}
		if cfg.QdrantURL != qdrantURL {
			t.Fatalf("expected QdrantURL %q, got %q", qdrantURL, cfg.QdrantURL)
		}
	})

	t.Run("empty default", func(t *testing.T) {
		// KIOKU_QDRANT_URL is not set; default should be empty.
		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed, got: %v", err)
		}
		if cfg.QdrantURL != "" {
			t.Fatalf("expected empty QdrantURL by default, got %q", cfg.QdrantURL)
		}
	})
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("KIOKU_TENANT", "acme")
	t.Setenv("KIOKU_PROJECT", "kioku-test")
	t.Setenv("KIOKU_BACKEND", "server")
	t.Setenv("DATABASE_URL", "postgres://db:5432/kioku_test")
	t.Setenv("KIOKU_DB_PATH", "/tmp/kioku-test.db")
	t.Setenv("KIOKU_EMBEDDING_PROVIDER", "openai")
	t.Setenv("KIOKU_EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("KIOKU_EMBEDDING_DIMENSIONS", "768")
	t.Setenv("OLLAMA_MODEL", "nomic-embed-text")
	t.Setenv("KIOKU_QDRANT_COLLECTION", "kioku_test")
	t.Setenv("OTEL_SERVICE_NAME", "kioku-test")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("KIOKU_LOG_LEVEL", "debug")
	t.Setenv("KIOKU_QUARANTINE_ERROR_THRESHOLD", "4")
	t.Setenv("KIOKU_DELETE_ERROR_THRESHOLD", "8")
	t.Setenv("KIOKU_LOOPBREAKER_THRESHOLD", "5")
	t.Setenv("KIOKU_CACHE_CAPACITY", "50")
	t.Setenv("KIOKU_CACHE_TTL", "10m")
	t.Setenv("KIOKU_AUDIT_BUFFER_SIZE", "64")
	t.Setenv("KIOKU_AUDIT_FLUSH_TIMEOUT", "1s")
	t.Setenv("KIOKU_AUDIT_MAX_ROWS", "1000")
	t.Setenv("KIOKU_FUZZY_JACCARD_FLOOR", "0.7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}

	if cfg.DefaultTenant != "acme" {
		t.Fatalf("expected DefaultTenant %q, got %q", "acme", cfg.DefaultTenant)
	}
	if cfg.DefaultProject != "kioku-test" {
		t.Fatalf("expected DefaultProject %q, got %q", "kioku-test", cfg.DefaultProject)
	}
	if cfg.Backend != BackendServer {
		t.Fatalf("expected Backend %q, got %q", BackendServer, cfg.Backend)
	}
	if cfg.DatabaseURL != "postgres://db:5432/kioku_test" {
		t.Fatalf("expected DatabaseURL %q, got %q", "postgres://db:5432/kioku_test", cfg.DatabaseURL)
	}
	if cfg.DBPath != "/tmp/kioku-test.db" {
		t.Fatalf("expected DBPath %q, got %q", "/tmp/kioku-test.db", cfg.DBPath)
	}
	if cfg.EmbeddingProvider != "openai" {
		t.Fatalf("expected EmbeddingProvider %q, got %q", "openai", cfg.EmbeddingProvider)
	}
	if cfg.EmbeddingModel != "text-embedding-3-large" {
		t.Fatalf("expected EmbeddingModel %q, got %q", "text-embedding-3-large", cfg.EmbeddingModel)
	}
	if cfg.EmbeddingDimensions != 768 {
		t.Fatalf("expected EmbeddingDimensions 768, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.OllamaModel != "nomic-embed-text" {
		t.Fatalf("expected OllamaModel %q, got %q", "nomic-embed-text", cfg.OllamaModel)
	}
	if cfg.QdrantCollection != "kioku_test" {
		t.Fatalf("expected QdrantCollection %q, got %q", "kioku_test", cfg.QdrantCollection)
	}
	if cfg.ServiceName != "kioku-test" {
		t.Fatalf("expected ServiceName %q, got %q", "kioku-test", cfg.ServiceName)
	}
	if !cfg.OTELInsecure {
		t.Fatal("expected OTELInsecure true")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel %q, got %q", "debug", cfg.LogLevel)
	}
	if cfg.QuarantineErrorThreshold != 4 {
		t.Fatalf("expected QuarantineErrorThreshold 4, got %d", cfg.QuarantineErrorThreshold)
	}
	if cfg.DeleteErrorThreshold != 8 {
		t.Fatalf("expected DeleteErrorThreshold 8, got %d", cfg.DeleteErrorThreshold)
	}
	if cfg.LoopBreakerThreshold != 5 {
		t.Fatalf("expected LoopBreakerThreshold 5, got %d", cfg.LoopBreakerThreshold)
	}
	if cfg.CacheCapacity != 50 {
		t.Fatalf("expected CacheCapacity 50, got %d", cfg.CacheCapacity)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Fatalf("expected CacheTTL 10m, got %s", cfg.CacheTTL)
	}
	if cfg.AuditBufferSize != 64 {
		t.Fatalf("expected AuditBufferSize 64, got %d", cfg.AuditBufferSize)
	}
	if cfg.AuditFlushTimeout != time.Second {
		t.Fatalf("expected AuditFlushTimeout 1s, got %s", cfg.AuditFlushTimeout)
	}
	if cfg.AuditMaxRows != 1000 {
		t.Fatalf("expected AuditMaxRows 1000, got %d", cfg.AuditMaxRows)
	}
	if cfg.FuzzyTitleJaccardFloor != 0.7 {
		t.Fatalf("expected FuzzyTitleJaccardFloor 0.7, got %f", cfg.FuzzyTitleJaccardFloor)
	}
}
