package kioku

import (
	"log/slog"

	"github.com/kioku-ai/kioku/internal/embedding"
)

// Option configures an App. Unexported resolvedOptions — callers use the
// With* functions below.
type Option func(*resolvedOptions)

type resolvedOptions struct {
	logger      *slog.Logger
	version     string
	dbPath      string
	databaseURL string
	embedder    embedding.Provider
}

// WithLogger sets the structured logger for the App. Defaults to
// slog.Default() if not set.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and forensic meta.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithDBPath overrides the embedded SQLite file path (KIOKU_DB_PATH env var).
func WithDBPath(path string) Option {
	return func(o *resolvedOptions) { o.dbPath = path }
}

// WithDatabaseURL overrides the Postgres DSN (DATABASE_URL env var) and
// selects the server backend.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithEmbeddingProvider replaces the auto-detected embedding provider
// (Ollama/OpenAI/noop), letting an embedder adopt kioku without forking it.
func WithEmbeddingProvider(p embedding.Provider) Option {
	return func(o *resolvedOptions) { o.embedder = p }
}
