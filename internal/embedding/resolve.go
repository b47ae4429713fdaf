package embedding

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kioku-ai/kioku/internal/config"
)

// maxEmbedRetries and embedRetryBaseDelay implement spec.md §5's embedding
// retry policy: up to 3 retries, linear backoff.
const (
	maxEmbedRetries     = 3
	embedRetryBaseDelay = 200 * time.Millisecond
)

// Resolve builds the Provider named by cfg.EmbeddingProvider, wrapped in
// retry. "auto" probes Ollama first (on-premises, no API cost) and falls
// back to OpenAI if an API key is set, then to Noop.
func Resolve(cfg config.Config, logger *slog.Logger) Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when KIOKU_EMBEDDING_PROVIDER=openai")
			return NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return newOpenAIOrNoop(cfg, logger)
	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return WithRetry(NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims), maxEmbedRetries, embedRetryBaseDelay)
	case "noop":
		logger.Info("embedding provider: noop (semantic search disabled)")
		return NewNoopProvider(dims)
	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return WithRetry(NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims), maxEmbedRetries, embedRetryBaseDelay)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			return newOpenAIOrNoop(cfg, logger)
		}
		logger.Warn("no embedding provider available, using noop (semantic search disabled)")
		return NewNoopProvider(dims)
	}
}

func newOpenAIOrNoop(cfg config.Config, logger *slog.Logger) Provider {
	p, err := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	if err != nil {
		logger.Error("openai provider init failed", "error", err)
		return NewNoopProvider(cfg.EmbeddingDimensions)
	}
	return WithRetry(p, maxEmbedRetries, embedRetryBaseDelay)
}

func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
