// Package memory provides the shared business logic behind every MCP tool:
// the upsert gate pipeline, the hybrid search orchestration, and the
// memory_maintain housekeeping pipeline. The MCP server delegates to this
// service so tool handlers stay thin request/response adapters (spec.md
// §4.3, §4.5, §4.8).
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/audit"
	"github.com/kioku-ai/kioku/internal/cache"
	"github.com/kioku-ai/kioku/internal/embedding"
	"github.com/kioku-ai/kioku/internal/governance"
	"github.com/kioku-ai/kioku/internal/graph"
	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/search"
	"github.com/kioku-ai/kioku/internal/storage"
	"github.com/kioku-ai/kioku/internal/telemetry"
)

// Service wires storage, embedding, search, governance, graph, cache and
// audit into the operations the MCP layer calls.
type Service struct {
	store    *storage.Store
	embedder embedding.Provider
	keyword  search.KeywordSearcher
	vector   search.VectorSearcher
	governor *governance.Engine
	graph    *graph.Graph
	cache    *cache.ItemCache
	auditLog *audit.Buffer
	logger   *slog.Logger

	embedGroup singleflight.Group

	writeCountsMu sync.Mutex
	writeCounts   map[string]int

	embeddingDuration metric.Float64Histogram
	searchDuration    metric.Float64Histogram
}

// New builds a Service. vector may be a *search.QdrantIndex or a
// *search.BruteForceIndex depending on whether KIOKU_QDRANT_URL is set.
func New(
	store *storage.Store,
	embedder embedding.Provider,
	keyword search.KeywordSearcher,
	vector search.VectorSearcher,
	governor *governance.Engine,
	g *graph.Graph,
	itemCache *cache.ItemCache,
	auditLog *audit.Buffer,
	logger *slog.Logger,
) *Service {
	meter := telemetry.Meter("kioku/memory")
	embDur, _ := meter.Float64Histogram("kioku.embedding.duration",
		metric.WithDescription("Time to generate embeddings (ms)"),
		metric.WithUnit("ms"),
	)
	searchDur, _ := meter.Float64Histogram("kioku.search.duration",
		metric.WithDescription("Time to execute search queries (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{
		store: store, embedder: embedder, keyword: keyword, vector: vector,
		governor: governor, graph: g, cache: itemCache, auditLog: auditLog, logger: logger,
		writeCounts:       make(map[string]int),
		embeddingDuration: embDur, searchDuration: searchDur,
	}
}

// countWrite increments and returns the running write count for a project,
// the counter behind memory_upsert's maintenance_warning nudge (spec.md
// §4.3). In-memory and per-process: a restart resets it, which only delays
// the next nudge rather than breaking correctness.
func (s *Service) countWrite(tenant, project string) int {
	s.writeCountsMu.Lock()
	defer s.writeCountsMu.Unlock()
	key := tenant + "/" + project
	s.writeCounts[key]++
	return s.writeCounts[key]
}

// recordAudit appends an audit record without letting a full buffer or a
// draining shutdown fail the caller's operation.
func (s *Service) recordAudit(tenant, project, tool, traceID string, success bool, errorCode string, start time.Time, itemID uuid.UUID, detail string) {
	rec := model.AuditRecord{
		Tenant: tenant, Project: project, Tool: tool, TraceID: traceID,
		Success: success, ErrorCode: errorCode, DurationMS: time.Since(start).Milliseconds(),
		ItemID: itemID, Detail: detail,
	}
	if err := s.auditLog.Append(rec); err != nil {
		s.logger.Warn("memory: audit append dropped", "tool", tool, "error", err)
	}
}

// DBBackend reports which storage dialect is in use, for forensic meta
// (spec.md §6 "db_backend").
func (s *Service) DBBackend() string {
	return string(s.store.Dialect())
}

// EmbeddingBackend names the configured embedding provider, for forensic
// meta (spec.md §6 "embedding_backend_used"). An embedding.ErrNoProvider
// from a NoopProvider is reported as the degraded mode rather than a
// backend name.
func (s *Service) EmbeddingBackend() string {
	switch s.embedder.(type) {
	case *embedding.OpenAIProvider:
		return "openai"
	case *embedding.OllamaProvider:
		return "ollama"
	case *embedding.NoopProvider:
		return "disabled"
	default:
		return "custom"
	}
}

// ListStatus returns every item in tenant/project holding status, for the
// forensic meta governance snapshot (spec.md §6).
func (s *Service) ListStatus(ctx context.Context, tenant, project string, status model.Status) ([]model.MemoryItem, error) {
	return s.store.ListItems(ctx, model.ListFilter{Tenant: tenant, Project: project, Status: status, Limit: 100000})
}

// ActiveGuardrailCount returns the number of active guardrails in a
// project, for the forensic meta governance snapshot.
func (s *Service) ActiveGuardrailCount(ctx context.Context, tenant, project string) (int, error) {
	guardrails, err := s.store.ListGuardrails(ctx, tenant, project)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, g := range guardrails {
		if g.Active {
			n++
		}
	}
	return n, nil
}

// embed generates an embedding for text, collapsing concurrent calls for the
// identical string into a single provider request (spec.md §4.3: concurrent
// upserts of the same content during a burst should not each pay the
// embedding provider's latency). The shared result is never mutated by
// callers, so handing the same slice to every waiter is safe.
func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	v, err, _ := s.embedGroup.Do(text, func() (interface{}, error) {
		return s.embedder.Embed(ctx, text)
	})
	s.embeddingDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}
