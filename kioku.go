// Package kioku is the public, embeddable API for the memory store: a
// consumer that wants the store wired into its own process (rather than
// shelling out to the kioku binary) imports this package.
//
//	app, err := kioku.New(ctx, kioku.WithVersion(version))
//	if err != nil { ... }
//	defer app.Close(context.Background())
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: kioku (root) imports
// internal/*, but internal/* never imports kioku (root).
package kioku

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kioku-ai/kioku/internal/audit"
	"github.com/kioku-ai/kioku/internal/cache"
	"github.com/kioku-ai/kioku/internal/config"
	"github.com/kioku-ai/kioku/internal/embedding"
	"github.com/kioku-ai/kioku/internal/governance"
	"github.com/kioku-ai/kioku/internal/graph"
	"github.com/kioku-ai/kioku/internal/mcp"
	"github.com/kioku-ai/kioku/internal/search"
	"github.com/kioku-ai/kioku/internal/service/memory"
	"github.com/kioku-ai/kioku/internal/storage"
	"github.com/kioku-ai/kioku/internal/telemetry"
)

// App is the kioku server lifecycle. Construct with New(), start serving
// with Run(). App has no public fields — use New()'s options to configure
// it.
type App struct {
	cfg          config.Config
	store        *storage.Store
	memory       *memory.Service
	mcp          *mcp.Server
	auditBuf     *audit.Buffer
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New wires storage, embedding, search, governance, graph, cache, audit,
// and the MCP server into a ready-to-run App. It does not start any
// goroutines or accept stdio traffic — call Run() for that.
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.databaseURL != "" {
		cfg.Backend = config.BackendServer
		cfg.DatabaseURL = o.databaseURL
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("kioku starting", "version", version, "backend", cfg.Backend)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	embedder := o.embedder
	if embedder == nil {
		embedder = embedding.Resolve(cfg, logger)
	}

	keyword := search.NewKeywordIndex(store)
	bruteForce := search.NewBruteForceIndex(store)

	var vector search.VectorSearcher = bruteForce
	if cfg.QdrantURL != "" {
		qdrantIndex, err := search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, bruteForce, logger)
		if err != nil {
			_ = store.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		vector = qdrantIndex
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no KIOKU_QDRANT_URL), using brute-force vector search")
	}

	governor := governance.New(store)
	g := graph.New(store)
	itemCache := cache.New(cfg.CacheCapacity, cfg.CacheTTL)

	auditBuf := audit.NewBuffer(store, logger, cfg.AuditBufferSize, cfg.AuditFlushTimeout)
	auditBuf.Start(ctx)

	memorySvc := memory.New(store, embedder, keyword, vector, governor, g, itemCache, auditBuf, logger)
	mcpSrv := mcp.New(memorySvc, logger, version)

	return &App{
		cfg: cfg, store: store, memory: memorySvc, mcp: mcpSrv,
		auditBuf: auditBuf, otelShutdown: otelShutdown, logger: logger, version: version,
	}, nil
}

// Memory returns the underlying memory service, for embedders that want to
// call Upsert/Search/etc. directly instead of going through MCP.
func (a *App) Memory() *memory.Service { return a.memory }

// MCPServer returns the underlying mcp-go server, for embedders that want
// to mount it on their own transport instead of calling Run().
func (a *App) MCPServer() *mcpserver.MCPServer { return a.mcp.MCPServer() }

// Run serves the MCP stdio transport until ctx is canceled or the
// transport returns an error.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := mcpserver.ServeStdio(a.mcp.MCPServer()); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("mcp stdio server: %w", err)
	}
}

// Close drains the audit buffer, checkpoints the WAL, and releases the
// store and telemetry exporter. Call after Run returns.
func (a *App) Close(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	a.auditBuf.Drain(drainCtx)

	if err := a.store.Checkpoint(drainCtx); err != nil {
		a.logger.Warn("wal checkpoint on shutdown failed", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", "error", err)
	}
	return a.otelShutdown(ctx)
}
