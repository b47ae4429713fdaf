package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dims       uint64
}

// QdrantIndex is an optional accelerated VectorSearcher; used only when
// KIOKU_QDRANT_URL is set (spec.md §4.2 "Qdrant" domain stack entry). A
// failed Qdrant query is handled inside Search by falling back to the
// wrapped BruteForceIndex, never surfaced as a search failure.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	fallback   *BruteForceIndex
	logger     *slog.Logger

	healthMu  sync.Mutex
	lastCheck time.Time
	lastErr   error
}

func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("search: invalid qdrant URL: %q", rawURL)
	}
	useTLS = u.Scheme == "https"
	host = u.Hostname()
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("search: invalid port in qdrant URL: %q", portStr)
		}
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}
	return host, port, useTLS, nil
}

// NewQdrantIndex connects to Qdrant via gRPC and wraps fallback for use
// whenever the remote call fails.
func NewQdrantIndex(cfg QdrantConfig, fallback *BruteForceIndex, logger *slog.Logger) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port, APIKey: cfg.APIKey, UseTLS: useTLS})
	if err != nil {
		return nil, fmt.Errorf("search: connect to qdrant at %s:%d: %w", host, port, err)
	}
	return &QdrantIndex{client: client, collection: cfg.Collection, dims: cfg.Dims, fallback: fallback, logger: logger}, nil
}

// EnsureCollection creates the collection if it doesn't already exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("search: check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	m, efConstruct := uint64(16), uint64(128)
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size: q.dims, Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{M: &m, EfConstruct: &efConstruct},
		}),
	})
	if err != nil {
		return fmt.Errorf("search: create collection %q: %w", q.collection, err)
	}
	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"tenant", "project", "kind"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection, FieldName: field, FieldType: &keywordType,
		}); err != nil {
			return fmt.Errorf("search: create index on %q: %w", field, err)
		}
	}
	return nil
}

// Search queries Qdrant scoped to tenant/project, falling back to brute
// force on any error.
func (q *QdrantIndex) Search(ctx context.Context, tenant, project string, query []float32, limit int) ([]Result, error) {
	must := []*qdrant.Condition{
		qdrant.NewMatch("tenant", tenant),
		qdrant.NewMatch("project", project),
	}
	fetchLimit := uint64(limit)
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(query),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &fetchLimit,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		q.logger.Warn("qdrant query failed, falling back to brute force", "error", err)
		return q.fallback.Search(ctx, tenant, project, query, limit)
	}

	results := make([]Result, 0, len(scored))
	for _, sp := range scored {
		idStr := sp.Id.GetUuid()
		if idStr == "" {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		results = append(results, Result{ItemID: id, Score: float64(sp.Score)})
	}
	return results, nil
}

// Upsert indexes a single item's embedding into Qdrant, best-effort: the
// caller logs and continues on error since Postgres/SQLite remain the
// source of truth.
func (q *QdrantIndex) Upsert(ctx context.Context, tenant, project, kind string, id uuid.UUID, embedding []float32) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id.String()),
		Vectors: qdrant.NewVectorsDense(embedding),
		Payload: qdrant.NewValueMap(map[string]any{"tenant": tenant, "project": project, "kind": kind}),
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Wait: qdrant.PtrOf(true), Points: []*qdrant.PointStruct{point}})
	if err != nil {
		return fmt.Errorf("search: qdrant upsert: %w", err)
	}
	return nil
}

// DeleteByID removes a point, used when an item is hard-deleted.
func (q *QdrantIndex) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Points{
			Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{qdrant.NewID(id.String())}},
		}},
	})
	if err != nil {
		return fmt.Errorf("search: qdrant delete: %w", err)
	}
	return nil
}

// Healthy caches the result of a ping for 5 seconds to avoid hammering the
// health endpoint on every search request.
func (q *QdrantIndex) Healthy(ctx context.Context) error {
	q.healthMu.Lock()
	defer q.healthMu.Unlock()
	if time.Since(q.lastCheck) < 5*time.Second {
		return q.lastErr
	}
	_, err := q.client.HealthCheck(ctx)
	q.lastCheck = time.Now()
	if err != nil {
		q.lastErr = fmt.Errorf("search: qdrant unhealthy: %w", err)
	} else {
		q.lastErr = nil
	}
	return q.lastErr
}

// Close shuts down the Qdrant gRPC connection.
func (q *QdrantIndex) Close() error { return q.client.Close() }
