// Package search implements the keyword and vector candidate indexes that
// feed the ranker (spec.md §4.2, §4.5).
package search

import (
	"context"
	"math"

	"github.com/google/uuid"
)

// Result pairs an item id with a raw component score from one index.
type Result struct {
	ItemID uuid.UUID
	Score  float64
}

// KeywordSearcher finds items whose title/content/tags match query text.
type KeywordSearcher interface {
	Search(ctx context.Context, tenant, project, query string, limit int) ([]Result, error)
}

// VectorSearcher finds items whose stored embedding is closest to query's
// embedding by cosine similarity.
type VectorSearcher interface {
	Search(ctx context.Context, tenant, project string, query []float32, limit int) ([]Result, error)
	Healthy(ctx context.Context) error
}

// CosineSimilarity returns the cosine similarity of a and b, 0 if either is
// a zero vector or the lengths mismatch.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
