package search

import (
	"context"
	"fmt"

	"github.com/kioku-ai/kioku/internal/storage"
)

// BruteForceIndex scans every active item's stored embedding and ranks by
// cosine similarity. This is the default and fallback vector index
// (spec.md §4.2); QdrantIndex only accelerates it.
type BruteForceIndex struct {
	store *storage.Store
}

// NewBruteForceIndex builds a BruteForceIndex over store.
func NewBruteForceIndex(store *storage.Store) *BruteForceIndex {
	return &BruteForceIndex{store: store}
}

// Search returns the limit items whose embedding is closest to query.
func (b *BruteForceIndex) Search(ctx context.Context, tenant, project string, query []float32, limit int) ([]Result, error) {
	embeddings, err := b.store.AllEmbeddings(ctx, tenant, project)
	if err != nil {
		return nil, fmt.Errorf("search: brute force scan: %w", err)
	}
	out := make([]Result, 0, len(embeddings))
	for id, vec := range embeddings {
		score := CosineSimilarity(query, vec)
		if score <= 0 {
			continue
		}
		out = append(out, Result{ItemID: id, Score: score})
	}
	sortResultsDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Healthy always succeeds: the brute-force index has no external
// dependency to lose.
func (b *BruteForceIndex) Healthy(ctx context.Context) error { return nil }
