package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/kioku-ai/kioku/internal/storage"
	"github.com/kioku-ai/kioku/internal/textutil"
)

// KeywordIndex searches items via the backend's full-text engine (FTS5 on
// SQLite, tsvector/GIN on Postgres), falling back to a normalized LIKE scan
// when the full-text query errors or finds nothing (spec.md §4.2).
type KeywordIndex struct {
	store *storage.Store
}

// NewKeywordIndex builds a KeywordIndex over store.
func NewKeywordIndex(store *storage.Store) *KeywordIndex {
	return &KeywordIndex{store: store}
}

// Search returns items ranked by full-text relevance.
func (k *KeywordIndex) Search(ctx context.Context, tenant, project, query string, limit int) ([]Result, error) {
	results, err := k.store.FullTextSearch(ctx, tenant, project, query, limit)
	if err == nil && len(results) > 0 {
		out := make([]Result, len(results))
		for i, r := range results {
			out[i] = Result{ItemID: r.ID, Score: r.Score}
		}
		return out, nil
	}

	return k.likeFallback(ctx, tenant, project, query, limit)
}

// likeFallback scores items by the fraction of query keywords that appear
// in their normalized title+content, used when the full-text index finds
// nothing (e.g. a query built entirely of stop words or punctuation).
func (k *KeywordIndex) likeFallback(ctx context.Context, tenant, project, query string, limit int) ([]Result, error) {
	keywords := textutil.Keywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}
	items, err := k.store.AllActiveForProject(ctx, tenant, project)
	if err != nil {
		return nil, fmt.Errorf("search: like fallback: %w", err)
	}

	var out []Result
	for _, item := range items {
		haystack := textutil.Normalize(item.Title + " " + item.Content)
		matched := 0
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		out = append(out, Result{ItemID: item.ID, Score: float64(matched) / float64(len(keywords))})
	}
	sortResultsDesc(out)
	if len(out) > limit && limit > 0 {
		out = out[:limit]
	}
	return out, nil
}

func sortResultsDesc(r []Result) {
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && r[j].Score > r[j-1].Score; j-- {
			r[j], r[j-1] = r[j-1], r[j]
		}
	}
}
