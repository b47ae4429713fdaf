package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/ranker"
	"github.com/kioku-ai/kioku/internal/search"
	"github.com/kioku-ai/kioku/internal/textutil"
)

// candidateLimit bounds how many raw hits each index contributes before
// merge and rerank narrow the set down to the caller's requested limit.
const candidateLimit = 100

// Search runs the hybrid keyword+vector fan-out, merges and ranks the
// result, and applies governance exclusions (spec.md §4.5). Keyword and
// vector lookups run concurrently; a vector-index failure degrades the
// effective mode to keyword_only rather than failing the whole call.
func (s *Service) Search(ctx context.Context, q model.SearchQuery) (model.SearchResult, error) {
	start := time.Now()
	result, err := s.search(ctx, q)
	s.searchDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	errorCode := ""
	if err != nil {
		errorCode = "search_failed"
	}
	s.recordAudit(q.Tenant, q.Project, "memory_search", "", err == nil, errorCode, start, uuid.Nil, q.Text)
	return result, err
}

func (s *Service) search(ctx context.Context, q model.SearchQuery) (model.SearchResult, error) {
	mode := q.Mode
	if mode == "" {
		mode = model.ModeHybrid
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	var keywordHits, vectorHits []search.Result
	effectiveMode := mode
	fallbackReason := ""

	group, gctx := errgroup.WithContext(ctx)
	if mode != model.ModeVectorOnly {
		group.Go(func() error {
			hits, err := s.keyword.Search(gctx, q.Tenant, q.Project, q.Text, candidateLimit)
			if err != nil {
				return fmt.Errorf("keyword search: %w", err)
			}
			keywordHits = hits
			return nil
		})
	}
	if mode != model.ModeKeywordOnly {
		group.Go(func() error {
			if err := s.vector.Healthy(gctx); err != nil {
				fallbackReason = "vector index unavailable: " + err.Error()
				return nil
			}
			queryVec, err := s.embed(gctx, q.Text)
			if err != nil {
				fallbackReason = "embedding unavailable: " + err.Error()
				return nil
			}
			hits, err := s.vector.Search(gctx, q.Tenant, q.Project, queryVec, candidateLimit)
			if err != nil {
				fallbackReason = "vector search failed: " + err.Error()
				return nil
			}
			vectorHits = hits
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return model.SearchResult{}, err
	}
	if fallbackReason != "" && mode == model.ModeVectorOnly {
		effectiveMode = model.ModeKeywordOnly
	} else if fallbackReason != "" && mode == model.ModeHybrid {
		// hybrid degrades to keyword-only weighting; a failed vector branch
		// leaves no vector hits to merge.
		effectiveMode = model.ModeKeywordOnly
	}

	items, err := s.loadCandidateItems(ctx, q, keywordHits, vectorHits)
	if err != nil {
		return model.SearchResult{}, err
	}

	candidates := ranker.Merge(keywordHits, vectorHits, items)
	candidates = filterCandidates(candidates, q)

	queryKeywords := textutil.Keywords(q.Text)
	scored := ranker.Rank(candidates, effectiveMode, queryKeywords, limit*3, q.Diversify, time.Now().UTC())

	excluded, err := s.applyGovernance(ctx, q, &scored)
	if err != nil {
		return model.SearchResult{}, err
	}
	if len(scored) > limit {
		scored = scored[:limit]
	}

	return model.SearchResult{
		Items:          scored,
		Excluded:       excluded,
		EffectiveMode:  effectiveMode,
		FallbackReason: fallbackReason,
	}, nil
}

// loadCandidateItems resolves every id referenced by either hit set to its
// full MemoryItem, going through the shared cache before the store.
func (s *Service) loadCandidateItems(ctx context.Context, q model.SearchQuery, keywordHits, vectorHits []search.Result) (map[uuid.UUID]model.MemoryItem, error) {
	ids := make(map[uuid.UUID]struct{}, len(keywordHits)+len(vectorHits))
	for _, h := range keywordHits {
		ids[h.ItemID] = struct{}{}
	}
	for _, h := range vectorHits {
		ids[h.ItemID] = struct{}{}
	}

	items := make(map[uuid.UUID]model.MemoryItem, len(ids))
	for id := range ids {
		if cached, ok := s.cache.Get(id); ok {
			items[id] = cached
			continue
		}
		item, err := s.store.GetItem(ctx, q.Tenant, q.Project, id)
		if err != nil {
			continue // concurrently deleted between search and hydrate
		}
		s.cache.Put(item)
		items[id] = item
	}
	return items, nil
}

// filterCandidates applies the caller's kind/tag filters ahead of ranking.
func filterCandidates(candidates []ranker.Candidate, q model.SearchQuery) []ranker.Candidate {
	if len(q.Kinds) == 0 && len(q.Tags) == 0 {
		return candidates
	}
	kindSet := make(map[model.Kind]struct{}, len(q.Kinds))
	for _, k := range q.Kinds {
		kindSet[k] = struct{}{}
	}
	tagSet := model.TagSet(q.Tags)

	out := candidates[:0]
	for _, c := range candidates {
		if len(kindSet) > 0 {
			if _, ok := kindSet[c.Item.Kind]; !ok {
				continue
			}
		}
		if len(tagSet) > 0 && !model.HasAnyTag(c.Item.Tags, tagSet) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// applyGovernance removes deleted, quarantined, and guardrail-suppressed
// items from scored in place, returning them as the excluded sidecar
// (spec.md §4.5 "Excluded-items sidecar"). Deleted items are never
// returned regardless of override; quarantined items survive if the
// caller set OverrideQuarantine.
func (s *Service) applyGovernance(ctx context.Context, q model.SearchQuery, scored *[]model.ScoredItem) ([]model.ExcludedItem, error) {
	suppressed, err := s.governor.GetSuppressedIDs(ctx, q.Tenant, q.Project)
	if err != nil {
		return nil, fmt.Errorf("memory: load suppressed ids: %w", err)
	}

	kept := (*scored)[:0]
	var excluded []model.ExcludedItem
	for _, sc := range *scored {
		if sc.Item.Status == model.StatusDeleted {
			excluded = append(excluded, model.ExcludedItem{Item: sc.Item, Reason: "deleted"})
			continue
		}
		if _, isSuppressed := suppressed[sc.Item.ID]; isSuppressed {
			excluded = append(excluded, model.ExcludedItem{Item: sc.Item, Reason: "suppressed"})
			continue
		}
		if sc.Item.Status == model.StatusQuarantined && !q.OverrideQuarantine {
			excluded = append(excluded, model.ExcludedItem{Item: sc.Item, Reason: "quarantined"})
			continue
		}
		kept = append(kept, sc)
	}
	*scored = kept
	return excluded, nil
}
