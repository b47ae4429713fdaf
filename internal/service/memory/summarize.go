package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/graph"
	"github.com/kioku-ai/kioku/internal/model"
)

const summarizeSectionLimit = 20

// SummarizeInput carries the parameters of a memory_summarize call.
type SummarizeInput struct {
	Tenant  string
	Project string
	TraceID string
}

// SummarizeResult is a project briefing assembled from the active item set:
// the sections named in spec.md §6 ("State, key decisions, runbooks, user
// preferences, guardrails, open todos, blockers, excluded items, graph
// conflicts, related context").
type SummarizeResult struct {
	State          []model.MemoryItem
	Decisions      []model.MemoryItem
	Runbooks       []model.MemoryItem
	Preferences    []model.MemoryItem
	Guardrails     []model.Guardrail
	OpenTodos      []model.MemoryItem
	Blockers       []model.MemoryItem
	ExcludedItems  []model.ExcludedItem
	GraphConflicts []graph.Conflict
	RelatedContext []model.MemoryItem
}

// Summarize assembles a project briefing from the current active item set,
// tagged sections, active guardrails, and graph conflicts. This is a read
// path only: it never mutates usefulness scores or last_used_at the way
// Get does.
func (s *Service) Summarize(ctx context.Context, in SummarizeInput) (SummarizeResult, error) {
	start := time.Now()
	var result SummarizeResult

	active, err := s.store.AllActiveForProject(ctx, in.Tenant, in.Project)
	if err != nil {
		s.recordAudit(in.Tenant, in.Project, "memory_summarize", in.TraceID, false, "summarize_failed", start, uuid.Nil, "")
		return result, err
	}

	for _, item := range active {
		tags := model.TagSet(item.Tags)
		switch {
		case item.Kind == model.KindState:
			result.State = append(result.State, item)
		case item.Kind == model.KindDecision:
			result.Decisions = append(result.Decisions, item)
		case item.Kind == model.KindRunbook:
			result.Runbooks = append(result.Runbooks, item)
		}
		if _, ok := tags["preference"]; ok {
			result.Preferences = append(result.Preferences, item)
		}
		if _, ok := tags["todo"]; ok {
			result.OpenTodos = append(result.OpenTodos, item)
		}
		if _, ok := tags["blocker"]; ok {
			result.Blockers = append(result.Blockers, item)
		}
	}
	result.RelatedContext = mostRecent(active, summarizeSectionLimit)

	guardrails, err := s.store.ListGuardrails(ctx, in.Tenant, in.Project)
	if err != nil {
		s.logger.Warn("memory: summarize: list guardrails failed", "error", err)
	} else {
		for _, g := range guardrails {
			if g.Active {
				result.Guardrails = append(result.Guardrails, g)
			}
		}
	}

	result.ExcludedItems = s.collectExcluded(ctx, in.Tenant, in.Project)

	g := graph.New(s.store)
	conflicts, err := g.FindConflicts(ctx, in.Tenant, in.Project)
	if err != nil {
		s.logger.Warn("memory: summarize: find conflicts failed", "error", err)
	} else {
		result.GraphConflicts = conflicts
	}

	s.recordAudit(in.Tenant, in.Project, "memory_summarize", in.TraceID, true, "", start, uuid.Nil, "")
	return result, nil
}

// collectExcluded lists quarantined items and any item caught by an active
// guardrail's suppress_ids, the same exclusion set memory_search hides by
// default (spec.md §4.5).
func (s *Service) collectExcluded(ctx context.Context, tenant, project string) []model.ExcludedItem {
	var excluded []model.ExcludedItem

	quarantined, err := s.store.ListItems(ctx, model.ListFilter{Tenant: tenant, Project: project, Status: model.StatusQuarantined, Limit: 500})
	if err != nil {
		s.logger.Warn("memory: summarize: list quarantined failed", "error", err)
	} else {
		for _, item := range quarantined {
			excluded = append(excluded, model.ExcludedItem{Item: item, Reason: "quarantined"})
		}
	}

	suppressed, err := s.governor.GetSuppressedIDs(ctx, tenant, project)
	if err != nil {
		s.logger.Warn("memory: summarize: load suppressed ids failed", "error", err)
		return excluded
	}
	for id := range suppressed {
		item, err := s.store.GetItem(ctx, tenant, project, id)
		if err != nil {
			continue
		}
		excluded = append(excluded, model.ExcludedItem{Item: item, Reason: "suppressed"})
	}
	return excluded
}

// mostRecent returns the n most recently updated items.
func mostRecent(items []model.MemoryItem, n int) []model.MemoryItem {
	sorted := make([]model.MemoryItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
