package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
)

// ListInput carries the parameters of a memory_list call (spec.md §6
// "Paginated browse with sort/filter whitelist").
type ListInput struct {
	Tenant   string
	Project  string
	Kinds    []model.Kind
	Status   model.Status
	Tags     []string
	SortBy   model.ListSortField
	SortDesc bool
	Limit    int
	Offset   int
	TraceID  string
}

// ListResult is a page of items plus whether another page follows.
type ListResult struct {
	Items   []model.MemoryItem
	HasMore bool
}

// List returns a sorted, filtered page of items without touching ranking or
// governance exclusion — memory_list is a raw browse, not a search.
func (s *Service) List(ctx context.Context, in ListInput) (ListResult, error) {
	start := time.Now()
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}

	// Tags aren't a SQL-level filter (model.MemoryItem.Tags is a JSON
	// column); over-fetch by one page to decide HasMore after the
	// client-side tag filter narrows the page, mirroring Forget's selector
	// resolution.
	items, err := s.store.ListItems(ctx, model.ListFilter{
		Tenant: in.Tenant, Project: in.Project,
		Kinds: in.Kinds, Status: in.Status,
		SortBy: in.SortBy, SortDesc: in.SortDesc,
		Limit: limit + 1, Offset: in.Offset,
	})
	if err != nil {
		s.recordAudit(in.Tenant, in.Project, "memory_list", in.TraceID, false, "list_failed", start, uuid.Nil, "")
		return ListResult{}, err
	}

	if len(in.Tags) > 0 {
		tagSet := model.TagSet(in.Tags)
		filtered := items[:0]
		for _, item := range items {
			if model.HasAnyTag(item.Tags, tagSet) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	result := ListResult{Items: items}
	if len(result.Items) > limit {
		result.Items = result.Items[:limit]
		result.HasMore = true
	}

	s.recordAudit(in.Tenant, in.Project, "memory_list", in.TraceID, true, "", start, uuid.Nil, "")
	return result, nil
}
