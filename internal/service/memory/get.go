package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
)

// GetInput carries the parameters of a memory_get call.
type GetInput struct {
	Tenant  string
	Project string
	ID      string
	TraceID string
}

// Get fetches an item by id and records implicit interest: a last_used_at
// refresh plus a small usefulness bump (spec.md §6 "memory_get"). The cache
// is consulted first but usage is still recorded on every call, cached or
// not, since a cache hit is still a read the item's usefulness should
// reflect.
func (s *Service) Get(ctx context.Context, in GetInput) (model.MemoryItem, error) {
	start := time.Now()
	itemID, err := uuid.Parse(in.ID)
	if err != nil {
		s.recordAudit(in.Tenant, in.Project, "memory_get", in.TraceID, false, "invalid_id", start, uuid.Nil, in.ID)
		return model.MemoryItem{}, fmt.Errorf("memory: get: invalid id %q: %w", in.ID, err)
	}

	item, ok := s.cache.Get(itemID)
	if !ok {
		item, err = s.store.GetItem(ctx, in.Tenant, in.Project, itemID)
		if err != nil {
			s.recordAudit(in.Tenant, in.Project, "memory_get", in.TraceID, false, "not_found", start, itemID, "")
			return model.MemoryItem{}, fmt.Errorf("memory: get: %w", err)
		}
	}

	if err := s.governor.RecordUsage(ctx, in.Tenant, in.Project, in.ID); err != nil {
		s.logger.Warn("memory: get: record usage failed", "item", itemID, "error", err)
	} else {
		item.UsefulnessScore += 0.01
		if item.UsefulnessScore > 5.0 {
			item.UsefulnessScore = 5.0
		}
		item.LastUsedAt = time.Now().UTC()
	}
	s.cache.Put(item)

	s.recordAudit(in.Tenant, in.Project, "memory_get", in.TraceID, true, "", start, itemID, "")
	return item, nil
}
