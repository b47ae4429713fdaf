package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
)

// ForgetSelector picks a batch of items for ForgetInput.Selector, matched
// the same way memory_list filters a browse (spec.md §6 "memory_forget").
type ForgetSelector struct {
	Kinds []model.Kind
	Tags  []string
}

// ForgetInput carries the parameters of a memory_forget call. Exactly one
// of ID or Selector should be set; ID takes precedence if both are.
type ForgetInput struct {
	Tenant   string
	Project  string
	ID       string
	Selector *ForgetSelector
	Reason   string
	TraceID  string
}

// ForgetResult reports what memory_forget actually did to each targeted
// item, since protected decision/state items are downgraded rather than
// deleted.
type ForgetResult struct {
	ForgottenIDs  []uuid.UUID
	DowngradedIDs []uuid.UUID
}

// Forget soft-deletes an item (or every item matching Selector), explicit
// forget bypassing the usual protected-item immunity (spec.md §4.4
// "explicit memory_forget still applies"). decision and state items never
// reach status=deleted even here; they are downgraded to deprecated
// instead, preserving the invariant that those kinds are never found in
// deleted (spec.md §8).
func (s *Service) Forget(ctx context.Context, in ForgetInput) (ForgetResult, error) {
	start := time.Now()
	var result ForgetResult

	items, err := s.resolveForgetTargets(ctx, in)
	if err != nil {
		s.recordAudit(in.Tenant, in.Project, "memory_forget", in.TraceID, false, "resolve_failed", start, uuid.Nil, "")
		return result, err
	}

	for _, item := range items {
		newStatus := model.StatusDeleted
		switch item.Kind {
		case model.KindDecision, model.KindState:
			newStatus = model.StatusDeprecated
		}
		if err := s.store.SetStatus(ctx, in.Tenant, in.Project, item.ID, newStatus, in.Reason); err != nil {
			s.logger.Warn("memory: forget transition failed", "item", item.ID, "error", err)
			continue
		}
		s.cache.Invalidate(item.ID)
		if newStatus == model.StatusDeleted {
			result.ForgottenIDs = append(result.ForgottenIDs, item.ID)
		} else {
			result.DowngradedIDs = append(result.DowngradedIDs, item.ID)
		}
	}

	detail := fmt.Sprintf("forgotten=%d downgraded=%d reason=%s", len(result.ForgottenIDs), len(result.DowngradedIDs), in.Reason)
	s.recordAudit(in.Tenant, in.Project, "memory_forget", in.TraceID, true, "", start, uuid.Nil, detail)
	return result, nil
}

func (s *Service) resolveForgetTargets(ctx context.Context, in ForgetInput) ([]model.MemoryItem, error) {
	if in.ID != "" {
		itemID, err := uuid.Parse(in.ID)
		if err != nil {
			return nil, fmt.Errorf("memory: forget: invalid id %q: %w", in.ID, err)
		}
		item, err := s.store.GetItem(ctx, in.Tenant, in.Project, itemID)
		if err != nil {
			return nil, fmt.Errorf("memory: forget: %w", err)
		}
		return []model.MemoryItem{item}, nil
	}
	if in.Selector == nil {
		return nil, fmt.Errorf("memory: forget: id or selector required")
	}
	items, err := s.store.ListItems(ctx, model.ListFilter{
		Tenant: in.Tenant, Project: in.Project,
		Kinds: in.Selector.Kinds, Limit: 10000,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: forget: list selector matches: %w", err)
	}
	if len(in.Selector.Tags) == 0 {
		return items, nil
	}
	tagSet := model.TagSet(in.Selector.Tags)
	out := items[:0]
	for _, item := range items {
		if model.HasAnyTag(item.Tags, tagSet) {
			out = append(out, item)
		}
	}
	return out, nil
}
