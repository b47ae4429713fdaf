package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/governance"
	"github.com/kioku-ai/kioku/internal/model"
)

// FeedbackInput carries the parameters of a memory_feedback call.
type FeedbackInput struct {
	Tenant  string
	Project string
	ID      string
	Label   governance.Label
	TraceID string
}

// Feedback applies a usefulness/error-count adjustment to an item and
// invalidates its cache entry (spec.md §4.4 "Feedback semantics").
func (s *Service) Feedback(ctx context.Context, in FeedbackInput) (model.MemoryItem, error) {
	start := time.Now()
	item, err := s.governor.ApplyFeedback(ctx, in.Tenant, in.Project, in.ID, in.Label)
	if err != nil {
		s.recordAudit(in.Tenant, in.Project, "memory_feedback", in.TraceID, false, "feedback_failed", start, uuid.Nil, string(in.Label))
		return model.MemoryItem{}, fmt.Errorf("memory: feedback: %w", err)
	}
	s.cache.Invalidate(item.ID)
	s.recordAudit(in.Tenant, in.Project, "memory_feedback", in.TraceID, true, "", start, item.ID, string(in.Label))
	return item, nil
}
