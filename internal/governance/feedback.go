package governance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/storage"
)

// Label is a memory_feedback verdict (spec.md §4.4).
type Label string

const (
	LabelUseful      Label = "useful"
	LabelNotRelevant Label = "not_relevant"
	LabelWrong       Label = "wrong"
)

const maxUsefulness = 5.0

// Engine orchestrates governance actions against a store: feedback
// application, loop-breaker checks and guardrail lookups.
type Engine struct {
	store  *storage.Store
	policy Policy
}

// New builds an Engine with the default policy; override per call via
// WithPolicy.
func New(store *storage.Store) *Engine {
	return &Engine{store: store, policy: DefaultPolicy()}
}

// WithPolicy returns a copy of the engine using p instead of the default
// policy for prune/escalate evaluation.
func (e *Engine) WithPolicy(p Policy) *Engine {
	return &Engine{store: e.store, policy: p}
}

// Policy returns the engine's active prune/escalate policy, for callers
// that need to drive governance.Evaluate/Escalate directly (memory_maintain).
func (e *Engine) Policy() Policy { return e.policy }

// ApplyFeedback mutates an item per its label. Every "wrong" feedback
// records a Mistake, and one that pushes an unprotected active item to the
// quarantine threshold also quarantines it (spec.md §4.4 "Feedback
// semantics").
func (e *Engine) ApplyFeedback(ctx context.Context, tenant, project string, id string, label Label) (model.MemoryItem, error) {
	itemID, err := parseID(id)
	if err != nil {
		return model.MemoryItem{}, err
	}
	item, err := e.store.GetItem(ctx, tenant, project, itemID)
	if err != nil {
		return model.MemoryItem{}, fmt.Errorf("governance: apply feedback: %w", err)
	}

	switch label {
	case LabelUseful:
		item, err = e.store.AdjustUsefulness(ctx, tenant, project, itemID, 1.0)
	case LabelNotRelevant:
		item, err = e.store.AdjustUsefulness(ctx, tenant, project, itemID, -0.5)
	case LabelWrong:
		item, err = e.store.MarkWrong(ctx, tenant, project, itemID)
		if err != nil {
			return model.MemoryItem{}, fmt.Errorf("governance: apply feedback: %w", err)
		}
		item, err = e.escalateOnWrong(ctx, tenant, project, item)
	default:
		return model.MemoryItem{}, fmt.Errorf("governance: unknown feedback label %q", label)
	}
	if err != nil {
		return model.MemoryItem{}, fmt.Errorf("governance: apply feedback: %w", err)
	}
	return item, nil
}

func (e *Engine) escalateOnWrong(ctx context.Context, tenant, project string, item model.MemoryItem) (model.MemoryItem, error) {
	signature := fmt.Sprintf("wrong:%s:%s", item.Title, item.ID)
	if _, err := e.store.UpsertMistake(ctx, tenant, project, signature, "feedback: wrong on "+item.Title); err != nil {
		return model.MemoryItem{}, err
	}
	if item.ErrorCount >= e.policy.QuarantineOnWrongThreshold && !IsProtected(item) && item.Status == model.StatusActive {
		if err := e.store.SetStatus(ctx, tenant, project, item.ID, model.StatusQuarantined, "quarantined: repeated wrong feedback"); err != nil {
			return model.MemoryItem{}, err
		}
		item.Status = model.StatusQuarantined
	}
	return item, nil
}

// RecordUsage applies the implicit-interest bump a memory_get performs:
// last_used_at refresh plus +0.01 usefulness capped at 5.0.
func (e *Engine) RecordUsage(ctx context.Context, tenant, project string, id string) error {
	itemID, err := parseID(id)
	if err != nil {
		return err
	}
	if err := e.store.TouchLastUsed(ctx, tenant, project, itemID); err != nil {
		return fmt.Errorf("governance: record usage: %w", err)
	}
	item, err := e.store.GetItem(ctx, tenant, project, itemID)
	if err != nil {
		return fmt.Errorf("governance: record usage: %w", err)
	}
	delta := 0.01
	if item.UsefulnessScore+delta > maxUsefulness {
		delta = maxUsefulness - item.UsefulnessScore
	}
	if delta <= 0 {
		return nil
	}
	_, err = e.store.AdjustUsefulness(ctx, tenant, project, itemID, delta)
	return err
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("governance: invalid item id %q: %w", id, err)
	}
	return parsed, nil
}
