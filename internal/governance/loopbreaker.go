package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/textutil"
)

const mistakeLookbackWindow = 7 * 24 * time.Hour
const guardrailExpiry = 30 * 24 * time.Hour

// RecordMistake hashes description into a signature and upserts a Mistake
// row, incrementing its occurrence count (spec.md §4.7 "recordMistake").
func (e *Engine) RecordMistake(ctx context.Context, tenant, project, description string) (model.Mistake, error) {
	signature := textutil.Signature(description)
	m, err := e.store.UpsertMistake(ctx, tenant, project, signature, description)
	if err != nil {
		return model.Mistake{}, fmt.Errorf("governance: record mistake: %w", err)
	}
	return m, nil
}

// LoopBreakerAction is the outcome of checking one mistake signature
// against the loop-breaker threshold.
type LoopBreakerAction struct {
	Mistake         model.Mistake
	QuarantinedIDs  []uuid.UUID
	GuardrailID     uuid.UUID
	GuardrailActive bool
}

// CheckLoopBreaker selects mistakes at or above threshold and seen within
// the last 7 days; for each it traces recent audit records to find
// candidate item ids, quarantines the unprotected ones, and creates a
// "warn" guardrail that expires in 30 days and suppresses the quarantined
// set (spec.md §4.7 "checkLoopBreaker").
func (e *Engine) CheckLoopBreaker(ctx context.Context, tenant, project string, threshold int, recentMistakes []model.Mistake) ([]LoopBreakerAction, error) {
	cutoff := time.Now().UTC().Add(-mistakeLookbackWindow)
	var actions []LoopBreakerAction
	for _, m := range recentMistakes {
		if m.Occurrences < threshold || m.LastSeenAt.Before(cutoff) {
			continue
		}
		action, err := e.breakLoop(ctx, tenant, project, m)
		if err != nil {
			return actions, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func (e *Engine) breakLoop(ctx context.Context, tenant, project string, m model.Mistake) (LoopBreakerAction, error) {
	recent, err := e.store.RecentAuditRecords(ctx, tenant, project, 200)
	if err != nil {
		return LoopBreakerAction{}, fmt.Errorf("governance: trace audit history: %w", err)
	}

	seen := make(map[uuid.UUID]struct{})
	var quarantined []uuid.UUID
	for _, rec := range recent {
		if rec.ItemID == uuid.Nil || rec.Success {
			continue
		}
		if _, dup := seen[rec.ItemID]; dup {
			continue
		}
		seen[rec.ItemID] = struct{}{}
		item, err := e.store.GetItem(ctx, tenant, project, rec.ItemID)
		if err != nil || item.Status != model.StatusActive || IsProtected(item) {
			continue
		}
		if err := e.store.SetStatus(ctx, tenant, project, item.ID, model.StatusQuarantined, "loop-breaker: "+m.Signature); err != nil {
			return LoopBreakerAction{}, err
		}
		quarantined = append(quarantined, item.ID)
	}

	guardrail := model.Guardrail{
		Tenant: tenant, Project: project, Signature: m.Signature,
		Rule:          fmt.Sprintf("repeated failure %q seen %d times; review before retrying", m.Description, m.Occurrences),
		Severity:      "warn",
		SourceMistake: m.ID,
		SuppressIDs:   quarantined,
		Active:        true,
		ExpiresAt:     time.Now().UTC().Add(guardrailExpiry),
	}
	created, err := e.store.CreateGuardrail(ctx, &guardrail)
	if err != nil {
		return LoopBreakerAction{}, fmt.Errorf("governance: create loop-breaker guardrail: %w", err)
	}

	return LoopBreakerAction{Mistake: m, QuarantinedIDs: quarantined, GuardrailID: guardrail.ID, GuardrailActive: created}, nil
}

// GetSuppressedIDs aggregates the suppress_ids of every active, unexpired
// guardrail for a project (spec.md §4.7 "getSuppressedIds").
func (e *Engine) GetSuppressedIDs(ctx context.Context, tenant, project string) (map[uuid.UUID]struct{}, error) {
	guardrails, err := e.store.ListGuardrails(ctx, tenant, project)
	if err != nil {
		return nil, fmt.Errorf("governance: suppressed ids: %w", err)
	}
	out := make(map[uuid.UUID]struct{})
	for _, g := range guardrails {
		for _, id := range g.SuppressIDs {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// CreateGuardrail is idempotent on (tenant, project, signature) (spec.md
// §4.7 "createGuardrail").
func (e *Engine) CreateGuardrail(ctx context.Context, g *model.Guardrail) (bool, error) {
	created, err := e.store.CreateGuardrail(ctx, g)
	if err != nil {
		return false, fmt.Errorf("governance: create guardrail: %w", err)
	}
	return created, nil
}
