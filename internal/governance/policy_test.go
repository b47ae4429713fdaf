package governance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kioku-ai/kioku/internal/governance"
	"github.com/kioku-ai/kioku/internal/model"
)

func TestIsProtected(t *testing.T) {
	assert.True(t, governance.IsProtected(model.MemoryItem{Verified: true}))
	assert.True(t, governance.IsProtected(model.MemoryItem{Confidence: 0.8}))
	assert.True(t, governance.IsProtected(model.MemoryItem{UsefulnessScore: 1.0}))
	assert.True(t, governance.IsProtected(model.MemoryItem{Tags: []string{"credential"}}))
	assert.False(t, governance.IsProtected(model.MemoryItem{Confidence: 0.3, Tags: []string{"misc"}}))
}

func TestEvaluate_ProtectedItemNeverTransitions(t *testing.T) {
	now := time.Now()
	item := model.MemoryItem{
		Status: model.StatusActive, Verified: true,
		UpdatedAt: now.Add(-365 * 24 * time.Hour), ErrorCount: 100,
	}
	decision := governance.Evaluate(item, governance.DefaultPolicy(), now)
	assert.False(t, decision.Transition)
}

func TestEvaluate_AgedFactQuarantines(t *testing.T) {
	now := time.Now()
	item := model.MemoryItem{
		Kind: model.KindFact, Status: model.StatusActive,
		UpdatedAt: now.Add(-200 * 24 * time.Hour),
	}
	decision := governance.Evaluate(item, governance.DefaultPolicy(), now)
	assert.True(t, decision.Transition)
	assert.Equal(t, model.StatusQuarantined, decision.NewStatus)
}

func TestEvaluate_AgedDecisionDeprecates(t *testing.T) {
	now := time.Now()
	item := model.MemoryItem{
		Kind: model.KindDecision, Status: model.StatusActive,
		UpdatedAt: now.Add(-200 * 24 * time.Hour),
	}
	decision := governance.Evaluate(item, governance.DefaultPolicy(), now)
	assert.True(t, decision.Transition)
	assert.Equal(t, model.StatusDeprecated, decision.NewStatus)
}

func TestEvaluate_WithinPolicyNoTransition(t *testing.T) {
	now := time.Now()
	item := model.MemoryItem{Kind: model.KindFact, Status: model.StatusActive, UpdatedAt: now}
	decision := governance.Evaluate(item, governance.DefaultPolicy(), now)
	assert.False(t, decision.Transition)
}

func TestEscalate_RunbookDeletesPastThreshold(t *testing.T) {
	item := model.MemoryItem{Kind: model.KindRunbook, Status: model.StatusQuarantined, ErrorCount: 5}
	decision := governance.Escalate(item, governance.DefaultPolicy())
	assert.True(t, decision.Transition)
	assert.Equal(t, model.StatusDeleted, decision.NewStatus)
}

func TestEscalate_DecisionDeprecatesNotDeletes(t *testing.T) {
	item := model.MemoryItem{Kind: model.KindDecision, Status: model.StatusQuarantined, ErrorCount: 5}
	decision := governance.Escalate(item, governance.DefaultPolicy())
	assert.True(t, decision.Transition)
	assert.Equal(t, model.StatusDeprecated, decision.NewStatus)
}

func TestEscalate_StateNeverAutoTransitions(t *testing.T) {
	item := model.MemoryItem{Kind: model.KindState, Status: model.StatusQuarantined, ErrorCount: 10}
	decision := governance.Escalate(item, governance.DefaultPolicy())
	assert.False(t, decision.Transition)
}
