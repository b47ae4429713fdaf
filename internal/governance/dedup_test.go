package governance_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/governance"
	"github.com/kioku-ai/kioku/internal/model"
)

func TestFindFuzzyMatch_AcceptsUniqueBest(t *testing.T) {
	candidates := []model.MemoryItem{
		{ID: uuid.New(), Title: "deploy service to production cluster", ContentHash: "a"},
		{ID: uuid.New(), Title: "completely unrelated topic here", ContentHash: "b"},
	}
	match, ok := governance.FindFuzzyMatch(candidates, "deploy service to prod cluster", "new-hash")
	require.True(t, ok)
	assert.Equal(t, candidates[0].ID, match.Item.ID)
}

func TestFindFuzzyMatch_RejectsAmbiguousTie(t *testing.T) {
	candidates := []model.MemoryItem{
		{ID: uuid.New(), Title: "deploy service to production cluster", ContentHash: "a"},
		{ID: uuid.New(), Title: "deploy service to staging cluster", ContentHash: "b"},
	}
	_, ok := governance.FindFuzzyMatch(candidates, "deploy service to prod cluster", "new-hash")
	assert.False(t, ok)
}

func TestFindFuzzyMatch_RejectsDifferentOutcomeMarker(t *testing.T) {
	candidates := []model.MemoryItem{
		{ID: uuid.New(), Title: "[SUCCESS] restart database pool", ContentHash: "a"},
	}
	_, ok := governance.FindFuzzyMatch(candidates, "[FAILED] restart database pool", "new-hash")
	assert.False(t, ok)
}

func TestFindFuzzyMatch_RejectsIdenticalContentHash(t *testing.T) {
	candidates := []model.MemoryItem{
		{ID: uuid.New(), Title: "deploy service to production cluster", ContentHash: "same"},
	}
	_, ok := governance.FindFuzzyMatch(candidates, "deploy service to prod cluster", "same")
	assert.False(t, ok)
}

func TestDedup_KeepsBestOfGroup(t *testing.T) {
	now := time.Now()
	keep := model.MemoryItem{ID: uuid.New(), Status: model.StatusActive, ContentHash: "h", Verified: true, UpdatedAt: now}
	drop := model.MemoryItem{ID: uuid.New(), Status: model.StatusActive, ContentHash: "h", Verified: false, UpdatedAt: now}
	other := model.MemoryItem{ID: uuid.New(), Status: model.StatusActive, ContentHash: "different", UpdatedAt: now}

	reports := governance.Dedup([]model.MemoryItem{drop, keep, other})
	require.Len(t, reports, 1)
	assert.Equal(t, keep.ID, reports[0].Survivor.ID)
	require.Len(t, reports[0].Removed, 1)
	assert.Equal(t, drop.ID, reports[0].Removed[0].ID)
}

func TestDedup_IgnoresInactiveItems(t *testing.T) {
	a := model.MemoryItem{ID: uuid.New(), Status: model.StatusDeleted, ContentHash: "h"}
	b := model.MemoryItem{ID: uuid.New(), Status: model.StatusDeleted, ContentHash: "h"}
	reports := governance.Dedup([]model.MemoryItem{a, b})
	assert.Empty(t, reports)
}

func TestDetectConflicts_SameTitleDifferentContent(t *testing.T) {
	a := model.MemoryItem{ID: uuid.New(), Status: model.StatusActive, Title: "db config", Content: "use postgres", ContentHash: "a"}
	b := model.MemoryItem{ID: uuid.New(), Status: model.StatusActive, Title: "db config", Content: "use mysql", ContentHash: "b"}
	candidates := governance.DetectConflicts([]model.MemoryItem{a, b})
	require.Len(t, candidates, 1)
	assert.Equal(t, "same title, different content", candidates[0].Reason)
}

func TestDetectConflicts_OpposingDecisionKeywords(t *testing.T) {
	a := model.MemoryItem{ID: uuid.New(), Kind: model.KindDecision, Status: model.StatusActive, Title: "feature flag", Content: "enable the new pipeline", ContentHash: "a"}
	b := model.MemoryItem{ID: uuid.New(), Kind: model.KindDecision, Status: model.StatusActive, Title: "flag rollback", Content: "disable the new pipeline", ContentHash: "b"}
	candidates := governance.DetectConflicts([]model.MemoryItem{a, b})
	found := false
	for _, c := range candidates {
		if c.Reason == "opposing decision keywords" {
			found = true
		}
	}
	assert.True(t, found)
}
