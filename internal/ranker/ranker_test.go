package ranker_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/ranker"
	"github.com/kioku-ai/kioku/internal/search"
)

func TestWeightsFor(t *testing.T) {
	assert.Equal(t, ranker.Weights{Keyword: 0.75, Vector: 0, Recency: 0.25}, ranker.WeightsFor(model.ModeKeywordOnly))
	assert.Equal(t, ranker.Weights{Keyword: 0.5, Vector: 0.3, Recency: 0.2}, ranker.WeightsFor(model.ModeHybrid))
	assert.Equal(t, ranker.Weights{Keyword: 0, Vector: 0.8, Recency: 0.2}, ranker.WeightsFor(model.ModeVectorOnly))
	assert.Equal(t, ranker.WeightsFor(model.ModeHybrid), ranker.WeightsFor(model.SearchMode("bogus")))
}

func TestMerge_CombinesByIdentity(t *testing.T) {
	idA, idB := uuid.New(), uuid.New()
	items := map[uuid.UUID]model.MemoryItem{
		idA: {ID: idA, Title: "a"},
		idB: {ID: idB, Title: "b"},
	}
	keywordHits := []search.Result{{ItemID: idA, Score: 5}}
	vectorHits := []search.Result{{ItemID: idA, Score: 0.9}, {ItemID: idB, Score: 0.4}}

	merged := ranker.Merge(keywordHits, vectorHits, items)
	require.Len(t, merged, 2)

	byID := map[uuid.UUID]ranker.Candidate{}
	for _, c := range merged {
		byID[c.Item.ID] = c
	}
	assert.Equal(t, 5.0, byID[idA].RawKeyword)
	assert.Equal(t, 0.9, byID[idA].VectorRaw)
	assert.Equal(t, 0.0, byID[idB].RawKeyword)
	assert.Equal(t, 0.4, byID[idB].VectorRaw)
}

func TestMerge_DropsUnknownItem(t *testing.T) {
	id := uuid.New()
	merged := ranker.Merge([]search.Result{{ItemID: id, Score: 1}}, nil, map[uuid.UUID]model.MemoryItem{})
	assert.Empty(t, merged)
}

func TestScore_KeywordNormalizationCapsAtOne(t *testing.T) {
	now := time.Now()
	c := ranker.Candidate{
		Item:       model.MemoryItem{Kind: model.KindFact, UpdatedAt: now, Status: model.StatusActive},
		RawKeyword: 40, // above the 20-point cap
	}
	scored := ranker.Score(c, model.ModeKeywordOnly, now)
	assert.Equal(t, 1.0, scored.KeywordScore)
}

func TestScore_VerifiedBonusAndDeprecatedMultiplier(t *testing.T) {
	now := time.Now()
	base := model.MemoryItem{Kind: model.KindFact, UpdatedAt: now, Status: model.StatusActive}

	plain := ranker.Score(ranker.Candidate{Item: base}, model.ModeHybrid, now)

	verified := base
	verified.Verified = true
	withVerified := ranker.Score(ranker.Candidate{Item: verified}, model.ModeHybrid, now)
	assert.Greater(t, withVerified.FinalScore, plain.FinalScore)

	deprecated := base
	deprecated.Status = model.StatusDeprecated
	withDeprecated := ranker.Score(ranker.Candidate{Item: deprecated}, model.ModeHybrid, now)
	assert.Less(t, withDeprecated.FinalScore, plain.FinalScore+0.0001)
}

func TestScore_FinalScoreNeverExceedsOne(t *testing.T) {
	now := time.Now()
	c := ranker.Candidate{
		Item:       model.MemoryItem{Kind: model.KindFact, UpdatedAt: now, Status: model.StatusActive, Verified: true},
		RawKeyword: 100,
		VectorRaw:  1.0,
	}
	scored := ranker.Score(c, model.ModeHybrid, now)
	assert.LessOrEqual(t, scored.FinalScore, 1.0)
}

func TestRerank_TagBoostIgnoresCommonTechniqueWords(t *testing.T) {
	now := time.Now()
	itemWithTag := model.ScoredItem{Item: model.MemoryItem{Tags: []string{"postgres"}}, FinalScore: 0.5}
	itemWithCommonTag := model.ScoredItem{Item: model.MemoryItem{Tags: []string{"bug"}}, FinalScore: 0.5}

	rankedDomain := ranker.Rerank([]model.ScoredItem{itemWithTag}, []string{"postgres"})
	rankedCommon := ranker.Rerank([]model.ScoredItem{itemWithCommonTag}, []string{"bug"})

	assert.Greater(t, rankedDomain[0].FinalScore, 0.5)
	assert.Equal(t, 0.5, rankedCommon[0].FinalScore)
	_ = now
}

func TestRerank_ErrorPenaltyReducesScore(t *testing.T) {
	clean := model.ScoredItem{Item: model.MemoryItem{ErrorCount: 0}, FinalScore: 0.5}
	errored := model.ScoredItem{Item: model.MemoryItem{ErrorCount: 3}, FinalScore: 0.5}

	out := ranker.Rerank([]model.ScoredItem{clean, errored}, nil)
	require.Len(t, out, 2)
	assert.Equal(t, clean.Item.ErrorCount, out[0].Item.ErrorCount, "clean item should outrank the errored one")
}

func TestDiversify_CapsPerKind(t *testing.T) {
	items := []model.ScoredItem{
		{Item: model.MemoryItem{Kind: model.KindFact}, FinalScore: 0.9},
		{Item: model.MemoryItem{Kind: model.KindFact}, FinalScore: 0.8},
		{Item: model.MemoryItem{Kind: model.KindFact}, FinalScore: 0.7},
		{Item: model.MemoryItem{Kind: model.KindFact}, FinalScore: 0.6},
		{Item: model.MemoryItem{Kind: model.KindState}, FinalScore: 0.5},
	}
	out := ranker.Diversify(items, 3)
	factCount := 0
	for _, s := range out {
		if s.Item.Kind == model.KindFact {
			factCount++
		}
	}
	assert.Equal(t, 3, factCount)
	assert.Len(t, out, 4)
}

func TestRank_AppliesLimitAfterRerank(t *testing.T) {
	now := time.Now()
	candidates := make([]ranker.Candidate, 5)
	for i := range candidates {
		candidates[i] = ranker.Candidate{
			Item:       model.MemoryItem{ID: uuid.New(), Kind: model.KindFact, UpdatedAt: now, Status: model.StatusActive},
			RawKeyword: float64(i),
		}
	}
	out := ranker.Rank(candidates, model.ModeKeywordOnly, nil, 2, false, now)
	assert.Len(t, out, 2)
	assert.GreaterOrEqual(t, out[0].FinalScore, out[1].FinalScore)
}
