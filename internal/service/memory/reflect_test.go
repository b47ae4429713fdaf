package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/governance"
	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/service/memory"
)

func TestReflect_AggregatesRecentEpisodes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindEpisode,
		Title: "Deploy run alpha", Content: "episode a body", Tags: []string{"deploy"},
	})
	require.NoError(t, err)
	_, err = svc.Feedback(ctx, memory.FeedbackInput{Tenant: "t1", Project: "p1", ID: a.Item.ID.String(), Label: governance.LabelUseful})
	require.NoError(t, err)

	_, err = svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindEpisode,
		Title: "Rollback run beta", Content: "episode b body", Tags: []string{"rollback"},
	})
	require.NoError(t, err)

	result, err := svc.Reflect(ctx, memory.ReflectInput{Tenant: "t1", Project: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.EpisodeCount)
	assert.Equal(t, 1, result.TagFrequency["deploy"])
}

func TestReflect_FiltersByTag(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindEpisode,
		Title: "Deploy run alpha", Content: "episode a body", Tags: []string{"deploy"},
	})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindEpisode,
		Title: "Rollback run beta", Content: "episode b body", Tags: []string{"rollback"},
	})
	require.NoError(t, err)

	result, err := svc.Reflect(ctx, memory.ReflectInput{Tenant: "t1", Project: "p1", FilterTags: []string{"rollback"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.EpisodeCount)
}
