package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/service/memory"
)

func TestSummarize_BucketsItemsByKindAndTag(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindState,
		Title: "Deploy state", Content: "currently mid-rollout",
	})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Follow up", Content: "need to rotate credentials", Tags: []string{"todo"},
	})
	require.NoError(t, err)

	summary, err := svc.Summarize(ctx, memory.SummarizeInput{Tenant: "t1", Project: "p1"})
	require.NoError(t, err)
	assert.Len(t, summary.State, 1)
	assert.Len(t, summary.OpenTodos, 1)
}

func TestSummarize_ExcludesQuarantinedIntoSidecar(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Bad fact", Content: "should be excluded",
	})
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, "t1", "p1", created.Item.ID, model.StatusQuarantined, "test"))

	summary, err := svc.Summarize(ctx, memory.SummarizeInput{Tenant: "t1", Project: "p1"})
	require.NoError(t, err)
	require.Len(t, summary.ExcludedItems, 1)
	assert.Equal(t, "quarantined", summary.ExcludedItems[0].Reason)
}
