package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/service/memory"
)

func TestList_PaginatesAndReportsHasMore(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Upsert(ctx, memory.UpsertInput{
			Tenant: "t1", Project: "p1", Kind: model.KindFact,
			Title: "Fact", Content: "distinct content body number " + string(rune('a'+i)),
		})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, memory.ListInput{Tenant: "t1", Project: "p1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
}

func TestList_FiltersByTag(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Tagged", Content: "carries a preference tag", Tags: []string{"preference"},
	})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Untagged", Content: "no tags here",
	})
	require.NoError(t, err)

	page, err := svc.List(ctx, memory.ListInput{Tenant: "t1", Project: "p1", Tags: []string{"preference"}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Tagged", page.Items[0].Title)
}
