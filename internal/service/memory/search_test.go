package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/service/memory"
)

func TestSearch_KeywordMatchRanksHigher(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindRunbook,
		Title: "Restart the ingest worker pod", Content: "kubectl rollout restart deploy/ingest",
	})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Coffee machine is in the break room", Content: "Third floor, near the elevators.",
	})
	require.NoError(t, err)

	result, err := svc.Search(ctx, model.SearchQuery{
		Tenant: "t1", Project: "p1", Text: "restart ingest worker", Mode: model.ModeKeywordOnly, Limit: 5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Items)
	assert.Equal(t, "Restart the ingest worker pod", result.Items[0].Item.Title)
}

func TestSearch_FiltersByKind(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindRunbook,
		Title: "Deploy rollback steps", Content: "helm rollback api 1",
	})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Deploy cadence is weekly", Content: "Deploys happen every Tuesday.",
	})
	require.NoError(t, err)

	result, err := svc.Search(ctx, model.SearchQuery{
		Tenant: "t1", Project: "p1", Text: "deploy", Mode: model.ModeKeywordOnly,
		Kinds: []model.Kind{model.KindFact}, Limit: 10,
	})
	require.NoError(t, err)
	for _, item := range result.Items {
		assert.Equal(t, model.KindFact, item.Item.Kind)
	}
}

func TestSearch_QuarantinedItemsAreExcludedByDefault(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Quarantined fact about caching", Content: "This fact turned out to be wrong.",
	})
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, "t1", "p1", created.Item.ID, model.StatusQuarantined, "test"))

	result, err := svc.Search(ctx, model.SearchQuery{
		Tenant: "t1", Project: "p1", Text: "quarantined fact caching", Mode: model.ModeKeywordOnly, Limit: 10,
	})
	require.NoError(t, err)
	for _, item := range result.Items {
		assert.NotEqual(t, created.Item.ID, item.Item.ID)
	}
	foundExcluded := false
	for _, ex := range result.Excluded {
		if ex.Item.ID == created.Item.ID {
			foundExcluded = true
			assert.Equal(t, "quarantined", ex.Reason)
		}
	}
	assert.True(t, foundExcluded)
}

func TestSearch_OverrideQuarantineIncludesItem(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Override quarantine target fact", Content: "Needs a manual look.",
	})
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, "t1", "p1", created.Item.ID, model.StatusQuarantined, "test"))

	result, err := svc.Search(ctx, model.SearchQuery{
		Tenant: "t1", Project: "p1", Text: "override quarantine target fact", Mode: model.ModeKeywordOnly,
		OverrideQuarantine: true, Limit: 10,
	})
	require.NoError(t, err)
	var found bool
	for _, item := range result.Items {
		if item.Item.ID == created.Item.ID {
			found = true
		}
	}
	assert.True(t, found)
}
