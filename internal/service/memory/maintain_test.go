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

func TestMaintain_DedupKeepsBestSurvivor(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Build cache path", Content: "The build cache lives under .cache/build.",
	})
	require.NoError(t, err)

	// A duplicate with a different title bypasses the upsert gates, landing
	// as a true duplicate content hash that only maintenance will catch.
	item := model.MemoryItem{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Where the build cache is", Content: first.Item.Content, ContentHash: first.Item.ContentHash,
	}
	require.NoError(t, store.CreateItem(ctx, &item))

	report, err := svc.Maintain(ctx, memory.MaintainInput{Tenant: "t1", Project: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deduplicated)

	// Neither copy is verified or used, so the more recently updated
	// duplicate survives and the older upserted item is the one removed.
	after, err := store.GetItem(ctx, "t1", "p1", first.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDeleted, after.Status)
}

func TestMaintain_ProtectedItemsSurviveDedup(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Verified fact", Content: "This fact is protected.", Confidence: 0.9,
	})
	require.NoError(t, err)

	item := model.MemoryItem{
		Tenant: "t1", Project: "p1", Kind: model.KindFact, Verified: true,
		Title: "Also verified fact", Content: first.Item.Content, ContentHash: first.Item.ContentHash,
	}
	require.NoError(t, store.CreateItem(ctx, &item))

	report, err := svc.Maintain(ctx, memory.MaintainInput{Tenant: "t1", Project: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Deduplicated)

	_, err = store.GetItem(ctx, "t1", "p1", item.ID)
	require.NoError(t, err)
}

func TestMaintain_PrunesLowUsefulnessItems(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Unreliable fact", Content: "This one should get pruned.",
	})
	require.NoError(t, err)

	// A strict MinUsefulness floor above the item's default score of 0
	// forces the age/usefulness/error-count prune check to fire regardless
	// of the item's actual age.
	policy := governance.DefaultPolicy()
	policy.MinUsefulness = 1.0
	report, err := svc.Maintain(ctx, memory.MaintainInput{Tenant: "t1", Project: "p1", Policy: &policy})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Quarantined)

	after, err := store.GetItem(ctx, "t1", "p1", res.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQuarantined, after.Status)
}

func TestMaintain_CleansDanglingLinks(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	a, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact, Title: "Source item", Content: "source",
	})
	require.NoError(t, err)

	link := model.MemoryLink{Tenant: "t1", Project: "p1", FromID: a.Item.ID, ToID: a.Item.ID, Relation: model.RelationRelatedTo}
	require.NoError(t, store.CreateLink(ctx, &link))
	require.NoError(t, store.DeleteItem(ctx, "t1", "p1", a.Item.ID))

	report, err := svc.Maintain(ctx, memory.MaintainInput{Tenant: "t1", Project: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DanglingLinksCleaned)
}
