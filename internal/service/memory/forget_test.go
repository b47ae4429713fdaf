package memory_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/service/memory"
)

func TestForget_ByIDSoftDeletes(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Old onboarding doc", Content: "No longer accurate.",
	})
	require.NoError(t, err)

	result, err := svc.Forget(ctx, memory.ForgetInput{
		Tenant: "t1", Project: "p1", ID: created.Item.ID.String(), Reason: "superseded",
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{created.Item.ID}, result.ForgottenIDs)

	after, err := store.GetItem(ctx, "t1", "p1", created.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDeleted, after.Status)
	assert.Equal(t, "superseded", after.StatusReason)
}

func TestForget_DecisionDowngradesInsteadOfDeleting(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindDecision,
		Title: "Use Postgres for storage", Content: "Chosen over MySQL for JSONB support.",
	})
	require.NoError(t, err)

	result, err := svc.Forget(ctx, memory.ForgetInput{
		Tenant: "t1", Project: "p1", ID: created.Item.ID.String(), Reason: "revisited",
	})
	require.NoError(t, err)
	assert.Empty(t, result.ForgottenIDs)
	assert.Equal(t, []uuid.UUID{created.Item.ID}, result.DowngradedIDs)

	after, err := store.GetItem(ctx, "t1", "p1", created.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDeprecated, after.Status)
}

func TestForget_SelectorForgetsMatchingKind(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	a, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindEpisode, Title: "Run A", Content: "episode a",
	})
	require.NoError(t, err)
	b, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindEpisode, Title: "Run B", Content: "episode b",
	})
	require.NoError(t, err)

	result, err := svc.Forget(ctx, memory.ForgetInput{
		Tenant: "t1", Project: "p1", Reason: "cleanup",
		Selector: &memory.ForgetSelector{Kinds: []model.Kind{model.KindEpisode}},
	})
	require.NoError(t, err)
	assert.Len(t, result.ForgottenIDs, 2)

	for _, id := range []uuid.UUID{a.Item.ID, b.Item.ID} {
		after, err := store.GetItem(ctx, "t1", "p1", id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusDeleted, after.Status)
	}
}
