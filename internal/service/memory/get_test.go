package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/service/memory"
)

func TestGet_RecordsImplicitInterest(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Deploy cadence", Content: "Releases ship every Tuesday.",
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, memory.GetInput{Tenant: "t1", Project: "p1", ID: created.Item.ID.String()})
	require.NoError(t, err)
	assert.InDelta(t, 0.01, got.UsefulnessScore, 0.0001)

	stored, err := store.GetItem(ctx, "t1", "p1", created.Item.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, stored.UsefulnessScore, 0.0001)
	assert.False(t, stored.LastUsedAt.IsZero())
}

func TestGet_RejectsUnknownID(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), memory.GetInput{Tenant: "t1", Project: "p1", ID: "not-a-uuid"})
	require.Error(t, err)
}
