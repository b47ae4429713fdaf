package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/service/memory"
)

func TestUpsert_CreatesNewItem(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "TLS handshake retries", Content: "Retry TLS handshakes 3 times with backoff.",
	})
	require.NoError(t, err)
	assert.Equal(t, memory.ActionCreated, res.Action)
	assert.NotEmpty(t, res.Item.ID)
	assert.Equal(t, 1, res.Item.Version)
}

func TestUpsert_IdenticalContentIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	in := memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Retry policy", Content: "Use exponential backoff starting at 200ms.",
	}

	first, err := svc.Upsert(ctx, in)
	require.NoError(t, err)

	second, err := svc.Upsert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, memory.ActionUpdated, second.Action)
	assert.Equal(t, "content_hash", second.MatchedOn)
	assert.Equal(t, first.Item.ID, second.Item.ID)
}

func TestUpsert_ExactTitleMatchUpdatesContent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindRunbook,
		Title: "Restart the ingest worker", Content: "kubectl rollout restart deploy/ingest",
	})
	require.NoError(t, err)

	second, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindRunbook,
		Title: "restart the ingest worker", Content: "kubectl rollout restart deploy/ingest-worker -n prod",
	})
	require.NoError(t, err)
	assert.Equal(t, memory.ActionContentUpdated, second.Action)
	assert.Equal(t, "exact_title", second.MatchedOn)
	assert.Equal(t, first.Item.ID, second.Item.ID)

	stored, err := store.GetItem(ctx, "t1", "p1", first.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Contains(t, stored.Content, "ingest-worker")
}

func TestUpsert_FuzzyTitleMatchUpdatesContent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindRunbook,
		Title: "Clear the Redis cache on deploy failure", Content: "redis-cli FLUSHALL",
	})
	require.NoError(t, err)

	second, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindRunbook,
		Title: "Clear Redis cache after deploy failure", Content: "redis-cli -h prod FLUSHALL",
	})
	require.NoError(t, err)
	assert.Equal(t, memory.ActionContentUpdated, second.Action)
	assert.Equal(t, "fuzzy_title", second.MatchedOn)
	assert.Equal(t, first.Item.ID, second.Item.ID)
	assert.Greater(t, second.FuzzyScore, 0.0)
}

func TestUpsert_DifferentOutcomeMarkersDoNotMatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindEpisode,
		Title: "[FAILED] deploy to prod", Content: "timeout waiting for health check",
	})
	require.NoError(t, err)

	second, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindEpisode,
		Title: "[SUCCESS] deploy to prod", Content: "completed in 45s",
	})
	require.NoError(t, err)
	assert.Equal(t, memory.ActionCreated, second.Action)
	assert.NotEqual(t, first.Item.ID, second.Item.ID)
}

func TestUpsert_IdempotencyKeyReplaysResponse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	in := memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Rate limit policy", Content: "100 requests per minute per tenant.",
		IdempotencyKey: "retry-key-1",
	}

	first, err := svc.Upsert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, memory.ActionCreated, first.Action)

	second, err := svc.Upsert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.Item.ID, second.Item.ID)
	assert.Equal(t, first.Action, second.Action)
}

func TestUpsert_IdempotencyKeyRejectsChangedPayload(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Retry budget", Content: "3 retries with jitter.",
		IdempotencyKey: "retry-key-2",
	})
	require.NoError(t, err)

	_, err = svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Retry budget", Content: "5 retries with jitter.",
		IdempotencyKey: "retry-key-2",
	})
	require.Error(t, err)
}

func TestUpsert_RejectsInvalidKind(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Upsert(context.Background(), memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.Kind("bogus"), Title: "x", Content: "y",
	})
	require.Error(t, err)
}
