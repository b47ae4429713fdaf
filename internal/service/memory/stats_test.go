package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/service/memory"
)

func TestStats_CountsByStatusAndKind(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Fact one", Content: "content one",
	})
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, "t1", "p1", created.Item.ID, model.StatusQuarantined, "test"))

	stats, err := svc.Stats(ctx, memory.StatsInput{Tenant: "t1", Project: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalItems)
	assert.Equal(t, 1, stats.ByStatus[model.StatusQuarantined])
	assert.Equal(t, 1, stats.ByKind[model.KindFact])
}

func TestStats_FormatComplianceOnCriticalRunbooks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindRunbook,
		Title: "Restart service", Content: "```\nsystemctl restart app\n```",
		Tags: []string{"critical"},
	})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindRunbook,
		Title: "Vague runbook", Content: "Just restart it somehow.",
		Tags: []string{"critical"},
	})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, memory.StatsInput{Tenant: "t1", Project: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FormatCompliant)
	assert.Equal(t, 1, stats.FormatNonCompliant)
}
