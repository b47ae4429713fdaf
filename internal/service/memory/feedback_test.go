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

func TestFeedback_UsefulIncrementsScore(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Staging URL", Content: "https://staging.example.com",
	})
	require.NoError(t, err)

	updated, err := svc.Feedback(ctx, memory.FeedbackInput{
		Tenant: "t1", Project: "p1", ID: created.Item.ID.String(), Label: governance.LabelUseful,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, updated.UsefulnessScore, 0.0001)
}

func TestFeedback_WrongQuarantinesAfterThreshold(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, memory.UpsertInput{
		Tenant: "t1", Project: "p1", Kind: model.KindFact,
		Title: "Flaky runbook step", Content: "Restart the pod.",
	})
	require.NoError(t, err)

	var updated model.MemoryItem
	for i := 0; i < 3; i++ {
		updated, err = svc.Feedback(ctx, memory.FeedbackInput{
			Tenant: "t1", Project: "p1", ID: created.Item.ID.String(), Label: governance.LabelWrong,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, model.StatusQuarantined, updated.Status)
	assert.Equal(t, 3, updated.ErrorCount)
}
