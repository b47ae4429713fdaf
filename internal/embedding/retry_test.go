package embedding_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/embedding"
)

type flakyProvider struct {
	failures int
	calls    int
	dims     int
}

func (f *flakyProvider) Dimensions() int { return f.dims }

func (f *flakyProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient failure")
	}
	return []float32{1, 2, 3}, nil
}

func (f *flakyProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("unused")
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	inner := &flakyProvider{failures: 2, dims: 3}
	p := embedding.WithRetry(inner, 3, time.Millisecond)

	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyProvider{failures: 10, dims: 3}
	p := embedding.WithRetry(inner, 2, time.Millisecond)

	_, err := p.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls) // initial attempt + 2 retries
}

func TestWithRetry_DoesNotRetryNoProvider(t *testing.T) {
	p := embedding.WithRetry(embedding.NewNoopProvider(8), 5, time.Millisecond)
	_, err := p.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, embedding.ErrNoProvider)
}

func TestNoopProvider_ReportsConfiguredDimensions(t *testing.T) {
	p := embedding.NewNoopProvider(1536)
	assert.Equal(t, 1536, p.Dimensions())
}
