package embedding

import (
	"context"
	"errors"
	"time"
)

// retryingProvider wraps a Provider with linear backoff retry (spec.md §5:
// embedding retries up to 3x linear backoff). ErrNoProvider is never
// retried — it means there is no backend to retry against.
type retryingProvider struct {
	inner      Provider
	maxRetries int
	baseDelay  time.Duration
}

// WithRetry wraps p so Embed/EmbedBatch retry transient failures up to
// maxRetries times, waiting attempt*baseDelay between tries.
func WithRetry(p Provider, maxRetries int, baseDelay time.Duration) Provider {
	return &retryingProvider{inner: p, maxRetries: maxRetries, baseDelay: baseDelay}
}

func (r *retryingProvider) Dimensions() int { return r.inner.Dimensions() }

func (r *retryingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.retry(ctx, func() error {
		v, err := r.inner.Embed(ctx, text)
		vec = v
		return err
	})
	return vec, err
}

func (r *retryingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := r.retry(ctx, func() error {
		v, err := r.inner.EmbedBatch(ctx, texts)
		vecs = v
		return err
	})
	return vecs, err
}

func (r *retryingProvider) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, ErrNoProvider) {
			return err
		}
		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.baseDelay * time.Duration(attempt+1)):
		}
	}
	return err
}
