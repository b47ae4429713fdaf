package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/kioku-ai/kioku/internal/audit"
	"github.com/kioku-ai/kioku/internal/cache"
	"github.com/kioku-ai/kioku/internal/embedding"
	"github.com/kioku-ai/kioku/internal/governance"
	"github.com/kioku-ai/kioku/internal/graph"
	"github.com/kioku-ai/kioku/internal/search"
	"github.com/kioku-ai/kioku/internal/service/memory"
	"github.com/kioku-ai/kioku/internal/storage"
	"github.com/kioku-ai/kioku/internal/testutil"
)

// fakeEmbedder returns a deterministic low-dimensional vector derived from
// the text's length and byte sum, enough to exercise ranking without a real
// embedding backend.
type fakeEmbedder struct{ dims int }

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, f.dims)
	var sum float32
	for i, b := range []byte(text) {
		sum += float32(b) * float32(i+1)
	}
	for i := range vec {
		vec[i] = sum + float32(i)
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newTestService(t *testing.T) (*memory.Service, *storage.Store) {
	t.Helper()
	store := testutil.NewSQLiteStore(t)
	logger := testutil.Logger()

	keyword := search.NewKeywordIndex(store)
	vector := search.NewBruteForceIndex(store)
	governor := governance.New(store)
	g := graph.New(store)
	itemCache := cache.New(32, time.Minute)
	auditLog := audit.NewBuffer(store, logger, 16, 50*time.Millisecond)
	auditLog.Start(context.Background())
	t.Cleanup(func() { _ = auditLog.FlushNow(context.Background()) })

	var embedder embedding.Provider = &fakeEmbedder{dims: 8}

	svc := memory.New(store, embedder, keyword, vector, governor, g, itemCache, auditLog, logger)
	return svc, store
}
