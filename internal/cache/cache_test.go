package cache_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-ai/kioku/internal/cache"
	"github.com/kioku-ai/kioku/internal/model"
)

func TestItemCache_PutGet(t *testing.T) {
	c := cache.New(200, 5*time.Minute)
	item := model.MemoryItem{ID: uuid.New(), Title: "x"}
	c.Put(item)

	got, ok := c.Get(item.ID)
	require.True(t, ok)
	assert.Equal(t, item.Title, got.Title)
}

func TestItemCache_MissOnUnknownID(t *testing.T) {
	c := cache.New(200, 5*time.Minute)
	_, ok := c.Get(uuid.New())
	assert.False(t, ok)
}

func TestItemCache_InvalidateRemoves(t *testing.T) {
	c := cache.New(200, 5*time.Minute)
	item := model.MemoryItem{ID: uuid.New()}
	c.Put(item)
	c.Invalidate(item.ID)
	_, ok := c.Get(item.ID)
	assert.False(t, ok)
}

func TestItemCache_ClearEmptiesAll(t *testing.T) {
	c := cache.New(200, 5*time.Minute)
	c.Put(model.MemoryItem{ID: uuid.New()})
	c.Put(model.MemoryItem{ID: uuid.New()})
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestItemCache_RespectsCapacity(t *testing.T) {
	c := cache.New(2, 5*time.Minute)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		c.Put(model.MemoryItem{ID: id})
	}
	assert.Equal(t, 2, c.Len())
}
