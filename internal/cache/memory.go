package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

// MemoryCache is a process-local EmbeddingCache. Expired entries are purged
// by a background janitor every cleanupInterval.
type MemoryCache struct {
	store *gocache.Cache
}

func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{store: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (provider.Embedding, error) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}

	emb, ok := v.(provider.Embedding)
	if !ok {
		c.store.Delete(key)
		return nil, ErrCacheMiss
	}

	// copy so callers cannot mutate the cached vector
	out := make(provider.Embedding, len(emb))
	copy(out, emb)
	return out, nil
}

// Set stores a copy of embedding for ttl.
func (c *MemoryCache) Set(_ context.Context, key string, embedding provider.Embedding, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	stored := make(provider.Embedding, len(embedding))
	copy(stored, embedding)
	c.store.Set(key, stored, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.store.Delete(key)
	return nil
}

// Len returns the number of items, including expired ones not yet purged.
func (c *MemoryCache) Len() int {
	return c.store.ItemCount()
}

var _ EmbeddingCache = (*MemoryCache)(nil)
