// Package cache keeps reference-face embeddings so Verify can skip locating
// and embedding the stored reference image on every call.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

var (
	// ErrCacheMiss is returned when a key is not found in cache
	ErrCacheMiss = errors.New("cache miss")
	// ErrCacheExpired is returned when a cached value has expired
	ErrCacheExpired = errors.New("cache expired")
	// ErrInvalidTTL is returned by Set when ttl is not positive
	ErrInvalidTTL = errors.New("cache ttl must be positive")
)

// EmbeddingCache stores one embedding per key. Callers only store embeddings
// of references that contained exactly one face. Set rejects a ttl that is
// not positive with ErrInvalidTTL.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) (provider.Embedding, error)
	Set(ctx context.Context, key string, embedding provider.Embedding, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Expirer is implemented by caches whose expired entries must be purged
// by the caller. MemoryCache purges its own.
type Expirer interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Noop never stores anything; every Get is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string) (provider.Embedding, error) {
	return nil, ErrCacheMiss
}

func (Noop) Set(context.Context, string, provider.Embedding, time.Duration) error {
	return nil
}

func (Noop) Delete(context.Context, string) error {
	return nil
}

var _ EmbeddingCache = Noop{}
