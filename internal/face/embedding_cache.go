package face

import (
	"fmt"
	"time"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/cache"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/config"
)

// CacheType defines supported reference embedding caches
type CacheType string

const (
	CacheTypeNone     CacheType = "none"
	CacheTypeMemory   CacheType = "memory"
	CacheTypePostgres CacheType = "postgres"
)

const memoryCacheCleanupInterval = 10 * time.Minute

// NewEmbeddingCache creates the cache selected by EMBEDDING_CACHE. db is only
// used by the postgres cache and must be nil when no database is configured.
func NewEmbeddingCache(cfg *config.Config, db cache.DB) (cache.EmbeddingCache, error) {
	switch CacheType(cfg.EmbeddingCache) {
	case CacheTypeNone, "":
		return cache.Noop{}, nil

	case CacheTypeMemory:
		return cache.NewMemoryCache(cfg.EmbeddingCacheTTL, memoryCacheCleanupInterval), nil

	case CacheTypePostgres:
		if db == nil {
			return nil, fmt.Errorf("EMBEDDING_CACHE=postgres requires DATABASE_URL")
		}
		return cache.NewPGCacheWithDB(db), nil

	default:
		return nil, fmt.Errorf("unknown embedding cache: %s (supported: %s, %s, %s)",
			cfg.EmbeddingCache, CacheTypeNone, CacheTypeMemory, CacheTypePostgres)
	}
}

// EmbeddingNamespace prefixes cache keys with the embedding space in use, so
// vectors from another extractor or model are never compared.
func EmbeddingNamespace(cfg *config.Config) string {
	switch ProviderType(cfg.Extractor) {
	case ProviderTypeDeepFace, "":
		return string(ProviderTypeDeepFace) + "/" + cfg.DeepFaceModel
	default:
		return cfg.Extractor
	}
}
