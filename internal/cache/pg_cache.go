package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

// DB interface for database operations (compatible with pgxpool.Pool and pgxmock)
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// PGCache stores reference embeddings in the reference_embeddings table as
// pgvector columns, so several API instances share one cache.
type PGCache struct {
	db DB
}

// NewPGCache creates a new PostgreSQL cache
func NewPGCache(db *pgxpool.Pool) *PGCache {
	return &PGCache{db: db}
}

// NewPGCacheWithDB creates a new PostgreSQL cache with custom DB interface
func NewPGCacheWithDB(db DB) *PGCache {
	return &PGCache{db: db}
}

// Get retrieves an embedding by key
func (c *PGCache) Get(ctx context.Context, key string) (provider.Embedding, error) {
	query := `
		SELECT embedding, expires_at
		FROM reference_embeddings
		WHERE key = $1
	`

	var vec pgvector.Vector
	var expiresAt time.Time

	err := c.db.QueryRow(ctx, query, key).Scan(&vec, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	// Check if expired
	if time.Now().After(expiresAt) {
		// Delete expired entry
		_ = c.Delete(ctx, key)
		return nil, ErrCacheExpired
	}

	floats := vec.Slice()
	embedding := make(provider.Embedding, len(floats))
	for i, v := range floats {
		embedding[i] = float64(v)
	}

	return embedding, nil
}

// Set stores an embedding with TTL
func (c *PGCache) Set(ctx context.Context, key string, embedding provider.Embedding, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	query := `
		INSERT INTO reference_embeddings (key, embedding, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    expires_at = EXCLUDED.expires_at,
		    created_at = NOW()
	`

	floats := make([]float32, len(embedding))
	for i, v := range embedding {
		floats[i] = float32(v)
	}

	expiresAt := time.Now().Add(ttl)
	_, err := c.db.Exec(ctx, query, key, pgvector.NewVector(floats), expiresAt)
	return err
}

// Delete removes a key from cache
func (c *PGCache) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM reference_embeddings WHERE key = $1`
	_, err := c.db.Exec(ctx, query, key)
	return err
}

// CleanupExpired removes all expired entries
func (c *PGCache) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM reference_embeddings WHERE expires_at < NOW()`
	result, err := c.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

var (
	_ EmbeddingCache = (*PGCache)(nil)
	_ Expirer        = (*PGCache)(nil)
)
