//go:build integration

package database_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/cache"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/database"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/repository"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "facecheck_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test:test@%s:%s/facecheck_test?sslmode=disable", host, port.Port())
}

func TestMigratorIntegration(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	dbName, err := database.DatabaseName(dsn)
	require.NoError(t, err)
	assert.Equal(t, "facecheck_test", dbName)

	t.Run("Up runs migrations successfully", func(t *testing.T) {
		db := openDB(t, dsn)
		migrator, err := database.NewMigrator(db, dbName)
		require.NoError(t, err)
		defer func() { _ = migrator.Close() }()

		require.NoError(t, migrator.Up())
		// second run is a no-op
		require.NoError(t, migrator.Up())

		version, dirty, err := migrator.Version()
		require.NoError(t, err)
		assert.False(t, dirty, "migration should not be dirty")
		assert.Equal(t, uint(2), version)

		assertTableExists(t, openDB(t, dsn), "reference_embeddings")
		assertTableExists(t, openDB(t, dsn), "verifications")
	})

	pool, err := database.NewPgxPool(ctx, database.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, database.HealthCheck(ctx, pool, database.DefaultHealthCheckTimeout))

	t.Run("reference embedding cache round trip", func(t *testing.T) {
		c := cache.NewPGCache(pool)

		_, err := c.Get(ctx, "Facenet512:alice")
		assert.ErrorIs(t, err, cache.ErrCacheMiss)

		require.NoError(t, c.Set(ctx, "Facenet512:alice", provider.Embedding{0.6, 0.8}, time.Hour))

		got, err := c.Get(ctx, "Facenet512:alice")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.InDelta(t, 0.6, got[0], 1e-6)
		assert.InDelta(t, 0.8, got[1], 1e-6)

		require.NoError(t, c.Set(ctx, "Facenet512:old", provider.Embedding{1, 0}, -time.Minute))
		removed, err := c.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})

	t.Run("verification log", func(t *testing.T) {
		repo := repository.NewVerificationRepository(pool)

		require.NoError(t, repo.Create(ctx, &domain.Verification{
			Identity: "alice", Recognized: true, Reason: domain.ReasonMatch, Score: 0.9, LiveFaces: 1, ReferenceFaces: 1,
		}))
		require.NoError(t, repo.Create(ctx, &domain.Verification{
			Identity: "alice", Reason: domain.ReasonAmbiguousFaceCount, LiveFaces: 2, ReferenceFaces: 1,
		}))

		got, err := repo.ListByIdentity(ctx, "alice", 10)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("MigrateUp is idempotent", func(t *testing.T) {
		require.NoError(t, database.MigrateUp(dsn))
	})

	t.Run("Down rolls back", func(t *testing.T) {
		migrator, err := database.NewMigrator(openDB(t, dsn), dbName)
		require.NoError(t, err)
		defer func() { _ = migrator.Close() }()

		require.NoError(t, migrator.Down())

		version, _, err := migrator.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(1), version)
	})
}

// openDB returns a fresh handle; closing a migrator also closes its handle.
func openDB(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := database.NewPool(database.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func assertTableExists(t *testing.T, db *sql.DB, tableName string) {
	t.Helper()

	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)

	require.NoError(t, err)
	assert.True(t, exists, "table %s should exist", tableName)
}
