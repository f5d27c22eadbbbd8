package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shareapi/internal/database/migration"
	"shareapi/internal/logger"
	"shareapi/internal/model"
	"shareapi/internal/repository"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a PostgreSQL container and applies the schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		postgres.WithDatabase("shareapi_test"),
		postgres.WithUsername("shareapi"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migration.EnsureMigrated(ctx, db, logger.Discard(), "testcontainer"))
	return db
}

func newTestArtifact(maxDownloads int, expiresAt *time.Time) *model.Artifact {
	id := uuid.NewString()
	return &model.Artifact{
		ID:           id,
		StorageKey:   id,
		OriginalName: "secret.bin",
		SizeBytes:    16,
		ContentType:  "application/octet-stream",
		MaxDownloads: maxDownloads,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestIntegration_IncrementDownloadIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArtifactPostgres(db)
	ctx := context.Background()

	a, err := repo.Create(ctx, newTestArtifact(3, nil))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementDownload(ctx, a.ID, time.Now().UTC())
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, repository.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), succeeded.Load())
	assert.Equal(t, int32(17), conflicts.Load())

	got, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.DownloadCount)
}

func TestIntegration_LifecycleQueries(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArtifactPostgres(db)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	expired, err := repo.Create(ctx, newTestArtifact(5, &past))
	require.NoError(t, err)

	future := now.Add(time.Hour)
	active, err := repo.Create(ctx, newTestArtifact(5, &future))
	require.NoError(t, err)

	_, err = repo.IncrementDownload(ctx, expired.ID, now)
	assert.ErrorIs(t, err, repository.ErrConflict)

	list, err := repo.ListExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, expired.ID, list[0].ID)

	first, err := repo.MarkDeleted(ctx, expired.ID, now)
	require.NoError(t, err)
	second, err := repo.MarkDeleted(ctx, expired.ID, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, first.DeletedAt.Equal(*second.DeletedAt))

	keys, err := repo.LiveStorageKeys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, active.StorageKey)
	assert.NotContains(t, keys, expired.StorageKey)

	n, err := repo.PurgeDeleted(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.FindByID(ctx, expired.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ActiveFiles)

	logs := NewAccessLogPostgres(db)
	assert.NoError(t, logs.Insert(ctx, &model.AccessLog{ArtifactID: active.ID, Action: model.ActionUpload, Success: true}))
	assert.NoError(t, logs.Insert(ctx, &model.AccessLog{Action: model.ActionDownload, ErrorMessage: "not found"}))
}
