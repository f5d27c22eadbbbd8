package repository

import (
	"context"
	"time"

	"shareapi/internal/model"
)

// ArtifactRepository is the metadata registry. It exclusively owns lifecycle state.
// Mutations of download_count and is_deleted are single conditional statements,
// never read-modify-write in application memory.
type ArtifactRepository interface {
	// Create inserts a new artifact record and returns the stored row.
	Create(ctx context.Context, a *model.Artifact) (*model.Artifact, error)

	// FindByID returns ErrNotFound when no row exists (never created or purged).
	FindByID(ctx context.Context, id string) (*model.Artifact, error)

	// IncrementDownload consumes one download if the record is Active at now.
	// It returns ErrConflict when the record is deleted, expired or exhausted.
	IncrementDownload(ctx context.Context, id string, now time.Time) (*model.Artifact, error)

	// MarkDeleted latches is_deleted. Re-invoking on a deleted record returns it unchanged.
	MarkDeleted(ctx context.Context, id string, now time.Time) (*model.Artifact, error)

	// ListExpired returns a snapshot of non-deleted records past expires_at or out of downloads.
	ListExpired(ctx context.Context, now time.Time) ([]model.Artifact, error)

	// ListActive returns non-deleted records, newest first.
	ListActive(ctx context.Context, pq PageQuery) (*PageResult[model.Artifact], error)

	// LiveStorageKeys returns the storage keys of every non-deleted record.
	LiveStorageKeys(ctx context.Context) (map[string]struct{}, error)

	// ListLiveCreatedBefore returns non-deleted records created before the cutoff.
	ListLiveCreatedBefore(ctx context.Context, cutoff time.Time) ([]model.Artifact, error)

	// PurgeDeleted hard-deletes soft-deleted rows whose deleted_at is before the cutoff.
	PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error)

	// Delete hard-deletes a row. It returns nil if the row did not exist.
	Delete(ctx context.Context, id string) error

	// Stats aggregates the table.
	Stats(ctx context.Context) (*model.Stats, error)
}

// AccessLogRepository persists the best-effort audit trail.
type AccessLogRepository interface {
	Insert(ctx context.Context, entry *model.AccessLog) error
}
