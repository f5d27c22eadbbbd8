package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shareapi/internal/model"
	"shareapi/internal/repository"
)

// ArtifactPostgres is a PostgreSQL implementation of repository.ArtifactRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type ArtifactPostgres struct {
	db *sql.DB
}

// NewArtifactPostgres creates a new ArtifactPostgres repository.
func NewArtifactPostgres(db *sql.DB) *ArtifactPostgres {
	return &ArtifactPostgres{db: db}
}

var _ repository.ArtifactRepository = (*ArtifactPostgres)(nil)

const artifactColumns = `id, storage_key, original_filename, file_size, mime_type, max_downloads,
		download_count, expires_at, ip_address, user_agent, is_deleted, deleted_at,
		last_accessed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*model.Artifact, error) {
	var (
		a                                model.Artifact
		expiresAt, deletedAt, accessedAt sql.NullTime
		ip, ua                           sql.NullString
	)
	if err := row.Scan(
		&a.ID,
		&a.StorageKey,
		&a.OriginalName,
		&a.SizeBytes,
		&a.ContentType,
		&a.MaxDownloads,
		&a.DownloadCount,
		&expiresAt,
		&ip,
		&ua,
		&a.IsDeleted,
		&deletedAt,
		&accessedAt,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}
	a.ExpiresAt = timePtr(expiresAt)
	a.DeletedAt = timePtr(deletedAt)
	a.LastAccessedAt = timePtr(accessedAt)
	a.IPAddress = ip.String
	a.UserAgent = ua.String
	return &a, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func collect(rows *sql.Rows) ([]model.Artifact, error) {
	defer rows.Close()
	items := make([]model.Artifact, 0)
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Create inserts a new artifact row and returns the stored record.
func (r *ArtifactPostgres) Create(ctx context.Context, a *model.Artifact) (*model.Artifact, error) {
	const q = `
		INSERT INTO files (id, storage_key, original_filename, file_size, mime_type,
			max_downloads, download_count, expires_at, ip_address, user_agent, is_deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, FALSE, $10)
		RETURNING ` + artifactColumns
	row := r.db.QueryRowContext(ctx, q,
		a.ID,
		a.StorageKey,
		a.OriginalName,
		a.SizeBytes,
		a.ContentType,
		a.MaxDownloads,
		nullTime(a.ExpiresAt),
		nullString(a.IPAddress),
		nullString(a.UserAgent),
		a.CreatedAt,
	)
	return scanArtifact(row)
}

// FindByID fetches a single artifact by its ID.
func (r *ArtifactPostgres) FindByID(ctx context.Context, id string) (*model.Artifact, error) {
	const q = `SELECT ` + artifactColumns + ` FROM files WHERE id = $1`
	a, err := scanArtifact(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// IncrementDownload consumes one download with a single conditional UPDATE.
// Two concurrent callers on the last remaining slot cannot both succeed:
// the loser's WHERE clause no longer matches once the winner commits.
func (r *ArtifactPostgres) IncrementDownload(ctx context.Context, id string, now time.Time) (*model.Artifact, error) {
	const q = `
		UPDATE files
		SET download_count = download_count + 1, last_accessed_at = $2
		WHERE id = $1
			AND is_deleted = FALSE
			AND download_count < max_downloads
			AND (expires_at IS NULL OR expires_at >= $2)
		RETURNING ` + artifactColumns
	a, err := scanArtifact(r.db.QueryRowContext(ctx, q, id, now))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, ferr := r.FindByID(ctx, id); ferr != nil {
		return nil, ferr
	}
	return nil, repository.ErrConflict
}

// MarkDeleted sets the one-way deletion latch. It is idempotent.
func (r *ArtifactPostgres) MarkDeleted(ctx context.Context, id string, now time.Time) (*model.Artifact, error) {
	const q = `
		UPDATE files
		SET is_deleted = TRUE, deleted_at = $2
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING ` + artifactColumns
	a, err := scanArtifact(r.db.QueryRowContext(ctx, q, id, now))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	existing, ferr := r.FindByID(ctx, id)
	if ferr != nil {
		return nil, ferr
	}
	if !existing.IsDeleted {
		return nil, repository.ErrConflict
	}
	return existing, nil
}

// ListExpired returns every non-deleted record whose time or count threshold is crossed.
// The result is read fully before returning so callers work on a stable snapshot.
func (r *ArtifactPostgres) ListExpired(ctx context.Context, now time.Time) ([]model.Artifact, error) {
	const q = `
		SELECT ` + artifactColumns + `
		FROM files
		WHERE is_deleted = FALSE
			AND (expires_at < $1 OR download_count >= max_downloads)
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListActive returns non-deleted artifacts using LIMIT/OFFSET pagination and a total count.
func (r *ArtifactPostgres) ListActive(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Artifact], error) {
	const qCount = `SELECT COUNT(*) FROM files WHERE is_deleted = FALSE`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + artifactColumns + `
		FROM files
		WHERE is_deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	items, err := collect(rows)
	if err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Artifact]{
		Items: items,
		Total: total,
	}, nil
}

// LiveStorageKeys returns the storage keys of all non-deleted records.
func (r *ArtifactPostgres) LiveStorageKeys(ctx context.Context) (map[string]struct{}, error) {
	const q = `SELECT storage_key FROM files WHERE is_deleted = FALSE`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

// ListLiveCreatedBefore returns non-deleted records created before cutoff.
func (r *ArtifactPostgres) ListLiveCreatedBefore(ctx context.Context, cutoff time.Time) ([]model.Artifact, error) {
	const q = `
		SELECT ` + artifactColumns + `
		FROM files
		WHERE is_deleted = FALSE AND created_at < $1
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// PurgeDeleted removes soft-deleted rows older than cutoff and reports how many went.
func (r *ArtifactPostgres) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM files WHERE is_deleted = TRUE AND deleted_at < $1`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes an artifact row by ID. It does not return an error if the row does not exist.
func (r *ArtifactPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM files WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// Stats aggregates the files table.
func (r *ArtifactPostgres) Stats(ctx context.Context) (*model.Stats, error) {
	const q = `
		SELECT
			COUNT(*) FILTER (WHERE is_deleted = FALSE),
			COUNT(*) FILTER (WHERE is_deleted = TRUE),
			COUNT(*),
			COALESCE(SUM(file_size) FILTER (WHERE is_deleted = FALSE), 0)::bigint,
			COALESCE(AVG(download_count) FILTER (WHERE is_deleted = FALSE), 0)::float8,
			MAX(created_at)
		FROM files`
	var (
		s    model.Stats
		last sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, q).Scan(
		&s.ActiveFiles,
		&s.DeletedFiles,
		&s.TotalFiles,
		&s.TotalSizeBytes,
		&s.AvgDownloads,
		&last,
	); err != nil {
		return nil, err
	}
	s.LastUpload = timePtr(last)
	return &s, nil
}
