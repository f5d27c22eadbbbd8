package postgres

import (
	"context"
	"database/sql"

	"shareapi/internal/model"
	"shareapi/internal/repository"
)

// AccessLogPostgres writes audit entries to access_logs.
type AccessLogPostgres struct {
	db *sql.DB
}

// NewAccessLogPostgres creates a new AccessLogPostgres repository.
func NewAccessLogPostgres(db *sql.DB) *AccessLogPostgres {
	return &AccessLogPostgres{db: db}
}

var _ repository.AccessLogRepository = (*AccessLogPostgres)(nil)

// Insert appends one entry. created_at defaults to now() when zero.
func (r *AccessLogPostgres) Insert(ctx context.Context, e *model.AccessLog) error {
	const q = `
		INSERT INTO access_logs (file_id, action, ip_address, user_agent, success, error_message, created_at)
		VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, $6, COALESCE($7, now()))`
	var created sql.NullTime
	if !e.CreatedAt.IsZero() {
		created = sql.NullTime{Time: e.CreatedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ArtifactID,
		string(e.Action),
		nullString(e.IPAddress),
		nullString(e.UserAgent),
		e.Success,
		nullString(e.ErrorMessage),
		created,
	)
	return err
}
