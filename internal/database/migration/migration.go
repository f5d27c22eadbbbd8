package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_files",
		SQL: `CREATE TABLE IF NOT EXISTS files (
  id                UUID         PRIMARY KEY,
  storage_key       TEXT         NOT NULL UNIQUE,
  original_filename VARCHAR(255) NOT NULL,
  file_size         BIGINT       NOT NULL CHECK (file_size >= 0),
  mime_type         VARCHAR(100) NOT NULL DEFAULT 'application/octet-stream',
  max_downloads     INTEGER      NOT NULL DEFAULT 1 CHECK (max_downloads >= 1),
  download_count    INTEGER      NOT NULL DEFAULT 0 CHECK (download_count >= 0),
  expires_at        TIMESTAMPTZ,
  ip_address        TEXT,
  user_agent        TEXT,
  is_deleted        BOOLEAN      NOT NULL DEFAULT FALSE,
  deleted_at        TIMESTAMPTZ,
  last_accessed_at  TIMESTAMPTZ,
  created_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_files_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_created_at ON files (created_at);`,
	},
	{
		Name: "create_index_files_expires_at_live",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_expires_at_live ON files (expires_at) WHERE is_deleted = FALSE;`,
	},
	{
		Name: "create_index_files_deleted_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_deleted_at ON files (deleted_at) WHERE is_deleted = TRUE;`,
	},
	{
		Name: "create_table_access_logs",
		SQL: `CREATE TABLE IF NOT EXISTS access_logs (
  id            BIGSERIAL   PRIMARY KEY,
  file_id       UUID,
  action        VARCHAR(16) NOT NULL,
  ip_address    TEXT,
  user_agent    TEXT,
  success       BOOLEAN     NOT NULL,
  error_message TEXT,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_access_logs_file_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_access_logs_file_id ON access_logs (file_id);`,
	},
}

// EnsureMigrated checks if the 'files' table exists and runs migrations if it doesn't.
// access_logs.file_id has no foreign key: purged files keep their audit trail.
func EnsureMigrated(ctx context.Context, db *sql.DB, log logrus.FieldLogger, dbHost string) error {
	start := time.Now()
	l := log.WithFields(logrus.Fields{"component": "database", "db_host": dbHost})

	l.WithField("event", "db_migration_check").Info("checking schema")

	var exists bool
	query := "SELECT to_regclass('public.files') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		l.WithFields(logrus.Fields{
			"event":       "db_migration_failed",
			"duration_ms": time.Since(start).Milliseconds(),
		}).WithError(err).Error("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		l.WithFields(logrus.Fields{
			"event":       "db_migration_skip",
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("schema already exists, skipping migration")
		return nil
	}

	l.WithField("event", "db_migration_start").Info("applying schema")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			l.WithFields(logrus.Fields{
				"event":            "db_migration_failed",
				"migration_step":   step.Name,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			}).WithError(err).Error("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		l.WithFields(logrus.Fields{
			"event":            "db_migration_step",
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		}).Debug("migration step applied")
	}

	l.WithFields(logrus.Fields{
		"event":       "db_migration_success",
		"steps":       len(steps),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("schema applied")

	return nil
}
