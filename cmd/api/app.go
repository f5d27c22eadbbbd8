package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"shareapi/internal/config"
	"shareapi/internal/database"
	"shareapi/internal/database/migration"
	"shareapi/internal/lease"
	"shareapi/internal/lifecycle"
	"shareapi/internal/repository/postgres"
	"shareapi/internal/storage"
)

// components is everything the serve and sweep commands share.
type components struct {
	db     *sql.DB
	repo   *postgres.ArtifactPostgres
	audit  *postgres.AccessLogPostgres
	store  storage.Store
	engine *lifecycle.Engine
	lease  lease.Lease
	closer []func()
}

func (c *components) close() {
	for i := len(c.closer) - 1; i >= 0; i-- {
		c.closer[i]()
	}
}

func build(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger) (*components, error) {
	c := &components{}

	db, err := database.NewPostgres(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.db = db
	c.closer = append(c.closer, func() { _ = db.Close() })

	if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
		c.close()
		return nil, err
	}

	store, err := newStore(cfg.Storage)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.store = store

	l, closeLease, err := newLease(cfg.Reclaim, log)
	if err != nil {
		c.close()
		return nil, err
	}
	c.lease = l
	c.closer = append(c.closer, closeLease)

	c.repo = postgres.NewArtifactPostgres(db)
	c.audit = postgres.NewAccessLogPostgres(db)
	c.engine = lifecycle.NewEngine(c.repo, store, log, lifecycle.WithAccessLog(c.audit))
	return c, nil
}

func newStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "", "local":
		l, err := storage.NewLocal(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "minio":
		return storage.NewMinIO(cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newLease picks a Redis lease when REDIS_URL is set so replicas sharing a
// database never run the same pass twice.
func newLease(cfg config.ReclaimConfig, log logrus.FieldLogger) (lease.Lease, func(), error) {
	if cfg.RedisURL == "" {
		return lease.NewLocal(), func() {}, nil
	}
	r, err := lease.NewRedis(cfg.RedisURL, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize lease: %w", err)
	}
	return r, func() { _ = r.Close() }, nil
}
