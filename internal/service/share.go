package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shareapi/internal/config"
	"shareapi/internal/lifecycle"
	"shareapi/internal/model"
	"shareapi/internal/repository"
	"shareapi/internal/storage"
)

const defaultContentType = "application/octet-stream"

// Lifecycle is the part of the lifecycle engine the service drives.
type Lifecycle interface {
	Inspect(ctx context.Context, id string, now time.Time) (*model.Artifact, error)
	Serve(ctx context.Context, id string, now time.Time) (*lifecycle.Download, error)
	ReapByID(ctx context.Context, id string) (*model.Artifact, error)
	Now() time.Time
}

// UploadInput carries one upload request.
// A nil MaxDownloads or ExpiryHours selects the configured default; an
// explicit value is always range checked.
type UploadInput struct {
	Body         io.Reader
	Filename     string
	ContentType  string
	MaxDownloads *int
	ExpiryHours  *int
}

// ArtifactListResult is the service-level DTO for paginated artifacts.
type ArtifactListResult struct {
	Items []model.Artifact `json:"data"`
	Total int              `json:"total"`
}

// ShareService defines the use cases of the file sharing API.
type ShareService interface {
	// Upload stages the body, registers the record, then publishes the bytes.
	// A failed publish removes the record again.
	Upload(ctx context.Context, in UploadInput) (*model.Artifact, error)

	// Info returns descriptive metadata without consuming a download.
	Info(ctx context.Context, id string) (*model.Artifact, error)

	// Download charges one download and returns the open stream.
	Download(ctx context.Context, id string) (*lifecycle.Download, error)

	// Delete reaps the artifact immediately. Deleting twice succeeds.
	Delete(ctx context.Context, id string) (*model.Artifact, error)

	// Stats returns registry aggregates.
	Stats(ctx context.Context) (*model.Stats, error)

	// List returns retrievable artifacts newest first.
	List(ctx context.Context, limit, offset int) (*ArtifactListResult, error)
}

type shareService struct {
	engine Lifecycle
	repo   repository.ArtifactRepository
	audit  repository.AccessLogRepository
	store  storage.Store
	limits config.LimitsConfig
	log    logrus.FieldLogger
}

// NewShareService constructs a new ShareService. audit may be nil.
func NewShareService(
	engine Lifecycle,
	repo repository.ArtifactRepository,
	audit repository.AccessLogRepository,
	store storage.Store,
	limits config.LimitsConfig,
	log logrus.FieldLogger,
) ShareService {
	return &shareService{
		engine: engine,
		repo:   repo,
		audit:  audit,
		store:  store,
		limits: limits,
		log:    log.WithField("component", "service"),
	}
}

// validate resolves defaults and returns the effective download limit and
// expiry in hours.
func (s *shareService) validate(in UploadInput) (maxDownloads, expiryHours int, err error) {
	if in.Body == nil {
		return 0, 0, ErrFileRequired
	}
	maxDownloads, expiryHours = s.limits.DefaultMaxDownloads, s.limits.DefaultExpiryHours
	if in.MaxDownloads != nil {
		maxDownloads = *in.MaxDownloads
	}
	if in.ExpiryHours != nil {
		expiryHours = *in.ExpiryHours
	}
	if maxDownloads < 1 || maxDownloads > s.limits.MaxDownloadsLimit {
		return 0, 0, invalid("maxDownloads", "must be between 1 and %d", s.limits.MaxDownloadsLimit)
	}
	if expiryHours < 1 || expiryHours > s.limits.MaxExpiryHours {
		return 0, 0, invalid("expiryHours", "must be between 1 and %d", s.limits.MaxExpiryHours)
	}
	return maxDownloads, expiryHours, nil
}

func (s *shareService) Upload(ctx context.Context, in UploadInput) (*model.Artifact, error) {
	maxDownloads, expiryHours, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	staged, err := s.store.Stage(ctx, in.Body, s.limits.MaxFileSize)
	if err != nil {
		s.record(ctx, "", model.ActionUpload, err)
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	if staged.Size == 0 {
		_ = s.store.Discard(staged)
		return nil, invalid("file", "must not be empty")
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	now := s.engine.Now()
	expiresAt := now.Add(time.Duration(expiryHours) * time.Hour)
	client := lifecycle.ClientFromContext(ctx)

	a := &model.Artifact{
		ID:           uuid.NewString(),
		StorageKey:   uuid.NewString(),
		OriginalName: SanitizeFilename(in.Filename),
		SizeBytes:    staged.Size,
		ContentType:  contentType,
		MaxDownloads: maxDownloads,
		ExpiresAt:    &expiresAt,
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		CreatedAt:    now,
	}

	stored, err := s.repo.Create(ctx, a)
	if err != nil {
		_ = s.store.Discard(staged)
		s.record(ctx, "", model.ActionUpload, err)
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	if err := s.store.Put(ctx, staged, a.StorageKey); err != nil {
		_ = s.store.Discard(staged)
		// Compensate: the record must not outlive a failed write.
		if delErr := s.repo.Delete(context.WithoutCancel(ctx), a.ID); delErr != nil {
			s.log.WithFields(logrus.Fields{"artifact_id": a.ID}).WithError(delErr).Error("rollback of registry insert failed")
			return nil, fmt.Errorf("store put failed: %w; rollback delete failed: %v", err, delErr)
		}
		s.record(ctx, "", model.ActionUpload, err)
		return nil, fmt.Errorf("store put failed: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"artifact_id":   stored.ID,
		"size_bytes":    stored.SizeBytes,
		"max_downloads": stored.MaxDownloads,
		"expires_at":    expiresAt.Format(time.RFC3339),
	}).Info("artifact uploaded")
	s.record(ctx, stored.ID, model.ActionUpload, nil)
	return stored, nil
}

func checkID(id string) error {
	if id == "" {
		return ErrIDRequired
	}
	if _, err := uuid.Parse(id); err != nil {
		return invalid("id", "must be a UUID")
	}
	return nil
}

func (s *shareService) Info(ctx context.Context, id string) (*model.Artifact, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.engine.Inspect(ctx, id, s.engine.Now())
}

func (s *shareService) Download(ctx context.Context, id string) (*lifecycle.Download, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.engine.Serve(ctx, id, s.engine.Now())
}

func (s *shareService) Delete(ctx context.Context, id string) (*model.Artifact, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.engine.ReapByID(ctx, id)
}

func (s *shareService) Stats(ctx context.Context) (*model.Stats, error) {
	return s.repo.Stats(ctx)
}

// List returns paginated artifacts without exposing repository types.
func (s *shareService) List(ctx context.Context, limit, offset int) (*ArtifactListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.ListActive(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &ArtifactListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *shareService) record(ctx context.Context, id string, action model.AccessAction, cause error) {
	if s.audit == nil {
		return
	}
	c := lifecycle.ClientFromContext(ctx)
	entry := &model.AccessLog{
		ArtifactID: id,
		Action:     action,
		IPAddress:  c.IP,
		UserAgent:  c.UserAgent,
		Success:    cause == nil,
		CreatedAt:  s.engine.Now(),
	}
	if cause != nil {
		entry.ErrorMessage = cause.Error()
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.audit.Insert(actx, entry); err != nil {
		s.log.WithField("action", action).WithError(err).Warn("access log write failed")
	}
}
