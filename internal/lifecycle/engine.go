// Package lifecycle decides when an artifact stops being retrievable and
// performs its removal. Every deletion, whether triggered by a download, an
// administrator or the background scheduler, goes through Engine.Reap.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shareapi/internal/model"
	"shareapi/internal/repository"
	"shareapi/internal/storage"
)

const defaultFinalizeTimeout = 30 * time.Second

// Engine owns the Active -> Expired -> Deleted state machine.
type Engine struct {
	repo   repository.ArtifactRepository
	audit  repository.AccessLogRepository
	store  storage.Store
	log    logrus.FieldLogger
	tracer trace.Tracer
	now    func() time.Time
	reads  *readTracker

	finalizeTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithAccessLog enables best-effort audit entries.
func WithAccessLog(r repository.AccessLogRepository) Option {
	return func(e *Engine) { e.audit = r }
}

// WithClock overrides the time source used for deletion timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFinalizeTimeout bounds a reap that runs when a download stream closes.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.finalizeTimeout = d
		}
	}
}

// NewEngine wires the registry and the store.
func NewEngine(repo repository.ArtifactRepository, store storage.Store, log logrus.FieldLogger, opts ...Option) *Engine {
	e := &Engine{
		repo:            repo,
		store:           store,
		log:             log.WithField("component", "lifecycle"),
		tracer:          otel.Tracer("shareapi/lifecycle"),
		now:             func() time.Time { return time.Now().UTC() },
		reads:           newReadTracker(),
		finalizeTimeout: defaultFinalizeTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Now returns the engine's current instant.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Reap removes the physical object, then latches the record as deleted.
// Removal comes first so a crash in between leaves a record that the next
// reap completes, never a deleted record whose bytes survive.
func (e *Engine) Reap(ctx context.Context, a model.Artifact) error {
	ctx, span := e.tracer.Start(ctx, "lifecycle.Reap", trace.WithAttributes(
		attribute.String("artifact.id", a.ID),
		attribute.Bool("artifact.deleted", a.IsDeleted),
	))
	defer span.End()

	l := e.log.WithFields(logrus.Fields{"artifact_id": a.ID, "storage_key": a.StorageKey})

	if !e.reads.beginReap(a, e.store.UnlinkSafe()) {
		span.AddEvent("deferred")
		l.WithField("event", "reap_deferred").Info("reads in flight, reap deferred")
		return ErrReapDeferred
	}
	defer e.reads.endReap(a.StorageKey)

	if err := e.store.Remove(ctx, a.StorageKey); err != nil {
		serr := &StorageError{Op: "remove", Key: a.StorageKey, Err: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, "remove failed")
		l.WithField("event", "reap_failed").WithError(err).Error("failed to remove object")
		e.record(ctx, a.ID, model.ActionDelete, serr)
		return serr
	}

	if a.IsDeleted {
		return nil
	}

	if _, err := e.repo.MarkDeleted(ctx, a.ID, e.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Row purged concurrently; nothing left to latch.
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark deleted failed")
		l.WithField("event", "reap_failed").WithError(err).Error("failed to mark artifact deleted")
		e.record(ctx, a.ID, model.ActionDelete, err)
		return fmt.Errorf("mark deleted: %w", err)
	}

	l.WithField("event", "reaped").Info("artifact reaped")
	e.record(ctx, a.ID, model.ActionDelete, nil)
	return nil
}

// ReapByID looks the record up and reaps it regardless of state.
// Reaping an already deleted record succeeds.
func (e *Engine) ReapByID(ctx context.Context, id string) (*model.Artifact, error) {
	a, err := e.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find artifact: %w", err)
	}
	if err := e.Reap(ctx, *a); err != nil && !errors.Is(err, ErrReapDeferred) {
		return nil, err
	}
	return a, nil
}

// Inspect returns the record if it is still retrievable. It never consumes a
// download and never reaps.
func (e *Engine) Inspect(ctx context.Context, id string, now time.Time) (*model.Artifact, error) {
	a, err := e.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find artifact: %w", err)
	}
	if EvaluateState(*a, now) != model.StateActive {
		return nil, ErrGone
	}
	return a, nil
}

// Serve opens the object for one download and charges the counter.
//
// When the charge consumes the last permitted download, the returned body
// reaps the artifact on Close, after the caller has written every byte.
func (e *Engine) Serve(ctx context.Context, id string, now time.Time) (*Download, error) {
	ctx, span := e.tracer.Start(ctx, "lifecycle.Serve", trace.WithAttributes(attribute.String("artifact.id", id)))
	defer span.End()

	a, err := e.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("find artifact: %w", err)
	}

	switch EvaluateState(*a, now) {
	case model.StateDeleted:
		return nil, ErrGone
	case model.StateExpired:
		span.AddEvent("expired")
		if err := e.Reap(ctx, *a); err != nil && !errors.Is(err, ErrReapDeferred) {
			e.log.WithField("artifact_id", a.ID).WithError(err).Warn("reap of expired artifact failed")
		}
		return nil, ErrGone
	}

	if !e.reads.acquire(a.StorageKey) {
		return nil, ErrGone
	}

	rc, info, err := e.store.Open(ctx, a.StorageKey)
	if err != nil {
		e.releaseRead(a.StorageKey)
		if errors.Is(err, storage.ErrObjectNotFound) {
			e.heal(ctx, *a)
			return nil, ErrGone
		}
		serr := &StorageError{Op: "open", Key: a.StorageKey, Err: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, "open failed")
		e.record(ctx, a.ID, model.ActionDownload, serr)
		return nil, serr
	}

	updated, err := e.repo.IncrementDownload(ctx, id, now)
	if err != nil {
		_ = rc.Close()
		e.releaseRead(a.StorageKey)
		switch {
		case errors.Is(err, repository.ErrConflict):
			// Another download took the last slot or the record expired
			// between lookup and charge.
			span.AddEvent("increment_conflict")
			if _, rerr := e.ReapByID(ctx, id); rerr != nil && !errors.Is(rerr, ErrNotFound) {
				e.log.WithField("artifact_id", id).WithError(rerr).Warn("reap after conflict failed")
			}
			return nil, ErrGone
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("increment download: %w", err)
	}

	last := updated.DownloadCount >= updated.MaxDownloads
	span.SetAttributes(
		attribute.Int("artifact.download_count", updated.DownloadCount),
		attribute.Bool("artifact.last_download", last),
	)
	e.record(ctx, id, model.ActionDownload, nil)

	return &Download{
		Artifact: *updated,
		Size:     info.Size,
		Body:     e.newBody(rc, *updated, last),
	}, nil
}

// heal latches a record whose object vanished outside the engine.
func (e *Engine) heal(ctx context.Context, a model.Artifact) {
	l := e.log.WithFields(logrus.Fields{"artifact_id": a.ID, "storage_key": a.StorageKey})
	l.WithField("event", "object_missing").Warn("physical object missing, marking artifact deleted")
	e.record(ctx, a.ID, model.ActionDownload, storage.ErrObjectNotFound)
	if err := e.Reap(ctx, a); err != nil && !errors.Is(err, ErrReapDeferred) {
		l.WithError(err).Error("failed to reap artifact with missing object")
	}
}

func (e *Engine) releaseRead(key string) {
	if p := e.reads.release(key); p != nil {
		e.finalize(*p)
	}
}

// finalize runs a reap detached from the request that triggered it.
func (e *Engine) finalize(a model.Artifact) {
	ctx, cancel := context.WithTimeout(context.Background(), e.finalizeTimeout)
	defer cancel()
	if err := e.Reap(ctx, a); err != nil && !errors.Is(err, ErrReapDeferred) {
		e.log.WithField("artifact_id", a.ID).WithError(err).Error("finalizing reap failed")
	}
}

// record writes an access log entry. Failures are logged and swallowed.
func (e *Engine) record(ctx context.Context, id string, action model.AccessAction, cause error) {
	if e.audit == nil {
		return
	}
	c := ClientFromContext(ctx)
	entry := &model.AccessLog{
		ArtifactID: id,
		Action:     action,
		IPAddress:  c.IP,
		UserAgent:  c.UserAgent,
		Success:    cause == nil,
		CreatedAt:  e.now(),
	}
	if cause != nil {
		entry.ErrorMessage = cause.Error()
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.audit.Insert(actx, entry); err != nil {
		e.log.WithFields(logrus.Fields{"artifact_id": id, "action": action}).WithError(err).Warn("access log write failed")
	}
}
