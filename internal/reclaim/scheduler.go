// Package reclaim runs the background passes that enforce expiry when no
// client asks for a file again.
//
//  1. Sweep: reap every record past its time or download limit.
//  2. Reconcile: remove objects with no live record, latch live records whose object is gone.
//  3. Purge: drop soft-deleted rows after the retention window.
//  4. Stats: log and export registry aggregates.
package reclaim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"shareapi/internal/config"
	"shareapi/internal/lease"
	"shareapi/internal/lifecycle"
	"shareapi/internal/model"
	"shareapi/internal/repository"
	"shareapi/internal/storage"
)

// Reaper is the deletion procedure the scheduler drives.
type Reaper interface {
	Reap(ctx context.Context, a model.Artifact) error
	Now() time.Time
}

const (
	taskSweep     = "sweep"
	taskReconcile = "reconcile"
	taskPurge     = "purge"
	taskStats     = "stats"
)

// SweepResult summarises one sweep.
type SweepResult struct {
	Skipped  bool
	Scanned  int
	Reaped   int
	Deferred int
	Failed   int
	Duration time.Duration
}

// ReconcileResult summarises one reconciliation.
type ReconcileResult struct {
	Skipped        bool
	Objects        int
	OrphansRemoved int
	MissingReaped  int
	Failed         int
	Duration       time.Duration
}

// PurgeResult summarises one purge.
type PurgeResult struct {
	Skipped  bool
	Purged   int64
	Duration time.Duration
}

// StatsResult summarises one stats emission. Stats is nil when skipped.
type StatsResult struct {
	Skipped bool
	Stats   *model.Stats
}

// Scheduler owns the reclamation timers.
type Scheduler struct {
	reaper  Reaper
	repo    repository.ArtifactRepository
	store   storage.Store
	lease   lease.Lease
	cfg     config.ReclaimConfig
	metrics *Metrics
	log     logrus.FieldLogger

	busy map[string]*atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a scheduler. lease may be nil for a single replica.
func New(
	reaper Reaper,
	repo repository.ArtifactRepository,
	store storage.Store,
	l lease.Lease,
	cfg config.ReclaimConfig,
	metrics *Metrics,
	log logrus.FieldLogger,
) *Scheduler {
	busy := make(map[string]*atomic.Bool)
	for _, t := range []string{taskSweep, taskReconcile, taskPurge, taskStats} {
		busy[t] = new(atomic.Bool)
	}
	return &Scheduler{
		reaper:  reaper,
		repo:    repo,
		store:   store,
		lease:   l,
		cfg:     cfg,
		metrics: metrics,
		log:     log.WithField("component", "reclaim"),
		busy:    busy,
	}
}

// Start launches the timers. The first sweep runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.loop(runCtx, s.cfg.SweepInterval, true, func(ctx context.Context) { s.Sweep(ctx) })
	s.loop(runCtx, s.cfg.MaintenanceInterval, false, func(ctx context.Context) {
		s.Reconcile(ctx)
		s.Purge(ctx)
	})
	s.loop(runCtx, s.cfg.StatsInterval, false, func(ctx context.Context) { _, _ = s.EmitStats(ctx) })

	s.log.WithFields(logrus.Fields{
		"sweep_interval":       s.cfg.SweepInterval.String(),
		"maintenance_interval": s.cfg.MaintenanceInterval.String(),
		"stats_interval":       s.cfg.StatsInterval.String(),
	}).Info("reclamation scheduler started")
}

// Stop cancels the timers and waits for running passes to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info("reclamation scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, immediate bool, fn func(context.Context)) {
	if every <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if immediate {
			fn(ctx)
		}
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// enter claims the single-flight slot and, when configured, the lease.
func (s *Scheduler) enter(ctx context.Context, task string, ttl time.Duration) (func(), bool) {
	flag := s.busy[task]
	if !flag.CompareAndSwap(false, true) {
		s.metrics.skipped.WithLabelValues(task).Inc()
		s.log.WithField("task", task).Info("previous pass still running, skipping")
		return nil, false
	}
	if s.lease == nil {
		return func() { flag.Store(false) }, true
	}
	release, ok, err := s.lease.Acquire(ctx, task, ttl)
	if err != nil || !ok {
		flag.Store(false)
		s.metrics.skipped.WithLabelValues(task).Inc()
		l := s.log.WithField("task", task)
		if err != nil {
			l.WithError(err).Warn("lease unavailable, skipping")
		} else {
			l.Debug("lease held by another replica, skipping")
		}
		return nil, false
	}
	return func() {
		release()
		flag.Store(false)
	}, true
}

func leaseTTL(every time.Duration) time.Duration {
	if every <= 0 {
		return time.Hour
	}
	return every
}

// Sweep reaps every expired record. One failing record never stops the pass.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	done, ok := s.enter(ctx, taskSweep, leaseTTL(s.cfg.SweepInterval))
	if !ok {
		return SweepResult{Skipped: true}
	}
	defer done()

	start := time.Now()
	res := SweepResult{}
	l := s.log.WithField("task", taskSweep)

	expired, err := s.repo.ListExpired(ctx, s.reaper.Now())
	if err != nil {
		l.WithError(err).Error("failed to list expired artifacts")
		res.Failed++
	}
	res.Scanned = len(expired)

	for _, a := range expired {
		if ctx.Err() != nil {
			break
		}
		err := s.reaper.Reap(ctx, a)
		switch {
		case err == nil:
			res.Reaped++
		case errors.Is(err, lifecycle.ErrReapDeferred):
			res.Deferred++
		default:
			res.Failed++
			l.WithField("artifact_id", a.ID).WithError(err).Warn("reap failed")
		}
	}

	res.Duration = time.Since(start)
	s.metrics.runs.WithLabelValues(taskSweep).Inc()
	s.metrics.reaped.Add(float64(res.Reaped))
	s.metrics.deferred.Add(float64(res.Deferred))
	s.metrics.failures.WithLabelValues(taskSweep).Add(float64(res.Failed))
	s.metrics.duration.WithLabelValues(taskSweep).Observe(res.Duration.Seconds())

	l.WithFields(logrus.Fields{
		"scanned":     res.Scanned,
		"reaped":      res.Reaped,
		"deferred":    res.Deferred,
		"failed":      res.Failed,
		"duration_ms": res.Duration.Milliseconds(),
	}).Info("sweep finished")
	return res
}

// Reconcile brings the store and the registry back into agreement.
// Objects are listed before live keys so an upload that lands in between is
// seen as live, never as an orphan.
func (s *Scheduler) Reconcile(ctx context.Context) (res ReconcileResult) {
	done, ok := s.enter(ctx, taskReconcile, leaseTTL(s.cfg.MaintenanceInterval))
	if !ok {
		return ReconcileResult{Skipped: true}
	}
	defer done()

	start := time.Now()
	l := s.log.WithField("task", taskReconcile)
	defer func() {
		res.Duration = time.Since(start)
		s.metrics.runs.WithLabelValues(taskReconcile).Inc()
		s.metrics.orphans.Add(float64(res.OrphansRemoved))
		s.metrics.missing.Add(float64(res.MissingReaped))
		s.metrics.failures.WithLabelValues(taskReconcile).Add(float64(res.Failed))
		s.metrics.duration.WithLabelValues(taskReconcile).Observe(res.Duration.Seconds())
		l.WithFields(logrus.Fields{
			"objects":         res.Objects,
			"orphans_removed": res.OrphansRemoved,
			"missing_reaped":  res.MissingReaped,
			"failed":          res.Failed,
			"duration_ms":     res.Duration.Milliseconds(),
		}).Info("reconcile finished")
	}()

	keys, err := s.store.List(ctx)
	if err != nil {
		l.WithError(err).Error("failed to list stored objects")
		res.Failed++
		return res
	}
	res.Objects = len(keys)

	live, err := s.repo.LiveStorageKeys(ctx)
	if err != nil {
		l.WithError(err).Error("failed to load live storage keys")
		res.Failed++
		return res
	}

	present := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		present[k] = struct{}{}
		if _, ok := live[k]; ok {
			continue
		}
		if err := s.store.Remove(ctx, k); err != nil {
			res.Failed++
			l.WithField("storage_key", k).WithError(err).Warn("failed to remove orphan")
			continue
		}
		res.OrphansRemoved++
		l.WithField("storage_key", k).Debug("orphan removed")
	}

	cutoff := s.reaper.Now().Add(-s.cfg.ReconcileGrace)
	candidates, err := s.repo.ListLiveCreatedBefore(ctx, cutoff)
	if err != nil {
		l.WithError(err).Error("failed to list live artifacts")
		res.Failed++
		return res
	}
	for _, a := range candidates {
		if _, ok := present[a.StorageKey]; ok {
			continue
		}
		exists, err := s.store.Exists(ctx, a.StorageKey)
		if err != nil {
			res.Failed++
			continue
		}
		if exists {
			continue
		}
		if err := s.reaper.Reap(ctx, a); err != nil && !errors.Is(err, lifecycle.ErrReapDeferred) {
			res.Failed++
			l.WithField("artifact_id", a.ID).WithError(err).Warn("failed to latch artifact with missing object")
			continue
		}
		res.MissingReaped++
		l.WithField("artifact_id", a.ID).Warn("live artifact had no object, marked deleted")
	}
	return res
}

// Purge hard-deletes soft-deleted rows older than the retention window.
func (s *Scheduler) Purge(ctx context.Context) PurgeResult {
	done, ok := s.enter(ctx, taskPurge, leaseTTL(s.cfg.MaintenanceInterval))
	if !ok {
		return PurgeResult{Skipped: true}
	}
	defer done()

	start := time.Now()
	l := s.log.WithField("task", taskPurge)
	cutoff := s.reaper.Now().Add(-s.cfg.PurgeRetention)

	n, err := s.repo.PurgeDeleted(ctx, cutoff)
	res := PurgeResult{Purged: n, Duration: time.Since(start)}
	s.metrics.runs.WithLabelValues(taskPurge).Inc()
	s.metrics.duration.WithLabelValues(taskPurge).Observe(res.Duration.Seconds())
	if err != nil {
		s.metrics.failures.WithLabelValues(taskPurge).Inc()
		l.WithError(err).Error("purge failed")
		return res
	}
	s.metrics.purged.Add(float64(n))
	l.WithFields(logrus.Fields{
		"purged":      n,
		"cutoff":      cutoff.Format(time.RFC3339),
		"duration_ms": res.Duration.Milliseconds(),
	}).Info("purge finished")
	return res
}

// EmitStats logs registry aggregates and updates the gauges.
func (s *Scheduler) EmitStats(ctx context.Context) (StatsResult, error) {
	done, ok := s.enter(ctx, taskStats, leaseTTL(s.cfg.StatsInterval))
	if !ok {
		return StatsResult{Skipped: true}, nil
	}
	defer done()

	st, err := s.repo.Stats(ctx)
	if err != nil {
		s.metrics.failures.WithLabelValues(taskStats).Inc()
		s.log.WithField("task", taskStats).WithError(err).Error("failed to load stats")
		return StatsResult{}, err
	}
	s.metrics.runs.WithLabelValues(taskStats).Inc()
	s.metrics.active.Set(float64(st.ActiveFiles))
	s.metrics.totalBytes.Set(float64(st.TotalSizeBytes))

	fields := logrus.Fields{
		"task":          taskStats,
		"active_files":  st.ActiveFiles,
		"deleted_files": st.DeletedFiles,
		"total_files":   st.TotalFiles,
		"active_size":   humanize.Bytes(uint64(st.TotalSizeBytes)),
		"avg_downloads": st.AvgDownloads,
	}
	if st.LastUpload != nil {
		fields["last_upload"] = humanize.Time(*st.LastUpload)
	}
	s.log.WithFields(fields).Info("storage stats")
	return StatsResult{Stats: st}, nil
}
