package lifecycle

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"shareapi/internal/logger"
	"shareapi/internal/model"
	"shareapi/internal/repository"
	"shareapi/internal/storage"
)

// memRepo is a registry whose conditional updates are serialised by a mutex,
// mirroring the single-row UPDATE ... WHERE semantics of the SQL registry.
type memRepo struct {
	mu    sync.Mutex
	rows  map[string]model.Artifact
	marks int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]model.Artifact)}
}

func (r *memRepo) Create(_ context.Context, a *model.Artifact) (*model.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[a.ID] = *a
	c := *a
	return &c, nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*model.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r *memRepo) IncrementDownload(_ context.Context, id string, now time.Time) (*model.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.IsDeleted || a.DownloadCount >= a.MaxDownloads || (a.ExpiresAt != nil && a.ExpiresAt.Before(now)) {
		return nil, repository.ErrConflict
	}
	a.DownloadCount++
	a.LastAccessedAt = &now
	r.rows[id] = a
	return &a, nil
}

func (r *memRepo) MarkDeleted(_ context.Context, id string, now time.Time) (*model.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !a.IsDeleted {
		a.IsDeleted = true
		a.DeletedAt = &now
		r.rows[id] = a
		r.marks++
	}
	return &a, nil
}

func (r *memRepo) ListExpired(_ context.Context, now time.Time) ([]model.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Artifact, 0)
	for _, a := range r.rows {
		if !a.IsDeleted && EvaluateState(a, now) == model.StateExpired {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) ListActive(context.Context, repository.PageQuery) (*repository.PageResult[model.Artifact], error) {
	return &repository.PageResult[model.Artifact]{}, nil
}

func (r *memRepo) LiveStorageKeys(context.Context) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make(map[string]struct{})
	for _, a := range r.rows {
		if !a.IsDeleted {
			keys[a.StorageKey] = struct{}{}
		}
	}
	return keys, nil
}

func (r *memRepo) ListLiveCreatedBefore(_ context.Context, cutoff time.Time) ([]model.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Artifact, 0)
	for _, a := range r.rows {
		if !a.IsDeleted && a.CreatedAt.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) PurgeDeleted(context.Context, time.Time) (int64, error) { return 0, nil }

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *memRepo) Stats(context.Context) (*model.Stats, error) { return &model.Stats{}, nil }

func (r *memRepo) get(t *testing.T, id string) model.Artifact {
	t.Helper()
	a, err := r.FindByID(context.Background(), id)
	require.NoError(t, err)
	return *a
}

// strictStore reports itself as not unlink-safe and records removals.
type strictStore struct {
	storage.Store
	mu      sync.Mutex
	removed []string
}

func (s *strictStore) UnlinkSafe() bool { return false }

func (s *strictStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	s.removed = append(s.removed, key)
	s.mu.Unlock()
	return s.Store.Remove(ctx, key)
}

func (s *strictStore) removals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.removed)
}

type fixture struct {
	repo   *memRepo
	store  storage.Store
	engine *Engine
	now    time.Time
}

func newFixture(t *testing.T, wrap func(storage.Store) storage.Store) *fixture {
	t.Helper()
	var st storage.Store = storage.NewLocalFs(afero.NewMemMapFs())
	if wrap != nil {
		st = wrap(st)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	return &fixture{
		repo:   repo,
		store:  st,
		engine: NewEngine(repo, st, logger.Discard(), WithClock(func() time.Time { return now })),
		now:    now,
	}
}

func (f *fixture) upload(t *testing.T, id, payload string, maxDownloads int, expiresAt *time.Time) model.Artifact {
	t.Helper()
	ctx := context.Background()
	staged, err := f.store.Stage(ctx, strings.NewReader(payload), 1<<20)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(ctx, staged, "key-"+id))
	a, err := f.repo.Create(ctx, &model.Artifact{
		ID:           id,
		StorageKey:   "key-" + id,
		OriginalName: id + ".bin",
		SizeBytes:    int64(len(payload)),
		ContentType:  "application/octet-stream",
		MaxDownloads: maxDownloads,
		ExpiresAt:    expiresAt,
		CreatedAt:    f.now.Add(-time.Hour),
	})
	require.NoError(t, err)
	return *a
}

func (f *fixture) exists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := f.store.Exists(context.Background(), key)
	require.NoError(t, err)
	return ok
}
