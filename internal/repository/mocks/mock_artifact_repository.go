package mocks

import (
	"context"
	"time"

	"shareapi/internal/model"
	"shareapi/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockArtifactRepository struct {
	mock.Mock
}

func (m *MockArtifactRepository) artifact(args mock.Arguments) (*model.Artifact, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Artifact), args.Error(1)
}

func (m *MockArtifactRepository) Create(ctx context.Context, a *model.Artifact) (*model.Artifact, error) {
	args := m.Called(ctx, a)
	if f, ok := args.Get(0).(func(context.Context, *model.Artifact) *model.Artifact); ok {
		return f(ctx, a), args.Error(1)
	}
	return m.artifact(args)
}

func (m *MockArtifactRepository) FindByID(ctx context.Context, id string) (*model.Artifact, error) {
	return m.artifact(m.Called(ctx, id))
}

func (m *MockArtifactRepository) IncrementDownload(ctx context.Context, id string, now time.Time) (*model.Artifact, error) {
	return m.artifact(m.Called(ctx, id, now))
}

func (m *MockArtifactRepository) MarkDeleted(ctx context.Context, id string, now time.Time) (*model.Artifact, error) {
	return m.artifact(m.Called(ctx, id, now))
}

func (m *MockArtifactRepository) ListExpired(ctx context.Context, now time.Time) ([]model.Artifact, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Artifact), args.Error(1)
}

func (m *MockArtifactRepository) ListActive(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Artifact], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Artifact]), args.Error(1)
}

func (m *MockArtifactRepository) LiveStorageKeys(ctx context.Context) (map[string]struct{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

func (m *MockArtifactRepository) ListLiveCreatedBefore(ctx context.Context, cutoff time.Time) ([]model.Artifact, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Artifact), args.Error(1)
}

func (m *MockArtifactRepository) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockArtifactRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockArtifactRepository) Stats(ctx context.Context) (*model.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Stats), args.Error(1)
}

type MockAccessLogRepository struct {
	mock.Mock
}

func (m *MockAccessLogRepository) Insert(ctx context.Context, e *model.AccessLog) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}
