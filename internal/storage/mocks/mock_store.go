package mocks

import (
	"context"
	"io"

	"shareapi/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

var _ storage.Store = (*MockStore)(nil)

func (m *MockStore) Stage(ctx context.Context, r io.Reader, limit int64) (*storage.Staged, error) {
	args := m.Called(ctx, r, limit)
	if f, ok := args.Get(0).(func(context.Context, io.Reader, int64) *storage.Staged); ok {
		return f(ctx, r, limit), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Staged), args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, s *storage.Staged, key string) error {
	args := m.Called(ctx, s, key)
	return args.Error(0)
}

func (m *MockStore) Discard(s *storage.Staged) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockStore) Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Get(1).(storage.ObjectInfo), args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(storage.ObjectInfo), args.Error(2)
}

func (m *MockStore) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStore) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) List(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) UnlinkSafe() bool {
	args := m.Called()
	return args.Bool(0)
}
