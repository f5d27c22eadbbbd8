package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore() (*Local, afero.Fs) {
	fsys := afero.NewMemMapFs()
	return NewLocalFs(fsys), fsys
}

func TestValidateKey(t *testing.T) {
	for _, k := range []string{"abc", "0b7e-11aa_x.bin", "A"} {
		assert.NoError(t, ValidateKey(k), k)
	}
	for _, k := range []string{"", ".", "..", ".staging", "a/b", "../etc/passwd", "a b", `a\b`} {
		assert.ErrorIs(t, ValidateKey(k), ErrInvalidKey, k)
	}
}

func TestLocal_StagePutOpen(t *testing.T) {
	s, _ := newMemStore()
	ctx := context.Background()

	staged, err := s.Stage(ctx, strings.NewReader("ciphertext"), 64)
	require.NoError(t, err)
	assert.Equal(t, int64(10), staged.Size)

	ok, err := s.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "staged data must not be visible before Put")

	require.NoError(t, s.Put(ctx, staged, "k1"))

	rc, info, err := s.Open(ctx, "k1")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "ciphertext", string(body))
	assert.Equal(t, int64(10), info.Size)
	assert.Equal(t, "k1", info.Key)
}

func TestLocal_StageTooLarge(t *testing.T) {
	s, fsys := newMemStore()

	staged, err := s.Stage(context.Background(), bytes.NewReader(make([]byte, 11)), 10)

	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Nil(t, staged)
	left, _ := afero.ReadDir(fsys, stagingDir)
	assert.Empty(t, left, "rejected upload must not leave scratch files")
}

func TestLocal_StageExactLimit(t *testing.T) {
	s, _ := newMemStore()

	staged, err := s.Stage(context.Background(), bytes.NewReader(make([]byte, 10)), 10)

	require.NoError(t, err)
	assert.Equal(t, int64(10), staged.Size)
}

func TestLocal_StageCanceled(t *testing.T) {
	s, _ := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Stage(ctx, strings.NewReader("data"), 10)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_Discard(t *testing.T) {
	s, fsys := newMemStore()
	ctx := context.Background()

	staged, err := s.Stage(ctx, strings.NewReader("x"), 10)
	require.NoError(t, err)

	require.NoError(t, s.Discard(staged))
	require.NoError(t, s.Discard(staged))
	left, _ := afero.ReadDir(fsys, stagingDir)
	assert.Empty(t, left)
	assert.NoError(t, s.Discard(nil))
}

func TestLocal_OpenMissing(t *testing.T) {
	s, _ := newMemStore()

	_, _, err := s.Open(context.Background(), "nope")

	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocal_RemoveIsIdempotent(t *testing.T) {
	s, _ := newMemStore()
	ctx := context.Background()

	staged, err := s.Stage(ctx, strings.NewReader("x"), 10)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, staged, "k1"))

	assert.NoError(t, s.Remove(ctx, "k1"))
	assert.NoError(t, s.Remove(ctx, "k1"))
	ok, err := s.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal_RejectsTraversal(t *testing.T) {
	s, _ := newMemStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.Remove(ctx, "../x"), ErrInvalidKey)
	_, _, err := s.Open(ctx, "a/b")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLocal_ListSkipsStaging(t *testing.T) {
	s, _ := newMemStore()
	ctx := context.Background()

	for _, k := range []string{"b", "a"} {
		staged, err := s.Stage(ctx, strings.NewReader(k), 10)
		require.NoError(t, err)
		require.NoError(t, s.Put(ctx, staged, k))
	}
	_, err := s.Stage(ctx, strings.NewReader("pending"), 10)
	require.NoError(t, err)

	keys, err := s.List(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestLocal_NewLocalCreatesDir(t *testing.T) {
	dir := t.TempDir() + "/uploads"

	s, err := NewLocal(dir)
	require.NoError(t, err)

	ctx := context.Background()
	staged, err := s.Stage(ctx, strings.NewReader("on disk"), 100)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, staged, "disk-key"))

	rc, _, err := s.Open(ctx, "disk-key")
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, "disk-key"))
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "on disk", string(body), "open reader survives unlink")
	require.NoError(t, rc.Close())
	assert.True(t, s.UnlinkSafe())
}
