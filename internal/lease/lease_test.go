package lease

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shareapi/internal/logger"
)

func TestLocal_AcquireRelease(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = l.Acquire(ctx, "purge", time.Minute)
	assert.True(t, ok, "names are independent")

	release()
	release()
	_, ok, _ = l.Acquire(ctx, "sweep", time.Minute)
	assert.True(t, ok)
}

func TestLocal_Expiry(t *testing.T) {
	l := NewLocal()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	staleRelease, ok, _ := l.Acquire(ctx, "sweep", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = l.Acquire(ctx, "sweep", time.Minute)
	require.True(t, ok, "expired lease can be taken over")

	staleRelease()
	_, ok, _ = l.Acquire(ctx, "sweep", time.Minute)
	assert.False(t, ok, "stale holder must not release the new owner's lease")
}

func TestRedis_AcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := NewRedis("redis://"+mr.Addr(), logger.Discard())
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedis("redis://"+mr.Addr(), logger.Discard())
	require.NoError(t, err)
	defer b.Close()
	ctx := context.Background()

	release, ok, err := a.Acquire(ctx, "sweep", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(keyPrefix+"sweep"))

	_, ok, err = b.Acquire(ctx, "sweep", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(keyPrefix+"sweep"))

	_, ok, err = b.Acquire(ctx, "sweep", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_ReleaseDoesNotStealAfterExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := NewRedis("redis://"+mr.Addr(), logger.Discard())
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedis("redis://"+mr.Addr(), logger.Discard())
	require.NoError(t, err)
	defer b.Close()
	ctx := context.Background()

	releaseA, ok, err := a.Acquire(ctx, "purge", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = b.Acquire(ctx, "purge", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	releaseA()
	assert.True(t, mr.Exists(keyPrefix+"purge"), "b still owns the lease")
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis("://nope", logger.Discard())
	assert.Error(t, err)
}
