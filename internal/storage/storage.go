// Package storage holds artifact bytes. Records live in the repository;
// this package only knows opaque keys.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

var (
	// ErrObjectNotFound is returned when no object exists under a key.
	ErrObjectNotFound = errors.New("object not found")
	// ErrTooLarge is returned by Stage when the source exceeds its limit.
	ErrTooLarge = errors.New("payload exceeds size limit")
	// ErrInsufficientStorage is returned when the backing volume is full.
	ErrInsufficientStorage = errors.New("insufficient storage")
	// ErrInvalidKey is returned for keys that could name a path.
	ErrInvalidKey = errors.New("invalid storage key")
)

// ObjectInfo contains basic information about a stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Staged is an upload written in full to a scratch location but not yet
// visible under its final key.
type Staged struct {
	fs   afero.Fs
	name string
	Size int64
}

// Store is the physical artifact store.
type Store interface {
	// Stage copies r to a scratch location, failing with ErrTooLarge past limit bytes.
	Stage(ctx context.Context, r io.Reader, limit int64) (*Staged, error)
	// Put publishes a staged upload under key. The object is either fully
	// visible or absent.
	Put(ctx context.Context, s *Staged, key string) error
	// Discard drops a staged upload that will not be published.
	Discard(s *Staged) error
	// Open streams an object. Missing objects yield ErrObjectNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Remove deletes an object. Removing an absent key succeeds.
	Remove(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns every published key.
	List(ctx context.Context) ([]string, error)
	// UnlinkSafe reports whether readers opened before Remove keep working.
	UnlinkSafe() bool
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

// ValidateKey rejects keys that are empty, hidden or contain separators.
func ValidateKey(key string) error {
	if len(key) > 255 || !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func mapDiskErr(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrInsufficientStorage, err)
	}
	return err
}

// stage writes r into a temp file under dir on fs and syncs it.
func stage(ctx context.Context, fs afero.Fs, dir string, r io.Reader, limit int64) (*Staged, error) {
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, mapDiskErr(err)
	}
	f, err := afero.TempFile(fs, dir, "upload-*")
	if err != nil {
		return nil, mapDiskErr(err)
	}
	name := f.Name()
	fail := func(err error) (*Staged, error) {
		_ = f.Close()
		_ = fs.Remove(name)
		return nil, err
	}

	n, err := io.Copy(f, io.LimitReader(ctxReader{ctx: ctx, r: r}, limit+1))
	if err != nil {
		return fail(mapDiskErr(err))
	}
	if n > limit {
		return fail(ErrTooLarge)
	}
	if err := f.Sync(); err != nil {
		return fail(mapDiskErr(err))
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(name)
		return nil, mapDiskErr(err)
	}
	return &Staged{fs: fs, name: name, Size: n}, nil
}

func discard(s *Staged) error {
	if s == nil {
		return nil
	}
	if err := s.fs.Remove(s.name); err != nil && !isNotExist(err) {
		return err
	}
	return nil
}
