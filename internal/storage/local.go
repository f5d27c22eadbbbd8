package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/spf13/afero"
)

const stagingDir = ".staging"

// Local stores objects as flat files in one directory.
// Staged uploads live in a hidden subdirectory of the same volume so
// publishing is a single rename.
type Local struct {
	fs afero.Fs
}

var _ Store = (*Local)(nil)

// NewLocal returns a store rooted at dir, creating it when missing.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return NewLocalFs(afero.NewBasePathFs(afero.NewOsFs(), abs)), nil
}

// NewLocalFs returns a store over an arbitrary afero filesystem.
func NewLocalFs(fsys afero.Fs) *Local {
	return &Local{fs: fsys}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}

func (l *Local) Stage(ctx context.Context, r io.Reader, limit int64) (*Staged, error) {
	return stage(ctx, l.fs, stagingDir, r, limit)
}

func (l *Local) Put(_ context.Context, s *Staged, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s == nil || s.fs != l.fs {
		return errors.New("staged upload does not belong to this store")
	}
	if err := l.fs.Rename(s.name, key); err != nil {
		return mapDiskErr(err)
	}
	return nil
}

func (l *Local) Discard(s *Staged) error {
	return discard(s)
}

func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := l.fs.Open(key)
	if err != nil {
		if isNotExist(err) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	return f, ObjectInfo{Key: key, Size: st.Size(), ModTime: st.ModTime()}, nil
}

func (l *Local) Remove(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := l.fs.Remove(key); err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	return afero.Exists(l.fs, key)
}

func (l *Local) List(_ context.Context) ([]string, error) {
	entries, err := afero.ReadDir(l.fs, "/")
	if err != nil {
		if isNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || ValidateKey(e.Name()) != nil {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

// UnlinkSafe is true on POSIX filesystems: an open descriptor keeps the
// inode alive after unlink.
func (l *Local) UnlinkSafe() bool {
	return runtime.GOOS != "windows"
}
