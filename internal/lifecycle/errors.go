package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no record exists for the identifier.
	ErrNotFound = errors.New("artifact not found")
	// ErrGone means the record exists but is expired or deleted.
	ErrGone = errors.New("artifact is no longer available")
	// ErrReapDeferred means reads of the object are in flight on a store that
	// cannot unlink under an open reader. The last reader completes the reap.
	ErrReapDeferred = errors.New("reap deferred until in-flight reads finish")
)

// StorageError wraps a physical I/O failure.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
