package lifecycle

import (
	"sync"

	"shareapi/internal/model"
)

type keyState struct {
	readers int
	reaping int
	pending *model.Artifact
}

// readTracker counts open download streams per storage key so a reap never
// pulls an object out from under a reader on stores that are not unlink-safe.
type readTracker struct {
	mu   sync.Mutex
	keys map[string]*keyState
}

func newReadTracker() *readTracker {
	return &readTracker{keys: make(map[string]*keyState)}
}

func (t *readTracker) state(key string) *keyState {
	st, ok := t.keys[key]
	if !ok {
		st = &keyState{}
		t.keys[key] = st
	}
	return st
}

func (t *readTracker) gc(key string, st *keyState) {
	if st.readers == 0 && st.reaping == 0 && st.pending == nil {
		delete(t.keys, key)
	}
}

// acquire registers a reader. It refuses while the key is being reaped.
func (t *readTracker) acquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(key)
	if st.reaping > 0 || st.pending != nil {
		t.gc(key, st)
		return false
	}
	st.readers++
	return true
}

// release drops a reader and hands back a pending reap once the last one leaves.
func (t *readTracker) release(key string) *model.Artifact {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.keys[key]
	if !ok {
		return nil
	}
	if st.readers > 0 {
		st.readers--
	}
	var p *model.Artifact
	if st.readers == 0 && st.pending != nil {
		p, st.pending = st.pending, nil
	}
	t.gc(key, st)
	return p
}

// beginReap reports whether the reap may proceed now. When it may not, the
// record is parked as pending.
func (t *readTracker) beginReap(a model.Artifact, unlinkSafe bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(a.StorageKey)
	if !unlinkSafe && st.readers > 0 {
		st.pending = &a
		return false
	}
	st.reaping++
	return true
}

func (t *readTracker) endReap(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.keys[key]
	if !ok {
		return
	}
	st.reaping--
	t.gc(key, st)
}

func (t *readTracker) readers(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.keys[key]; ok {
		return st.readers
	}
	return 0
}
