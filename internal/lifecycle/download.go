package lifecycle

import (
	"io"
	"sync"

	"shareapi/internal/model"
)

// Download is an open, already charged retrieval.
type Download struct {
	Artifact model.Artifact
	Size     int64
	// Body must be closed exactly when the response is finished.
	Body io.ReadCloser
}

// Remaining returns the downloads left after this one.
func (d *Download) Remaining() int {
	return d.Artifact.RemainingDownloads()
}

type body struct {
	io.ReadCloser
	once    sync.Once
	err     error
	onClose func()
}

func (b *body) Close() error {
	b.once.Do(func() {
		b.err = b.ReadCloser.Close()
		b.onClose()
	})
	return b.err
}

func (e *Engine) newBody(rc io.ReadCloser, a model.Artifact, last bool) io.ReadCloser {
	return &body{
		ReadCloser: rc,
		onClose: func() {
			pending := e.reads.release(a.StorageKey)
			switch {
			case last:
				e.finalize(a)
			case pending != nil:
				e.finalize(*pending)
			}
		},
	}
}
