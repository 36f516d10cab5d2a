package content

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/smallbiz-web/internal/blobstore"
	"github.com/keithlinneman/smallbiz-web/internal/cryptoutil"
	"github.com/keithlinneman/smallbiz-web/internal/log"
	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

const DefaultContentKey = "content.json"

// Metrics receives content store events. Implemented by metrics.ServerMetrics.
type Metrics interface {
	IncContentLoad(source string)
	IncContentFallback(reason string)
	IncContentSave(backend, result string)
}

type nopMetrics struct{}

func (nopMetrics) IncContentLoad(string)         {}
func (nopMetrics) IncContentFallback(string)     {}
func (nopMetrics) IncContentSave(string, string) {}

type Options struct {
	Logger  log.Logger
	Metrics Metrics

	// SeedPath is the local JSON file. It is the store in file mode and the
	// read fallback in blob mode.
	SeedPath string

	// Blobs selects blob mode when non-nil.
	Blobs blobstore.Store

	// ContentKey is the object key in blob mode. Defaults to DefaultContentKey.
	ContentKey string

	// Now is used to stamp Meta.LoadedAt. Defaults to time.Now.
	Now func() time.Time
}

// Store reads and writes the content document through the backend chosen at
// construction. Every GetContent reads the backend; nothing is cached across
// requests. The metadata of the last successful load or save is kept for
// response headers and diagnostics.
type Store struct {
	backend Backend
	seed    *FileBackend
	logger  log.Logger
	metrics Metrics
	now     func() time.Time

	last atomic.Pointer[Meta]
}

func NewStore(opts Options) (*Store, error) {
	if opts.SeedPath == "" {
		return nil, xerrors.New("content: seed path is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ContentKey == "" {
		opts.ContentKey = DefaultContentKey
	}

	seed := NewFileBackend(opts.SeedPath)
	s := &Store{
		seed:    seed,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if opts.Blobs != nil {
		s.backend = NewBlobBackend(opts.Blobs, opts.ContentKey, seed, opts.Logger, opts.Metrics)
	} else {
		s.backend = seed
	}
	return s, nil
}

// Backend returns the name of the backend the store was bound to.
func (s *Store) Backend() Source { return s.backend.Name() }

// SeedPath returns the local seed file path.
func (s *Store) SeedPath() string { return s.seed.Path() }

// ContentKey returns the blob key in blob mode and "" in file mode.
func (s *Store) ContentKey() string {
	if bb, ok := s.backend.(*BlobBackend); ok {
		return bb.Key()
	}
	return ""
}

// GetContent loads the current document. In blob mode a missing or broken
// remote document falls back to the seed file; an error is returned only
// when no document can be produced at all.
func (s *Store) GetContent(ctx context.Context) (*Document, error) {
	doc, src, raw, err := s.backend.Load(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "content load failed", "backend", s.backend.Name())
		return nil, xerrors.Wrap(err, "load content")
	}
	s.metrics.IncContentLoad(string(src))
	s.remember(src, raw)
	return doc, nil
}

// SaveContent normalizes doc in place, validates it and persists it as a
// whole. Validation failures match ErrInvalidDocument and backend failures
// match ErrSaveFailed.
func (s *Store) SaveContent(ctx context.Context, doc *Document) error {
	backend := string(s.backend.Name())
	if doc == nil {
		s.metrics.IncContentSave(backend, "invalid")
		return Validate(nil)
	}

	doc.Normalize()
	if err := Validate(doc); err != nil {
		s.metrics.IncContentSave(backend, "invalid")
		return err
	}

	raw, err := s.backend.Save(ctx, doc)
	if err != nil {
		s.metrics.IncContentSave(backend, "error")
		s.logger.Error(ctx, err, "content save failed", "backend", backend)
		return xerrors.WithStack(&SaveError{Backend: s.backend.Name(), Err: err})
	}

	s.metrics.IncContentSave(backend, "ok")
	s.remember(s.backend.Name(), raw)
	s.logger.Info(ctx, "content saved", "backend", backend, "bytes", len(raw))
	return nil
}

func (s *Store) remember(src Source, raw []byte) {
	s.last.Store(&Meta{
		Source:   src,
		SHA256:   cryptoutil.SHA256Hex(raw),
		Size:     len(raw),
		LoadedAt: s.now().UTC(),
	})
}

// Meta returns metadata for the last successful load or save, if any.
func (s *Store) Meta() (Meta, bool) {
	m := s.last.Load()
	if m == nil {
		return Meta{}, false
	}
	return *m, true
}

// ContentSource returns the source of the last loaded document for headers.
func (s *Store) ContentSource() string {
	m := s.last.Load()
	if m == nil {
		return ""
	}
	return string(m.Source)
}

// ContentHash returns the SHA-256 of the last loaded document for headers.
func (s *Store) ContentHash() string {
	m := s.last.Load()
	if m == nil {
		return ""
	}
	return m.SHA256
}
