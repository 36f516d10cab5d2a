package content

import (
	"context"
	"errors"
	"io"

	"github.com/keithlinneman/smallbiz-web/internal/blobstore"
	"github.com/keithlinneman/smallbiz-web/internal/log"
	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

const contentType = "application/json"

// fallback reasons reported to metrics
const (
	fallbackAbsent      = "absent"
	fallbackListError   = "list_error"
	fallbackGetError    = "get_error"
	fallbackDecodeError = "decode_error"
)

// BlobBackend keeps the document as a single object under a fixed key.
// Reads fall back to the seed file and never write.
type BlobBackend struct {
	blobs   blobstore.Store
	key     string
	seed    *FileBackend
	logger  log.Logger
	metrics Metrics
}

func NewBlobBackend(blobs blobstore.Store, key string, seed *FileBackend, logger log.Logger, m Metrics) *BlobBackend {
	if logger == nil {
		logger = log.Nop()
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &BlobBackend{blobs: blobs, key: key, seed: seed, logger: logger, metrics: m}
}

func (b *BlobBackend) Name() Source { return SourceBlob }

// Key returns the object key the document is stored under.
func (b *BlobBackend) Key() string { return b.key }

// remoteError is why the remote document could not be used; reason is one
// of the fallback reasons.
type remoteError struct {
	reason string
	err    error
}

func (e *remoteError) Error() string {
	if e.err == nil {
		return "content blob " + e.reason
	}
	return "content blob " + e.reason + ": " + e.err.Error()
}

func (e *remoteError) Unwrap() error { return e.err }

func (b *BlobBackend) Load(ctx context.Context) (*Document, Source, []byte, error) {
	doc, data, err := b.loadRemote(ctx)
	if err == nil {
		return doc, SourceBlob, data, nil
	}
	var re *remoteError
	if !errors.As(err, &re) {
		re = &remoteError{reason: fallbackGetError, err: err}
	}
	if re.reason == fallbackAbsent {
		b.logger.Info(ctx, "content blob absent, using seed file", "key", b.key)
	} else {
		b.logger.Warn(ctx, "content blob unusable, using seed file", "key", b.key, "reason", re.reason, "err", re.err)
	}
	return b.fromSeed(ctx, re.reason)
}

// loadRemote reads and decodes the canonical object without logging,
// metrics or fallback.
func (b *BlobBackend) loadRemote(ctx context.Context) (*Document, []byte, error) {
	page, err := b.blobs.List(ctx, b.key, "", 0)
	if err != nil {
		return nil, nil, &remoteError{reason: fallbackListError, err: err}
	}

	found := false
	for _, o := range page.Objects {
		if o.Key == b.key {
			found = true
			break
		}
	}
	if !found {
		return nil, nil, &remoteError{reason: fallbackAbsent}
	}

	rc, err := b.blobs.Get(ctx, b.key)
	if err != nil {
		reason := fallbackGetError
		if errors.Is(err, blobstore.ErrNotFound) {
			reason = fallbackAbsent
		}
		return nil, nil, &remoteError{reason: reason, err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, &remoteError{reason: fallbackGetError, err: err}
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, nil, &remoteError{reason: fallbackDecodeError, err: err}
	}
	return doc, data, nil
}

func (b *BlobBackend) fromSeed(ctx context.Context, reason string) (*Document, Source, []byte, error) {
	b.metrics.IncContentFallback(reason)
	doc, _, data, err := b.seed.Load(ctx)
	if err != nil {
		return nil, SourceSeed, nil, err
	}
	return doc, SourceSeed, data, nil
}

// Save replaces the stored document. Objects that share the key as a prefix
// but are not the canonical key (leftovers from suffixed writes) are removed
// first, then the canonical key is overwritten in one put. Any remote
// failure fails the save; nothing is written to the seed file.
func (b *BlobBackend) Save(ctx context.Context, doc *Document) ([]byte, error) {
	data, err := Encode(doc, false)
	if err != nil {
		return nil, err
	}

	page, err := b.blobs.List(ctx, b.key, "", 0)
	if err != nil {
		return nil, xerrors.Wrapf(err, "list existing content objects under %s", b.key)
	}
	for _, o := range page.Objects {
		if o.Key == b.key {
			continue
		}
		if err := b.blobs.Delete(ctx, o.Key); err != nil {
			return nil, xerrors.Wrapf(err, "delete stale content object %s", o.Key)
		}
		b.logger.Debug(ctx, "removed stale content object", "key", o.Key)
	}

	if _, err := b.blobs.Put(ctx, b.key, data, contentType); err != nil {
		return nil, xerrors.Wrapf(err, "put content object %s", b.key)
	}
	return data, nil
}
