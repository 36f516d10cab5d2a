package content

import (
	"context"

	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// ReadyErr reports whether GetContent would currently produce a document.
// It is cheap enough for frequent probes: in both modes a readable seed file
// is sufficient, since blob reads fall back to it. Only when the seed is
// broken in blob mode is the remote document read. It never updates Meta or
// the load metrics.
func (s *Store) ReadyErr(ctx context.Context) error {
	_, _, _, seedErr := s.seed.Load(ctx)
	if seedErr == nil {
		return nil
	}
	bb, ok := s.backend.(*BlobBackend)
	if !ok {
		return xerrors.Wrap(seedErr, "not loadable")
	}
	if _, _, err := bb.loadRemote(ctx); err != nil {
		return xerrors.Wrapf(err, "not loadable (seed: %v)", seedErr)
	}
	return nil
}
