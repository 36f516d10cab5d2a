package content

import (
	"context"
	"os"
	"path/filepath"

	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// Backend loads and persists the document as a whole.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() Source
	// Load returns the document, the source it was read from, and the raw
	// bytes that were decoded.
	Load(ctx context.Context) (*Document, Source, []byte, error)
	// Save persists an already validated document.
	Save(ctx context.Context, doc *Document) ([]byte, error)
}

// FileBackend keeps the document in a local JSON file.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Name() Source { return SourceFile }

// Path returns the file the backend reads and writes.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Load(_ context.Context) (*Document, Source, []byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, SourceFile, nil, xerrors.Wrapf(err, "read content file %s", b.path)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, SourceFile, nil, xerrors.Wrapf(err, "content file %s", b.path)
	}
	return doc, SourceFile, data, nil
}

// Save writes the document with 2-space indentation. The write goes to a
// temp file in the same directory which is then renamed over the target.
func (b *FileBackend) Save(_ context.Context, doc *Document) ([]byte, error) {
	data, err := Encode(doc, true)
	if err != nil {
		return nil, err
	}

	perm := os.FileMode(0o644)
	if fi, err := os.Stat(b.path); err == nil {
		perm = fi.Mode().Perm()
	}

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, ".content-*.json")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, xerrors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return nil, xerrors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return nil, xerrors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return nil, xerrors.Wrapf(err, "rename %s to %s", tmpName, b.path)
	}
	return data, nil
}
