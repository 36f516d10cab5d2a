package content

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// EnsureSeedFile writes seed to path when no file exists there yet, creating
// the parent directory. An existing file is never touched. It reports
// whether the file was created.
func EnsureSeedFile(path string, seed []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, xerrors.Wrapf(err, "stat content file %s", path)
	}

	if _, err := Decode(seed); err != nil {
		return false, xerrors.Wrap(err, "seed document")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, xerrors.Wrapf(err, "create content dir for %s", path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		// created concurrently
		return false, nil
	}
	if err != nil {
		return false, xerrors.Wrapf(err, "create content file %s", path)
	}
	if _, err := f.Write(seed); err != nil {
		f.Close()
		return false, xerrors.Wrapf(err, "write content file %s", path)
	}
	if err := f.Close(); err != nil {
		return false, xerrors.Wrapf(err, "close content file %s", path)
	}
	return true, nil
}
