package content

import "errors"

var (
	// ErrSaveFailed is matched by every error returned from a failed save.
	ErrSaveFailed = errors.New("content: save failed")

	// ErrInvalidDocument is matched by validation failures.
	ErrInvalidDocument = errors.New("content: invalid document")
)

// SaveError carries the backend a save failed against and the cause.
type SaveError struct {
	Backend Source
	Err     error
}

func (e *SaveError) Error() string {
	return "content: save to " + string(e.Backend) + " failed: " + e.Err.Error()
}

func (e *SaveError) Unwrap() error { return e.Err }

func (e *SaveError) Is(target error) bool { return target == ErrSaveFailed }
