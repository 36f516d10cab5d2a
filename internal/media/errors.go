package media

import "errors"

var (
	ErrNoFile       = errors.New("media: no file provided")
	ErrInvalidType  = errors.New("media: invalid file type")
	ErrTooLarge     = errors.New("media: file too large")
	ErrUploadFailed = errors.New("media: upload failed")
)

// UserMessage returns the admin-facing message for an upload error.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoFile):
		return "No file provided"
	case errors.Is(err, ErrInvalidType):
		return "Invalid file type. Use JPEG, PNG, WebP, or GIF."
	case errors.Is(err, ErrTooLarge):
		return "File too large. Maximum size is 4MB."
	default:
		return "Failed to upload image"
	}
}
