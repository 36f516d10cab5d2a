package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/keithlinneman/smallbiz-web/internal/blobstore"
	"github.com/keithlinneman/smallbiz-web/internal/log"
	"github.com/keithlinneman/smallbiz-web/internal/pathutil"
	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// MaxUploadSize is the largest accepted image, 4 MiB.
const MaxUploadSize = 4 * 1024 * 1024

const imagePrefix = "images/"

var allowedTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// UploadMetrics receives upload outcomes. Implemented by metrics.ServerMetrics.
type UploadMetrics interface {
	IncAssetUpload(result string)
}

type nopUploadMetrics struct{}

func (nopUploadMetrics) IncAssetUpload(string) {}

type UploadRequest struct {
	// Name is the client file name, used as the base of the object key.
	Name string
	// ContentType is the type declared by the client.
	ContentType string
	// Size is the declared size in bytes.
	Size int64
	Body io.Reader
	// PreviousURL is the image being replaced, if any.
	PreviousURL string
}

type UploadResult struct {
	URL string `json:"url"`
	Key string `json:"-"`
}

type Uploader struct {
	blobs   blobstore.Store
	logger  log.Logger
	metrics UploadMetrics
	suffix  func() string
}

// NewUploader returns an uploader writing to blobs. A nil blobs makes every
// valid upload fail with ErrUploadFailed.
func NewUploader(blobs blobstore.Store, logger log.Logger, m UploadMetrics) *Uploader {
	if logger == nil {
		logger = log.Nop()
	}
	if m == nil {
		m = nopUploadMetrics{}
	}
	return &Uploader{
		blobs:   blobs,
		logger:  logger,
		metrics: m,
		suffix:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
	}
}

// Upload validates and stores an image. Checks run in order: presence,
// declared type, size, then the type sniffed from the bytes. When the
// request replaces an image this store owns, the old object is deleted on a
// best-effort basis before the new one is written.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	data, err := u.validate(req)
	if err != nil {
		u.metrics.IncAssetUpload("rejected")
		return UploadResult{}, err
	}

	if u.blobs == nil {
		u.metrics.IncAssetUpload("error")
		return UploadResult{}, xerrors.Wrap(ErrUploadFailed, "blob storage not configured")
	}

	if key, ok := u.replacedImage(req.PreviousURL); ok {
		u.bestEffortDelete(ctx, key)
	} else if req.PreviousURL != "" {
		u.logger.Info(ctx, "previous image is not an uploaded image, leaving it", "previous_url", req.PreviousURL)
	}

	key := objectKey(req.Name, req.ContentType, u.suffix())
	obj, err := u.blobs.Put(ctx, key, data, req.ContentType)
	if err != nil {
		u.metrics.IncAssetUpload("error")
		u.logger.Error(ctx, err, "image upload failed", "key", key)
		return UploadResult{}, xerrors.WithStack(fmt.Errorf("%w: %w", ErrUploadFailed, err))
	}

	u.metrics.IncAssetUpload("ok")
	u.logger.Info(ctx, "image uploaded", "key", key, "bytes", len(data))
	return UploadResult{URL: obj.URL, Key: obj.Key}, nil
}

// AllowedType reports whether a declared content type may be uploaded.
func AllowedType(contentType string) bool {
	return mimetype.EqualsAny(contentType, allowedTypes...)
}

func (u *Uploader) validate(req UploadRequest) ([]byte, error) {
	if req.Body == nil {
		return nil, ErrNoFile
	}
	if !AllowedType(req.ContentType) {
		return nil, ErrInvalidType
	}
	if req.Size > MaxUploadSize {
		return nil, ErrTooLarge
	}

	// the declared size is not trusted
	data, err := io.ReadAll(io.LimitReader(req.Body, MaxUploadSize+1))
	if err != nil {
		return nil, xerrors.WithStack(fmt.Errorf("%w: read upload: %w", ErrUploadFailed, err))
	}
	if len(data) == 0 {
		return nil, ErrNoFile
	}
	if len(data) > MaxUploadSize {
		return nil, ErrTooLarge
	}
	if detected := mimetype.Detect(data); !mimetype.EqualsAny(detected.String(), allowedTypes...) {
		return nil, ErrInvalidType
	}
	return data, nil
}

// replacedImage returns the key of a previous image this uploader may
// delete: the URL must belong to the store and name an object under
// images/. Anything else in the bucket, such as the content document, is
// never touched.
func (u *Uploader) replacedImage(previousURL string) (string, bool) {
	if previousURL == "" {
		return "", false
	}
	key, ok := u.blobs.KeyFromURL(previousURL)
	if !ok || !strings.HasPrefix(key, imagePrefix) || key == imagePrefix {
		return "", false
	}
	return key, true
}

// bestEffortDelete removes a replaced object. Failure is logged and
// swallowed; the new upload proceeds regardless and the old object is left
// behind.
func (u *Uploader) bestEffortDelete(ctx context.Context, key string) {
	if err := u.blobs.Delete(ctx, key); err != nil {
		u.logger.Warn(ctx, "could not delete replaced image", "key", key, "err", err)
		return
	}
	u.logger.Debug(ctx, "deleted replaced image", "key", key)
}

// objectKey builds images/<base>-<suffix><ext> from the client file name.
func objectKey(name, contentType, suffix string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(path.Ext(base))
	base = strings.TrimSuffix(base, path.Ext(base))
	base = pathutil.Slug(base)
	if base == "" {
		base = "image"
	}
	if ext == "" || !knownExt(ext) {
		ext = extFor(contentType)
	}
	return imagePrefix + base + "-" + suffix + ext
}

func knownExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return true
	}
	return false
}

func extFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ""
}
