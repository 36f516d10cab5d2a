package adminhttp

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/keithlinneman/smallbiz-web/internal/blobstore"
	"github.com/keithlinneman/smallbiz-web/internal/media"
)

// maxFieldSize caps the plain form fields of an upload, i.e. oldUrl.
const maxFieldSize = 4 << 10

// HandleUpload stores an image from the multipart field "file". The optional
// field "oldUrl" names the image being replaced.
//
// Parts are streamed so the declared type of the file is judged before any
// of its bytes are read; a wrong type is reported as such whatever its size.
func (api *API) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := readUploadForm(r)
	if err != nil {
		api.writeError(ctx, w, http.StatusBadRequest, media.UserMessage(err))
		return
	}

	res, err := api.opts.Uploader.Upload(ctx, req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, media.ErrUploadFailed) {
			status = http.StatusInternalServerError
		}
		api.writeError(ctx, w, status, media.UserMessage(err))
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, res)
}

// readUploadForm collects the file and oldUrl parts. An image is buffered up
// to one byte past the size limit; a file with a disallowed declared type is
// handed over unread, and reading stops there.
func readUploadForm(r *http.Request) (media.UploadRequest, error) {
	var req media.UploadRequest

	mr, err := r.MultipartReader()
	if err != nil {
		return req, media.ErrNoFile
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return req, nil
		}
		if err != nil {
			return req, partError(err)
		}

		switch part.FormName() {
		case "oldUrl":
			v, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
			if err != nil {
				return req, partError(err)
			}
			req.PreviousURL = string(v)
		case "file":
			if req.Body != nil {
				continue
			}
			req.Name = part.FileName()
			req.ContentType = part.Header.Get("Content-Type")
			if !media.AllowedType(req.ContentType) {
				req.Body = part
				return req, nil
			}
			data, err := io.ReadAll(io.LimitReader(part, media.MaxUploadSize+1))
			if err != nil {
				return req, partError(err)
			}
			req.Body = bytes.NewReader(data)
			req.Size = int64(len(data))
			if req.Size > media.MaxUploadSize {
				return req, nil
			}
		}
	}
}

// partError maps a failed multipart read. Only the outer body cap is
// reported as a size problem.
func partError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return media.ErrTooLarge
	}
	return media.ErrNoFile
}

// HandleBlobUsage reports storage usage. It never fails: an unreadable store
// reports zero usage.
func (api *API) HandleBlobUsage(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(r.Context(), w, http.StatusOK, api.opts.Usage.GetUsage(r.Context()))
}

// HandleStorageDebug shows which backend is active and the first page of
// stored objects.
func (api *API) HandleStorageDebug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StorageDebugResponse{
		Backend:          api.opts.Content.Backend(),
		BucketConfigured: api.opts.Blobs != nil,
		ContentKey:       api.opts.Content.ContentKey(),
		Objects:          []blobstore.Object{},
	}
	if m, ok := api.opts.Content.Meta(); ok {
		resp.LastLoad = &m
	}

	if api.opts.Blobs == nil {
		api.writeJSON(ctx, w, http.StatusOK, resp)
		return
	}

	page, err := api.opts.Blobs.List(ctx, "", "", debugListLimit)
	if err != nil {
		api.logger.Warn(ctx, "storage debug listing failed", "error", err)
		resp.Error = "Failed to list storage"
		api.writeJSON(ctx, w, http.StatusInternalServerError, resp)
		return
	}
	if page.Objects != nil {
		resp.Objects = page.Objects
	}
	resp.ObjectCount = len(resp.Objects)
	resp.Truncated = page.Cursor != ""
	api.writeJSON(ctx, w, http.StatusOK, resp)
}
