package adminhttp

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/keithlinneman/smallbiz-web/internal/content"
)

// HandleGetContent returns the current document.
func (api *API) HandleGetContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := api.opts.Content.GetContent(ctx)
	if err != nil {
		api.logger.Error(ctx, err, "load content failed")
		api.writeError(ctx, w, http.StatusInternalServerError, "Failed to load content")
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, doc)
}

// HandlePutContent replaces the whole document.
func (api *API) HandlePutContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.writeError(ctx, w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		api.writeError(ctx, w, http.StatusBadRequest, "Invalid request")
		return
	}

	doc, err := content.Decode(body)
	if err != nil {
		api.logger.Warn(ctx, "rejected content update", "reason", "decode", "error", err)
		api.writeError(ctx, w, http.StatusBadRequest, "Invalid content")
		return
	}

	if err := api.opts.Content.SaveContent(ctx, doc); err != nil {
		var verr *content.ValidationError
		if errors.As(err, &verr) {
			api.logger.Warn(ctx, "rejected content update", "reason", "validation", "fields", verr.Fields)
			api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "Invalid content", Fields: verr.Fields})
			return
		}
		api.logger.Error(ctx, err, "save content failed", "backend", string(api.opts.Content.Backend()))
		api.writeError(ctx, w, http.StatusInternalServerError, "Failed to save content")
		return
	}

	api.logger.Info(ctx, "content saved", "backend", string(api.opts.Content.Backend()))
	api.writeJSON(ctx, w, http.StatusOK, successResponse{Success: true})
}

// HandleExport downloads the current document as pretty-printed JSON.
func (api *API) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := api.opts.Content.GetContent(ctx)
	if err != nil {
		api.logger.Error(ctx, err, "load content for export failed")
		api.writeError(ctx, w, http.StatusInternalServerError, "Failed to load content")
		return
	}
	b, err := content.Encode(doc, true)
	if err != nil {
		api.logger.Error(ctx, err, "encode content for export failed")
		api.writeError(ctx, w, http.StatusInternalServerError, "Failed to load content")
		return
	}

	name := "content-" + api.opts.Now().In(api.opts.Location).Format("20060102") + ".json"
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
