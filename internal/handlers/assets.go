package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"media-refiner/internal/metadata"
)

// uploadField is the multipart form field carrying the file.
const uploadField = "file"

// UploadAsset stores a multipart upload, registers it and converts it
// unless automatic conversion is disabled.
func (h *Handlers) UploadAsset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		// multipart does not always wrap the limit error, so match its text too.
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeJSONError(w, fmt.Sprintf("upload exceeds %d bytes", h.maxUpload), http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, r, fmt.Errorf("%w: missing %q form file: %v", errBadRequest, uploadField, err))
		return
	}
	defer file.Close()

	res, err := h.engine.Upload(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, envelope{Success: true, Data: res})
}

func (h *Handlers) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.engine.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, a)
}

// DeleteAsset removes the asset's files (unless excluded) and its record.
func (h *Handlers) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.engine.DeleteAsset(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]int64{"id": id})
}

// GetSrcset lists the responsive candidates of an asset. The base query
// parameter is the public URL of the uploads root (default /uploads).
func (h *Handlers) GetSrcset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	base := r.URL.Query().Get("base")
	if base == "" {
		base = "/uploads"
	}

	entries, err := h.engine.Srcset(r.Context(), id, base)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"entries": entries, "srcset": metadata.FormatSrcset(entries)})
}
