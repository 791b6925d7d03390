package handlers

import (
	"fmt"
	"net/http"
)

// ExclusionRequest names the asset to exclude.
type ExclusionRequest struct {
	ID int64 `json:"id"`
}

func (h *Handlers) ListExclusions(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.ExcludedImages(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, items)
}

// AddExclusion excludes a cataloged asset from conversion and cleanup.
func (h *Handlers) AddExclusion(w http.ResponseWriter, r *http.Request) {
	var req ExclusionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ID <= 0 {
		writeError(w, r, fmt.Errorf("%w: id must be positive", errBadRequest))
		return
	}

	added, err := h.engine.AddExclusion(r.Context(), req.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"id": req.ID, "changed": added})
}

func (h *Handlers) RemoveExclusion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	removed, err := h.engine.RemoveExclusion(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"id": id, "changed": removed})
}
