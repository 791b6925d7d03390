package handlers

import (
	"net/http"

	"media-refiner/internal/settings"
)

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.engine.Settings().Resolve(r.Context()))
}

// UpdateSettings applies a partial update and returns the resulting
// configuration. Fields left out of the body are not changed.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update settings.Update
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.engine.Settings().Apply(r.Context(), update); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, h.engine.Settings().Resolve(r.Context()))
}

func (h *Handlers) ResetSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResetDefaults(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, h.engine.Settings().Resolve(r.Context()))
}
