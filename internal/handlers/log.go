package handlers

import (
	"net/http"
)

// GetLog returns the activity journal, oldest entry first.
func (h *Handlers) GetLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.Log(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []string{}
	}
	writeSuccess(w, entries)
}

func (h *Handlers) ClearLog(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearLog(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, nil)
}
