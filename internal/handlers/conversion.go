package handlers

import (
	"net/http"
)

// GetStatus returns conversion progress, the exclusion list, the journal and
// the effective settings.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, status)
}

// StartConversion clears the completion flag and returns a run id. Pages are
// then requested one at a time from offset 0.
func (h *Handlers) StartConversion(w http.ResponseWriter, r *http.Request) {
	runID, err := h.engine.Start(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"runId": runID, "offset": 0})
}

// PageRequest selects the page a conversion request processes.
type PageRequest struct {
	Offset int `json:"offset"`
}

// ConvertPage processes one page of candidates. The response's offset is
// the one to send next; complete is set once the catalog is exhausted.
func (h *Handlers) ConvertPage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.engine.ProcessPage(r.Context(), req.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, res)
}

// Cleanup runs the reconciliation sweep.
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Sweep(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, res)
}

// Import registers files found under the uploads root that the catalog
// does not know yet.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Import(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, res)
}
