package handlers

import (
	"fmt"
	"net/http"

	"media-refiner/internal/pdf"
)

// PDFCompressRequest lists the PDF assets to compress and the preset.
type PDFCompressRequest struct {
	IDs   []int64 `json:"ids"`
	Level string  `json:"level"`
}

// CompressPDFs runs Ghostscript over the listed assets and reports how many
// got smaller.
func (h *Handlers) CompressPDFs(w http.ResponseWriter, r *http.Request) {
	var req PDFCompressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, fmt.Errorf("%w: ids is required", errBadRequest))
		return
	}
	level, err := pdf.ParseLevel(req.Level)
	if err != nil {
		writeError(w, r, err)
		return
	}

	n, err := h.engine.CompressPDFs(r.Context(), req.IDs, level)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"compressed": n, "requested": len(req.IDs), "level": level})
}
