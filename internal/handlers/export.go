package handlers

import (
	"net/http"
	"time"

	"media-refiner/internal/export"
	"media-refiner/internal/logging"
)

// attachment sets the download headers on the first write, so an export
// that fails before producing any bytes can still answer with JSON.
type attachment struct {
	w       http.ResponseWriter
	name    string
	written bool
}

func (a *attachment) Write(p []byte) (int, error) {
	if !a.written {
		a.written = true
		a.w.Header().Set("Content-Type", "application/zip")
		a.w.Header().Set("Content-Disposition", `attachment; filename="`+a.name+`"`)
		a.w.Header().Set("Cache-Control", "no-store")
	}
	return a.w.Write(p)
}

// Export streams every cataloged file and its sizes as a ZIP archive.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	out := &attachment{w: w, name: export.ArchiveName(time.Now())}

	sum, err := h.engine.Export(r.Context(), out)
	if err != nil {
		if !out.written {
			writeError(w, r, err)
			return
		}
		logging.Error("Export aborted after %d files: %v", sum.Files, err)
		return
	}
	logging.Info("Exported %d files (%d bytes, %d missing)", sum.Files, sum.Bytes, sum.Missing)
}
