package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-refiner/internal/logging"
	"media-refiner/internal/startup"
)

// VersionInfo is the build plus the optional tools this process found.
type VersionInfo struct {
	startup.BuildInfo
	PDFCompression bool `json:"pdfCompression"`
}

// GetVersion answers outside the envelope so probes can read it directly.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, VersionInfo{
		BuildInfo:      startup.GetBuildInfo(),
		PDFCompression: h.engine.PDFAvailable(),
	})
}

type promErrorLog struct{}

func (promErrorLog) Println(v ...any) {
	logging.Warn("metrics scrape: %v", v)
}

// MetricsHandler serves the default registry. Collection errors are logged
// and the remaining metrics are still served.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:          promErrorLog{},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}
