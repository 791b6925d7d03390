package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"media-refiner/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Ready      bool   `json:"ready"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	LastImport string `json:"lastImport,omitempty"`
	Error      string `json:"error,omitempty"`

	// Catalog summary
	TotalAssets int  `json:"totalAssets"`
	Remaining   int  `json:"remaining"`
	Complete    bool `json:"complete"`
	PDFEnabled  bool `json:"pdfCompression"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

const probeTimeout = 5 * time.Second

// HealthCheck reports catalog reachability and progress. A catalog that
// cannot be read marks the service degraded with 503.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		PDFEnabled:   h.engine.PDFAvailable(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if last := h.engine.Indexer().LastScan(); !last.IsZero() {
		response.LastImport = last.Format(time.RFC3339)
	}

	stats, err := h.engine.CollectStats(ctx)
	if err != nil {
		response.Status = statusDegraded
		response.Ready = false
		response.Error = err.Error()
	} else {
		response.TotalAssets = stats.Total
		response.Remaining = stats.Remaining
		response.Complete = stats.Complete
	}

	w.Header().Set("Content-Type", "application/json")
	if !response.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only while the catalog can be read.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if _, err := h.engine.CollectStats(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, map[string]string{
		"status": "ready",
	})
}
