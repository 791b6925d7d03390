package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter registers every endpoint on a fresh router.
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/convert/start", h.StartConversion).Methods(http.MethodPost)
	api.HandleFunc("/convert", h.ConvertPage).Methods(http.MethodPost)
	api.HandleFunc("/cleanup", h.Cleanup).Methods(http.MethodPost)
	api.HandleFunc("/index", h.Import).Methods(http.MethodPost)

	api.HandleFunc("/exclusions", h.ListExclusions).Methods(http.MethodGet)
	api.HandleFunc("/exclusions", h.AddExclusion).Methods(http.MethodPost)
	api.HandleFunc("/exclusions/{id:[0-9]+}", h.RemoveExclusion).Methods(http.MethodDelete)

	api.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.UpdateSettings).Methods(http.MethodPut)
	api.HandleFunc("/settings/reset", h.ResetSettings).Methods(http.MethodPost)

	api.HandleFunc("/log", h.GetLog).Methods(http.MethodGet)
	api.HandleFunc("/log", h.ClearLog).Methods(http.MethodDelete)

	api.HandleFunc("/export", h.Export).Methods(http.MethodGet)
	api.HandleFunc("/pdf/compress", h.CompressPDFs).Methods(http.MethodPost)

	api.HandleFunc("/assets", h.UploadAsset).Methods(http.MethodPost)
	api.HandleFunc("/assets/{id:[0-9]+}", h.GetAsset).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id:[0-9]+}", h.DeleteAsset).Methods(http.MethodDelete)
	api.HandleFunc("/assets/{id:[0-9]+}/srcset", h.GetSrcset).Methods(http.MethodGet)

	return r
}
