package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"media-refiner/internal/database"
	"media-refiner/internal/export"
	"media-refiner/internal/logging"
	"media-refiner/internal/pdf"
	"media-refiner/internal/refiner"
	"media-refiner/internal/settings"
)

// maxJSONBody caps request bodies other than uploads.
const maxJSONBody = 1 << 20

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

func writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, envelope{Success: true, Data: data})
}

// writeJSONError writes a failure envelope with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, envelope{Error: message})
}

// writeError maps err onto a status code and writes it. Server-side
// failures are logged with the request path.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logging.Error("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSONError(w, err.Error(), status)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, refiner.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, database.ErrAssetNotFound),
		errors.Is(err, export.ErrNothingToExport):
		return http.StatusNotFound
	case errors.Is(err, settings.ErrInvalid),
		errors.Is(err, pdf.ErrInvalidLevel),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, refiner.ErrUnsupportedUpload):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, pdf.ErrGhostscriptUnavailable),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return nil
}

// pathID returns the positive integer {id} route variable.
func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, raw)
	}
	return id, nil
}
