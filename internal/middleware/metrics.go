package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"media-refiner/internal/metrics"
)

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are path prefixes that are not recorded.
	SkipPaths []string
}

// DefaultMetricsConfig skips the scrape endpoint and health probes.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics", "/health", "/healthz", "/livez", "/readyz"},
	}
}

// Metrics records request counts, latency and request body sizes, labelled
// by route with ids collapsed.
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	skip := func(path string) bool {
		for _, prefix := range config.SkipPaths {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := normalizePath(r.URL.Path)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			if r.ContentLength > 0 {
				metrics.HTTPRequestBytes.WithLabelValues(r.Method, route).Observe(float64(r.ContentLength))
			}
		})
	}
}

// normalizePath replaces numeric segments (asset and exclusion ids) with
// {id} and cuts paths deeper than any API route at {path}.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		switch {
		case part == "":
		case i > 4:
			parts[i] = "{path}"
			return strings.Join(parts[:i+1], "/")
		case isNumeric(part):
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
