package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, rec.status)

	rec.WriteHeader(http.StatusConflict)
	rec.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusConflict, rec.status)

	n, err := rec.Write([]byte("busy"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.EqualValues(t, 4, rec.bytes)

	assert.Same(t, rec, newStatusRecorder(rec))
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestLoggerMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		config        LoggingConfig
		expectLogging bool
	}{
		{"logs API requests", "/api/status", DefaultLoggingConfig(), true},
		{"logs health checks when enabled", "/health", LoggingConfig{LogHealthChecks: true}, true},
		{"skips health checks when disabled", "/livez", LoggingConfig{LogHealthChecks: false}, false},
		{"skips configured prefixes", "/api/log", LoggingConfig{SkipPaths: []string{"/api/log"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			handler := Logger(tt.config)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("ok"))
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expectLogging, strings.Contains(buf.String(), tt.path))
		})
	}
}

func TestLoggerSanitizesFields(t *testing.T) {
	buf := captureLog(t)
	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody)
	req.Header.Set("User-Agent", "evil\r\nFAKE LINE\x1b[31m")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := strings.TrimRight(buf.String(), "\n")
	assert.NotContains(t, line, "\n")
	assert.NotContains(t, line, "\x1b")
	assert.Contains(t, line, `"evil  FAKE LINE[31m"`)
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a\nb\rc", "a b c"},
		{"nul\x00byte", "nulbyte"},
		{"tab\tkept", "tab\tkept"},
		{"bell\x07", "bell"},
		{"del\x7f", "del"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeLogField(tt.in))
	}
}

func TestLoggerWritesFieldsDirectiveOnce(t *testing.T) {
	var buf bytes.Buffer
	handler := Logger(LoggingConfig{LogHealthChecks: true, Output: &buf})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/assets", strings.NewReader("12345"))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, w3cFields, lines[0])
	fields := strings.Fields(lines[1])
	require.Len(t, fields, 11)
	assert.Equal(t, "POST", fields[3])
	assert.Equal(t, "/api/assets", fields[4])
	assert.Equal(t, "-", fields[5])
	assert.Equal(t, "201", fields[6])
	assert.Equal(t, "5", fields[7])
	assert.Equal(t, "-", fields[10])
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "10.0.0.9:5555"
	assert.Equal(t, "10.0.0.9", getClientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))

	v6 := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	v6.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", getClientIP(v6))
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/status", "/api/status"},
		{"/api/assets/42", "/api/assets/{id}"},
		{"/api/assets/42/srcset", "/api/assets/{id}/srcset"},
		{"/api/exclusions/7", "/api/exclusions/{id}"},
		{"/api/a/b/c/d/e/f", "/api/a/b/c/{path}"},
		{"/", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestMetricsMiddlewarePassesThrough(t *testing.T) {
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	for _, path := range []string{"/api/cleanup", "/health"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, http.NoBody))
		assert.Equal(t, http.StatusConflict, w.Code, path)
	}
}

func jsonHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
}

func TestCompressionMiddleware(t *testing.T) {
	large := `{"log":"` + strings.Repeat("Converted: photo.jpg ", 200) + `"}`

	tests := []struct {
		name       string
		path       string
		body       string
		acceptGzip bool
		wantGzip   bool
	}{
		{"large JSON is compressed", "/api/status", large, true, true},
		{"small JSON is not", "/api/status", `{"success":true}`, true, false},
		{"client without gzip", "/api/status", large, false, false},
		{"export stream is never compressed", "/api/export", large, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip, deflate")
			}
			w := httptest.NewRecorder()
			Compression(DefaultCompressionConfig())(jsonHandler(tt.body)).ServeHTTP(w, req)

			if !tt.wantGzip {
				assert.Empty(t, w.Header().Get("Content-Encoding"))
				assert.Equal(t, tt.body, w.Body.String())
				return
			}
			assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
			zr, err := gzip.NewReader(w.Body)
			require.NoError(t, err)
			got, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(got))
		})
	}
}

func TestCompressionKeepsStatus(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"success":false}`)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/convert", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"success":false}`, w.Body.String())
}

func TestAcceptsGzip(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"gzip", true},
		{"deflate, gzip;q=0.8", true},
		{"GZIP", true},
		{"gzip;q=0", false},
		{"br, deflate", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, acceptsGzip(tt.header), tt.header)
	}
}

func TestCompressionUsesConfiguredLevel(t *testing.T) {
	cfg := DefaultCompressionConfig()
	cfg.Level = gzip.BestSpeed
	large := `{"log":"` + strings.Repeat("x", 4096) + `"}`

	req := httptest.NewRequest(http.MethodGet, "/api/log", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	Compression(cfg)(jsonHandler(large)).ServeHTTP(w, req)

	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, large, string(got))
}
