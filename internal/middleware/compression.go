package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the smallest body worth compressing.
	MinSize int
	// Level is a compress/gzip level.
	Level int
	// CompressibleTypes are media types without parameters.
	CompressibleTypes []string
	// SkipPaths are never compressed, so their bodies stream unbuffered.
	SkipPaths []string
}

// DefaultCompressionConfig compresses JSON and text bodies of 1 KiB or more.
// Export archives and converted images are already compressed.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:           1024,
		Level:             gzip.DefaultCompression,
		CompressibleTypes: []string{"application/json", "text/plain"},
		SkipPaths:         []string{"/api/export", "/metrics"},
	}
}

var (
	gzipPoolsMu sync.Mutex
	gzipPools   = map[int]*sync.Pool{}
)

func gzipPool(level int) *sync.Pool {
	gzipPoolsMu.Lock()
	defer gzipPoolsMu.Unlock()
	if p, ok := gzipPools[level]; ok {
		return p
	}
	p := &sync.Pool{New: func() any {
		w, err := gzip.NewWriterLevel(io.Discard, level)
		if err != nil {
			w = gzip.NewWriter(io.Discard)
		}
		return w
	}}
	gzipPools[level] = p
	return p
}

// gzipWriter holds the body back until MinSize bytes have arrived or the
// handler finishes, then commits to gzip or to a plain pass-through.
type gzipWriter struct {
	http.ResponseWriter
	config  CompressionConfig
	pool    *sync.Pool
	status  int
	pending bytes.Buffer

	committed bool
	gz        *gzip.Writer
}

func (g *gzipWriter) WriteHeader(code int) {
	if !g.committed && g.status == 0 {
		g.status = code
	}
}

func (g *gzipWriter) Write(p []byte) (int, error) {
	if g.committed {
		if g.gz != nil {
			return g.gz.Write(p)
		}
		return g.ResponseWriter.Write(p)
	}
	g.pending.Write(p)
	if g.pending.Len() >= g.config.MinSize {
		if err := g.commit(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (g *gzipWriter) compressible() bool {
	h := g.Header()
	if h.Get("Content-Encoding") != "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return false
	}
	for _, t := range g.config.CompressibleTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

func (g *gzipWriter) commit() error {
	g.committed = true
	if g.status == 0 {
		g.status = http.StatusOK
	}

	body := g.pending.Bytes()
	if len(body) < g.config.MinSize || !g.compressible() {
		g.ResponseWriter.WriteHeader(g.status)
		_, err := g.ResponseWriter.Write(body)
		return err
	}

	h := g.Header()
	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")
	g.ResponseWriter.WriteHeader(g.status)

	g.gz = g.pool.Get().(*gzip.Writer)
	g.gz.Reset(g.ResponseWriter)
	_, err := g.gz.Write(body)
	return err
}

// Flush commits early so a flushing handler is never held back.
func (g *gzipWriter) Flush() {
	if !g.committed {
		_ = g.commit()
	}
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Close commits anything still pending and recycles the gzip writer.
func (g *gzipWriter) Close() error {
	var err error
	if !g.committed {
		err = g.commit()
	}
	if g.gz != nil {
		if cerr := g.gz.Close(); err == nil {
			err = cerr
		}
		g.pool.Put(g.gz)
		g.gz = nil
	}
	return err
}

// Compression gzips compressible responses for clients that accept it.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	pool := gzipPool(config.Level)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !acceptsGzip(r.Header.Get("Accept-Encoding")) || skipCompression(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			gzw := &gzipWriter{ResponseWriter: w, config: config, pool: pool}
			defer func() { _ = gzw.Close() }()
			next.ServeHTTP(gzw, r)
		})
	}
}

func skipCompression(path string, config CompressionConfig) bool {
	for _, prefix := range config.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// acceptsGzip reports whether an Accept-Encoding header allows gzip with a
// non-zero quality.
func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			continue
		}
		q, found := strings.CutPrefix(strings.TrimSpace(params), "q=")
		if !found {
			return true
		}
		v, err := strconv.ParseFloat(q, 64)
		return err == nil && v > 0
	}
	return false
}
