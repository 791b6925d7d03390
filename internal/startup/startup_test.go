package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-refiner/internal/memory"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Arch)
	assert.Equal(t, GoVersion, info.GoVersion)
}

// clearEnv unsets every variable ReadConfig consults for the duration of
// the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"UPLOADS_DIR", "DATABASE_DIR", "PORT", "METRICS_PORT", "METRICS_ENABLED",
		"LOG_HEALTH_CHECKS", "IMAGE_CODEC", "DELETE_ATTEMPTS", "DELETE_BACKOFF",
		"WATCH_UPLOADS", "GHOSTSCRIPT_PATH", "FFMPEG_PATH", "ENV_FILE",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestReadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := ReadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/uploads", cfg.UploadsDir)
	assert.Equal(t, "/database", cfg.DatabaseDir)
	assert.Equal(t, "/database/refiner.db", cfg.DatabasePath)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "9090", cfg.MetricsPort)
	assert.True(t, cfg.MetricsEnabled)
	assert.True(t, cfg.LogHealthChecks)
	assert.Equal(t, "auto", cfg.ImageCodec)
	assert.Equal(t, 5, cfg.DeleteAttempts)
	assert.Equal(t, time.Second, cfg.DeleteBackoff)
	assert.False(t, cfg.WatchUploads)
	assert.Equal(t, "gs", cfg.GhostscriptPath)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
}

func TestReadConfigOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("UPLOADS_DIR", filepath.Join(dir, "up"))
	t.Setenv("DATABASE_DIR", filepath.Join(dir, "db"))
	t.Setenv("IMAGE_CODEC", "Imaging")
	t.Setenv("DELETE_ATTEMPTS", "3")
	t.Setenv("DELETE_BACKOFF", "250ms")
	t.Setenv("WATCH_UPLOADS", "true")
	t.Setenv("METRICS_ENABLED", "nope")

	cfg, err := ReadConfig()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "up"), cfg.UploadsDir)
	assert.Equal(t, filepath.Join(dir, "db", DatabaseFile), cfg.DatabasePath)
	assert.Equal(t, "imaging", cfg.ImageCodec)
	assert.Equal(t, 3, cfg.DeleteAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.DeleteBackoff)
	assert.True(t, cfg.WatchUploads)
	assert.True(t, cfg.MetricsEnabled, "invalid booleans fall back to the default")
}

func TestReadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown codec", "IMAGE_CODEC", "magick"},
		{"zero delete attempts", "DELETE_ATTEMPTS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := ReadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, "refiner.env")
	require.NoError(t, os.WriteFile(envFile, []byte("UPLOADS_DIR=/srv/uploads\nPORT=9999\n"), 0o644))
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("PORT", "7000")

	name, err := LoadEnvFile()
	require.NoError(t, err)
	assert.Equal(t, envFile, name)
	t.Cleanup(func() { _ = os.Unsetenv("UPLOADS_DIR") })

	assert.Equal(t, "/srv/uploads", os.Getenv("UPLOADS_DIR"))
	assert.Equal(t, "7000", os.Getenv("PORT"), "set variables are not overridden")
}

func TestLoadEnvFileMissing(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	name, err := LoadEnvFile()
	assert.NoError(t, err, "a missing default .env is ignored")
	assert.Empty(t, name)

	t.Setenv("ENV_FILE", "does-not-exist.env")
	_, err = LoadEnvFile()
	assert.Error(t, err)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "12")
	t.Setenv("TEST_BAD_INT", "twelve")
	t.Setenv("TEST_DURATION", "3s")
	t.Setenv("TEST_NEG_DURATION", "-3s")
	t.Setenv("TEST_BOOL", "false")

	assert.Equal(t, 12, envInt("TEST_INT", 1))
	assert.Equal(t, 1, envInt("TEST_BAD_INT", 1))
	assert.Equal(t, 1, envInt("TEST_UNSET_INT", 1))
	assert.Equal(t, 3*time.Second, envDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, envDuration("TEST_NEG_DURATION", time.Second))
	assert.False(t, envBool("TEST_BOOL", true))
	assert.Equal(t, "fallback", envString("TEST_UNSET_STRING", "fallback"))
}

func TestPrepareDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, prepareDir(dir))
	assert.DirExists(t, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the write probe is removed")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, prepareDir(file))
}

func TestGetRoutes(t *testing.T) {
	noop := func(http.ResponseWriter, *http.Request) {}
	router := mux.NewRouter()
	router.HandleFunc("/health", noop).Methods(http.MethodGet)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/convert", noop).Methods(http.MethodPost).Name("convert")

	routes, err := GetRoutes(router)
	require.NoError(t, err)

	assert.Contains(t, routes, RouteInfo{Method: http.MethodGet, Path: "/health"})
	assert.Contains(t, routes, RouteInfo{Method: http.MethodPost, Path: "/api/convert", Name: "convert"})
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/convert/start", "api/convert"},
		{"/api/status", "api/status"},
		{"/health", "health"},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, getRouteGroup(tt.path))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{1 << 30, "1.0 GiB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.bytes))
	}
}

func TestLogHelpersDoNotPanic(t *testing.T) {
	cfg := &Config{GhostscriptPath: filepath.Join(t.TempDir(), "gs")}

	assert.NotPanics(t, func() {
		LogMemoryConfig(memory.ConfigResult{})
		LogMemoryConfig(memory.ConfigResult{Configured: true, Source: memory.SourceGoMemLimit, GoMemLimit: 524288000})
		LogMemoryConfig(memory.ConfigResult{Configured: true, Source: memory.SourceMemoryLimit, ContainerLimit: 1 << 30, GoMemLimit: 912680550, Ratio: 0.85})
		LogEngineInit(ToolStatus{}, cfg)
		LogEngineInit(ToolStatus{Codec: "imaging", WebP: true}, cfg)
		LogDatabaseInit(time.Millisecond)
		LogHTTPRoutes(mux.NewRouter(), false)
	})
}
