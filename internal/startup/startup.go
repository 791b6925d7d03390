package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"media-refiner/internal/logging"
	"media-refiner/internal/memory"
)

// Set with -ldflags "-X media-refiner/internal/startup.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo is served by /api/version and printed by refinerctl.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// DatabaseFile is the catalog file name inside DATABASE_DIR.
const DatabaseFile = "refiner.db"

// Config holds all process configuration. Conversion settings live in the
// catalog, not here.
type Config struct {
	UploadsDir      string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool
	ImageCodec      string
	DeleteAttempts  int
	DeleteBackoff   time.Duration
	WatchUploads    bool
	GhostscriptPath string
	FFmpegPath      string
	EnvFile         string

	// DatabasePath is DatabaseDir joined with DatabaseFile.
	DatabasePath string
}

// ReadConfig resolves the configuration from the environment without
// logging it. The CLI uses it directly.
func ReadConfig() (*Config, error) {
	cfg := &Config{
		UploadsDir:      envString("UPLOADS_DIR", "/uploads"),
		DatabaseDir:     envString("DATABASE_DIR", "/database"),
		Port:            envString("PORT", "8080"),
		MetricsPort:     envString("METRICS_PORT", "9090"),
		MetricsEnabled:  envBool("METRICS_ENABLED", true),
		LogHealthChecks: envBool("LOG_HEALTH_CHECKS", true),
		ImageCodec:      strings.ToLower(envString("IMAGE_CODEC", "auto")),
		DeleteAttempts:  envInt("DELETE_ATTEMPTS", 5),
		DeleteBackoff:   envDuration("DELETE_BACKOFF", time.Second),
		WatchUploads:    envBool("WATCH_UPLOADS", false),
		GhostscriptPath: envString("GHOSTSCRIPT_PATH", "gs"),
		FFmpegPath:      envString("FFMPEG_PATH", "ffmpeg"),
		EnvFile:         os.Getenv("ENV_FILE"),
	}

	switch cfg.ImageCodec {
	case "auto", "vips", "imaging", "none":
	default:
		return nil, fmt.Errorf("invalid IMAGE_CODEC %q (want auto, vips, imaging or none)", cfg.ImageCodec)
	}
	if cfg.DeleteAttempts < 1 {
		return nil, fmt.Errorf("invalid DELETE_ATTEMPTS %d (must be at least 1)", cfg.DeleteAttempts)
	}

	for _, dir := range []*string{&cfg.UploadsDir, &cfg.DatabaseDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", *dir, err)
		}
		*dir = abs
	}
	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, DatabaseFile)
	return cfg, nil
}

// LoadConfig is ReadConfig for the server: it prints the banner, logs the
// resolved values and prepares the directories. An unusable database
// directory is fatal; an unusable uploads directory only skips conversions.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	envFile, envErr := LoadEnvFile()

	section("CONFIGURATION")
	if envErr != nil {
		logging.Warn("  %v", envErr)
	} else if envFile != "" {
		logging.Info("  Loaded environment from %s", envFile)
	}

	cfg, err := ReadConfig()
	if err != nil {
		return nil, err
	}
	for _, kv := range [][2]any{
		{"UPLOADS_DIR", cfg.UploadsDir},
		{"DATABASE_DIR", cfg.DatabaseDir},
		{"PORT", cfg.Port},
		{"METRICS_PORT", cfg.MetricsPort},
		{"METRICS_ENABLED", cfg.MetricsEnabled},
		{"IMAGE_CODEC", cfg.ImageCodec},
		{"DELETE_ATTEMPTS", cfg.DeleteAttempts},
		{"DELETE_BACKOFF", cfg.DeleteBackoff},
		{"WATCH_UPLOADS", cfg.WatchUploads},
		{"GHOSTSCRIPT_PATH", cfg.GhostscriptPath},
		{"FFMPEG_PATH", cfg.FFmpegPath},
		{"LOG_HEALTH_CHECKS", cfg.LogHealthChecks},
		{"LOG_LEVEL", logging.GetLevel()},
	} {
		logging.Info("  %-20s %v", kv[0].(string)+":", kv[1])
	}

	section("DIRECTORY SETUP")
	if err := prepareDir(cfg.UploadsDir); err != nil {
		logging.Warn("  Uploads directory unusable, conversions will be skipped: %v", err)
	} else {
		logging.Info("  [OK] Uploads directory is writable")
	}
	if err := prepareDir(cfg.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory: %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	return cfg, nil
}

// prepareDir creates dir when missing and checks that files can be
// created in it.
func prepareDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		logging.Debug("  Creating %s", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	_ = probe.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("failed to remove write probe %s: %v", name, err)
	}
	return nil
}

func section(title string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func LogDatabaseInit(duration time.Duration) {
	section("DATABASE INITIALIZATION")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogMemoryConfig logs how GOMEMLIMIT was derived.
func LogMemoryConfig(mc memory.ConfigResult) {
	section("MEMORY CONFIGURATION")
	if !mc.Configured {
		logging.Info("  GOMEMLIMIT:      not configured (set MEMORY_LIMIT or run under a cgroup v2 limit)")
		return
	}
	switch mc.Source {
	case memory.SourceGoMemLimit:
		logging.Info("  GOMEMLIMIT:      %s (from environment)", formatBytes(mc.GoMemLimit))
	default:
		logging.Info("  Container limit: %s (%s)", formatBytes(mc.ContainerLimit), mc.Source)
		logging.Info("  GOMEMLIMIT:      %s (%.0f%%)", formatBytes(mc.GoMemLimit), mc.Ratio*100)
	}
}

// ToolStatus reports the external tools the engine can use.
type ToolStatus struct {
	Codec       string
	WebP        bool
	AVIF        bool
	Ghostscript bool
}

// LogEngineInit logs codec and tool availability.
func LogEngineInit(status ToolStatus, cfg *Config) {
	section("ENGINE INITIALIZATION")

	if status.Codec == "" {
		logging.Warn("  Image codec: NONE (every conversion will fail)")
	} else {
		logging.Info("  Image codec: %s", status.Codec)
		logging.Info("    WebP:      %s", enabledString(status.WebP))
		logging.Info("    AVIF:      %s", enabledString(status.AVIF))
	}

	switch {
	case !status.Ghostscript:
		logging.Warn("  Ghostscript not found at %q, PDF compression disabled", cfg.GhostscriptPath)
	default:
		version, err := toolVersion(cfg.GhostscriptPath, "--version")
		if err != nil {
			logging.Debug("  %v", err)
			version = "(unknown version)"
		}
		logging.Info("  [OK] Ghostscript %s available (PDF compression enabled)", version)
	}

	logging.Info("  Upload watcher: %s", enabledString(cfg.WatchUploads))
}

// toolVersion returns the first output line of bin run with flag.
func toolVersion(bin, flag string) (string, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, flag).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", bin, flag, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// ServerConfig is what LogServerStarted reports.
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

func LogServerStarted(config ServerConfig) {
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  API:             http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("------------------------------------------------------------")
}

func LogShutdownInitiated(signal string) {
	section("SHUTDOWN INITIATED (received " + signal + ")")
}

func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs and exits with status 1.
func LogFatal(format string, args ...any) {
	logging.Fatal(format, args...)
}

func printBanner() {
	fmt.Println(`
------------------------------------------------------------
                    _ _                  __ _
  _ __ ___   ___  __| (_) __ _   _ __ ___ / _(_)_ __   ___ _ __
 | '_ ' _ \ / _ \/ _' | |/ _' | | '__/ _ \ |_| | '_ \ / _ \ '__|
 | | | | | |  __/ (_| | | (_| | | | |  __/  _| | | | |  __/ |
 |_| |_| |_|\___|\__,_|_|\__,_| |_|  \___|_| |_|_| |_|\___|_|

------------------------------------------------------------`)
	logging.Info("  Version:    %s (%s, built %s)", Version, Commit, BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	procs, cpus := runtime.GOMAXPROCS(0), runtime.NumCPU()
	logging.Info("  Go:              %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs:            %d (GOMAXPROCS %d)", cpus, procs)
	if procs < cpus {
		logging.Info("  (Container CPU limit detected)")
	}
	if host, err := os.Hostname(); err == nil {
		logging.Debug("  Hostname:        %s", host)
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
