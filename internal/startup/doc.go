// Package startup loads process configuration and writes the startup and
// shutdown log sections.
//
// # Configuration
//
// [LoadConfig] reads the environment, after optionally loading a dotenv
// file named by ENV_FILE (default .env):
//
//   - UPLOADS_DIR: root of the uploads tree (default: /uploads)
//   - DATABASE_DIR: directory holding refiner.db (default: /database)
//   - PORT: API port (default: 8080)
//   - METRICS_PORT: Prometheus port (default: 9090)
//   - METRICS_ENABLED: start the metrics listener (default: true)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: access-log health probes (default: true)
//   - IMAGE_CODEC: auto, vips, imaging or none (default: auto)
//   - DELETE_ATTEMPTS: delete attempts per file (default: 5)
//   - DELETE_BACKOFF: pause between delete attempts (default: 1s)
//   - WATCH_UPLOADS: import and convert new files as they appear (default: false)
//   - GHOSTSCRIPT_PATH: PDF compressor binary (default: gs)
//   - FFMPEG_PATH: AVIF encoder used by the pure-Go codec (default: ffmpeg)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// [ReadConfig] resolves the same values without logging, for the CLI.
//
// Conversion settings (sizes, quality, format) are not process
// configuration; they are stored in the catalog and managed by package
// settings.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
package startup
