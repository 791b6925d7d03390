package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"media-refiner/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. libvips, ffmpeg and Ghostscript allocate outside it.
const DefaultMemoryRatio = 0.85

// Where a memory limit came from.
const (
	SourceGoMemLimit  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
	SourceCgroup      = "cgroup"
	SourceNone        = "none"
)

// cgroupMemoryMax is the cgroup v2 limit file, read when MEMORY_LIMIT is
// not set. It holds "max" when the container is unlimited.
var cgroupMemoryMax = "/sys/fs/cgroup/memory.max"

// ConfigResult describes how GOMEMLIMIT was derived.
type ConfigResult struct {
	Configured     bool
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets GOMEMLIMIT from the container limit. Call it at the
// top of main.
//
// An explicit GOMEMLIMIT wins. Otherwise the limit is MEMORY_LIMIT (bytes,
// usually from the Kubernetes Downward API) or the cgroup v2 limit, scaled
// by MEMORY_RATIO (default 0.85).
func ConfigureFromEnv() ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: SourceGoMemLimit}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	limit, source := containerLimit()
	if limit <= 0 {
		logging.Debug("No container memory limit found, GOMEMLIMIT not configured")
		return ConfigResult{Source: SourceNone}
	}

	ratio := memoryRatio()
	goMemLimit := int64(float64(limit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s %s limit)",
		formatBytes(goMemLimit), ratio*100, formatBytes(limit), source)

	return ConfigResult{
		Configured:     true,
		Source:         source,
		ContainerLimit: limit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

func containerLimit() (int64, string) {
	if raw := os.Getenv("MEMORY_LIMIT"); raw != "" {
		limit, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || limit <= 0 {
			logging.Warn("Ignoring MEMORY_LIMIT %q: not a positive byte count", raw)
			return 0, SourceNone
		}
		return limit, SourceMemoryLimit
	}

	data, err := os.ReadFile(cgroupMemoryMax)
	if err != nil {
		return 0, SourceNone
	}
	value := strings.TrimSpace(string(data))
	if value == "max" {
		return 0, SourceNone
	}
	limit, err := strconv.ParseInt(value, 10, 64)
	if err != nil || limit <= 0 {
		return 0, SourceNone
	}
	return limit, SourceCgroup
}

func memoryRatio() float64 {
	raw := os.Getenv("MEMORY_RATIO")
	if raw == "" {
		return DefaultMemoryRatio
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio <= 0 || ratio > 1 {
		logging.Warn("Ignoring MEMORY_RATIO %q (want 0 < ratio <= 1), using %.2f", raw, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return ratio
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
