package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the variable that pins the libvips thread count.
const EnvOverride = "VIPS_CONCURRENCY"

// Count returns multiplier workers per available CPU, capped at limit
// (0 for no cap). GOMAXPROCS already reflects container CPU limits, so it
// is used instead of runtime.NumCPU. A positive VIPS_CONCURRENCY overrides
// the calculation but is still capped.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForCPU returns one worker per CPU.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// VipsConcurrency is the libvips thread pool size. Batches convert one
// asset at a time, so libvips may use every CPU for that asset.
func VipsConcurrency() int {
	return ForCPU(16)
}
