// Package settings resolves the persisted conversion settings into a
// validated Config and applies operator changes to them.
package settings

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Persisted option keys.
const (
	KeyMaxWidths          = "webp_max_widths"
	KeyMaxHeights         = "webp_max_heights"
	KeyResizeMode         = "webp_resize_mode"
	KeyQuality            = "webp_quality"
	KeyBatchSize          = "webp_batch_size"
	KeyPreserveOriginals  = "webp_preserve_originals"
	KeyDisableAutoConvert = "webp_disable_auto_conversion"
	KeyMinSizeKB          = "webp_min_size_kb"
	KeyUseAVIF            = "webp_use_avif"
	KeyComplete           = "webp_conversion_complete"
)

// Defaults.
const (
	DefaultWidths    = "1920,1200,600,300"
	DefaultHeights   = "1080,720,480,360"
	DefaultQuality   = 80
	DefaultBatchSize = 5

	// MaxDimensions caps the configured size list.
	MaxDimensions = 4
	// MaxDimension is the largest accepted size in pixels.
	MaxDimension = 9999
	// ThumbnailSize is the fixed edge of the square thumbnail. It is never
	// part of the dimension list.
	ThumbnailSize = 150

	MaxBatchSize = 50
)

// Mode selects the axis the dimension list constrains.
type Mode string

const (
	ModeWidth  Mode = "width"
	ModeHeight Mode = "height"
)

// Format is a conversion target.
type Format string

const (
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
)

// Ext returns the file extension without a dot.
func (f Format) Ext() string { return string(f) }

// MimeType returns the IANA media type.
func (f Format) MimeType() string { return "image/" + string(f) }

// Alternate returns the other supported target.
func (f Format) Alternate() Format {
	if f == FormatAVIF {
		return FormatWebP
	}
	return FormatAVIF
}

// Label is the operator-facing name used in journal messages.
func (f Format) Label() string {
	if f == FormatAVIF {
		return "AVIF"
	}
	return "WebP"
}

// Config is the effective conversion configuration. It is recomputed for
// every operation and never cached.
type Config struct {
	Mode Mode `json:"resizeMode"`
	// Dimensions is Widths or Heights depending on Mode. The first entry is
	// the primary size.
	Dimensions         []int  `json:"dimensions"`
	Widths             []int  `json:"maxWidths"`
	Heights            []int  `json:"maxHeights"`
	Quality            int    `json:"quality"`
	Format             Format `json:"format"`
	MinSizeKB          int    `json:"minSizeKB"`
	PreserveOriginals  bool   `json:"preserveOriginals"`
	DisableAutoConvert bool   `json:"disableAutoConvert"`
	BatchSize          int    `json:"batchSize"`
}

// Primary returns the primary dimension.
func (c Config) Primary() int {
	if len(c.Dimensions) == 0 {
		return 0
	}
	return c.Dimensions[0]
}

// Additional returns the dimensions after the primary.
func (c Config) Additional() []int {
	if len(c.Dimensions) < 2 {
		return nil
	}
	return c.Dimensions[1:]
}

// HasDimension reports whether d is one of the configured dimensions.
func (c Config) HasDimension(d int) bool {
	return slices.Contains(c.Dimensions, d)
}

// MinSizeBytes returns the minimum source size in bytes.
func (c Config) MinSizeBytes() int64 {
	return int64(c.MinSizeKB) * 1024
}

// PageBudget is the time allowed for one batch page: ten seconds per asset
// with a thirty second floor.
func (c Config) PageBudget() time.Duration {
	return max(30*time.Second, time.Duration(c.BatchSize)*10*time.Second)
}

// ParseDimensions turns a comma-separated list into at most MaxDimensions
// sizes in (0, MaxDimension], keeping the input order. Entries are coerced
// by their leading integer, so "600px" is 600 and "abc" is dropped.
func ParseDimensions(csv string) []int {
	dims := make([]int, 0, MaxDimensions)
	for _, part := range strings.Split(csv, ",") {
		n := leadingInt(strings.TrimSpace(part))
		if n <= 0 || n > MaxDimension {
			continue
		}
		dims = append(dims, n)
		if len(dims) == MaxDimensions {
			break
		}
	}
	return dims
}

// JoinDimensions is the inverse of ParseDimensions.
func JoinDimensions(dims []int, sep string) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, sep)
}

func leadingInt(s string) int {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
