// Package layout names derivative files and classifies paths in the
// uploads tree.
package layout

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"media-refiner/internal/settings"
)

// Split returns the directory, the base name without extension and the
// lowercase extension without a dot.
func Split(path string) (dir, base, ext string) {
	dir = filepath.Dir(path)
	name := filepath.Base(path)
	rawExt := filepath.Ext(name)
	return dir, strings.TrimSuffix(name, rawExt), strings.ToLower(strings.TrimPrefix(rawExt, "."))
}

// PrimaryPath is {dir}/{base}.{ext} for the target format.
func PrimaryPath(source string, format settings.Format) string {
	dir, base, _ := Split(source)
	return filepath.Join(dir, base+"."+format.Ext())
}

// DerivativePath is {dir}/{base}-{dim}.{ext} for an additional size.
func DerivativePath(source string, dim int, format settings.Format) string {
	dir, base, _ := Split(source)
	return filepath.Join(dir, fmt.Sprintf("%s-%d.%s", base, dim, format.Ext()))
}

// ThumbnailPath is {dir}/{base}-150x150.{ext}.
func ThumbnailPath(source string, format settings.Format) string {
	dir, base, _ := Split(source)
	return filepath.Join(dir, ThumbnailName(base, format.Ext()))
}

// ThumbnailName is the base name of the thumbnail for base.
func ThumbnailName(base, ext string) string {
	return fmt.Sprintf("%s-%dx%d.%s", base, settings.ThumbnailSize, settings.ThumbnailSize, ext)
}

// StagingPath is the hidden sibling a file is written to before it is
// renamed into place. The extension is kept last so encoders that infer the
// container from it still work.
func StagingPath(final string) string {
	dir, name := filepath.Split(final)
	ext := filepath.Ext(name)
	return filepath.Join(dir, "."+strings.TrimSuffix(name, ext)+".part"+ext)
}

// IsHidden reports whether a base name is a dotfile, which includes
// staging files.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// SizeKey is the catalog key of an additional size.
func SizeKey(dim int) string {
	return "custom-" + strconv.Itoa(dim)
}

// ParseSizeKey returns N for a "custom-N" key.
func ParseSizeKey(key string) (int, bool) {
	m := sizeKey.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ThumbnailKey is the catalog key of the thumbnail.
const ThumbnailKey = "thumbnail"

// Variant identifies the suffix a raster file name carries.
type Variant int

const (
	// VariantNone has no size suffix.
	VariantNone Variant = iota
	// VariantSize ends in -{N}.
	VariantSize
	// VariantBox ends in -{W}x{H}, which includes thumbnails.
	VariantBox
)

var (
	boxSuffix  = regexp.MustCompile(`^(.+)-(\d+)x(\d+)$`)
	sizeSuffix = regexp.MustCompile(`^(.+)-(\d+)$`)
	sizeKey    = regexp.MustCompile(`^custom-(\d+)$`)
)

// StripVariant splits a base name into the stem it was derived from and
// its suffix. For VariantSize, dim is N; for VariantBox, dim is W.
func StripVariant(base string) (stem string, variant Variant, dim int) {
	if m := boxSuffix.FindStringSubmatch(base); m != nil {
		dim, _ = strconv.Atoi(m[2])
		return m[1], VariantBox, dim
	}
	if m := sizeSuffix.FindStringSubmatch(base); m != nil {
		dim, _ = strconv.Atoi(m[2])
		return m[1], VariantSize, dim
	}
	return base, VariantNone, 0
}
