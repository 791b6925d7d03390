package filesystem

import (
	"path/filepath"
	"slices"
	"strings"
)

const unknownVolume = "unknown"

// VolumeResolver labels paths with the name of the configured root that
// contains them, so retry and delete metrics can be split by volume. The
// deepest matching root wins.
type VolumeResolver struct {
	roots []volumeRoot
}

type volumeRoot struct {
	dir  string
	name string
}

// NewVolumeResolver builds a resolver from label to directory.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	roots := make([]volumeRoot, 0, len(volumes))
	for name, dir := range volumes {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		roots = append(roots, volumeRoot{dir: filepath.Clean(dir), name: name})
	}
	slices.SortFunc(roots, func(a, b volumeRoot) int {
		return len(b.dir) - len(a.dir)
	})
	return &VolumeResolver{roots: roots}
}

// Resolve returns the label for path, or "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return unknownVolume
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return unknownVolume
	}
	for _, root := range vr.roots {
		rel, err := filepath.Rel(root.dir, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return root.name
	}
	return unknownVolume
}

var defaultResolver *VolumeResolver

// SetDefaultVolumeResolver installs the resolver used when a RetryConfig
// carries none.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver = vr
}
