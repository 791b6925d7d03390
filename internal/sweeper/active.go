package sweeper

import (
	"path/filepath"

	"media-refiner/internal/database"
	"media-refiner/internal/layout"
	"media-refiner/internal/mediatypes"
	"media-refiner/internal/settings"
)

type stem struct {
	dir, base string
}

// ActiveSet holds the files a sweep must keep. It is built fresh for each
// sweep and never persisted.
type ActiveSet struct {
	files map[string]bool
	stems map[stem]bool
}

// Len returns the number of individually listed files.
func (s *ActiveSet) Len() int {
	return len(s.files)
}

// Contains reports whether path was listed as active.
func (s *ActiveSet) Contains(path string) bool {
	return s.files[filepath.Clean(path)]
}

// Protected reports whether path is a plain, sized or boxed raster variant
// of an excluded asset's base name in the same directory.
func (s *ActiveSet) Protected(path string) bool {
	dir, base, _ := layout.Split(filepath.Clean(path))
	if s.stems[stem{dir, base}] {
		return true
	}
	root, variant, _ := layout.StripVariant(base)
	return variant != layout.VariantNone && s.stems[stem{dir, root}]
}

// Keep reports whether a sweep must leave path alone.
func (s *ActiveSet) Keep(path string) bool {
	return s.Contains(path) || s.Protected(path)
}

func (s *ActiveSet) add(path string, exists func(string) bool) {
	if exists(path) {
		s.files[filepath.Clean(path)] = true
	}
}

// BuildActiveSet computes the files to keep. For a non-excluded asset these
// are its source and the primary, additional sizes and thumbnail that exist
// in the current format. For an excluded asset they are its source, every
// sibling with the same base name in a raster extension, every derivative
// and thumbnail in either target format, every file its size map names,
// and by stem any other sized variant of its base name.
func BuildActiveSet(assets []*database.Asset, excluded map[int64]bool, cfg settings.Config, root string, exists func(string) bool) *ActiveSet {
	s := &ActiveSet{files: make(map[string]bool), stems: make(map[stem]bool)}

	for _, a := range assets {
		if a.File == "" {
			continue
		}
		source := filepath.Join(root, filepath.FromSlash(a.File))
		dir, base, _ := layout.Split(source)

		if excluded[a.ID] {
			s.add(source, exists)
			s.stems[stem{dir, base}] = true
			for ext := range mediatypes.ImageExtensions {
				s.add(filepath.Join(dir, base+"."+ext), exists)
			}
			for _, f := range []settings.Format{settings.FormatWebP, settings.FormatAVIF} {
				s.addDerivatives(source, cfg.Dimensions, f, exists)
			}
			for _, v := range a.Sizes {
				if v.File != "" {
					s.add(filepath.Join(dir, v.File), exists)
				}
			}
			continue
		}

		if !exists(source) {
			continue
		}
		s.add(source, exists)
		s.addDerivatives(source, cfg.Dimensions, cfg.Format, exists)
	}
	return s
}

func (s *ActiveSet) addDerivatives(source string, dims []int, format settings.Format, exists func(string) bool) {
	for i, dim := range dims {
		if i == 0 {
			s.add(layout.PrimaryPath(source, format), exists)
			continue
		}
		s.add(layout.DerivativePath(source, dim, format), exists)
	}
	s.add(layout.ThumbnailPath(source, format), exists)
}
