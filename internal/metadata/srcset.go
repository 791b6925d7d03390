package metadata

import (
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"media-refiner/internal/database"
	"media-refiner/internal/filesystem"
	"media-refiner/internal/layout"
	"media-refiner/internal/settings"
)

// SrcsetEntry is one candidate of an HTML srcset attribute.
type SrcsetEntry struct {
	URL   string `json:"url"`
	Width int    `json:"width"`
}

// Srcset lists the additional sizes and the thumbnail of asset that exist
// in the configured format, narrowest first. Callers skip excluded assets.
func (s *Synchronizer) Srcset(asset database.Asset, cfg settings.Config, baseURL string) []SrcsetEntry {
	primary := s.Abs(asset.File)
	urlDir := strings.TrimSuffix(baseURL, "/")
	if d := path.Dir(asset.File); d != "." {
		urlDir += "/" + d
	}

	byWidth := make(map[int]SrcsetEntry)
	for _, dim := range cfg.Additional() {
		file := layout.DerivativePath(primary, dim, cfg.Format)
		if !filesystem.Exists(file) {
			continue
		}
		width := dim
		if cfg.Mode == settings.ModeHeight {
			width = s.widthOf(asset, dim, file)
		}
		if width <= 0 {
			continue
		}
		byWidth[width] = SrcsetEntry{URL: urlDir + "/" + filepath.Base(file), Width: width}
	}

	thumb := layout.ThumbnailPath(primary, cfg.Format)
	if filesystem.Exists(thumb) {
		byWidth[settings.ThumbnailSize] = SrcsetEntry{URL: urlDir + "/" + filepath.Base(thumb), Width: settings.ThumbnailSize}
	}

	entries := make([]SrcsetEntry, 0, len(byWidth))
	for _, e := range byWidth {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Width < entries[j].Width })
	return entries
}

// widthOf finds the pixel width of a height-constrained derivative, from the
// record when it holds one and otherwise by probing the file.
func (s *Synchronizer) widthOf(asset database.Asset, dim int, file string) int {
	if v, ok := asset.Sizes[layout.SizeKey(dim)]; ok && v.Width > 0 {
		return v.Width
	}
	w, _, err := s.imager.Probe(file)
	if err != nil {
		return 0
	}
	return w
}

// FormatSrcset renders entries as an HTML srcset attribute value, e.g.
// "a-300.webp 300w, a-600.webp 600w".
func FormatSrcset(entries []SrcsetEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.URL + " " + strconv.Itoa(e.Width) + "w"
	}
	return strings.Join(parts, ", ")
}
