// Package metadata rebuilds catalog records from the files a conversion
// left on disk.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"

	"media-refiner/internal/activity"
	"media-refiner/internal/convert"
	"media-refiner/internal/database"
	"media-refiner/internal/filesystem"
	"media-refiner/internal/layout"
	"media-refiner/internal/logging"
	"media-refiner/internal/metrics"
	"media-refiner/internal/settings"
)

// ErrRegenFailed means the primary file could not be confirmed or probed,
// so the record was left as it was.
var ErrRegenFailed = errors.New("metadata regeneration failed")

// Imager is the part of the converter the synchronizer needs.
type Imager interface {
	Thumbnail(ctx context.Context, src, dst string, cfg settings.Config) error
	Probe(path string) (int, int, error)
}

// Synchronizer reconciles asset records with the uploads tree.
type Synchronizer struct {
	root    string
	imager  Imager
	journal activity.Recorder
	retry   filesystem.RetryConfig
}

// New creates a Synchronizer for the uploads tree at root.
func New(root string, imager Imager, journal activity.Recorder) *Synchronizer {
	if journal == nil {
		journal = activity.Discard
	}
	return &Synchronizer{
		root:    root,
		imager:  imager,
		journal: journal,
		retry:   filesystem.DefaultRetryConfig(),
	}
}

// Sync returns asset rebuilt from disk. The primary is written.Primary when
// set, otherwise the record's current file. Sizes is rebuilt from scratch
// from the additional dimensions and thumbnail actually present; a missing
// thumbnail is regenerated from the primary. Sync is idempotent: the same
// files and config yield the same record.
func (s *Synchronizer) Sync(ctx context.Context, asset database.Asset, cfg settings.Config, written convert.Result) (database.Asset, error) {
	out, err := s.sync(ctx, asset, cfg, written)
	if err != nil {
		metrics.MetadataSyncTotal.WithLabelValues("error").Inc()
		s.journal.Record(ctx, "Error: Metadata regeneration failed for %s", filepath.Base(asset.File))
		return asset, err
	}
	metrics.MetadataSyncTotal.WithLabelValues("success").Inc()
	return out, nil
}

func (s *Synchronizer) sync(ctx context.Context, asset database.Asset, cfg settings.Config, written convert.Result) (database.Asset, error) {
	primary := written.Primary
	if primary == "" {
		primary = s.Abs(asset.File)
	}
	if !strings.EqualFold(filepath.Ext(primary), "."+cfg.Format.Ext()) {
		return asset, fmt.Errorf("%w: %s is not %s", ErrRegenFailed, filepath.Base(primary), cfg.Format.Label())
	}

	info, err := filesystem.StatWithRetry(primary, s.retry)
	if err != nil {
		return asset, fmt.Errorf("%w: %w", ErrRegenFailed, err)
	}
	width, height, err := s.imager.Probe(primary)
	if err != nil {
		return asset, fmt.Errorf("%w: %w", ErrRegenFailed, err)
	}
	rel, err := s.Rel(primary)
	if err != nil {
		return asset, fmt.Errorf("%w: %w", ErrRegenFailed, err)
	}

	mime := cfg.Format.MimeType()
	sizes := make(map[string]database.SizeVariant, len(cfg.Dimensions))
	for _, dim := range cfg.Additional() {
		path := layout.DerivativePath(primary, dim, cfg.Format)
		if !filesystem.Exists(path) {
			continue
		}
		v := database.SizeVariant{File: filepath.Base(path), MimeType: mime}
		if cfg.Mode == settings.ModeHeight {
			v.Height = dim
		} else {
			v.Width = dim
		}
		sizes[layout.SizeKey(dim)] = v
	}

	thumb := layout.ThumbnailPath(primary, cfg.Format)
	if !filesystem.Exists(thumb) {
		if err := s.imager.Thumbnail(ctx, primary, thumb, cfg); err != nil {
			metrics.ThumbnailBackfillTotal.WithLabelValues("error").Inc()
			logging.Warn("Could not regenerate thumbnail %s: %v", thumb, err)
		} else {
			metrics.ThumbnailBackfillTotal.WithLabelValues("success").Inc()
			s.journal.Record(ctx, "Regenerated missing thumbnail: %s", filepath.Base(thumb))
		}
	}
	if filesystem.Exists(thumb) {
		sizes[layout.ThumbnailKey] = database.SizeVariant{
			File:     filepath.Base(thumb),
			Width:    settings.ThumbnailSize,
			Height:   settings.ThumbnailSize,
			MimeType: mime,
		}
	}

	quality := cfg.Quality
	out := asset
	out.File = rel
	out.MimeType = mime
	out.Width = width
	out.Height = height
	out.FileSize = info.Size()
	out.Sizes = sizes
	out.Quality = &quality
	out.ImageMeta = maps.Clone(asset.ImageMeta)

	if written.Source != "" {
		if meta, err := ExtractEXIF(written.Source); err != nil {
			logging.Debug("No EXIF data in %s: %v", written.Source, err)
		} else if len(meta) > 0 {
			out.ImageMeta = meta
		}
	}
	if out.ImageMeta == nil {
		out.ImageMeta = map[string]string{}
	}
	return out, nil
}

// Abs resolves an uploads-relative path.
func (s *Synchronizer) Abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Rel returns path relative to the uploads root with forward slashes.
func (s *Synchronizer) Rel(path string) (string, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", path, s.root)
	}
	return filepath.ToSlash(rel), nil
}

// ThumbnailMissing reports whether a converted asset lacks its thumbnail.
func (s *Synchronizer) ThumbnailMissing(asset database.Asset, cfg settings.Config) bool {
	return !filesystem.Exists(layout.ThumbnailPath(s.Abs(asset.File), cfg.Format))
}
