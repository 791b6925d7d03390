package refiner

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"media-refiner/internal/database"
	"media-refiner/internal/layout"
	"media-refiner/internal/mediatypes"
	"media-refiner/internal/metrics"
	"media-refiner/internal/settings"
)

// ExcludedImage is one entry of the exclusion list as shown to operators.
type ExcludedImage struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// Status is the progress report behind GET /api/status.
type Status struct {
	Total          int             `json:"total"`
	Converted      int             `json:"converted"`
	Skipped        int             `json:"skipped"`
	Remaining      int             `json:"remaining"`
	Excluded       int             `json:"excluded"`
	ExcludedImages []ExcludedImage `json:"excludedImages"`
	Log            []string        `json:"log"`
	Complete       bool            `json:"complete"`
	Settings       settings.Config `json:"settings"`
	MaxValues      string          `json:"maxValues"`
	LastCleanup    *time.Time      `json:"lastCleanup,omitempty"`
	PDFCompression bool            `json:"pdfCompression"`
}

type counts struct {
	total, converted, skipped int
}

func (e *Engine) count(ctx context.Context, cfg settings.Config) (counts, error) {
	byMime, err := e.db.CountByMime(ctx)
	if err != nil {
		return counts{}, err
	}
	var c counts
	for _, n := range byMime {
		c.total += n
	}
	c.converted = byMime[cfg.Format.MimeType()]
	c.skipped = byMime[mediatypes.MimeJPEG] + byMime[mediatypes.MimePNG]
	return c, nil
}

// Status reports catalog progress for the current target format.
// Converted counts assets already in the target format, skipped counts
// JPEG and PNG sources, and remaining is everything else (alternate-format
// images and PDFs).
func (e *Engine) Status(ctx context.Context) (Status, error) {
	cfg := e.settings.Resolve(ctx)
	c, err := e.count(ctx, cfg)
	if err != nil {
		return Status{}, err
	}

	excluded, err := e.ExcludedImages(ctx)
	if err != nil {
		return Status{}, err
	}
	log, err := e.journal.Entries(ctx)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Total:          c.total,
		Converted:      c.converted,
		Skipped:        c.skipped,
		Remaining:      c.total - c.converted - c.skipped,
		Excluded:       len(excluded),
		ExcludedImages: excluded,
		Log:            log,
		Complete:       e.settings.Complete(ctx),
		Settings:       cfg,
		MaxValues:      settings.JoinDimensions(cfg.Dimensions, ", "),
		PDFCompression: e.pdf.Available(),
	}
	if last, err := e.db.GetLastCleanup(ctx); err == nil && !last.IsZero() {
		status.LastCleanup = &last
	}
	return status, nil
}

// ExcludedImages lists the exclusion list with titles and thumbnails.
// Ids whose asset no longer exists are listed without them.
func (e *Engine) ExcludedImages(ctx context.Context) ([]ExcludedImage, error) {
	ids, err := e.exclusions.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ExcludedImage, 0, len(ids))
	for _, id := range ids {
		item := ExcludedImage{ID: id}
		a, err := e.db.GetAsset(ctx, id)
		switch {
		case errors.Is(err, database.ErrAssetNotFound):
		case err != nil:
			return nil, err
		default:
			item.Title = title(a.File)
			if thumb, ok := a.Sizes[layout.ThumbnailKey]; ok && thumb.File != "" {
				item.Thumbnail = path.Join(path.Dir(a.File), thumb.File)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// title is the file name without directory or extension.
func title(rel string) string {
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}

// CollectStats feeds the metrics collector.
func (e *Engine) CollectStats(ctx context.Context) (metrics.Stats, error) {
	cfg := e.settings.Resolve(ctx)
	c, err := e.count(ctx, cfg)
	if err != nil {
		return metrics.Stats{}, err
	}
	ids, err := e.exclusions.List(ctx)
	if err != nil {
		return metrics.Stats{}, err
	}
	log, err := e.journal.Entries(ctx)
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Stats{
		Total:          c.total,
		Converted:      c.converted,
		Legacy:         c.skipped,
		Remaining:      c.total - c.converted - c.skipped,
		Excluded:       len(ids),
		JournalEntries: len(log),
		Complete:       e.settings.Complete(ctx),
		DBConnections:  e.db.OpenConnections(),
	}, nil
}
