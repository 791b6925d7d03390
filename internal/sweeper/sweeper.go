// Package sweeper reconciles the uploads tree with the catalog. A sweep
// deletes legacy originals and alternate-format files nothing references,
// then backfills thumbnails missing from converted assets.
package sweeper

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"media-refiner/internal/activity"
	"media-refiner/internal/convert"
	"media-refiner/internal/database"
	"media-refiner/internal/filesystem"
	"media-refiner/internal/layout"
	"media-refiner/internal/logging"
	"media-refiner/internal/mediatypes"
	"media-refiner/internal/metrics"
	"media-refiner/internal/settings"
)

// Catalog lists and updates assets.
type Catalog interface {
	ListAssets(ctx context.Context) ([]*database.Asset, error)
	PutAsset(ctx context.Context, a *database.Asset) error
	SetLastCleanup(ctx context.Context, t time.Time) error
}

// Settings resolves the effective config.
type Settings interface {
	Resolve(ctx context.Context) settings.Config
}

// Exclusions returns the excluded asset ids.
type Exclusions interface {
	Set(ctx context.Context) (map[int64]bool, error)
}

// Synchronizer rebuilds records and reports missing thumbnails.
type Synchronizer interface {
	Sync(ctx context.Context, asset database.Asset, cfg settings.Config, written convert.Result) (database.Asset, error)
	ThumbnailMissing(asset database.Asset, cfg settings.Config) bool
	Abs(rel string) string
}

// Deleter removes files with bounded retry.
type Deleter interface {
	Delete(path string) error
}

// Throttle pauses work under memory pressure.
type Throttle interface {
	WaitIfPaused() bool
}

// Deps are the sweeper's collaborators. Journal and Throttle are optional.
type Deps struct {
	Root       string
	Catalog    Catalog
	Settings   Settings
	Exclusions Exclusions
	Sync       Synchronizer
	Deleter    Deleter
	Journal    activity.Recorder
	Throttle   Throttle
}

// Sweeper runs reconciliation passes.
type Sweeper struct {
	root       string
	catalog    Catalog
	settings   Settings
	exclusions Exclusions
	sync       Synchronizer
	deleter    Deleter
	journal    activity.Recorder
	throttle   Throttle
}

// New creates a Sweeper.
func New(deps Deps) *Sweeper {
	s := &Sweeper{
		root:       deps.Root,
		catalog:    deps.Catalog,
		settings:   deps.Settings,
		exclusions: deps.Exclusions,
		sync:       deps.Sync,
		deleter:    deps.Deleter,
		journal:    deps.Journal,
		throttle:   deps.Throttle,
	}
	if s.journal == nil {
		s.journal = activity.Discard
	}
	return s
}

// Result summarises one sweep.
type Result struct {
	RunID                 string        `json:"runId"`
	Deleted               int           `json:"deleted"`
	Failed                int           `json:"failed"`
	ThumbnailsRegenerated int           `json:"thumbnailsRegenerated"`
	Duration              time.Duration `json:"duration"`
}

// Sweep deletes orphaned files and backfills thumbnails. Per-file failures
// are counted and journaled; only an unreadable catalog, an unreadable
// uploads root or a cancelled context end the sweep with an error.
func (s *Sweeper) Sweep(ctx context.Context) (res Result, err error) {
	start := time.Now()
	res.RunID = uuid.NewString()
	defer func() {
		res.Duration = time.Since(start)
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.SweepRunsTotal.WithLabelValues(status).Inc()
		metrics.SweepDuration.Observe(res.Duration.Seconds())
	}()

	cfg := s.settings.Resolve(ctx)
	excluded, err := s.exclusions.Set(ctx)
	if err != nil {
		return res, err
	}
	all, err := s.catalog.ListAssets(ctx)
	if err != nil {
		return res, err
	}
	assets := make([]*database.Asset, 0, len(all))
	for _, a := range all {
		if mediatypes.IsImageMime(a.MimeType) {
			assets = append(assets, a)
		}
	}

	logging.Info("Sweep %s started over %d assets", res.RunID, len(assets))
	active := BuildActiveSet(assets, excluded, cfg, s.root, filesystem.Exists)
	metrics.SweepActiveFiles.Set(float64(active.Len()))

	if err := s.deleteOrphans(ctx, cfg, active, &res); err != nil {
		return res, err
	}
	s.journal.Record(ctx, "Cleanup Complete: Deleted %d files, %d failed", res.Deleted, res.Failed)

	if err := s.backfillThumbnails(ctx, cfg, assets, excluded, &res); err != nil {
		return res, err
	}
	s.journal.Record(ctx, "Thumbnail Regeneration Complete")

	if err := s.catalog.SetLastCleanup(ctx, time.Now()); err != nil {
		logging.Warn("Failed to record cleanup time: %v", err)
	}
	logging.Info("Sweep %s finished: deleted=%d failed=%d thumbnails=%d in %v",
		res.RunID, res.Deleted, res.Failed, res.ThumbnailsRegenerated, time.Since(start))
	return res, nil
}

// deleteOrphans walks the uploads tree and removes candidate files that are
// not active. Legacy originals are candidates only when originals are not
// preserved; files in the alternate target format always are.
func (s *Sweeper) deleteOrphans(ctx context.Context, cfg settings.Config, active *ActiveSet, res *Result) error {
	alternate := cfg.Format.Alternate().Ext()

	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			logging.Warn("Sweep cannot read %s: %v", path, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != s.root && layout.IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if layout.IsHidden(d.Name()) || !d.Type().IsRegular() {
			return nil
		}

		ext := mediatypes.Ext(path)
		class := mediatypes.GetClass(ext)
		if class == mediatypes.ClassNone {
			return nil
		}
		if kind := layout.Classify(s.root, path).Kind; kind != layout.Flat && kind != layout.Sharded {
			return nil
		}
		if active.Keep(path) {
			return nil
		}

		kind := ""
		switch {
		case class == mediatypes.ClassLegacy && !cfg.PreserveOriginals:
			kind = "legacy"
		case ext == alternate:
			kind = "alternate"
		default:
			return nil
		}

		if s.throttle != nil && !s.throttle.WaitIfPaused() {
			return context.Canceled
		}
		s.remove(ctx, path, kind, res)
		return nil
	})
}

func (s *Sweeper) remove(ctx context.Context, path, kind string, res *Result) {
	name := filepath.Base(path)
	err := s.deleter.Delete(path)
	switch {
	case err == nil:
		res.Deleted++
		metrics.SweepFilesDeletedTotal.WithLabelValues(kind).Inc()
		s.journal.Record(ctx, "Cleanup: Deleted %s", name)
	case errors.Is(err, filesystem.ErrWriteDenied):
		res.Failed++
		metrics.SweepFilesFailedTotal.Inc()
		s.journal.Record(ctx, "Error: Cannot make %s writable - skipping deletion", name)
	default:
		res.Failed++
		metrics.SweepFilesFailedTotal.Inc()
		s.journal.Record(ctx, "Cleanup: Failed to delete %s", name)
	}
}

// backfillThumbnails re-syncs converted, non-excluded assets whose
// thumbnail is missing.
func (s *Sweeper) backfillThumbnails(ctx context.Context, cfg settings.Config, assets []*database.Asset, excluded map[int64]bool, res *Result) error {
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if excluded[a.ID] || mediatypes.Ext(a.File) != cfg.Format.Ext() {
			continue
		}
		if !filesystem.Exists(s.sync.Abs(a.File)) || !s.sync.ThumbnailMissing(*a, cfg) {
			continue
		}

		updated, err := s.sync.Sync(ctx, *a, cfg, convert.Result{})
		if err != nil {
			logging.Warn("Thumbnail backfill for asset %d failed: %v", a.ID, err)
			continue
		}
		if _, ok := updated.Sizes[layout.ThumbnailKey]; !ok {
			continue
		}
		if err := s.catalog.PutAsset(ctx, &updated); err != nil {
			logging.Warn("Failed to save asset %d after thumbnail backfill: %v", a.ID, err)
			continue
		}
		res.ThumbnailsRegenerated++
		s.journal.Record(ctx, "Regenerated thumbnail for %s", filepath.Base(a.File))
	}
	return nil
}
