// Package batch pages through the catalog and converts every asset whose
// files do not match the current settings.
//
// One call to ProcessPage handles one page and returns the next offset. The
// caller decides whether to continue, so a run can stop after any page and
// resume later from the returned offset.
package batch

import (
	"context"
	"errors"
	"os"
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

// ErrStopped is returned when the process is shutting down mid-page.
var ErrStopped = errors.New("batch processing stopped")

// Catalog is the asset store the driver reads and updates.
type Catalog interface {
	GetAsset(ctx context.Context, id int64) (*database.Asset, error)
	PutAsset(ctx context.Context, a *database.Asset) error
	AttachPrimary(ctx context.Context, id int64, file, mimeType string) error
	ListCandidates(ctx context.Context, mimes []string, exclude []int64, offset, limit int) ([]*database.Asset, error)
}

// Settings resolves the effective config and records run completion.
type Settings interface {
	Resolve(ctx context.Context) settings.Config
	SetComplete(ctx context.Context, complete bool) error
}

// Exclusions lists assets that must not be converted.
type Exclusions interface {
	List(ctx context.Context) ([]int64, error)
	Contains(ctx context.Context, id int64) (bool, error)
}

// Converter produces the files for one source.
type Converter interface {
	Convert(ctx context.Context, source string, cfg settings.Config) (convert.Result, error)
	Probe(path string) (int, int, error)
}

// Synchronizer rebuilds a record from disk and maps catalog paths.
type Synchronizer interface {
	Sync(ctx context.Context, asset database.Asset, cfg settings.Config, written convert.Result) (database.Asset, error)
	Abs(rel string) string
	Rel(path string) (string, error)
}

// Deleter removes files with bounded retry.
type Deleter interface {
	Delete(path string) error
}

// Throttle pauses work under memory pressure. WaitIfPaused returns false
// when the process is shutting down.
type Throttle interface {
	WaitIfPaused() bool
}

// Deps are the driver's collaborators. Journal and Throttle are optional.
type Deps struct {
	Catalog    Catalog
	Settings   Settings
	Exclusions Exclusions
	Converter  Converter
	Sync       Synchronizer
	Deleter    Deleter
	Journal    activity.Recorder
	Throttle   Throttle
}

// Driver runs conversion pages.
type Driver struct {
	catalog    Catalog
	settings   Settings
	exclusions Exclusions
	converter  Converter
	sync       Synchronizer
	deleter    Deleter
	journal    activity.Recorder
	throttle   Throttle
}

// New creates a Driver.
func New(deps Deps) *Driver {
	d := &Driver{
		catalog:    deps.Catalog,
		settings:   deps.Settings,
		exclusions: deps.Exclusions,
		converter:  deps.Converter,
		sync:       deps.Sync,
		deleter:    deps.Deleter,
		journal:    deps.Journal,
		throttle:   deps.Throttle,
	}
	if d.journal == nil {
		d.journal = activity.Discard
	}
	return d
}

// Outcome is what happened to one asset.
type Outcome string

const (
	OutcomeConverted Outcome = "converted"
	OutcomeCurrent   Outcome = "current"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// PageResult reports one ProcessPage call. Interrupted is set when the
// page's time budget or the caller's context ended before every candidate
// was finished; NextOffset then points at the first unfinished one.
type PageResult struct {
	Complete    bool          `json:"complete"`
	NextOffset  int           `json:"offset"`
	Interrupted bool          `json:"interrupted,omitempty"`
	Converted   int           `json:"converted"`
	Current     int           `json:"current"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration"`
}

func (r *PageResult) count(o Outcome) {
	switch o {
	case OutcomeConverted:
		r.Converted++
	case OutcomeCurrent:
		r.Current++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
	metrics.BatchAssetsTotal.WithLabelValues(string(o)).Inc()
}

// Start begins a run: it clears the completion flag and returns a run id.
func (d *Driver) Start(ctx context.Context) (string, error) {
	if err := d.settings.SetComplete(ctx, false); err != nil {
		return "", err
	}
	id := uuid.NewString()
	d.journal.Record(ctx, "Conversion started")
	logging.Info("Conversion run %s started", id)
	return id, nil
}

// ProcessPage converts the page of candidates starting at offset. A failure
// on one asset is journaled and counted and never aborts the page. An empty
// page marks the run complete.
func (d *Driver) ProcessPage(ctx context.Context, offset int) (PageResult, error) {
	start := time.Now()
	cfg := d.settings.Resolve(ctx)
	if offset < 0 {
		offset = 0
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, cfg.PageBudget())
	defer cancel()

	excluded, err := d.exclusions.List(ctx)
	if err != nil {
		metrics.BatchPagesTotal.WithLabelValues("error").Inc()
		return PageResult{}, err
	}
	candidates, err := d.catalog.ListCandidates(ctx, mediatypes.ConvertibleMimeTypes, excluded, offset, cfg.BatchSize)
	if err != nil {
		metrics.BatchPagesTotal.WithLabelValues("error").Inc()
		return PageResult{}, err
	}

	if len(candidates) == 0 {
		if err := d.settings.SetComplete(ctx, true); err != nil {
			logging.Warn("Failed to set completion flag: %v", err)
		}
		d.journal.Record(ctx, "Conversion Complete: No more images to process")
		metrics.BatchPagesTotal.WithLabelValues("complete").Inc()
		return PageResult{Complete: true, NextOffset: offset}, nil
	}

	var res PageResult
	excludedSet := make(map[int64]bool, len(excluded))
	for _, id := range excluded {
		excludedSet[id] = true
	}

	// visited counts candidates finished before any interruption. An asset
	// whose processing overlapped the deadline is not counted, so resuming
	// at NextOffset retries it.
	visited, attempted := 0, 0
	for _, a := range candidates {
		if d.throttle != nil && !d.throttle.WaitIfPaused() {
			res.NextOffset = offset + visited
			return res, ErrStopped
		}
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		if excludedSet[a.ID] {
			res.count(OutcomeSkipped)
			visited++
			continue
		}
		attempted++
		res.count(d.processAsset(ctx, a, cfg))
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		visited++
	}

	res.NextOffset = offset + cfg.BatchSize
	if res.Interrupted {
		// An asset that alone outlasts the page budget is passed over, or
		// RunToCompletion would retry the same page forever.
		if visited == 0 && attempted > 0 && parent.Err() == nil {
			visited = 1
		}
		res.NextOffset = offset + visited
		logging.Warn("Batch page at offset %d stopped early after %d of %d assets: %v",
			offset, visited, len(candidates), ctx.Err())
	}

	res.Duration = time.Since(start)
	metrics.BatchPagesTotal.WithLabelValues("processed").Inc()
	metrics.BatchPageDuration.Observe(res.Duration.Seconds())
	logging.Debug("Batch page at offset %d: converted=%d current=%d skipped=%d failed=%d in %v",
		offset, res.Converted, res.Current, res.Skipped, res.Failed, res.Duration)
	return res, nil
}

// RunToCompletion starts a run and processes pages until the catalog is
// exhausted or ctx ends. onPage, when set, sees every page result.
func (d *Driver) RunToCompletion(ctx context.Context, offset int, onPage func(PageResult)) error {
	if _, err := d.Start(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := d.ProcessPage(ctx, offset)
		if err != nil {
			return err
		}
		if onPage != nil {
			onPage(res)
		}
		if res.Complete {
			return nil
		}
		offset = res.NextOffset
	}
}

// processAsset applies the skip gates and, when the asset needs it,
// converts it.
func (d *Driver) processAsset(ctx context.Context, a *database.Asset, cfg settings.Config) Outcome {
	path := d.sync.Abs(a.File)
	if !filesystem.Exists(path) {
		d.journal.Record(ctx, "Skipped: File not found for Asset ID %d", a.ID)
		return OutcomeSkipped
	}
	if outcome, ok := d.gate(ctx, a.ID, path, cfg); !ok {
		return outcome
	}
	if !d.NeedsReprocess(a, path, cfg) {
		return OutcomeCurrent
	}

	if mediatypes.Ext(path) == cfg.Format.Ext() {
		d.deleteStaleSizes(ctx, a, path, cfg)
	}
	return d.convert(ctx, a, path, cfg)
}

// gate applies the writability and minimum size checks shared by pages
// and uploads.
func (d *Driver) gate(ctx context.Context, id int64, path string, cfg settings.Config) (Outcome, bool) {
	dir := filepath.Dir(path)
	if !filesystem.DirWritable(dir) {
		d.journal.Record(ctx, "Error: Uploads directory %s is not writable for Asset ID %d", dir, id)
		logging.Debug("%v: %s", filesystem.ErrWriteDenied, dir)
		return OutcomeSkipped, false
	}

	if cfg.MinSizeKB > 0 {
		info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
		if err != nil {
			d.journal.Record(ctx, "Skipped: File not found for Asset ID %d", id)
			return OutcomeSkipped, false
		}
		if info.Size() < cfg.MinSizeBytes() {
			d.journal.Record(ctx, "Skipped: %s (size %.2f KB < %d KB)",
				filepath.Base(path), float64(info.Size())/1024, cfg.MinSizeKB)
			return OutcomeSkipped, false
		}
	}
	return "", true
}

// NeedsReprocess reports whether the asset at path differs from cfg in
// format or quality, or, when both match, whether its primary size is no
// longer one of the configured dimensions. A record without a quality stamp
// always needs reprocessing. When the file cannot be probed the asset is
// treated as current.
func (d *Driver) NeedsReprocess(a *database.Asset, path string, cfg settings.Config) bool {
	if mediatypes.Ext(path) != cfg.Format.Ext() {
		return true
	}
	if a.Quality == nil || *a.Quality != cfg.Quality {
		return true
	}

	w, h, err := d.converter.Probe(path)
	if err != nil {
		logging.Debug("Cannot probe %s: %v", path, err)
		return false
	}
	dim := w
	if cfg.Mode == settings.ModeHeight {
		dim = h
	}
	return !cfg.HasDimension(dim)
}

// deleteStaleSizes removes recorded additional sizes whose dimension is no
// longer configured.
func (d *Driver) deleteStaleSizes(ctx context.Context, a *database.Asset, path string, cfg settings.Config) {
	for key := range a.Sizes {
		dim, ok := layout.ParseSizeKey(key)
		if !ok || cfg.HasDimension(dim) {
			continue
		}
		old := layout.DerivativePath(path, dim, cfg.Format)
		if !filesystem.Exists(old) {
			continue
		}
		if err := d.deleter.Delete(old); err != nil {
			logging.Warn("Could not delete outdated size %s: %v", old, err)
			continue
		}
		d.journal.Record(ctx, "Deleted outdated size: %s", filepath.Base(old))
	}
}

// convert runs the converter, records the new primary and sizes, and
// removes the source when it was in another format.
func (d *Driver) convert(ctx context.Context, a *database.Asset, path string, cfg settings.Config) Outcome {
	written, err := d.converter.Convert(ctx, path, cfg)
	if err != nil {
		logging.Debug("Conversion of asset %d failed: %v", a.ID, err)
		return OutcomeFailed
	}

	rel, err := d.sync.Rel(written.Primary)
	if err != nil {
		d.journal.Record(ctx, "Error: Metadata regeneration failed for %s", filepath.Base(path))
		return OutcomeFailed
	}
	mime := cfg.Format.MimeType()
	if err := d.catalog.AttachPrimary(ctx, a.ID, rel, mime); err != nil {
		d.journal.Record(ctx, "Error: Could not update Asset ID %d: %v", a.ID, err)
		return OutcomeFailed
	}

	fresh := *a
	fresh.File = rel
	fresh.MimeType = mime
	updated, err := d.sync.Sync(ctx, fresh, cfg, written)
	if err != nil {
		logging.Warn("Metadata sync for asset %d failed: %v", a.ID, err)
	} else if err := d.catalog.PutAsset(ctx, &updated); err != nil {
		d.journal.Record(ctx, "Error: Could not update Asset ID %d: %v", a.ID, err)
	}

	if mediatypes.Ext(path) != cfg.Format.Ext() && !cfg.PreserveOriginals {
		d.deleteOriginal(ctx, path)
	}
	return OutcomeConverted
}

func (d *Driver) deleteOriginal(ctx context.Context, path string) {
	if _, err := os.Lstat(path); err != nil {
		return
	}
	name := filepath.Base(path)
	err := d.deleter.Delete(path)
	switch {
	case err == nil:
		d.journal.Record(ctx, "Deleted original: %s", name)
	case errors.Is(err, filesystem.ErrWriteDenied):
		d.journal.Record(ctx, "Error: Cannot make %s writable after retry - skipping deletion", name)
	default:
		d.journal.Record(ctx, "Error: Failed to delete original %s after retries", name)
	}
}

// HandleUpload converts a newly registered asset unless automatic
// conversion is disabled. Exclusion, type, writability and size gates
// apply; a format or quality match does not skip the conversion.
func (d *Driver) HandleUpload(ctx context.Context, id int64) (Outcome, error) {
	cfg := d.settings.Resolve(ctx)
	if cfg.DisableAutoConvert {
		return OutcomeSkipped, nil
	}

	a, err := d.catalog.GetAsset(ctx, id)
	if err != nil {
		return "", err
	}
	path := d.sync.Abs(a.File)
	if mediatypes.GetClass(mediatypes.Ext(path)) == mediatypes.ClassNone {
		return OutcomeSkipped, nil
	}
	excluded, err := d.exclusions.Contains(ctx, id)
	if err != nil {
		return "", err
	}
	if excluded {
		return OutcomeSkipped, nil
	}
	if !filesystem.Exists(path) {
		d.journal.Record(ctx, "Skipped: File not found for Asset ID %d", id)
		return OutcomeSkipped, nil
	}
	if outcome, ok := d.gate(ctx, id, path, cfg); !ok {
		return outcome, nil
	}

	outcome := d.convert(ctx, a, path, cfg)
	metrics.BatchAssetsTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}
