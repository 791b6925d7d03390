// Package refiner assembles the conversion engine and exposes the
// operations the HTTP server and the CLI share.
package refiner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-refiner/internal/activity"
	"media-refiner/internal/batch"
	"media-refiner/internal/codec"
	"media-refiner/internal/convert"
	"media-refiner/internal/database"
	"media-refiner/internal/exclusion"
	"media-refiner/internal/export"
	"media-refiner/internal/filesystem"
	"media-refiner/internal/indexer"
	"media-refiner/internal/metadata"
	"media-refiner/internal/pdf"
	"media-refiner/internal/settings"
	"media-refiner/internal/sweeper"
)

// ErrBusy is returned when a conversion page or sweep is requested while
// another page, sweep or upload is running in this process.
var ErrBusy = errors.New("a conversion page or cleanup is already running")

// Config wires the engine to its environment.
type Config struct {
	// UploadsDir is the root of the storage tree.
	UploadsDir string
	// DatabasePath is the SQLite file; Open creates it if needed.
	DatabasePath string
	// Codec may be nil, in which case every conversion fails with
	// "No image library available".
	Codec codec.Codec
	// Delete configures bounded-retry deletion.
	Delete filesystem.DeleteConfig
	// GhostscriptPath is the PDF compressor binary.
	GhostscriptPath string
	// Throttle, when set, pauses pages and sweeps under memory pressure.
	Throttle batch.Throttle
}

// Engine is the assembled refiner.
type Engine struct {
	root   string
	db     *database.Database
	ownsDB bool

	journal    *activity.Journal
	settings   *settings.Manager
	exclusions *exclusion.Registry
	deleter    *filesystem.Deleter
	converter  *convert.Converter
	meta       *metadata.Synchronizer
	driver     *batch.Driver
	sweeper    *sweeper.Sweeper
	pdf        *pdf.Compressor
	exporter   *export.Exporter
	indexer    *indexer.Indexer

	// run admits one conversion page, sweep or upload at a time.
	run runLock

	now func() time.Time
}

// Open opens the catalog at cfg.DatabasePath and builds an engine that
// closes it on Close.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	db, err := database.New(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	e := New(db, cfg)
	e.ownsDB = true
	return e, nil
}

// New builds an engine on an already open catalog.
func New(db *database.Database, cfg Config) *Engine {
	if cfg.Delete.MaxAttempts == 0 {
		cfg.Delete = filesystem.DefaultDeleteConfig()
	}

	journal := activity.New(db)
	deleter := filesystem.NewDeleter(cfg.Delete)
	converter := convert.New(cfg.Codec, deleter, journal)
	synchronizer := metadata.New(cfg.UploadsDir, converter, journal)
	manager := settings.NewManager(db, journal)
	registry := exclusion.New(db, journal)

	e := &Engine{
		root:       cfg.UploadsDir,
		db:         db,
		journal:    journal,
		settings:   manager,
		exclusions: registry,
		deleter:    deleter,
		converter:  converter,
		meta:       synchronizer,
		pdf:        pdf.New(cfg.GhostscriptPath, journal),
		exporter:   export.New(cfg.UploadsDir, db, journal),
		indexer:    indexer.New(cfg.UploadsDir, db, journal),
		run:        make(runLock, 1),
		now:        time.Now,
	}

	e.driver = batch.New(batch.Deps{
		Catalog:    db,
		Settings:   manager,
		Exclusions: registry,
		Converter:  converter,
		Sync:       synchronizer,
		Deleter:    deleter,
		Journal:    journal,
		Throttle:   cfg.Throttle,
	})
	e.sweeper = sweeper.New(sweeper.Deps{
		Root:       cfg.UploadsDir,
		Catalog:    db,
		Settings:   manager,
		Exclusions: registry,
		Sync:       synchronizer,
		Deleter:    deleter,
		Journal:    journal,
		Throttle:   cfg.Throttle,
	})
	return e
}

// Close releases the catalog when the engine opened it.
func (e *Engine) Close() error {
	if !e.ownsDB {
		return nil
	}
	return e.db.Close()
}

// Root returns the uploads root.
func (e *Engine) Root() string { return e.root }

// Settings returns the persisted conversion settings.
func (e *Engine) Settings() *settings.Manager { return e.settings }

// Exclusions returns the exclusion registry.
func (e *Engine) Exclusions() *exclusion.Registry { return e.exclusions }

// Journal returns the activity journal.
func (e *Engine) Journal() *activity.Journal { return e.journal }

// Indexer returns the import scanner.
func (e *Engine) Indexer() *indexer.Indexer { return e.indexer }

// PDFAvailable reports whether Ghostscript can be found.
func (e *Engine) PDFAvailable() bool { return e.pdf.Available() }

// NewWatcher returns an upload watcher that converts new images through the
// upload hook. Each file is handled under the run lock, so a sweep never
// sees it half registered.
func (e *Engine) NewWatcher() *indexer.Watcher {
	return indexer.NewWatcher(e.indexer, watchHook{e})
}

// runLock is a mutex that can also be acquired with a deadline. Pages and
// sweeps use tryLock and fail with ErrBusy; uploads wait.
type runLock chan struct{}

func (l runLock) tryLock() bool {
	select {
	case l <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l runLock) lock(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l runLock) unlock() { <-l }

type watchHook struct{ e *Engine }

func (h watchHook) HandleUpload(ctx context.Context, id int64) (batch.Outcome, error) {
	return h.e.driver.HandleUpload(ctx, id)
}

func (h watchHook) Exclusive(ctx context.Context, fn func(context.Context) error) error {
	if err := h.e.run.lock(ctx); err != nil {
		return err
	}
	defer h.e.run.unlock()
	return fn(ctx)
}

// Start begins a conversion run.
func (e *Engine) Start(ctx context.Context) (string, error) {
	return e.driver.Start(ctx)
}

// ProcessPage runs one batch page. It fails with ErrBusy instead of
// waiting when another page or sweep holds the engine.
func (e *Engine) ProcessPage(ctx context.Context, offset int) (batch.PageResult, error) {
	if !e.run.tryLock() {
		return batch.PageResult{}, ErrBusy
	}
	defer e.run.unlock()
	return e.driver.ProcessPage(ctx, offset)
}

// RunToCompletion pages from offset until the catalog is exhausted.
func (e *Engine) RunToCompletion(ctx context.Context, offset int, onPage func(batch.PageResult)) error {
	if !e.run.tryLock() {
		return ErrBusy
	}
	defer e.run.unlock()
	return e.driver.RunToCompletion(ctx, offset, onPage)
}

// Sweep removes orphaned files and backfills thumbnails.
func (e *Engine) Sweep(ctx context.Context) (sweeper.Result, error) {
	if !e.run.tryLock() {
		return sweeper.Result{}, ErrBusy
	}
	defer e.run.unlock()
	return e.sweeper.Sweep(ctx)
}

// Import registers uncataloged files under the uploads root.
func (e *Engine) Import(ctx context.Context) (indexer.Result, error) {
	return e.indexer.Scan(ctx)
}

// ResetDefaults restores the default settings.
func (e *Engine) ResetDefaults(ctx context.Context) error {
	return e.settings.ResetDefaults(ctx)
}

// ClearLog empties the journal.
func (e *Engine) ClearLog(ctx context.Context) error {
	return e.journal.Clear(ctx)
}

// Log returns the journal, oldest first.
func (e *Engine) Log(ctx context.Context) ([]string, error) {
	return e.journal.Entries(ctx)
}
