package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"media-refiner/internal/activity"
	"media-refiner/internal/codec"
	"media-refiner/internal/database"
	"media-refiner/internal/layout"
	"media-refiner/internal/logging"
	"media-refiner/internal/mediatypes"
	"media-refiner/internal/metadata"
	"media-refiner/internal/metrics"
)

// ErrScanInProgress is returned when a scan is requested while another one
// is running.
var ErrScanInProgress = errors.New("import scan already in progress")

// Catalog is the subset of the catalog store the indexer needs.
type Catalog interface {
	ListAssets(ctx context.Context) ([]*database.Asset, error)
	CreateAsset(ctx context.Context, a *database.Asset) (int64, error)
}

// Indexer registers files in the uploads tree that the catalog does not
// know about yet.
type Indexer struct {
	root    string
	catalog Catalog
	journal activity.Recorder
	config  ParallelWalkerConfig

	// mu serialises scans and single-file registrations
	mu sync.Mutex

	stateMu  sync.RWMutex
	lastScan time.Time
}

// Result summarises one import scan.
type Result struct {
	Files       int           `json:"files"`
	Registered  int           `json:"registered"`
	Known       int           `json:"known"`
	Derivatives int           `json:"derivatives"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration"`
}

// New creates an Indexer rooted at the uploads directory.
func New(root string, catalog Catalog, journal activity.Recorder) *Indexer {
	if journal == nil {
		journal = activity.Discard
	}
	return &Indexer{
		root:    root,
		catalog: catalog,
		journal: journal,
		config:  DefaultParallelWalkerConfig(),
	}
}

// SetParallelConfig sets the parallel walker configuration.
func (idx *Indexer) SetParallelConfig(config ParallelWalkerConfig) {
	idx.config = config
}

// Root returns the uploads root.
func (idx *Indexer) Root() string {
	return idx.root
}

// LastScan returns the completion time of the last scan.
func (idx *Indexer) LastScan() time.Time {
	idx.stateMu.RLock()
	defer idx.stateMu.RUnlock()
	return idx.lastScan
}

// Scan walks the uploads tree and registers every image or PDF that is
// neither cataloged, a format sibling of a cataloged asset, nor a size or
// thumbnail derived from a sibling file.
func (idx *Indexer) Scan(ctx context.Context) (Result, error) {
	if !idx.mu.TryLock() {
		return Result{}, ErrScanInProgress
	}
	defer idx.mu.Unlock()

	start := time.Now()
	var result Result

	known, err := idx.loadCatalog(ctx)
	if err != nil {
		return result, err
	}

	files, err := NewParallelWalker(idx.root, idx.config).Walk(ctx)
	if err != nil {
		return result, fmt.Errorf("walk %s: %w", idx.root, err)
	}
	result.Files = len(files)

	siblings := make(map[string]bool)
	for _, c := range files {
		dir, base := path.Split(c.RelPath)
		stem := strings.TrimSuffix(base, path.Ext(base))
		if _, variant, _ := layout.StripVariant(stem); variant == layout.VariantNone {
			siblings[path.Join(dir, stem)] = true
		}
	}

	for _, c := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch known.decide(c.RelPath, siblings) {
		case verdictKnown:
			result.Known++
			continue
		case verdictDerivative:
			result.Derivatives++
			continue
		}

		if _, err := idx.register(ctx, c, "scan"); err != nil {
			logging.Warn("Failed to register %s: %v", c.RelPath, err)
			result.Failed++
			continue
		}
		known.add(c.RelPath)
		result.Registered++
	}

	result.Duration = time.Since(start)
	idx.stateMu.Lock()
	idx.lastScan = time.Now()
	idx.stateMu.Unlock()

	idx.journal.Record(ctx, "Import Complete: Registered %d files", result.Registered)
	logging.Info("Import scan: %d files, %d registered, %d known, %d derivatives, %d failed in %v",
		result.Files, result.Registered, result.Known, result.Derivatives, result.Failed, result.Duration)
	return result, nil
}

// Register catalogs a single file. It returns the asset id and whether a
// new row was created; a file that is already cataloged returns its id and
// false, and a derivative or format sibling returns 0 and false.
func (idx *Indexer) Register(ctx context.Context, file, source string) (int64, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if layout.IsHidden(filepath.Base(file)) {
		return 0, false, nil
	}
	rel, err := filepath.Rel(idx.root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return 0, false, fmt.Errorf("%s is outside %s", file, idx.root)
	}
	info, err := os.Stat(file)
	if err != nil {
		return 0, false, err
	}
	c := classify(fileJob{path: file, info: info, relPath: rel})
	if c == nil {
		return 0, false, nil
	}

	known, err := idx.loadCatalog(ctx)
	if err != nil {
		return 0, false, err
	}
	if id, ok := known.files[c.RelPath]; ok {
		return id, false, nil
	}
	if known.decide(c.RelPath, dirStems(filepath.Dir(file), path.Dir(c.RelPath))) != verdictNew {
		return 0, false, nil
	}

	id, err := idx.register(ctx, *c, source)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (idx *Indexer) register(ctx context.Context, c Candidate, source string) (int64, error) {
	a := &database.Asset{
		File:     c.RelPath,
		MimeType: c.MimeType,
		FileSize: c.Size,
	}
	if c.Type == mediatypes.FileTypeImage {
		if dims, err := codec.GetImageDimensions(c.Path); err == nil {
			a.Width, a.Height = dims.Width, dims.Height
		}
		if c.MimeType == mediatypes.MimeJPEG {
			if meta, err := metadata.ExtractEXIF(c.Path); err == nil {
				a.ImageMeta = meta
			}
		}
	}

	id, err := idx.catalog.CreateAsset(ctx, a)
	if err != nil {
		return 0, err
	}
	metrics.ImportedAssetsTotal.WithLabelValues(source).Inc()
	idx.journal.Record(ctx, "Imported: %s (Asset ID %d)", c.RelPath, id)
	return id, nil
}

type verdict int

const (
	verdictNew verdict = iota
	verdictKnown
	verdictDerivative
)

// catalogIndex is the set of cataloged files and their extensionless stems.
type catalogIndex struct {
	files map[string]int64
	stems map[string]bool
}

func (idx *Indexer) loadCatalog(ctx context.Context) (*catalogIndex, error) {
	assets, err := idx.catalog.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	ci := &catalogIndex{files: make(map[string]int64), stems: make(map[string]bool)}
	for _, a := range assets {
		ci.files[a.File] = a.ID
		ci.stems[stemKey(a.File)] = true
		dir := path.Dir(a.File)
		for _, v := range a.Sizes {
			if v.File != "" {
				if _, ok := ci.files[path.Join(dir, v.File)]; !ok {
					ci.files[path.Join(dir, v.File)] = 0
				}
			}
		}
	}
	return ci, nil
}

func (ci *catalogIndex) add(rel string) {
	ci.files[rel] = 0
	ci.stems[stemKey(rel)] = true
}

func (ci *catalogIndex) decide(rel string, siblings map[string]bool) verdict {
	if _, ok := ci.files[rel]; ok {
		return verdictKnown
	}
	key := stemKey(rel)
	if ci.stems[key] {
		return verdictKnown
	}
	stem, variant, _ := layout.StripVariant(path.Base(key))
	if variant != layout.VariantNone {
		parent := path.Join(path.Dir(key), stem)
		if ci.stems[parent] || siblings[parent] {
			return verdictDerivative
		}
	}
	return verdictNew
}

// stemKey is rel without its extension.
func stemKey(rel string) string {
	return strings.TrimSuffix(rel, path.Ext(rel))
}

// dirStems returns the stems of the unsuffixed images and PDFs in dir,
// prefixed with relDir so they key the same way as catalogIndex.
func dirStems(dir, relDir string) map[string]bool {
	stems := make(map[string]bool)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return stems
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || layout.IsHidden(name) {
			continue
		}
		if mediatypes.GetFileType(mediatypes.Ext(name)) == mediatypes.FileTypeOther {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if _, variant, _ := layout.StripVariant(stem); variant == layout.VariantNone {
			stems[path.Join(relDir, stem)] = true
		}
	}
	return stems
}
