package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"media-refiner/internal/layout"
	"media-refiner/internal/logging"
	"media-refiner/internal/mediatypes"
)

// ParallelWalkerConfig configures the parallel directory walker
type ParallelWalkerConfig struct {
	// NumWorkers is the number of parallel workers
	NumWorkers int
	// ChannelBuffer is the size of the work channel buffer
	ChannelBuffer int
	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
}

// DefaultParallelWalkerConfig returns defaults that are safe on NFS.
// INDEX_WORKERS overrides the worker count.
func DefaultParallelWalkerConfig() ParallelWalkerConfig {
	numWorkers := 3
	if override := os.Getenv("INDEX_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			numWorkers = count
		}
	}

	return ParallelWalkerConfig{
		NumWorkers:    numWorkers,
		ChannelBuffer: 1000,
		SkipHidden:    true,
	}
}

// Candidate is a raster image or PDF found under the uploads root.
type Candidate struct {
	Path     string
	RelPath  string
	Size     int64
	MimeType string
	Type     mediatypes.FileType
}

type fileJob struct {
	path    string
	info    os.FileInfo
	relPath string
}

// ParallelWalker walks the uploads tree and classifies files on a small
// worker pool.
type ParallelWalker struct {
	config ParallelWalkerConfig
	root   string

	jobs    chan fileJob
	results chan *Candidate

	wg sync.WaitGroup

	filesSeen   atomic.Int64
	foldersSeen atomic.Int64
	errorsCount atomic.Int64
}

// NewParallelWalker creates a new parallel directory walker
func NewParallelWalker(root string, config ParallelWalkerConfig) *ParallelWalker {
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}
	return &ParallelWalker{
		config:  config,
		root:    root,
		jobs:    make(chan fileJob, config.ChannelBuffer),
		results: make(chan *Candidate, config.ChannelBuffer),
	}
}

// Walk returns every image or PDF under the root, sorted by relative path.
// Cancelling ctx stops the walk and returns what was collected so far
// together with ctx's error.
func (pw *ParallelWalker) Walk(ctx context.Context) ([]Candidate, error) {
	start := time.Now()

	for i := 0; i < pw.config.NumWorkers; i++ {
		pw.wg.Add(1)
		go pw.worker(ctx)
	}

	var found []Candidate
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range pw.results {
			found = append(found, *c)
		}
	}()

	err := pw.walkAndEnqueue(ctx)

	close(pw.jobs)
	pw.wg.Wait()
	close(pw.results)
	<-done

	sort.Slice(found, func(i, j int) bool { return found[i].RelPath < found[j].RelPath })

	logging.Debug("Walk complete: %d files, %d folders in %v (errors: %d)",
		pw.filesSeen.Load(), pw.foldersSeen.Load(), time.Since(start), pw.errorsCount.Load())

	if err != nil {
		return found, err
	}
	return found, ctx.Err()
}

func (pw *ParallelWalker) walkAndEnqueue(ctx context.Context) error {
	err := filepath.WalkDir(pw.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			logging.Warn("Error accessing path %s: %v", path, err)
			pw.errorsCount.Add(1)
			return nil
		}
		if path == pw.root {
			return nil
		}

		if pw.config.SkipHidden && layout.IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			pw.foldersSeen.Add(1)
			return nil
		}

		relPath, err := filepath.Rel(pw.root, path)
		if err != nil {
			//nolint:nilerr // skip this entry, keep walking
			return nil
		}
		info, err := d.Info()
		if err != nil {
			logging.Warn("Error getting info for %s: %v", path, err)
			pw.errorsCount.Add(1)
			return nil
		}

		select {
		case pw.jobs <- fileJob{path: path, info: info, relPath: relPath}:
		case <-ctx.Done():
			return fs.SkipAll
		}
		return nil
	})
	if err == fs.SkipAll {
		return nil
	}
	return err
}

func (pw *ParallelWalker) worker(ctx context.Context) {
	defer pw.wg.Done()

	for job := range pw.jobs {
		if ctx.Err() != nil {
			continue
		}
		pw.filesSeen.Add(1)

		c := classify(job)
		if c == nil {
			continue
		}
		pw.results <- c
	}
}

func classify(job fileJob) *Candidate {
	if !job.info.Mode().IsRegular() {
		return nil
	}
	ext := mediatypes.Ext(job.info.Name())
	fileType := mediatypes.GetFileType(ext)
	if fileType == mediatypes.FileTypeOther {
		return nil
	}
	return &Candidate{
		Path:     job.path,
		RelPath:  filepath.ToSlash(job.relPath),
		Size:     job.info.Size(),
		MimeType: mediatypes.GetMimeType(ext),
		Type:     fileType,
	}
}

// Stats returns the files seen, folders seen and access errors so far.
func (pw *ParallelWalker) Stats() (files, folders, errors int64) {
	return pw.filesSeen.Load(), pw.foldersSeen.Load(), pw.errorsCount.Load()
}
