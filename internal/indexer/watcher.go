package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"media-refiner/internal/batch"
	"media-refiner/internal/layout"
	"media-refiner/internal/logging"
	"media-refiner/internal/mediatypes"
	"media-refiner/internal/metrics"
)

const defaultDebounce = 2 * time.Second

// UploadHook converts a freshly registered asset.
type UploadHook interface {
	HandleUpload(ctx context.Context, id int64) (batch.Outcome, error)
}

// Serializer is implemented by hooks whose work must not overlap other
// writers of the uploads tree. The watcher then registers and converts
// each settled file inside Exclusive.
type Serializer interface {
	Exclusive(ctx context.Context, fn func(context.Context) error) error
}

// Watcher registers files as they appear in the uploads tree and hands new
// images to the upload hook. Events for one path are debounced so a file
// still being written is only registered once it settles.
type Watcher struct {
	idx      *Indexer
	hook     UploadHook
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup

	ready chan struct{}
}

// NewWatcher creates a watcher. hook may be nil, in which case files are
// only registered.
func NewWatcher(idx *Indexer, hook UploadHook) *Watcher {
	return &Watcher{
		idx:      idx,
		hook:     hook,
		debounce: defaultDebounce,
		pending:  make(map[string]*time.Timer),
		ready:    make(chan struct{}),
	}
}

// SetDebounce sets how long a path must be quiet before it is registered.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Ready is closed once the initial directories are being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches the uploads tree until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
	}()

	count := w.addDirectories(ctx, watcher, w.idx.root, false)
	logging.Info("Upload watcher started, watching %d directories", count)
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			w.wg.Wait()
			logging.Info("Upload watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

// addDirectories watches root and every visible directory below it. When
// schedule is set, files already present are queued too; this covers files
// written into a new directory before it was watched.
func (w *Watcher) addDirectories(ctx context.Context, watcher *fsnotify.Watcher, root string, schedule bool) int {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			//nolint:nilerr // keep walking past unreadable entries
			return nil
		}
		if path != root && layout.IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if schedule && watchable(path) {
				w.schedule(ctx, path)
			}
			return nil
		}
		if addErr := watcher.Add(path); addErr != nil {
			logging.Warn("failed to add path to watcher %s: %v", path, addErr)
			metrics.WatcherErrors.Inc()
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		logging.Error("failed to walk %s for watcher: %v", root, err)
		metrics.WatcherErrors.Inc()
	}
	return count
}

func (w *Watcher) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	if layout.IsHidden(filepath.Base(event.Name)) {
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			n := w.addDirectories(ctx, watcher, event.Name, true)
			logging.Debug("Watching %d new directories under %s", n, event.Name)
		}
		return
	}
	if watchable(event.Name) {
		w.schedule(ctx, event.Name)
	}
}

func eventType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}

func watchable(path string) bool {
	return mediatypes.GetFileType(mediatypes.Ext(path)) != mediatypes.FileTypeOther
}

// schedule (re)arms the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}

	var t *time.Timer
	w.wg.Add(1)
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.process(ctx, path)
	})
	w.pending[path] = t
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	s, ok := w.hook.(Serializer)
	if !ok {
		w.handle(ctx, path)
		return
	}
	err := s.Exclusive(ctx, func(ctx context.Context) error {
		w.handle(ctx, path)
		return nil
	})
	if err != nil {
		logging.Debug("Skipped %s: %v", path, err)
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	id, created, err := w.idx.Register(ctx, path, "watch")
	if err != nil {
		logging.Warn("Failed to register %s: %v", path, err)
		return
	}
	if !created || w.hook == nil {
		return
	}
	if mediatypes.GetFileType(mediatypes.Ext(path)) != mediatypes.FileTypeImage {
		return
	}

	outcome, err := w.hook.HandleUpload(ctx, id)
	if err != nil {
		logging.Warn("Upload hook failed for asset %d: %v", id, err)
		return
	}
	logging.Debug("Upload hook for asset %d: %s", id, outcome)
}
