// Package activity keeps the operator-facing journal of conversion and
// cleanup outcomes.
package activity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"media-refiner/internal/logging"
)

// MaxEntries bounds the journal. The oldest entries are evicted first.
const MaxEntries = 500

// ClearedMessage is the single entry left behind by Clear.
const ClearedMessage = "Log cleared"

// Store persists journal entries.
type Store interface {
	AppendLog(ctx context.Context, messages []string, limit int) error
	ListLog(ctx context.Context) ([]string, error)
	ReplaceLog(ctx context.Context, messages []string) error
}

// Journal is a capped, append-only log of operational messages.
type Journal struct {
	store Store
	mu    sync.Mutex
}

// New creates a Journal over store.
func New(store Store) *Journal {
	return &Journal{store: store}
}

// Record formats and appends a message, mirroring it to the process log.
// Messages starting with "Error:" are logged at error level. A failure to
// persist is logged and otherwise ignored.
func (j *Journal) Record(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	if strings.HasPrefix(msg, "Error:") {
		logging.Error("%s", strings.TrimSpace(strings.TrimPrefix(msg, "Error:")))
	} else {
		logging.Info("%s", msg)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.store.AppendLog(ctx, []string{msg}, MaxEntries); err != nil {
		logging.Warn("Failed to persist activity log entry: %v", err)
	}
}

// Entries returns the journal oldest first.
func (j *Journal) Entries(ctx context.Context) ([]string, error) {
	return j.store.ListLog(ctx)
}

// Clear empties the journal, leaving only ClearedMessage.
func (j *Journal) Clear(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.store.ReplaceLog(ctx, []string{ClearedMessage}); err != nil {
		return fmt.Errorf("clear activity log: %w", err)
	}
	logging.Info("Activity log cleared")
	return nil
}

// Recorder is the subset of Journal other packages depend on.
type Recorder interface {
	Record(ctx context.Context, format string, args ...any)
}

// Discard is a Recorder that drops every message.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, string, ...any) {}
