// Package exclusion keeps the set of asset ids that conversion and cleanup
// must leave alone.
package exclusion

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"media-refiner/internal/activity"
)

// Key is the metadata key holding the JSON id list.
const Key = "webp_excluded_images"

// Store is the key-value option storage.
type Store interface {
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error
}

// Registry is a persisted, ordered set of excluded asset ids.
type Registry struct {
	store   Store
	journal activity.Recorder
	mu      sync.Mutex
}

// New creates a Registry. A nil journal discards messages.
func New(store Store, journal activity.Recorder) *Registry {
	if journal == nil {
		journal = activity.Discard
	}
	return &Registry{store: store, journal: journal}
}

// List returns the excluded ids in insertion order.
func (r *Registry) List(ctx context.Context) ([]int64, error) {
	raw, err := r.store.GetMetadata(ctx, Key)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && raw == "") {
		return []int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read exclusions: %w", err)
	}

	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode exclusions: %w", err)
	}
	return ids, nil
}

// Set returns the excluded ids as a lookup set.
func (r *Registry) Set(ctx context.Context) (map[int64]bool, error) {
	ids, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// Contains reports whether id is excluded.
func (r *Registry) Contains(ctx context.Context, id int64) (bool, error) {
	ids, err := r.List(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, id), nil
}

// Add excludes id. It returns false when id is not positive or already
// present.
func (r *Registry) Add(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.List(ctx)
	if err != nil {
		return false, err
	}
	if slices.Contains(ids, id) {
		return false, nil
	}
	if err := r.save(ctx, append(ids, id)); err != nil {
		return false, err
	}
	r.journal.Record(ctx, "Excluded image added: Asset ID %d", id)
	return true, nil
}

// Remove re-includes id. It returns false when id was not excluded.
func (r *Registry) Remove(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.List(ctx)
	if err != nil {
		return false, err
	}
	i := slices.Index(ids, id)
	if i < 0 {
		return false, nil
	}
	if err := r.save(ctx, slices.Delete(ids, i, i+1)); err != nil {
		return false, err
	}
	r.journal.Record(ctx, "Excluded image removed: Asset ID %d", id)
	return true, nil
}

func (r *Registry) save(ctx context.Context, ids []int64) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := r.store.SetMetadata(ctx, Key, string(b)); err != nil {
		return fmt.Errorf("save exclusions: %w", err)
	}
	return nil
}
