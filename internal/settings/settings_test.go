package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	values map[string]string
	getErr error
}

func newMapStore() *mapStore { return &mapStore{values: map[string]string{}} }

func (s *mapStore) GetMetadata(_ context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	v, ok := s.values[key]
	if !ok {
		return "", sql.ErrNoRows
	}
	return v, nil
}

func (s *mapStore) SetMetadata(_ context.Context, key, value string) error {
	s.values[key] = value
	return nil
}

type recorder struct{ lines []string }

func (r *recorder) Record(_ context.Context, format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func TestParseDimensions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []int
	}{
		{"defaults", "1920,1200,600,300", []int{1920, 1200, 600, 300}},
		{"keeps order", "300,1920,600", []int{300, 1920, 600}},
		{"no dedupe", "600,600", []int{600, 600}},
		{"truncates to four", "1,2,3,4,5,6", []int{1, 2, 3, 4}},
		{"drops out of range", "0,10000,9999,-5,800", []int{9999, 800}},
		{"coerces leading digits", " 600px , abc, 12.5", []int{600, 12}},
		{"empty", "", []int{}},
		{"garbage", "a,b,,", []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDimensions(tt.input)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), MaxDimensions)
			for _, d := range got {
				assert.True(t, d > 0 && d <= MaxDimension)
			}
		})
	}
}

func TestResolveDefaults(t *testing.T) {
	m := NewManager(newMapStore(), nil)
	cfg := m.Resolve(context.Background())

	assert.Equal(t, ModeWidth, cfg.Mode)
	assert.Equal(t, []int{1920, 1200, 600, 300}, cfg.Dimensions)
	assert.Equal(t, []int{1080, 720, 480, 360}, cfg.Heights)
	assert.Equal(t, 80, cfg.Quality)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, FormatWebP, cfg.Format)
	assert.Zero(t, cfg.MinSizeKB)
	assert.False(t, cfg.PreserveOriginals)
	assert.False(t, cfg.DisableAutoConvert)
	assert.Equal(t, 1920, cfg.Primary())
	assert.Equal(t, []int{1200, 600, 300}, cfg.Additional())
}

func TestResolveFallsBackOnStoreError(t *testing.T) {
	store := newMapStore()
	store.getErr = errors.New("database is locked")
	cfg := NewManager(store, nil).Resolve(context.Background())

	assert.Equal(t, 80, cfg.Quality)
	assert.Equal(t, []int{1920, 1200, 600, 300}, cfg.Dimensions)
}

func TestResolveStoredValues(t *testing.T) {
	store := newMapStore()
	store.values[KeyMaxHeights] = "800,0,400"
	store.values[KeyResizeMode] = "height"
	store.values[KeyQuality] = "75"
	store.values[KeyUseAVIF] = "1"
	store.values[KeyMinSizeKB] = "64"
	store.values[KeyPreserveOriginals] = "true"

	cfg := NewManager(store, nil).Resolve(context.Background())

	assert.Equal(t, ModeHeight, cfg.Mode)
	assert.Equal(t, []int{800, 400}, cfg.Dimensions)
	assert.Equal(t, 75, cfg.Quality)
	assert.Equal(t, FormatAVIF, cfg.Format)
	assert.Equal(t, int64(64*1024), cfg.MinSizeBytes())
	assert.True(t, cfg.PreserveOriginals)
}

func TestResolveEmptyListFallsBack(t *testing.T) {
	store := newMapStore()
	store.values[KeyMaxWidths] = "abc"
	cfg := NewManager(store, nil).Resolve(context.Background())
	assert.Equal(t, []int{1920, 1200, 600, 300}, cfg.Dimensions)
}

func TestPageBudget(t *testing.T) {
	assert.Equal(t, 30*time.Second, Config{BatchSize: 1}.PageBudget())
	assert.Equal(t, 30*time.Second, Config{BatchSize: 3}.PageBudget())
	assert.Equal(t, 50*time.Second, Config{BatchSize: 5}.PageBudget())
	assert.Equal(t, 500*time.Second, Config{BatchSize: 50}.PageBudget())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "image/webp", FormatWebP.MimeType())
	assert.Equal(t, "avif", FormatAVIF.Ext())
	assert.Equal(t, FormatAVIF, FormatWebP.Alternate())
	assert.Equal(t, FormatWebP, FormatAVIF.Alternate())
}

func TestSetters(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	rec := &recorder{}
	m := NewManager(store, rec)

	require.NoError(t, m.SetWidths(ctx, "800, 400,abc"))
	require.NoError(t, m.SetQuality(ctx, 75))
	require.NoError(t, m.SetQuality(ctx, 75))
	require.NoError(t, m.SetBatchSize(ctx, 10))
	require.NoError(t, m.SetMode(ctx, ModeHeight))
	require.NoError(t, m.SetPreserveOriginals(ctx, true))
	require.NoError(t, m.SetDisableAutoConvert(ctx, true))
	require.NoError(t, m.SetMinSizeKB(ctx, 32))
	require.NoError(t, m.SetFormat(ctx, FormatAVIF))

	assert.Equal(t, "800,400", store.values[KeyMaxWidths])
	assert.Equal(t, []string{
		"Max widths set to: 800, 400px",
		"Quality set to: 75",
		"Batch size set to: 10",
		"Resize mode set to: height",
		"Preserve originals set to: Yes",
		"Auto-conversion on upload set to: Disabled",
		"Minimum size threshold set to: 32 KB",
		"Conversion format set to: AVIF",
		"Please reconvert all images to ensure consistency after changing formats.",
	}, rec.lines)

	cfg := m.Resolve(ctx)
	assert.Equal(t, FormatAVIF, cfg.Format)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, ModeHeight, cfg.Mode)
}

func TestSettersRejectInvalid(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMapStore(), nil)

	assert.ErrorIs(t, m.SetWidths(ctx, "0,abc"), ErrInvalid)
	assert.ErrorIs(t, m.SetQuality(ctx, 101), ErrInvalid)
	assert.ErrorIs(t, m.SetBatchSize(ctx, 0), ErrInvalid)
	assert.ErrorIs(t, m.SetBatchSize(ctx, 51), ErrInvalid)
	assert.ErrorIs(t, m.SetMode(ctx, "diagonal"), ErrInvalid)
	assert.ErrorIs(t, m.SetMinSizeKB(ctx, -1), ErrInvalid)
	assert.ErrorIs(t, m.SetFormat(ctx, "gif"), ErrInvalid)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	m := NewManager(store, nil)

	quality := 60
	format := "avif"
	require.NoError(t, m.Apply(ctx, Update{Quality: &quality, Format: &format}))

	cfg := m.Resolve(ctx)
	assert.Equal(t, 60, cfg.Quality)
	assert.Equal(t, FormatAVIF, cfg.Format)
}

func TestApplyValidation(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	m := NewManager(store, nil)

	tooHigh := 150
	err := m.Apply(ctx, Update{Quality: &tooHigh})
	assert.ErrorIs(t, err, ErrInvalid)

	mode := "diagonal"
	assert.ErrorIs(t, m.Apply(ctx, Update{ResizeMode: &mode}), ErrInvalid)

	batch := 51
	assert.ErrorIs(t, m.Apply(ctx, Update{BatchSize: &batch}), ErrInvalid)

	assert.Empty(t, store.values)
}

func TestResetDefaults(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	rec := &recorder{}
	m := NewManager(store, rec)

	require.NoError(t, m.SetQuality(ctx, 10))
	require.NoError(t, m.SetFormat(ctx, FormatAVIF))
	require.NoError(t, m.ResetDefaults(ctx))

	cfg := m.Resolve(ctx)
	assert.Equal(t, 80, cfg.Quality)
	assert.Equal(t, FormatWebP, cfg.Format)
	assert.Equal(t, "Settings reset to defaults", rec.lines[len(rec.lines)-1])
}

func TestCompletionFlag(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMapStore(), nil)

	assert.False(t, m.Complete(ctx))
	require.NoError(t, m.SetComplete(ctx, true))
	assert.True(t, m.Complete(ctx))
	require.NoError(t, m.SetComplete(ctx, false))
	assert.False(t, m.Complete(ctx))
}
