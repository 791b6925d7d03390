package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"media-refiner/internal/activity"
	"media-refiner/internal/logging"
)

// ErrInvalid is returned by setters for out-of-range values.
var ErrInvalid = errors.New("invalid setting")

// Store is the key-value option storage.
type Store interface {
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error
}

// Manager reads and writes conversion settings.
type Manager struct {
	store    Store
	journal  activity.Recorder
	validate *validator.Validate
}

// NewManager creates a Manager. A nil journal discards messages.
func NewManager(store Store, journal activity.Recorder) *Manager {
	if journal == nil {
		journal = activity.Discard
	}
	return &Manager{
		store:    store,
		journal:  journal,
		validate: validator.New(),
	}
}

// Resolve returns the effective configuration. It never fails: missing or
// unreadable values fall back to defaults.
func (m *Manager) Resolve(ctx context.Context) Config {
	cfg := Config{
		Widths:             ParseDimensions(m.get(ctx, KeyMaxWidths, DefaultWidths)),
		Heights:            ParseDimensions(m.get(ctx, KeyMaxHeights, DefaultHeights)),
		Mode:               ModeWidth,
		Quality:            m.getInt(ctx, KeyQuality, DefaultQuality),
		BatchSize:          m.getInt(ctx, KeyBatchSize, DefaultBatchSize),
		MinSizeKB:          m.getInt(ctx, KeyMinSizeKB, 0),
		PreserveOriginals:  parseBool(m.get(ctx, KeyPreserveOriginals, "0")),
		DisableAutoConvert: parseBool(m.get(ctx, KeyDisableAutoConvert, "0")),
		Format:             FormatWebP,
	}

	if len(cfg.Widths) == 0 {
		cfg.Widths = ParseDimensions(DefaultWidths)
	}
	if len(cfg.Heights) == 0 {
		cfg.Heights = ParseDimensions(DefaultHeights)
	}
	if Mode(m.get(ctx, KeyResizeMode, string(ModeWidth))) == ModeHeight {
		cfg.Mode = ModeHeight
	}
	if parseBool(m.get(ctx, KeyUseAVIF, "0")) {
		cfg.Format = FormatAVIF
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	cfg.Dimensions = cfg.Widths
	if cfg.Mode == ModeHeight {
		cfg.Dimensions = cfg.Heights
	}
	return cfg
}

func (m *Manager) get(ctx context.Context, key, def string) string {
	v, err := m.store.GetMetadata(ctx, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logging.Warn("Failed to read setting %s, using default: %v", key, err)
		}
		return def
	}
	return v
}

func (m *Manager) getInt(ctx context.Context, key string, def int) int {
	raw := m.get(ctx, key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (m *Manager) set(ctx context.Context, key, value string) error {
	if err := m.store.SetMetadata(ctx, key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// SetWidths stores a new width list. Input that parses to nothing is
// rejected.
func (m *Manager) SetWidths(ctx context.Context, csv string) error {
	return m.setDimensions(ctx, KeyMaxWidths, "Max widths", csv)
}

// SetHeights stores a new height list. Input that parses to nothing is
// rejected.
func (m *Manager) SetHeights(ctx context.Context, csv string) error {
	return m.setDimensions(ctx, KeyMaxHeights, "Max heights", csv)
}

func (m *Manager) setDimensions(ctx context.Context, key, label, csv string) error {
	dims := ParseDimensions(csv)
	if len(dims) == 0 {
		return fmt.Errorf("%w: no usable dimensions in %q", ErrInvalid, csv)
	}
	if err := m.set(ctx, key, JoinDimensions(dims, ",")); err != nil {
		return err
	}
	m.journal.Record(ctx, "%s set to: %spx", label, JoinDimensions(dims, ", "))
	return nil
}

// SetMode switches the resize axis.
func (m *Manager) SetMode(ctx context.Context, mode Mode) error {
	if mode != ModeWidth && mode != ModeHeight {
		return fmt.Errorf("%w: resize mode %q", ErrInvalid, mode)
	}
	if m.Resolve(ctx).Mode == mode {
		return nil
	}
	if err := m.set(ctx, KeyResizeMode, string(mode)); err != nil {
		return err
	}
	m.journal.Record(ctx, "Resize mode set to: %s", mode)
	return nil
}

// SetQuality stores the encoder quality, 0 to 100.
func (m *Manager) SetQuality(ctx context.Context, quality int) error {
	if quality < 0 || quality > 100 {
		return fmt.Errorf("%w: quality %d", ErrInvalid, quality)
	}
	if m.Resolve(ctx).Quality == quality {
		return nil
	}
	if err := m.set(ctx, KeyQuality, strconv.Itoa(quality)); err != nil {
		return err
	}
	m.journal.Record(ctx, "Quality set to: %d", quality)
	return nil
}

// SetBatchSize stores the page size, 1 to MaxBatchSize.
func (m *Manager) SetBatchSize(ctx context.Context, size int) error {
	if size <= 0 || size > MaxBatchSize {
		return fmt.Errorf("%w: batch size %d", ErrInvalid, size)
	}
	if err := m.set(ctx, KeyBatchSize, strconv.Itoa(size)); err != nil {
		return err
	}
	m.journal.Record(ctx, "Batch size set to: %d", size)
	return nil
}

// SetPreserveOriginals toggles keeping the source after conversion.
func (m *Manager) SetPreserveOriginals(ctx context.Context, preserve bool) error {
	if m.Resolve(ctx).PreserveOriginals == preserve {
		return nil
	}
	if err := m.set(ctx, KeyPreserveOriginals, formatBool(preserve)); err != nil {
		return err
	}
	m.journal.Record(ctx, "Preserve originals set to: %s", yesNo(preserve))
	return nil
}

// SetDisableAutoConvert toggles conversion on upload.
func (m *Manager) SetDisableAutoConvert(ctx context.Context, disable bool) error {
	if m.Resolve(ctx).DisableAutoConvert == disable {
		return nil
	}
	if err := m.set(ctx, KeyDisableAutoConvert, formatBool(disable)); err != nil {
		return err
	}
	state := "Enabled"
	if disable {
		state = "Disabled"
	}
	m.journal.Record(ctx, "Auto-conversion on upload set to: %s", state)
	return nil
}

// SetMinSizeKB stores the minimum source size that qualifies for conversion.
func (m *Manager) SetMinSizeKB(ctx context.Context, kb int) error {
	if kb < 0 {
		return fmt.Errorf("%w: minimum size %d", ErrInvalid, kb)
	}
	if m.Resolve(ctx).MinSizeKB == kb {
		return nil
	}
	if err := m.set(ctx, KeyMinSizeKB, strconv.Itoa(kb)); err != nil {
		return err
	}
	m.journal.Record(ctx, "Minimum size threshold set to: %d KB", kb)
	return nil
}

// SetFormat switches the conversion target.
func (m *Manager) SetFormat(ctx context.Context, format Format) error {
	if format != FormatWebP && format != FormatAVIF {
		return fmt.Errorf("%w: format %q", ErrInvalid, format)
	}
	if m.Resolve(ctx).Format == format {
		return nil
	}
	if err := m.set(ctx, KeyUseAVIF, formatBool(format == FormatAVIF)); err != nil {
		return err
	}
	m.journal.Record(ctx, "Conversion format set to: %s", format.Label())
	m.journal.Record(ctx, "Please reconvert all images to ensure consistency after changing formats.")
	return nil
}

// Update is a partial settings change. Nil fields are left alone.
type Update struct {
	MaxWidths          *string `json:"maxWidths,omitempty"`
	MaxHeights         *string `json:"maxHeights,omitempty"`
	ResizeMode         *string `json:"resizeMode,omitempty" validate:"omitempty,oneof=width height"`
	Quality            *int    `json:"quality,omitempty" validate:"omitempty,min=0,max=100"`
	BatchSize          *int    `json:"batchSize,omitempty" validate:"omitempty,min=1,max=50"`
	PreserveOriginals  *bool   `json:"preserveOriginals,omitempty"`
	DisableAutoConvert *bool   `json:"disableAutoConvert,omitempty"`
	MinSizeKB          *int    `json:"minSizeKB,omitempty" validate:"omitempty,min=0"`
	Format             *string `json:"format,omitempty" validate:"omitempty,oneof=webp avif"`
}

// Apply validates u and then applies each field through its setter. The
// first failing setter stops the update.
func (m *Manager) Apply(ctx context.Context, u Update) error {
	if err := m.validate.Struct(u); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	steps := []func() error{}
	if u.MaxWidths != nil {
		steps = append(steps, func() error { return m.SetWidths(ctx, *u.MaxWidths) })
	}
	if u.MaxHeights != nil {
		steps = append(steps, func() error { return m.SetHeights(ctx, *u.MaxHeights) })
	}
	if u.ResizeMode != nil {
		steps = append(steps, func() error { return m.SetMode(ctx, Mode(*u.ResizeMode)) })
	}
	if u.Quality != nil {
		steps = append(steps, func() error { return m.SetQuality(ctx, *u.Quality) })
	}
	if u.BatchSize != nil {
		steps = append(steps, func() error { return m.SetBatchSize(ctx, *u.BatchSize) })
	}
	if u.PreserveOriginals != nil {
		steps = append(steps, func() error { return m.SetPreserveOriginals(ctx, *u.PreserveOriginals) })
	}
	if u.DisableAutoConvert != nil {
		steps = append(steps, func() error { return m.SetDisableAutoConvert(ctx, *u.DisableAutoConvert) })
	}
	if u.MinSizeKB != nil {
		steps = append(steps, func() error { return m.SetMinSizeKB(ctx, *u.MinSizeKB) })
	}
	if u.Format != nil {
		steps = append(steps, func() error { return m.SetFormat(ctx, Format(*u.Format)) })
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// ResetDefaults writes every conversion setting back to its default.
func (m *Manager) ResetDefaults(ctx context.Context) error {
	defaults := []struct{ key, value string }{
		{KeyMaxWidths, DefaultWidths},
		{KeyMaxHeights, DefaultHeights},
		{KeyResizeMode, string(ModeWidth)},
		{KeyQuality, strconv.Itoa(DefaultQuality)},
		{KeyBatchSize, strconv.Itoa(DefaultBatchSize)},
		{KeyPreserveOriginals, "0"},
		{KeyDisableAutoConvert, "0"},
		{KeyMinSizeKB, "0"},
		{KeyUseAVIF, "0"},
	}
	for _, d := range defaults {
		if err := m.set(ctx, d.key, d.value); err != nil {
			return err
		}
	}
	m.journal.Record(ctx, "Settings reset to defaults")
	return nil
}

// Complete reports whether the last batch run reached the end of the
// catalog.
func (m *Manager) Complete(ctx context.Context) bool {
	return parseBool(m.get(ctx, KeyComplete, "0"))
}

// SetComplete stores the completion flag.
func (m *Manager) SetComplete(ctx context.Context, complete bool) error {
	return m.set(ctx, KeyComplete, formatBool(complete))
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
