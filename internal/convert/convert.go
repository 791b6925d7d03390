// Package convert produces the size variants and thumbnail of one source
// image with all-or-nothing semantics.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"media-refiner/internal/activity"
	"media-refiner/internal/codec"
	"media-refiner/internal/filesystem"
	"media-refiner/internal/layout"
	"media-refiner/internal/logging"
	"media-refiner/internal/metrics"
	"media-refiner/internal/settings"
)

var (
	// ErrEditorOpenFailed wraps the codec's diagnostic when a source cannot
	// be decoded.
	ErrEditorOpenFailed = errors.New("image editor failed to open source")
	// ErrConversionFailed covers resize, encode and commit failures.
	ErrConversionFailed = errors.New("conversion failed")
)

// Derivative is one additional size written by Convert.
type Derivative struct {
	Dimension int
	Path      string
}

// Result lists every file a successful conversion put in place.
type Result struct {
	Source      string
	Primary     string
	Derivatives []Derivative
	Thumbnail   string
}

// Converter runs conversions against a codec.
type Converter struct {
	codec   codec.Codec
	deleter *filesystem.Deleter
	journal activity.Recorder
}

// New creates a Converter. codec may be nil, in which case every call fails
// with codec.ErrNoCodecAvailable.
func New(c codec.Codec, deleter *filesystem.Deleter, journal activity.Recorder) *Converter {
	if journal == nil {
		journal = activity.Discard
	}
	if deleter == nil {
		deleter = filesystem.NewDeleter(filesystem.DefaultDeleteConfig())
	}
	return &Converter{codec: c, deleter: deleter, journal: journal}
}

// Codec returns the codec in use, or nil.
func (c *Converter) Codec() codec.Codec {
	return c.codec
}

// staged pairs a hidden work file with the name it is committed to.
type staged struct {
	tmp, final string
}

// Convert writes the primary, every additional size and the thumbnail for
// source. Files are encoded to hidden staging siblings and renamed into
// place only once all of them exist, the primary last. On any failure every
// file produced by this call is removed and source is left untouched.
func (c *Converter) Convert(ctx context.Context, source string, cfg settings.Config) (res Result, err error) {
	start := time.Now()
	name := filepath.Base(source)
	status := "success"
	defer func() {
		metrics.ConversionsTotal.WithLabelValues(string(cfg.Format), status).Inc()
		metrics.ConversionDuration.WithLabelValues(string(cfg.Format)).Observe(time.Since(start).Seconds())
	}()

	if err := codec.Check(c.codec, cfg.Format); err != nil {
		switch {
		case errors.Is(err, codec.ErrNoCodecAvailable):
			status = "no_codec"
			c.journal.Record(ctx, "Error: No image library available for %s", name)
		default:
			status = "unsupported"
			c.journal.Record(ctx, "Error: %s not supported on this server for %s", cfg.Format.Label(), name)
		}
		return Result{}, err
	}
	if len(cfg.Dimensions) == 0 {
		status = "encode_failed"
		return Result{}, fmt.Errorf("%w: no dimensions configured", ErrConversionFailed)
	}

	var work []staged
	fail := func(s string, cause error) (Result, error) {
		status = s
		c.rollback(work)
		metrics.ConversionRollbacksTotal.Inc()
		c.journal.Record(ctx, "Error: Conversion failed for %s, rolling back", name)
		c.journal.Record(ctx, "Original preserved: %s", name)
		return Result{}, cause
	}

	res = Result{Source: source}
	written := make(map[string]bool, len(cfg.Dimensions))
	for i, dim := range cfg.Dimensions {
		if err := ctx.Err(); err != nil {
			return fail("encode_failed", fmt.Errorf("%w: %v", ErrConversionFailed, err))
		}

		final := layout.PrimaryPath(source, cfg.Format)
		if i > 0 {
			final = layout.DerivativePath(source, dim, cfg.Format)
		}
		// A repeated dimension names the same file; it is written once.
		if written[final] {
			continue
		}
		written[final] = true
		tmp := layout.StagingPath(final)
		work = append(work, staged{tmp: tmp, final: final})

		resized, err := c.encodeSized(source, tmp, dim, cfg)
		if err != nil {
			if errors.Is(err, ErrEditorOpenFailed) {
				c.journal.Record(ctx, "Error: Image editor failed for %s - %v", name, err)
				return fail("open_failed", err)
			}
			c.journal.Record(ctx, "Error: Conversion failed for %s - %v", name, err)
			return fail("encode_failed", err)
		}

		if resized {
			c.journal.Record(ctx, "Converted: %s → %s (resized to %dpx %s, quality %d)",
				name, filepath.Base(final), dim, cfg.Mode, cfg.Quality)
		} else {
			c.journal.Record(ctx, "Converted: %s → %s (quality %d)", name, filepath.Base(final), cfg.Quality)
		}

		if i == 0 {
			res.Primary = final
		} else {
			res.Derivatives = append(res.Derivatives, Derivative{Dimension: dim, Path: final})
		}
	}

	thumb := layout.ThumbnailPath(source, cfg.Format)
	thumbTmp := layout.StagingPath(thumb)
	work = append(work, staged{tmp: thumbTmp, final: thumb})
	if err := c.encodeThumbnail(source, thumbTmp, cfg); err != nil {
		c.journal.Record(ctx, "Error: Thumbnail generation failed for %s - %v", name, err)
		if errors.Is(err, ErrEditorOpenFailed) {
			return fail("open_failed", err)
		}
		return fail("encode_failed", err)
	}
	res.Thumbnail = thumb

	if err := c.commit(work); err != nil {
		return fail("encode_failed", err)
	}

	metrics.VariantsWrittenTotal.WithLabelValues("primary").Inc()
	metrics.VariantsWrittenTotal.WithLabelValues("additional").Add(float64(len(res.Derivatives)))
	metrics.VariantsWrittenTotal.WithLabelValues("thumbnail").Inc()
	c.journal.Record(ctx, "Generated thumbnail: %s", filepath.Base(thumb))
	logging.Debug("Converted %s in %v", source, time.Since(start))
	return res, nil
}

// encodeSized writes source scaled down to dim along the mode axis.
func (c *Converter) encodeSized(source, dst string, dim int, cfg settings.Config) (bool, error) {
	h, err := c.codec.Open(source)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrEditorOpenFailed, err)
	}
	defer h.Close()

	w, ht := h.Size()
	resized := false
	switch {
	case cfg.Mode == settings.ModeHeight && ht > dim:
		err = h.Resize(0, dim, false)
		resized = true
	case cfg.Mode != settings.ModeHeight && w > dim:
		err = h.Resize(dim, 0, false)
		resized = true
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if err := h.Encode(dst, cfg.Format, cfg.Quality); err != nil {
		return false, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return resized, nil
}

func (c *Converter) encodeThumbnail(source, dst string, cfg settings.Config) error {
	h, err := c.codec.Open(source)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEditorOpenFailed, err)
	}
	defer h.Close()

	if err := h.Resize(settings.ThumbnailSize, settings.ThumbnailSize, true); err != nil {
		return fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if err := h.Encode(dst, cfg.Format, cfg.Quality); err != nil {
		return fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return nil
}

// commit renames staged files into place with the first entry, the
// primary, renamed last.
func (c *Converter) commit(work []staged) error {
	order := append(append([]staged{}, work[1:]...), work[0])
	for i, s := range order {
		if err := os.Rename(s.tmp, s.final); err != nil {
			// Entries before i were renamed already; point their tmp at the
			// final name so rollback removes them.
			for j := 0; j < i; j++ {
				order[j].tmp = order[j].final
			}
			copy(work, order)
			return fmt.Errorf("%w: commit %s: %w", ErrConversionFailed, filepath.Base(s.final), err)
		}
	}
	return nil
}

func (c *Converter) rollback(work []staged) {
	for _, s := range work {
		if err := c.deleter.Delete(s.tmp); err != nil {
			logging.Warn("Rollback could not remove %s: %v", s.tmp, err)
		}
	}
}

// Thumbnail writes the 150x150 crop of src to dst through a staging file.
func (c *Converter) Thumbnail(ctx context.Context, src, dst string, cfg settings.Config) error {
	if err := codec.Check(c.codec, cfg.Format); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp := layout.StagingPath(dst)
	if err := c.encodeThumbnail(src, tmp, cfg); err != nil {
		c.rollback([]staged{{tmp: tmp}})
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		c.rollback([]staged{{tmp: tmp}})
		return fmt.Errorf("%w: commit %s: %w", ErrConversionFailed, filepath.Base(dst), err)
	}
	metrics.VariantsWrittenTotal.WithLabelValues("thumbnail").Inc()
	return nil
}

// Probe returns the pixel size of path as the codec decodes it.
func (c *Converter) Probe(path string) (int, int, error) {
	if c.codec == nil {
		return 0, 0, codec.ErrNoCodecAvailable
	}
	h, err := c.codec.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrEditorOpenFailed, err)
	}
	defer h.Close()
	w, ht := h.Size()
	return w, ht, nil
}
