// Package codec adapts image libraries to the small surface the converter
// needs: open a raster, read its size, resize or crop it, and encode it to
// WebP or AVIF.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"media-refiner/internal/logging"
	"media-refiner/internal/metrics"
	"media-refiner/internal/settings"
)

var (
	// ErrNoCodecAvailable means no image library is usable on this host.
	ErrNoCodecAvailable = errors.New("no image codec available")
	// ErrUnsupportedFormat means the active codec cannot encode the
	// requested target format.
	ErrUnsupportedFormat = errors.New("output format not supported by codec")
)

// Codec opens images for processing.
type Codec interface {
	Name() string
	Supports(format settings.Format) bool
	Open(path string) (Handle, error)
}

// Handle is one decoded image. It is not safe for concurrent use.
type Handle interface {
	// Size returns the current pixel dimensions.
	Size() (width, height int)
	// Resize scales the image. With crop unset, a zero width or height
	// keeps the aspect ratio along that axis. With crop set, the image is
	// scaled to cover width x height and centre-cropped to exactly that box.
	Resize(width, height int, crop bool) error
	// Encode writes the image to path in format at quality 0-100.
	Encode(path string, format settings.Format, quality int) error
	Close()
}

// Kind names a codec implementation.
type Kind string

const (
	KindAuto    Kind = "auto"
	KindVips    Kind = "vips"
	KindImaging Kind = "imaging"
	KindNone    Kind = "none"
)

// Options configures codec selection.
type Options struct {
	// Concurrency is the libvips worker thread count.
	Concurrency int
	// FFmpegPath is used by the imaging codec for AVIF.
	FFmpegPath string
}

// Select returns the codec for kind. KindNone yields a nil codec, which the
// converter reports as ErrNoCodecAvailable. KindAuto prefers libvips and
// falls back to the pure-Go imaging codec.
func Select(kind Kind, opts Options) (Codec, error) {
	var c Codec

	switch Kind(strings.ToLower(string(kind))) {
	case KindNone:
		logging.Warn("Image codec disabled, conversions will fail")
		return nil, nil
	case KindVips:
		v, err := NewVips(opts.Concurrency)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoCodecAvailable, err)
		}
		c = v
	case KindImaging:
		c = NewImaging(opts.FFmpegPath)
	case KindAuto, "":
		v, err := NewVips(opts.Concurrency)
		if err != nil {
			logging.Warn("libvips unavailable, using pure-Go codec: %v", err)
			c = NewImaging(opts.FFmpegPath)
		} else {
			c = v
		}
	default:
		return nil, fmt.Errorf("unknown codec %q", kind)
	}

	publishCapabilities(c)
	return c, nil
}

func publishCapabilities(c Codec) {
	for _, f := range []settings.Format{settings.FormatWebP, settings.FormatAVIF} {
		if c.Supports(f) {
			metrics.CodecInfo.WithLabelValues(c.Name(), string(f)).Set(1)
			logging.Info("Codec %s: %s encoding available", c.Name(), f.Label())
		} else {
			metrics.CodecInfo.WithLabelValues(c.Name(), string(f)).Set(0)
			logging.Warn("Codec %s: %s encoding unavailable", c.Name(), f.Label())
		}
	}
}

// Check returns ErrNoCodecAvailable or ErrUnsupportedFormat when c cannot
// produce format.
func Check(c Codec, format settings.Format) error {
	if c == nil {
		return ErrNoCodecAvailable
	}
	if !c.Supports(format) {
		return fmt.Errorf("%w: %s via %s", ErrUnsupportedFormat, format.Label(), c.Name())
	}
	return nil
}

// scaleToBox returns the proportional size for a resize request where
// either bound may be zero.
func scaleToBox(srcW, srcH, width, height int) (int, int) {
	switch {
	case width > 0 && height > 0:
		return width, height
	case width > 0:
		return width, max(1, (srcH*width+srcW/2)/srcW)
	case height > 0:
		return max(1, (srcW*height+srcH/2)/srcH), height
	default:
		return srcW, srcH
	}
}
