package codec

import (
	"fmt"
	"os"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"media-refiner/internal/logging"
	"media-refiner/internal/settings"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
)

// startVips initializes libvips once per process. govips cannot restart
// after Shutdown, so later calls are no-ops.
func startVips(concurrency int) error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Configure vips logging before Startup so LOG_LEVEL applies to libvips
	// messages emitted during init.
	var vipsLogLevel vips.LogLevel
	var logHandler func(string, vips.LogLevel, string)

	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLogLevel = vips.LogLevelInfo
		logHandler = func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}
	case logging.LevelWarn, logging.LevelError:
		vipsLogLevel = vips.LogLevelError
		logHandler = func(domain string, level vips.LogLevel, msg string) {
			if level == vips.LogLevelError || level == vips.LogLevelCritical {
				logging.Error("[%s] %s", domain, msg)
			}
		}
	default:
		vipsLogLevel = vips.LogLevelWarning
		logHandler = func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			}
		}
	}

	vips.LoggingSettings(logHandler, vipsLogLevel)

	if concurrency < 1 {
		concurrency = 1
	}
	vips.Startup(&vips.Config{
		ConcurrencyLevel: concurrency,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	logging.Info("libvips initialized successfully (version: %s, threads: %d)", vips.Version, concurrency)
	return nil
}

// ShutdownVips releases libvips. Call once at process exit.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		logging.Info("libvips shutdown complete")
	}
}

// Vips is the libvips-backed codec.
type Vips struct{}

// NewVips starts libvips if needed and returns the codec.
func NewVips(concurrency int) (*Vips, error) {
	if err := startVips(concurrency); err != nil {
		return nil, err
	}
	return &Vips{}, nil
}

func (v *Vips) Name() string { return string(KindVips) }

// Supports asks libvips whether a saver for format is compiled in.
func (v *Vips) Supports(format settings.Format) bool {
	switch format {
	case settings.FormatWebP:
		return vips.IsTypeSupported(vips.ImageTypeWEBP)
	case settings.FormatAVIF:
		return vips.IsTypeSupported(vips.ImageTypeAVIF)
	}
	return false
}

func (v *Vips) Open(path string) (Handle, error) {
	params := vips.NewImportParams()
	params.AutoRotate.Set(true)
	ref, err := vips.LoadImageFromFile(path, params)
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	// Loaders that ignore the autorotate option still carry the EXIF tag.
	if err := ref.AutoRotate(); err != nil {
		ref.Close()
		return nil, fmt.Errorf("vips failed to orient image: %w", err)
	}
	return &vipsHandle{ref: ref}, nil
}

type vipsHandle struct {
	ref *vips.ImageRef
}

func (h *vipsHandle) Size() (int, int) {
	return h.ref.Width(), h.ref.Height()
}

func (h *vipsHandle) Resize(width, height int, crop bool) error {
	if crop {
		if err := h.ref.Thumbnail(width, height, vips.InterestingCentre); err != nil {
			return fmt.Errorf("vips crop failed: %w", err)
		}
		return nil
	}

	w, hgt := h.Size()
	tw, th := scaleToBox(w, hgt, width, height)
	if tw == w && th == hgt {
		return nil
	}
	scale := float64(tw) / float64(w)
	if width <= 0 {
		scale = float64(th) / float64(hgt)
	}
	if err := h.ref.Resize(scale, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("vips resize failed: %w", err)
	}
	return nil
}

func (h *vipsHandle) Encode(path string, format settings.Format, quality int) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case settings.FormatWebP:
		params := vips.NewWebpExportParams()
		params.Quality = quality
		params.StripMetadata = false
		data, _, err = h.ref.ExportWebp(params)
	case settings.FormatAVIF:
		params := vips.NewAvifExportParams()
		params.Quality = quality
		data, _, err = h.ref.ExportAvif(params)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("vips %s export failed: %w", format, err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (h *vipsHandle) Close() {
	h.ref.Close()
}
