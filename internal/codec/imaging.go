package codec

import (
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	// Image format decoders
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/webp" // WebP format support

	"media-refiner/internal/logging"
	"media-refiner/internal/mediatypes"
	"media-refiner/internal/settings"
)

// Imaging is the pure-Go codec. WebP is encoded with libwebp bindings and
// AVIF goes through ffmpeg, which also decodes AVIF sources.
type Imaging struct {
	ffmpeg string
}

// NewImaging returns the imaging codec. ffmpegPath may be a bare command
// name resolved through PATH.
func NewImaging(ffmpegPath string) *Imaging {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Imaging{ffmpeg: ffmpegPath}
}

func (c *Imaging) Name() string { return string(KindImaging) }

func (c *Imaging) Supports(format settings.Format) bool {
	switch format {
	case settings.FormatWebP:
		return true
	case settings.FormatAVIF:
		return c.hasFFmpeg()
	}
	return false
}

func (c *Imaging) hasFFmpeg() bool {
	_, err := exec.LookPath(c.ffmpeg)
	return err == nil
}

func (c *Imaging) Open(path string) (Handle, error) {
	if mediatypes.Ext(path) == "avif" {
		return c.openAVIF(path)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return &imagingHandle{img: img, ffmpeg: c.ffmpeg}, nil
}

// openAVIF decodes the first frame through ffmpeg into a temporary PNG.
func (c *Imaging) openAVIF(path string) (Handle, error) {
	if !c.hasFFmpeg() {
		return nil, fmt.Errorf("cannot decode AVIF without %s", c.ffmpeg)
	}

	tmp, err := os.MkdirTemp("", "refiner-avif-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	frame := filepath.Join(tmp, "frame.png")
	cmd := exec.Command(c.ffmpeg, "-v", "error", "-i", path, "-frames:v", "1", "-y", frame)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w: %s", err, out)
	}

	img, err := imaging.Open(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to open decoded frame: %w", err)
	}
	return &imagingHandle{img: img, ffmpeg: c.ffmpeg}, nil
}

type imagingHandle struct {
	img    image.Image
	ffmpeg string
}

func (h *imagingHandle) Size() (int, int) {
	b := h.img.Bounds()
	return b.Dx(), b.Dy()
}

func (h *imagingHandle) Resize(width, height int, crop bool) error {
	if crop {
		h.img = imaging.Fill(h.img, width, height, imaging.Center, imaging.Lanczos)
		return nil
	}
	if width <= 0 && height <= 0 {
		return nil
	}
	h.img = imaging.Resize(h.img, width, height, imaging.Lanczos)
	return nil
}

func (h *imagingHandle) Encode(path string, format settings.Format, quality int) error {
	switch format {
	case settings.FormatWebP:
		return h.encodeWebP(path, quality)
	case settings.FormatAVIF:
		return h.encodeAVIF(path, quality)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

func (h *imagingHandle) encodeWebP(path string, quality int) error {
	output, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating WebP file: %w", err)
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		output.Close()
		return fmt.Errorf("error creating encoder options: %w", err)
	}

	if err := webp.Encode(output, h.img, options); err != nil {
		output.Close()
		return fmt.Errorf("error encoding WebP image: %w", err)
	}
	return output.Close()
}

// encodeAVIF writes a lossless intermediate and lets ffmpeg's libaom
// encoder produce the AVIF file.
func (h *imagingHandle) encodeAVIF(path string, quality int) error {
	tmp, err := os.MkdirTemp("", "refiner-avif-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	frame := filepath.Join(tmp, "frame.png")
	if err := imaging.Save(h.img, frame); err != nil {
		return fmt.Errorf("error writing intermediate frame: %w", err)
	}

	cmd := exec.Command(h.ffmpeg, "-v", "error", "-i", frame,
		"-c:v", "libaom-av1", "-crf", strconv.Itoa(avifCRF(quality)), "-b:v", "0",
		"-still-picture", "1", "-y", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg AVIF encode failed: %w: %s", err, out)
	}
	logging.Debug("Encoded %s via ffmpeg at crf %d", filepath.Base(path), avifCRF(quality))
	return nil
}

// avifCRF maps quality 0-100 onto libaom's 63-0 constant rate factor.
func avifCRF(quality int) int {
	quality = min(max(quality, 0), 100)
	return 63 - quality*63/100
}

func (h *imagingHandle) Close() {
	h.img = nil
}

// ImageDimensions holds image width and height.
type ImageDimensions struct {
	Width  int
	Height int
}

// GetImageDimensions reads the header of a JPEG, PNG or WebP file without
// decoding pixels.
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}

	return &ImageDimensions{
		Width:  config.Width,
		Height: config.Height,
	}, nil
}
