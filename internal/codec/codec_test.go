package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-refiner/internal/settings"
)

func writeJPEG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, "source.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 90}))
	require.NoError(t, f.Close())
	return path
}

func TestCheck(t *testing.T) {
	assert.ErrorIs(t, Check(nil, settings.FormatWebP), ErrNoCodecAvailable)

	c := NewImaging("/nonexistent/ffmpeg")
	assert.NoError(t, Check(c, settings.FormatWebP))
	assert.ErrorIs(t, Check(c, settings.FormatAVIF), ErrUnsupportedFormat)
}

func TestSelectNone(t *testing.T) {
	c, err := Select(KindNone, Options{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSelectImaging(t *testing.T) {
	c, err := Select(KindImaging, Options{FFmpegPath: "/nonexistent/ffmpeg"})
	require.NoError(t, err)
	assert.Equal(t, "imaging", c.Name())
}

func TestSelectUnknown(t *testing.T) {
	_, err := Select("gimp", Options{})
	assert.Error(t, err)
}

func TestScaleToBox(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		w, h         int
		wantW, wantH int
	}{
		{"width only", 1600, 1200, 800, 0, 800, 600},
		{"height only", 1600, 1200, 0, 600, 800, 600},
		{"both", 1600, 1200, 150, 150, 150, 150},
		{"neither", 1600, 1200, 0, 0, 1600, 1200},
		{"rounds", 1000, 333, 500, 0, 500, 167},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := scaleToBox(tt.srcW, tt.srcH, tt.w, tt.h)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestAvifCRF(t *testing.T) {
	assert.Equal(t, 63, avifCRF(0))
	assert.Equal(t, 0, avifCRF(100))
	assert.Equal(t, 13, avifCRF(80))
	assert.Equal(t, 0, avifCRF(150))
}

// writeRotatedJPEG writes a w x h JPEG tagged with EXIF orientation 6, so
// it displays as h x w.
func writeRotatedJPEG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	data := buf.Bytes()

	app1 := []byte{
		0xFF, 0xE1, 0x00, 0x22,
		'E', 'x', 'i', 'f', 0, 0,
		'M', 'M', 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08,
		0x00, 0x01,
		0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, 0x06, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	out := append(append(append([]byte{}, data[:2]...), app1...), data[2:]...)

	path := filepath.Join(dir, "rotated.jpg")
	require.NoError(t, os.WriteFile(path, out, 0o644))
	return path
}

func TestImagingAppliesOrientation(t *testing.T) {
	src := writeRotatedJPEG(t, t.TempDir(), 40, 20)

	h, err := NewImaging("").Open(src)
	require.NoError(t, err)
	defer h.Close()

	w, ht := h.Size()
	assert.Equal(t, 20, w)
	assert.Equal(t, 40, ht)
}

func TestImagingResizeAndEncode(t *testing.T) {
	dir := t.TempDir()
	src := writeJPEG(t, dir, 320, 240)
	c := NewImaging("")

	h, err := c.Open(src)
	require.NoError(t, err)
	defer h.Close()

	w, ht := h.Size()
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, ht)

	require.NoError(t, h.Resize(160, 0, false))
	w, ht = h.Size()
	assert.Equal(t, 160, w)
	assert.Equal(t, 120, ht)

	out := filepath.Join(dir, "out.webp")
	require.NoError(t, h.Encode(out, settings.FormatWebP, 75))

	dims, err := GetImageDimensions(out)
	require.NoError(t, err)
	assert.Equal(t, 160, dims.Width)
	assert.Equal(t, 120, dims.Height)
}

func TestImagingCrop(t *testing.T) {
	dir := t.TempDir()
	src := writeJPEG(t, dir, 400, 200)

	h, err := NewImaging("").Open(src)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Resize(150, 150, true))
	w, ht := h.Size()
	assert.Equal(t, 150, w)
	assert.Equal(t, 150, ht)
}

func TestImagingOpenFailure(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))

	_, err := NewImaging("").Open(bad)
	assert.Error(t, err)
}

func TestGetImageDimensions(t *testing.T) {
	src := writeJPEG(t, t.TempDir(), 64, 32)
	dims, err := GetImageDimensions(src)
	require.NoError(t, err)
	assert.Equal(t, 64, dims.Width)
	assert.Equal(t, 32, dims.Height)

	_, err = GetImageDimensions(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}
