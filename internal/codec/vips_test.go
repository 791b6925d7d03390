package codec

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-refiner/internal/settings"
)

// govips cannot restart after Shutdown, so nothing here shuts libvips down.

func newVipsOrSkip(t *testing.T) *Vips {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping libvips test in short mode")
	}
	v, err := NewVips(1)
	if err != nil {
		t.Skipf("libvips not available: %v", err)
	}
	return v
}

func TestVipsIdempotentStart(t *testing.T) {
	newVipsOrSkip(t)
	_, err := NewVips(1)
	assert.NoError(t, err)
}

func TestVipsResizeWidth(t *testing.T) {
	v := newVipsOrSkip(t)
	dir := t.TempDir()
	src := writeJPEG(t, dir, 800, 600)

	h, err := v.Open(src)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Resize(400, 0, false))
	w, ht := h.Size()
	assert.Equal(t, 400, w)
	assert.Equal(t, 300, ht)

	if !v.Supports(settings.FormatWebP) {
		t.Skip("libvips built without WebP")
	}
	out := filepath.Join(dir, "out.webp")
	require.NoError(t, h.Encode(out, settings.FormatWebP, 80))

	dims, err := GetImageDimensions(out)
	require.NoError(t, err)
	assert.Equal(t, 400, dims.Width)
}

func TestVipsCrop(t *testing.T) {
	v := newVipsOrSkip(t)
	src := writeJPEG(t, t.TempDir(), 600, 300)

	h, err := v.Open(src)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Resize(150, 150, true))
	w, ht := h.Size()
	assert.Equal(t, 150, w)
	assert.Equal(t, 150, ht)
}

func TestVipsAppliesOrientation(t *testing.T) {
	v := newVipsOrSkip(t)
	src := writeRotatedJPEG(t, t.TempDir(), 40, 20)

	h, err := v.Open(src)
	require.NoError(t, err)
	defer h.Close()

	w, ht := h.Size()
	assert.Equal(t, 20, w)
	assert.Equal(t, 40, ht)
}
