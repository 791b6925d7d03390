// Package pdf shrinks PDF documents in place with Ghostscript.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"media-refiner/internal/activity"
	"media-refiner/internal/filesystem"
	"media-refiner/internal/logging"
	"media-refiner/internal/metrics"
)

func init() {
	api.DisableConfigDir()
}

var (
	// ErrGhostscriptUnavailable means the gs binary could not be found.
	ErrGhostscriptUnavailable = errors.New("ghostscript not available")
	// ErrNotPDF is returned for missing files and non-PDF paths.
	ErrNotPDF = errors.New("not a PDF file")
	// ErrInvalidLevel is returned by ParseLevel.
	ErrInvalidLevel = errors.New("invalid compression level")
)

// Level is a Ghostscript PDFSETTINGS preset.
type Level string

const (
	LevelScreen  Level = "screen"
	LevelEbook   Level = "ebook"
	LevelPrinter Level = "printer"
)

// Levels lists the accepted presets.
var Levels = []Level{LevelScreen, LevelEbook, LevelPrinter}

// ParseLevel validates a preset name.
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels {
		if string(l) == strings.ToLower(strings.TrimSpace(s)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Outcome is the result of compressing one file.
type Outcome struct {
	Compressed bool  `json:"compressed"`
	Before     int64 `json:"before"`
	After      int64 `json:"after"`
}

// Compressor runs Ghostscript and swaps in the output only when it is a
// valid PDF smaller than the original.
type Compressor struct {
	gsPath   string
	journal  activity.Recorder
	lookPath func(file string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
	validate func(path string) error
}

// New creates a Compressor. An empty gsPath means "gs" on PATH.
func New(gsPath string, journal activity.Recorder) *Compressor {
	if gsPath == "" {
		gsPath = "gs"
	}
	if journal == nil {
		journal = activity.Discard
	}
	return &Compressor{
		gsPath:   gsPath,
		journal:  journal,
		lookPath: exec.LookPath,
		run:      runCommand,
		validate: validatePDF,
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func validatePDF(path string) error {
	return api.ValidateFile(path, nil)
}

// Available reports whether the Ghostscript binary can be found.
func (c *Compressor) Available() bool {
	_, err := c.lookPath(c.gsPath)
	return err == nil
}

// Compress rewrites path at level. The original is replaced only when the
// result validates and is smaller; otherwise the temporary output is
// removed and the original is untouched.
func (c *Compressor) Compress(ctx context.Context, path string, level Level) (Outcome, error) {
	if !c.Available() {
		return Outcome{}, ErrGhostscriptUnavailable
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotPDF, filepath.Base(path))
	}
	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrNotPDF, err)
	}
	dir := filepath.Dir(path)
	if !filesystem.DirWritable(dir) {
		return Outcome{}, fmt.Errorf("%w: %s", filesystem.ErrWriteDenied, dir)
	}

	name := filepath.Base(path)
	tmp := filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+"_compressed.pdf")
	out := Outcome{Before: info.Size()}

	fail := func(cause error) (Outcome, error) {
		_ = os.Remove(tmp)
		metrics.PDFCompressionsTotal.WithLabelValues(string(level), "error").Inc()
		c.journal.Record(ctx, "Error: PDF Compression failed for %s", name)
		return out, cause
	}

	err = c.run(ctx, c.gsPath,
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS=/"+string(level),
		"-dNOPAUSE", "-dQUIET", "-dBATCH",
		"-sOutputFile="+tmp,
		path,
	)
	if err != nil {
		return fail(err)
	}
	compressed, err := os.Stat(tmp)
	if err != nil {
		return fail(err)
	}
	if err := c.validate(tmp); err != nil {
		return fail(fmt.Errorf("ghostscript output invalid: %w", err))
	}

	out.After = compressed.Size()
	if out.After >= out.Before {
		_ = os.Remove(tmp)
		out.After = out.Before
		metrics.PDFCompressionsTotal.WithLabelValues(string(level), "skipped").Inc()
		c.journal.Record(ctx, "PDF Compression Skipped: %s (No size reduction, Level: %s)", name, level)
		return out, nil
	}

	if err := os.Rename(tmp, path); err != nil {
		return fail(err)
	}
	out.Compressed = true
	metrics.PDFCompressionsTotal.WithLabelValues(string(level), "compressed").Inc()
	metrics.PDFBytesSavedTotal.Add(float64(out.Before - out.After))
	c.journal.Record(ctx, "PDF Compressed: %s (Size reduced from %s to %s, Level: %s)",
		name, FormatBytes(out.Before), FormatBytes(out.After), level)
	logging.Debug("Compressed %s: %d -> %d bytes", path, out.Before, out.After)
	return out, nil
}

// FormatBytes renders a size with binary units and up to two decimals,
// e.g. "1.5 MB".
func FormatBytes(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	if n <= 0 {
		return "0 B"
	}
	pow := min(int(math.Floor(math.Log(float64(n))/math.Log(1024))), len(units)-1)
	v := float64(n) / math.Pow(1024, float64(pow))
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + units[pow]
}
