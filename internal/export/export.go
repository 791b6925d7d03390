// Package export streams the catalog's files as a ZIP archive.
package export

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"media-refiner/internal/activity"
	"media-refiner/internal/database"
	"media-refiner/internal/filesystem"
	"media-refiner/internal/logging"
	"media-refiner/internal/mediatypes"
	"media-refiner/internal/metrics"
)

// ManifestName is the archive entry listing BLAKE2b-256 checksums.
const ManifestName = "MANIFEST.blake2b"

// ErrNothingToExport is returned when the catalog is empty.
var ErrNothingToExport = errors.New("no media files found")

// Catalog lists assets.
type Catalog interface {
	ListAssets(ctx context.Context) ([]*database.Asset, error)
}

// Summary reports what an export wrote.
type Summary struct {
	Files   int   `json:"files"`
	Bytes   int64 `json:"bytes"`
	Missing int   `json:"missing"`
}

// Exporter writes archives of the uploads tree.
type Exporter struct {
	root    string
	catalog Catalog
	journal activity.Recorder
}

// New creates an Exporter.
func New(root string, catalog Catalog, journal activity.Recorder) *Exporter {
	if journal == nil {
		journal = activity.Discard
	}
	return &Exporter{root: root, catalog: catalog, journal: journal}
}

// ArchiveName is the download name for an export made at t.
func ArchiveName(t time.Time) string {
	return "media_export_" + t.Format("2006-01-02_15-04-05") + ".zip"
}

// Write streams every asset's primary file and recorded sizes to w. Entries
// keep their uploads-relative paths and are written once each; a manifest
// of checksums is appended last.
func (e *Exporter) Write(ctx context.Context, w io.Writer) (Summary, error) {
	var sum Summary

	assets, err := e.catalog.ListAssets(ctx)
	if err != nil {
		return sum, err
	}
	if len(assets) == 0 {
		return sum, ErrNothingToExport
	}

	zw := zip.NewWriter(w)
	added := make(map[string]bool)
	var manifest strings.Builder

	add := func(rel string) error {
		n, digest, err := e.addFile(zw, rel)
		if err != nil {
			return err
		}
		added[rel] = true
		sum.Files++
		sum.Bytes += n
		fmt.Fprintf(&manifest, "%s  %s\n", digest, rel)
		metrics.ExportFilesTotal.Inc()
		metrics.ExportBytesTotal.Add(float64(n))
		return nil
	}

	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rel := path.Clean(a.File)
		if a.File != "" && filesystem.Exists(e.abs(rel)) {
			if !added[rel] {
				if err := add(rel); err != nil {
					return sum, err
				}
				e.journal.Record(ctx, "Added to ZIP: %s", path.Base(rel))
			}
		} else {
			sum.Missing++
			e.journal.Record(ctx, "Skipped: File not found for Asset ID %d", a.ID)
		}

		keys := make([]string, 0, len(a.Sizes))
		for k := range a.Sizes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			v := a.Sizes[key]
			if v.File == "" {
				continue
			}
			sizeRel := path.Join(path.Dir(rel), v.File)
			if added[sizeRel] || !filesystem.Exists(e.abs(sizeRel)) {
				continue
			}
			if err := add(sizeRel); err != nil {
				return sum, err
			}
			e.journal.Record(ctx, "Added to ZIP: %s (size: %s)", v.File, key)
		}
	}

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: ManifestName, Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		return sum, err
	}
	if _, err := io.WriteString(mw, manifest.String()); err != nil {
		return sum, err
	}
	if err := zw.Close(); err != nil {
		return sum, err
	}

	logging.Info("Exported %d files (%d bytes), %d missing", sum.Files, sum.Bytes, sum.Missing)
	return sum, nil
}

func (e *Exporter) abs(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

// addFile copies one file into the archive and returns its size and
// checksum. Raster images are stored since they are already compressed.
func (e *Exporter) addFile(zw *zip.Writer, rel string) (int64, string, error) {
	f, err := filesystem.OpenWithRetry(e.abs(rel), filesystem.DefaultRetryConfig())
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, "", err
	}

	method := zip.Deflate
	if mediatypes.GetClass(mediatypes.Ext(rel)) != mediatypes.ClassNone {
		method = zip.Store
	}
	hdr := &zip.FileHeader{Name: rel, Method: method, Modified: info.ModTime()}
	hdr.SetMode(0o644)
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, "", err
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return 0, "", err
	}
	n, err := io.Copy(io.MultiWriter(dst, h), f)
	if err != nil {
		return n, "", fmt.Errorf("archive %s: %w", rel, err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyManifest recomputes checksums of the archive entries and compares
// them with the manifest.
func VerifyManifest(r *zip.Reader) error {
	want := make(map[string]string)
	for _, f := range r.File {
		if f.Name != ManifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return err
		}
		for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			digest, name, ok := strings.Cut(line, "  ")
			if ok {
				want[name] = digest
			}
		}
	}

	for _, f := range r.File {
		if f.Name == ManifestName {
			continue
		}
		digest, ok := want[f.Name]
		if !ok {
			return fmt.Errorf("%s missing from manifest", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		h, _ := blake2b.New256(nil)
		_, err = io.Copy(h, rc)
		rc.Close()
		if err != nil {
			return err
		}
		if got := hex.EncodeToString(h.Sum(nil)); got != digest {
			return fmt.Errorf("%s checksum mismatch", f.Name)
		}
		delete(want, f.Name)
	}
	if len(want) > 0 {
		return fmt.Errorf("%d manifest entries have no archive entry", len(want))
	}
	return nil
}
