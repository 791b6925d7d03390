package refiner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"media-refiner/internal/batch"
	"media-refiner/internal/database"
	"media-refiner/internal/export"
	"media-refiner/internal/layout"
	"media-refiner/internal/logging"
	"media-refiner/internal/mediatypes"
	"media-refiner/internal/metadata"
	"media-refiner/internal/pdf"
)

// ErrUnsupportedUpload is returned for uploads that are not a raster image
// or PDF.
var ErrUnsupportedUpload = errors.New("unsupported upload type")

// UploadResult reports where an upload was stored and what the upload hook
// did with it.
type UploadResult struct {
	ID      int64         `json:"id"`
	File    string        `json:"file"`
	Outcome batch.Outcome `json:"outcome"`
}

// GetAsset returns one catalog record.
func (e *Engine) GetAsset(ctx context.Context, id int64) (*database.Asset, error) {
	return e.db.GetAsset(ctx, id)
}

// Upload stores r under {yyyy}/{mm}/ in the uploads tree, registers it and
// runs the upload hook. The stored name is adjusted so it neither
// overwrites an existing file nor reads as a derivative of one. Upload
// waits for a running page or sweep to finish, bounded by ctx.
func (e *Engine) Upload(ctx context.Context, name string, r io.Reader) (UploadResult, error) {
	name = filepath.Base(filepath.Clean("/" + name))
	ext := mediatypes.Ext(name)
	if name == "/" || layout.IsHidden(name) || mediatypes.GetFileType(ext) == mediatypes.FileTypeOther {
		return UploadResult{}, fmt.Errorf("%w: %q", ErrUnsupportedUpload, name)
	}

	if err := e.run.lock(ctx); err != nil {
		return UploadResult{}, err
	}
	defer e.run.unlock()

	now := e.now()
	dir := filepath.Join(e.root, now.Format("2006"), now.Format("01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return UploadResult{}, err
	}

	dst, err := freeName(dir, name)
	if err != nil {
		return UploadResult{}, err
	}
	if err := writeFile(dst, r); err != nil {
		return UploadResult{}, err
	}

	id, created, err := e.indexer.Register(ctx, dst, "upload")
	if err != nil {
		return UploadResult{}, err
	}
	if !created {
		return UploadResult{}, fmt.Errorf("upload %s was not registered", filepath.Base(dst))
	}
	rel, _ := e.meta.Rel(dst)
	res := UploadResult{ID: id, File: rel}

	outcome, err := e.driver.HandleUpload(ctx, id)
	if err != nil {
		return res, err
	}
	res.Outcome = outcome
	return res, nil
}

// freeName picks a name in dir whose stem no existing file uses, so the
// upload cannot collide with another asset's conversion outputs.
func freeName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if _, variant, _ := layout.StripVariant(stem); variant != layout.VariantNone {
		i := strings.LastIndex(stem, "-")
		stem = stem[:i] + "_" + stem[i+1:]
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	used := make(map[string]bool, len(entries))
	for _, entry := range entries {
		n := entry.Name()
		used[strings.ToLower(strings.TrimSuffix(n, filepath.Ext(n)))] = true
	}

	candidate := stem
	for i := 1; used[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s_%d", stem, i)
	}
	return filepath.Join(dir, candidate+ext), nil
}

func writeFile(dst string, r io.Reader) (err error) {
	tmp := layout.StagingPath(dst)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// DeleteAsset removes an asset's primary file and every listed size, then
// drops the catalog row. Files of excluded assets are left on disk; the
// row is removed either way.
func (e *Engine) DeleteAsset(ctx context.Context, id int64) error {
	a, err := e.db.GetAsset(ctx, id)
	if err != nil {
		return err
	}
	excluded, err := e.exclusions.Contains(ctx, id)
	if err != nil {
		return err
	}

	if !excluded {
		primary := e.meta.Abs(a.File)
		paths := []string{primary}
		for _, v := range a.Sizes {
			if v.File != "" {
				paths = append(paths, filepath.Join(filepath.Dir(primary), v.File))
			}
		}
		for _, p := range paths {
			if err := e.deleter.Delete(p); err != nil {
				logging.Warn("Failed to delete %s for asset %d: %v", p, id, err)
			}
		}
	}

	if err := e.db.DeleteAsset(ctx, id); err != nil {
		return err
	}
	logging.Info("Deleted asset %d (%s, files kept: %v)", id, a.File, excluded)
	return nil
}

// CompressPDFs compresses each listed PDF asset at level and returns how
// many shrank. Assets that are missing or not PDFs are skipped.
func (e *Engine) CompressPDFs(ctx context.Context, ids []int64, level pdf.Level) (int, error) {
	if !e.pdf.Available() {
		return 0, pdf.ErrGhostscriptUnavailable
	}

	compressed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return compressed, err
		}
		a, err := e.db.GetAsset(ctx, id)
		if err != nil {
			logging.Warn("PDF compression: asset %d: %v", id, err)
			continue
		}
		out, err := e.pdf.Compress(ctx, e.meta.Abs(a.File), level)
		if err != nil {
			logging.Debug("PDF compression of asset %d failed: %v", id, err)
			continue
		}
		if !out.Compressed {
			continue
		}
		compressed++
		a.FileSize = out.After
		if err := e.db.PutAsset(ctx, a); err != nil {
			logging.Warn("PDF compression: failed to update asset %d: %v", id, err)
		}
	}
	return compressed, nil
}

// Srcset returns the responsive candidates for an asset. Excluded assets
// get none, so pages fall back to the original file.
func (e *Engine) Srcset(ctx context.Context, id int64, baseURL string) ([]metadata.SrcsetEntry, error) {
	a, err := e.db.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	excluded, err := e.exclusions.Contains(ctx, id)
	if err != nil {
		return nil, err
	}
	if excluded {
		return []metadata.SrcsetEntry{}, nil
	}
	return e.meta.Srcset(*a, e.settings.Resolve(ctx), baseURL), nil
}

// Export streams every cataloged file as a ZIP archive.
func (e *Engine) Export(ctx context.Context, w io.Writer) (export.Summary, error) {
	return e.exporter.Write(ctx, w)
}

// AddExclusion excludes a cataloged asset. It reports whether the list
// changed.
func (e *Engine) AddExclusion(ctx context.Context, id int64) (bool, error) {
	if _, err := e.db.GetAsset(ctx, id); err != nil {
		return false, err
	}
	return e.exclusions.Add(ctx, id)
}

// RemoveExclusion lifts an exclusion. It reports whether the list changed.
func (e *Engine) RemoveExclusion(ctx context.Context, id int64) (bool, error) {
	return e.exclusions.Remove(ctx, id)
}
