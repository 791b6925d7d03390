package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const assetColumns = `id, file, mime_type, width, height, file_size, sizes, quality, image_meta, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	var (
		a                Asset
		sizes, imageMeta string
		quality          sql.NullInt64
		created, updated int64
	)
	err := row.Scan(&a.ID, &a.File, &a.MimeType, &a.Width, &a.Height, &a.FileSize,
		&sizes, &quality, &imageMeta, &created, &updated)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(sizes), &a.Sizes); err != nil {
		return nil, fmt.Errorf("asset %d: decode sizes: %w", a.ID, err)
	}
	if a.Sizes == nil {
		a.Sizes = map[string]SizeVariant{}
	}
	if err := json.Unmarshal([]byte(imageMeta), &a.ImageMeta); err != nil {
		return nil, fmt.Errorf("asset %d: decode image meta: %w", a.ID, err)
	}
	if quality.Valid {
		q := int(quality.Int64)
		a.Quality = &q
	}
	a.CreatedAt = time.Unix(created, 0)
	a.UpdatedAt = time.Unix(updated, 0)
	return &a, nil
}

func encodeAsset(a *Asset) (sizes, imageMeta string, quality sql.NullInt64, err error) {
	sizeMap := a.Sizes
	if sizeMap == nil {
		sizeMap = map[string]SizeVariant{}
	}
	b, err := json.Marshal(sizeMap)
	if err != nil {
		return "", "", quality, err
	}
	metaMap := a.ImageMeta
	if metaMap == nil {
		metaMap = map[string]string{}
	}
	m, err := json.Marshal(metaMap)
	if err != nil {
		return "", "", quality, err
	}
	if a.Quality != nil {
		quality = sql.NullInt64{Int64: int64(*a.Quality), Valid: true}
	}
	return string(b), string(m), quality, nil
}

// CreateAsset inserts a new catalog row and returns its id.
func (d *Database) CreateAsset(ctx context.Context, a *Asset) (id int64, err error) {
	start := time.Now()
	defer func() { recordQuery("create_asset", start, err) }()

	sizes, imageMeta, quality, err := encodeAsset(a)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO assets (file, mime_type, width, height, file_size, sizes, quality, image_meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.File, a.MimeType, a.Width, a.Height, a.FileSize, sizes, quality, imageMeta)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.ID = id
	return id, nil
}

// GetAsset returns the asset with the given id, or ErrAssetNotFound.
func (d *Database) GetAsset(ctx context.Context, id int64) (a *Asset, err error) {
	start := time.Now()
	defer func() { recordQuery("get_asset", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	a, err = scanAsset(d.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %d: %w", id, ErrAssetNotFound)
	}
	return a, err
}

// GetAssetByFile looks an asset up by its uploads-relative primary file.
func (d *Database) GetAssetByFile(ctx context.Context, file string) (a *Asset, err error) {
	start := time.Now()
	defer func() { recordQuery("get_asset", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	a, err = scanAsset(d.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE file = ?", file))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %q: %w", file, ErrAssetNotFound)
	}
	return a, err
}

// PutAsset overwrites the mutable columns of an existing asset.
func (d *Database) PutAsset(ctx context.Context, a *Asset) (err error) {
	start := time.Now()
	defer func() { recordQuery("put_asset", start, err) }()

	sizes, imageMeta, quality, err := encodeAsset(a)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE assets SET
			file = ?, mime_type = ?, width = ?, height = ?, file_size = ?,
			sizes = ?, quality = ?, image_meta = ?,
			updated_at = strftime('%s', 'now')
		WHERE id = ?
	`, a.File, a.MimeType, a.Width, a.Height, a.FileSize, sizes, quality, imageMeta, a.ID)
	if err != nil {
		return err
	}
	return expectOneRow(res, a.ID)
}

// AttachPrimary points an asset at a new primary file and mime type.
func (d *Database) AttachPrimary(ctx context.Context, id int64, file, mimeType string) (err error) {
	start := time.Now()
	defer func() { recordQuery("attach_primary", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE assets SET file = ?, mime_type = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?
	`, file, mimeType, id)
	if err != nil {
		return err
	}
	return expectOneRow(res, id)
}

// ListCandidates returns up to limit assets whose mime type is one of mimes
// and whose id is not in exclude, ordered by id starting at offset.
func (d *Database) ListCandidates(ctx context.Context, mimes []string, exclude []int64, offset, limit int) (assets []*Asset, err error) {
	start := time.Now()
	defer func() { recordQuery("list_candidates", start, err) }()

	if len(mimes) == 0 || limit <= 0 {
		return nil, nil
	}

	var (
		query strings.Builder
		args  = make([]any, 0, len(mimes)+len(exclude)+2)
	)
	query.WriteString("SELECT " + assetColumns + " FROM assets WHERE mime_type IN (")
	query.WriteString(placeholders(len(mimes)))
	query.WriteString(")")
	for _, m := range mimes {
		args = append(args, m)
	}
	if len(exclude) > 0 {
		query.WriteString(" AND id NOT IN (")
		query.WriteString(placeholders(len(exclude)))
		query.WriteString(")")
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	query.WriteString(" ORDER BY id ASC LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return d.queryAssets(ctx, query.String(), args...)
}

// ListAssets returns every asset ordered by id.
func (d *Database) ListAssets(ctx context.Context) (assets []*Asset, err error) {
	start := time.Now()
	defer func() { recordQuery("list_assets", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return d.queryAssets(ctx, "SELECT "+assetColumns+" FROM assets ORDER BY id ASC")
}

func (d *Database) queryAssets(ctx context.Context, query string, args ...any) ([]*Asset, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// DeleteAsset removes the catalog row. Files on disk are not touched.
func (d *Database) DeleteAsset(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { recordQuery("delete_asset", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOneRow(res, id)
}

// CountByMime returns the number of assets per mime type.
func (d *Database) CountByMime(ctx context.Context) (counts map[string]int, err error) {
	start := time.Now()
	defer func() { recordQuery("count_by_mime", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT mime_type, COUNT(*) FROM assets GROUP BY mime_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts = make(map[string]int)
	for rows.Next() {
		var mime string
		var n int
		if err = rows.Scan(&mime, &n); err != nil {
			return nil, err
		}
		counts[mime] = n
	}
	err = rows.Err()
	return counts, err
}

// CountAssets returns the total number of catalog rows.
func (d *Database) CountAssets(ctx context.Context) (int, error) {
	counts, err := d.CountByMime(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("asset %d: %w", id, ErrAssetNotFound)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
