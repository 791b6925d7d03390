package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const lastCleanupKey = "last_cleanup_run"

// GetMetadata returns the value stored under key, or sql.ErrNoRows.
func (d *Database) GetMetadata(ctx context.Context, key string) (value string, err error) {
	defer func(start time.Time) {
		if errors.Is(err, sql.ErrNoRows) {
			recordQuery("get_metadata", start, nil)
			return
		}
		recordQuery("get_metadata", start, err)
	}(time.Now())

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var v sql.NullString
	if err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&v); err != nil {
		return "", err
	}
	return v.String, nil
}

// SetMetadata upserts key.
func (d *Database) SetMetadata(ctx context.Context, key, value string) (err error) {
	defer func(start time.Time) { recordQuery("set_metadata", start, err) }(time.Now())

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// DeleteMetadata removes keys. Missing keys are ignored.
func (d *Database) DeleteMetadata(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, k)
	}
	return d.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM metadata WHERE key IN ("+placeholders(len(keys))+")", args...)
		return err
	})
}

// GetLastCleanup returns when the orphan sweeper last finished, or the zero
// time if it never ran.
func (d *Database) GetLastCleanup(ctx context.Context) (time.Time, error) {
	value, err := d.GetMetadata(ctx, lastCleanupKey)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, nil
	case err != nil:
		return time.Time{}, err
	case value == "":
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

// SetLastCleanup records t; the zero time clears it.
func (d *Database) SetLastCleanup(ctx context.Context, t time.Time) error {
	value := ""
	if !t.IsZero() {
		value = t.UTC().Format(time.RFC3339)
	}
	return d.SetMetadata(ctx, lastCleanupKey, value)
}
