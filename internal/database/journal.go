package database

import (
	"context"
	"database/sql"
	"time"
)

// inTx runs fn in a write transaction under the write lock, committing when
// fn succeeds.
func (d *Database) inTx(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertLog(ctx context.Context, tx *sql.Tx, messages []string) error {
	for _, msg := range messages {
		if _, err := tx.ExecContext(ctx, "INSERT INTO activity_log (message) VALUES (?)", msg); err != nil {
			return err
		}
	}
	return nil
}

// AppendLog appends messages to the activity log and keeps only the newest
// limit rows. A limit of zero keeps everything.
func (d *Database) AppendLog(ctx context.Context, messages []string, limit int) (err error) {
	if len(messages) == 0 {
		return nil
	}
	defer func(start time.Time) { recordQuery("append_log", start, err) }(time.Now())

	return d.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertLog(ctx, tx, messages); err != nil {
			return err
		}
		if limit <= 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			"DELETE FROM activity_log WHERE id <= (SELECT id FROM activity_log ORDER BY id DESC LIMIT 1 OFFSET ?)",
			limit)
		return err
	})
}

// ListLog returns the activity log oldest first.
func (d *Database) ListLog(ctx context.Context) (messages []string, err error) {
	defer func(start time.Time) { recordQuery("list_log", start, err) }(time.Now())

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT message FROM activity_log ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages = []string{}
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ReplaceLog swaps the whole activity log for messages.
func (d *Database) ReplaceLog(ctx context.Context, messages []string) error {
	return d.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM activity_log"); err != nil {
			return err
		}
		return insertLog(ctx, tx, messages)
	})
}
