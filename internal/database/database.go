package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-refiner/internal/logging"
	"media-refiner/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// pragmas are appended to the DSN. busy_timeout covers the short window in
// which the server and refinerctl both hold the file.
const pragmas = "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_temp_store=MEMORY&_busy_timeout=5000"

// migrations are applied in order; PRAGMA user_version records how many
// have run.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS assets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file TEXT NOT NULL UNIQUE,
		mime_type TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		file_size INTEGER NOT NULL DEFAULT 0,
		sizes TEXT NOT NULL DEFAULT '{}',
		quality INTEGER,
		image_meta TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_assets_mime_type ON assets(mime_type);`,

	`CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);`,

	`CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);`,
}

// Database is the SQLite catalog: assets, persisted settings and the
// activity journal. Writers are serialised by mu; SQLite allows one writer
// per file anyway.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens or creates the catalog at dbPath and brings its schema up to
// date. The parent directory must exist.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)
	checkDatabaseFiles(dbPath)

	db, err := sql.Open("sqlite3", dbPath+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &Database{db: db, dbPath: dbPath}
	if err := d.setup(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after setup failure: %v", closeErr)
		}
		return nil, err
	}

	// One process converts at a time, so a small pool is enough.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	logging.Info("Database ready at %s (schema v%d)", dbPath, len(migrations))
	return d, nil
}

func (d *Database) setup(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := d.migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return nil
}

func (d *Database) migrate(ctx context.Context) error {
	version, err := d.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for i := version; i < len(migrations); i++ {
		start := time.Now()
		_, err := d.db.ExecContext(ctx, migrations[i])
		recordQuery("migrate", start, err)
		if err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := d.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		logging.Debug("Applied schema migration %d", i+1)
	}
	return nil
}

// SchemaVersion returns the number of migrations applied to the file.
func (d *Database) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := d.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// OpenConnections reports the pool's open connection count.
func (d *Database) OpenConnections() int {
	return d.db.Stats().OpenConnections
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// checkDatabaseFiles logs why the catalog is likely to fail before SQLite
// reports it less clearly. Read-only WAL and SHM sidecars left behind by
// another user are made writable again.
func checkDatabaseFiles(dbPath string) {
	dir := filepath.Dir(dbPath)
	probe, err := os.CreateTemp(dir, ".perm-test-*")
	if err != nil {
		logging.Warn("Database directory %s is not writable: %v", dir, err)
		return
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil || info.Mode().Perm()&0o200 != 0 {
			continue
		}
		if path == dbPath {
			logging.Warn("Database file is read-only (mode %v)", info.Mode())
			continue
		}
		if err := os.Chmod(path, 0o600); err != nil {
			logging.Error("Failed to make %s writable: %v", filepath.Base(path), err)
		} else {
			logging.Info("Made %s writable", filepath.Base(path))
		}
	}
}
