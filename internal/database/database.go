package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
)

// defaultTimeout bounds single queries issued without a caller deadline.
const defaultTimeout = 5 * time.Second

// Database is the catalog store: media items, file types, scan folders,
// metadata and the processing ledger, in one SQLite file.
//
// mu serializes schema-wide work (transactions, VACUUM) against reads that
// span several statements; SQLite's own locking covers the rest.
type Database struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// sqliteDSN builds the go-sqlite3 connection string. WAL lets the API read
// while a batch run writes; the busy timeout absorbs short lock waits.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	q.Set("_cache_size", "10000")
	q.Set("_temp_store", "MEMORY")
	return path + "?" + q.Encode()
}

// New opens the database at path, creating and migrating the schema. The
// parent directory must exist and be writable.
func New(ctx context.Context, path string) (*Database, error) {
	if err := checkFiles(path); err != nil {
		logging.Warn("Database file check: %v", err)
	}

	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{db: db, path: path}
	if err := d.open(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			logging.Error("failed to close database: %v", cerr)
		}
		return nil, err
	}

	logging.Info("Database ready at %s", path)
	return d, nil
}

func (d *Database) open(ctx context.Context) error {
	if err := d.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := d.migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS file_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		extension TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL DEFAULT 'other',
		mime_type TEXT NOT NULL DEFAULT 'application/octet-stream',
		ignored INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS media_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL UNIQUE,
		folder_path TEXT NOT NULL,
		extension TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		file_type_id INTEGER REFERENCES file_types(id) ON DELETE SET NULL,
		media_date INTEGER,
		modified_at INTEGER NOT NULL,
		thumbnail_path TEXT,
		exif_data TEXT,
		width INTEGER,
		height INTEGER,
		dominant_color TEXT,
		sharpness REAL,
		visual_hash TEXT,
		uniformity TEXT,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		indexed_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_media_items_folder ON media_items(folder_path);
	CREATE INDEX IF NOT EXISTS idx_media_items_file_type ON media_items(file_type_id);
	CREATE INDEX IF NOT EXISTS idx_media_items_media_date ON media_items(media_date);
	CREATE INDEX IF NOT EXISTS idx_media_items_name ON media_items(file_name COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS processing_states (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		media_item_id INTEGER NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		processed_at INTEGER NOT NULL,
		UNIQUE(media_item_id, type)
	);

	CREATE INDEX IF NOT EXISTS idx_processing_states_type_status ON processing_states(type, status);

	CREATE TABLE IF NOT EXISTS scan_folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		include_subfolders INTEGER NOT NULL DEFAULT 1,
		last_scanned INTEGER
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
`

// addedColumns are columns introduced after the first schema release.
var addedColumns = []struct {
	table, column, ddl string
}{
	{"media_items", "dominant_color", "ALTER TABLE media_items ADD COLUMN dominant_color TEXT"},
	{"media_items", "sharpness", "ALTER TABLE media_items ADD COLUMN sharpness REAL"},
	{"media_items", "indexed_at", "ALTER TABLE media_items ADD COLUMN indexed_at INTEGER NOT NULL DEFAULT 0"},
	{"media_items", "visual_hash", "ALTER TABLE media_items ADD COLUMN visual_hash TEXT"},
	{"media_items", "uniformity", "ALTER TABLE media_items ADD COLUMN uniformity TEXT"},
}

// migrate adds columns missing from databases created by older releases.
func (d *Database) migrate(ctx context.Context) error {
	for _, c := range addedColumns {
		var n int
		err := d.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, c.table, c.column,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("inspect %s.%s: %w", c.table, c.column, err)
		}
		if n > 0 {
			continue
		}
		logging.Info("Migrating database: adding %s.%s", c.table, c.column)
		if _, err := d.db.ExecContext(ctx, c.ddl); err != nil {
			return fmt.Errorf("add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

// SeedFileTypes inserts the built-in file types that are not present yet and
// returns how many rows were added. Existing rows keep their edited policy.
func (d *Database) SeedFileTypes(ctx context.Context) (int, error) {
	start := time.Now()
	var err error
	defer recordQuery("seed_file_types", start, &err)

	tx, err := d.BeginBatch(ctx)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, def := range mediatypes.Defaults() {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			INSERT INTO file_types (extension, category, mime_type, ignored)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(extension) DO NOTHING
		`, def.Extension, string(def.Category), def.MimeType, def.Ignore)
		if err != nil {
			err = d.EndBatch(tx, fmt.Errorf("failed to seed %s: %w", def.Extension, err))
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	err = d.EndBatch(tx, nil)
	return inserted, err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Batch is a write transaction opened by BeginBatch. It embeds the *sql.Tx
// so statements run on it directly.
type Batch struct {
	*sql.Tx
	started time.Time
}

// BeginBatch starts a write transaction. Every Batch must be finished with
// EndBatch, passing the first error hit while using it.
func (d *Database) BeginBatch(ctx context.Context) (*Batch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	started := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Batch{Tx: tx, started: started}, nil
}

// EndBatch commits b when err is nil and rolls it back otherwise, returning
// err joined with any rollback failure.
func (d *Database) EndBatch(b *Batch, err error) error {
	outcome := "commit"
	if err != nil {
		outcome = "rollback"
		if rbErr := b.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	} else {
		err = b.Commit()
	}
	metrics.DBTransactionDuration.WithLabelValues(outcome).Observe(time.Since(b.started).Seconds())
	return err
}

// Vacuum rebuilds the file to reclaim space left by deleted items and
// ledger resets. It blocks other transactions while it runs.
func (d *Database) Vacuum(ctx context.Context) (err error) {
	defer recordQuery("vacuum", time.Now(), &err)

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// recordQuery counts a query and its latency. ErrNotFound is not a failure.
func recordQuery(operation string, start time.Time, errp *error) {
	status := "success"
	if err := *errp; err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// checkFiles verifies the directory is writable and restores write
// permission on WAL and shared-memory files left read-only by another user,
// which would otherwise fail every write with "readonly database".
func checkFiles(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".perm-test-*")
	if err != nil {
		return fmt.Errorf("database directory %s not writable: %w", dir, err)
	}
	tmp.Close()
	_ = os.Remove(tmp.Name())

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		info, err := os.Stat(p)
		if err != nil || info.Mode().Perm()&0o200 != 0 {
			continue
		}
		if p == path {
			logging.Warn("%s is read-only (mode %v); writes will fail", p, info.Mode())
			continue
		}
		if err := os.Chmod(p, 0o600); err != nil {
			logging.Error("Failed to make %s writable: %v", p, err)
		} else {
			logging.Info("Made %s writable", p)
		}
	}
	return nil
}
