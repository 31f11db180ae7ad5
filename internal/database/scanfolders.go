package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"
)

// ListScanFolders returns the configured scan roots.
func (d *Database) ListScanFolders(ctx context.Context) ([]ScanFolder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, path, include_subfolders, last_scanned FROM scan_folders ORDER BY path
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	folders := []ScanFolder{}
	for rows.Next() {
		var f ScanFolder
		var lastScanned sql.NullInt64
		if err := rows.Scan(&f.ID, &f.Path, &f.IncludeSubfolders, &lastScanned); err != nil {
			return nil, err
		}
		if lastScanned.Valid {
			t := time.Unix(lastScanned.Int64, 0).UTC()
			f.LastScanned = &t
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// AddScanFolder registers a new scan root. The path must be absolute.
func (d *Database) AddScanFolder(ctx context.Context, path string, includeSubfolders bool) (*ScanFolder, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("scan folder must be an absolute path: %q", path)
	}
	path = filepath.Clean(path)

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO scan_folders (path, include_subfolders) VALUES (?, ?)
	`, path, includeSubfolders)
	if err != nil {
		return nil, fmt.Errorf("failed to add scan folder %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &ScanFolder{ID: id, Path: path, IncludeSubfolders: includeSubfolders}, nil
}

// DeleteScanFolder removes a scan root. Items already indexed from it stay
// until the next scan that no longer covers them.
func (d *Database) DeleteScanFolder(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `DELETE FROM scan_folders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchScanFolder records when a configured root was last scanned.
func (d *Database) TouchScanFolder(ctx context.Context, path string, t time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `UPDATE scan_folders SET last_scanned = ? WHERE path = ?`, t.Unix(), path)
	return err
}
