package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media-catalog/internal/mediatypes"
)

// ListFileTypes returns every file type ordered by extension.
func (d *Database) ListFileTypes(ctx context.Context) ([]FileType, error) {
	start := time.Now()
	var err error
	defer recordQuery("list_file_types", start, &err)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, extension, category, mime_type, ignored FROM file_types ORDER BY extension
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := []FileType{}
	for rows.Next() {
		var ft FileType
		if err = rows.Scan(&ft.ID, &ft.Extension, &ft.Category, &ft.MimeType, &ft.Ignore); err != nil {
			return nil, err
		}
		types = append(types, ft)
	}
	err = rows.Err()
	return types, err
}

// GetFileType returns the file type with the given id.
func (d *Database) GetFileType(ctx context.Context, id int64) (*FileType, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var ft FileType
	err := d.db.QueryRowContext(ctx, `
		SELECT id, extension, category, mime_type, ignored FROM file_types WHERE id = ?
	`, id).Scan(&ft.ID, &ft.Extension, &ft.Category, &ft.MimeType, &ft.Ignore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ft, nil
}

// CreateFileType inserts a new file type. The extension is normalized.
func (d *Database) CreateFileType(ctx context.Context, ft FileType) (*FileType, error) {
	start := time.Now()
	var err error
	defer recordQuery("create_file_type", start, &err)

	ft.Extension = mediatypes.NormalizeExtension(ft.Extension)
	if ft.Extension == "" {
		err = fmt.Errorf("extension is required")
		return nil, err
	}
	if ft.Category == "" {
		ft.Category = string(mediatypes.CategoryOther)
	}
	if ft.MimeType == "" {
		ft.MimeType = mediatypes.GetMimeType(ft.Extension)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO file_types (extension, category, mime_type, ignored) VALUES (?, ?, ?, ?)
	`, ft.Extension, ft.Category, ft.MimeType, ft.Ignore)
	if err != nil {
		return nil, fmt.Errorf("failed to create file type %s: %w", ft.Extension, err)
	}
	ft.ID, err = res.LastInsertId()
	return &ft, err
}

// UpdateFileType changes the category, mime type and ignore flag of an
// existing file type.
func (d *Database) UpdateFileType(ctx context.Context, ft FileType) error {
	start := time.Now()
	var err error
	defer recordQuery("update_file_type", start, &err)

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE file_types SET category = ?, mime_type = ?, ignored = ? WHERE id = ?
	`, ft.Category, ft.MimeType, ft.Ignore, ft.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
	}
	return err
}

// EnsureFileType returns the id of the file type for ext, inserting it with
// the built-in defaults (category other for unknown extensions) if missing.
// It reports whether a row was inserted.
func (d *Database) EnsureFileType(ctx context.Context, tx *Batch, ext string) (int64, bool, error) {
	ext = mediatypes.NormalizeExtension(ext)
	if ext == "" {
		return 0, false, fmt.Errorf("empty extension")
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO file_types (extension, category, mime_type, ignored) VALUES (?, ?, ?, 0)
		ON CONFLICT(extension) DO NOTHING
	`, ext, string(mediatypes.GetCategory(ext)), mediatypes.GetMimeType(ext))
	if err != nil {
		return 0, false, err
	}
	inserted, _ := res.RowsAffected()

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM file_types WHERE extension = ?`, ext).Scan(&id); err != nil {
		return 0, false, err
	}
	return id, inserted > 0, nil
}
