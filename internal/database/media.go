package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
)

// mediaColumns is the select list scanned by scanMediaItem. It expects
// media_items aliased as m and file_types as ft.
const mediaColumns = `
	m.id, m.file_name, m.file_path, m.folder_path, m.extension, m.size_bytes,
	m.file_type_id, m.media_date, m.modified_at, m.thumbnail_path, m.exif_data,
	m.width, m.height, m.dominant_color, m.sharpness, m.visual_hash, m.uniformity,
	m.created_at, m.updated_at, ft.category`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMediaItem(row rowScanner) (MediaItem, error) {
	var (
		item          MediaItem
		fileTypeID    sql.NullInt64
		mediaDate     sql.NullInt64
		modifiedAt    int64
		thumbnailPath sql.NullString
		exifData      sql.NullString
		width, height sql.NullInt64
		dominantColor sql.NullString
		sharpness     sql.NullFloat64
		visualHash    sql.NullString
		uniformity    sql.NullString
		createdAt     int64
		updatedAt     int64
		category      sql.NullString
	)

	err := row.Scan(
		&item.ID, &item.FileName, &item.FilePath, &item.FolderPath, &item.Extension, &item.SizeBytes,
		&fileTypeID, &mediaDate, &modifiedAt, &thumbnailPath, &exifData,
		&width, &height, &dominantColor, &sharpness, &visualHash, &uniformity,
		&createdAt, &updatedAt, &category,
	)
	if err != nil {
		return item, err
	}

	if fileTypeID.Valid {
		id := fileTypeID.Int64
		item.FileTypeID = &id
	}
	if mediaDate.Valid {
		t := time.Unix(mediaDate.Int64, 0).UTC()
		item.MediaDate = &t
	}
	item.ModifiedAt = time.Unix(modifiedAt, 0).UTC()
	item.ThumbnailPath = thumbnailPath.String
	if exifData.Valid && exifData.String != "" {
		item.ExifData = json.RawMessage(exifData.String)
	}
	item.Width = int(width.Int64)
	item.Height = int(height.Int64)
	item.DominantColor = dominantColor.String
	if sharpness.Valid {
		s := sharpness.Float64
		item.Sharpness = &s
	}
	item.VisualHash = visualHash.String
	item.Uniformity = uniformity.String
	item.CreatedAt = time.Unix(createdAt, 0).UTC()
	item.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	item.Category = category.String

	return item, nil
}

// UpsertMediaItem inserts or refreshes an item within a scan transaction and
// marks it seen at indexedAt. When the file's size or modification time has
// changed, its ledger rows are cleared so every operation runs again.
// It reports whether the item is new or changed.
func (d *Database) UpsertMediaItem(ctx context.Context, tx *Batch, item *MediaItem, indexedAt time.Time) (bool, error) {
	var (
		existingID   int64
		existingSize int64
		existingMod  int64
		existingType sql.NullInt64
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, size_bytes, modified_at, file_type_id FROM media_items WHERE file_path = ?`,
		item.FilePath,
	).Scan(&existingID, &existingSize, &existingMod, &existingType)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
			INSERT INTO media_items (file_name, file_path, folder_path, extension, size_bytes, file_type_id, modified_at, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, item.FileName, item.FilePath, item.FolderPath, item.Extension, item.SizeBytes,
			nullableID(item.FileTypeID), item.ModifiedAt.Unix(), indexedAt.UnixNano())
		if err != nil {
			return false, fmt.Errorf("failed to insert %s: %w", item.FilePath, err)
		}
		item.ID, _ = res.LastInsertId()
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up %s: %w", item.FilePath, err)
	}

	item.ID = existingID
	changed := existingSize != item.SizeBytes || existingMod != item.ModifiedAt.Unix()

	if !changed {
		_, err = tx.ExecContext(ctx, `
			UPDATE media_items SET indexed_at = ?, file_type_id = COALESCE(file_type_id, ?)
			WHERE id = ?
		`, indexedAt.UnixNano(), nullableID(item.FileTypeID), existingID)
		if err != nil || existingType.Valid || item.FileTypeID == nil {
			return false, err
		}
		// The type became resolvable: earlier "unsupported" errors no longer
		// hold, so the item is queued again for every operation.
		_, err = tx.ExecContext(ctx, `
			DELETE FROM processing_states WHERE media_item_id = ? AND status = ? AND message = ?
		`, existingID, string(StatusError), MsgUnsupportedFileType)
		if err != nil {
			return false, fmt.Errorf("failed to clear unsupported states for %s: %w", item.FilePath, err)
		}
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE media_items SET
			file_name = ?, folder_path = ?, extension = ?, size_bytes = ?, file_type_id = ?,
			modified_at = ?, indexed_at = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?
	`, item.FileName, item.FolderPath, item.Extension, item.SizeBytes, nullableID(item.FileTypeID),
		item.ModifiedAt.Unix(), indexedAt.UnixNano(), existingID)
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", item.FilePath, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM processing_states WHERE media_item_id = ?`, existingID); err != nil {
		return false, fmt.Errorf("failed to reset states for %s: %w", item.FilePath, err)
	}
	return true, nil
}

// DeleteMissingItems removes items under root that were not seen since cutoff.
// indexed_at holds nanoseconds, so scans started within the same second still
// tell their items apart. Must be called within a transaction.
func (d *Database) DeleteMissingItems(ctx context.Context, tx *Batch, root string, cutoff time.Time) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		DELETE FROM media_items
		WHERE indexed_at < ? AND (folder_path = ? OR folder_path LIKE ? ESCAPE '\')
	`, cutoff.UnixNano(), root, escapeLike(strings.TrimSuffix(root, "/"))+"/%")
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err == nil && rowsAffected > 0 {
		metrics.DBRowsAffected.WithLabelValues("delete_items").Observe(float64(rowsAffected))
	}
	return rowsAffected, err
}

// GetMediaItem returns the item with the given id.
func (d *Database) GetMediaItem(ctx context.Context, id int64) (*MediaItem, error) {
	start := time.Now()
	var err error
	defer recordQuery("get_media_item", start, &err)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		SELECT `+mediaColumns+`
		FROM media_items m LEFT JOIN file_types ft ON ft.id = m.file_type_id
		WHERE m.id = ?
	`, id)

	item, err := scanMediaItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListMedia returns one page of the catalog matching the filter.
func (d *Database) ListMedia(ctx context.Context, f MediaFilter) (*MediaPage, error) {
	start := time.Now()
	var err error
	defer recordQuery("list_media", start, &err)

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 100
	}
	if f.PageSize > 500 {
		f.PageSize = 500
	}

	where := []string{"1 = 1"}
	var args []interface{}

	if f.Category != "" {
		where = append(where, "ft.category = ?")
		args = append(args, f.Category)
	}
	if f.Folder != "" {
		where = append(where, "m.folder_path = ?")
		args = append(args, f.Folder)
	}
	if f.HasThumbnail != nil {
		if *f.HasThumbnail {
			where = append(where, "m.thumbnail_path IS NOT NULL AND m.thumbnail_path != ''")
		} else {
			where = append(where, "(m.thumbnail_path IS NULL OR m.thumbnail_path = '')")
		}
	}
	if f.Uniformity != "" {
		where = append(where, "m.uniformity = ?")
		args = append(args, f.Uniformity)
	}
	if f.From != nil {
		where = append(where, "COALESCE(m.media_date, m.modified_at) >= ?")
		args = append(args, f.From.Unix())
	}
	if f.To != nil {
		where = append(where, "COALESCE(m.media_date, m.modified_at) <= ?")
		args = append(args, f.To.Unix())
	}
	if f.Search != "" {
		where = append(where, `m.file_name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}

	from := ` FROM media_items m LEFT JOIN file_types ft ON ft.id = m.file_type_id WHERE ` + strings.Join(where, " AND ")

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	d.mu.RLock()
	defer d.mu.RUnlock()

	var total int
	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count query failed: %w", err)
	}

	sortColumn := "m.file_name COLLATE NOCASE"
	switch mediatypes.SortField(f.Sort) {
	case mediatypes.SortByDate:
		sortColumn = "COALESCE(m.media_date, m.modified_at)"
	case mediatypes.SortBySize:
		sortColumn = "m.size_bytes"
	case mediatypes.SortByCreated:
		sortColumn = "m.created_at"
	}
	sortDir := "ASC"
	if mediatypes.SortOrder(f.Order) == mediatypes.SortDesc {
		sortDir = "DESC"
	}

	query := `SELECT ` + mediaColumns + from +
		fmt.Sprintf(` ORDER BY %s %s, m.id %s LIMIT ? OFFSET ?`, sortColumn, sortDir, sortDir)
	rows, err := d.db.QueryContext(ctx, query, append(args, f.PageSize, (f.Page-1)*f.PageSize)...)
	if err != nil {
		return nil, fmt.Errorf("select query failed: %w", err)
	}
	defer rows.Close()

	items := make([]MediaItem, 0, f.PageSize)
	for rows.Next() {
		var item MediaItem
		if item, err = scanMediaItem(rows); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(math.Ceil(float64(total) / float64(f.PageSize)))
	if totalPages < 1 {
		totalPages = 1
	}

	logging.Debug("ListMedia: %d of %d items (page %d)", len(items), total, f.Page)
	return &MediaPage{
		Items:      items,
		TotalItems: total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: totalPages,
	}, nil
}

// UpdateExifData stores extracted metadata and, when known, the capture date.
func (d *Database) UpdateExifData(ctx context.Context, id int64, exif map[string]string, mediaDate *time.Time) error {
	data, err := json.Marshal(exif)
	if err != nil {
		return fmt.Errorf("failed to encode exif data: %w", err)
	}

	var date interface{}
	if mediaDate != nil {
		date = mediaDate.Unix()
	}

	return d.updateItem(ctx, "update_exif", `
		UPDATE media_items SET exif_data = ?, media_date = COALESCE(?, media_date), updated_at = strftime('%s', 'now')
		WHERE id = ?
	`, string(data), date, id)
}

// UpdateMediaDate sets the capture date of an item.
func (d *Database) UpdateMediaDate(ctx context.Context, id int64, t time.Time) error {
	return d.updateItem(ctx, "update_media_date", `
		UPDATE media_items SET media_date = ?, updated_at = strftime('%s', 'now') WHERE id = ?
	`, t.Unix(), id)
}

// UpdateThumbnailPath records where the item's thumbnail blob is stored.
func (d *Database) UpdateThumbnailPath(ctx context.Context, id int64, path string) error {
	return d.updateItem(ctx, "update_thumbnail_path", `
		UPDATE media_items SET thumbnail_path = ?, updated_at = strftime('%s', 'now') WHERE id = ?
	`, path, id)
}

// UpdateAnalysis stores the output of the analysis operation.
func (d *Database) UpdateAnalysis(ctx context.Context, id int64, r AnalysisResult) error {
	return d.updateItem(ctx, "update_analysis", `
		UPDATE media_items SET width = ?, height = ?, dominant_color = ?, sharpness = ?,
			visual_hash = NULLIF(?, ''), uniformity = NULLIF(?, ''), updated_at = strftime('%s', 'now')
		WHERE id = ?
	`, r.Width, r.Height, r.DominantColor, r.Sharpness, r.VisualHash, r.Uniformity, id)
}

func (d *Database) updateItem(ctx context.Context, op, query string, args ...interface{}) error {
	start := time.Now()
	var err error
	defer recordQuery(op, start, &err)

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
	}
	return err
}

// GetCatalogStats summarises the catalog contents.
func (d *Database) GetCatalogStats(ctx context.Context) (*CatalogStats, error) {
	start := time.Now()
	var err error
	defer recordQuery("catalog_stats", start, &err)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &CatalogStats{ByCategory: make(map[string]int)}
	err = d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0),
			COUNT(NULLIF(thumbnail_path, '')),
			COUNT(media_date)
		FROM media_items
	`).Scan(&stats.TotalItems, &stats.TotalBytes, &stats.WithThumbnails, &stats.WithMediaDate)
	if err != nil {
		return nil, err
	}

	if stats.ByCategory, err = d.itemsByCategoryNoLock(ctx); err != nil {
		return nil, err
	}

	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_folders`).Scan(&stats.ScanFolders); err != nil {
		return nil, err
	}

	var lastScan sql.NullString
	err = d.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, keyLastScan).Scan(&lastScan)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	err = nil
	if t, perr := time.Parse(time.RFC3339, lastScan.String); perr == nil {
		stats.LastScan = &t
	}

	return stats, nil
}

func (d *Database) itemsByCategoryNoLock(ctx context.Context) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT COALESCE(ft.category, 'unknown'), COUNT(*)
		FROM media_items m LEFT JOIN file_types ft ON ft.id = m.file_type_id
		GROUP BY 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[category] = n
	}
	return counts, rows.Err()
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
