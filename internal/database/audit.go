package database

import (
	"context"
	"fmt"
	"time"

	"media-catalog/internal/mediatypes"
)

// imageCategoryClause restricts a query on ft to non-ignored image types.
func imageCategoryClause() (string, []interface{}) {
	args := make([]interface{}, 0, len(mediatypes.ImageCategories))
	for _, c := range mediatypes.ImageCategories {
		args = append(args, c)
	}
	return `ft.ignored = 0 AND ft.category IN (` + placeholders(len(args)) + `)`, args
}

// ListHashedItems returns every image item that has a visual hash, ordered by
// hash so near-identical hashes sit close together.
func (d *Database) ListHashedItems(ctx context.Context) ([]MediaItem, error) {
	start := time.Now()
	var err error
	defer recordQuery("list_hashed_items", start, &err)

	cond, args := imageCategoryClause()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+mediaColumns+`
		FROM media_items m JOIN file_types ft ON ft.id = m.file_type_id
		WHERE m.visual_hash IS NOT NULL AND m.visual_hash != '' AND `+cond+`
		ORDER BY m.visual_hash, m.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashed items: %w", err)
	}
	defer rows.Close()

	var items []MediaItem
	for rows.Next() {
		var item MediaItem
		if item, err = scanMediaItem(rows); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	err = rows.Err()
	return items, err
}

// ListThumbnailAudit samples up to limit image items in random order, each
// with its thumbnail ledger row when one exists.
func (d *Database) ListThumbnailAudit(ctx context.Context, limit int) ([]ThumbnailAuditRow, error) {
	start := time.Now()
	var err error
	defer recordQuery("list_thumbnail_audit", start, &err)

	if limit < 1 {
		limit = 100
	}
	cond, args := imageCategoryClause()
	args = append([]interface{}{string(OpThumbnail)}, args...)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT m.id, m.file_name, COALESCE(m.thumbnail_path, ''), COALESCE(ps.status, ''), COALESCE(ps.message, '')
		FROM media_items m
		JOIN file_types ft ON ft.id = m.file_type_id
		LEFT JOIN processing_states ps ON ps.media_item_id = m.id AND ps.type = ?
		WHERE `+cond+`
		ORDER BY RANDOM()
		LIMIT ?
	`, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query thumbnail audit: %w", err)
	}
	defer rows.Close()

	var out []ThumbnailAuditRow
	for rows.Next() {
		var r ThumbnailAuditRow
		var status string
		if err = rows.Scan(&r.ItemID, &r.FileName, &r.ThumbnailPath, &status, &r.Message); err != nil {
			return nil, err
		}
		r.Status = Status(status)
		out = append(out, r)
	}
	err = rows.Err()
	return out, err
}
