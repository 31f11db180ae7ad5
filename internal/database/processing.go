package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-catalog/internal/metrics"
)

// MarkStarted records that op has begun on an item.
func (d *Database) MarkStarted(ctx context.Context, itemID int64, op OperationType) error {
	return d.upsertState(ctx, itemID, op, StatusProcessing, "", nil)
}

// MarkSuccess records a successful run of op on an item.
func (d *Database) MarkSuccess(ctx context.Context, itemID int64, op OperationType, message string, meta Metadata) error {
	return d.upsertState(ctx, itemID, op, StatusSuccess, message, meta)
}

// MarkError records a failed run of op on an item.
func (d *Database) MarkError(ctx context.Context, itemID int64, op OperationType, message string, meta Metadata) error {
	return d.upsertState(ctx, itemID, op, StatusError, message, meta)
}

// MarkSkipped records that op was deliberately not applied to an item.
func (d *Database) MarkSkipped(ctx context.Context, itemID int64, op OperationType, message string, meta Metadata) error {
	return d.upsertState(ctx, itemID, op, StatusSkipped, message, meta)
}

// MarkAborted records that a run was cancelled while this item was next.
func (d *Database) MarkAborted(ctx context.Context, itemID int64, op OperationType, message string) error {
	return d.upsertState(ctx, itemID, op, StatusAborted, message, nil)
}

// upsertState writes the single ledger row for (itemID, op).
func (d *Database) upsertState(ctx context.Context, itemID int64, op OperationType, status Status, message string, meta Metadata) error {
	start := time.Now()
	var err error
	defer recordQuery("upsert_state", start, &err)

	var metaJSON interface{}
	if len(meta) > 0 {
		var data []byte
		if data, err = json.Marshal(meta); err != nil {
			return fmt.Errorf("failed to encode state metadata: %w", err)
		}
		metaJSON = string(data)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO processing_states (media_item_id, type, status, message, metadata, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(media_item_id, type) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			metadata = excluded.metadata,
			processed_at = excluded.processed_at
	`, itemID, string(op), string(status), message, metaJSON, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record %s %s for item %d: %w", op, status, itemID, err)
	}
	return nil
}

func scanState(row rowScanner) (ProcessingState, error) {
	var (
		st          ProcessingState
		op, status  string
		meta        sql.NullString
		processedAt int64
	)
	if err := row.Scan(&st.MediaItemID, &op, &status, &st.Message, &meta, &processedAt); err != nil {
		return st, err
	}
	st.Type = OperationType(op)
	st.Status = Status(status)
	st.ProcessedAt = time.Unix(0, processedAt).UTC()
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &st.Metadata); err != nil {
			return st, fmt.Errorf("invalid metadata for item %d: %w", st.MediaItemID, err)
		}
	}
	return st, nil
}

// GetProcessingState returns the ledger row for (itemID, op).
func (d *Database) GetProcessingState(ctx context.Context, itemID int64, op OperationType) (*ProcessingState, error) {
	start := time.Now()
	var err error
	defer recordQuery("get_state", start, &err)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	st, err := scanState(d.db.QueryRowContext(ctx, `
		SELECT media_item_id, type, status, message, metadata, processed_at
		FROM processing_states WHERE media_item_id = ? AND type = ?
	`, itemID, string(op)))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListProcessingStates returns every ledger row of an item.
func (d *Database) ListProcessingStates(ctx context.Context, itemID int64) ([]ProcessingState, error) {
	start := time.Now()
	var err error
	defer recordQuery("list_states", start, &err)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT media_item_id, type, status, message, metadata, processed_at
		FROM processing_states WHERE media_item_id = ? ORDER BY type
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := []ProcessingState{}
	for rows.Next() {
		var st ProcessingState
		if st, err = scanState(rows); err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	err = rows.Err()
	return states, err
}

// ResetProcessingStates deletes the ledger rows of op, restricted to the
// given statuses when any are passed. Resetting thumbnail rows also clears
// thumbnail_path on the affected items. It returns the number of rows removed.
func (d *Database) ResetProcessingStates(ctx context.Context, op OperationType, statuses ...Status) (int64, error) {
	start := time.Now()
	var err error
	defer recordQuery("reset_states", start, &err)

	cond := "type = ?"
	args := []interface{}{string(op)}
	if len(statuses) > 0 {
		cond += " AND status IN (" + placeholders(len(statuses)) + ")"
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}

	tx, err := d.BeginBatch(ctx)
	if err != nil {
		return 0, err
	}

	if op == OpThumbnail {
		_, err = tx.ExecContext(ctx, `
			UPDATE media_items SET thumbnail_path = NULL
			WHERE id IN (SELECT media_item_id FROM processing_states WHERE `+cond+`)
		`, args...)
		if err != nil {
			err = d.EndBatch(tx, fmt.Errorf("failed to clear thumbnail paths: %w", err))
			return 0, err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM processing_states WHERE `+cond, args...)
	if err != nil {
		err = d.EndBatch(tx, fmt.Errorf("failed to delete states: %w", err))
		return 0, err
	}
	n, _ := res.RowsAffected()

	if err = d.EndBatch(tx, nil); err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.DBRowsAffected.WithLabelValues("reset_states").Observe(float64(n))
	}
	return n, nil
}

// ListStatesForExport returns every ledger row of op joined with the item
// path, ordered by item id.
func (d *Database) ListStatesForExport(ctx context.Context, op OperationType) ([]ExportRow, error) {
	start := time.Now()
	var err error
	defer recordQuery("export_states", start, &err)

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT ps.media_item_id, m.file_path, ps.type, ps.status, ps.message,
			COALESCE(ps.metadata, ''), ps.processed_at
		FROM processing_states ps JOIN media_items m ON m.id = ps.media_item_id
		WHERE ps.type = ?
		ORDER BY ps.media_item_id
	`, string(op))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExportRow
	for rows.Next() {
		var r ExportRow
		var processedAt int64
		if err = rows.Scan(&r.MediaItemID, &r.FilePath, &r.Type, &r.Status, &r.Message, &r.Metadata, &processedAt); err != nil {
			return nil, err
		}
		r.ProcessedAt = time.Unix(0, processedAt).UTC()
		out = append(out, r)
	}
	err = rows.Err()
	return out, err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
