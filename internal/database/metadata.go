package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const keyLastScan = "last_scan_time"

func lastRunKey(op OperationType) string {
	return "last_run_" + string(op)
}

// GetMetadata retrieves a metadata value by key.
// Returns ErrNotFound if the key doesn't exist.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value sql.NullString
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (d *Database) getTime(ctx context.Context, key string) (time.Time, error) {
	value, err := d.GetMetadata(ctx, key)
	if errors.Is(err, ErrNotFound) || (err == nil && value == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

func (d *Database) setTime(ctx context.Context, key string, t time.Time) error {
	if t.IsZero() {
		return d.SetMetadata(ctx, key, "")
	}
	return d.SetMetadata(ctx, key, t.UTC().Format(time.RFC3339))
}

// GetLastRun returns when a batch run of op last finished.
// Returns zero time if never run.
func (d *Database) GetLastRun(ctx context.Context, op OperationType) (time.Time, error) {
	return d.getTime(ctx, lastRunKey(op))
}

// SetLastRun stores when a batch run of op finished.
func (d *Database) SetLastRun(ctx context.Context, op OperationType, t time.Time) error {
	return d.setTime(ctx, lastRunKey(op), t)
}

// GetLastScan returns when the folder scanner last completed.
func (d *Database) GetLastScan(ctx context.Context) (time.Time, error) {
	return d.getTime(ctx, keyLastScan)
}

// SetLastScan stores when the folder scanner completed.
func (d *Database) SetLastScan(ctx context.Context, t time.Time) error {
	return d.setTime(ctx, keyLastScan, t)
}
