package database

import (
	"context"
	"fmt"
	"time"
)

// doneStatuses returns the statuses that take an item out of op's queue.
func doneStatuses(retryFailed bool) []Status {
	if retryFailed {
		return []Status{StatusSuccess, StatusSkipped}
	}
	return []Status{StatusSuccess, StatusSkipped, StatusError}
}

// eligibleWhere builds the FROM/WHERE clause shared by FindUnprocessed and
// CountEligible.
//
// An item is eligible when its file type is not ignored (unresolvable types
// count as not ignored), it has no ledger row for the operation or its row is
// outside the done set and older than since, and, when categories are given,
// its category is one of them or unresolvable.
func eligibleWhere(q FinderQuery) (string, []interface{}) {
	done := doneStatuses(q.RetryFailed)

	args := []interface{}{string(q.Operation)}
	clause := `
		FROM media_items m
		LEFT JOIN file_types ft ON ft.id = m.file_type_id
		LEFT JOIN processing_states ps ON ps.media_item_id = m.id AND ps.type = ?
		WHERE COALESCE(ft.ignored, 0) = 0
		AND (ps.id IS NULL OR (ps.status NOT IN (` + placeholders(len(done)) + `) AND ps.processed_at < ?))`
	for _, s := range done {
		args = append(args, string(s))
	}
	args = append(args, q.Since.UnixNano())

	if len(q.Categories) > 0 {
		clause += ` AND (ft.id IS NULL OR ft.category IN (` + placeholders(len(q.Categories)) + `))`
		for _, c := range q.Categories {
			args = append(args, c)
		}
	}

	return clause, args
}

// FindUnprocessed returns up to q.Limit eligible items ordered by id, plus the
// uncapped number of eligible items.
func (d *Database) FindUnprocessed(ctx context.Context, q FinderQuery) (*UnprocessedPage, error) {
	start := time.Now()
	var err error
	defer recordQuery("find_unprocessed", start, &err)

	if q.Limit < 1 {
		q.Limit = 100
	}
	if q.Since.IsZero() {
		q.Since = time.Now()
	}

	clause, args := eligibleWhere(q)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	page := &UnprocessedPage{}
	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*)`+clause, args...).Scan(&page.TotalAvailable); err != nil {
		return nil, fmt.Errorf("failed to count unprocessed items: %w", err)
	}
	if page.TotalAvailable == 0 {
		return page, nil
	}

	rows, err := d.db.QueryContext(ctx, `SELECT `+mediaColumns+clause+` ORDER BY m.id LIMIT ?`, append(args, q.Limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed items: %w", err)
	}
	defer rows.Close()

	page.Items = make([]MediaItem, 0, min(q.Limit, page.TotalAvailable))
	for rows.Next() {
		var item MediaItem
		if item, err = scanMediaItem(rows); err != nil {
			return nil, fmt.Errorf("failed to scan unprocessed item: %w", err)
		}
		page.Items = append(page.Items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return page, nil
}

// CountEligible returns how many items a run of op started now would visit.
func (d *Database) CountEligible(ctx context.Context, op OperationType, retryFailed bool, categories []string) (int, error) {
	start := time.Now()
	var err error
	defer recordQuery("count_eligible", start, &err)

	clause, args := eligibleWhere(FinderQuery{
		Operation:   op,
		Since:       time.Now(),
		RetryFailed: retryFailed,
		Categories:  categories,
	})

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err = d.db.QueryRowContext(ctx, `SELECT COUNT(*)`+clause, args...).Scan(&n)
	return n, err
}

// CountStates returns the number of ledger rows of op per status.
func (d *Database) CountStates(ctx context.Context, op OperationType) (map[Status]int, error) {
	start := time.Now()
	var err error
	defer recordQuery("count_states", start, &err)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM processing_states WHERE type = ? GROUP BY status
	`, string(op))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err = rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	err = rows.Err()
	return counts, err
}

// ListFailed returns up to limit items whose op row is an error, most recent first.
func (d *Database) ListFailed(ctx context.Context, op OperationType, limit int) ([]FailedItem, error) {
	start := time.Now()
	var err error
	defer recordQuery("list_failed", start, &err)

	if limit < 1 || limit > 1000 {
		limit = 100
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+mediaColumns+`, ps.message, ps.processed_at
		FROM processing_states ps
		JOIN media_items m ON m.id = ps.media_item_id
		LEFT JOIN file_types ft ON ft.id = m.file_type_id
		WHERE ps.type = ? AND ps.status = ?
		ORDER BY ps.processed_at DESC
		LIMIT ?
	`, string(op), string(StatusError), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	failed := []FailedItem{}
	for rows.Next() {
		var (
			fi          FailedItem
			processedAt int64
		)
		fi.Item, err = scanMediaItem(failedRow{rows, &fi.Message, &processedAt})
		if err != nil {
			return nil, err
		}
		fi.ProcessedAt = time.Unix(0, processedAt).UTC()
		failed = append(failed, fi)
	}
	err = rows.Err()
	return failed, err
}

// failedRow appends the ledger columns selected by ListFailed to the scan
// destinations of scanMediaItem.
type failedRow struct {
	row         rowScanner
	message     *string
	processedAt *int64
}

func (f failedRow) Scan(dest ...interface{}) error {
	return f.row.Scan(append(dest, f.message, f.processedAt)...)
}
