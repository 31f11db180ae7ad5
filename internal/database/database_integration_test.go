package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-catalog/internal/mediatypes"
)

// setupTestDB creates a seeded database in a temp directory.
func setupTestDB(t testing.TB) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.SeedFileTypes(context.Background()); err != nil {
		t.Fatalf("SeedFileTypes failed: %v", err)
	}
	return db
}

// addItems indexes files named names under /library and returns them in order.
func addItems(t testing.TB, db *Database, names ...string) []MediaItem {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	tx, err := db.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("BeginBatch failed: %v", err)
	}

	items := make([]MediaItem, 0, len(names))
	for i, name := range names {
		item := MediaItem{
			FileName:   name,
			FilePath:   filepath.Join("/library", name),
			FolderPath: "/library",
			Extension:  mediatypes.ExtensionOf(name),
			SizeBytes:  int64(1024 * (i + 1)),
			ModifiedAt: now.Add(-time.Duration(i) * time.Hour),
		}
		if ext := filepath.Ext(name); ext != "" {
			id, _, err := db.EnsureFileType(ctx, tx, ext)
			if err != nil {
				t.Fatalf("EnsureFileType(%s) failed: %v", ext, err)
			}
			item.FileTypeID = &id
		}
		if _, err := db.UpsertMediaItem(ctx, tx, &item, now); err != nil {
			t.Fatalf("UpsertMediaItem(%s) failed: %v", name, err)
		}
		items = append(items, item)
	}

	if err := db.EndBatch(tx, nil); err != nil {
		t.Fatalf("EndBatch failed: %v", err)
	}
	return items
}

func ids(items []MediaItem) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestNewDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	// Reopening runs the migrations against an existing schema.
	db2, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	db2.Close()
}

func TestSeedFileTypesIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	n, err := db.SeedFileTypes(ctx)
	if err != nil {
		t.Fatalf("SeedFileTypes failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second seed inserted %d rows, want 0", n)
	}

	types, err := db.ListFileTypes(ctx)
	if err != nil {
		t.Fatalf("ListFileTypes failed: %v", err)
	}
	found := false
	for _, ft := range types {
		if ft.Extension == "jpg" {
			found = true
			if ft.Category != "image" || ft.Ignore {
				t.Errorf("jpg = %+v, want image and not ignored", ft)
			}
		}
	}
	if !found {
		t.Error("jpg was not seeded")
	}
}

func TestFindUnprocessedEligibility(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	items := addItems(t, db,
		"a.jpg",     // no ledger row
		"b.jpg",     // success
		"c.jpg",     // error
		"d.jpg",     // aborted
		"e.xmp",     // ignored type
		"f",         // unresolvable type
		"g.mp4",     // wrong category for thumbnail
		"h.jpg",     // processing, left over from a crashed run
		"i.jpg",     // skipped
	)

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(db.MarkSuccess(ctx, items[1].ID, OpThumbnail, "", nil))
	must(db.MarkError(ctx, items[2].ID, OpThumbnail, "boom", nil))
	must(db.MarkAborted(ctx, items[3].ID, OpThumbnail, "Processing aborted by user"))
	must(db.MarkStarted(ctx, items[7].ID, OpThumbnail))
	must(db.MarkSkipped(ctx, items[8].ID, OpThumbnail, "Large file (over 5 MB)", nil))

	tests := []struct {
		name  string
		query FinderQuery
		want  []int64
	}{
		{
			name:  "default",
			query: FinderQuery{Operation: OpThumbnail, Limit: 100},
			want:  []int64{items[0].ID, items[3].ID, items[5].ID, items[6].ID, items[7].ID},
		},
		{
			name:  "retry failed",
			query: FinderQuery{Operation: OpThumbnail, Limit: 100, RetryFailed: true},
			want:  []int64{items[0].ID, items[2].ID, items[3].ID, items[5].ID, items[6].ID, items[7].ID},
		},
		{
			name:  "image categories keep unresolvable",
			query: FinderQuery{Operation: OpThumbnail, Limit: 100, Categories: []string{"image", "raw_image"}},
			want:  []int64{items[0].ID, items[3].ID, items[5].ID, items[7].ID},
		},
		{
			name:  "limit",
			query: FinderQuery{Operation: OpThumbnail, Limit: 2},
			want:  []int64{items[0].ID, items[3].ID},
		},
		{
			name:  "other operation sees everything not ignored",
			query: FinderQuery{Operation: OpExif, Limit: 100},
			want:  []int64{items[0].ID, items[1].ID, items[2].ID, items[3].ID, items[5].ID, items[6].ID, items[7].ID, items[8].ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.query.Since = time.Now()
			page, err := db.FindUnprocessed(ctx, tt.query)
			if err != nil {
				t.Fatalf("FindUnprocessed failed: %v", err)
			}
			got := ids(page.Items)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("items = %v, want %v", got, tt.want)
			}
			if tt.name == "limit" && page.TotalAvailable != 5 {
				t.Errorf("TotalAvailable = %d, want 5", page.TotalAvailable)
			}
		})
	}
}

func TestFindUnprocessedSinceCutoff(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	items := addItems(t, db, "a.jpg", "b.jpg")

	since := time.Now()
	// Written during the run: not returned again even though not done.
	if err := db.MarkStarted(ctx, items[0].ID, OpExif); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkAborted(ctx, items[1].ID, OpExif, "aborted"); err != nil {
		t.Fatal(err)
	}

	page, err := db.FindUnprocessed(ctx, FinderQuery{Operation: OpExif, Limit: 10, Since: since, RetryFailed: true})
	if err != nil {
		t.Fatalf("FindUnprocessed failed: %v", err)
	}
	if len(page.Items) != 0 || page.TotalAvailable != 0 {
		t.Errorf("got %d items (total %d), want none", len(page.Items), page.TotalAvailable)
	}

	// A later run picks both up again.
	page, err = db.FindUnprocessed(ctx, FinderQuery{Operation: OpExif, Limit: 10, Since: time.Now()})
	if err != nil {
		t.Fatalf("FindUnprocessed failed: %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("got %d items, want 2", len(page.Items))
	}
}

func TestLedgerSingleRowPerItemAndOperation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	item := addItems(t, db, "a.jpg")[0]

	steps := []func() error{
		func() error { return db.MarkStarted(ctx, item.ID, OpExif) },
		func() error { return db.MarkError(ctx, item.ID, OpExif, "first", Metadata{"attempt": 1}) },
		func() error { return db.MarkStarted(ctx, item.ID, OpExif) },
		func() error { return db.MarkSuccess(ctx, item.ID, OpExif, "done", Metadata{"tags": 12}) },
		func() error { return db.MarkSuccess(ctx, item.ID, OpExif, "done", Metadata{"tags": 12}) },
		func() error { return db.MarkSkipped(ctx, item.ID, OpThumbnail, "Ignored file type", nil) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	states, err := db.ListProcessingStates(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListProcessingStates failed: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("got %d rows, want 2 (one per operation)", len(states))
	}

	st, err := db.GetProcessingState(ctx, item.ID, OpExif)
	if err != nil {
		t.Fatalf("GetProcessingState failed: %v", err)
	}
	if st.Status != StatusSuccess || st.Message != "done" {
		t.Errorf("state = %s %q, want success \"done\"", st.Status, st.Message)
	}
	if st.Metadata["tags"] != float64(12) {
		t.Errorf("metadata = %v, want tags=12", st.Metadata)
	}

	counts, err := db.CountStates(ctx, OpExif)
	if err != nil {
		t.Fatalf("CountStates failed: %v", err)
	}
	if counts[StatusSuccess] != 1 || counts[StatusError] != 0 {
		t.Errorf("counts = %v, want one success", counts)
	}

	if _, err := db.GetProcessingState(ctx, item.ID, OpAnalysis); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProcessingState(missing) error = %v, want ErrNotFound", err)
	}
}

func TestResetProcessingStates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	items := addItems(t, db, "a.jpg", "b.jpg", "c.jpg")

	for i, it := range items {
		if err := db.UpdateThumbnailPath(ctx, it.ID, fmt.Sprintf("thumbnails/%d.jpg", it.ID)); err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			if err := db.MarkError(ctx, it.ID, OpThumbnail, "bad", nil); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := db.MarkSuccess(ctx, it.ID, OpThumbnail, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.ResetProcessingStates(ctx, OpThumbnail, StatusError)
	if err != nil {
		t.Fatalf("ResetProcessingStates failed: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d rows, want 1", n)
	}

	first, err := db.GetMediaItem(ctx, items[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.ThumbnailPath != "" {
		t.Errorf("thumbnail_path = %q, want cleared", first.ThumbnailPath)
	}
	second, err := db.GetMediaItem(ctx, items[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.ThumbnailPath == "" {
		t.Error("thumbnail_path of a successful item was cleared")
	}

	if n, err = db.ResetProcessingStates(ctx, OpThumbnail); err != nil || n != 2 {
		t.Errorf("reset all = %d, %v, want 2, nil", n, err)
	}
}

func TestListFailed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	items := addItems(t, db, "a.jpg", "b.jpg")

	if err := db.MarkError(ctx, items[1].ID, OpAnalysis, "Unsupported image format", nil); err != nil {
		t.Fatal(err)
	}

	failed, err := db.ListFailed(ctx, OpAnalysis, 10)
	if err != nil {
		t.Fatalf("ListFailed failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("got %d failed items, want 1", len(failed))
	}
	if failed[0].Item.ID != items[1].ID || failed[0].Message != "Unsupported image format" {
		t.Errorf("failed[0] = %+v", failed[0])
	}
	if failed[0].Item.Category != "image" {
		t.Errorf("category = %q, want image", failed[0].Item.Category)
	}
}

func TestUpsertMediaItemResetsStatesOnChange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	item := addItems(t, db, "a.jpg")[0]

	if err := db.MarkSuccess(ctx, item.ID, OpExif, "", nil); err != nil {
		t.Fatal(err)
	}

	rescan := func(size int64) bool {
		t.Helper()
		tx, err := db.BeginBatch(ctx)
		if err != nil {
			t.Fatal(err)
		}
		it := item
		it.SizeBytes = size
		changed, err := db.UpsertMediaItem(ctx, tx, &it, time.Now())
		if err := db.EndBatch(tx, err); err != nil {
			t.Fatal(err)
		}
		if it.ID != item.ID {
			t.Errorf("id changed from %d to %d", item.ID, it.ID)
		}
		return changed
	}

	if rescan(item.SizeBytes) {
		t.Error("unchanged file reported as changed")
	}
	if _, err := db.GetProcessingState(ctx, item.ID, OpExif); err != nil {
		t.Errorf("state lost on unchanged rescan: %v", err)
	}

	if !rescan(item.SizeBytes + 1) {
		t.Error("resized file not reported as changed")
	}
	if _, err := db.GetProcessingState(ctx, item.ID, OpExif); !errors.Is(err, ErrNotFound) {
		t.Errorf("state kept after content change, err = %v", err)
	}
}

func TestDeleteMissingItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	items := addItems(t, db, "a.jpg", "b.jpg")

	if err := db.MarkSuccess(ctx, items[0].ID, OpExif, "", nil); err != nil {
		t.Fatal(err)
	}

	tx, err := db.BeginBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	n, err := db.DeleteMissingItems(ctx, tx, "/library", time.Now().Add(time.Hour))
	if err := db.EndBatch(tx, err); err != nil {
		t.Fatalf("DeleteMissingItems failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d items, want 2", n)
	}

	if _, err := db.GetMediaItem(ctx, items[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMediaItem after delete error = %v, want ErrNotFound", err)
	}
	counts, err := db.CountStates(ctx, OpExif)
	if err != nil {
		t.Fatal(err)
	}
	if counts[StatusSuccess] != 0 {
		t.Error("ledger rows survived item deletion")
	}
}

func TestListMediaFilters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	items := addItems(t, db, "beach.jpg", "clip.mp4", "city_night.jpg")

	if err := db.UpdateThumbnailPath(ctx, items[0].ID, "thumbnails/1.jpg"); err != nil {
		t.Fatal(err)
	}
	date := time.Date(2019, 7, 4, 12, 0, 0, 0, time.UTC)
	if err := db.UpdateMediaDate(ctx, items[2].ID, date); err != nil {
		t.Fatal(err)
	}

	yes := true
	from := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter MediaFilter
		want   []int64
	}{
		{"all by name", MediaFilter{}, []int64{items[0].ID, items[2].ID, items[1].ID}},
		{"category", MediaFilter{Category: "video"}, []int64{items[1].ID}},
		{"has thumbnail", MediaFilter{HasThumbnail: &yes}, []int64{items[0].ID}},
		{"search escapes underscore", MediaFilter{Search: "y_n"}, []int64{items[2].ID}},
		{"date range", MediaFilter{From: &from, To: &to}, []int64{items[2].ID}},
		{"size desc", MediaFilter{Sort: "size", Order: "desc"}, []int64{items[2].ID, items[1].ID, items[0].ID}},
		{"paged", MediaFilter{PageSize: 1, Page: 2}, []int64{items[2].ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := db.ListMedia(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListMedia failed: %v", err)
			}
			if got := ids(page.Items); fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("items = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestItemUpdates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	item := addItems(t, db, "a.jpg")[0]

	date := time.Date(2021, 3, 14, 9, 26, 53, 0, time.UTC)
	if err := db.UpdateExifData(ctx, item.ID, map[string]string{"Make": "Canon"}, &date); err != nil {
		t.Fatalf("UpdateExifData failed: %v", err)
	}
	if err := db.UpdateAnalysis(ctx, item.ID, AnalysisResult{Width: 640, Height: 480, DominantColor: "#102030", Sharpness: 12.5}); err != nil {
		t.Fatalf("UpdateAnalysis failed: %v", err)
	}

	got, err := db.GetMediaItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MediaDate == nil || !got.MediaDate.Equal(date) {
		t.Errorf("MediaDate = %v, want %v", got.MediaDate, date)
	}
	if string(got.ExifData) != `{"Make":"Canon"}` {
		t.Errorf("ExifData = %s", got.ExifData)
	}
	if got.Width != 640 || got.Height != 480 || got.DominantColor != "#102030" {
		t.Errorf("analysis fields = %dx%d %s", got.Width, got.Height, got.DominantColor)
	}
	if got.Sharpness == nil || *got.Sharpness != 12.5 {
		t.Errorf("Sharpness = %v, want 12.5", got.Sharpness)
	}

	if err := db.UpdateMediaDate(ctx, 9999, date); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateMediaDate(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFileTypeCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ft, err := db.CreateFileType(ctx, FileType{Extension: ".JXL", Category: "image"})
	if err != nil {
		t.Fatalf("CreateFileType failed: %v", err)
	}
	if ft.Extension != "jxl" {
		t.Errorf("Extension = %q, want jxl", ft.Extension)
	}

	ft.Ignore = true
	if err := db.UpdateFileType(ctx, *ft); err != nil {
		t.Fatalf("UpdateFileType failed: %v", err)
	}
	got, err := db.GetFileType(ctx, ft.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Ignore {
		t.Error("Ignore not persisted")
	}

	if _, err := db.CreateFileType(ctx, FileType{Extension: "jxl"}); err == nil {
		t.Error("duplicate extension accepted")
	}
	if err := db.UpdateFileType(ctx, FileType{ID: 9999}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateFileType(missing) error = %v, want ErrNotFound", err)
	}
}

func TestScanFoldersAndMetadata(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.AddScanFolder(ctx, "relative/path", true); err == nil {
		t.Error("relative scan folder accepted")
	}
	f, err := db.AddScanFolder(ctx, "/photos/", false)
	if err != nil {
		t.Fatalf("AddScanFolder failed: %v", err)
	}
	if f.Path != "/photos" {
		t.Errorf("Path = %q, want cleaned /photos", f.Path)
	}

	now := time.Now().Truncate(time.Second)
	if err := db.TouchScanFolder(ctx, "/photos", now); err != nil {
		t.Fatal(err)
	}
	folders, err := db.ListScanFolders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(folders) != 1 || folders[0].LastScanned == nil || !folders[0].LastScanned.Equal(now) {
		t.Errorf("folders = %+v", folders)
	}

	if err := db.DeleteScanFolder(ctx, f.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteScanFolder(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}

	last, err := db.GetLastRun(ctx, OpExif)
	if err != nil || !last.IsZero() {
		t.Errorf("GetLastRun before any run = %v, %v", last, err)
	}
	if err := db.SetLastRun(ctx, OpExif, now); err != nil {
		t.Fatal(err)
	}
	if last, _ = db.GetLastRun(ctx, OpExif); !last.Equal(now) {
		t.Errorf("GetLastRun = %v, want %v", last, now)
	}
}

func TestCollectStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	items := addItems(t, db, "a.jpg", "b.mp4", "c")

	if err := db.MarkSuccess(ctx, items[0].ID, OpThumbnail, "", nil); err != nil {
		t.Fatal(err)
	}

	stats, err := db.CollectStats(context.Background())
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}
	if stats.ItemsByCategory["image"] != 1 || stats.ItemsByCategory["video"] != 1 || stats.ItemsByCategory["unknown"] != 1 {
		t.Errorf("ItemsByCategory = %v", stats.ItemsByCategory)
	}
	if stats.StatesByOperation["thumbnail"]["success"] != 1 {
		t.Errorf("StatesByOperation = %v", stats.StatesByOperation)
	}

	cs, err := db.GetCatalogStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cs.TotalItems != 3 || cs.TotalBytes != 1024+2048+3072 {
		t.Errorf("catalog stats = %+v", cs)
	}
}

// upsertAt indexes item in its own scan transaction stamped at.
func upsertAt(t testing.TB, db *Database, item *MediaItem, at time.Time) {
	t.Helper()
	ctx := context.Background()
	tx, err := db.BeginBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.UpsertMediaItem(ctx, tx, item, at)
	if err := db.EndBatch(tx, err); err != nil {
		t.Fatalf("UpsertMediaItem(%s) failed: %v", item.FilePath, err)
	}
}

func TestResolvedFileTypeClearsUnsupportedErrors(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	item := MediaItem{
		FileName:   "scan.xyz",
		FilePath:   "/library/scan.xyz",
		FolderPath: "/library",
		Extension:  "xyz",
		SizeBytes:  10,
		ModifiedAt: now.Add(-time.Hour),
	}
	upsertAt(t, db, &item, now)

	if err := db.MarkError(ctx, item.ID, OpExif, MsgUnsupportedFileType, nil); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkError(ctx, item.ID, OpAnalysis, "Failed to decode image", nil); err != nil {
		t.Fatal(err)
	}

	types, err := db.ListFileTypes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	typeID := types[0].ID
	rescan := item
	rescan.ID = 0
	rescan.FileTypeID = &typeID
	upsertAt(t, db, &rescan, now.Add(time.Minute))

	got, err := db.GetMediaItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FileTypeID == nil || *got.FileTypeID != typeID {
		t.Errorf("FileTypeID = %v, want %d", got.FileTypeID, typeID)
	}
	if _, err := db.GetProcessingState(ctx, item.ID, OpExif); !errors.Is(err, ErrNotFound) {
		t.Errorf("unsupported-type error row survived, err = %v", err)
	}
	if st, err := db.GetProcessingState(ctx, item.ID, OpAnalysis); err != nil || st.Status != StatusError {
		t.Errorf("unrelated error row = %+v, %v, want kept", st, err)
	}

	// A later rescan with the type already set leaves the ledger alone.
	if err := db.MarkError(ctx, item.ID, OpExif, MsgUnsupportedFileType, nil); err != nil {
		t.Fatal(err)
	}
	upsertAt(t, db, &rescan, now.Add(2*time.Minute))
	if _, err := db.GetProcessingState(ctx, item.ID, OpExif); err != nil {
		t.Errorf("row cleared on a rescan that did not resolve the type: %v", err)
	}
}

func TestDeleteMissingItemsWithinOneSecond(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := time.Date(2024, 5, 1, 10, 0, 0, 100_000_000, time.UTC)
	second := first.Add(200 * time.Millisecond)

	gone := MediaItem{FileName: "gone.jpg", FilePath: "/library/gone.jpg", FolderPath: "/library", Extension: "jpg", SizeBytes: 1, ModifiedAt: first}
	kept := MediaItem{FileName: "kept.jpg", FilePath: "/library/kept.jpg", FolderPath: "/library", Extension: "jpg", SizeBytes: 1, ModifiedAt: first}
	upsertAt(t, db, &gone, first)
	upsertAt(t, db, &kept, first)
	// The second scan, in the same wall-clock second, only sees kept.jpg.
	upsertAt(t, db, &kept, second)

	tx, err := db.BeginBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	n, err := db.DeleteMissingItems(ctx, tx, "/library", second)
	if err := db.EndBatch(tx, err); err != nil {
		t.Fatalf("DeleteMissingItems failed: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d items, want 1", n)
	}
	if _, err := db.GetMediaItem(ctx, gone.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("gone.jpg error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetMediaItem(ctx, kept.ID); err != nil {
		t.Errorf("kept.jpg was deleted: %v", err)
	}
}

func TestVisualHashAndUniformity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	items := addItems(t, db, "a.jpg", "b.jpg", "c.jpg", "clip.mp4")

	hash := "00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff"
	results := []AnalysisResult{
		{Width: 10, Height: 10, VisualHash: hash, Uniformity: "normal"},
		{Width: 10, Height: 10, VisualHash: hash, Uniformity: "solid_color"},
		{Width: 10, Height: 10},
		{Width: 10, Height: 10, VisualHash: hash},
	}
	for i, res := range results {
		if err := db.UpdateAnalysis(ctx, items[i].ID, res); err != nil {
			t.Fatalf("UpdateAnalysis(%s) failed: %v", items[i].FileName, err)
		}
	}

	got, err := db.GetMediaItem(ctx, items[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.VisualHash != hash || got.Uniformity != "solid_color" {
		t.Errorf("stored hash %q uniformity %q", got.VisualHash, got.Uniformity)
	}

	hashed, err := db.ListHashedItems(ctx)
	if err != nil {
		t.Fatalf("ListHashedItems failed: %v", err)
	}
	if want := []int64{items[0].ID, items[1].ID}; fmt.Sprint(ids(hashed)) != fmt.Sprint(want) {
		t.Errorf("hashed items = %v, want %v (images with a hash only)", ids(hashed), want)
	}

	page, err := db.ListMedia(ctx, MediaFilter{Uniformity: "solid_color"})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(ids(page.Items)) != fmt.Sprint([]int64{items[1].ID}) {
		t.Errorf("uniformity filter = %v, want [%d]", ids(page.Items), items[1].ID)
	}
}

func TestListThumbnailAudit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	items := addItems(t, db, "a.jpg", "b.jpg", "clip.mp4")

	if err := db.UpdateThumbnailPath(ctx, items[0].ID, "thumbnails/1.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkSuccess(ctx, items[0].ID, OpThumbnail, "", nil); err != nil {
		t.Fatal(err)
	}
	// Ledger rows for other operations do not count.
	if err := db.MarkSuccess(ctx, items[1].ID, OpExif, "", nil); err != nil {
		t.Fatal(err)
	}

	rows, err := db.ListThumbnailAudit(ctx, 0)
	if err != nil {
		t.Fatalf("ListThumbnailAudit failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want the 2 images", len(rows))
	}
	byID := map[int64]ThumbnailAuditRow{}
	for _, r := range rows {
		byID[r.ItemID] = r
	}
	if r := byID[items[0].ID]; r.Status != StatusSuccess || r.ThumbnailPath != "thumbnails/1.jpg" {
		t.Errorf("a.jpg row = %+v", r)
	}
	if r := byID[items[1].ID]; r.Status != "" || r.ThumbnailPath != "" {
		t.Errorf("b.jpg row = %+v, want no state and no path", r)
	}

	if rows, err := db.ListThumbnailAudit(ctx, 1); err != nil || len(rows) != 1 {
		t.Errorf("limit 1 returned %d rows, %v", len(rows), err)
	}
}
