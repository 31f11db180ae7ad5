package filetypes

import (
	"context"
	"errors"
	"testing"

	"media-catalog/internal/database"
)

type fakeSource struct {
	rows  []database.FileType
	err   error
	calls int
}

func (f *fakeSource) ListFileTypes(context.Context) ([]database.FileType, error) {
	f.calls++
	return f.rows, f.err
}

func idPtr(id int64) *int64 { return &id }

func TestResolve(t *testing.T) {
	t.Parallel()

	src := &fakeSource{rows: []database.FileType{
		{ID: 1, Extension: "jpg", Category: "image"},
		{ID: 2, Extension: "xmp", Category: "document", Ignore: true},
	}}
	r := NewResolver(src)
	ctx := context.Background()

	tests := []struct {
		name   string
		item   database.MediaItem
		wantOK bool
		wantID int64
	}{
		{"known", database.MediaItem{FileTypeID: idPtr(1)}, true, 1},
		{"ignored still resolves", database.MediaItem{FileTypeID: idPtr(2)}, true, 2},
		{"no file type", database.MediaItem{}, false, 0},
		{"dangling id", database.MediaItem{FileTypeID: idPtr(99)}, false, 0},
	}

	for _, tt := range tests {
		ft, ok, err := r.Resolve(ctx, &tt.item)
		if err != nil {
			t.Fatalf("%s: Resolve error = %v", tt.name, err)
		}
		if ok != tt.wantOK || ft.ID != tt.wantID {
			t.Errorf("%s: Resolve = %d, %v, want %d, %v", tt.name, ft.ID, ok, tt.wantID, tt.wantOK)
		}
	}

	if src.calls != 1 {
		t.Errorf("source loaded %d times, want 1", src.calls)
	}
}

func TestInvalidateReloads(t *testing.T) {
	t.Parallel()

	src := &fakeSource{rows: []database.FileType{{ID: 1, Extension: "jpg", Category: "image"}}}
	r := NewResolver(src)
	ctx := context.Background()

	if _, ok, _ := r.ByExtension(ctx, ".JPG"); !ok {
		t.Fatal("ByExtension(.JPG) not found")
	}

	src.rows = append(src.rows, database.FileType{ID: 2, Extension: "heic", Category: "image"})
	if _, ok, _ := r.ByExtension(ctx, "heic"); ok {
		t.Error("new row visible before Invalidate")
	}

	r.Invalidate()
	if _, ok, _ := r.ByExtension(ctx, "heic"); !ok {
		t.Error("new row not visible after Invalidate")
	}
	if src.calls != 2 {
		t.Errorf("source loaded %d times, want 2", src.calls)
	}
}

func TestLoadError(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: errors.New("db down")}
	r := NewResolver(src)

	_, _, err := r.Resolve(context.Background(), &database.MediaItem{FileTypeID: idPtr(1)})
	if err == nil {
		t.Fatal("expected error from failing source")
	}

	src.err = nil
	src.rows = []database.FileType{{ID: 1, Extension: "jpg"}}
	if _, ok, err := r.Resolve(context.Background(), &database.MediaItem{FileTypeID: idPtr(1)}); err != nil || !ok {
		t.Errorf("Resolve after recovery = %v, %v", ok, err)
	}
}
