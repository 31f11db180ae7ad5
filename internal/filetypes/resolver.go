// Package filetypes caches the file_types policy table for the batch pipeline.
package filetypes

import (
	"context"
	"fmt"
	"sync"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
)

// Source lists every file type row.
type Source interface {
	ListFileTypes(ctx context.Context) ([]database.FileType, error)
}

// Resolver maps items to their file type. Rows are loaded once and reloaded
// on the first lookup after Invalidate.
type Resolver struct {
	src Source

	mu     sync.RWMutex
	loaded bool
	byID   map[int64]database.FileType
	byExt  map[string]database.FileType
}

// NewResolver creates a Resolver backed by src.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Invalidate drops the cache. Call after any write to file_types.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.mu.Unlock()
	logging.Debug("file type cache invalidated")
}

func (r *Resolver) load(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	rows, err := r.src.ListFileTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load file types: %w", err)
	}

	r.byID = make(map[int64]database.FileType, len(rows))
	r.byExt = make(map[string]database.FileType, len(rows))
	for _, ft := range rows {
		r.byID[ft.ID] = ft
		r.byExt[ft.Extension] = ft
	}
	r.loaded = true
	logging.Debug("loaded %d file types", len(rows))
	return nil
}

// Resolve returns the file type of item. The second result is false when
// the item has no file type or its id no longer exists.
func (r *Resolver) Resolve(ctx context.Context, item *database.MediaItem) (database.FileType, bool, error) {
	if item.FileTypeID == nil {
		return database.FileType{}, false, nil
	}
	if err := r.load(ctx); err != nil {
		return database.FileType{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	ft, ok := r.byID[*item.FileTypeID]
	return ft, ok, nil
}

// ByExtension looks up a file type by extension, with or without the dot.
func (r *Resolver) ByExtension(ctx context.Context, ext string) (database.FileType, bool, error) {
	if err := r.load(ctx); err != nil {
		return database.FileType{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	ft, ok := r.byExt[mediatypes.NormalizeExtension(ext)]
	return ft, ok, nil
}
