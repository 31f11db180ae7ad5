// Package storage holds generated thumbnail blobs, either in a local
// directory or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value blob store. Put overwrites existing objects.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Name() string
}

// ThumbnailKey is the object key of an item's thumbnail.
func ThumbnailKey(itemID int64) string {
	return fmt.Sprintf("thumbnails/%d.jpg", itemID)
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean(strings.TrimPrefix(strings.ReplaceAll(key, "\\", "/"), "/"))
	if k == "." || k == ".." || strings.HasPrefix(k, "../") || key == "" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return k, nil
}
