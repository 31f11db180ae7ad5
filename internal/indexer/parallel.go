package indexer

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"media-catalog/internal/database"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
	"media-catalog/internal/workers"
)

// channelBuffer is the size of the path channel between the walker and the
// stat workers.
const channelBuffer = 1000

// root is one directory tree to index.
type root struct {
	path      string
	recursive bool
}

// walkRoot sends every visible regular file under r to out. Hidden files and
// directories (prefixed with '.') are skipped. An unreadable root is an
// error; unreadable entries below it are logged and skipped.
func walkRoot(ctx context.Context, r root, out chan<- string) error {
	return filepath.WalkDir(r.path, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == r.path {
				return err
			}
			logging.Warn("Error accessing path %s: %v", path, err)
			metrics.IndexerErrors.Inc()
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == r.path {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !r.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		select {
		case out <- path:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// collect walks r and stats the files it finds with n parallel workers. The
// result is sorted by path. Files that vanish or cannot be stat'ed between
// the walk and the stat are counted in failed.
func collect(ctx context.Context, r root, n int) (items []database.MediaItem, failed int64, err error) {
	paths := make(chan string, channelBuffer)
	walkDone := make(chan error, 1)

	go func() {
		err := walkRoot(ctx, r, paths)
		close(paths)
		walkDone <- err
	}()

	var (
		mu       sync.Mutex
		statErrs atomic.Int64
		retry    = filesystem.DefaultRetry()
	)

	metrics.IndexerParallelWorkers.Set(float64(n))
	workers.Each(ctx, n, paths, func(ctx context.Context, path string) {
		info, err := retry.Stat(ctx, path)
		if err != nil {
			logging.Warn("Failed to stat %s: %v", path, err)
			metrics.IndexerErrors.Inc()
			statErrs.Add(1)
			return
		}

		item := database.MediaItem{
			FileName:   info.Name(),
			FilePath:   path,
			FolderPath: filepath.Dir(path),
			Extension:  mediatypes.ExtensionOf(info.Name()),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		}

		mu.Lock()
		items = append(items, item)
		mu.Unlock()
	})

	if err := <-walkDone; err != nil {
		return nil, statErrs.Load(), err
	}
	if err := ctx.Err(); err != nil {
		return nil, statErrs.Load(), err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].FilePath < items[j].FilePath })
	return items, statErrs.Load(), nil
}
