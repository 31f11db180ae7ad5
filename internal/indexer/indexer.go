package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"media-catalog/internal/batch"
	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/progress"
	"media-catalog/internal/workers"
)

const (
	// Number of files written per transaction
	batchSize = 200

	// Minimum files to index before marking the server as ready
	minFilesForReady = 100

	// Delay between batches to allow other database users in
	batchDelay = 10 * time.Millisecond

	// OperationScan is the operation name carried by scan progress events.
	OperationScan = "scan"
)

// ErrScanInProgress is returned by Scan when another scan is running.
var ErrScanInProgress = errors.New("scan already in progress")

// Invalidator is notified when a scan inserts new file types.
type Invalidator interface {
	Invalidate()
}

// Indexer keeps media_items in sync with the configured folders.
type Indexer struct {
	db          *database.Database
	mediaDir    string
	interval    time.Duration
	invalidator Invalidator
	workers     int
	log         *logging.Logger

	stopChan chan struct{}
	stopOnce sync.Once

	mu               sync.Mutex
	scanning         bool
	lastScan         time.Time
	lastResult       *Result
	initialScanDone  bool
	initialScanError error
	startTime        time.Time

	filesIndexed atomic.Int64
}

// Result summarises one scan.
type Result struct {
	Roots        int           `json:"roots"`
	Found        int           `json:"found"`
	Added        int           `json:"added"`
	Unchanged    int           `json:"unchanged"`
	Failed       int           `json:"failed"`
	Removed      int64         `json:"removed"`
	NewFileTypes int           `json:"newFileTypes"`
	Duration     time.Duration `json:"duration"`
}

// New creates an Indexer for mediaDir. interval is the period of background
// rescans started by Start; zero disables them. invalidator may be nil.
func New(db *database.Database, mediaDir string, interval time.Duration, invalidator Invalidator) *Indexer {
	return &Indexer{
		db:          db,
		mediaDir:    mediaDir,
		interval:    interval,
		invalidator: invalidator,
		workers:     workers.ForIO(8),
		log:         logging.Named("indexer"),
		stopChan:    make(chan struct{}),
		startTime:   time.Now(),
	}
}

// SetWorkers overrides the number of stat workers.
func (idx *Indexer) SetWorkers(n int) {
	if n > 0 {
		idx.workers = n
	}
}

// Start runs an initial scan in the background followed by periodic rescans.
func (idx *Indexer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-idx.stopChan
		cancel()
	}()

	go func() {
		idx.log.Info("Starting initial scan in background...")
		if _, err := idx.Scan(ctx, nil); err != nil {
			idx.log.Error("Initial scan error: %v", err)
			idx.mu.Lock()
			idx.initialScanError = err
			idx.mu.Unlock()
		}
		idx.periodicScan(ctx)
	}()
}

// Stop cancels a running scan and stops periodic rescans.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() { close(idx.stopChan) })
}

func (idx *Indexer) periodicScan(ctx context.Context) {
	if idx.interval <= 0 {
		return
	}
	ticker := time.NewTicker(idx.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			idx.log.Debug("Periodic rescan triggered")
			if _, err := idx.Scan(ctx, nil); err != nil && !errors.Is(err, ErrScanInProgress) {
				idx.log.Error("Periodic rescan failed: %v", err)
			}
		case <-ctx.Done():
			idx.log.Info("Periodic rescans stopped")
			return
		}
	}
}

// IsReady reports whether enough of the catalog is indexed to serve traffic.
func (idx *Indexer) IsReady() bool {
	if idx.filesIndexed.Load() >= minFilesForReady {
		return true
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.initialScanDone
}

// IsScanning reports whether a scan is running.
func (idx *Indexer) IsScanning() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.scanning
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready            bool      `json:"ready"`
	Scanning         bool      `json:"scanning"`
	StartTime        time.Time `json:"startTime"`
	Uptime           string    `json:"uptime"`
	LastScan         time.Time `json:"lastScan,omitempty"`
	InitialScanError string    `json:"initialScanError,omitempty"`
	FilesIndexed     int64     `json:"filesIndexed"`
	LastResult       *Result   `json:"lastResult,omitempty"`
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	status := HealthStatus{
		Ready:        idx.initialScanDone || idx.filesIndexed.Load() >= minFilesForReady,
		Scanning:     idx.scanning,
		StartTime:    idx.startTime,
		Uptime:       time.Since(idx.startTime).String(),
		LastScan:     idx.lastScan,
		FilesIndexed: idx.filesIndexed.Load(),
		LastResult:   idx.lastResult,
	}
	if idx.initialScanError != nil {
		status.InitialScanError = idx.initialScanError.Error()
	}
	return status
}

func (idx *Indexer) tryStartScan() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.scanning {
		return false
	}
	idx.scanning = true
	return true
}

func (idx *Indexer) finishScan(res *Result, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.scanning = false
	if err == nil {
		idx.initialScanDone = true
		idx.lastScan = time.Now()
		idx.lastResult = res
	}
}

// roots returns MEDIA_DIR plus the scan_folders rows, without duplicates.
func (idx *Indexer) roots(ctx context.Context) ([]root, error) {
	folders, err := idx.db.ListScanFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan folders: %w", err)
	}

	seen := make(map[string]bool, len(folders)+1)
	var out []root
	add := func(path string, recursive bool) {
		path = filepath.Clean(path)
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		out = append(out, root{path: path, recursive: recursive})
	}

	if idx.mediaDir != "" {
		add(idx.mediaDir, true)
	}
	for _, f := range folders {
		add(f.Path, f.IncludeSubfolders)
	}

	// Recursive roots go first so a nested non-recursive root never removes
	// items a recursive root is about to see.
	sort.SliceStable(out, func(i, j int) bool { return out[i].recursive && !out[j].recursive })
	return out, nil
}

// scanner carries the state of one Scan call.
type scanner struct {
	idx       *Indexer
	emit      batch.Emitter
	emitFail  bool
	counters  *progress.Counters
	result    Result
	indexTime time.Time
	newTypes  int
	unread    int
}

func (s *scanner) send(ctx context.Context, ev progress.Event) {
	if s.emit == nil {
		return
	}
	ev.Operation = OperationScan
	s.counters.Snapshot(time.Now()).Apply(&ev)
	if err := s.emit.Emit(ctx, ev); err != nil && !s.emitFail {
		s.emitFail = true
		s.idx.log.Debug("Dropping scan progress frames: %v", err)
	}
}

// Scan walks every root, upserts what it finds, and removes items whose file
// is gone from a root that was read successfully. Progress is written to
// emit, which may be nil. Scan returns ErrScanInProgress if another scan is
// running.
func (idx *Indexer) Scan(ctx context.Context, emit batch.Emitter) (*Result, error) {
	if !idx.tryStartScan() {
		return nil, ErrScanInProgress
	}

	metrics.IndexerIsRunning.Set(1)
	defer metrics.IndexerIsRunning.Set(0)
	metrics.IndexerRunsTotal.Inc()

	start := time.Now()
	s := &scanner{
		idx:       idx,
		emit:      emit,
		counters:  progress.NewCounters(start, 0),
		indexTime: start,
	}

	idx.log.Info("Starting scan...")
	s.send(ctx, progress.Event{Status: progress.StatusStarted, Message: "Starting scan"})

	err := s.run(ctx)
	s.result.Duration = time.Since(start)
	idx.finishScan(&s.result, err)

	metrics.IndexerLastRunDuration.Set(s.result.Duration.Seconds())
	if err != nil {
		metrics.IndexerErrors.Inc()
		idx.log.Error("Scan failed: %v", err)
		s.send(context.WithoutCancel(ctx), progress.Event{
			Status:  progress.StatusError,
			Message: "Scan failed",
			Error:   err.Error(),
		})
		return nil, err
	}
	metrics.IndexerLastRunTimestamp.Set(float64(time.Now().Unix()))

	res := s.result
	idx.log.Info("Scan complete: %d files in %d roots, %d new or changed, %d removed in %v",
		res.Found, res.Roots, res.Added, res.Removed, res.Duration)
	s.send(ctx, progress.Event{
		Status: progress.StatusComplete,
		Message: fmt.Sprintf("Scanned %d files: %d new or changed, %d removed",
			res.Found, res.Added, res.Removed),
		IsFinalBatch: true,
	})
	return &res, nil
}

func (s *scanner) run(ctx context.Context) error {
	idx := s.idx
	if err := ctx.Err(); err != nil {
		return err
	}

	roots, err := idx.roots(ctx)
	if err != nil {
		return err
	}
	s.result.Roots = len(roots)

	for _, r := range roots {
		if err := s.scanRoot(ctx, r); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// An unreadable root keeps its items; it may be an unmounted share.
			idx.log.Warn("Skipping root %s: %v", r.path, err)
			metrics.IndexerErrors.Inc()
			continue
		}
		if err := idx.db.TouchScanFolder(ctx, r.path, s.indexTime); err != nil {
			idx.log.Debug("Failed to record scan time for %s: %v", r.path, err)
		}
	}

	if err := idx.db.SetLastScan(ctx, s.indexTime); err != nil {
		idx.log.Warn("Failed to record last scan time: %v", err)
	}

	if s.newTypes > 0 {
		s.result.NewFileTypes = s.newTypes
		idx.log.Info("Registered %d new file types", s.newTypes)
		if idx.invalidator != nil {
			idx.invalidator.Invalidate()
		}
	}
	return nil
}

func (s *scanner) scanRoot(ctx context.Context, r root) error {
	idx := s.idx
	idx.log.Debug("Scanning %s (recursive: %v) with %d workers", r.path, r.recursive, idx.workers)

	items, failed, err := collect(ctx, r, idx.workers)
	if err != nil {
		return err
	}

	s.result.Found += len(items)
	s.result.Failed += int(failed)
	s.unread += int(failed)
	s.counters.SetTotal(s.result.Found + s.unread)
	for i := int64(0); i < failed; i++ {
		s.counters.Record(progress.OutcomeFailure)
	}

	for i := 0; i < len(items); i += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+batchSize, len(items))
		if err := s.writeBatch(ctx, items[i:end]); err != nil {
			return err
		}
		metrics.IndexerFilesProcessed.Add(float64(end - i))
		s.send(ctx, progress.Event{
			Status:  progress.StatusProcessing,
			Message: fmt.Sprintf("Indexed %d of %d files in %s", end, len(items), r.path),
		})
		time.Sleep(batchDelay)
	}

	return s.removeMissing(ctx, r)
}

// writeBatch upserts items in a single transaction.
func (s *scanner) writeBatch(ctx context.Context, items []database.MediaItem) (err error) {
	db := s.idx.db

	tx, err := db.BeginBatch(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer func() {
		if endErr := db.EndBatch(tx, err); endErr != nil && err == nil {
			err = fmt.Errorf("failed to commit batch: %w", endErr)
		}
	}()

	for i := range items {
		item := &items[i]
		if item.Extension != "" {
			id, inserted, err := db.EnsureFileType(ctx, tx, item.Extension)
			if err != nil {
				return fmt.Errorf("failed to register extension %s: %w", item.Extension, err)
			}
			item.FileTypeID = &id
			if inserted {
				s.newTypes++
			}
		}

		changed, err := db.UpsertMediaItem(ctx, tx, item, s.indexTime)
		if err != nil {
			s.idx.log.Warn("Error upserting %s: %v", item.FilePath, err)
			s.result.Failed++
			s.counters.Record(progress.OutcomeFailure)
			continue
		}

		s.idx.filesIndexed.Add(1)
		if changed {
			s.result.Added++
			s.counters.Record(progress.OutcomeSuccess)
		} else {
			s.result.Unchanged++
			s.counters.Record(progress.OutcomeSkipped)
		}
	}
	return nil
}

// removeMissing deletes items under r that this scan did not see.
func (s *scanner) removeMissing(ctx context.Context, r root) (err error) {
	db := s.idx.db

	tx, err := db.BeginBatch(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin cleanup transaction: %w", err)
	}
	defer func() {
		if endErr := db.EndBatch(tx, err); endErr != nil && err == nil {
			err = fmt.Errorf("failed to commit cleanup: %w", endErr)
		}
	}()

	deleted, err := db.DeleteMissingItems(ctx, tx, r.path, s.indexTime)
	if err != nil {
		return fmt.Errorf("failed to remove missing items: %w", err)
	}
	if deleted > 0 {
		s.result.Removed += deleted
		metrics.IndexerItemsRemoved.Add(float64(deleted))
		s.idx.log.Info("Removed %d missing files under %s", deleted, r.path)
	}
	return nil
}
