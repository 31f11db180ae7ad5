package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-catalog/internal/abort"
	"media-catalog/internal/batch"
	"media-catalog/internal/database"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/filetypes"
	"media-catalog/internal/handlers"
	"media-catalog/internal/indexer"
	"media-catalog/internal/jobs"
	"media-catalog/internal/logging"
	"media-catalog/internal/media"
	"media-catalog/internal/memory"
	"media-catalog/internal/metrics"
	"media-catalog/internal/middleware"
	"media-catalog/internal/operations"
	"media-catalog/internal/startup"
	"media-catalog/internal/storage"
	"media-catalog/internal/workers"
)

// vacuumInterval is how often the catalog database is compacted.
const vacuumInterval = 24 * time.Hour

// services holds everything handleShutdown stops.
type services struct {
	server        *http.Server
	metricsServer *http.Server
	indexer       *indexer.Indexer
	queue         *jobs.Queue
	scheduler     *jobs.Scheduler
	collector     *metrics.Collector
	monitor       *memory.Monitor
	db            *database.Database
	vips          bool
	stopVacuum    context.CancelFunc
}

func main() {
	startTime := time.Now()
	ctx := context.Background()

	// Must run before significant allocations
	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	build := startup.GetBuildInfo()
	metrics.AppInfo.WithLabelValues(build.Version, build.Commit, build.GoVersion).Set(1)
	metrics.InitializeMetrics()
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetVolumes(filesystem.NewVolumes(map[string]string{
		"media":    config.MediaDir,
		"cache":    config.CacheDir,
		"database": config.DatabaseDir,
	}))

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	seeded, err := db.SeedFileTypes(ctx)
	if err != nil {
		startup.LogFatal("Failed to seed file types: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart), seeded)

	// Thumbnails
	vipsReady := false
	if config.VipsEnabled {
		if err := media.InitVips(); err != nil {
			logging.Warn("libvips unavailable, falling back to pure Go thumbnails: %v", err)
		} else {
			vipsReady = true
		}
	}
	blobs, err := openThumbnailStore(ctx, config)
	if err != nil {
		startup.LogFatal("Failed to open thumbnail store: %v", err)
	}
	startup.LogThumbnailInit(config.ThumbnailsEnabled, config.ThumbnailStore, config.ThumbnailSize, vipsReady)

	// Abort registry, shared across replicas when Redis is configured
	var abortStore abort.Store
	abortBackend := "memory"
	if config.Redis.Addr != "" {
		if client := abort.NewRedisClient(ctx, config.Redis.Addr, config.Redis.Password, config.Redis.DB); client != nil {
			abortStore = abort.NewRedisStore(client)
			abortBackend = "redis"
		}
	}
	registry := abort.NewRegistry(abortStore, config.AbortTokenTTL)
	startup.LogAbortStoreInit(abortBackend, config.AbortTokenTTL)

	resolver := filetypes.NewResolver(db)

	runner := operations.NewRunner(db, resolver, registry,
		operations.Deps{Blobs: blobs, Thumbnailer: media.NewThumbnailer(config.ThumbnailSize, vipsReady)},
		batch.Options{
			BatchSize:          config.BatchSize,
			FetchSize:          config.MaxFetchSize,
			ProgressEvery:      config.ProgressEvery,
			LargeFileThreshold: config.LargeFileThreshold,
			SkipLargeFiles:     config.SkipLargeFiles,
			FrameRate:          config.ProgressFrameRate,
		})

	// Initialize indexer
	startup.LogIndexerInit(config.IndexInterval)
	idx := indexer.New(db, config.MediaDir, config.IndexInterval, resolver)
	idx.SetWorkers(workers.ForIO(0))
	idx.Start()
	startup.LogIndexerStarted()

	// Background jobs wait while the heap is near the memory limit
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	jobWorkers := workers.ForIO(config.ProcessWorkers)
	queue := jobs.NewQueue(runner.RunDetached, jobWorkers)
	queue.SetGate(monitor)

	scheduler := jobs.NewScheduler(queue)
	for op, spec := range config.Schedules {
		opType, err := operations.Lookup(op)
		if err != nil {
			logging.Warn("Ignoring schedule for %s: %v", op, err)
			continue
		}
		if err := scheduler.Add(opType, spec); err != nil {
			startup.LogFatal("Invalid schedule for %s: %v", op, err)
		}
	}
	scheduler.Start()
	startup.LogSchedulerInit(config.Schedules, jobWorkers)

	collector := metrics.NewCollector(db, time.Minute)
	collector.Start()

	vacuumCtx, stopVacuum := context.WithCancel(ctx)
	go vacuumLoop(vacuumCtx, db)

	h := handlers.New(handlers.Deps{
		DB:        db,
		Indexer:   idx,
		Runner:    runner,
		Queue:     queue,
		Scheduler: scheduler,
		Blobs:     blobs,
		Resolver:  resolver,
	})

	router := h.Router()
	if config.MetricsEnabled {
		router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.Logger(loggingConfig)(router))

	// WriteTimeout stays 0: progress streams run as long as the batch does
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	svc := &services{
		server:     srv,
		indexer:    idx,
		queue:      queue,
		scheduler:  scheduler,
		collector:  collector,
		monitor:    monitor,
		db:         db,
		vips:       vipsReady,
		stopVacuum: stopVacuum,
	}

	if config.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", h.MetricsHandler())
		svc.metricsServer = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := svc.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go handleShutdown(svc, done)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func openThumbnailStore(ctx context.Context, config *startup.Config) (storage.Store, error) {
	if config.ThumbnailStore == "s3" {
		return storage.NewS3Store(ctx, storage.S3Options{
			Bucket:    config.S3.Bucket,
			Region:    config.S3.Region,
			Endpoint:  config.S3.Endpoint,
			AccessKey: config.S3.AccessKey,
			SecretKey: config.S3.SecretKey,
			Prefix:    config.S3.Prefix,
		})
	}
	return storage.NewLocalStore(config.ThumbnailDir)
}

func vacuumLoop(ctx context.Context, db *database.Database) {
	ticker := time.NewTicker(vacuumInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := db.Vacuum(ctx); err != nil {
				logging.Warn("Database vacuum failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func handleShutdown(svc *services, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping scheduler")
	svc.scheduler.Stop()
	startup.LogShutdownStepComplete("Scheduler stopped")

	// Jobs are aborted through their contexts; their ledgers stay consistent
	startup.LogShutdownStep("Stopping job queue")
	if err := svc.queue.Stop(ctx); err != nil {
		logging.Warn("Job queue did not drain: %v", err)
	} else {
		startup.LogShutdownStepComplete("Job queue stopped")
	}

	startup.LogShutdownStep("Stopping indexer")
	svc.indexer.Stop()
	startup.LogShutdownStepComplete("Indexer stopped")

	svc.collector.Stop()
	svc.monitor.Stop()
	svc.stopVacuum()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := svc.server.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}
	if svc.metricsServer != nil {
		if err := svc.metricsServer.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	if svc.vips {
		media.ShutdownVips()
	}

	startup.LogShutdownStep("Closing database")
	if err := svc.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}
