// Package startup handles configuration loading and startup/shutdown logging
// for the media catalog server and CLI.
//
// # Configuration
//
// [LoadConfig] reads, in increasing precedence:
//
//  1. a .env file in the working directory (github.com/joho/godotenv)
//  2. the YAML file named by CONFIG_FILE, a flat map of KEY: value pairs
//  3. environment variables
//
// Supported keys:
//
//   - MEDIA_DIR, CACHE_DIR, DATABASE_DIR: directories (defaults /media, /cache, /database)
//   - PORT, METRICS_PORT, METRICS_ENABLED: listeners (8080, 9090, true)
//   - INDEX_INTERVAL: folder scan interval (30m)
//   - BATCH_SIZE, MAX_FETCH_SIZE, PROGRESS_EVERY: batch paging (100, 1000, 5)
//   - SKIP_LARGE_FILES, LARGE_FILE_THRESHOLD: size policy (false, 5 MiB)
//   - PROGRESS_FRAME_RATE: per-item frames per second, 0 for unlimited
//   - THUMBNAIL_SIZE, THUMBNAIL_STORE, VIPS_ENABLED: thumbnails (300, local, false)
//   - S3_BUCKET, S3_REGION, S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY, S3_PREFIX
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB: shared abort store
//   - ABORT_TOKEN_TTL: lifetime of an abort flag with no local run (1h)
//   - PROCESS_WORKERS: background job concurrency
//   - SCHEDULE_EXIF, SCHEDULE_THUMBNAIL, SCHEDULE_TIMESTAMP_CORRECTION,
//     SCHEDULE_ANALYSIS: cron specs with a seconds field
//   - LOG_LEVEL, LOG_HEALTH_CHECKS
//
// # Lifecycle Logging
//
// The Log* functions print the sectioned startup report:
//
//	config, err := startup.LoadConfig()
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//	startup.LogDatabaseInit(time.Since(dbStart), seeded)
//	startup.LogServerStarted(startup.ServerConfig{Port: config.Port})
package startup
