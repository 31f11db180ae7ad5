package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-catalog/internal/logging"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// S3Config holds the S3-compatible thumbnail store settings.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// RedisConfig holds the optional Redis connection used by the abort registry.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config holds all application configuration
type Config struct {
	MediaDir        string
	CacheDir        string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	IndexInterval   time.Duration
	LogHealthChecks bool
	MetricsEnabled  bool

	// Batch pipeline
	BatchSize          int
	MaxFetchSize       int
	ProgressEvery      int
	LargeFileThreshold int64
	SkipLargeFiles     bool
	ProgressFrameRate  int

	// Thumbnails
	ThumbnailSize  int
	ThumbnailStore string
	VipsEnabled    bool

	S3    S3Config
	Redis RedisConfig

	AbortTokenTTL  time.Duration
	ProcessWorkers int

	// Schedules maps operation type to a cron spec with a seconds field.
	Schedules map[string]string

	// Derived paths
	DatabasePath string
	ThumbnailDir string

	// Feature flags based on directory availability
	ThumbnailsEnabled bool
}

// scheduleKeys maps operation types to the env keys holding their cron spec.
var scheduleKeys = map[string]string{
	"exif":                 "SCHEDULE_EXIF",
	"thumbnail":            "SCHEDULE_THUMBNAIL",
	"timestamp_correction": "SCHEDULE_TIMESTAMP_CORRECTION",
	"analysis":             "SCHEDULE_ANALYSIS",
}

// settings resolves configuration keys from the environment, falling back to
// values read from CONFIG_FILE.
type settings struct {
	file map[string]string
}

// LoadEnvFile loads .env from the working directory if present.
func LoadEnvFile() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("failed to load .env: %v", err)
	}
}

// readConfigFile parses a flat YAML document of KEY: value pairs. Keys are
// matched case-insensitively against the environment variable names.
func readConfigFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return values, nil
}

func (s settings) lookup(key string) (string, bool) {
	if value := os.Getenv(key); value != "" {
		return value, true
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value, true
	}
	return "", false
}

func (s settings) str(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (s settings) boolean(key string, defaultValue bool) bool {
	value, ok := s.lookup(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s settings) integer(key string, defaultValue int) int {
	value, ok := s.lookup(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s settings) int64(key string, defaultValue int64) int64 {
	value, ok := s.lookup(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s settings) duration(key string, defaultValue time.Duration) time.Duration {
	value, ok := s.lookup(key)
	if !ok {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// parseConfig builds a Config from the resolved settings without touching
// the filesystem.
func parseConfig(s settings) *Config {
	config := &Config{
		MediaDir:        s.str("MEDIA_DIR", "/media"),
		CacheDir:        s.str("CACHE_DIR", "/cache"),
		DatabaseDir:     s.str("DATABASE_DIR", "/database"),
		Port:            s.str("PORT", "8080"),
		MetricsPort:     s.str("METRICS_PORT", "9090"),
		IndexInterval:   s.duration("INDEX_INTERVAL", 30*time.Minute),
		LogHealthChecks: s.boolean("LOG_HEALTH_CHECKS", true),
		MetricsEnabled:  s.boolean("METRICS_ENABLED", true),

		BatchSize:          s.integer("BATCH_SIZE", 100),
		MaxFetchSize:       s.integer("MAX_FETCH_SIZE", 1000),
		ProgressEvery:      s.integer("PROGRESS_EVERY", 5),
		LargeFileThreshold: s.int64("LARGE_FILE_THRESHOLD", 5*1024*1024),
		SkipLargeFiles:     s.boolean("SKIP_LARGE_FILES", false),
		ProgressFrameRate:  s.integer("PROGRESS_FRAME_RATE", 0),

		ThumbnailSize:  s.integer("THUMBNAIL_SIZE", 300),
		ThumbnailStore: strings.ToLower(s.str("THUMBNAIL_STORE", "local")),
		VipsEnabled:    s.boolean("VIPS_ENABLED", false),

		S3: S3Config{
			Bucket:    s.str("S3_BUCKET", ""),
			Region:    s.str("S3_REGION", "us-east-1"),
			Endpoint:  s.str("S3_ENDPOINT", ""),
			AccessKey: s.str("S3_ACCESS_KEY", ""),
			SecretKey: s.str("S3_SECRET_KEY", ""),
			Prefix:    s.str("S3_PREFIX", ""),
		},
		Redis: RedisConfig{
			Addr:     s.str("REDIS_ADDR", ""),
			Password: s.str("REDIS_PASSWORD", ""),
			DB:       s.integer("REDIS_DB", 0),
		},

		AbortTokenTTL:  s.duration("ABORT_TOKEN_TTL", time.Hour),
		ProcessWorkers: s.integer("PROCESS_WORKERS", 0),
		Schedules:      make(map[string]string),
	}

	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.MaxFetchSize == 0 {
		config.MaxFetchSize = 1000
	}
	if config.ThumbnailSize == 0 {
		config.ThumbnailSize = 300
	}
	if config.ThumbnailStore != "local" && config.ThumbnailStore != "s3" {
		logging.Warn("Invalid THUMBNAIL_STORE %q, using local", config.ThumbnailStore)
		config.ThumbnailStore = "local"
	}

	for op, key := range scheduleKeys {
		if spec := s.str(key, ""); spec != "" {
			config.Schedules[op] = spec
		}
	}

	return config
}

// Parse reads configuration from CONFIG_FILE and the environment and
// resolves the derived paths. It neither logs nor touches the filesystem
// beyond reading CONFIG_FILE.
func Parse() (*Config, error) {
	fileValues, err := readConfigFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	config := parseConfig(settings{file: fileValues})

	if config.MediaDir, err = filepath.Abs(config.MediaDir); err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	if config.CacheDir, err = filepath.Abs(config.CacheDir); err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	if config.DatabaseDir, err = filepath.Abs(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}

	config.DatabasePath = filepath.Join(config.DatabaseDir, "catalog.db")
	config.ThumbnailDir = filepath.Join(config.CacheDir, "thumbnails")
	return config, nil
}

// LoadConfig loads and validates configuration from .env, the optional
// CONFIG_FILE and environment variables, in increasing precedence.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	LoadEnvFile()

	config, err := Parse()
	if err != nil {
		return nil, err
	}

	r := newReport("CONFIGURATION")
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		r.add("CONFIG_FILE", "%s", path)
	}
	r.add("MEDIA_DIR", "%s", config.MediaDir).
		add("CACHE_DIR", "%s", config.CacheDir).
		add("DATABASE_DIR", "%s", config.DatabaseDir).
		add("PORT", "%s", config.Port).
		add("METRICS_PORT", "%s", config.MetricsPort).
		add("METRICS_ENABLED", "%v", config.MetricsEnabled).
		add("INDEX_INTERVAL", "%v", config.IndexInterval).
		add("BATCH_SIZE", "%d", config.BatchSize).
		add("MAX_FETCH_SIZE", "%d", config.MaxFetchSize).
		add("SKIP_LARGE_FILES", "%v (threshold %d bytes)", config.SkipLargeFiles, config.LargeFileThreshold).
		add("THUMBNAIL_SIZE", "%d", config.ThumbnailSize).
		add("THUMBNAIL_STORE", "%s", config.ThumbnailStore).
		add("VIPS_ENABLED", "%v", config.VipsEnabled).
		add("ABORT_TOKEN_TTL", "%v", config.AbortTokenTTL).
		add("LOG_HEALTH_CHECKS", "%v", config.LogHealthChecks).
		add("LOG_LEVEL", "%s", logging.GetLevel())
	if config.Redis.Addr != "" {
		r.add("REDIS_ADDR", "%s (db %d)", config.Redis.Addr, config.Redis.DB)
	}
	r.log()

	if err := ensureDirectory(config.MediaDir, "media"); err != nil {
		logging.Warn("  Media directory issue: %v", err)
	}

	if err := ensureDirectory(config.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}

	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	if config.ThumbnailStore == "s3" {
		if config.S3.Bucket == "" {
			return nil, fmt.Errorf("THUMBNAIL_STORE=s3 requires S3_BUCKET")
		}
		config.ThumbnailsEnabled = true
	} else {
		config.ThumbnailsEnabled = setupOptionalDir(config.ThumbnailDir, "thumbnails")
	}

	newReport("FEATURES").
		add("Database", "ENABLED (required)").
		add("Thumbnails", "%s (%s)", enabledString(config.ThumbnailsEnabled), config.ThumbnailStore).
		add("Abort store", "%s", abortStoreName(config.Redis.Addr)).
		add("Schedules", "%d configured", len(config.Schedules)).
		add("Metrics", "%s", enabledString(config.MetricsEnabled)).
		log()

	return config, nil
}

func abortStoreName(redisAddr string) string {
	if redisAddr != "" {
		return "redis"
	}
	return "memory"
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}
