package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"media-catalog/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitMutex sync.Mutex
	vipsAvailable bool
)

// errVipsUnavailable is returned by vips helpers before InitVips.
var errVipsUnavailable = errors.New("libvips not available")

// vipsLogLevel maps the application level to the most verbose vips level
// that should reach the log.
func vipsLogLevel(level logging.LogLevel) vips.LogLevel {
	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo
	case logging.LevelWarn:
		return vips.LogLevelError
	case logging.LevelError:
		return vips.LogLevelCritical
	default:
		return vips.LogLevelWarning
	}
}

func vipsLogHandler(domain string, level vips.LogLevel, msg string) {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical:
		logging.Error("[%s] %s", domain, msg)
	case vips.LogLevelWarning:
		logging.Warn("[%s] %s", domain, msg)
	default:
		logging.Debug("[%s] %s", domain, msg)
	}
}

// InitVips starts libvips. Call once at startup when VIPS_ENABLED is set.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsAvailable {
		return nil
	}

	// Logging must be configured before Startup
	vips.LoggingSettings(vipsLogHandler, vipsLogLevel(logging.GetLevel()))

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsAvailable {
		vips.Shutdown()
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// ThumbnailWithVips decodes path with shrink-on-load, fits it inside a
// size x size box, and returns JPEG bytes.
func ThumbnailWithVips(path string, size int) ([]byte, error) {
	if !IsVipsAvailable() {
		return nil, errVipsUnavailable
	}

	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		logging.Debug("vips autorotate failed for %s: %v", filepath.Base(path), err)
	}

	w, h := FitDimensions(ref.Width(), ref.Height(), size)
	if err := ref.Thumbnail(w, h, vips.InterestingNone); err != nil {
		return nil, fmt.Errorf("vips resize failed: %w", err)
	}

	buf, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        ThumbnailQuality,
		StripMetadata:  true,
		OptimizeCoding: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	return buf, nil
}

// FitDimensions scales width x height to fit a size x size box. Images that
// already fit are returned unchanged.
func FitDimensions(width, height, size int) (int, int) {
	if width <= size && height <= size {
		return width, height
	}
	if width >= height {
		return size, max(height*size/width, 1)
	}
	return max(width*size/height, 1), size
}
