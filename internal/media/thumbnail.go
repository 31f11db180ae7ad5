package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"

	"github.com/disintegration/imaging"
)

const (
	// DefaultThumbnailSize is the bounding box edge in pixels.
	DefaultThumbnailSize = 300
	// ThumbnailQuality is the JPEG quality for thumbnails.
	ThumbnailQuality = 80
)

// Thumbnailer renders JPEG thumbnails.
type Thumbnailer struct {
	size    int
	useVips bool
}

// NewThumbnailer creates a Thumbnailer. A non-positive size means
// DefaultThumbnailSize. useVips only takes effect once InitVips succeeded.
func NewThumbnailer(size int, useVips bool) *Thumbnailer {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	return &Thumbnailer{size: size, useVips: useVips}
}

// Size returns the bounding box edge.
func (t *Thumbnailer) Size() int {
	return t.size
}

// Generate returns JPEG thumbnail bytes for the image at path. Formats
// that cannot be decoded return ErrUnsupportedFormat.
func (t *Thumbnailer) Generate(ctx context.Context, path string) ([]byte, error) {
	if t.useVips && IsVipsAvailable() {
		start := time.Now()
		buf, err := ThumbnailWithVips(path, t.size)
		if err == nil {
			metrics.ThumbnailGenerationDuration.WithLabelValues("vips").Observe(time.Since(start).Seconds())
			return buf, nil
		}
		logging.Debug("vips thumbnail failed for %s: %v, falling back to imaging", path, err)
	}

	start := time.Now()
	img, err := LoadImageConstrained(ctx, path, MaxImageDimension, MaxImagePixels)
	if err != nil {
		return nil, err
	}
	metrics.ThumbnailGenerationDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())

	return EncodeThumbnail(img, t.size)
}

// EncodeThumbnail fits img inside a size x size box with Lanczos resampling
// and encodes it as JPEG.
func EncodeThumbnail(img image.Image, size int) ([]byte, error) {
	start := time.Now()
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)
	metrics.ThumbnailGenerationDuration.WithLabelValues("resize").Observe(time.Since(start).Seconds())

	start = time.Now()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	metrics.ThumbnailGenerationDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())

	return buf.Bytes(), nil
}
