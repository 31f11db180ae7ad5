package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageDimension is the maximum width or height we'll process.
	// Images larger than this are downscaled first.
	MaxImageDimension = 4096

	// MaxImagePixels caps the decoded size. A 20MP image uses ~80MB in RGBA.
	MaxImagePixels = 20_000_000
)

// ErrUnsupportedFormat is returned when no registered decoder accepts a file.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// LoadImageConstrained loads an image, downscaling if it exceeds size limits.
// This prevents OOM when processing very large images.
func LoadImageConstrained(ctx context.Context, path string, maxDimension, maxPixels int) (image.Image, error) {
	dimensions, err := GetImageDimensions(ctx, path)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		logging.Debug("Could not get image dimensions for %s: %v, loading without constraints", path, err)
		return openImage(ctx, path)
	}

	width, height := dimensions.Width, dimensions.Height
	pixels := width * height

	if width <= maxDimension && height <= maxDimension && pixels <= maxPixels {
		return openImage(ctx, path)
	}

	targetWidth, targetHeight := ConstrainDimensions(width, height, maxDimension, maxPixels)
	logging.Debug("Constraining large image %s from %dx%d to %dx%d", path, width, height, targetWidth, targetHeight)

	img, err := openImage(ctx, path)
	if err != nil {
		return nil, err
	}
	return imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos), nil
}

// ConstrainDimensions scales width and height down, preserving the aspect
// ratio, until both fit maxDimension and their product fits maxPixels.
func ConstrainDimensions(width, height, maxDimension, maxPixels int) (int, int) {
	targetWidth, targetHeight := width, height

	if width > maxDimension || height > maxDimension {
		if width > height {
			targetWidth = maxDimension
			targetHeight = height * maxDimension / width
		} else {
			targetHeight = maxDimension
			targetWidth = width * maxDimension / height
		}
	}

	if targetPixels := targetWidth * targetHeight; targetPixels > maxPixels {
		scale := float64(maxPixels) / float64(targetPixels)
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}

	return max(targetWidth, 1), max(targetHeight, 1)
}

func openImage(ctx context.Context, path string) (image.Image, error) {
	f, err := filesystem.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(ctx context.Context, path string) (*ImageDimensions, error) {
	file, err := filesystem.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}

	return &ImageDimensions{
		Width:  config.Width,
		Height: config.Height,
	}, nil
}
