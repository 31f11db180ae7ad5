package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// createTestImage writes a gradient image to path.
func createTestImage(t *testing.T, path string, width, height int, format string) {
	t.Helper()

	img := gradient(width, height)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test image file: %v", err)
	}
	defer f.Close()

	switch format {
	case "jpeg", "jpg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(f, img)
	default:
		t.Fatalf("Unsupported test image format: %s", format)
	}
	if err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
}

func gradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func TestGetImageDimensions(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	tests := []struct {
		name   string
		width  int
		height int
		format string
	}{
		{"small jpeg", 100, 50, "jpg"},
		{"square png", 64, 64, "png"},
		{"portrait jpeg", 30, 90, "jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name+"."+tt.format)
			createTestImage(t, path, tt.width, tt.height, tt.format)

			dims, err := GetImageDimensions(context.Background(), path)
			if err != nil {
				t.Fatalf("GetImageDimensions() error = %v", err)
			}
			if dims.Width != tt.width || dims.Height != tt.height {
				t.Errorf("dimensions = %dx%d, want %dx%d", dims.Width, dims.Height, tt.width, tt.height)
			}
		})
	}
}

func TestLoadImageConstrained(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	path := filepath.Join(tmpDir, "wide.png")
	createTestImage(t, path, 400, 200, "png")

	img, err := LoadImageConstrained(context.Background(), path, 100, MaxImagePixels)
	if err != nil {
		t.Fatalf("LoadImageConstrained() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("constrained size = %dx%d, want 100x50", b.Dx(), b.Dy())
	}

	img, err = LoadImageConstrained(context.Background(), path, 4096, MaxImagePixels)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 200 {
		t.Errorf("unconstrained size = %dx%d, want 400x200", b.Dx(), b.Dy())
	}
}

func TestLoadImageConstrainedErrors(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	notImage := filepath.Join(tmpDir, "notes.jpg")
	if err := os.WriteFile(notImage, []byte("definitely not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadImageConstrained(context.Background(), notImage, 100, 100); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("garbage file error = %v, want ErrUnsupportedFormat", err)
	}

	missing := filepath.Join(tmpDir, "missing.jpg")
	if _, err := LoadImageConstrained(context.Background(), missing, 100, 100); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestConstrainDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		w, h, maxDim, maxP int
		wantW, wantH       int
	}{
		{"fits", 100, 100, 200, 1_000_000, 100, 100},
		{"landscape", 8000, 4000, 4000, 100_000_000, 4000, 2000},
		{"portrait", 3000, 6000, 3000, 100_000_000, 1500, 3000},
		{"pixel cap", 4000, 4000, 4000, 4_000_000, 1000, 1000},
		{"extreme aspect", 10000, 1, 100, 1_000_000, 100, 1},
	}

	for _, tt := range tests {
		gotW, gotH := ConstrainDimensions(tt.w, tt.h, tt.maxDim, tt.maxP)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("%s: ConstrainDimensions(%d, %d) = %dx%d, want %dx%d", tt.name, tt.w, tt.h, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}

func TestFitDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		w, h, size   int
		wantW, wantH int
	}{
		{100, 100, 300, 100, 100},
		{600, 300, 300, 300, 150},
		{300, 900, 300, 100, 300},
		{1000, 1000, 300, 300, 300},
	}

	for _, tt := range tests {
		gotW, gotH := FitDimensions(tt.w, tt.h, tt.size)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("FitDimensions(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.size, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}

func TestThumbnailerGenerate(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	path := filepath.Join(tmpDir, "photo.jpg")
	createTestImage(t, path, 1200, 600, "jpg")

	thumb := NewThumbnailer(0, false)
	if thumb.Size() != DefaultThumbnailSize {
		t.Errorf("Size() = %d, want %d", thumb.Size(), DefaultThumbnailSize)
	}

	data, err := thumb.Generate(context.Background(), path)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("thumbnail does not decode: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("format = %s, want jpeg", format)
	}
	if cfg.Width != 300 || cfg.Height != 150 {
		t.Errorf("thumbnail = %dx%d, want 300x150", cfg.Width, cfg.Height)
	}
}
