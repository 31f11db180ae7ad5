package operations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"media-catalog/internal/batch"
	"media-catalog/internal/database"
	"media-catalog/internal/media"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/storage"
)

// ErrUnknownOperation is returned for an operation name that is not one of
// database.OperationTypes.
var ErrUnknownOperation = errors.New("unknown operation")

// Catalog is the part of the database the operations write to.
type Catalog interface {
	UpdateExifData(ctx context.Context, id int64, exif map[string]string, mediaDate *time.Time) error
	UpdateMediaDate(ctx context.Context, id int64, t time.Time) error
	UpdateThumbnailPath(ctx context.Context, id int64, path string) error
	UpdateAnalysis(ctx context.Context, id int64, r database.AnalysisResult) error
	MarkSuccess(ctx context.Context, itemID int64, op database.OperationType, message string, meta database.Metadata) error
}

// Deps are shared by every operation.
type Deps struct {
	Catalog     Catalog
	Blobs       storage.Store
	Thumbnailer *media.Thumbnailer
	// Now is used for date plausibility checks. Defaults to time.Now.
	Now func() time.Time
}

// Params are per-run settings.
type Params struct {
	// Method selects the exif extraction mode.
	Method media.ExifMethod
	// Overwrite lets timestamp_correction replace a date taken from EXIF.
	Overwrite bool
}

// ImageCategories is the category set for operations that decode pixels.
var ImageCategories = mediatypes.ImageCategories

// Lookup validates an operation name.
func Lookup(name string) (database.OperationType, error) {
	op, ok := database.ParseOperationType(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	return op, nil
}

// New returns the Operation for op.
func New(op database.OperationType, deps Deps, p Params) (batch.Operation, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if p.Method == "" {
		p.Method = media.ExifDefault
	}

	switch op {
	case database.OpExif:
		return &exifOp{deps: deps, method: p.Method}, nil
	case database.OpThumbnail:
		if deps.Blobs == nil || deps.Thumbnailer == nil {
			return nil, errors.New("thumbnail operation requires blob storage and a thumbnailer")
		}
		return &thumbnailOp{deps: deps}, nil
	case database.OpTimestampCorrection:
		return &timestampOp{deps: deps, overwrite: p.Overwrite}, nil
	case database.OpAnalysis:
		return &analysisOp{deps: deps}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}

// missingFile reports whether err means the item's file is gone, and the
// outcome to record if so.
func missingFile(err error) (batch.Outcome, bool) {
	if errors.Is(err, os.ErrNotExist) {
		return batch.Failed("File not found", nil), true
	}
	return batch.Outcome{}, false
}
