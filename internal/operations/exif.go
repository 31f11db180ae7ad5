package operations

import (
	"context"
	"fmt"
	"time"

	"media-catalog/internal/batch"
	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/media"
)

type exifOp struct {
	deps   Deps
	method media.ExifMethod
}

func (o *exifOp) Type() database.OperationType { return database.OpExif }

func (o *exifOp) Categories() []string { return nil }

func (o *exifOp) Process(ctx context.Context, item *database.MediaItem) (batch.Outcome, error) {
	meta, err := media.ExtractMetadata(ctx, item.FilePath, item.Extension, o.method)
	if err != nil {
		if out, ok := missingFile(err); ok {
			return out, nil
		}
		return batch.Failed(fmt.Sprintf("Failed to read metadata: %v", err), database.Metadata{"method": string(o.method)}), nil
	}

	result := database.Metadata{"method": string(o.method), "tags": len(meta.Tags)}
	if len(meta.Tags) == 0 {
		return batch.Success("No EXIF data found", result), nil
	}

	date := meta.Date
	if date != nil && !media.PlausibleYear(*date, o.deps.Now()) {
		logging.Debug("Ignoring implausible EXIF date %v on %s", *date, item.FileName)
		date = nil
	}

	if err := o.deps.Catalog.UpdateExifData(ctx, item.ID, meta.Tags, date); err != nil {
		return batch.Outcome{}, fmt.Errorf("store exif data: %w", err)
	}

	if date != nil {
		result["mediaDate"] = date.Format(time.RFC3339)
		// The EXIF date is authoritative, so the timestamp pass has nothing
		// left to do for this item.
		tsMeta := database.Metadata{"source": "exif", "date": date.Format(time.RFC3339)}
		if err := o.deps.Catalog.MarkSuccess(ctx, item.ID, database.OpTimestampCorrection, "Date set from EXIF", tsMeta); err != nil {
			logging.Warn("Failed to record timestamp from EXIF for item %d: %v", item.ID, err)
		}
	}

	return batch.Success(fmt.Sprintf("Extracted %d tags", len(meta.Tags)), result), nil
}
