package operations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"media-catalog/internal/batch"
	"media-catalog/internal/database"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/media"
)

const (
	sourceFilename = "filename_parsing"
	sourceModTime  = "file_modification_date"
)

type timestampOp struct {
	deps      Deps
	overwrite bool
}

func (o *timestampOp) Type() database.OperationType { return database.OpTimestampCorrection }

func (o *timestampOp) Categories() []string { return nil }

func (o *timestampOp) Process(ctx context.Context, item *database.MediaItem) (batch.Outcome, error) {
	if !o.overwrite && item.MediaDate != nil && hasExifDate(item.ExifData) {
		return batch.Skipped("Date already set from EXIF", database.Metadata{"source": "exif"}), nil
	}

	now := o.deps.Now()
	date, source := time.Time{}, ""

	if t, ok := media.ParseFilenameDate(item.FileName, now); ok {
		date, source = t, sourceFilename
	} else {
		info, err := filesystem.Stat(ctx, item.FilePath)
		if err != nil {
			if out, ok := missingFile(err); ok {
				return out, nil
			}
			return batch.Failed(fmt.Sprintf("Failed to stat file: %v", err), nil), nil
		}
		if !media.PlausibleYear(info.ModTime(), now) {
			return batch.Failed("No plausible date found", nil), nil
		}
		date, source = info.ModTime(), sourceModTime
	}

	if err := o.deps.Catalog.UpdateMediaDate(ctx, item.ID, date); err != nil {
		return batch.Outcome{}, fmt.Errorf("store media date: %w", err)
	}

	return batch.Success(fmt.Sprintf("Date set from %s", source), database.Metadata{
		"source": source,
		"date":   date.Format(time.RFC3339),
	}), nil
}

// hasExifDate reports whether stored exif data carries a usable date tag.
func hasExifDate(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var tags map[string]string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return false
	}
	return media.DateFromTags(tags, time.Local) != nil
}
