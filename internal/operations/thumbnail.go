package operations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-catalog/internal/batch"
	"media-catalog/internal/database"
	"media-catalog/internal/media"
	"media-catalog/internal/metrics"
	"media-catalog/internal/storage"
)

type thumbnailOp struct {
	deps Deps
}

func (o *thumbnailOp) Type() database.OperationType { return database.OpThumbnail }

func (o *thumbnailOp) Categories() []string { return ImageCategories }

func (o *thumbnailOp) Process(ctx context.Context, item *database.MediaItem) (batch.Outcome, error) {
	data, err := o.deps.Thumbnailer.Generate(ctx, item.FilePath)
	if err != nil {
		if out, ok := missingFile(err); ok {
			return out, nil
		}
		if errors.Is(err, media.ErrUnsupportedFormat) {
			return batch.Failed("Unsupported image format", nil), nil
		}
		return batch.Failed(fmt.Sprintf("Failed to generate thumbnail: %v", err), nil), nil
	}

	key := storage.ThumbnailKey(item.ID)
	start := time.Now()
	if err := o.deps.Blobs.Put(ctx, key, data, "image/jpeg"); err != nil {
		return batch.Outcome{}, fmt.Errorf("store thumbnail: %w", err)
	}
	metrics.ThumbnailGenerationDuration.WithLabelValues("store").Observe(time.Since(start).Seconds())

	if err := o.deps.Catalog.UpdateThumbnailPath(ctx, item.ID, key); err != nil {
		return batch.Outcome{}, fmt.Errorf("record thumbnail path: %w", err)
	}

	return batch.Success("Thumbnail generated", database.Metadata{
		"key":     key,
		"bytes":   len(data),
		"size":    o.deps.Thumbnailer.Size(),
		"backend": o.deps.Blobs.Name(),
	}), nil
}
