package operations

import (
	"context"
	"errors"
	"fmt"

	"media-catalog/internal/batch"
	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/media"
)

// analysisMaxDimension bounds the decode for analysis; colour, sharpness,
// visual hash and uniformity are computed on small images anyway.
const analysisMaxDimension = 1024

type analysisOp struct {
	deps Deps
}

func (o *analysisOp) Type() database.OperationType { return database.OpAnalysis }

func (o *analysisOp) Categories() []string { return ImageCategories }

func (o *analysisOp) Process(ctx context.Context, item *database.MediaItem) (batch.Outcome, error) {
	dims, err := media.GetImageDimensions(ctx, item.FilePath)
	if err != nil {
		if out, ok := missingFile(err); ok {
			return out, nil
		}
		return batch.Failed("Unsupported image format", nil), nil
	}

	img, err := media.LoadImageConstrained(ctx, item.FilePath, analysisMaxDimension, media.MaxImagePixels)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedFormat) {
			return batch.Failed("Unsupported image format", nil), nil
		}
		return batch.Failed(fmt.Sprintf("Failed to decode image: %v", err), nil), nil
	}

	result := database.AnalysisResult{
		Width:      dims.Width,
		Height:     dims.Height,
		Sharpness:  media.Sharpness(img),
		VisualHash: media.VisualHash(img),
		Uniformity: string(media.ClassifyUniformity(img)),
	}
	if c, err := media.DominantColor(img); err != nil {
		logging.Debug("No dominant colour for %s: %v", item.FileName, err)
	} else {
		result.DominantColor = c
	}

	if err := o.deps.Catalog.UpdateAnalysis(ctx, item.ID, result); err != nil {
		return batch.Outcome{}, fmt.Errorf("store analysis: %w", err)
	}

	return batch.Success("Analysis complete", database.Metadata{
		"width":         result.Width,
		"height":        result.Height,
		"dominantColor": result.DominantColor,
		"sharpness":     result.Sharpness,
		"visualHash":    result.VisualHash,
		"uniformity":    result.Uniformity,
	}), nil
}
