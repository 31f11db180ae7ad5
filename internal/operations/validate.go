package operations

import (
	"context"
	"errors"
	"fmt"

	"media-catalog/internal/database"
	"media-catalog/internal/storage"
)

// ThumbnailAuditSource samples items with their thumbnail ledger rows.
type ThumbnailAuditSource interface {
	ListThumbnailAudit(ctx context.Context, limit int) ([]database.ThumbnailAuditRow, error)
}

// ThumbnailIssue is one disagreement between the ledger, the item and blob
// storage.
type ThumbnailIssue struct {
	ItemID        int64  `json:"itemId"`
	Issue         string `json:"issue"`
	FileName      string `json:"fileName,omitempty"`
	ThumbnailPath string `json:"thumbnailPath,omitempty"`
}

// ThumbnailReport is the result of ValidateThumbnails.
type ThumbnailReport struct {
	Consistent           bool             `json:"consistent"`
	TotalChecked         int              `json:"totalChecked"`
	MissingThumbnailPath int              `json:"missingThumbnailPath"`
	MissingBlob          int              `json:"missingBlob"`
	MissingState         int              `json:"missingState"`
	SuccessWithoutPath   int              `json:"successWithoutPath"`
	ErrorWithPath        int              `json:"errorWithPath"`
	Issues               []ThumbnailIssue `json:"issues"`
}

const (
	issueNoState        = "No processing state record"
	issueSuccessNoPath  = "Processing state shows success but no thumbnail path"
	issueErrorWithPath  = "Processing state shows error but has thumbnail path"
	issueBlobMissing    = "Thumbnail path exists but the blob is missing from storage"
	issueBlobCheckError = "Thumbnail path exists but the blob could not be checked"
)

// ValidateThumbnails checks a random sample of up to limit image items for
// drift between the thumbnail ledger, media_items.thumbnail_path and blob
// storage. Items with no path are counted but are only an issue when their
// ledger row claims success.
func ValidateThumbnails(ctx context.Context, src ThumbnailAuditSource, blobs storage.Store, limit int) (*ThumbnailReport, error) {
	rows, err := src.ListThumbnailAudit(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("sample thumbnails: %w", err)
	}

	rep := &ThumbnailReport{TotalChecked: len(rows), Issues: []ThumbnailIssue{}}
	issue := func(r database.ThumbnailAuditRow, msg string) {
		rep.Issues = append(rep.Issues, ThumbnailIssue{
			ItemID:        r.ItemID,
			Issue:         msg,
			FileName:      r.FileName,
			ThumbnailPath: r.ThumbnailPath,
		})
	}

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hasPath := r.ThumbnailPath != ""
		if !hasPath {
			rep.MissingThumbnailPath++
		}

		switch {
		case r.Status == "":
			rep.MissingState++
			issue(r, issueNoState)
			continue
		case r.Status == database.StatusSuccess && !hasPath:
			rep.SuccessWithoutPath++
			issue(r, issueSuccessNoPath)
		case r.Status == database.StatusError && hasPath:
			rep.ErrorWithPath++
			issue(r, issueErrorWithPath)
		}

		if !hasPath || blobs == nil {
			continue
		}
		if _, err := blobs.Get(ctx, r.ThumbnailPath); err != nil {
			rep.MissingBlob++
			if errors.Is(err, storage.ErrNotFound) {
				issue(r, issueBlobMissing)
			} else {
				issue(r, fmt.Sprintf("%s: %v", issueBlobCheckError, err))
			}
		}
	}

	rep.Consistent = len(rep.Issues) == 0
	return rep, nil
}
