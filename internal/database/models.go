package database

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// MsgUnsupportedFileType is the ledger message for items whose file type
// could not be resolved.
const MsgUnsupportedFileType = "Unsupported file type"

// OperationType identifies a per-item operation and keys its ledger rows.
type OperationType string

const (
	OpExif                OperationType = "exif"
	OpThumbnail           OperationType = "thumbnail"
	OpTimestampCorrection OperationType = "timestamp_correction"
	OpAnalysis            OperationType = "analysis"
)

// OperationTypes lists every operation in display order.
var OperationTypes = []OperationType{OpExif, OpThumbnail, OpTimestampCorrection, OpAnalysis}

// ParseOperationType returns the operation named s.
func ParseOperationType(s string) (OperationType, bool) {
	for _, op := range OperationTypes {
		if string(op) == s {
			return op, true
		}
	}
	return "", false
}

// Status is the ledger state of one (item, operation) pair.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusSkipped    Status = "skipped"
	StatusAborted    Status = "aborted"
)

// Statuses lists every ledger status.
var Statuses = []Status{StatusPending, StatusProcessing, StatusSuccess, StatusError, StatusSkipped, StatusAborted}

// ParseStatus returns the status named s.
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Metadata is the free-form JSON attached to ledger rows.
type Metadata map[string]interface{}

// MediaItem is one file in the catalog.
type MediaItem struct {
	ID            int64           `json:"id"`
	FileName      string          `json:"fileName"`
	FilePath      string          `json:"filePath"`
	FolderPath    string          `json:"folderPath"`
	Extension     string          `json:"extension"`
	SizeBytes     int64           `json:"sizeBytes"`
	FileTypeID    *int64          `json:"fileTypeId,omitempty"`
	MediaDate     *time.Time      `json:"mediaDate,omitempty"`
	ModifiedAt    time.Time       `json:"modifiedAt"`
	ThumbnailPath string          `json:"thumbnailPath,omitempty"`
	ExifData      json.RawMessage `json:"exifData,omitempty"`
	Width         int             `json:"width,omitempty"`
	Height        int             `json:"height,omitempty"`
	DominantColor string          `json:"dominantColor,omitempty"`
	Sharpness     *float64        `json:"sharpness,omitempty"`
	VisualHash    string          `json:"visualHash,omitempty"`
	Uniformity    string          `json:"uniformity,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`

	// Category is joined from file_types on list queries. Empty when the
	// file type is unresolvable.
	Category string `json:"category,omitempty"`
}

// FileType is a row of the extension policy table.
type FileType struct {
	ID        int64  `json:"id"`
	Extension string `json:"extension"`
	Category  string `json:"category"`
	MimeType  string `json:"mimeType"`
	Ignore    bool   `json:"ignore"`
}

// ProcessingState is the ledger row for one item and operation.
type ProcessingState struct {
	MediaItemID int64         `json:"mediaItemId"`
	Type        OperationType `json:"type"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	Metadata    Metadata      `json:"metadata,omitempty"`
	ProcessedAt time.Time     `json:"processedAt"`
}

// ExportRow is a ledger row joined with its item path.
type ExportRow struct {
	MediaItemID int64
	FilePath    string
	Type        string
	Status      string
	Message     string
	Metadata    string
	ProcessedAt time.Time
}

// FailedItem is an item whose latest ledger row is an error.
type FailedItem struct {
	Item        MediaItem `json:"item"`
	Message     string    `json:"message"`
	ProcessedAt time.Time `json:"processedAt"`
}

// ScanFolder is a configured root for the folder scanner.
type ScanFolder struct {
	ID                int64      `json:"id"`
	Path              string     `json:"path"`
	IncludeSubfolders bool       `json:"includeSubfolders"`
	LastScanned       *time.Time `json:"lastScanned,omitempty"`
}

// FinderQuery selects the next page of items an operation still has to handle.
type FinderQuery struct {
	Operation   OperationType
	Limit       int
	Since       time.Time
	RetryFailed bool
	Categories  []string
}

// UnprocessedPage is one page of eligible items.
type UnprocessedPage struct {
	Items          []MediaItem
	TotalAvailable int
}

// MediaFilter narrows a catalog listing.
type MediaFilter struct {
	Category     string
	Folder       string
	HasThumbnail *bool
	Uniformity   string
	From         *time.Time
	To           *time.Time
	Search       string
	Sort         string
	Order        string
	Page         int
	PageSize     int
}

// MediaPage is one page of a catalog listing.
type MediaPage struct {
	Items      []MediaItem `json:"items"`
	TotalItems int         `json:"totalItems"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// AnalysisResult holds the fields written by the analysis operation.
type AnalysisResult struct {
	Width         int
	Height        int
	DominantColor string
	Sharpness     float64
	VisualHash    string
	Uniformity    string
}

// ThumbnailAuditRow is an item joined with its thumbnail ledger row, if any.
type ThumbnailAuditRow struct {
	ItemID        int64
	FileName      string
	ThumbnailPath string
	// Status is empty when the item has no thumbnail ledger row.
	Status  Status
	Message string
}

// CatalogStats summarises the catalog.
type CatalogStats struct {
	TotalItems     int            `json:"totalItems"`
	TotalBytes     int64          `json:"totalBytes"`
	ByCategory     map[string]int `json:"byCategory"`
	WithThumbnails int            `json:"withThumbnails"`
	WithMediaDate  int            `json:"withMediaDate"`
	ScanFolders    int            `json:"scanFolders"`
	LastScan       *time.Time     `json:"lastScan,omitempty"`
}
