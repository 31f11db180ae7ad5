package mediatypes

import (
	"path/filepath"
	"sort"
	"strings"
)

// Category groups file types for processing eligibility.
type Category string

const (
	// CategoryImage represents decodable image formats.
	CategoryImage Category = "image"
	// CategoryRawImage represents camera RAW formats.
	CategoryRawImage Category = "raw_image"
	// CategoryVideo represents a video file.
	CategoryVideo Category = "video"
	// CategoryAudio represents an audio file.
	CategoryAudio Category = "audio"
	// CategoryDocument represents a document or sidecar file.
	CategoryDocument Category = "document"
	// CategoryOther represents an unknown extension.
	CategoryOther Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryImage, CategoryRawImage, CategoryVideo, CategoryAudio, CategoryDocument, CategoryOther,
}

// IsValidCategory reports whether s names a known category.
func IsValidCategory(s string) bool {
	for _, c := range Categories {
		if string(c) == s {
			return true
		}
	}
	return false
}

// ImageCategories are the categories eligible for thumbnailing and analysis.
var ImageCategories = []string{string(CategoryImage), string(CategoryRawImage)}

// SortField specifies which field to sort by.
type SortField string

// SortOrder specifies the direction of sorting.
type SortOrder string

const (
	// SortByName sorts results by filename.
	SortByName SortField = "name"
	// SortByDate sorts results by media date, falling back to modification time.
	SortByDate SortField = "date"
	// SortBySize sorts results by file size.
	SortBySize SortField = "size"
	// SortByCreated sorts results by when the item was first indexed.
	SortByCreated SortField = "created"

	// SortAsc sorts in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts in descending order.
	SortDesc SortOrder = "desc"
)

// Default describes a seeded file_types row.
type Default struct {
	Extension string
	Category  Category
	MimeType  string
	Ignore    bool
}

// defaults is keyed by extension without the leading dot.
var defaults = map[string]Default{
	// Images
	"jpg":  {Category: CategoryImage, MimeType: "image/jpeg"},
	"jpeg": {Category: CategoryImage, MimeType: "image/jpeg"},
	"png":  {Category: CategoryImage, MimeType: "image/png"},
	"gif":  {Category: CategoryImage, MimeType: "image/gif"},
	"bmp":  {Category: CategoryImage, MimeType: "image/bmp"},
	"webp": {Category: CategoryImage, MimeType: "image/webp"},
	"tiff": {Category: CategoryImage, MimeType: "image/tiff"},
	"tif":  {Category: CategoryImage, MimeType: "image/tiff"},
	"heic": {Category: CategoryImage, MimeType: "image/heic"},
	"heif": {Category: CategoryImage, MimeType: "image/heif"},
	"avif": {Category: CategoryImage, MimeType: "image/avif"},
	"svg":  {Category: CategoryImage, MimeType: "image/svg+xml", Ignore: true},
	"ico":  {Category: CategoryImage, MimeType: "image/x-icon", Ignore: true},

	// RAW
	"cr2": {Category: CategoryRawImage, MimeType: "image/x-canon-cr2"},
	"cr3": {Category: CategoryRawImage, MimeType: "image/x-canon-cr3"},
	"nef": {Category: CategoryRawImage, MimeType: "image/x-nikon-nef"},
	"arw": {Category: CategoryRawImage, MimeType: "image/x-sony-arw"},
	"dng": {Category: CategoryRawImage, MimeType: "image/x-adobe-dng"},
	"orf": {Category: CategoryRawImage, MimeType: "image/x-olympus-orf"},
	"rw2": {Category: CategoryRawImage, MimeType: "image/x-panasonic-rw2"},
	"raf": {Category: CategoryRawImage, MimeType: "image/x-fuji-raf"},

	// Videos
	"mp4":  {Category: CategoryVideo, MimeType: "video/mp4"},
	"mkv":  {Category: CategoryVideo, MimeType: "video/x-matroska"},
	"avi":  {Category: CategoryVideo, MimeType: "video/x-msvideo"},
	"mov":  {Category: CategoryVideo, MimeType: "video/quicktime"},
	"wmv":  {Category: CategoryVideo, MimeType: "video/x-ms-wmv"},
	"webm": {Category: CategoryVideo, MimeType: "video/webm"},
	"m4v":  {Category: CategoryVideo, MimeType: "video/x-m4v"},
	"mpg":  {Category: CategoryVideo, MimeType: "video/mpeg"},
	"mpeg": {Category: CategoryVideo, MimeType: "video/mpeg"},
	"3gp":  {Category: CategoryVideo, MimeType: "video/3gpp"},
	"mts":  {Category: CategoryVideo, MimeType: "video/mp2t"},

	// Audio
	"mp3":  {Category: CategoryAudio, MimeType: "audio/mpeg"},
	"m4a":  {Category: CategoryAudio, MimeType: "audio/mp4"},
	"flac": {Category: CategoryAudio, MimeType: "audio/flac"},
	"ogg":  {Category: CategoryAudio, MimeType: "audio/ogg"},
	"wav":  {Category: CategoryAudio, MimeType: "audio/wav"},

	// Sidecars
	"xmp":  {Category: CategoryDocument, MimeType: "application/rdf+xml", Ignore: true},
	"aae":  {Category: CategoryDocument, MimeType: "application/xml", Ignore: true},
	"json": {Category: CategoryDocument, MimeType: "application/json", Ignore: true},
	"txt":  {Category: CategoryDocument, MimeType: "text/plain", Ignore: true},
	"pdf":  {Category: CategoryDocument, MimeType: "application/pdf"},
	"db":   {Category: CategoryOther, MimeType: "application/octet-stream", Ignore: true},
}

// Defaults returns the seed rows sorted by extension.
func Defaults() []Default {
	out := make([]Default, 0, len(defaults))
	for ext, d := range defaults {
		d.Extension = ext
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension < out[j].Extension })
	return out
}

// NormalizeExtension lowercases an extension and strips the leading dot.
func NormalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// ExtensionOf returns the normalized extension of a file name.
func ExtensionOf(name string) string {
	return NormalizeExtension(filepath.Ext(name))
}

// GetCategory returns the category for an extension.
// Returns CategoryOther if the extension is not recognized.
func GetCategory(ext string) Category {
	if d, ok := defaults[NormalizeExtension(ext)]; ok {
		return d.Category
	}
	return CategoryOther
}

// GetMimeType returns the MIME type for an extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if d, ok := defaults[NormalizeExtension(ext)]; ok {
		return d.MimeType
	}
	return "application/octet-stream"
}

// IsImageCategory reports whether a category holds still images.
func IsImageCategory(category string) bool {
	return category == string(CategoryImage) || category == string(CategoryRawImage)
}
