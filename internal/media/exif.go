package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"

	"github.com/dhowden/tag"
	exif "github.com/dsoprea/go-exif/v3"
	heicexif "github.com/dsoprea/go-heic-exif-extractor"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"
	pngstructure "github.com/dsoprea/go-png-image-structure"
	tiffstructure "github.com/dsoprea/go-tiff-image-structure"
	riimage "github.com/dsoprea/go-utility/image"
)

// ExifMethod selects how hard ExtractMetadata looks for EXIF data.
type ExifMethod string

const (
	// ExifDefault uses the structure parser for the file format.
	ExifDefault ExifMethod = "default"
	// ExifFast parses only the head of the file.
	ExifFast ExifMethod = "fast"
	// ExifSlow adds a brute-force scan when the structure parser finds nothing.
	ExifSlow ExifMethod = "slow"
)

// fastReadLimit bounds how much of a file ExifFast reads.
const fastReadLimit = 256 * 1024

// ParseExifMethod validates a method name. An empty name is ExifDefault.
func ParseExifMethod(s string) (ExifMethod, bool) {
	switch ExifMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExifDefault:
		return ExifDefault, true
	case ExifFast:
		return ExifFast, true
	case ExifSlow:
		return ExifSlow, true
	}
	return "", false
}

// dateTags are consulted in order for the capture date.
var dateTags = []string{"DateTimeOriginal", "CreateDate", "DateTimeDigitized", "DateTime"}

type exifParser interface {
	Parse(rs io.ReadSeeker, size int) (riimage.MediaContext, error)
}

func exifParserFor(ext string) exifParser {
	switch mediatypes.NormalizeExtension(ext) {
	case "jpg", "jpeg":
		return jpegstructure.NewJpegMediaParser()
	case "png":
		return pngstructure.NewPngMediaParser()
	case "tif", "tiff":
		return tiffstructure.NewTiffMediaParser()
	case "heic", "heif", "avif":
		return heicexif.NewHeicExifMediaParser()
	}
	return nil
}

// IsAudioExtension reports whether ext is read with the audio tag reader.
func IsAudioExtension(ext string) bool {
	switch mediatypes.NormalizeExtension(ext) {
	case "mp3", "m4a", "flac", "ogg":
		return true
	}
	return false
}

// ExtractedMetadata is the flattened tag map of a file plus its capture
// date, if one was found.
type ExtractedMetadata struct {
	Tags map[string]string
	Date *time.Time
}

// ExtractMetadata reads EXIF tags, or audio tags for audio files. A file
// without metadata returns an empty map and no error.
func ExtractMetadata(ctx context.Context, path, ext string, method ExifMethod) (*ExtractedMetadata, error) {
	f, err := filesystem.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if IsAudioExtension(ext) {
		return readAudioTags(f)
	}

	var rs io.ReadSeeker = f
	size := info.Size()
	if method == ExifFast && size > fastReadLimit {
		rs = io.NewSectionReader(f, 0, fastReadLimit)
		size = fastReadLimit
	}

	raw, err := findExif(rs, int(size), ext, method)
	if err != nil {
		return nil, err
	}

	out := &ExtractedMetadata{Tags: map[string]string{}}
	if len(raw) == 0 {
		return out, nil
	}

	entries, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("parse exif: %w", err)
	}
	for _, e := range entries {
		if e.TagName == "" {
			continue
		}
		v := strings.TrimSpace(strings.ReplaceAll(e.FormattedFirst, "\x00", ""))
		if v == "" {
			continue
		}
		if _, dup := out.Tags[e.TagName]; !dup {
			out.Tags[e.TagName] = v
		}
	}

	out.Date = DateFromTags(out.Tags, time.Local)
	return out, nil
}

func findExif(rs io.ReadSeeker, size int, ext string, method ExifMethod) ([]byte, error) {
	var raw []byte

	if parser := exifParserFor(ext); parser != nil {
		mc, err := parser.Parse(rs, size)
		if err == nil {
			_, raw, err = mc.Exif()
		}
		if err != nil && !errors.Is(err, exif.ErrNoExif) {
			logging.Debug("structured exif parse failed: %v", err)
		}
	}

	// Unknown containers (raw formats) only have the brute-force path.
	if len(raw) == 0 && (method == ExifSlow || exifParserFor(ext) == nil) {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind for exif scan: %w", err)
		}
		found, err := exif.SearchAndExtractExifWithReader(rs)
		if err != nil && !errors.Is(err, exif.ErrNoExif) {
			logging.Debug("exif scan failed: %v", err)
		}
		raw = found
	}

	return raw, nil
}

// DateFromTags returns the first parsable date among DateTimeOriginal,
// CreateDate, DateTimeDigitized and DateTime.
func DateFromTags(tags map[string]string, loc *time.Location) *time.Time {
	for _, name := range dateTags {
		v, ok := tags[name]
		if !ok {
			continue
		}
		if t, ok := ParseExifDate(v, loc); ok {
			return &t
		}
	}
	return nil
}

func readAudioTags(rs io.ReadSeeker) (*ExtractedMetadata, error) {
	m, err := tag.ReadFrom(rs)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return &ExtractedMetadata{Tags: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("read audio tags: %w", err)
	}

	tags := map[string]string{
		"Format":      string(m.Format()),
		"FileType":    string(m.FileType()),
		"Title":       m.Title(),
		"Album":       m.Album(),
		"Artist":      m.Artist(),
		"AlbumArtist": m.AlbumArtist(),
		"Composer":    m.Composer(),
		"Genre":       m.Genre(),
	}
	if track, total := m.Track(); track > 0 {
		tags["Track"] = strconv.Itoa(track)
		if total > 0 {
			tags["TrackTotal"] = strconv.Itoa(total)
		}
	}
	for k, v := range tags {
		if v == "" {
			delete(tags, k)
		}
	}

	out := &ExtractedMetadata{Tags: tags}
	if y := m.Year(); y > 0 {
		tags["Year"] = strconv.Itoa(y)
		t := time.Date(y, time.January, 1, 0, 0, 0, 0, time.Local)
		out.Date = &t
	}
	return out, nil
}
