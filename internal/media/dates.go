package media

import (
	"regexp"
	"strconv"
	"time"
)

// MinPlausibleYear is the earliest year accepted from filenames and file
// times.
const MinPlausibleYear = 1990

type datePattern struct {
	re      *regexp.Regexp
	hasTime bool
}

// Ordered from most to least specific; the first plausible match wins.
var filenameDatePatterns = []datePattern{
	{regexp.MustCompile(`(\d{4})[_-](\d{2})[_-](\d{2})[_\s-](\d{2})[_:](\d{2})[_:](\d{2})`), true},
	{regexp.MustCompile(`(\d{4})(\d{2})(\d{2})[_-](\d{2})(\d{2})(\d{2})`), true},
	{regexp.MustCompile(`(?i)IMG[_-](\d{4})(\d{2})(\d{2})`), false},
	{regexp.MustCompile(`(?i)photo[_\s-](\d{4})[_-](\d{2})[_-](\d{2})`), false},
	{regexp.MustCompile(`(?i)screenshot[_\s-](\d{4})[_-](\d{2})[_-](\d{2})`), false},
	{regexp.MustCompile(`(\d{4})[_-](\d{2})[_-](\d{2})`), false},
	{regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`), false},
}

// ParseFilenameDate extracts a capture date from a file name. The result is
// in now's location. Dates outside MinPlausibleYear..now+1 year, or with an
// invalid month or day, are rejected and the next pattern is tried.
func ParseFilenameDate(name string, now time.Time) (time.Time, bool) {
	for _, p := range filenameDatePatterns {
		m := p.re.FindStringSubmatch(name)
		if m == nil {
			continue
		}

		n := make([]int, len(m)-1)
		for i := range n {
			n[i], _ = strconv.Atoi(m[i+1])
		}
		hour, minute, sec := 0, 0, 0
		if p.hasTime {
			hour, minute, sec = n[3], n[4], n[5]
		}

		if t, ok := validDate(n[0], n[1], n[2], hour, minute, sec, now); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func validDate(year, month, day, hour, minute, sec int, now time.Time) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, now.Location())
	// time.Date normalizes Feb 30 into March
	if t.Day() != day {
		return time.Time{}, false
	}
	if !PlausibleYear(t, now) {
		return time.Time{}, false
	}
	return t, true
}

// PlausibleYear reports whether t falls between MinPlausibleYear and the
// year after now.
func PlausibleYear(t, now time.Time) bool {
	return t.Year() >= MinPlausibleYear && t.Year() <= now.Year()+1
}

// exifDateLayouts covers the EXIF standard form and common variants.
var exifDateLayouts = []string{
	"2006:01:02 15:04:05",
	"2006:01:02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseExifDate parses an EXIF date string. EXIF dates carry no zone, so
// they are interpreted in loc.
func ParseExifDate(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range exifDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			if t.IsZero() || t.Year() < 1 {
				return time.Time{}, false
			}
			return t, true
		}
	}
	return time.Time{}, false
}
