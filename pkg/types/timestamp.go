package types

import (
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the canonical EXIF date format, YYYY:MM:DD HH:MM:SS.
const TimestampLayout = "2006:01:02 15:04:05"

// ErrZeroYear is returned for syntactically valid timestamps in year 0000.
var ErrZeroYear = errors.New("year 0000 is not a valid capture year")

// ParseTimestamp parses s in the canonical format and rejects year zero.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	if t.Year() == 0 {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, ErrZeroYear)
	}
	return t, nil
}

// ValidTimestamp reports whether s parses in the canonical format with a
// non-zero year.
func ValidTimestamp(s string) bool {
	_, err := ParseTimestamp(s)
	return err == nil
}

// ValidTimestampPtr is ValidTimestamp for optional values; nil is invalid.
func ValidTimestampPtr(s *string) bool {
	return s != nil && ValidTimestamp(*s)
}

// NoonTimestamp builds the canonical timestamp for midday of the given date
// parts, as used for dates recovered from filenames.
func NoonTimestamp(year, month, day string) string {
	return fmt.Sprintf("%s:%s:%s 12:00:00", year, month, day)
}
