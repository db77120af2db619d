package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// CalendarLayout is the calendar-date form used by the JPL close-approach data.
	CalendarLayout = "2006-Jan-02 15:04"
	// OutputLayout is the form used in human-readable and serialized output.
	OutputLayout = "2006-01-02 15:04"
	// DateLayout is the form accepted for date filters.
	DateLayout = "2006-01-02"
)

// ParseTime parses a calendar date in CalendarLayout as UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(CalendarLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t, nil
}

// FormatTime renders t in UTC with minute precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(OutputLayout)
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidTime, s)
	}
	return t, nil
}

// JulianJ2000 is the Julian date of 2000-01-01 12:00 UTC.
const JulianJ2000 = 2451545.0

// maxJulianOffset keeps converted dates well inside time.Duration's range.
const maxJulianOffset = 100000.0 // days

var j2000 = time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC)

// TimeFromJulian converts a Julian date to UTC, rounded to the minute.
func TimeFromJulian(jd float64) (time.Time, error) {
	offset := jd - JulianJ2000
	if math.IsNaN(offset) || math.Abs(offset) > maxJulianOffset {
		return time.Time{}, fmt.Errorf("%w: julian date %v", ErrInvalidTime, jd)
	}
	return j2000.Add(time.Duration(offset * float64(24*time.Hour))).Round(time.Minute), nil
}
