package timecalc

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidFormat is returned when a duration is not three colon-separated numbers.
	ErrInvalidFormat = errors.New("invalid duration format, want HH:MM:SS")
	// ErrInvalidRange is returned when a field is negative, minutes or seconds exceed 59,
	// or the total does not fit in an int64.
	ErrInvalidRange = errors.New("duration field out of range")
)

// FormatError describes a duration string that could not be parsed.
type FormatError struct {
	Input string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("parse duration %q: %v", e.Input, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Format formats seconds as HH:MM:SS. Hours are not bounded and use at least
// two digits. Negative input is treated as zero.
func Format(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Parse converts an HH:MM:SS string into seconds. Single-digit fields are
// accepted, so "1:2:3" equals "01:02:03".
func Parse(text string) (int64, error) {
	parts := strings.Split(text, ":")
	if len(parts) != 3 {
		return 0, &FormatError{Input: text, Err: ErrInvalidFormat}
	}

	var fields [3]int64
	for i, p := range parts {
		if !isNumeric(p) {
			return 0, &FormatError{Input: text, Err: ErrInvalidFormat}
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			// Only overflow gets here; the shape was already checked.
			return 0, &FormatError{Input: text, Err: ErrInvalidRange}
		}
		if n < 0 {
			return 0, &FormatError{Input: text, Err: ErrInvalidRange}
		}
		fields[i] = n
	}

	h, m, s := fields[0], fields[1], fields[2]
	if m >= 60 || s >= 60 {
		return 0, &FormatError{Input: text, Err: ErrInvalidRange}
	}
	if h > (math.MaxInt64-m*60-s)/3600 {
		return 0, &FormatError{Input: text, Err: ErrInvalidRange}
	}
	return h*3600 + m*60 + s, nil
}

// isNumeric reports whether s is an optionally signed run of ASCII digits.
// The sign is allowed here so negative fields are reported as range errors.
func isNumeric(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Valid reports whether text is a parseable HH:MM:SS duration.
func Valid(text string) bool {
	_, err := Parse(text)
	return err == nil
}

// AddSeconds adds delta seconds to an HH:MM:SS duration. A negative delta
// is clamped to zero, so the result never shrinks.
func AddSeconds(text string, delta int64) (string, error) {
	n, err := Parse(text)
	if err != nil {
		return "", err
	}
	if delta < 0 {
		delta = 0
	}
	return Format(n + delta), nil
}

// FormatDuration formats seconds as a human-readable string like "1h 40m" or "45m" or "30s".
func FormatDuration(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%ds", s)
}

// BucketWidth is the width of an activity bucket.
const BucketWidth = 2 * time.Hour

// Buckets is the number of activity buckets in a day.
const Buckets = 12

// Bucket returns the 2-hour time-of-day bucket (0..11) containing t.
func Bucket(t time.Time) int {
	return t.Hour() / 2
}

// WeekRange returns the Monday and Sunday of the ISO week containing t.
func WeekRange(t time.Time) (time.Time, time.Time) {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7 // treat Sunday as 7 (ISO)
	}
	monday := StartOfDay(t.AddDate(0, 0, -(wd - 1)))
	sunday := EndOfDay(monday.AddDate(0, 0, 6))
	return monday, sunday
}

// ISOWeekLabel returns a label like "2026-W09".
func ISOWeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// StartOfDay returns 00:00:00 of the same day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59 of the same day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
