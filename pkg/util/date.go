package util

import (
	"strconv"
	"time"
)

const DateLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseDate parses a calendar date (YYYY-MM-DD) or anything ParseTime accepts,
// truncated to the UTC day.
func ParseDate(s string) (time.Time, bool) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), true
	}
	if t, ok := ParseTime(s); ok {
		return Day(t), true
	}
	return time.Time{}, false
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last second of t's calendar day in UTC.
func EndOfDay(t time.Time) time.Time {
	return Day(t).Add(24*time.Hour - time.Second)
}

// DayKey is the join key used to align series from different sources.
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// IsBusinessDay reports whether t falls on Monday through Friday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// SubBusinessDays walks back n weekdays from t. Holidays are not considered.
func SubBusinessDays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, -1)
		if IsBusinessDay(t) {
			n--
		}
	}
	return t
}
