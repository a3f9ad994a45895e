package utils

import (
	"fmt"
	"strings"
	"time"
)

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseRFC3339 returns a time from an ISO-8601 string or an error.
// Timestamps without a zone are interpreted as UTC.
func ParseRFC3339(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: expected ISO-8601", value)
}

// AbsDiff returns the absolute distance between two instants.
func AbsDiff(a, b time.Time) time.Duration {
	if a.After(b) {
		return a.Sub(b)
	}
	return b.Sub(a)
}

// FromEpoch converts a numeric epoch value to a time. Values above 1e12 are
// treated as milliseconds, everything else as (fractional) seconds.
func FromEpoch(value float64) time.Time {
	if value > 1e12 {
		return time.UnixMilli(int64(value)).UTC()
	}
	sec := int64(value)
	nsec := int64((value - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
