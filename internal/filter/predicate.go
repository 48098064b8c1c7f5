package filter

import (
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	DateLayout,
}

// ParseTimestamp parses an API timestamp or a date-only field.
// Values without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MatchesSubstring reports whether needle occurs in at least one haystack entry.
// Both sides are expected to be lower-cased already.
func MatchesSubstring(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.Contains(h, needle) {
			return true
		}
	}
	return false
}

// MatchesDateRange reports whether start < ts < end.
// Both bounds are exclusive; a zero bound or timestamp never matches.
func MatchesDateRange(ts, start, end time.Time) bool {
	if ts.IsZero() || start.IsZero() || end.IsZero() {
		return false
	}
	return ts.After(start) && ts.Before(end)
}
