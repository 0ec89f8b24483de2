package domain

import (
	"errors"
	"strings"
	"time"
)

// DayLayout is the canonical representation of an event day.
const DayLayout = "2006-01-02"

var errTimestampFormat = errors.New("unrecognised ISO-8601 timestamp")

// Accepted timestamp shapes. Values without an offset are read as UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04Z07",
	"2006-01-02T15:04",
	"2006-01-02T15Z07:00",
	"2006-01-02T15Z07",
	"2006-01-02T15",
	DayLayout,
}

// ParseTimestamp parses an ISO-8601 timestamp and returns it in UTC. A space
// may stand in for the date/time separator, the T and Z markers may be lower
// case and fractional seconds are kept.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) > len(DayLayout) && s[len(DayLayout)] == ' ' {
		s = s[:len(DayLayout)] + "T" + s[len(DayLayout)+1:]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errTimestampFormat
}

// ParseDay reports whether s is an ISO calendar date and returns it in
// canonical form.
func ParseDay(s string) (string, bool) {
	d, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return d.Format(DayLayout), true
}

// DayOf returns the UTC calendar date of t.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}
