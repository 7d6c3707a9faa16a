// Package timeutil provides the week window arithmetic and the event date format
// used by the leaderboard. All calculations are calendar-based in a configured location,
// so DST transitions do not shift the week boundary.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// FormatDateTimeSeconds is the wire format of deal dates (YYYY-MM-DD HH:MM:SS).
const FormatDateTimeSeconds = "2006-01-02 15:04:05"

// Week computes canonical week boundaries.
// The zero value starts weeks on Sunday in UTC; use NewWeek for anything else.
type Week struct {
	start    time.Weekday
	location *time.Location
}

// NewWeek creates a Week that begins at 00:00 of the given weekday in loc.
// A nil location means UTC.
func NewWeek(start time.Weekday, loc *time.Location) Week {
	if loc == nil {
		loc = time.UTC
	}
	return Week{start: start, location: loc}
}

// DefaultWeek starts weeks on Monday in UTC.
func DefaultWeek() Week {
	return NewWeek(time.Monday, time.UTC)
}

// Location returns the location week boundaries are computed in.
func (w Week) Location() *time.Location {
	if w.location == nil {
		return time.UTC
	}
	return w.location
}

// StartDay returns the first day of the week.
func (w Week) StartDay() time.Weekday {
	return w.start
}

// StartOf returns the most recent week start at or before t.
func (w Week) StartOf(t time.Time) time.Time {
	local := t.In(w.Location())
	offset := (int(local.Weekday()) - int(w.start) + 7) % 7
	day := local.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, w.Location())
}

// Bounds returns both ends of the week containing t.
func (w Week) Bounds(t time.Time) (begin, end time.Time) {
	begin = w.StartOf(t)
	return begin, begin.AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// ParseWeekday parses an English weekday name ("monday", "Mon", ...).
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// ParseEventTime parses a deal date (YYYY-MM-DD HH:MM:SS) in loc.
func ParseEventTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(FormatDateTimeSeconds, value, loc)
}

// FormatEventTime formats t in the deal date format in loc.
func FormatEventTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(FormatDateTimeSeconds)
}
