package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeek_StartOf(t *testing.T) {
	w := DefaultWeek()

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "midweek",
			now:  time.Date(2026, 10, 21, 15, 4, 5, 0, time.UTC), // Wednesday
			want: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "first day of week",
			now:  time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), // Monday
			want: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "last day of week",
			now:  time.Date(2026, 10, 25, 23, 59, 59, 0, time.UTC), // Sunday
			want: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(w.StartOf(tt.now)), "got %s", w.StartOf(tt.now))
		})
	}
}

func TestWeek_Bounds(t *testing.T) {
	w := DefaultWeek()
	now := time.Date(2026, 10, 21, 12, 0, 0, 0, time.UTC)

	begin, end := w.Bounds(now)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), begin)
	assert.Equal(t, time.Date(2026, 10, 25, 23, 59, 59, 999999999, time.UTC), end)

	// The next week starts one nanosecond after end.
	next, _ := w.Bounds(end.Add(time.Nanosecond))
	assert.Equal(t, begin.AddDate(0, 0, 7), next)
}

func TestWeek_CustomStartAndLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	w := NewWeek(time.Sunday, loc)

	// Saturday 20:00 UTC is already Sunday 01:00 in UTC+5.
	now := time.Date(2026, 10, 24, 20, 0, 0, 0, time.UTC)
	begin := w.StartOf(now)

	assert.Equal(t, time.Sunday, begin.Weekday())
	assert.Equal(t, time.Date(2026, 10, 25, 0, 0, 0, 0, loc), begin)
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("monday")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	d, err = ParseWeekday(" Sun ")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}

func TestParseEventTime(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)

	got, err := ParseEventTime("2026-10-21 10:30:00", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 21, 10, 30, 0, 0, loc), got)
	assert.Equal(t, "2026-10-21 10:30:00", FormatEventTime(got, loc))

	_, err = ParseEventTime("2026-10-21T10:30:00", loc)
	assert.Error(t, err)
}
