package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	in := time.Date(2026, 3, 15, 17, 42, 9, 123, time.UTC)
	got := StartOfDay(in)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestStartOfDay_NonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 01:30 on the 16th in UTC+5 is still the 15th in UTC.
	in := time.Date(2026, 3, 16, 1, 30, 0, 0, loc)
	got := StartOfDay(in)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestStartOfWeek(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"wednesday",
			time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			"monday stays",
			time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			"sunday belongs to preceding monday",
			time.Date(2026, 3, 22, 23, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StartOfWeek(tt.in))
		})
	}
}

func TestIsSameDay(t *testing.T) {
	a := time.Date(2026, 3, 15, 0, 0, 1, 0, time.UTC)
	b := time.Date(2026, 3, 15, 23, 59, 59, 0, time.UTC)
	c := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	assert.True(t, IsSameDay(a, b))
	assert.False(t, IsSameDay(b, c))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)

	// Whole UTC days, not 24h periods.
	assert.Equal(t, 5, DaysBetween(a, b))
	assert.Equal(t, 5, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))
}

func TestDaysSince(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 7, DaysSince(now.AddDate(0, 0, -7), now))
	assert.Equal(t, 0, DaysSince(now.Add(time.Hour), now), "future time clamps to zero")
}

func TestIsOffPeak(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	assert.False(t, IsOffPeak(day.Add(1*time.Hour)))
	assert.True(t, IsOffPeak(day.Add(2*time.Hour)), "window opens at 02:00")
	assert.True(t, IsOffPeak(day.Add(5*time.Hour+59*time.Minute)))
	assert.False(t, IsOffPeak(day.Add(6*time.Hour)), "window closes at 06:00")
	assert.False(t, IsOffPeak(day.Add(14*time.Hour)))
}

func TestNextOffPeak(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	// Before the window: same day 02:00.
	assert.Equal(t, day.Add(2*time.Hour), NextOffPeak(day.Add(1*time.Hour)))

	// Inside the window: unchanged.
	in := day.Add(3 * time.Hour)
	assert.Equal(t, in, NextOffPeak(in))

	// After the window: next day 02:00.
	assert.Equal(t, day.AddDate(0, 0, 1).Add(2*time.Hour), NextOffPeak(day.Add(10*time.Hour)))
}

func TestParseDateRoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	parsed, err := ParseDate(FormatDateStr(in))
	require.NoError(t, err)
	assert.Equal(t, in, parsed)

	_, err = ParseDate("15.03.2026")
	assert.Error(t, err)
}
