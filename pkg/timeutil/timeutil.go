// Package timeutil provides UTC day arithmetic for the progress engine.
// All persisted timestamps are UTC; day boundaries computed here feed
// struggle staleness checks and the off-peak scheduling of bulk re-syncs.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// StartOfDay returns the start of the day (00:00:00) in UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in UTC.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999999999, time.UTC)
}

// StartOfWeek returns the start of the week (Monday 00:00:00) in UTC.
func StartOfWeek(t time.Time) time.Time {
	u := t.UTC()
	weekday := int(u.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(u.AddDate(0, 0, -(weekday - 1)))
}

// IsSameDay checks if two times fall on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	u1, u2 := t1.UTC(), t2.UTC()
	return u1.Year() == u2.Year() && u1.YearDay() == u2.YearDay()
}

// DaysBetween calculates the number of whole days between two times.
// The result is always non-negative.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// DaysSince calculates the number of whole days from t to now.
func DaysSince(t time.Time, now time.Time) int {
	if t.After(now) {
		return 0
	}
	return DaysBetween(t, now)
}

// Off-peak window for course-wide re-sync passes. A bulk pass holds the
// same pair locks interactive syncs need, so the scheduler defers it to
// the hours when learner traffic is lowest.
const (
	// OffPeakStart is when the off-peak window opens (02:00 UTC).
	OffPeakStart = 2
	// OffPeakEnd is when the off-peak window closes (06:00 UTC).
	OffPeakEnd = 6
)

// IsOffPeak checks if the given time is inside the off-peak window.
func IsOffPeak(t time.Time) bool {
	hour := t.UTC().Hour()
	return hour >= OffPeakStart && hour < OffPeakEnd
}

// NextOffPeak returns the next time inside the off-peak window.
// If t is already off-peak, t is returned unchanged.
func NextOffPeak(t time.Time) time.Time {
	u := t.UTC()
	if IsOffPeak(u) {
		return u
	}
	day := u
	if u.Hour() >= OffPeakStart {
		day = u.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), OffPeakStart, 0, 0, 0, time.UTC)
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in UTC.
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// FormatDateTimeStr formats a time as a datetime string in UTC.
func FormatDateTimeStr(t time.Time) string {
	return t.UTC().Format(FormatDateTime)
}

// ParseDate parses a date string (YYYY-MM-DD) as a UTC time.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, time.UTC)
}
