package scheduler

import (
	"fmt"
	"time"

	"github.com/coursehub/progress-engine/pkg/timeutil"
)

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{
		Interval: interval,
	}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}

// DailySchedule runs a job once a day at a fixed hour and minute.
type DailySchedule struct {
	Hour   int
	Minute int
}

// NewDailySchedule creates a schedule firing daily at hour:minute.
func NewDailySchedule(hour, minute int) *DailySchedule {
	return &DailySchedule{Hour: hour, Minute: minute}
}

// Next returns the next occurrence of hour:minute strictly after t.
func (s *DailySchedule) Next(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// String returns the string representation of the schedule.
func (s *DailySchedule) String() string {
	return fmt.Sprintf("@daily %02d:%02d", s.Hour, s.Minute)
}

// OffPeakSchedule runs a job once per night inside the off-peak window.
// Bulk re-syncs hold per-user locks and hammer the database, so they are
// confined to the hours when course traffic is lowest.
type OffPeakSchedule struct{}

// NewOffPeakSchedule creates a schedule firing at the start of each
// off-peak window.
func NewOffPeakSchedule() *OffPeakSchedule {
	return &OffPeakSchedule{}
}

// Next returns the start of the next off-peak window strictly after t.
// Unlike timeutil.NextOffPeak it never returns t itself, so a job firing
// inside the window is scheduled for the following night rather than
// re-fired for the rest of the window.
func (s *OffPeakSchedule) Next(t time.Time) time.Time {
	u := t.UTC()
	next := time.Date(u.Year(), u.Month(), u.Day(), timeutil.OffPeakStart, 0, 0, 0, time.UTC)
	if !next.After(u) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// String returns the string representation of the schedule.
func (s *OffPeakSchedule) String() string {
	return fmt.Sprintf("@off-peak %02d:00-%02d:00 UTC", timeutil.OffPeakStart, timeutil.OffPeakEnd)
}
