package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/progress-engine/internal/domain/course"
)

func newTestRecord(t *testing.T) *ModuleProgressRecord {
	t.Helper()
	rec, err := NewModuleProgressRecord(NewRecordParams{
		ID:       "rec-1",
		UserID:   course.UserID("user-1"),
		CourseID: course.CourseID("course-1"),
		ModuleID: course.ModuleID("module-1"),
	})
	require.NoError(t, err)
	return rec
}

func TestNewModuleProgressRecord(t *testing.T) {
	rec := newTestRecord(t)

	assert.Equal(t, StatusInProgress, rec.CompletionStatus)
	assert.Equal(t, Percentage(0), rec.CompletionPercentage)
	assert.Equal(t, 1, rec.TotalAttempts)
	assert.Nil(t, rec.BestScorePercentage)
	assert.NotNil(t, rec.StartedAt)
	assert.Nil(t, rec.CompletedAt)
	assert.NoError(t, rec.Validate())
}

func TestNewModuleProgressRecord_RejectsInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params NewRecordParams
	}{
		{"empty id", NewRecordParams{UserID: "u", CourseID: "c", ModuleID: "m"}},
		{"empty user", NewRecordParams{ID: "r", CourseID: "c", ModuleID: "m"}},
		{"empty course", NewRecordParams{ID: "r", UserID: "u", ModuleID: "m"}},
		{"empty module", NewRecordParams{ID: "r", UserID: "u", CourseID: "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewModuleProgressRecord(tt.params)
			assert.Error(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestRecordContentProgress_PercentageOnlyGrows(t *testing.T) {
	rec := newTestRecord(t)

	require.NoError(t, rec.RecordContentProgress(60, 30))
	assert.Equal(t, Percentage(60), rec.CompletionPercentage)
	assert.Equal(t, Minutes(30), rec.TotalTimeSpent)

	// A stale lower percentage must not rewind progress, but time still accrues.
	require.NoError(t, rec.RecordContentProgress(40, 10))
	assert.Equal(t, Percentage(60), rec.CompletionPercentage)
	assert.Equal(t, Minutes(40), rec.TotalTimeSpent)
}

func TestRecordContentProgress_RejectsInvalidValues(t *testing.T) {
	rec := newTestRecord(t)

	assert.ErrorIs(t, rec.RecordContentProgress(101, 0), ErrInvalidPercentage)
	assert.ErrorIs(t, rec.RecordContentProgress(-1, 0), ErrInvalidPercentage)
	assert.ErrorIs(t, rec.RecordContentProgress(50, -5), ErrInvalidMinutes)

	// Rejected events leave the record untouched.
	assert.Equal(t, Percentage(0), rec.CompletionPercentage)
	assert.Equal(t, Minutes(0), rec.TotalTimeSpent)
}

func TestRecordScore_KeepsBestAndCountsAttempts(t *testing.T) {
	rec := newTestRecord(t)

	require.NoError(t, rec.RecordScore(55))
	require.NotNil(t, rec.BestScorePercentage)
	assert.Equal(t, Percentage(55), *rec.BestScorePercentage)
	assert.Equal(t, 2, rec.TotalAttempts)

	require.NoError(t, rec.RecordScore(80))
	assert.Equal(t, Percentage(80), *rec.BestScorePercentage)

	// A worse retake still counts as an attempt but keeps the best score.
	require.NoError(t, rec.RecordScore(30))
	assert.Equal(t, Percentage(80), *rec.BestScorePercentage)
	assert.Equal(t, 4, rec.TotalAttempts)
}

func TestMarkCompleted_SetsCompletedAtOnce(t *testing.T) {
	rec := newTestRecord(t)

	rec.MarkCompleted()
	require.NotNil(t, rec.CompletedAt)
	first := *rec.CompletedAt

	assert.Equal(t, StatusCompleted, rec.CompletionStatus)
	assert.Equal(t, Percentage(100), rec.CompletionPercentage)
	assert.NoError(t, rec.Validate())

	time.Sleep(5 * time.Millisecond)
	rec.MarkCompleted()
	assert.Equal(t, first, *rec.CompletedAt)
}

func TestMarkCompleted_StartsUnstartedRecord(t *testing.T) {
	rec := newTestRecord(t)
	rec.CompletionStatus = StatusNotStarted
	rec.StartedAt = nil

	rec.MarkCompleted()

	assert.NotNil(t, rec.StartedAt)
	assert.Equal(t, StatusCompleted, rec.CompletionStatus)
	assert.NoError(t, rec.Validate())
}

func TestValidate_CompletionInvariant(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name   string
		mutate func(r *ModuleProgressRecord)
		want   error
	}{
		{
			"completed status without completedAt",
			func(r *ModuleProgressRecord) {
				r.CompletionStatus = StatusCompleted
				r.CompletionPercentage = 100
			},
			ErrCompletionInvariant,
		},
		{
			"completedAt without completed status",
			func(r *ModuleProgressRecord) { r.CompletedAt = &now },
			ErrCompletionInvariant,
		},
		{
			"completed status with partial percentage",
			func(r *ModuleProgressRecord) {
				r.CompletionStatus = StatusCompleted
				r.CompletedAt = &now
				r.CompletionPercentage = 90
			},
			ErrCompletionInvariant,
		},
		{
			"negative time",
			func(r *ModuleProgressRecord) { r.TotalTimeSpent = -1 },
			ErrInvalidMinutes,
		},
		{
			"bogus status",
			func(r *ModuleProgressRecord) { r.CompletionStatus = "paused" },
			ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newTestRecord(t)
			tt.mutate(rec)
			assert.ErrorIs(t, rec.Validate(), tt.want)
		})
	}
}

func TestDaysInProgress(t *testing.T) {
	rec := newTestRecord(t)

	started := time.Now().UTC().Add(-8 * 24 * time.Hour)
	rec.StartedAt = &started
	assert.Equal(t, 8, rec.DaysInProgress(time.Now().UTC()))

	rec.StartedAt = nil
	assert.Equal(t, 0, rec.DaysInProgress(time.Now().UTC()))
}

func TestClone_IsDeep(t *testing.T) {
	rec := newTestRecord(t)
	require.NoError(t, rec.RecordScore(70))

	clone := rec.Clone()
	*clone.BestScorePercentage = 10
	clone.CompletionPercentage = 99

	assert.Equal(t, Percentage(70), *rec.BestScorePercentage)
	assert.Equal(t, Percentage(0), rec.CompletionPercentage)
}
