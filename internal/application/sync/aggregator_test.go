package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/progress-engine/internal/domain/course"
	"github.com/coursehub/progress-engine/internal/domain/progress"
	"github.com/coursehub/progress-engine/internal/domain/shared"
)

func testCourse(id string, moduleCount int) *course.CourseDefinition {
	def := &course.CourseDefinition{
		ID:                      course.CourseID(id),
		Title:                   "Test Course",
		EstimatedCompletionTime: 300,
	}
	for i := 0; i < moduleCount; i++ {
		def.Modules = append(def.Modules, course.ModuleDefinition{
			ID:                course.ModuleID(string(rune('a'+i)) + "-module"),
			Title:             "Module",
			EstimatedDuration: 60,
			Order:             i + 1,
			HasAssessment:     true,
		})
	}
	return def
}

type recordOpts struct {
	status     progress.CompletionStatus
	score      *float64
	timeSpent  int
	attempts   int
	startedAgo time.Duration
	accessedAt time.Time
}

func testRecord(userID string, moduleID course.ModuleID, opts recordOpts) *progress.ModuleProgressRecord {
	now := time.Now().UTC()
	started := now.Add(-opts.startedAgo)

	r := &progress.ModuleProgressRecord{
		ID:               "rec-" + string(moduleID),
		UserID:           course.UserID(userID),
		CourseID:         "go-101",
		ModuleID:         moduleID,
		CompletionStatus: opts.status,
		TotalTimeSpent:   progress.Minutes(opts.timeSpent),
		TotalAttempts:    opts.attempts,
		LastAccessedAt:   opts.accessedAt,
		StartedAt:        &started,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if opts.attempts == 0 {
		r.TotalAttempts = 1
	}
	if opts.accessedAt.IsZero() {
		r.LastAccessedAt = now
	}
	if opts.score != nil {
		s := progress.Percentage(*opts.score)
		r.BestScorePercentage = &s
	}
	if opts.status == progress.StatusCompleted {
		r.CompletionPercentage = 100
		completed := now
		r.CompletedAt = &completed
	}
	return r
}

func score(v float64) *float64 {
	return &v
}

func TestAggregator_HalfCompletedCourse(t *testing.T) {
	// Scenario: 4 modules, 2 completed with scores 80 and 90.
	def := testCourse("go-101", 4)
	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{status: progress.StatusCompleted, score: score(80)}),
		testRecord("u1", def.Modules[1].ID, recordOpts{status: progress.StatusCompleted, score: score(90)}),
		testRecord("u1", def.Modules[2].ID, recordOpts{status: progress.StatusInProgress, timeSpent: 30}),
	}

	result, err := NewAggregator().Aggregate(def, records)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CompletedModules)
	assert.Equal(t, 50, result.CompletionPercentage)
	require.NotNil(t, result.AverageModuleScore)
	assert.Equal(t, 85.0, *result.AverageModuleScore)
	assert.Equal(t, def.Modules[2].ID, result.CurrentModuleID)
}

func TestAggregator_EmptyCourse(t *testing.T) {
	def := testCourse("go-101", 0)

	result, err := NewAggregator().Aggregate(def, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.CompletedModules)
	assert.Equal(t, 0, result.CompletionPercentage, "no divide-by-zero for empty courses")
	assert.Nil(t, result.AverageModuleScore)
}

func TestAggregator_NoScoredModules(t *testing.T) {
	def := testCourse("go-101", 2)
	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{status: progress.StatusInProgress, timeSpent: 10}),
	}

	result, err := NewAggregator().Aggregate(def, records)
	require.NoError(t, err)

	assert.Nil(t, result.AverageModuleScore)
	assert.Equal(t, progress.Minutes(10), result.TotalTimeSpent)
}

func TestAggregator_RoundsCompletionPercentage(t *testing.T) {
	def := testCourse("go-101", 3)
	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{status: progress.StatusCompleted}),
	}

	result, err := NewAggregator().Aggregate(def, records)
	require.NoError(t, err)

	// 1/3 = 33.33... rounds to 33.
	assert.Equal(t, 33, result.CompletionPercentage)

	records = append(records, testRecord("u1", def.Modules[1].ID, recordOpts{status: progress.StatusCompleted}))
	result, err = NewAggregator().Aggregate(def, records)
	require.NoError(t, err)

	// 2/3 = 66.66... rounds to 67.
	assert.Equal(t, 67, result.CompletionPercentage)
}

func TestAggregator_CurrentModulePicksNewestInProgress(t *testing.T) {
	def := testCourse("go-101", 3)
	older := time.Now().UTC().Add(-2 * time.Hour)
	newer := time.Now().UTC().Add(-5 * time.Minute)

	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{status: progress.StatusInProgress, accessedAt: older}),
		testRecord("u1", def.Modules[1].ID, recordOpts{status: progress.StatusInProgress, accessedAt: newer}),
	}

	result, err := NewAggregator().Aggregate(def, records)
	require.NoError(t, err)

	assert.Equal(t, def.Modules[1].ID, result.CurrentModuleID)
}

func TestAggregator_PreservesCurrentModuleWhenNoneInProgress(t *testing.T) {
	def := testCourse("go-101", 2)
	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{status: progress.StatusCompleted, score: score(75)}),
	}

	agg := NewAggregator()
	result, err := agg.Aggregate(def, records)
	require.NoError(t, err)
	assert.Equal(t, course.ModuleID(""), result.CurrentModuleID)

	aggregate, err := progress.NewCourseProgressAggregate("agg-1", "u1", "go-101", 2)
	require.NoError(t, err)
	aggregate.CurrentModuleID = def.Modules[0].ID

	agg.Apply(aggregate, result, def.ModuleCount())
	assert.Equal(t, def.Modules[0].ID, aggregate.CurrentModuleID, "previous pointer must be preserved")
}

func TestAggregator_OrphanedRecordFailsWithDataIntegrity(t *testing.T) {
	def := testCourse("go-101", 2)
	records := []*progress.ModuleProgressRecord{
		testRecord("u1", "ghost-module", recordOpts{status: progress.StatusCompleted}),
	}

	_, err := NewAggregator().Aggregate(def, records)
	require.Error(t, err)
	assert.True(t, shared.IsDataIntegrity(err))
}

func TestAggregator_TimeSpentSumsAcrossRecords(t *testing.T) {
	def := testCourse("go-101", 3)
	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{status: progress.StatusCompleted, timeSpent: 45}),
		testRecord("u1", def.Modules[1].ID, recordOpts{status: progress.StatusInProgress, timeSpent: 80}),
		testRecord("u1", def.Modules[2].ID, recordOpts{status: progress.StatusInProgress, timeSpent: 15}),
	}

	result, err := NewAggregator().Aggregate(def, records)
	require.NoError(t, err)

	assert.Equal(t, progress.Minutes(140), result.TotalTimeSpent)
}
