package sync

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/progress-engine/internal/domain/progress"
)

func testAggregate(t *testing.T, completed, total int, avgScore *float64, timeSpent int) *progress.CourseProgressAggregate {
	t.Helper()

	aggregate, err := progress.NewCourseProgressAggregate("agg-1", "u1", "go-101", total)
	require.NoError(t, err)

	aggregate.CompletedModules = completed
	aggregate.AverageModuleScore = avgScore
	aggregate.TotalTimeSpent = progress.Minutes(timeSpent)
	return aggregate
}

func achievementTypes(achievements []progress.Achievement) []progress.AchievementType {
	types := make([]progress.AchievementType, 0, len(achievements))
	for _, a := range achievements {
		types = append(types, a.Type)
	}
	return types
}

func TestAchievementEngine_CourseCompletionWithPerfectScore(t *testing.T) {
	// Scenario: last module completes (4/4) with average 92.
	aggregate := testAggregate(t, 4, 4, score(92), 200)
	engine := NewAchievementEngine(DefaultAchievementConfig())

	unlocked := engine.Apply(aggregate, 300, time.Now().UTC())

	assert.True(t, aggregate.IsCompleted)
	require.NotNil(t, aggregate.CompletionDate)
	types := achievementTypes(unlocked)
	assert.Contains(t, types, progress.AchievementCourseCompletion)
	assert.Contains(t, types, progress.AchievementPerfectCourse)
}

func TestAchievementEngine_SpeedLearner(t *testing.T) {
	// 200 of 300 estimated minutes: under the 75% cutoff (225).
	aggregate := testAggregate(t, 4, 4, score(80), 200)

	unlocked := NewAchievementEngine(DefaultAchievementConfig()).Apply(aggregate, 300, time.Now().UTC())

	types := achievementTypes(unlocked)
	assert.Contains(t, types, progress.AchievementSpeedLearner)
	assert.NotContains(t, types, progress.AchievementPerfectCourse)
}

func TestAchievementEngine_StudyWarriorMidCourse(t *testing.T) {
	// Scenario: time spent crosses 600 minutes while the course is still
	// incomplete. Only study-warrior is granted.
	aggregate := testAggregate(t, 2, 4, score(85), 640)

	unlocked := NewAchievementEngine(DefaultAchievementConfig()).Apply(aggregate, 300, time.Now().UTC())

	assert.Equal(t, []progress.AchievementType{progress.AchievementStudyWarrior}, achievementTypes(unlocked))
	assert.False(t, aggregate.IsCompleted)
	assert.Nil(t, aggregate.CompletionDate)
}

func TestAchievementEngine_EmptyCourseNeverCompletes(t *testing.T) {
	aggregate := testAggregate(t, 0, 0, nil, 0)

	unlocked := NewAchievementEngine(DefaultAchievementConfig()).Apply(aggregate, 0, time.Now().UTC())

	assert.Empty(t, unlocked)
	assert.False(t, aggregate.IsCompleted, "0 == 0 must not count as completion")
}

func TestAchievementEngine_Idempotent(t *testing.T) {
	aggregate := testAggregate(t, 4, 4, score(95), 700)
	engine := NewAchievementEngine(DefaultAchievementConfig())
	now := time.Now().UTC()

	first := engine.Apply(aggregate, 1000, now)
	require.NotEmpty(t, first)
	completionDate := *aggregate.CompletionDate
	achievementCount := len(aggregate.Achievements)

	// Re-running over the already-completed aggregate must be a no-op.
	second := engine.Apply(aggregate, 1000, now.Add(time.Hour))

	assert.Empty(t, second)
	assert.Equal(t, achievementCount, len(aggregate.Achievements))
	assert.Equal(t, completionDate, *aggregate.CompletionDate, "completion date is set exactly once")

	seen := make(map[progress.AchievementType]int)
	for _, a := range aggregate.Achievements {
		seen[a.Type]++
	}
	for typ, count := range seen {
		assert.Equal(t, 1, count, "achievement %s must be unique", typ)
	}
}

func TestAchievementEngine_CertificateIssuedAtSeventy(t *testing.T) {
	aggregate := testAggregate(t, 3, 3, score(71), 400)

	NewAchievementEngine(DefaultAchievementConfig()).Apply(aggregate, 500, time.Now().UTC())

	assert.True(t, aggregate.CertificateIssued)
	assert.True(t, strings.HasPrefix(aggregate.CertificateID, "CERT-"))
}

func TestAchievementEngine_NoCertificateBelowSeventy(t *testing.T) {
	aggregate := testAggregate(t, 3, 3, score(65), 400)

	NewAchievementEngine(DefaultAchievementConfig()).Apply(aggregate, 500, time.Now().UTC())

	assert.True(t, aggregate.IsCompleted)
	assert.False(t, aggregate.CertificateIssued)
	assert.Empty(t, aggregate.CertificateID)
}

func TestAchievementEngine_PerfectCourseOnlyAtTransition(t *testing.T) {
	// The course completed on an earlier sync with a lower average; a later
	// sync with a raised average must not retro-grant perfect-course.
	aggregate := testAggregate(t, 4, 4, score(85), 400)
	engine := NewAchievementEngine(DefaultAchievementConfig())

	engine.Apply(aggregate, 1000, time.Now().UTC())
	require.True(t, aggregate.IsCompleted)
	assert.False(t, aggregate.HasAchievement(progress.AchievementPerfectCourse))

	aggregate.AverageModuleScore = score(95)
	unlocked := engine.Apply(aggregate, 1000, time.Now().UTC())

	assert.Empty(t, unlocked)
	assert.False(t, aggregate.HasAchievement(progress.AchievementPerfectCourse))
}
