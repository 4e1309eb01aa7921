package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/progress-engine/internal/domain/progress"
)

func TestStruggleDetector_MultipleAttemptsAndLowScore(t *testing.T) {
	// Scenario: 5 attempts and a best score of 40 produce both reasons,
	// concatenated into one entry.
	def := testCourse("go-101", 2)
	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{
			status:   progress.StatusInProgress,
			attempts: 5,
			score:    score(40),
		}),
	}

	detector := NewStruggleDetector(DefaultStruggleConfig())
	flags := detector.Detect(def, records, nil, time.Now().UTC())

	require.Len(t, flags, 1)
	assert.Equal(t, def.Modules[0].ID, flags[0].ModuleID)
	assert.Equal(t, "Multiple assessment attempts, Low assessment scores", flags[0].Reason)
}

func TestStruggleDetector_ExtendedTimeSpent(t *testing.T) {
	def := testCourse("go-101", 1) // estimated duration 60 minutes
	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{
			status:    progress.StatusInProgress,
			timeSpent: 130, // > 2 * 60
		}),
	}

	flags := NewStruggleDetector(DefaultStruggleConfig()).Detect(def, records, nil, time.Now().UTC())

	require.Len(t, flags, 1)
	assert.Equal(t, ReasonExtendedTime, flags[0].Reason)
}

func TestStruggleDetector_LongDurationWithoutCompletion(t *testing.T) {
	def := testCourse("go-101", 1)
	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{
			status:     progress.StatusInProgress,
			startedAgo: 8 * 24 * time.Hour,
		}),
	}

	flags := NewStruggleDetector(DefaultStruggleConfig()).Detect(def, records, nil, time.Now().UTC())

	require.Len(t, flags, 1)
	assert.Equal(t, ReasonLongDuration, flags[0].Reason)
}

func TestStruggleDetector_NoFalsePositives(t *testing.T) {
	def := testCourse("go-101", 2)
	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{
			status:    progress.StatusInProgress,
			attempts:  2,
			score:     score(85),
			timeSpent: 30,
		}),
	}

	flags := NewStruggleDetector(DefaultStruggleConfig()).Detect(def, records, nil, time.Now().UTC())
	assert.Empty(t, flags)
}

func TestStruggleDetector_IdempotentAcrossSyncs(t *testing.T) {
	def := testCourse("go-101", 1)
	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{
			status:   progress.StatusInProgress,
			attempts: 5,
		}),
	}

	detector := NewStruggleDetector(DefaultStruggleConfig())
	now := time.Now().UTC()

	first := detector.Detect(def, records, nil, now)
	require.Len(t, first, 1)

	// Re-running with the same records must not duplicate the entry and
	// must keep the original detection time.
	second := detector.Detect(def, records, first, now.Add(time.Hour))
	require.Len(t, second, 1)
	assert.Equal(t, first[0].DetectedAt, second[0].DetectedAt)
	assert.Equal(t, first[0].Reason, second[0].Reason)
}

func TestStruggleDetector_ReasonGrowsWhenNewPredicateTrips(t *testing.T) {
	def := testCourse("go-101", 1)
	detector := NewStruggleDetector(DefaultStruggleConfig())
	now := time.Now().UTC()

	records := []*progress.ModuleProgressRecord{
		testRecord("u1", def.Modules[0].ID, recordOpts{
			status:   progress.StatusInProgress,
			attempts: 5,
		}),
	}
	first := detector.Detect(def, records, nil, now)
	require.Len(t, first, 1)
	assert.Equal(t, ReasonMultipleAttempts, first[0].Reason)

	// A later failed assessment adds a low score on top.
	records[0].BestScorePercentage = score2(40)
	second := detector.Detect(def, records, first, now.Add(time.Hour))
	require.Len(t, second, 1)
	assert.Equal(t, "Multiple assessment attempts, Low assessment scores", second[0].Reason)
}

func TestStruggleDetector_Hysteresis(t *testing.T) {
	def := testCourse("go-101", 2)
	detector := NewStruggleDetector(DefaultStruggleConfig())
	now := time.Now().UTC()

	struggling := testRecord("u1", def.Modules[0].ID, recordOpts{
		status:   progress.StatusInProgress,
		attempts: 6,
		score:    score(30),
	})
	flags := detector.Detect(def, []*progress.ModuleProgressRecord{struggling}, nil, now)
	require.Len(t, flags, 1)

	// Mid-retry: module completed but score still below the resolve
	// threshold. The flag must persist.
	struggling.CompletionStatus = progress.StatusCompleted
	struggling.CompletionPercentage = 100
	completedAt := now
	struggling.CompletedAt = &completedAt
	struggling.BestScorePercentage = score2(65)

	flags = detector.Detect(def, []*progress.ModuleProgressRecord{struggling}, flags, now.Add(time.Hour))
	require.Len(t, flags, 1, "flag persists until completed with score >= 70")

	// Completed with score >= 70: resolved.
	struggling.BestScorePercentage = score2(78)
	flags = detector.Detect(def, []*progress.ModuleProgressRecord{struggling}, flags, now.Add(2*time.Hour))
	assert.Empty(t, flags)
}

func TestStruggleDetector_FlagPersistsWhenRecordMissing(t *testing.T) {
	// A flagged module with no record in the current set (untouched since)
	// stays flagged: struggle history is not silently forgotten.
	def := testCourse("go-101", 2)
	previous := []progress.StruggleEntry{
		{ModuleID: def.Modules[0].ID, Reason: ReasonLowScores, DetectedAt: time.Now().UTC().Add(-48 * time.Hour)},
	}

	flags := NewStruggleDetector(DefaultStruggleConfig()).Detect(def, nil, previous, time.Now().UTC())

	require.Len(t, flags, 1)
	assert.Equal(t, previous[0], flags[0])
}

func score2(v progress.Percentage) *progress.Percentage {
	return &v
}
