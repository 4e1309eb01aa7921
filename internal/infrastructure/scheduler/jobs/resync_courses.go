// Package jobs contains implementations of scheduled jobs for the progress
// engine. The central one re-reconciles every enrolled user of every course
// during the nightly off-peak window, so that aggregates drifting out of date
// between on-demand syncs are caught within a day.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	appsync "github.com/coursehub/progress-engine/internal/application/sync"
	"github.com/coursehub/progress-engine/internal/domain/course"
	"github.com/coursehub/progress-engine/pkg/retry"
	"github.com/coursehub/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESYNC COURSES JOB
// ══════════════════════════════════════════════════════════════════════════════

// SyncService is the part of the orchestrator the job depends on.
type SyncService interface {
	// SyncAllUsersInCourse re-syncs every enrolled user and reports per-user
	// outcomes. A partial failure does not abort the remaining users.
	SyncAllUsersInCourse(ctx context.Context, courseID course.CourseID) ([]appsync.UserSyncResult, error)
}

// CourseLister enumerates the courses known to the catalog.
type CourseLister interface {
	ListCourses(ctx context.Context) ([]course.CourseID, error)
}

// ResyncCoursesJob walks the course catalog and runs a bulk re-sync for each
// course. Each course is retried as a whole on transient failure; per-user
// failures inside a course are counted but never retried here, since the next
// nightly pass will pick them up.
type ResyncCoursesJob struct {
	syncService SyncService
	courses     CourseLister
	retrier     *retry.Retrier
	logger      *slog.Logger

	config ResyncCoursesConfig

	lastStats atomic.Value // *ResyncStats
}

// ResyncCoursesConfig contains configuration for the re-sync job.
type ResyncCoursesConfig struct {
	// Timeout is the maximum duration for the entire pass.
	Timeout time.Duration

	// OffPeakOnly skips runs that fall outside the off-peak window.
	// The window is rechecked before each course, so a pass that overruns
	// the window stops instead of bleeding into peak hours.
	OffPeakOnly bool
}

// DefaultResyncCoursesConfig returns sensible defaults.
func DefaultResyncCoursesConfig() ResyncCoursesConfig {
	return ResyncCoursesConfig{
		Timeout:     3 * time.Hour,
		OffPeakOnly: true,
	}
}

// ResyncStats contains statistics from a re-sync pass.
type ResyncStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	TotalCourses  int
	SyncedCourses int
	FailedCourses int
	TotalUsers    int
	FailedUsers   int
	Errors        []ResyncError
}

// ResyncError records a failure during a re-sync pass.
type ResyncError struct {
	CourseID   course.CourseID
	UserID     course.UserID
	Err        error
	OccurredAt time.Time
}

// NewResyncCoursesJob creates a new re-sync job.
func NewResyncCoursesJob(
	syncService SyncService,
	courses CourseLister,
	logger *slog.Logger,
	config ResyncCoursesConfig,
) *ResyncCoursesJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultResyncCoursesConfig().Timeout
	}

	return &ResyncCoursesJob{
		syncService: syncService,
		courses:     courses,
		retrier:     retry.BulkSyncRetrier(),
		logger:      logger,
		config:      config,
	}
}

// Name returns the job name.
func (j *ResyncCoursesJob) Name() string {
	return "resync_courses"
}

// Description returns a human-readable description.
func (j *ResyncCoursesJob) Description() string {
	return "Re-reconciles progress aggregates for all enrolled users of all courses"
}

// Run executes the re-sync pass.
func (j *ResyncCoursesJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	if j.config.OffPeakOnly && !timeutil.IsOffPeak(startedAt) {
		j.logger.Warn("resync_courses triggered outside off-peak window, skipping",
			"now", startedAt.UTC().Format(time.RFC3339),
			"next_window", timeutil.NextOffPeak(startedAt).Format(time.RFC3339),
		)
		return nil
	}

	stats := &ResyncStats{
		StartedAt: startedAt,
		Errors:    make([]ResyncError, 0),
	}

	j.logger.Info("starting resync_courses job")

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	courseIDs, err := j.courses.ListCourses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list courses: %w", err)
	}

	stats.TotalCourses = len(courseIDs)
	j.logger.Info("found courses to resync", "count", stats.TotalCourses)

	var mu sync.Mutex
	for _, courseID := range courseIDs {
		select {
		case <-ctx.Done():
			j.finalize(stats)
			return ctx.Err()
		default:
		}

		if j.config.OffPeakOnly && !timeutil.IsOffPeak(time.Now()) {
			j.logger.Warn("off-peak window closed, stopping resync pass",
				"courses_done", stats.SyncedCourses,
				"courses_total", stats.TotalCourses,
			)
			break
		}

		j.resyncCourse(ctx, courseID, stats, &mu)
	}

	j.finalize(stats)

	j.logger.Info("resync_courses job completed",
		"duration", stats.Duration.String(),
		"courses", stats.TotalCourses,
		"courses_failed", stats.FailedCourses,
		"users", stats.TotalUsers,
		"users_failed", stats.FailedUsers,
	)

	if stats.TotalCourses > 0 && stats.FailedCourses*2 > stats.TotalCourses {
		return fmt.Errorf("resync failed for more than half of courses (%d/%d)",
			stats.FailedCourses, stats.TotalCourses)
	}

	return nil
}

// resyncCourse runs the bulk sync for one course, retrying the whole course
// on transient failure.
func (j *ResyncCoursesJob) resyncCourse(
	ctx context.Context,
	courseID course.CourseID,
	stats *ResyncStats,
	mu *sync.Mutex,
) {
	var results []appsync.UserSyncResult

	err := j.retrier.Do(ctx, func(ctx context.Context) error {
		var syncErr error
		results, syncErr = j.syncService.SyncAllUsersInCourse(ctx, courseID)
		return syncErr
	})

	mu.Lock()
	defer mu.Unlock()

	if err != nil {
		stats.FailedCourses++
		stats.Errors = append(stats.Errors, ResyncError{
			CourseID:   courseID,
			Err:        err,
			OccurredAt: time.Now(),
		})
		j.logger.Error("failed to resync course",
			"course_id", courseID,
			"error", err,
		)
		return
	}

	stats.SyncedCourses++
	stats.TotalUsers += len(results)
	for _, r := range results {
		if r.Success {
			continue
		}
		stats.FailedUsers++
		stats.Errors = append(stats.Errors, ResyncError{
			CourseID:   courseID,
			UserID:     r.UserID,
			Err:        r.Err,
			OccurredAt: time.Now(),
		})
		j.logger.Warn("user resync failed",
			"course_id", courseID,
			"user_id", r.UserID,
			"error", r.Err,
		)
	}
}

// finalize stamps the stats and publishes them for LastStats.
func (j *ResyncCoursesJob) finalize(stats *ResyncStats) {
	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastStats.Store(stats)
}

// LastStats returns statistics from the last re-sync pass.
func (j *ResyncCoursesJob) LastStats() *ResyncStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*ResyncStats)
}
