package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coursehub/progress-engine/internal/domain/course"
	"github.com/coursehub/progress-engine/internal/domain/progress"
	"github.com/coursehub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE PROGRESS STORE IMPLEMENTATION
// One row per (user, course). Updates are guarded by the version column:
// the orchestrator serializes writers per pair, the version check catches
// anything that slips past the lock (a second instance, an operator script).
// ══════════════════════════════════════════════════════════════════════════════

// CourseProgressRepository implements progress.CourseProgressStore for PostgreSQL.
type CourseProgressRepository struct {
	conn *Connection
}

// NewCourseProgressRepository creates a new CourseProgressRepository.
func NewCourseProgressRepository(conn *Connection) *CourseProgressRepository {
	return &CourseProgressRepository{conn: conn}
}

const courseProgressColumns = `
	id, user_id, course_id, total_modules, completed_modules, completion_percentage,
	average_score, total_time_spent_minutes, current_module_id, is_completed,
	completion_date, struggling_modules, achievements, certificate_issued,
	certificate_id, last_synced_at, version, created_at, updated_at
`

// struggleRow is the JSONB shape of one struggling-module entry.
type struggleRow struct {
	ModuleID   string    `json:"module_id"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detected_at"`
}

// achievementRow is the JSONB shape of one achievement entry.
type achievementRow struct {
	Type        string    `json:"type"`
	UnlockedAt  time.Time `json:"unlocked_at"`
	Description string    `json:"description"`
}

// Get returns the aggregate for a (user, course) pair.
func (r *CourseProgressRepository) Get(ctx context.Context, userID course.UserID, courseID course.CourseID) (*progress.CourseProgressAggregate, error) {
	query := `
		SELECT ` + courseProgressColumns + `
		FROM course_progress
		WHERE user_id = $1 AND course_id = $2
	`

	row := r.conn.QueryRow(ctx, query, string(userID), string(courseID))

	aggregate, err := scanCourseProgress(row)
	if IsNoRows(err) {
		return nil, shared.ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan course progress: %w", err)
	}

	return aggregate, nil
}

// Create creates a new aggregate row.
func (r *CourseProgressRepository) Create(ctx context.Context, aggregate *progress.CourseProgressAggregate) error {
	query := `
		INSERT INTO course_progress (` + courseProgressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	strugglesJSON, achievementsJSON, err := marshalAggregateLists(aggregate)
	if err != nil {
		return err
	}

	_, err = r.conn.Exec(ctx, query,
		aggregate.ID,
		string(aggregate.UserID),
		string(aggregate.CourseID),
		aggregate.TotalModules,
		aggregate.CompletedModules,
		aggregate.CompletionPercentage,
		aggregate.AverageModuleScore,
		int(aggregate.TotalTimeSpent),
		string(aggregate.CurrentModuleID),
		aggregate.IsCompleted,
		aggregate.CompletionDate,
		strugglesJSON,
		achievementsJSON,
		aggregate.CertificateIssued,
		aggregate.CertificateID,
		aggregate.LastSyncedAt,
		aggregate.Version,
		aggregate.CreatedAt,
		aggregate.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAggregateExists
		}
		return fmt.Errorf("failed to create course progress: %w", err)
	}

	return nil
}

// Update updates an aggregate row, bumping the version. A stale version means
// a concurrent writer got there first; the caller re-syncs from the stores.
func (r *CourseProgressRepository) Update(ctx context.Context, aggregate *progress.CourseProgressAggregate) error {
	query := `
		UPDATE course_progress SET
			total_modules = $1,
			completed_modules = $2,
			completion_percentage = $3,
			average_score = $4,
			total_time_spent_minutes = $5,
			current_module_id = $6,
			is_completed = $7,
			completion_date = $8,
			struggling_modules = $9,
			achievements = $10,
			certificate_issued = $11,
			certificate_id = $12,
			last_synced_at = $13,
			version = version + 1,
			updated_at = $14
		WHERE id = $15 AND version = $16
	`

	strugglesJSON, achievementsJSON, err := marshalAggregateLists(aggregate)
	if err != nil {
		return err
	}

	result, err := r.conn.Exec(ctx, query,
		aggregate.TotalModules,
		aggregate.CompletedModules,
		aggregate.CompletionPercentage,
		aggregate.AverageModuleScore,
		int(aggregate.TotalTimeSpent),
		string(aggregate.CurrentModuleID),
		aggregate.IsCompleted,
		aggregate.CompletionDate,
		strugglesJSON,
		achievementsJSON,
		aggregate.CertificateIssued,
		aggregate.CertificateID,
		aggregate.LastSyncedAt,
		time.Now().UTC(),
		aggregate.ID,
		aggregate.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update course progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the row vanished or the version moved under us.
		exists, existsErr := r.exists(ctx, aggregate.ID)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return shared.ErrAggregateNotFound
		}
		return shared.ErrSyncConflict
	}

	aggregate.Version++
	return nil
}

func (r *CourseProgressRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM course_progress WHERE id = $1)",
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check course progress existence: %w", err)
	}
	return exists, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan and marshal helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanCourseProgress(row pgx.Row) (*progress.CourseProgressAggregate, error) {
	var a progress.CourseProgressAggregate
	var userID, courseID, currentModuleID string
	var timeSpent int
	var strugglesJSON, achievementsJSON []byte

	err := row.Scan(
		&a.ID,
		&userID,
		&courseID,
		&a.TotalModules,
		&a.CompletedModules,
		&a.CompletionPercentage,
		&a.AverageModuleScore,
		&timeSpent,
		&currentModuleID,
		&a.IsCompleted,
		&a.CompletionDate,
		&strugglesJSON,
		&achievementsJSON,
		&a.CertificateIssued,
		&a.CertificateID,
		&a.LastSyncedAt,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.UserID = course.UserID(userID)
	a.CourseID = course.CourseID(courseID)
	a.CurrentModuleID = course.ModuleID(currentModuleID)
	a.TotalTimeSpent = progress.Minutes(timeSpent)

	if err := unmarshalAggregateLists(&a, strugglesJSON, achievementsJSON); err != nil {
		return nil, err
	}

	return &a, nil
}

func marshalAggregateLists(a *progress.CourseProgressAggregate) ([]byte, []byte, error) {
	struggles := make([]struggleRow, 0, len(a.StrugglingModules))
	for _, s := range a.StrugglingModules {
		struggles = append(struggles, struggleRow{
			ModuleID:   string(s.ModuleID),
			Reason:     s.Reason,
			DetectedAt: s.DetectedAt,
		})
	}

	achievements := make([]achievementRow, 0, len(a.Achievements))
	for _, ach := range a.Achievements {
		achievements = append(achievements, achievementRow{
			Type:        string(ach.Type),
			UnlockedAt:  ach.UnlockedAt,
			Description: ach.Description,
		})
	}

	strugglesJSON, err := json.Marshal(struggles)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal struggling modules: %w", err)
	}
	achievementsJSON, err := json.Marshal(achievements)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal achievements: %w", err)
	}

	return strugglesJSON, achievementsJSON, nil
}

func unmarshalAggregateLists(a *progress.CourseProgressAggregate, strugglesJSON, achievementsJSON []byte) error {
	var struggles []struggleRow
	if len(strugglesJSON) > 0 {
		if err := json.Unmarshal(strugglesJSON, &struggles); err != nil {
			return fmt.Errorf("failed to unmarshal struggling modules: %w", err)
		}
	}
	a.StrugglingModules = make([]progress.StruggleEntry, 0, len(struggles))
	for _, s := range struggles {
		a.StrugglingModules = append(a.StrugglingModules, progress.StruggleEntry{
			ModuleID:   course.ModuleID(s.ModuleID),
			Reason:     s.Reason,
			DetectedAt: s.DetectedAt,
		})
	}

	var achievements []achievementRow
	if len(achievementsJSON) > 0 {
		if err := json.Unmarshal(achievementsJSON, &achievements); err != nil {
			return fmt.Errorf("failed to unmarshal achievements: %w", err)
		}
	}
	a.Achievements = make([]progress.Achievement, 0, len(achievements))
	for _, ach := range achievements {
		a.Achievements = append(a.Achievements, progress.Achievement{
			Type:        progress.AchievementType(ach.Type),
			UnlockedAt:  ach.UnlockedAt,
			Description: ach.Description,
		})
	}

	return nil
}
