package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coursehub/progress-engine/internal/domain/course"
	"github.com/coursehub/progress-engine/internal/domain/progress"
	"github.com/coursehub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULE PROGRESS STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ModuleProgressRepository implements progress.ModuleProgressStore for PostgreSQL.
type ModuleProgressRepository struct {
	conn *Connection
}

// NewModuleProgressRepository creates a new ModuleProgressRepository.
func NewModuleProgressRepository(conn *Connection) *ModuleProgressRepository {
	return &ModuleProgressRepository{conn: conn}
}

const moduleProgressColumns = `
	id, user_id, course_id, module_id, completion_status, completion_percentage,
	time_spent_minutes, best_score, attempts, last_accessed_at, started_at,
	completed_at, created_at, updated_at
`

// Create creates a new module progress record.
func (r *ModuleProgressRepository) Create(ctx context.Context, record *progress.ModuleProgressRecord) error {
	query := `
		INSERT INTO module_progress (` + moduleProgressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.conn.Exec(ctx, query,
		record.ID,
		string(record.UserID),
		string(record.CourseID),
		string(record.ModuleID),
		string(record.CompletionStatus),
		float64(record.CompletionPercentage),
		int(record.TotalTimeSpent),
		scoreToPtr(record.BestScorePercentage),
		record.TotalAttempts,
		record.LastAccessedAt,
		record.StartedAt,
		record.CompletedAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create module progress: %w", err)
	}

	return nil
}

// Get returns the module progress record for a (user, module) pair.
func (r *ModuleProgressRepository) Get(ctx context.Context, userID course.UserID, courseID course.CourseID, moduleID course.ModuleID) (*progress.ModuleProgressRecord, error) {
	query := `
		SELECT ` + moduleProgressColumns + `
		FROM module_progress
		WHERE user_id = $1 AND course_id = $2 AND module_id = $3
	`

	row := r.conn.QueryRow(ctx, query, string(userID), string(courseID), string(moduleID))
	return r.scanRecord(row)
}

// Update updates a module progress record.
func (r *ModuleProgressRepository) Update(ctx context.Context, record *progress.ModuleProgressRecord) error {
	query := `
		UPDATE module_progress SET
			completion_status = $1,
			completion_percentage = $2,
			time_spent_minutes = $3,
			best_score = $4,
			attempts = $5,
			last_accessed_at = $6,
			started_at = $7,
			completed_at = $8,
			updated_at = $9
		WHERE id = $10
	`

	result, err := r.conn.Exec(ctx, query,
		string(record.CompletionStatus),
		float64(record.CompletionPercentage),
		int(record.TotalTimeSpent),
		scoreToPtr(record.BestScorePercentage),
		record.TotalAttempts,
		record.LastAccessedAt,
		record.StartedAt,
		record.CompletedAt,
		time.Now().UTC(),
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update module progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrRecordNotFound
	}

	return nil
}

// Find returns all module progress records for a (user, course) pair,
// ordered by module ID.
func (r *ModuleProgressRepository) Find(ctx context.Context, userID course.UserID, courseID course.CourseID) ([]*progress.ModuleProgressRecord, error) {
	query := `
		SELECT ` + moduleProgressColumns + `
		FROM module_progress
		WHERE user_id = $1 AND course_id = $2
		ORDER BY module_id ASC
	`

	rows, err := r.conn.Query(ctx, query, string(userID), string(courseID))
	if err != nil {
		return nil, fmt.Errorf("failed to query module progress: %w", err)
	}
	defer rows.Close()

	var records []*progress.ModuleProgressRecord
	for rows.Next() {
		record, err := r.scanRecordFromRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *ModuleProgressRepository) scanRecord(row pgx.Row) (*progress.ModuleProgressRecord, error) {
	record, err := scanModuleProgress(row)
	if IsNoRows(err) {
		return nil, shared.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan module progress: %w", err)
	}
	return record, nil
}

func (r *ModuleProgressRepository) scanRecordFromRows(rows pgx.Rows) (*progress.ModuleProgressRecord, error) {
	record, err := scanModuleProgress(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan module progress: %w", err)
	}
	return record, nil
}

func scanModuleProgress(row pgx.Row) (*progress.ModuleProgressRecord, error) {
	var record progress.ModuleProgressRecord
	var userID, courseID, moduleID, status string
	var percentage float64
	var timeSpent int
	var bestScore *float64

	err := row.Scan(
		&record.ID,
		&userID,
		&courseID,
		&moduleID,
		&status,
		&percentage,
		&timeSpent,
		&bestScore,
		&record.TotalAttempts,
		&record.LastAccessedAt,
		&record.StartedAt,
		&record.CompletedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.UserID = course.UserID(userID)
	record.CourseID = course.CourseID(courseID)
	record.ModuleID = course.ModuleID(moduleID)
	record.CompletionStatus = progress.CompletionStatus(status)
	record.CompletionPercentage = progress.Percentage(percentage)
	record.TotalTimeSpent = progress.Minutes(timeSpent)
	if bestScore != nil {
		s := progress.Percentage(*bestScore)
		record.BestScorePercentage = &s
	}

	return &record, nil
}

// scoreToPtr converts an optional domain percentage to a nullable column value.
func scoreToPtr(p *progress.Percentage) *float64 {
	if p == nil {
		return nil
	}
	v := float64(*p)
	return &v
}
