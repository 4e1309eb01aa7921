package postgres

import (
	"context"
	"fmt"

	"github.com/coursehub/progress-engine/internal/domain/course"
	"github.com/coursehub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE CATALOG IMPLEMENTATION
// Read-only view of the authoring data. Implements both course.DefinitionProvider
// and course.EnrollmentProvider.
// ══════════════════════════════════════════════════════════════════════════════

// CourseRepository reads course definitions and enrollments from PostgreSQL.
type CourseRepository struct {
	conn *Connection
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(conn *Connection) *CourseRepository {
	return &CourseRepository{conn: conn}
}

// GetCourse returns a course definition with its modules in authored order.
func (r *CourseRepository) GetCourse(ctx context.Context, courseID course.CourseID) (*course.CourseDefinition, error) {
	query := `
		SELECT id, title, estimated_completion_time, created_at, updated_at
		FROM course_definitions
		WHERE id = $1
	`

	var def course.CourseDefinition
	var id string

	err := r.conn.QueryRow(ctx, query, string(courseID)).Scan(
		&id,
		&def.Title,
		&def.EstimatedCompletionTime,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan course definition: %w", err)
	}
	def.ID = course.CourseID(id)

	modules, err := r.loadModules(ctx, courseID)
	if err != nil {
		return nil, err
	}
	def.Modules = modules

	return &def, nil
}

// GetModuleCount returns the declared number of modules in a course.
func (r *CourseRepository) GetModuleCount(ctx context.Context, courseID course.CourseID) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM course_modules WHERE course_id = $1",
		string(courseID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count course modules: %w", err)
	}

	if count == 0 {
		// Distinguish an empty course from a missing one.
		exists, err := r.courseExists(ctx, courseID)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, shared.ErrCourseNotFound
		}
	}

	return count, nil
}

// GetEstimatedDuration returns the declared completion time of a course in minutes.
func (r *CourseRepository) GetEstimatedDuration(ctx context.Context, courseID course.CourseID) (int, error) {
	var duration int
	err := r.conn.QueryRow(ctx,
		"SELECT estimated_completion_time FROM course_definitions WHERE id = $1",
		string(courseID),
	).Scan(&duration)
	if IsNoRows(err) {
		return 0, shared.ErrCourseNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get estimated duration: %w", err)
	}
	return duration, nil
}

// GetModuleEstimatedDuration returns the declared duration of a module in minutes.
func (r *CourseRepository) GetModuleEstimatedDuration(ctx context.Context, courseID course.CourseID, moduleID course.ModuleID) (int, error) {
	var duration int
	err := r.conn.QueryRow(ctx,
		"SELECT estimated_duration FROM course_modules WHERE course_id = $1 AND module_id = $2",
		string(courseID),
		string(moduleID),
	).Scan(&duration)
	if IsNoRows(err) {
		return 0, shared.ErrModuleNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get module estimated duration: %w", err)
	}
	return duration, nil
}

// ListUsers returns the IDs of all users enrolled in a course.
func (r *CourseRepository) ListUsers(ctx context.Context, courseID course.CourseID) ([]course.UserID, error) {
	query := `
		SELECT user_id
		FROM enrollments
		WHERE course_id = $1
		ORDER BY enrolled_at ASC
	`

	rows, err := r.conn.Query(ctx, query, string(courseID))
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer rows.Close()

	var users []course.UserID
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		users = append(users, course.UserID(userID))
	}

	return users, rows.Err()
}

// ListCourses returns the IDs of all courses in the catalog.
func (r *CourseRepository) ListCourses(ctx context.Context) ([]course.CourseID, error) {
	rows, err := r.conn.Query(ctx, "SELECT id FROM course_definitions ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query course definitions: %w", err)
	}
	defer rows.Close()

	var ids []course.CourseID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan course id: %w", err)
		}
		ids = append(ids, course.CourseID(id))
	}

	return ids, rows.Err()
}

// IsEnrolled checks whether a user is enrolled in a course.
func (r *CourseRepository) IsEnrolled(ctx context.Context, userID course.UserID, courseID course.CourseID) (bool, error) {
	var enrolled bool
	err := r.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)",
		string(userID),
		string(courseID),
	).Scan(&enrolled)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return enrolled, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *CourseRepository) loadModules(ctx context.Context, courseID course.CourseID) ([]course.ModuleDefinition, error) {
	query := `
		SELECT module_id, title, estimated_duration, module_order, has_assessment
		FROM course_modules
		WHERE course_id = $1
		ORDER BY module_order ASC
	`

	rows, err := r.conn.Query(ctx, query, string(courseID))
	if err != nil {
		return nil, fmt.Errorf("failed to query course modules: %w", err)
	}
	defer rows.Close()

	var modules []course.ModuleDefinition
	for rows.Next() {
		var m course.ModuleDefinition
		var moduleID string

		err := rows.Scan(&moduleID, &m.Title, &m.EstimatedDuration, &m.Order, &m.HasAssessment)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course module: %w", err)
		}

		m.ID = course.ModuleID(moduleID)
		modules = append(modules, m)
	}

	return modules, rows.Err()
}

func (r *CourseRepository) courseExists(ctx context.Context, courseID course.CourseID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM course_definitions WHERE id = $1)",
		string(courseID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check course existence: %w", err)
	}
	return exists, nil
}
