package postgres

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_courses",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_module_progress",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_course_progress",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// Migration 001: course catalog and enrollments.
const migration001Up = `
CREATE TABLE IF NOT EXISTS course_definitions (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	estimated_completion_time INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS course_modules (
	course_id TEXT NOT NULL REFERENCES course_definitions(id) ON DELETE CASCADE,
	module_id TEXT NOT NULL,
	title TEXT NOT NULL,
	estimated_duration INTEGER NOT NULL DEFAULT 0,
	module_order INTEGER NOT NULL DEFAULT 0,
	has_assessment BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (course_id, module_id)
);

CREATE INDEX IF NOT EXISTS idx_course_modules_order
	ON course_modules(course_id, module_order);

CREATE TABLE IF NOT EXISTS enrollments (
	user_id TEXT NOT NULL,
	course_id TEXT NOT NULL REFERENCES course_definitions(id) ON DELETE CASCADE,
	enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, course_id)
);

CREATE INDEX IF NOT EXISTS idx_enrollments_course
	ON enrollments(course_id);
`

const migration001Down = `
DROP TABLE IF EXISTS enrollments;
DROP TABLE IF EXISTS course_modules;
DROP TABLE IF EXISTS course_definitions;
`

// Migration 002: per-module progress records.
const migration002Up = `
CREATE TABLE IF NOT EXISTS module_progress (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	course_id TEXT NOT NULL,
	module_id TEXT NOT NULL,
	completion_status TEXT NOT NULL DEFAULT 'not-started',
	completion_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
	time_spent_minutes INTEGER NOT NULL DEFAULT 0,
	best_score DOUBLE PRECISION,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	started_at TIMESTAMP WITH TIME ZONE,
	completed_at TIMESTAMP WITH TIME ZONE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, course_id, module_id)
);

CREATE INDEX IF NOT EXISTS idx_module_progress_pair
	ON module_progress(user_id, course_id);
`

const migration002Down = `
DROP TABLE IF EXISTS module_progress;
`

// Migration 003: course-level aggregate, one row per (user, course).
// struggling_modules and achievements are JSONB: both are small append-only
// lists read and written as a whole by the orchestrator.
const migration003Up = `
CREATE TABLE IF NOT EXISTS course_progress (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	course_id TEXT NOT NULL,
	total_modules INTEGER NOT NULL DEFAULT 0,
	completed_modules INTEGER NOT NULL DEFAULT 0,
	completion_percentage INTEGER NOT NULL DEFAULT 0,
	average_score DOUBLE PRECISION,
	total_time_spent_minutes INTEGER NOT NULL DEFAULT 0,
	current_module_id TEXT NOT NULL DEFAULT '',
	is_completed BOOLEAN NOT NULL DEFAULT FALSE,
	completion_date TIMESTAMP WITH TIME ZONE,
	struggling_modules JSONB NOT NULL DEFAULT '[]',
	achievements JSONB NOT NULL DEFAULT '[]',
	certificate_issued BOOLEAN NOT NULL DEFAULT FALSE,
	certificate_id TEXT NOT NULL DEFAULT '',
	last_synced_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, course_id)
);

CREATE INDEX IF NOT EXISTS idx_course_progress_course
	ON course_progress(course_id);
`

const migration003Down = `
DROP TABLE IF EXISTS course_progress;
`
