package progress

import (
	"context"
	"time"

	"github.com/coursehub/progress-engine/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ModuleProgressStore определяет операции над записями прогресса по модулям.
type ModuleProgressStore interface {
	// Create создаёт новую запись прогресса.
	// Возвращает shared.ErrAlreadyExists, если запись уже существует.
	Create(ctx context.Context, record *ModuleProgressRecord) error

	// Get возвращает запись прогресса по паре (учащийся, модуль).
	// Возвращает shared.ErrRecordNotFound, если запись не найдена.
	Get(ctx context.Context, userID course.UserID, courseID course.CourseID, moduleID course.ModuleID) (*ModuleProgressRecord, error)

	// Update обновляет запись прогресса.
	// Возвращает shared.ErrRecordNotFound, если запись не найдена.
	Update(ctx context.Context, record *ModuleProgressRecord) error

	// Find возвращает все записи прогресса пары (учащийся, курс).
	// Порядок стабилен (по module_id), пустой срез - валидный результат.
	Find(ctx context.Context, userID course.UserID, courseID course.CourseID) ([]*ModuleProgressRecord, error)
}

// CourseProgressStore определяет операции над сводными записями прогресса.
// Все записи через этот интерфейс выполняет только SyncOrchestrator.
type CourseProgressStore interface {
	// Get возвращает сводную запись пары (учащийся, курс).
	// Возвращает shared.ErrAggregateNotFound, если записи ещё нет.
	Get(ctx context.Context, userID course.UserID, courseID course.CourseID) (*CourseProgressAggregate, error)

	// Create создаёт сводную запись.
	// Возвращает shared.ErrAggregateExists, если запись уже существует.
	Create(ctx context.Context, aggregate *CourseProgressAggregate) error

	// Update обновляет сводную запись с проверкой версии.
	// Возвращает shared.ErrSyncConflict при конкурентной модификации.
	Update(ctx context.Context, aggregate *CourseProgressAggregate) error
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INTERFACE
// Для кеширования сводных записей на читающих путях (отчёты).
// ══════════════════════════════════════════════════════════════════════════════

// AggregateCache определяет операции кеширования сводных записей.
type AggregateCache interface {
	// Get получает сводную запись из кеша.
	Get(ctx context.Context, userID course.UserID, courseID course.CourseID) (*CourseProgressAggregate, error)

	// Set сохраняет сводную запись в кеш.
	Set(ctx context.Context, aggregate *CourseProgressAggregate, ttl time.Duration) error

	// Invalidate удаляет сводную запись из кеша.
	Invalidate(ctx context.Context, userID course.UserID, courseID course.CourseID) error
}
