// Package progress содержит доменную модель прогресса обучения.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/coursehub/progress-engine/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Percentage представляет процентное значение (0-100).
type Percentage float64

// IsValid проверяет, что значение находится в диапазоне 0-100.
func (p Percentage) IsValid() bool {
	return p >= 0 && p <= 100
}

// Minutes представляет затраченное время в минутах.
type Minutes int

// IsValid проверяет, что значение неотрицательное.
func (m Minutes) IsValid() bool {
	return m >= 0
}

// Add складывает минуты.
func (m Minutes) Add(delta Minutes) Minutes {
	return m + delta
}

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// CompletionStatus определяет статус прохождения модуля.
type CompletionStatus string

const (
	// StatusNotStarted - учащийся ещё не открывал модуль.
	StatusNotStarted CompletionStatus = "not-started"
	// StatusInProgress - модуль начат, но не завершён.
	StatusInProgress CompletionStatus = "in-progress"
	// StatusCompleted - модуль завершён. Терминальный статус.
	StatusCompleted CompletionStatus = "completed"
)

// IsValid проверяет, что статус корректен.
func (s CompletionStatus) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// IsCompleted возвращает true для завершённого модуля.
func (s CompletionStatus) IsCompleted() bool {
	return s == StatusCompleted
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidPercentage - значение процента вне диапазона 0-100.
	ErrInvalidPercentage = errors.New("invalid percentage: must be between 0 and 100")

	// ErrInvalidMinutes - отрицательное время.
	ErrInvalidMinutes = errors.New("invalid minutes: must be non-negative")

	// ErrInvalidStatus - невалидный статус прохождения.
	ErrInvalidStatus = errors.New("invalid completion status")

	// ErrTimeSpentDecreased - суммарное время не может уменьшаться.
	ErrTimeSpentDecreased = errors.New("total time spent is monotonically non-decreasing")

	// ErrAlreadyCompleted - модуль уже завершён; completedAt выставляется ровно один раз.
	ErrAlreadyCompleted = errors.New("module already completed")

	// ErrCompletionInvariant - статус, процент и completedAt противоречат друг другу.
	ErrCompletionInvariant = errors.New("completion status, percentage and completedAt must agree")
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULE PROGRESS RECORD
// Одна запись на пару (учащийся, модуль). Создаётся при первом открытии модуля,
// мутирует на каждом событии прохождения контента или сдачи теста.
// ══════════════════════════════════════════════════════════════════════════════

// ModuleProgressRecord - детальная запись прогресса по одному модулю.
type ModuleProgressRecord struct {
	// ID - внутренний уникальный идентификатор записи.
	ID string

	// UserID - идентификатор учащегося.
	UserID course.UserID

	// CourseID - идентификатор курса.
	CourseID course.CourseID

	// ModuleID - идентификатор модуля.
	ModuleID course.ModuleID

	// CompletionStatus - текущий статус прохождения.
	CompletionStatus CompletionStatus

	// CompletionPercentage - процент прохождения контента (0-100).
	CompletionPercentage Percentage

	// TotalTimeSpent - суммарное время в минутах. Монотонно не убывает.
	TotalTimeSpent Minutes

	// BestScorePercentage - лучший результат теста (0-100), nil если тестов не было.
	BestScorePercentage *Percentage

	// TotalAttempts - количество попыток сдачи. >= 1 после начала модуля.
	TotalAttempts int

	// LastAccessedAt - время последнего обращения к модулю.
	LastAccessedAt time.Time

	// StartedAt - время первого открытия модуля, nil до начала.
	StartedAt *time.Time

	// CompletedAt - время завершения. Выставляется ровно один раз, никогда не сбрасывается.
	CompletedAt *time.Time

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewRecordParams содержит параметры для создания новой записи прогресса.
type NewRecordParams struct {
	ID       string
	UserID   course.UserID
	CourseID course.CourseID
	ModuleID course.ModuleID
}

// NewModuleProgressRecord создаёт запись для только что открытого модуля.
func NewModuleProgressRecord(params NewRecordParams) (*ModuleProgressRecord, error) {
	if params.ID == "" {
		return nil, errors.New("record id is required")
	}
	if !params.UserID.IsValid() {
		return nil, errors.New("invalid user id")
	}
	if !params.CourseID.IsValid() {
		return nil, errors.New("invalid course id")
	}
	if !params.ModuleID.IsValid() {
		return nil, errors.New("invalid module id")
	}

	now := time.Now().UTC()
	started := now

	return &ModuleProgressRecord{
		ID:                   params.ID,
		UserID:               params.UserID,
		CourseID:             params.CourseID,
		ModuleID:             params.ModuleID,
		CompletionStatus:     StatusInProgress,
		CompletionPercentage: 0,
		TotalTimeSpent:       0,
		BestScorePercentage:  nil,
		TotalAttempts:        1,
		LastAccessedAt:       now,
		StartedAt:            &started,
		CompletedAt:          nil,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// RecordContentProgress фиксирует событие прохождения контента.
// Процент может только расти, время только накапливается.
func (r *ModuleProgressRecord) RecordContentProgress(percentage Percentage, additionalTime Minutes) error {
	if !percentage.IsValid() {
		return ErrInvalidPercentage
	}
	if !additionalTime.IsValid() {
		return ErrInvalidMinutes
	}

	if percentage > r.CompletionPercentage {
		r.CompletionPercentage = percentage
	}
	r.TotalTimeSpent = r.TotalTimeSpent.Add(additionalTime)
	r.touch()

	if r.CompletionStatus == StatusNotStarted {
		r.markStarted()
	}
	return nil
}

// RecordScore фиксирует результат сдачи теста.
// Сохраняется лучший результат; счётчик попыток растёт на каждой сдаче.
func (r *ModuleProgressRecord) RecordScore(score Percentage) error {
	if !score.IsValid() {
		return ErrInvalidPercentage
	}

	r.TotalAttempts++
	if r.BestScorePercentage == nil || score > *r.BestScorePercentage {
		s := score
		r.BestScorePercentage = &s
	}
	r.touch()

	if r.CompletionStatus == StatusNotStarted {
		r.markStarted()
	}
	return nil
}

// MarkCompleted переводит модуль в завершённое состояние.
// CompletedAt выставляется ровно один раз; повторный вызов - no-op.
func (r *ModuleProgressRecord) MarkCompleted() {
	if r.CompletionStatus.IsCompleted() {
		return
	}

	now := time.Now().UTC()
	if r.StartedAt == nil {
		r.StartedAt = &now
	}
	r.CompletionStatus = StatusCompleted
	r.CompletionPercentage = 100
	r.CompletedAt = &now
	r.touch()
}

// Validate проверяет инвариант завершения:
// completedAt выставлен <=> статус completed <=> процент == 100.
func (r *ModuleProgressRecord) Validate() error {
	if !r.CompletionStatus.IsValid() {
		return ErrInvalidStatus
	}
	if !r.CompletionPercentage.IsValid() {
		return ErrInvalidPercentage
	}
	if !r.TotalTimeSpent.IsValid() {
		return ErrInvalidMinutes
	}
	if r.BestScorePercentage != nil && !r.BestScorePercentage.IsValid() {
		return ErrInvalidPercentage
	}

	completed := r.CompletionStatus.IsCompleted()
	if completed != (r.CompletedAt != nil) || completed != (r.CompletionPercentage == 100) {
		return ErrCompletionInvariant
	}
	return nil
}

// DaysInProgress возвращает количество дней с момента начала модуля.
// Для не начатых модулей возвращает 0.
func (r *ModuleProgressRecord) DaysInProgress(now time.Time) int {
	if r.StartedAt == nil {
		return 0
	}
	return int(now.Sub(*r.StartedAt).Hours() / 24)
}

// String возвращает строковое представление записи для логирования.
func (r *ModuleProgressRecord) String() string {
	return fmt.Sprintf(
		"ModuleProgress{User: %s, Module: %s, Status: %s, Pct: %.0f, Attempts: %d}",
		r.UserID, r.ModuleID, r.CompletionStatus, float64(r.CompletionPercentage), r.TotalAttempts,
	)
}

// Clone создаёт глубокую копию записи.
func (r *ModuleProgressRecord) Clone() *ModuleProgressRecord {
	if r == nil {
		return nil
	}

	clone := *r
	if r.BestScorePercentage != nil {
		s := *r.BestScorePercentage
		clone.BestScorePercentage = &s
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		clone.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

func (r *ModuleProgressRecord) markStarted() {
	r.CompletionStatus = StatusInProgress
	if r.StartedAt == nil {
		now := time.Now().UTC()
		r.StartedAt = &now
	}
	if r.TotalAttempts == 0 {
		r.TotalAttempts = 1
	}
}

func (r *ModuleProgressRecord) touch() {
	now := time.Now().UTC()
	r.LastAccessedAt = now
	r.UpdatedAt = now
}
