// Package course содержит определения курсов и модулей.
// Авторинг курсов живёт вне этой системы - здесь только контракты,
// через которые движок синхронизации читает структуру курса.
package course

import (
	"context"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// CourseID представляет уникальный идентификатор курса.
type CourseID string

// IsValid проверяет корректность идентификатора курса.
func (c CourseID) IsValid() bool {
	s := string(c)
	return len(s) > 0 && !strings.ContainsAny(s, " \t\n\r")
}

// String возвращает строковое представление идентификатора.
func (c CourseID) String() string {
	return string(c)
}

// ModuleID представляет уникальный идентификатор модуля внутри курса.
type ModuleID string

// IsValid проверяет корректность идентификатора модуля.
func (m ModuleID) IsValid() bool {
	s := string(m)
	return len(s) > 0 && !strings.ContainsAny(s, " \t\n\r")
}

// String возвращает строковое представление идентификатора.
func (m ModuleID) String() string {
	return string(m)
}

// UserID представляет уникальный идентификатор учащегося.
type UserID string

// IsValid проверяет корректность идентификатора учащегося.
func (u UserID) IsValid() bool {
	s := string(u)
	return len(s) > 0 && !strings.ContainsAny(s, " \t\n\r")
}

// String возвращает строковое представление идентификатора.
func (u UserID) String() string {
	return string(u)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// ModuleDefinition описывает один модуль курса, как его объявил автор.
type ModuleDefinition struct {
	// ID - идентификатор модуля.
	ID ModuleID

	// Title - название модуля.
	Title string

	// EstimatedDuration - заявленная длительность прохождения в минутах.
	// Используется детектором затруднений (правило "2x от заявленного времени").
	EstimatedDuration int

	// Order - порядковый номер модуля в курсе.
	Order int

	// HasAssessment - есть ли в модуле оцениваемое задание.
	HasAssessment bool
}

// CourseDefinition описывает структуру курса.
// Модуль может существовать без единой записи прогресса,
// поэтому ModuleCount берётся отсюда, а не из записей.
type CourseDefinition struct {
	// ID - идентификатор курса.
	ID CourseID

	// Title - название курса.
	Title string

	// Modules - объявленные модули курса, в порядке прохождения.
	Modules []ModuleDefinition

	// EstimatedCompletionTime - заявленное время прохождения курса в минутах.
	// Используется движком достижений (speed-learner).
	EstimatedCompletionTime int

	// CreatedAt - время создания определения.
	CreatedAt time.Time

	// UpdatedAt - время последнего изменения определения.
	UpdatedAt time.Time
}

// ModuleCount возвращает объявленное количество модулей.
func (c *CourseDefinition) ModuleCount() int {
	return len(c.Modules)
}

// HasModule проверяет принадлежность модуля курсу.
func (c *CourseDefinition) HasModule(id ModuleID) bool {
	for _, m := range c.Modules {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Module возвращает определение модуля по идентификатору.
func (c *CourseDefinition) Module(id ModuleID) (ModuleDefinition, bool) {
	for _, m := range c.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return ModuleDefinition{}, false
}

// ModuleIDs возвращает идентификаторы всех объявленных модулей.
func (c *CourseDefinition) ModuleIDs() []ModuleID {
	ids := make([]ModuleID, 0, len(c.Modules))
	for _, m := range c.Modules {
		ids = append(ids, m.ID)
	}
	return ids
}

// ══════════════════════════════════════════════════════════════════════════════
// PROVIDER INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// DefinitionProvider отдаёт структуру курса, объявленную автором.
type DefinitionProvider interface {
	// GetCourse возвращает определение курса.
	// Возвращает shared.ErrCourseNotFound, если курс не найден.
	GetCourse(ctx context.Context, courseID CourseID) (*CourseDefinition, error)

	// GetModuleCount возвращает объявленное количество модулей курса.
	GetModuleCount(ctx context.Context, courseID CourseID) (int, error)

	// GetEstimatedDuration возвращает заявленное время прохождения курса в минутах.
	GetEstimatedDuration(ctx context.Context, courseID CourseID) (int, error)

	// GetModuleEstimatedDuration возвращает заявленную длительность модуля в минутах.
	GetModuleEstimatedDuration(ctx context.Context, courseID CourseID, moduleID ModuleID) (int, error)
}

// EnrollmentProvider отдаёт список записанных на курс учащихся.
type EnrollmentProvider interface {
	// ListUsers возвращает идентификаторы всех записанных на курс учащихся.
	ListUsers(ctx context.Context, courseID CourseID) ([]UserID, error)

	// IsEnrolled проверяет, записан ли учащийся на курс.
	IsEnrolled(ctx context.Context, userID UserID, courseID CourseID) (bool, error)
}
