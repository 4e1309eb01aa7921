package progress

import (
	"errors"
	"time"

	"github.com/coursehub/progress-engine/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementType представляет тип достижения.
// Тип уникален в рамках одной записи на курс - это гарантия идемпотентности.
type AchievementType string

const (
	// AchievementCourseCompletion - завершены все модули курса.
	AchievementCourseCompletion AchievementType = "course-completion"
	// AchievementPerfectCourse - средний балл >= 90 на момент завершения курса.
	AchievementPerfectCourse AchievementType = "perfect-course"
	// AchievementSpeedLearner - курс завершён быстрее 75% заявленного времени.
	AchievementSpeedLearner AchievementType = "speed-learner"
	// AchievementStudyWarrior - накоплено 600+ минут учёбы.
	AchievementStudyWarrior AchievementType = "study-warrior"
)

// Achievement представляет полученное достижение.
type Achievement struct {
	// Type - тип достижения.
	Type AchievementType

	// UnlockedAt - когда получено.
	UnlockedAt time.Time

	// Description - человекочитаемое описание.
	Description string
}

// AchievementDefinition описывает достижение.
type AchievementDefinition struct {
	Type        AchievementType
	Name        string
	Description string
}

// GetAchievementDefinitions возвращает все определения достижений.
func GetAchievementDefinitions() []AchievementDefinition {
	return []AchievementDefinition{
		{AchievementCourseCompletion, "Course Completed", "Completed all modules of the course"},
		{AchievementPerfectCourse, "Perfect Course", "Finished the course with an average score of 90 or higher"},
		{AchievementSpeedLearner, "Speed Learner", "Finished the course in under 75% of the estimated time"},
		{AchievementStudyWarrior, "Study Warrior", "Accumulated over 10 hours of study time"},
	}
}

// GetAchievementDefinition возвращает определение достижения по типу.
func GetAchievementDefinition(t AchievementType) (AchievementDefinition, bool) {
	for _, def := range GetAchievementDefinitions() {
		if def.Type == t {
			return def, true
		}
	}
	return AchievementDefinition{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// STRUGGLES
// ══════════════════════════════════════════════════════════════════════════════

// StruggleEntry - эвристический флаг затруднения по конкретному модулю.
// Элементы сравниваются по ModuleID; один модуль флагуется не более одного раза.
type StruggleEntry struct {
	// ModuleID - модуль, в котором обнаружено затруднение.
	ModuleID course.ModuleID

	// Reason - причины, через запятую ("Multiple assessment attempts, Low assessment scores").
	Reason string

	// DetectedAt - когда флаг был выставлен впервые. Не переписывается при ре-синке.
	DetectedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE PROGRESS AGGREGATE
// Одна запись на пару (учащийся, курс). Чистая производная от набора записей
// прогресса по модулям плюс append-only списки достижений и затруднений.
// Единственный писатель - SyncOrchestrator; никто другой эту запись не мутирует.
// ══════════════════════════════════════════════════════════════════════════════

// CourseProgressAggregate - сводная запись прогресса по курсу.
type CourseProgressAggregate struct {
	// ID - внутренний уникальный идентификатор записи.
	ID string

	// UserID - идентификатор учащегося.
	UserID course.UserID

	// CourseID - идентификатор курса.
	CourseID course.CourseID

	// TotalModules - объявленное количество модулей курса.
	TotalModules int

	// CompletedModules - количество завершённых модулей.
	CompletedModules int

	// CompletionPercentage - округлённый процент завершения курса.
	CompletionPercentage int

	// AverageModuleScore - средний лучший балл по модулям с оценкой, nil если оценок нет.
	AverageModuleScore *float64

	// TotalTimeSpent - суммарное время по всем модулям в минутах.
	TotalTimeSpent Minutes

	// CurrentModuleID - указатель на текущий модуль. Пустое значение до первого прогресса.
	CurrentModuleID course.ModuleID

	// IsCompleted - флаг завершения курса. Переход только false -> true.
	IsCompleted bool

	// CompletionDate - время завершения курса. Выставляется ровно один раз.
	CompletionDate *time.Time

	// StrugglingModules - текущий набор флагов затруднений.
	StrugglingModules []StruggleEntry

	// Achievements - упорядоченный append-only список достижений.
	Achievements []Achievement

	// CertificateIssued - выписан ли сертификат.
	CertificateIssued bool

	// CertificateID - идентификатор сертификата, пустой до выдачи.
	CertificateID string

	// LastSyncedAt - время последней синхронизации.
	LastSyncedAt time.Time

	// Version - счётчик версий для оптимистичной блокировки в хранилище.
	Version int64

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// ErrCourseAlreadyCompleted - курс уже завершён; переход one-way.
var ErrCourseAlreadyCompleted = errors.New("course already completed")

// NewCourseProgressAggregate создаёт пустую сводную запись.
// Вызывается лениво при первом синке пары (учащийся, курс) - это и есть запись на курс.
func NewCourseProgressAggregate(id string, userID course.UserID, courseID course.CourseID, totalModules int) (*CourseProgressAggregate, error) {
	if id == "" {
		return nil, errors.New("aggregate id is required")
	}
	if !userID.IsValid() {
		return nil, errors.New("invalid user id")
	}
	if !courseID.IsValid() {
		return nil, errors.New("invalid course id")
	}
	if totalModules < 0 {
		return nil, errors.New("total modules cannot be negative")
	}

	now := time.Now().UTC()

	return &CourseProgressAggregate{
		ID:                id,
		UserID:            userID,
		CourseID:          courseID,
		TotalModules:      totalModules,
		StrugglingModules: make([]StruggleEntry, 0),
		Achievements:      make([]Achievement, 0),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// HasAchievement проверяет наличие достижения указанного типа.
func (a *CourseProgressAggregate) HasAchievement(t AchievementType) bool {
	for _, ach := range a.Achievements {
		if ach.Type == t {
			return true
		}
	}
	return false
}

// AppendAchievement добавляет достижение, если его ещё нет.
// Возвращает true, если достижение было добавлено.
func (a *CourseProgressAggregate) AppendAchievement(ach Achievement) bool {
	if a.HasAchievement(ach.Type) {
		return false
	}
	a.Achievements = append(a.Achievements, ach)
	return true
}

// FlaggedModule возвращает флаг затруднения по модулю, если он есть.
func (a *CourseProgressAggregate) FlaggedModule(moduleID course.ModuleID) (StruggleEntry, bool) {
	for _, s := range a.StrugglingModules {
		if s.ModuleID == moduleID {
			return s, true
		}
	}
	return StruggleEntry{}, false
}

// MarkCompleted выполняет one-way переход в завершённое состояние.
// CompletionDate выставляется ровно один раз; повторный вызов возвращает ошибку.
func (a *CourseProgressAggregate) MarkCompleted(at time.Time) error {
	if a.IsCompleted {
		return ErrCourseAlreadyCompleted
	}
	a.IsCompleted = true
	completedAt := at.UTC()
	a.CompletionDate = &completedAt
	return nil
}

// SyncedWith обновляет время последней синхронизации.
func (a *CourseProgressAggregate) SyncedWith(syncTime time.Time) {
	a.LastSyncedAt = syncTime
	a.UpdatedAt = time.Now().UTC()
}

// Clone создаёт глубокую копию сводной записи.
func (a *CourseProgressAggregate) Clone() *CourseProgressAggregate {
	if a == nil {
		return nil
	}

	clone := *a
	if a.AverageModuleScore != nil {
		s := *a.AverageModuleScore
		clone.AverageModuleScore = &s
	}
	if a.CompletionDate != nil {
		t := *a.CompletionDate
		clone.CompletionDate = &t
	}
	clone.StrugglingModules = make([]StruggleEntry, len(a.StrugglingModules))
	copy(clone.StrugglingModules, a.StrugglingModules)
	clone.Achievements = make([]Achievement, len(a.Achievements))
	copy(clone.Achievements, a.Achievements)
	return &clone
}
