// Package shared contains common domain types, errors, and events
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened during progress synchronization. Events are handed to the
// notification collaborator; delivery transport is outside this system.
const (
	// Module events
	EventModuleCompleted EventType = "module.completed"

	// Course events
	EventCourseCompleted   EventType = "course.completed"
	EventCertificateIssued EventType = "course.certificate_issued"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Struggle events
	EventLearnerStruggling EventType = "struggle.detected"
	EventStruggleResolved  EventType = "struggle.resolved"

	// System events
	EventSyncCompleted EventType = "system.sync_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Module Events
// ═══════════════════════════════════════════════════════════════════════════

// ModuleCompletedEvent is emitted when a completion event is applied to a
// module record, before the course aggregate is re-derived.
type ModuleCompletedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
	ModuleID string `json:"module_id"`
}

// Payload implements Event interface.
func (e ModuleCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"course_id": e.CourseID,
		"module_id": e.ModuleID,
	}
}

// NewModuleCompletedEvent creates a new ModuleCompletedEvent.
func NewModuleCompletedEvent(userID, courseID, moduleID string) ModuleCompletedEvent {
	return ModuleCompletedEvent{
		BaseEvent: NewBaseEvent(EventModuleCompleted, userID+":"+courseID),
		UserID:    userID,
		CourseID:  courseID,
		ModuleID:  moduleID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Course Events
// ═══════════════════════════════════════════════════════════════════════════

// CourseCompletedEvent is emitted on the one-way isCompleted transition.
type CourseCompletedEvent struct {
	BaseEvent
	UserID       string    `json:"user_id"`
	CourseID     string    `json:"course_id"`
	AverageScore float64   `json:"average_score"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Payload implements Event interface.
func (e CourseCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"course_id":     e.CourseID,
		"average_score": e.AverageScore,
		"completed_at":  e.CompletedAt,
	}
}

// NewCourseCompletedEvent creates a new CourseCompletedEvent.
func NewCourseCompletedEvent(userID, courseID string, averageScore float64, completedAt time.Time) CourseCompletedEvent {
	return CourseCompletedEvent{
		BaseEvent:    NewBaseEvent(EventCourseCompleted, userID+":"+courseID),
		UserID:       userID,
		CourseID:     courseID,
		AverageScore: averageScore,
		CompletedAt:  completedAt,
	}
}

// CertificateIssuedEvent is emitted when a certificate identifier is generated.
type CertificateIssuedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	CourseID      string `json:"course_id"`
	CertificateID string `json:"certificate_id"`
}

// Payload implements Event interface.
func (e CertificateIssuedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"course_id":      e.CourseID,
		"certificate_id": e.CertificateID,
	}
}

// NewCertificateIssuedEvent creates a new CertificateIssuedEvent.
func NewCertificateIssuedEvent(userID, courseID, certificateID string) CertificateIssuedEvent {
	return CertificateIssuedEvent{
		BaseEvent:     NewBaseEvent(EventCertificateIssued, userID+":"+courseID),
		UserID:        userID,
		CourseID:      courseID,
		CertificateID: certificateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted once per achievement type per enrollment.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID          string    `json:"user_id"`
	CourseID        string    `json:"course_id"`
	AchievementType string    `json:"achievement_type"`
	Description     string    `json:"description"`
	UnlockedAt      time.Time `json:"unlocked_at"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"course_id":        e.CourseID,
		"achievement_type": e.AchievementType,
		"description":      e.Description,
		"unlocked_at":      e.UnlockedAt,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, courseID, achievementType, description string, unlockedAt time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementUnlocked, userID+":"+courseID),
		UserID:          userID,
		CourseID:        courseID,
		AchievementType: achievementType,
		Description:     description,
		UnlockedAt:      unlockedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Struggle Events
// ═══════════════════════════════════════════════════════════════════════════

// LearnerStrugglingEvent is emitted when a module is newly flagged.
type LearnerStrugglingEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
	ModuleID string `json:"module_id"`
	Reason   string `json:"reason"`
}

// Payload implements Event interface.
func (e LearnerStrugglingEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"course_id": e.CourseID,
		"module_id": e.ModuleID,
		"reason":    e.Reason,
	}
}

// NewLearnerStrugglingEvent creates a new LearnerStrugglingEvent.
func NewLearnerStrugglingEvent(userID, courseID, moduleID, reason string) LearnerStrugglingEvent {
	return LearnerStrugglingEvent{
		BaseEvent: NewBaseEvent(EventLearnerStruggling, userID+":"+courseID),
		UserID:    userID,
		CourseID:  courseID,
		ModuleID:  moduleID,
		Reason:    reason,
	}
}

// StruggleResolvedEvent is emitted when a previously flagged module leaves
// the struggling set.
type StruggleResolvedEvent struct {
	BaseEvent
	UserID     string    `json:"user_id"`
	CourseID   string    `json:"course_id"`
	ModuleID   string    `json:"module_id"`
	DetectedAt time.Time `json:"detected_at"`
}

// Payload implements Event interface.
func (e StruggleResolvedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"course_id":   e.CourseID,
		"module_id":   e.ModuleID,
		"detected_at": e.DetectedAt,
	}
}

// NewStruggleResolvedEvent creates a new StruggleResolvedEvent.
func NewStruggleResolvedEvent(userID, courseID, moduleID string, detectedAt time.Time) StruggleResolvedEvent {
	return StruggleResolvedEvent{
		BaseEvent:  NewBaseEvent(EventStruggleResolved, userID+":"+courseID),
		UserID:     userID,
		CourseID:   courseID,
		ModuleID:   moduleID,
		DetectedAt: detectedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// SyncCompletedEvent is emitted after an aggregate is persisted.
type SyncCompletedEvent struct {
	BaseEvent
	UserID               string `json:"user_id"`
	CourseID             string `json:"course_id"`
	CompletionPercentage int    `json:"completion_percentage"`
	NewAchievements      int    `json:"new_achievements"`
}

// Payload implements Event interface.
func (e SyncCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":               e.UserID,
		"course_id":             e.CourseID,
		"completion_percentage": e.CompletionPercentage,
		"new_achievements":      e.NewAchievements,
	}
}

// NewSyncCompletedEvent creates a new SyncCompletedEvent.
func NewSyncCompletedEvent(userID, courseID string, completionPercentage, newAchievements int) SyncCompletedEvent {
	return SyncCompletedEvent{
		BaseEvent:            NewBaseEvent(EventSyncCompleted, userID+":"+courseID),
		UserID:               userID,
		CourseID:             courseID,
		CompletionPercentage: completionPercentage,
		NewAchievements:      newAchievements,
	}
}
