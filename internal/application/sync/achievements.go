package sync

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/coursehub/progress-engine/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT ENGINE
// Evaluates unlock conditions against the freshly aggregated state and
// appends newly earned achievement records. Achievement type is unique per
// course enrollment: every condition is guarded by a "not already present"
// check, which is what makes re-running a sync safe.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementConfig contains the unlock thresholds.
type AchievementConfig struct {
	// PerfectScore is the minimum average score for perfect-course.
	PerfectScore float64

	// SpeedFactor caps total time at this fraction of the estimated
	// completion time for speed-learner.
	SpeedFactor float64

	// WarriorMinutes is the accumulated study time for study-warrior.
	WarriorMinutes progress.Minutes

	// CertificateScore is the minimum average score for certificate issuance.
	CertificateScore float64
}

// DefaultAchievementConfig returns the default thresholds.
func DefaultAchievementConfig() AchievementConfig {
	return AchievementConfig{
		PerfectScore:     90,
		SpeedFactor:      0.75,
		WarriorMinutes:   600,
		CertificateScore: 70,
	}
}

// AchievementEngine derives achievements and the course completion
// transition from the aggregate.
type AchievementEngine struct {
	config AchievementConfig
}

// NewAchievementEngine creates an engine with the given thresholds.
func NewAchievementEngine(config AchievementConfig) *AchievementEngine {
	if config.PerfectScore == 0 {
		config = DefaultAchievementConfig()
	}
	return &AchievementEngine{config: config}
}

// Apply evaluates all unlock conditions against the aggregate and mutates it
// in place: appends new achievements, performs the one-way isCompleted
// transition, sets the completion date exactly once, and issues the
// certificate when earned. It returns the achievements appended by this call
// so the orchestrator can forward them to the notification collaborator.
// No external side effects happen here.
func (e *AchievementEngine) Apply(
	aggregate *progress.CourseProgressAggregate,
	estimatedCompletionTime progress.Minutes,
	now time.Time,
) []progress.Achievement {
	var unlocked []progress.Achievement

	unlock := func(t progress.AchievementType) {
		def, _ := progress.GetAchievementDefinition(t)
		ach := progress.Achievement{
			Type:        t,
			UnlockedAt:  now.UTC(),
			Description: def.Description,
		}
		if aggregate.AppendAchievement(ach) {
			unlocked = append(unlocked, ach)
		}
	}

	// study-warrior accumulates independently of completion.
	if aggregate.TotalTimeSpent >= e.config.WarriorMinutes {
		unlock(progress.AchievementStudyWarrior)
	}

	allDone := aggregate.TotalModules > 0 && aggregate.CompletedModules == aggregate.TotalModules
	if !allDone || aggregate.IsCompleted {
		// Either not finished yet, or the transition already happened on an
		// earlier sync. perfect-course and speed-learner are evaluated only
		// at the moment of transition, so they cannot be granted here.
		return unlocked
	}

	// The false -> true transition happens exactly once.
	if err := aggregate.MarkCompleted(now); err != nil {
		return unlocked
	}

	unlock(progress.AchievementCourseCompletion)

	if aggregate.AverageModuleScore != nil && *aggregate.AverageModuleScore >= e.config.PerfectScore {
		unlock(progress.AchievementPerfectCourse)
	}

	if estimatedCompletionTime > 0 {
		limit := float64(estimatedCompletionTime) * e.config.SpeedFactor
		if float64(aggregate.TotalTimeSpent) < limit {
			unlock(progress.AchievementSpeedLearner)
		}
	}

	if aggregate.AverageModuleScore != nil && *aggregate.AverageModuleScore >= e.config.CertificateScore {
		aggregate.CertificateIssued = true
		aggregate.CertificateID = generateCertificateID(aggregate, now)
	}

	return unlocked
}

// generateCertificateID produces a tamper-evident certificate identifier.
// The serial makes the identifier unique; the digest binds it to the
// enrollment and completion date so a certificate cannot be re-attributed.
func generateCertificateID(aggregate *progress.CourseProgressAggregate, issuedAt time.Time) string {
	serial := uuid.NewString()
	digest := sha3.Sum256([]byte(fmt.Sprintf(
		"%s|%s|%s|%s",
		aggregate.UserID,
		aggregate.CourseID,
		issuedAt.UTC().Format(time.RFC3339),
		serial,
	)))
	return fmt.Sprintf("CERT-%s-%s", serial[:8], hex.EncodeToString(digest[:6]))
}
