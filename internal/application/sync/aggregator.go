// Package sync contains the progress synchronization engine.
// It reconciles fine-grained per-module progress records into a
// coarse-grained per-course aggregate, derives struggle flags and
// achievements from it, and persists the result as a single write.
package sync

import (
	"fmt"
	"math"

	"github.com/coursehub/progress-engine/internal/domain/course"
	"github.com/coursehub/progress-engine/internal/domain/progress"
	"github.com/coursehub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATOR
// Computes the derived portion of the course aggregate from the full set of
// module progress records for one (user, course) pair. The declared module
// count comes from the course definition, not from the records: a module may
// exist with zero progress records.
// ══════════════════════════════════════════════════════════════════════════════

// AggregateResult holds the values derived from the record set.
type AggregateResult struct {
	// CompletedModules is the count of records in completed status.
	CompletedModules int

	// CompletionPercentage is round(completed/total*100); 0 when total is 0.
	CompletionPercentage int

	// AverageModuleScore is the mean of best scores over scored records.
	// Nil when no record carries a score.
	AverageModuleScore *float64

	// TotalTimeSpent is the sum of time spent over all records.
	TotalTimeSpent progress.Minutes

	// CurrentModuleID points at the in-progress module with the newest
	// lastAccessedAt. Empty when no module is in progress; the orchestrator
	// preserves the previous pointer in that case rather than clearing it.
	CurrentModuleID course.ModuleID
}

// Aggregator derives aggregate values from module progress records.
type Aggregator struct{}

// NewAggregator creates a new Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate computes the derived aggregate values.
// Returns a data integrity error when the declared module count is negative
// or a record references a module outside the course's module set; the
// orchestrator aborts the sync for that pair without a partial write.
func (a *Aggregator) Aggregate(def *course.CourseDefinition, records []*progress.ModuleProgressRecord) (*AggregateResult, error) {
	if def == nil {
		return nil, shared.NewDomainError("sync", "Aggregate", shared.ErrInvalidInput, "course definition is required")
	}

	totalModules := def.ModuleCount()
	if totalModules < 0 {
		return nil, shared.ErrInvalidModuleCount
	}

	result := &AggregateResult{}

	declared := make(map[course.ModuleID]bool, totalModules)
	for _, id := range def.ModuleIDs() {
		declared[id] = true
	}

	var (
		scoreSum   float64
		scoreCount int
		current    *progress.ModuleProgressRecord
	)

	for _, r := range records {
		if !declared[r.ModuleID] {
			return nil, shared.WrapError(
				"sync", "Aggregate", shared.ErrDataIntegrity,
				fmt.Sprintf("record for module %q does not belong to course %q", r.ModuleID, def.ID),
				shared.ErrOrphanedRecord,
			)
		}

		if r.CompletionStatus.IsCompleted() {
			result.CompletedModules++
		}

		result.TotalTimeSpent = result.TotalTimeSpent.Add(r.TotalTimeSpent)

		if r.BestScorePercentage != nil {
			scoreSum += float64(*r.BestScorePercentage)
			scoreCount++
		}

		if r.CompletionStatus == progress.StatusInProgress {
			if current == nil || r.LastAccessedAt.After(current.LastAccessedAt) {
				current = r
			}
		}
	}

	if totalModules > 0 {
		pct := float64(result.CompletedModules) / float64(totalModules) * 100
		result.CompletionPercentage = int(math.Round(pct))
	}

	if scoreCount > 0 {
		avg := scoreSum / float64(scoreCount)
		result.AverageModuleScore = &avg
	}

	if current != nil {
		result.CurrentModuleID = current.ModuleID
	}

	return result, nil
}

// Apply writes the derived values onto the aggregate. The current module
// pointer is only moved forward: when no module is in progress the previous
// value is preserved so repeated syncs stay observably identical.
func (a *Aggregator) Apply(aggregate *progress.CourseProgressAggregate, result *AggregateResult, totalModules int) {
	aggregate.TotalModules = totalModules
	aggregate.CompletedModules = result.CompletedModules
	aggregate.CompletionPercentage = result.CompletionPercentage
	aggregate.AverageModuleScore = result.AverageModuleScore
	aggregate.TotalTimeSpent = result.TotalTimeSpent

	if result.CurrentModuleID != "" {
		aggregate.CurrentModuleID = result.CurrentModuleID
	}
}
