package sync

import (
	"strings"
	"time"

	"github.com/coursehub/progress-engine/internal/domain/course"
	"github.com/coursehub/progress-engine/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// STRUGGLE DETECTOR
// Scans module progress records and flags modules matching struggle
// heuristics. Flags are sticky: a previously flagged module stays in the set
// until the learner completes it with a score of at least the resolve
// threshold, even across syncs that no longer trip any predicate.
// ══════════════════════════════════════════════════════════════════════════════

// Struggle reason strings. Multiple reasons for the same module are joined
// with ", " instead of producing duplicate entries.
const (
	ReasonMultipleAttempts = "Multiple assessment attempts"
	ReasonLowScores        = "Low assessment scores"
	ReasonExtendedTime     = "Extended time spent"
	ReasonLongDuration     = "Long duration without completion"
)

// StruggleConfig contains the detection thresholds.
type StruggleConfig struct {
	// MaxAttempts is the attempt count above which a module is flagged.
	MaxAttempts int

	// LowScoreThreshold flags modules with a best score strictly below it.
	LowScoreThreshold float64

	// TimeMultiplier flags modules where time spent exceeds the module's
	// declared estimated duration times this factor.
	TimeMultiplier float64

	// StaleAfter flags in-progress modules started longer than this ago.
	StaleAfter time.Duration

	// ResolveScore is the minimum score required, together with completion,
	// to clear an existing flag.
	ResolveScore float64
}

// DefaultStruggleConfig returns the default thresholds.
func DefaultStruggleConfig() StruggleConfig {
	return StruggleConfig{
		MaxAttempts:       3,
		LowScoreThreshold: 60,
		TimeMultiplier:    2.0,
		StaleAfter:        7 * 24 * time.Hour,
		ResolveScore:      70,
	}
}

// StruggleDetector computes the updated struggling-modules set.
type StruggleDetector struct {
	config StruggleConfig
}

// NewStruggleDetector creates a detector with the given thresholds.
func NewStruggleDetector(config StruggleConfig) *StruggleDetector {
	if config.MaxAttempts == 0 && config.LowScoreThreshold == 0 {
		config = DefaultStruggleConfig()
	}
	return &StruggleDetector{config: config}
}

// Detect returns the updated set: the union of newly detected struggles and
// previously flagged entries, minus those that have since resolved.
// Entries are compared by module ID; detection is idempotent.
func (d *StruggleDetector) Detect(
	def *course.CourseDefinition,
	records []*progress.ModuleProgressRecord,
	previous []progress.StruggleEntry,
	now time.Time,
) []progress.StruggleEntry {
	byModule := make(map[course.ModuleID]*progress.ModuleProgressRecord, len(records))
	for _, r := range records {
		byModule[r.ModuleID] = r
	}

	updated := make([]progress.StruggleEntry, 0, len(previous))

	// Carry forward unresolved flags. DetectedAt is preserved; the reason
	// string may grow when a new predicate trips on a later sync.
	for _, entry := range previous {
		record, ok := byModule[entry.ModuleID]
		if ok && d.isResolved(record) {
			continue
		}
		if ok {
			entry.Reason = mergeReasons(entry.Reason, d.reasons(def, record, now))
		}
		updated = append(updated, entry)
	}

	// Flag newly struggling modules. Already flagged modules are not re-added.
	flagged := make(map[course.ModuleID]bool, len(updated))
	for _, entry := range updated {
		flagged[entry.ModuleID] = true
	}

	for _, r := range records {
		if flagged[r.ModuleID] || d.isResolved(r) {
			continue
		}
		reasons := d.reasons(def, r, now)
		if len(reasons) == 0 {
			continue
		}
		updated = append(updated, progress.StruggleEntry{
			ModuleID:   r.ModuleID,
			Reason:     strings.Join(reasons, ", "),
			DetectedAt: now,
		})
	}

	return updated
}

// reasons evaluates every predicate against one record.
func (d *StruggleDetector) reasons(def *course.CourseDefinition, r *progress.ModuleProgressRecord, now time.Time) []string {
	var reasons []string

	if r.TotalAttempts > d.config.MaxAttempts {
		reasons = append(reasons, ReasonMultipleAttempts)
	}

	if r.BestScorePercentage != nil && float64(*r.BestScorePercentage) < d.config.LowScoreThreshold {
		reasons = append(reasons, ReasonLowScores)
	}

	if def != nil {
		if mod, ok := def.Module(r.ModuleID); ok && mod.EstimatedDuration > 0 {
			limit := float64(mod.EstimatedDuration) * d.config.TimeMultiplier
			if float64(r.TotalTimeSpent) > limit {
				reasons = append(reasons, ReasonExtendedTime)
			}
		}
	}

	if r.CompletionStatus == progress.StatusInProgress && r.StartedAt != nil {
		if now.Sub(*r.StartedAt) > d.config.StaleAfter {
			reasons = append(reasons, ReasonLongDuration)
		}
	}

	return reasons
}

// isResolved reports whether the record clears an existing flag:
// completed with a score of at least the resolve threshold.
func (d *StruggleDetector) isResolved(r *progress.ModuleProgressRecord) bool {
	if !r.CompletionStatus.IsCompleted() {
		return false
	}
	return r.BestScorePercentage != nil && float64(*r.BestScorePercentage) >= d.config.ResolveScore
}

// mergeReasons appends reasons that are not already present in the existing
// comma-joined string, keeping the original order stable.
func mergeReasons(existing string, found []string) string {
	if len(found) == 0 {
		return existing
	}

	present := make(map[string]bool)
	for _, r := range strings.Split(existing, ", ") {
		present[r] = true
	}

	merged := existing
	for _, r := range found {
		if !present[r] {
			merged = merged + ", " + r
			present[r] = true
		}
	}
	return merged
}
