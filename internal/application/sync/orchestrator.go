package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coursehub/progress-engine/internal/domain/course"
	"github.com/coursehub/progress-engine/internal/domain/progress"
	"github.com/coursehub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC ORCHESTRATOR
// Entry point of the synchronization engine. Sequences
// Aggregator -> StruggleDetector -> AchievementEngine and persists the fully
// derived aggregate as one write. Calling SyncOne again with no new events is
// a pure no-op beyond lastSyncedAt - that idempotence contract is the reason
// this subsystem exists.
// ══════════════════════════════════════════════════════════════════════════════

// Locker serializes syncs for one (user, course) pair. Invocations for
// different pairs are independent and may run concurrently.
type Locker interface {
	// Lock acquires the lock for the key and returns its release function.
	Lock(ctx context.Context, key string) (func(), error)
}

// Notifier receives domain events produced by a sync. Delivery transport is
// outside this system; a failed notification never fails the sync.
type Notifier interface {
	Notify(ctx context.Context, event shared.Event) error
}

// CompletionData carries the deltas applied by a module completion event.
type CompletionData struct {
	// TimeSpent is additional time in minutes to add to the record.
	TimeSpent *progress.Minutes

	// Score is an assessment score to record, if the event carried one.
	Score *progress.Percentage
}

// UserSyncResult is one entry of a bulk sync report.
type UserSyncResult struct {
	UserID  course.UserID
	Success bool
	Err     error
}

// SyncReport is the summary projection of an aggregate.
type SyncReport struct {
	UserID               course.UserID
	CourseID             course.CourseID
	TotalModules         int
	CompletedModules     int
	InProgressModules    int
	NotStartedModules    int
	CompletionPercentage int
	AverageModuleScore   *float64
	IsCompleted          bool
	CertificateIssued    bool
	StrugglingModules    []progress.StruggleEntry
	Achievements         []progress.Achievement
	LastSyncedAt         time.Time
}

// Config contains orchestrator settings.
type Config struct {
	// BulkConcurrency bounds the worker pool used by SyncAllUsersInCourse.
	BulkConcurrency int

	// CacheTTL is how long a synced aggregate stays in the read cache.
	CacheTTL time.Duration
}

// DefaultConfig returns default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		BulkConcurrency: 5,
		CacheTTL:        5 * time.Minute,
	}
}

// Orchestrator owns all writes to the course progress aggregate.
type Orchestrator struct {
	moduleStore    progress.ModuleProgressStore
	aggregateStore progress.CourseProgressStore
	definitions    course.DefinitionProvider
	enrollments    course.EnrollmentProvider

	aggregator   *Aggregator
	struggles    *StruggleDetector
	achievements *AchievementEngine

	locker   Locker
	notifier Notifier
	cache    progress.AggregateCache

	logger *slog.Logger
	config Config

	// now is swappable for tests.
	now func() time.Time
}

// NewOrchestrator creates the orchestrator. Notifier and cache are optional.
func NewOrchestrator(
	moduleStore progress.ModuleProgressStore,
	aggregateStore progress.CourseProgressStore,
	definitions course.DefinitionProvider,
	enrollments course.EnrollmentProvider,
	locker Locker,
	notifier Notifier,
	cache progress.AggregateCache,
	logger *slog.Logger,
	config Config,
) *Orchestrator {
	if config.BulkConcurrency <= 0 {
		config.BulkConcurrency = DefaultConfig().BulkConcurrency
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		moduleStore:    moduleStore,
		aggregateStore: aggregateStore,
		definitions:    definitions,
		enrollments:    enrollments,
		aggregator:     NewAggregator(),
		struggles:      NewStruggleDetector(DefaultStruggleConfig()),
		achievements:   NewAchievementEngine(DefaultAchievementConfig()),
		locker:         locker,
		notifier:       notifier,
		cache:          cache,
		logger:         logger,
		config:         config,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithStruggleConfig overrides the struggle detection thresholds.
func (o *Orchestrator) WithStruggleConfig(cfg StruggleConfig) *Orchestrator {
	o.struggles = NewStruggleDetector(cfg)
	return o
}

// WithAchievementConfig overrides the achievement thresholds.
func (o *Orchestrator) WithAchievementConfig(cfg AchievementConfig) *Orchestrator {
	o.achievements = NewAchievementEngine(cfg)
	return o
}

// ─────────────────────────────────────────────────────────────────────────────
// SyncOne
// ─────────────────────────────────────────────────────────────────────────────

// SyncOne reconciles the module records of one (user, course) pair into the
// course aggregate, creating the aggregate lazily on first call.
// The aggregate is persisted only after all three derivation stages ran;
// a failed stage leaves the previously stored aggregate untouched.
func (o *Orchestrator) SyncOne(ctx context.Context, userID course.UserID, courseID course.CourseID) (*progress.CourseProgressAggregate, error) {
	unlock, err := o.locker.Lock(ctx, syncKey(userID, courseID))
	if err != nil {
		return nil, shared.WrapError("sync", "SyncOne", shared.ErrTimeout, "failed to acquire sync lock", err)
	}
	defer unlock()

	return o.syncLocked(ctx, userID, courseID)
}

// syncLocked runs the derivation pipeline under the pair lock.
func (o *Orchestrator) syncLocked(ctx context.Context, userID course.UserID, courseID course.CourseID) (*progress.CourseProgressAggregate, error) {
	log := o.logger.With("user_id", string(userID), "course_id", string(courseID))

	def, err := o.definitions.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("sync one: stage=load_definition user=%s course=%s: %w", userID, courseID, err)
	}

	records, err := o.moduleStore.Find(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("sync one: stage=load_records user=%s course=%s: %w", userID, courseID, err)
	}

	aggregate, created, err := o.loadOrCreateAggregate(ctx, userID, courseID, def.ModuleCount())
	if err != nil {
		return nil, fmt.Errorf("sync one: stage=load_aggregate user=%s course=%s: %w", userID, courseID, err)
	}

	// Stage 1: pure derivation from the record set.
	derived, err := o.aggregator.Aggregate(def, records)
	if err != nil {
		return nil, fmt.Errorf("sync one: stage=aggregate user=%s course=%s: %w", userID, courseID, err)
	}

	// All stages from here on mutate a working copy; the stored aggregate
	// stays intact until the final write.
	working := aggregate.Clone()
	o.aggregator.Apply(working, derived, def.ModuleCount())

	now := o.now()

	// Stage 2: struggle detection depends on the fresh completion numbers.
	previousFlags := working.StrugglingModules
	working.StrugglingModules = o.struggles.Detect(def, records, previousFlags, now)
	newFlags := diffStruggles(previousFlags, working.StrugglingModules)
	resolvedFlags := diffStruggles(working.StrugglingModules, previousFlags)

	// Stage 3: achievements and the completion transition.
	wasCompleted := working.IsCompleted
	unlocked := o.achievements.Apply(working, progress.Minutes(def.EstimatedCompletionTime), now)

	working.SyncedWith(now)

	if err := o.persist(ctx, working, created); err != nil {
		return nil, fmt.Errorf("sync one: stage=persist user=%s course=%s: %w", userID, courseID, err)
	}

	o.invalidateCache(ctx, userID, courseID)
	o.publishEvents(ctx, working, wasCompleted, unlocked, newFlags, resolvedFlags)

	log.Info("progress synced",
		"completed_modules", working.CompletedModules,
		"completion_percentage", working.CompletionPercentage,
		"new_achievements", len(unlocked),
		"struggling_modules", len(working.StrugglingModules),
	)

	return working, nil
}

// loadOrCreateAggregate loads the stored aggregate or lazily creates an
// empty one - the first sync for a pair is what establishes the enrollment
// record in this store.
func (o *Orchestrator) loadOrCreateAggregate(
	ctx context.Context,
	userID course.UserID,
	courseID course.CourseID,
	totalModules int,
) (*progress.CourseProgressAggregate, bool, error) {
	aggregate, err := o.aggregateStore.Get(ctx, userID, courseID)
	if err == nil {
		return aggregate, false, nil
	}
	if !shared.IsNotFound(err) {
		return nil, false, err
	}

	aggregate, err = progress.NewCourseProgressAggregate(uuid.NewString(), userID, courseID, totalModules)
	if err != nil {
		return nil, false, err
	}
	return aggregate, true, nil
}

// persist writes the fully derived aggregate, never a partial one.
func (o *Orchestrator) persist(ctx context.Context, aggregate *progress.CourseProgressAggregate, created bool) error {
	if created {
		return o.aggregateStore.Create(ctx, aggregate)
	}
	return o.aggregateStore.Update(ctx, aggregate)
}

// ─────────────────────────────────────────────────────────────────────────────
// SyncModuleCompletion
// ─────────────────────────────────────────────────────────────────────────────

// SyncModuleCompletion applies the completion data to the module record,
// marks it completed, then delegates to SyncOne.
func (o *Orchestrator) SyncModuleCompletion(
	ctx context.Context,
	userID course.UserID,
	courseID course.CourseID,
	moduleID course.ModuleID,
	data CompletionData,
) (*progress.CourseProgressAggregate, error) {
	def, err := o.definitions.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("sync module completion: stage=load_definition user=%s course=%s: %w", userID, courseID, err)
	}
	if !def.HasModule(moduleID) {
		return nil, shared.WrapError(
			"sync", "SyncModuleCompletion", shared.ErrDataIntegrity,
			fmt.Sprintf("module %q does not belong to course %q", moduleID, courseID),
			shared.ErrOrphanedRecord,
		)
	}

	record, err := o.loadOrCreateRecord(ctx, userID, courseID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("sync module completion: stage=load_record user=%s course=%s module=%s: %w", userID, courseID, moduleID, err)
	}

	if data.TimeSpent != nil {
		if err := record.RecordContentProgress(record.CompletionPercentage, *data.TimeSpent); err != nil {
			return nil, fmt.Errorf("sync module completion: stage=apply_time user=%s module=%s: %w", userID, moduleID, err)
		}
	}
	if data.Score != nil {
		if err := record.RecordScore(*data.Score); err != nil {
			return nil, fmt.Errorf("sync module completion: stage=apply_score user=%s module=%s: %w", userID, moduleID, err)
		}
	}
	record.MarkCompleted()

	if err := o.moduleStore.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("sync module completion: stage=save_record user=%s module=%s: %w", userID, moduleID, err)
	}

	if o.notifier != nil {
		event := shared.NewModuleCompletedEvent(string(userID), string(courseID), string(moduleID))
		if err := o.notifier.Notify(ctx, event); err != nil {
			o.logger.Warn("notification failed",
				"event_type", string(event.EventType()),
				"user_id", string(userID),
				"module_id", string(moduleID),
				"error", err,
			)
		}
	}

	return o.SyncOne(ctx, userID, courseID)
}

// loadOrCreateRecord loads the module record or creates one for a module
// completed without prior tracked progress.
func (o *Orchestrator) loadOrCreateRecord(
	ctx context.Context,
	userID course.UserID,
	courseID course.CourseID,
	moduleID course.ModuleID,
) (*progress.ModuleProgressRecord, error) {
	record, err := o.moduleStore.Get(ctx, userID, courseID, moduleID)
	if err == nil {
		return record, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}

	record, err = progress.NewModuleProgressRecord(progress.NewRecordParams{
		ID:       uuid.NewString(),
		UserID:   userID,
		CourseID: courseID,
		ModuleID: moduleID,
	})
	if err != nil {
		return nil, err
	}
	if err := o.moduleStore.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SyncAllUsersInCourse
// ─────────────────────────────────────────────────────────────────────────────

// SyncAllUsersInCourse re-syncs every enrolled user of a course with a
// bounded worker pool. One user's failure never aborts the others; the
// caller receives a per-user report.
func (o *Orchestrator) SyncAllUsersInCourse(ctx context.Context, courseID course.CourseID) ([]UserSyncResult, error) {
	users, err := o.enrollments.ListUsers(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("sync all: stage=list_users course=%s: %w", courseID, err)
	}

	sem := make(chan struct{}, o.config.BulkConcurrency)
	results := make(chan UserSyncResult, len(users))

	for _, userID := range users {
		sem <- struct{}{}

		go func(uid course.UserID) {
			defer func() { <-sem }()

			_, syncErr := o.SyncOne(ctx, uid, courseID)
			results <- UserSyncResult{UserID: uid, Success: syncErr == nil, Err: syncErr}
		}(userID)
	}

	report := make([]UserSyncResult, 0, len(users))
	failed := 0
	for range users {
		r := <-results
		if !r.Success {
			failed++
			o.logger.Warn("bulk sync: user failed",
				"user_id", string(r.UserID),
				"course_id", string(courseID),
				"error", r.Err,
			)
		}
		report = append(report, r)
	}

	o.logger.Info("bulk sync finished",
		"course_id", string(courseID),
		"total_users", len(users),
		"failed", failed,
	)

	return report, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// GetSyncReport
// ─────────────────────────────────────────────────────────────────────────────

// GetSyncReport returns the summary projection of an aggregate. Reads go
// through the cache when one is configured; the record counts always come
// from the module store so not-started modules are reported correctly.
func (o *Orchestrator) GetSyncReport(ctx context.Context, userID course.UserID, courseID course.CourseID) (*SyncReport, error) {
	aggregate, err := o.loadAggregateCached(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("sync report: user=%s course=%s: %w", userID, courseID, err)
	}

	records, err := o.moduleStore.Find(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("sync report: stage=load_records user=%s course=%s: %w", userID, courseID, err)
	}

	report := &SyncReport{
		UserID:               aggregate.UserID,
		CourseID:             aggregate.CourseID,
		TotalModules:         aggregate.TotalModules,
		CompletedModules:     aggregate.CompletedModules,
		CompletionPercentage: aggregate.CompletionPercentage,
		AverageModuleScore:   aggregate.AverageModuleScore,
		IsCompleted:          aggregate.IsCompleted,
		CertificateIssued:    aggregate.CertificateIssued,
		StrugglingModules:    aggregate.StrugglingModules,
		Achievements:         aggregate.Achievements,
		LastSyncedAt:         aggregate.LastSyncedAt,
	}

	for _, r := range records {
		switch r.CompletionStatus {
		case progress.StatusInProgress:
			report.InProgressModules++
		case progress.StatusNotStarted:
			report.NotStartedModules++
		}
	}
	// Modules with no record at all have not been started either.
	untracked := aggregate.TotalModules - len(records)
	if untracked > 0 {
		report.NotStartedModules += untracked
	}

	return report, nil
}

func (o *Orchestrator) loadAggregateCached(ctx context.Context, userID course.UserID, courseID course.CourseID) (*progress.CourseProgressAggregate, error) {
	if o.cache != nil {
		if cached, err := o.cache.Get(ctx, userID, courseID); err == nil && cached != nil {
			return cached, nil
		}
	}

	aggregate, err := o.aggregateStore.Get(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		_ = o.cache.Set(ctx, aggregate, o.config.CacheTTL)
	}
	return aggregate, nil
}

func (o *Orchestrator) invalidateCache(ctx context.Context, userID course.UserID, courseID course.CourseID) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Invalidate(ctx, userID, courseID); err != nil {
		o.logger.Warn("cache invalidation failed",
			"user_id", string(userID),
			"course_id", string(courseID),
			"error", err,
		)
	}
}

// publishEvents forwards what this sync changed to the notification
// collaborator. Notification failures are logged, never surfaced.
func (o *Orchestrator) publishEvents(
	ctx context.Context,
	aggregate *progress.CourseProgressAggregate,
	wasCompleted bool,
	unlocked []progress.Achievement,
	newFlags []progress.StruggleEntry,
	resolvedFlags []progress.StruggleEntry,
) {
	if o.notifier == nil {
		return
	}

	userID := string(aggregate.UserID)
	courseID := string(aggregate.CourseID)

	notify := func(event shared.Event) {
		if err := o.notifier.Notify(ctx, event); err != nil {
			o.logger.Warn("notification failed",
				"event_type", string(event.EventType()),
				"user_id", userID,
				"course_id", courseID,
				"error", err,
			)
		}
	}

	if !wasCompleted && aggregate.IsCompleted {
		avg := 0.0
		if aggregate.AverageModuleScore != nil {
			avg = *aggregate.AverageModuleScore
		}
		notify(shared.NewCourseCompletedEvent(userID, courseID, avg, *aggregate.CompletionDate))

		if aggregate.CertificateIssued {
			notify(shared.NewCertificateIssuedEvent(userID, courseID, aggregate.CertificateID))
		}
	}

	for _, ach := range unlocked {
		notify(shared.NewAchievementUnlockedEvent(userID, courseID, string(ach.Type), ach.Description, ach.UnlockedAt))
	}

	for _, flag := range newFlags {
		notify(shared.NewLearnerStrugglingEvent(userID, courseID, string(flag.ModuleID), flag.Reason))
	}

	for _, flag := range resolvedFlags {
		notify(shared.NewStruggleResolvedEvent(userID, courseID, string(flag.ModuleID), flag.DetectedAt))
	}

	notify(shared.NewSyncCompletedEvent(userID, courseID, aggregate.CompletionPercentage, len(unlocked)))
}

// diffStruggles returns entries present in updated but not in previous.
func diffStruggles(previous, updated []progress.StruggleEntry) []progress.StruggleEntry {
	known := make(map[course.ModuleID]bool, len(previous))
	for _, e := range previous {
		known[e.ModuleID] = true
	}

	var fresh []progress.StruggleEntry
	for _, e := range updated {
		if !known[e.ModuleID] {
			fresh = append(fresh, e)
		}
	}
	return fresh
}

// syncKey builds the lock key for a (user, course) pair.
func syncKey(userID course.UserID, courseID course.CourseID) string {
	return string(userID) + ":" + string(courseID)
}
