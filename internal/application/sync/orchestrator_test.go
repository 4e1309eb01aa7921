package sync

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/progress-engine/internal/domain/course"
	"github.com/coursehub/progress-engine/internal/domain/progress"
	"github.com/coursehub/progress-engine/internal/domain/shared"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ─────────────────────────────────────────────────────────────────────────────

type memModuleStore struct {
	mu      sync.Mutex
	records map[string]*progress.ModuleProgressRecord
	findErr map[course.UserID]error
}

func newMemModuleStore() *memModuleStore {
	return &memModuleStore{
		records: make(map[string]*progress.ModuleProgressRecord),
		findErr: make(map[course.UserID]error),
	}
}

func recordKey(userID course.UserID, courseID course.CourseID, moduleID course.ModuleID) string {
	return string(userID) + "/" + string(courseID) + "/" + string(moduleID)
}

func (s *memModuleStore) Create(_ context.Context, r *progress.ModuleProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(r.UserID, r.CourseID, r.ModuleID)
	if _, ok := s.records[key]; ok {
		return shared.ErrAlreadyExists
	}
	s.records[key] = r.Clone()
	return nil
}

func (s *memModuleStore) Get(_ context.Context, userID course.UserID, courseID course.CourseID, moduleID course.ModuleID) (*progress.ModuleProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordKey(userID, courseID, moduleID)]
	if !ok {
		return nil, shared.ErrRecordNotFound
	}
	return r.Clone(), nil
}

func (s *memModuleStore) Update(_ context.Context, r *progress.ModuleProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(r.UserID, r.CourseID, r.ModuleID)] = r.Clone()
	return nil
}

func (s *memModuleStore) Find(_ context.Context, userID course.UserID, courseID course.CourseID) ([]*progress.ModuleProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.findErr[userID]; err != nil {
		return nil, err
	}
	var out []*progress.ModuleProgressRecord
	for _, r := range s.records {
		if r.UserID == userID && r.CourseID == courseID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out, nil
}

func (s *memModuleStore) put(r *progress.ModuleProgressRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(r.UserID, r.CourseID, r.ModuleID)] = r
}

type memAggregateStore struct {
	mu             sync.Mutex
	aggregates     map[string]*progress.CourseProgressAggregate
	writes         int
	failNextUpdate error
}

func newMemAggregateStore() *memAggregateStore {
	return &memAggregateStore{aggregates: make(map[string]*progress.CourseProgressAggregate)}
}

func aggregateKey(userID course.UserID, courseID course.CourseID) string {
	return string(userID) + "/" + string(courseID)
}

func (s *memAggregateStore) Get(_ context.Context, userID course.UserID, courseID course.CourseID) (*progress.CourseProgressAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.aggregates[aggregateKey(userID, courseID)]
	if !ok {
		return nil, shared.ErrAggregateNotFound
	}
	return a.Clone(), nil
}

func (s *memAggregateStore) Create(_ context.Context, a *progress.CourseProgressAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := aggregateKey(a.UserID, a.CourseID)
	if _, ok := s.aggregates[key]; ok {
		return shared.ErrAggregateExists
	}
	s.aggregates[key] = a.Clone()
	s.writes++
	return nil
}

// Update mirrors the postgres repository: the write only lands when the
// caller's version matches the stored one, and the version advances with it.
func (s *memAggregateStore) Update(_ context.Context, a *progress.CourseProgressAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNextUpdate != nil {
		err := s.failNextUpdate
		s.failNextUpdate = nil
		return err
	}
	key := aggregateKey(a.UserID, a.CourseID)
	stored, ok := s.aggregates[key]
	if !ok {
		return shared.ErrAggregateNotFound
	}
	if a.Version != stored.Version {
		return shared.ErrSyncConflict
	}
	clone := a.Clone()
	clone.Version++
	s.aggregates[key] = clone
	a.Version++
	s.writes++
	return nil
}

func (s *memAggregateStore) stored(userID course.UserID, courseID course.CourseID) *progress.CourseProgressAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregates[aggregateKey(userID, courseID)].Clone()
}

type memDefinitions struct {
	courses map[course.CourseID]*course.CourseDefinition
}

func (d *memDefinitions) GetCourse(_ context.Context, id course.CourseID) (*course.CourseDefinition, error) {
	def, ok := d.courses[id]
	if !ok {
		return nil, shared.ErrCourseNotFound
	}
	return def, nil
}

func (d *memDefinitions) GetModuleCount(ctx context.Context, id course.CourseID) (int, error) {
	def, err := d.GetCourse(ctx, id)
	if err != nil {
		return 0, err
	}
	return def.ModuleCount(), nil
}

func (d *memDefinitions) GetEstimatedDuration(ctx context.Context, id course.CourseID) (int, error) {
	def, err := d.GetCourse(ctx, id)
	if err != nil {
		return 0, err
	}
	return def.EstimatedCompletionTime, nil
}

func (d *memDefinitions) GetModuleEstimatedDuration(ctx context.Context, id course.CourseID, moduleID course.ModuleID) (int, error) {
	def, err := d.GetCourse(ctx, id)
	if err != nil {
		return 0, err
	}
	mod, ok := def.Module(moduleID)
	if !ok {
		return 0, shared.ErrModuleNotFound
	}
	return mod.EstimatedDuration, nil
}

type memEnrollments struct {
	users map[course.CourseID][]course.UserID
}

func (e *memEnrollments) ListUsers(_ context.Context, id course.CourseID) ([]course.UserID, error) {
	return e.users[id], nil
}

func (e *memEnrollments) IsEnrolled(_ context.Context, userID course.UserID, id course.CourseID) (bool, error) {
	for _, u := range e.users[id] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []shared.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event shared.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) typesSeen() map[shared.EventType]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	seen := make(map[shared.EventType]int)
	for _, e := range n.events {
		seen[e.EventType()]++
	}
	return seen
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

type fixture struct {
	orchestrator *Orchestrator
	modules      *memModuleStore
	aggregates   *memAggregateStore
	notifier     *recordingNotifier
	def          *course.CourseDefinition
}

func newFixture(t *testing.T, moduleCount int, users ...course.UserID) *fixture {
	t.Helper()

	def := testCourse("go-101", moduleCount)
	modules := newMemModuleStore()
	aggregates := newMemAggregateStore()
	notifier := &recordingNotifier{}

	orchestrator := NewOrchestrator(
		modules,
		aggregates,
		&memDefinitions{courses: map[course.CourseID]*course.CourseDefinition{def.ID: def}},
		&memEnrollments{users: map[course.CourseID][]course.UserID{def.ID: users}},
		nil,
		notifier,
		nil,
		slog.New(slog.NewTextHandler(testWriter{t}, nil)),
		DefaultConfig(),
	)

	return &fixture{
		orchestrator: orchestrator,
		modules:      modules,
		aggregates:   aggregates,
		notifier:     notifier,
		def:          def,
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestOrchestrator_SyncOneCreatesAggregateLazily(t *testing.T) {
	f := newFixture(t, 4, "u1")
	ctx := context.Background()

	f.modules.put(testRecord("u1", f.def.Modules[0].ID, recordOpts{status: progress.StatusCompleted, score: score(80)}))
	f.modules.put(testRecord("u1", f.def.Modules[1].ID, recordOpts{status: progress.StatusCompleted, score: score(90)}))

	aggregate, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)

	assert.Equal(t, 4, aggregate.TotalModules)
	assert.Equal(t, 2, aggregate.CompletedModules)
	assert.Equal(t, 50, aggregate.CompletionPercentage)
	require.NotNil(t, aggregate.AverageModuleScore)
	assert.Equal(t, 85.0, *aggregate.AverageModuleScore)
	assert.False(t, aggregate.IsCompleted)
	assert.False(t, aggregate.LastSyncedAt.IsZero())

	stored := f.aggregates.stored("u1", "go-101")
	require.NotNil(t, stored)
	assert.Equal(t, aggregate.CompletedModules, stored.CompletedModules)
}

func TestOrchestrator_SyncOneIsIdempotent(t *testing.T) {
	f := newFixture(t, 4, "u1")
	ctx := context.Background()

	f.modules.put(testRecord("u1", f.def.Modules[0].ID, recordOpts{status: progress.StatusCompleted, score: score(80), timeSpent: 50}))
	f.modules.put(testRecord("u1", f.def.Modules[1].ID, recordOpts{status: progress.StatusInProgress, attempts: 5, timeSpent: 40}))

	first, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)

	second, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)

	// Identical except lastSyncedAt.
	assert.Equal(t, first.CompletedModules, second.CompletedModules)
	assert.Equal(t, first.CompletionPercentage, second.CompletionPercentage)
	assert.Equal(t, first.AverageModuleScore, second.AverageModuleScore)
	assert.Equal(t, first.TotalTimeSpent, second.TotalTimeSpent)
	assert.Equal(t, first.CurrentModuleID, second.CurrentModuleID)
	assert.Equal(t, first.IsCompleted, second.IsCompleted)
	assert.Equal(t, first.Achievements, second.Achievements)
	require.Len(t, second.StrugglingModules, 1)
	assert.Equal(t, first.StrugglingModules, second.StrugglingModules)
}

func TestOrchestrator_SyncModuleCompletionFinishesCourse(t *testing.T) {
	f := newFixture(t, 4, "u1")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.modules.put(testRecord("u1", f.def.Modules[i].ID, recordOpts{status: progress.StatusCompleted, score: score(92), timeSpent: 50}))
	}
	f.modules.put(testRecord("u1", f.def.Modules[3].ID, recordOpts{status: progress.StatusInProgress, timeSpent: 30}))

	timeSpent := progress.Minutes(15)
	finalScore := progress.Percentage(92)
	aggregate, err := f.orchestrator.SyncModuleCompletion(ctx, "u1", "go-101", f.def.Modules[3].ID, CompletionData{
		TimeSpent: &timeSpent,
		Score:     &finalScore,
	})
	require.NoError(t, err)

	assert.True(t, aggregate.IsCompleted)
	require.NotNil(t, aggregate.CompletionDate)
	assert.Equal(t, 100, aggregate.CompletionPercentage)
	assert.True(t, aggregate.HasAchievement(progress.AchievementCourseCompletion))
	assert.True(t, aggregate.HasAchievement(progress.AchievementPerfectCourse))
	assert.True(t, aggregate.CertificateIssued)

	seen := f.notifier.typesSeen()
	assert.Equal(t, 1, seen[shared.EventModuleCompleted])
	assert.Equal(t, 1, seen[shared.EventCourseCompleted])
	assert.Equal(t, 1, seen[shared.EventCertificateIssued])
	assert.GreaterOrEqual(t, seen[shared.EventAchievementUnlocked], 2)
}

func TestOrchestrator_SyncModuleCompletionCreatesMissingRecord(t *testing.T) {
	f := newFixture(t, 2, "u1")
	ctx := context.Background()

	finalScore := progress.Percentage(88)
	aggregate, err := f.orchestrator.SyncModuleCompletion(ctx, "u1", "go-101", f.def.Modules[0].ID, CompletionData{
		Score: &finalScore,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, aggregate.CompletedModules)

	record, err := f.modules.Get(ctx, "u1", "go-101", f.def.Modules[0].ID)
	require.NoError(t, err)
	assert.True(t, record.CompletionStatus.IsCompleted())
	require.NoError(t, record.Validate())
}

func TestOrchestrator_SyncModuleCompletionRejectsForeignModule(t *testing.T) {
	f := newFixture(t, 2, "u1")

	_, err := f.orchestrator.SyncModuleCompletion(context.Background(), "u1", "go-101", "ghost-module", CompletionData{})
	require.Error(t, err)
	assert.True(t, shared.IsDataIntegrity(err))
}

func TestOrchestrator_DataIntegrityLeavesStoredAggregateUntouched(t *testing.T) {
	f := newFixture(t, 2, "u1")
	ctx := context.Background()

	f.modules.put(testRecord("u1", f.def.Modules[0].ID, recordOpts{status: progress.StatusCompleted, score: score(80)}))
	_, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)
	before := f.aggregates.stored("u1", "go-101")

	// An orphaned record appears (authoring removed the module).
	f.modules.put(testRecord("u1", "ghost-module", recordOpts{status: progress.StatusCompleted}))

	_, err = f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.Error(t, err)
	assert.True(t, shared.IsDataIntegrity(err))

	after := f.aggregates.stored("u1", "go-101")
	assert.Equal(t, before.LastSyncedAt, after.LastSyncedAt, "failed sync must not write")
	assert.Equal(t, before.CompletedModules, after.CompletedModules)
}

func TestOrchestrator_BulkSyncReportsPerUser(t *testing.T) {
	f := newFixture(t, 2, "u1", "u2", "u3")
	ctx := context.Background()

	f.modules.put(testRecord("u1", f.def.Modules[0].ID, recordOpts{status: progress.StatusCompleted, score: score(90)}))
	f.modules.put(testRecord("u3", f.def.Modules[0].ID, recordOpts{status: progress.StatusInProgress}))
	f.modules.findErr["u2"] = errors.New("connection reset")

	report, err := f.orchestrator.SyncAllUsersInCourse(ctx, "go-101")
	require.NoError(t, err)
	require.Len(t, report, 3)

	byUser := make(map[course.UserID]UserSyncResult)
	for _, r := range report {
		byUser[r.UserID] = r
	}

	assert.True(t, byUser["u1"].Success)
	assert.False(t, byUser["u2"].Success)
	assert.Error(t, byUser["u2"].Err)
	assert.True(t, byUser["u3"].Success, "one user's failure must not abort the others")
}

func TestOrchestrator_GetSyncReportCounts(t *testing.T) {
	f := newFixture(t, 4, "u1")
	ctx := context.Background()

	f.modules.put(testRecord("u1", f.def.Modules[0].ID, recordOpts{status: progress.StatusCompleted, score: score(75)}))
	f.modules.put(testRecord("u1", f.def.Modules[1].ID, recordOpts{status: progress.StatusInProgress, attempts: 5}))

	_, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)

	report, err := f.orchestrator.GetSyncReport(ctx, "u1", "go-101")
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalModules)
	assert.Equal(t, 1, report.CompletedModules)
	assert.Equal(t, 1, report.InProgressModules)
	assert.Equal(t, 2, report.NotStartedModules, "modules without records count as not started")
	assert.Len(t, report.StrugglingModules, 1)
	assert.False(t, report.LastSyncedAt.IsZero())
}

func TestOrchestrator_MonotonicityAcrossGrowingRecords(t *testing.T) {
	f := newFixture(t, 3, "u1")
	ctx := context.Background()

	r := testRecord("u1", f.def.Modules[0].ID, recordOpts{status: progress.StatusInProgress, timeSpent: 20})
	f.modules.put(r)

	first, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)

	// Records only grow: more time, then completion.
	require.NoError(t, r.RecordContentProgress(80, 25))
	f.modules.put(r)

	second, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, int(second.TotalTimeSpent), int(first.TotalTimeSpent))
	assert.GreaterOrEqual(t, second.CompletedModules, first.CompletedModules)

	r.MarkCompleted()
	f.modules.put(r)

	third, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, int(third.TotalTimeSpent), int(second.TotalTimeSpent))
	assert.Equal(t, 1, third.CompletedModules)
}

func TestOrchestrator_ConcurrentSyncsOfOnePairSerialize(t *testing.T) {
	f := newFixture(t, 1, "u1")
	ctx := context.Background()

	f.modules.put(testRecord("u1", f.def.Modules[0].ID, recordOpts{status: progress.StatusCompleted, score: score(95), timeSpent: 30}))

	const workers = 16

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	stored := f.aggregates.stored("u1", "go-101")
	require.True(t, stored.IsCompleted)
	require.NotNil(t, stored.CompletionDate)

	types := make(map[progress.AchievementType]int)
	for _, ach := range stored.Achievements {
		types[ach.Type]++
	}
	for typ, count := range types {
		assert.Equal(t, 1, count, "achievement %s unlocked more than once", typ)
	}
	assert.Equal(t, 1, types[progress.AchievementCourseCompletion])

	seen := f.notifier.typesSeen()
	assert.Equal(t, 1, seen[shared.EventCourseCompleted])
	assert.Equal(t, 1, seen[shared.EventCertificateIssued])

	// Serialized writes advance the version once each: one create, then an
	// update per remaining sync.
	assert.Equal(t, int64(workers-1), stored.Version)
	assert.Equal(t, workers, f.aggregates.writes)
}

func TestOrchestrator_SurfacesVersionConflict(t *testing.T) {
	f := newFixture(t, 2, "u1")
	ctx := context.Background()

	f.modules.put(testRecord("u1", f.def.Modules[0].ID, recordOpts{status: progress.StatusCompleted, score: score(80)}))
	_, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)

	f.aggregates.failNextUpdate = shared.ErrSyncConflict

	_, err = f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrOptimisticLock))
	assert.True(t, shared.IsRetryable(err), "a lost version race is safe to retry")
}

func TestOrchestrator_StruggleResolutionEmitsEvent(t *testing.T) {
	f := newFixture(t, 2, "u1")
	ctx := context.Background()

	moduleID := f.def.Modules[0].ID
	f.modules.put(testRecord("u1", moduleID, recordOpts{status: progress.StatusInProgress, score: score(50), attempts: 5}))

	first, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)

	entry, flagged := first.FlaggedModule(moduleID)
	require.True(t, flagged)
	assert.Contains(t, entry.Reason, ReasonLowScores)
	assert.Equal(t, 1, f.notifier.typesSeen()[shared.EventLearnerStruggling])

	// The learner passes the module; the flag clears on the next sync.
	r := testRecord("u1", moduleID, recordOpts{status: progress.StatusCompleted, score: score(85), attempts: 6})
	f.modules.put(r)

	second, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)

	_, flagged = second.FlaggedModule(moduleID)
	assert.False(t, flagged)

	seen := f.notifier.typesSeen()
	assert.Equal(t, 1, seen[shared.EventStruggleResolved])
	assert.Equal(t, 1, seen[shared.EventLearnerStruggling], "resolution must not re-flag")
}

func TestOrchestrator_CompletionDateSetOnce(t *testing.T) {
	f := newFixture(t, 1, "u1")
	ctx := context.Background()

	f.modules.put(testRecord("u1", f.def.Modules[0].ID, recordOpts{status: progress.StatusCompleted, score: score(95), timeSpent: 30}))

	first, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)
	require.True(t, first.IsCompleted)
	require.NotNil(t, first.CompletionDate)

	time.Sleep(2 * time.Millisecond)

	second, err := f.orchestrator.SyncOne(ctx, "u1", "go-101")
	require.NoError(t, err)
	assert.Equal(t, *first.CompletionDate, *second.CompletionDate)
	assert.Equal(t, first.CertificateID, second.CertificateID, "certificate is generated once")
}
