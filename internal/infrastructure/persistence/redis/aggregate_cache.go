package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coursehub/progress-engine/internal/domain/course"
	"github.com/coursehub/progress-engine/internal/domain/progress"
	"github.com/coursehub/progress-engine/internal/domain/shared"
	"github.com/coursehub/progress-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE CACHE
// Read-path cache for course progress aggregates. The orchestrator invalidates
// the pair key after every sync, so a hit is never older than the last write.
// All calls pass through a circuit breaker: while Redis is unhealthy every
// operation degrades to a miss immediately, and the TTL bounds how long an
// entry skipped by Invalidate can survive once the breaker closes again.
// ══════════════════════════════════════════════════════════════════════════════

// AggregateCache implements progress.AggregateCache on top of Redis.
type AggregateCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

// NewAggregateCache creates a new AggregateCache.
func NewAggregateCache(cache *Cache) *AggregateCache {
	return &AggregateCache{
		cache: cache,
		breaker: circuitbreaker.CacheBreaker(
			func(name string, from, to circuitbreaker.State) {
				slog.Warn("cache breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
			circuitbreaker.WithIsFailure(func(err error) bool {
				return !errors.Is(err, ErrCacheMiss)
			}),
		),
	}
}

// cachedAggregate is the JSON shape of a cached aggregate.
type cachedAggregate struct {
	ID                   string              `json:"id"`
	UserID               string              `json:"user_id"`
	CourseID             string              `json:"course_id"`
	TotalModules         int                 `json:"total_modules"`
	CompletedModules     int                 `json:"completed_modules"`
	CompletionPercentage int                 `json:"completion_percentage"`
	AverageModuleScore   *float64            `json:"average_module_score,omitempty"`
	TotalTimeSpent       int                 `json:"total_time_spent_minutes"`
	CurrentModuleID      string              `json:"current_module_id"`
	IsCompleted          bool                `json:"is_completed"`
	CompletionDate       *time.Time          `json:"completion_date,omitempty"`
	StrugglingModules    []cachedStruggle    `json:"struggling_modules"`
	Achievements         []cachedAchievement `json:"achievements"`
	CertificateIssued    bool                `json:"certificate_issued"`
	CertificateID        string              `json:"certificate_id"`
	LastSyncedAt         time.Time           `json:"last_synced_at"`
	Version              int64               `json:"version"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

type cachedStruggle struct {
	ModuleID   string    `json:"module_id"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detected_at"`
}

type cachedAchievement struct {
	Type        string    `json:"type"`
	UnlockedAt  time.Time `json:"unlocked_at"`
	Description string    `json:"description"`
}

// Get retrieves a cached aggregate.
// Returns shared.ErrAggregateNotFound on a cache miss or an open breaker.
func (c *AggregateCache) Get(ctx context.Context, userID course.UserID, courseID course.CourseID) (*progress.CourseProgressAggregate, error) {
	var cached cachedAggregate
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Get(ctx, AggregateKey(string(userID), string(courseID)), &cached)
	})
	if errors.Is(err, ErrCacheMiss) ||
		errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
		errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return nil, shared.ErrAggregateNotFound
	}
	if err != nil {
		return nil, err
	}

	return fromCached(&cached), nil
}

// Set stores an aggregate in the cache with the given TTL.
func (c *AggregateCache) Set(ctx context.Context, aggregate *progress.CourseProgressAggregate, ttl time.Duration) error {
	if aggregate == nil {
		return ErrCacheNilValue
	}

	key := AggregateKey(string(aggregate.UserID), string(aggregate.CourseID))
	return c.breaker.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			return c.cache.Set(ctx, key, toCached(aggregate), ttl)
		},
		func(error) error { return nil },
	)
}

// Invalidate removes the cached aggregate for a (user, course) pair.
func (c *AggregateCache) Invalidate(ctx context.Context, userID course.UserID, courseID course.CourseID) error {
	return c.breaker.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			return c.cache.Delete(ctx, AggregateKey(string(userID), string(courseID)))
		},
		func(error) error { return nil },
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Conversion
// ─────────────────────────────────────────────────────────────────────────────

func toCached(a *progress.CourseProgressAggregate) *cachedAggregate {
	cached := &cachedAggregate{
		ID:                   a.ID,
		UserID:               string(a.UserID),
		CourseID:             string(a.CourseID),
		TotalModules:         a.TotalModules,
		CompletedModules:     a.CompletedModules,
		CompletionPercentage: a.CompletionPercentage,
		AverageModuleScore:   a.AverageModuleScore,
		TotalTimeSpent:       int(a.TotalTimeSpent),
		CurrentModuleID:      string(a.CurrentModuleID),
		IsCompleted:          a.IsCompleted,
		CompletionDate:       a.CompletionDate,
		StrugglingModules:    make([]cachedStruggle, 0, len(a.StrugglingModules)),
		Achievements:         make([]cachedAchievement, 0, len(a.Achievements)),
		CertificateIssued:    a.CertificateIssued,
		CertificateID:        a.CertificateID,
		LastSyncedAt:         a.LastSyncedAt,
		Version:              a.Version,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}

	for _, s := range a.StrugglingModules {
		cached.StrugglingModules = append(cached.StrugglingModules, cachedStruggle{
			ModuleID:   string(s.ModuleID),
			Reason:     s.Reason,
			DetectedAt: s.DetectedAt,
		})
	}
	for _, ach := range a.Achievements {
		cached.Achievements = append(cached.Achievements, cachedAchievement{
			Type:        string(ach.Type),
			UnlockedAt:  ach.UnlockedAt,
			Description: ach.Description,
		})
	}

	return cached
}

func fromCached(cached *cachedAggregate) *progress.CourseProgressAggregate {
	a := &progress.CourseProgressAggregate{
		ID:                   cached.ID,
		UserID:               course.UserID(cached.UserID),
		CourseID:             course.CourseID(cached.CourseID),
		TotalModules:         cached.TotalModules,
		CompletedModules:     cached.CompletedModules,
		CompletionPercentage: cached.CompletionPercentage,
		AverageModuleScore:   cached.AverageModuleScore,
		TotalTimeSpent:       progress.Minutes(cached.TotalTimeSpent),
		CurrentModuleID:      course.ModuleID(cached.CurrentModuleID),
		IsCompleted:          cached.IsCompleted,
		CompletionDate:       cached.CompletionDate,
		StrugglingModules:    make([]progress.StruggleEntry, 0, len(cached.StrugglingModules)),
		Achievements:         make([]progress.Achievement, 0, len(cached.Achievements)),
		CertificateIssued:    cached.CertificateIssued,
		CertificateID:        cached.CertificateID,
		LastSyncedAt:         cached.LastSyncedAt,
		Version:              cached.Version,
		CreatedAt:            cached.CreatedAt,
		UpdatedAt:            cached.UpdatedAt,
	}

	for _, s := range cached.StrugglingModules {
		a.StrugglingModules = append(a.StrugglingModules, progress.StruggleEntry{
			ModuleID:   course.ModuleID(s.ModuleID),
			Reason:     s.Reason,
			DetectedAt: s.DetectedAt,
		})
	}
	for _, ach := range cached.Achievements {
		a.Achievements = append(a.Achievements, progress.Achievement{
			Type:        progress.AchievementType(ach.Type),
			UnlockedAt:  ach.UnlockedAt,
			Description: ach.Description,
		})
	}

	return a
}
