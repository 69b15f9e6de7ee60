package completion

import (
	"context"
	"time"

	"github.com/pot-code/learning-analytics/internal/cache"
	"github.com/pot-code/learning-analytics/internal/infrastructure/logging"
	"github.com/pot-code/learning-analytics/internal/infrastructure/metrics"
	"github.com/pot-code/learning-analytics/internal/progress"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// rate kinds
const (
	kindLesson   = "lesson"
	kindUser     = "user"
	kindOverall  = "overall"
	kindProgress = "progress"
)

// ProgressCounter read side of the progress store
type ProgressCounter interface {
	CountProgressByStatus(ctx context.Context, lessonID string) (map[progress.Status]int64, error)
	CountAllProgressByStatus(ctx context.Context) (map[progress.Status]int64, error)
	CountPublishedLessons(ctx context.Context) (int64, error)
	CountCompletedForUser(ctx context.Context, userID string) (int64, error)
	GroupedProgressCounts(ctx context.Context, lessonIDs []string) ([]*progress.StatusCount, error)
}

// RateQuerier completion rate queries
type RateQuerier interface {
	LessonRate(ctx context.Context, lessonID string) (int, error)
	UserRate(ctx context.Context, userID string) (int, error)
	OverallRate(ctx context.Context) (int, error)
	BulkLessonRates(ctx context.Context, lessonIDs []string) (map[string]int, error)
}

// EngineOption options for Engine
type EngineOption struct {
	TTL time.Duration // lifetime of cached rates
}

// Engine computes completion rates cache-aside and purges them when progress changes
type Engine struct {
	counter ProgressCounter
	cache   *cache.Service
	ttl     time.Duration
}

var (
	_ RateQuerier              = &Engine{}
	_ progress.RateInvalidator = &Engine{}
)

// NewEngine create a completion rate Engine
func NewEngine(counter ProgressCounter, cacheService *cache.Service, options ...*EngineOption) *Engine {
	ttl := cache.DefaultTTL
	if len(options) > 0 {
		if option := options[0]; option.TTL > 0 {
			ttl = option.TTL
		}
	}
	return &Engine{counter: counter, cache: cacheService, ttl: ttl}
}

// LessonRate share of the lesson's progress records that are completed
func (e *Engine) LessonRate(ctx context.Context, lessonID string) (int, error) {
	apmSpan, _ := apm.StartSpan(ctx, "Engine.LessonRate", "service")
	defer apmSpan.End()

	return cache.GetOrCompute(ctx, e.cache, LessonKey(lessonID), e.ttl, func(ctx context.Context) (int, error) {
		counts, err := e.counter.CountProgressByStatus(ctx, lessonID)
		if err != nil {
			return 0, err
		}
		metrics.RateComputations.WithLabelValues(kindLesson).Inc()
		return rateOf(counts), nil
	})
}

// UserRate completed lessons of the user over the number of published lessons.
//
// Unlike LessonRate and OverallRate, the denominator is the published
// catalogue, not the records the user has.
func (e *Engine) UserRate(ctx context.Context, userID string) (int, error) {
	apmSpan, _ := apm.StartSpan(ctx, "Engine.UserRate", "service")
	defer apmSpan.End()

	return cache.GetOrCompute(ctx, e.cache, UserKey(userID), e.ttl, func(ctx context.Context) (int, error) {
		published, err := e.counter.CountPublishedLessons(ctx)
		if err != nil {
			return 0, err
		}
		if published == 0 {
			return 0, nil
		}
		completed, err := e.counter.CountCompletedForUser(ctx, userID)
		if err != nil {
			return 0, err
		}
		metrics.RateComputations.WithLabelValues(kindUser).Inc()
		return Percentage(completed, published), nil
	})
}

// OverallRate share of all progress records that are completed
func (e *Engine) OverallRate(ctx context.Context) (int, error) {
	apmSpan, _ := apm.StartSpan(ctx, "Engine.OverallRate", "service")
	defer apmSpan.End()

	return cache.GetOrCompute(ctx, e.cache, OverallKey, e.ttl, func(ctx context.Context) (int, error) {
		counts, err := e.counter.CountAllProgressByStatus(ctx)
		if err != nil {
			return 0, err
		}
		metrics.RateComputations.WithLabelValues(kindOverall).Inc()
		return rateOf(counts), nil
	})
}

// BulkLessonRates rates of many lessons. Cached rates are reused, the rest
// are computed with a single grouped query and cached one by one. Lessons
// without progress records get 0.
//
// The returned map is never nil: when the grouped query fails it holds the
// rates resolved from cache and the error is returned alongside.
func (e *Engine) BulkLessonRates(ctx context.Context, lessonIDs []string) (map[string]int, error) {
	apmSpan, _ := apm.StartSpan(ctx, "Engine.BulkLessonRates", "service")
	defer apmSpan.End()

	var (
		result = make(map[string]int, len(lessonIDs))
		ids    = make([]string, 0, len(lessonIDs))
		keys   = make([]string, 0, len(lessonIDs))
		seen   = make(map[string]bool, len(lessonIDs))
	)
	for _, id := range lessonIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
			keys = append(keys, LessonKey(id))
		}
	}

	cached := cache.GetMany[int](ctx, e.cache, keys)
	uncached := make([]string, 0, len(ids))
	for i, id := range ids {
		if rate, ok := cached[keys[i]]; ok {
			result[id] = rate
		} else {
			uncached = append(uncached, id)
		}
	}
	if len(uncached) == 0 {
		return result, nil
	}

	rows, err := e.counter.GroupedProgressCounts(ctx, uncached)
	if err != nil {
		logging.ExtractLoggerFromContext(ctx).Warn("failed to aggregate lesson progress, returning cached rates only",
			zap.Int("lesson.requested", len(seen)),
			zap.Int("lesson.resolved", len(result)),
			zap.Error(err))
		return result, err
	}

	type tally struct{ total, completed int64 }
	tallies := make(map[string]*tally, len(uncached))
	for _, row := range rows {
		t, ok := tallies[row.LessonID]
		if !ok {
			t = new(tally)
			tallies[row.LessonID] = t
		}
		t.total += row.Count
		if row.Status == progress.StatusCompleted {
			t.completed += row.Count
		}
	}

	metrics.RateComputations.WithLabelValues(kindLesson).Add(float64(len(uncached)))
	for _, id := range uncached {
		var rate int
		if t, ok := tallies[id]; ok {
			rate = Percentage(t.completed, t.total)
		}
		e.cache.Set(ctx, LessonKey(id), rate, e.ttl)
		result[id] = rate
	}
	return result, nil
}

func rateOf(counts map[progress.Status]int64) int {
	var total int64
	for _, n := range counts {
		total += n
	}
	return Percentage(counts[progress.StatusCompleted], total)
}
