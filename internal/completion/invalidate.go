package completion

import (
	"context"

	"github.com/pot-code/learning-analytics/internal/infrastructure/metrics"
)

// InvalidateLesson drop the lesson rate and the overall rate it feeds into
func (e *Engine) InvalidateLesson(ctx context.Context, lessonID string) {
	metrics.Invalidations.WithLabelValues(kindLesson).Inc()
	e.cache.Invalidate(ctx, LessonKey(lessonID), OverallKey)
}

// InvalidateUser drop the user rate
func (e *Engine) InvalidateUser(ctx context.Context, userID string) {
	metrics.Invalidations.WithLabelValues(kindUser).Inc()
	e.cache.Invalidate(ctx, UserKey(userID))
}

// InvalidateProgress drop every rate a progress write on (userID, lessonID)
// may change: lesson, user, then overall
func (e *Engine) InvalidateProgress(ctx context.Context, userID, lessonID string) {
	metrics.Invalidations.WithLabelValues(kindProgress).Inc()
	e.cache.Invalidate(ctx, progressKeys(userID, lessonID)...)
}

// AfterProgressWrite run write, then purge the rates it affects. Purge
// failures are logged by the cache client and never returned.
func (e *Engine) AfterProgressWrite(ctx context.Context, userID, lessonID string, write func(ctx context.Context) error) error {
	err := e.cache.InvalidateAfter(ctx, write, progressKeys(userID, lessonID)...)
	if err == nil {
		metrics.Invalidations.WithLabelValues(kindProgress).Inc()
	}
	return err
}

func progressKeys(userID, lessonID string) []string {
	return []string{LessonKey(lessonID), UserKey(userID), OverallKey}
}
