package lesson

import (
	"context"

	"github.com/pot-code/learning-analytics/internal/infrastructure/logging"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// LessonUseCaseImpl ...
type LessonUseCaseImpl struct {
	LessonRepository LessonRepository
	RateProvider     RateProvider
}

var _ LessonUseCase = &LessonUseCaseImpl{}

// NewLessonUseCase ...
func NewLessonUseCase(
	LessonRepository LessonRepository,
	RateProvider RateProvider,
) *LessonUseCaseImpl {
	return &LessonUseCaseImpl{LessonRepository, RateProvider}
}

// ListLessons page of published lessons with their completion rates
func (lu *LessonUseCaseImpl) ListLessons(ctx context.Context, offset, limit int) ([]*LessonModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "LessonUseCaseImpl.ListLessons", "service")
	defer apmSpan.End()

	lessons, err := lu.LessonRepository.ListPublishedLessons(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(lessons))
	for i, l := range lessons {
		ids[i] = l.ID
	}
	rates := lu.rates(ctx, ids)
	for _, l := range lessons {
		l.CompletionRate = rates[l.ID]
	}
	return lessons, nil
}

// GetUserLessonProgress get learning progress for each lesson
func (lu *LessonUseCaseImpl) GetUserLessonProgress(ctx context.Context, userID string) ([]*LessonProgressModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "LessonUseCaseImpl.GetUserLessonProgress", "service")
	defer apmSpan.End()

	progress, err := lu.LessonRepository.GetLessonProgressByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(progress))
	for i, e := range progress {
		ids[i] = e.LessonID
	}
	rates := lu.rates(ctx, ids)
	for _, e := range progress {
		e.CompletionRate = rates[e.LessonID]
		if e.LastAccessed != nil {
			e.Timestamp = e.LastAccessed.Unix() * 1e3 // milliseconds
		}
	}
	return progress, nil
}

// rates never fails, lessons it could not resolve are left at 0
func (lu *LessonUseCaseImpl) rates(ctx context.Context, ids []string) map[string]int {
	if len(ids) == 0 {
		return nil
	}
	rates, err := lu.RateProvider.BulkLessonRates(ctx, ids)
	if err != nil {
		logging.ExtractLoggerFromContext(ctx).Warn("completion rates partially resolved",
			zap.Int("lesson.requested", len(ids)),
			zap.Int("lesson.resolved", len(rates)),
			zap.Error(err))
	}
	return rates
}
