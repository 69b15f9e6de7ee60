package lesson

import (
	"context"
	"time"
)

// LessonModel published lesson as listed to learners
type LessonModel struct {
	ID             string `json:"id"`
	Index          int    `json:"index"`
	Title          string `json:"title"`
	CompletionRate int    `json:"completion_rate"`
}

// LessonProgressModel progress of a user on one lesson, with the lesson's completion rate
type LessonProgressModel struct {
	ID             string     `json:"id"`
	LessonID       string     `json:"lesson_id"`
	Index          int        `json:"index"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	CompletionRate int        `json:"completion_rate"`
	LastAccessed   *time.Time `json:"-"`
	Timestamp      int64      `json:"timestamp"`
}

type LessonRepository interface {
	ListPublishedLessons(ctx context.Context, offset, limit int) ([]*LessonModel, error)
	GetLessonProgressByUser(ctx context.Context, userID string) ([]*LessonProgressModel, error)
}

// RateProvider bulk completion rate lookup
type RateProvider interface {
	BulkLessonRates(ctx context.Context, lessonIDs []string) (map[string]int, error)
}

type LessonUseCase interface {
	ListLessons(ctx context.Context, offset, limit int) ([]*LessonModel, error)
	GetUserLessonProgress(ctx context.Context, userID string) ([]*LessonProgressModel, error)
}
