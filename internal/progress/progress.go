package progress

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status lifecycle state of a progress record
type Status string

// progress status
const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var (
	ErrInvalidStatus  = errors.New("invalid progress status")
	ErrLessonNotFound = errors.New("lesson not found")
	ErrProgressExists = errors.New("progress already exists")
)

// ParseStatus convert s into Status
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// ProgressModel progress of one user on one lesson, unique by (UserID, LessonID)
type ProgressModel struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	LessonID           string     `json:"lesson_id"`
	Status             Status     `json:"status"`
	ProgressPercentage int        `json:"progress_percentage"`
	TimeSpentMinutes   int        `json:"time_spent_minutes"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	LastAccessed       *time.Time `json:"last_accessed,omitempty"`
}

// StatusCount number of progress records of a lesson in one status
type StatusCount struct {
	LessonID string
	Status   Status
	Count    int64
}

// ProgressUpdate partial update of a progress record, nil fields are left untouched
type ProgressUpdate struct {
	ProgressPercentage *int    `json:"progress_percentage"`
	TimeSpentMinutes   *int    `json:"time_spent_minutes" validate:"omitempty,min=0"`
	Status             *Status `json:"status" validate:"omitempty,oneof=not_started in_progress completed"`
}

type ProgressRepository interface {
	LessonExists(ctx context.Context, lessonID string) (bool, error)
	// FindProgress returns nil without error when the record does not exist
	FindProgress(ctx context.Context, userID, lessonID string) (*ProgressModel, error)
	CreateProgress(ctx context.Context, progress *ProgressModel) error
	UpdateProgress(ctx context.Context, progress *ProgressModel) error
	CreateInteraction(ctx context.Context, interaction *InteractionModel) error
	// Transaction run fn with a repository whose writes commit or roll back together
	Transaction(ctx context.Context, fn func(ctx context.Context, tx ProgressRepository) error) error
}

// RateInvalidator runs a progress write and purges completion rates it affects
type RateInvalidator interface {
	AfterProgressWrite(ctx context.Context, userID, lessonID string, write func(ctx context.Context) error) error
}

type ProgressUseCase interface {
	GetProgress(ctx context.Context, userID, lessonID string) (*ProgressModel, error)
	UpdateProgress(ctx context.Context, userID, lessonID string, update *ProgressUpdate) (*ProgressModel, error)
	RecordInteraction(ctx context.Context, userID string, interaction *Interaction) (*InteractionModel, error)
}
