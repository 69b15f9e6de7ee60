package progress

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pot-code/learning-analytics/internal/infrastructure/uuid"
	"go.elastic.co/apm"
)

// ProgressUseCaseImpl ...
type ProgressUseCaseImpl struct {
	ProgressRepository ProgressRepository
	RateInvalidator    RateInvalidator
	UUIDGenerator      uuid.Generator
	now                func() time.Time
}

var _ ProgressUseCase = &ProgressUseCaseImpl{}

// NewProgressUseCase ...
func NewProgressUseCase(
	ProgressRepository ProgressRepository,
	RateInvalidator RateInvalidator,
	UUIDGenerator uuid.Generator,
) *ProgressUseCaseImpl {
	return &ProgressUseCaseImpl{ProgressRepository, RateInvalidator, UUIDGenerator, time.Now}
}

// GetProgress returns the progress of userID on lessonID, a not_started record is created on first access
func (pu *ProgressUseCaseImpl) GetProgress(ctx context.Context, userID, lessonID string) (*ProgressModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "ProgressUseCaseImpl.GetProgress", "service")
	defer apmSpan.End()

	existing, err := pu.ProgressRepository.FindProgress(ctx, userID, lessonID)
	if err != nil || existing != nil {
		return existing, err
	}
	return pu.save(ctx, userID, lessonID, func(p *ProgressModel, now time.Time) {}, nil)
}

// UpdateProgress apply update to the progress of userID on lessonID, creating it when missing.
//
// Percentage is clamped to [0, 100]; reaching 100 completes the lesson and a
// positive percentage moves a not_started record to in_progress.
func (pu *ProgressUseCaseImpl) UpdateProgress(ctx context.Context, userID, lessonID string, update *ProgressUpdate) (*ProgressModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "ProgressUseCaseImpl.UpdateProgress", "service")
	defer apmSpan.End()

	return pu.save(ctx, userID, lessonID, func(p *ProgressModel, now time.Time) {
		applyUpdate(p, update, now)
	}, nil)
}

// RecordInteraction persist interaction, start and complete interactions also move the progress record
func (pu *ProgressUseCaseImpl) RecordInteraction(ctx context.Context, userID string, interaction *Interaction) (*InteractionModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "ProgressUseCaseImpl.RecordInteraction", "service")
	defer apmSpan.End()

	if ok, err := pu.ProgressRepository.LessonExists(ctx, interaction.LessonID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrLessonNotFound
	}
	if interaction.Metadata == nil {
		interaction.Metadata = new(SessionMetadata)
	}
	id, err := pu.UUIDGenerator.Generate()
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(interaction.Metadata)
	if err != nil {
		return nil, err
	}
	model := &InteractionModel{
		ID:        id,
		UserID:    userID,
		LessonID:  interaction.LessonID,
		Kind:      interaction.Kind,
		SessionID: interaction.Metadata.sessionID(),
		Metadata:  metadata,
		CreatedAt: pu.now(),
	}
	insert := func(ctx context.Context, repo ProgressRepository) error {
		return repo.CreateInteraction(ctx, model)
	}

	minutes := interaction.DurationMinutes()
	switch interaction.Kind {
	case InteractionStart:
		_, err = pu.save(ctx, userID, interaction.LessonID, func(p *ProgressModel, now time.Time) {
			if p.ID == "" || p.Status == StatusNotStarted {
				p.Status = StatusInProgress
				p.TimeSpentMinutes += minutes
			}
		}, insert)
	case InteractionComplete:
		_, err = pu.save(ctx, userID, interaction.LessonID, func(p *ProgressModel, now time.Time) {
			p.Status = StatusCompleted
			p.ProgressPercentage = 100
			p.CompletedAt = &now
			p.TimeSpentMinutes += minutes
		}, insert)
	default:
		err = insert(ctx, pu.ProgressRepository)
	}
	if err != nil {
		return nil, err
	}
	return model, nil
}

// save loads or initialises the record, applies change and writes it back.
// change sees an empty ID on records that do not exist yet and must be
// safe to apply again. A non-nil also runs in the same transaction as the
// record write.
func (pu *ProgressUseCaseImpl) save(
	ctx context.Context,
	userID, lessonID string,
	change func(p *ProgressModel, now time.Time),
	also func(ctx context.Context, repo ProgressRepository) error,
) (*ProgressModel, error) {
	record, err := pu.saveOnce(ctx, userID, lessonID, change, also)
	if errors.Is(err, ErrProgressExists) {
		// a concurrent first write created the record, update it instead
		return pu.saveOnce(ctx, userID, lessonID, change, also)
	}
	return record, err
}

func (pu *ProgressUseCaseImpl) saveOnce(
	ctx context.Context,
	userID, lessonID string,
	change func(p *ProgressModel, now time.Time),
	also func(ctx context.Context, repo ProgressRepository) error,
) (*ProgressModel, error) {
	repo := pu.ProgressRepository

	record, err := repo.FindProgress(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	created := record == nil
	if created {
		if ok, err := repo.LessonExists(ctx, lessonID); err != nil {
			return nil, err
		} else if !ok {
			return nil, ErrLessonNotFound
		}
		record = &ProgressModel{
			UserID:   userID,
			LessonID: lessonID,
			Status:   StatusNotStarted,
		}
	}
	previous := record.Status

	now := pu.now()
	change(record, now)
	record.LastAccessed = &now

	persist := func(ctx context.Context, repo ProgressRepository) error {
		if !created {
			return repo.UpdateProgress(ctx, record)
		}
		id, err := pu.UUIDGenerator.Generate()
		if err != nil {
			return err
		}
		record.ID = id
		return repo.CreateProgress(ctx, record)
	}
	write := func(ctx context.Context) error {
		if also == nil {
			return persist(ctx, repo)
		}
		return repo.Transaction(ctx, func(ctx context.Context, tx ProgressRepository) error {
			if err := persist(ctx, tx); err != nil {
				return err
			}
			return also(ctx, tx)
		})
	}

	// rates only depend on record counts per status
	if created || record.Status != previous {
		err = pu.RateInvalidator.AfterProgressWrite(ctx, userID, lessonID, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func applyUpdate(p *ProgressModel, update *ProgressUpdate, now time.Time) {
	if update.Status != nil {
		p.Status = *update.Status
	} else if p.ID == "" {
		p.Status = StatusInProgress
	}
	if update.TimeSpentMinutes != nil {
		p.TimeSpentMinutes = *update.TimeSpentMinutes
	}
	if update.ProgressPercentage != nil {
		p.ProgressPercentage = clampPercentage(*update.ProgressPercentage)
		if p.ProgressPercentage >= 100 {
			p.Status = StatusCompleted
		} else if p.ProgressPercentage > 0 && p.Status == StatusNotStarted {
			p.Status = StatusInProgress
		}
	}
	if p.Status == StatusCompleted && p.CompletedAt == nil {
		p.CompletedAt = &now
	}
}

func clampPercentage(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
