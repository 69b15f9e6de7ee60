package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/learning-analytics/internal/infrastructure/auth"
	"github.com/pot-code/learning-analytics/internal/infrastructure/validate"
	"github.com/pot-code/learning-analytics/internal/progress"
)

type ProgressHandler struct {
	progressUseCase progress.ProgressUseCase
	jwtUtil         *auth.JWTUtil
	validator       validate.Validator
}

func NewProgressHandler(
	ProgressUseCase progress.ProgressUseCase,
	JWTUtil *auth.JWTUtil,
	Validator validate.Validator,
) *ProgressHandler {
	handler := &ProgressHandler{ProgressUseCase, JWTUtil, Validator}
	return handler
}

// HandleGetProgress progress of the current user on a lesson
func (ph *ProgressHandler) HandleGetProgress(c echo.Context) (err error) {
	claims := ph.jwtUtil.GetContextToken(c)
	lessonID, ok, err := lessonParam(c, ph.validator)
	if !ok {
		return err
	}

	p, err := ph.progressUseCase.GetProgress(c.Request().Context(), claims.UID, lessonID)
	if errors.Is(err, progress.ErrLessonNotFound) {
		return respondError(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// HandleUpdateProgress update progress of the current user on a lesson
func (ph *ProgressHandler) HandleUpdateProgress(c echo.Context) (err error) {
	claims := ph.jwtUtil.GetContextToken(c)
	lessonID, ok, err := lessonParam(c, ph.validator)
	if !ok {
		return err
	}

	post := new(progress.ProgressUpdate)
	if ok, err := bind(c, post); !ok {
		return err
	}
	if err := ph.validator.Struct(post); err != nil {
		return respondInvalid(c, "Failed to validate progress", err)
	}

	p, err := ph.progressUseCase.UpdateProgress(c.Request().Context(), claims.UID, lessonID, post)
	if errors.Is(err, progress.ErrLessonNotFound) {
		return respondError(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// HandleInteract record a lesson interaction of the current user
func (ph *ProgressHandler) HandleInteract(c echo.Context) (err error) {
	claims := ph.jwtUtil.GetContextToken(c)

	post := new(progress.InteractionRequest)
	if ok, err := bind(c, post); !ok {
		return err
	}
	if err := ph.validator.Struct(post); err != nil {
		return respondInvalid(c, "Failed to validate interaction", err)
	}
	interaction, err := post.Decode()
	if err != nil {
		return respondInvalid(c, "Failed to decode interaction", []*validate.FieldError{
			validate.NewFieldError("metadata", err.Error()),
		})
	}
	if err := ph.validator.Struct(interaction.Metadata); err != nil {
		return respondInvalid(c, "Failed to validate interaction metadata", err)
	}

	model, err := ph.progressUseCase.RecordInteraction(c.Request().Context(), claims.UID, interaction)
	if errors.Is(err, progress.ErrLessonNotFound) {
		return respondError(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":        true,
		"interaction_id": model.ID,
	})
}
