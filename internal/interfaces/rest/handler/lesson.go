package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/learning-analytics/internal/completion"
	"github.com/pot-code/learning-analytics/internal/infrastructure/auth"
	"github.com/pot-code/learning-analytics/internal/infrastructure/logging"
	"github.com/pot-code/learning-analytics/internal/infrastructure/validate"
	"github.com/pot-code/learning-analytics/internal/lesson"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// BulkRateRequest body of a bulk completion rate query
type BulkRateRequest struct {
	LessonIDs []string `json:"lesson_ids" validate:"required,min=1,max=100,dive,required,max=64,excludes=:,ne=overall"`
}

type LessonHandler struct {
	lessonUseCase lesson.LessonUseCase
	rates         completion.RateQuerier
	jwtUtil       *auth.JWTUtil
	validator     validate.Validator
}

func NewLessonHandler(
	LessonUseCase lesson.LessonUseCase,
	RateQuerier completion.RateQuerier,
	JWTUtil *auth.JWTUtil,
	Validator validate.Validator,
) *LessonHandler {
	handler := &LessonHandler{LessonUseCase, RateQuerier, JWTUtil, Validator}
	return handler
}

// HandleListLessons page of published lessons with completion rates
func (lh *LessonHandler) HandleListLessons(c echo.Context) (err error) {
	offset, limit := 0, defaultPageSize
	var invalid []*validate.FieldError
	if v := c.QueryParam("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			invalid = append(invalid, validate.NewFieldError("offset", "offset must be an integer"))
		} else {
			invalid = append(invalid, lh.validator.Var("offset", offset, "min=0")...)
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			invalid = append(invalid, validate.NewFieldError("limit", "limit must be an integer"))
		} else {
			invalid = append(invalid, lh.validator.Var("limit", limit, fmt.Sprintf("min=1,max=%d", maxPageSize))...)
		}
	}
	if len(invalid) > 0 {
		return respondInvalid(c, "Failed to validate params", invalid)
	}

	lessons, err := lh.lessonUseCase.ListLessons(c.Request().Context(), offset, limit)
	if err != nil {
		return err
	}
	if lessons == nil {
		lessons = []*lesson.LessonModel{}
	}
	return c.JSON(http.StatusOK, lessons)
}

// HandleGetLessonProgress progress of the current user on every lesson
func (lh *LessonHandler) HandleGetLessonProgress(c echo.Context) (err error) {
	claims := lh.jwtUtil.GetContextToken(c)

	progress, err := lh.lessonUseCase.GetUserLessonProgress(c.Request().Context(), claims.UID)
	if err != nil {
		return err
	}
	if progress == nil {
		progress = []*lesson.LessonProgressModel{}
	}
	return c.JSON(http.StatusOK, progress)
}

// HandleGetLessonRate completion rate of one lesson, a failed computation renders as 0
func (lh *LessonHandler) HandleGetLessonRate(c echo.Context) (err error) {
	lessonID, ok, err := lessonParam(c, lh.validator)
	if !ok {
		return err
	}
	ctx := c.Request().Context()

	rate, err := lh.rates.LessonRate(ctx, lessonID)
	if err != nil {
		logging.ExtractLoggerFromContext(ctx).Warn("failed to compute lesson completion rate",
			zap.String("lesson.id", lessonID), zap.Error(err))
		rate = 0
	}
	return c.JSON(http.StatusOK, echo.Map{
		"lesson_id":       lessonID,
		"completion_rate": rate,
	})
}

// HandleBulkLessonRates completion rates of many lessons, unresolved lessons render as 0
func (lh *LessonHandler) HandleBulkLessonRates(c echo.Context) (err error) {
	post := new(BulkRateRequest)
	if ok, err := bind(c, post); !ok {
		return err
	}
	if err := lh.validator.Struct(post); err != nil {
		return respondInvalid(c, "Failed to validate params", err)
	}

	ctx := c.Request().Context()
	rates, err := lh.rates.BulkLessonRates(ctx, post.LessonIDs)
	if err != nil {
		logging.ExtractLoggerFromContext(ctx).Warn("completion rates partially resolved",
			zap.Int("lesson.requested", len(post.LessonIDs)),
			zap.Int("lesson.resolved", len(rates)),
			zap.Error(err))
	}
	result := make(map[string]int, len(post.LessonIDs))
	for _, id := range post.LessonIDs {
		result[id] = rates[id]
	}
	return c.JSON(http.StatusOK, echo.Map{"completion_rates": result})
}
