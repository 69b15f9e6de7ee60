package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/learning-analytics/internal/completion"
	"github.com/pot-code/learning-analytics/internal/infrastructure/auth"
	"github.com/pot-code/learning-analytics/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// DashboardStats completion figures shown on the learner dashboard
type DashboardStats struct {
	UserCompletionRate    int `json:"user_completion_rate"`
	OverallCompletionRate int `json:"overall_completion_rate"`
}

type DashboardHandler struct {
	rates   completion.RateQuerier
	jwtUtil *auth.JWTUtil
}

func NewDashboardHandler(RateQuerier completion.RateQuerier, JWTUtil *auth.JWTUtil) *DashboardHandler {
	handler := &DashboardHandler{RateQuerier, JWTUtil}
	return handler
}

// HandleGetStats user and overall completion rates, failed computations render as 0
func (dh *DashboardHandler) HandleGetStats(c echo.Context) (err error) {
	ctx := c.Request().Context()
	logger := logging.ExtractLoggerFromContext(ctx)
	claims := dh.jwtUtil.GetContextToken(c)

	stats := new(DashboardStats)
	if stats.UserCompletionRate, err = dh.rates.UserRate(ctx, claims.UID); err != nil {
		logger.Warn("failed to compute user completion rate", zap.String("user.id", claims.UID), zap.Error(err))
		stats.UserCompletionRate = 0
	}
	if stats.OverallCompletionRate, err = dh.rates.OverallRate(ctx); err != nil {
		logger.Warn("failed to compute overall completion rate", zap.Error(err))
		stats.OverallCompletionRate = 0
	}
	return c.JSON(http.StatusOK, stats)
}
