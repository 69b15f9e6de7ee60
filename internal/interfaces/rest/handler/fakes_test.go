package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/learning-analytics/internal/infrastructure/auth"
	"github.com/pot-code/learning-analytics/internal/lesson"
	"github.com/pot-code/learning-analytics/internal/progress"
)

const testUserID = "U1"

var testJWTUtil = auth.NewJWTUtil("HS256", "secret", "token", time.Hour)

// newContext build an authenticated echo context, body is sent as JSON when not empty
func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req = httptest.NewRequest(method, target, nil)
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	testJWTUtil.SetContextToken(c, &auth.AppTokenClaims{UID: testUserID})
	return c, rec
}

type fakeRates struct {
	lesson  map[string]int
	user    int
	overall int
	err     error

	bulkIDs []string
}

func (f *fakeRates) LessonRate(ctx context.Context, lessonID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.lesson[lessonID], nil
}

func (f *fakeRates) UserRate(ctx context.Context, userID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.user, nil
}

func (f *fakeRates) OverallRate(ctx context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.overall, nil
}

func (f *fakeRates) BulkLessonRates(ctx context.Context, lessonIDs []string) (map[string]int, error) {
	f.bulkIDs = lessonIDs
	result := make(map[string]int)
	for id, rate := range f.lesson {
		result[id] = rate
	}
	return result, f.err
}

type fakeLessonUseCase struct {
	lessons  []*lesson.LessonModel
	progress []*lesson.LessonProgressModel
	err      error

	offset, limit int
}

func (f *fakeLessonUseCase) ListLessons(ctx context.Context, offset, limit int) ([]*lesson.LessonModel, error) {
	f.offset, f.limit = offset, limit
	return f.lessons, f.err
}

func (f *fakeLessonUseCase) GetUserLessonProgress(ctx context.Context, userID string) ([]*lesson.LessonProgressModel, error) {
	return f.progress, f.err
}

type fakeProgressUseCase struct {
	err error

	userID      string
	update      *progress.ProgressUpdate
	interaction *progress.Interaction
}

func (f *fakeProgressUseCase) GetProgress(ctx context.Context, userID, lessonID string) (*progress.ProgressModel, error) {
	f.userID = userID
	if f.err != nil {
		return nil, f.err
	}
	return &progress.ProgressModel{ID: "P1", UserID: userID, LessonID: lessonID, Status: progress.StatusNotStarted}, nil
}

func (f *fakeProgressUseCase) UpdateProgress(ctx context.Context, userID, lessonID string, update *progress.ProgressUpdate) (*progress.ProgressModel, error) {
	f.userID, f.update = userID, update
	if f.err != nil {
		return nil, f.err
	}
	return &progress.ProgressModel{ID: "P1", UserID: userID, LessonID: lessonID, Status: progress.StatusInProgress}, nil
}

func (f *fakeProgressUseCase) RecordInteraction(ctx context.Context, userID string, interaction *progress.Interaction) (*progress.InteractionModel, error) {
	f.userID, f.interaction = userID, interaction
	if f.err != nil {
		return nil, f.err
	}
	return &progress.InteractionModel{ID: "I1", UserID: userID, LessonID: interaction.LessonID, Kind: interaction.Kind}, nil
}
