package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/pot-code/learning-analytics/internal/infrastructure/validate"
	"github.com/pot-code/learning-analytics/internal/lesson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLessonHandler_HandleListLessons(t *testing.T) {
	t.Run("default page", func(t *testing.T) {
		uc := &fakeLessonUseCase{lessons: []*lesson.LessonModel{{ID: "L1", Title: "Intro", CompletionRate: 50}}}
		h := NewLessonHandler(uc, &fakeRates{}, testJWTUtil, validate.NewValidator())
		c, rec := newContext(http.MethodGet, "/api/v1/lesson", "")

		require.NoError(t, h.HandleListLessons(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, uc.offset)
		assert.Equal(t, defaultPageSize, uc.limit)

		var body []*lesson.LessonModel
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body, 1)
		assert.Equal(t, 50, body[0].CompletionRate)
	})

	t.Run("empty list renders as array", func(t *testing.T) {
		h := NewLessonHandler(&fakeLessonUseCase{}, &fakeRates{}, testJWTUtil, validate.NewValidator())
		c, rec := newContext(http.MethodGet, "/api/v1/lesson?offset=20&limit=10", "")

		require.NoError(t, h.HandleListLessons(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("limit out of range", func(t *testing.T) {
		uc := &fakeLessonUseCase{}
		h := NewLessonHandler(uc, &fakeRates{}, testJWTUtil, validate.NewValidator())
		c, rec := newContext(http.MethodGet, "/api/v1/lesson?limit=1000", "")

		require.NoError(t, h.HandleListLessons(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "limit")
		assert.Zero(t, uc.limit, "use case must not be called")
	})
}

func TestLessonHandler_HandleGetLessonRate(t *testing.T) {
	t.Run("cached or computed rate", func(t *testing.T) {
		h := NewLessonHandler(&fakeLessonUseCase{}, &fakeRates{lesson: map[string]int{"L1": 67}}, testJWTUtil, validate.NewValidator())
		c, rec := newContext(http.MethodGet, "/api/v1/lesson/L1/completion-rate", "")
		c.SetParamNames("id")
		c.SetParamValues("L1")

		require.NoError(t, h.HandleGetLessonRate(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"lesson_id":"L1","completion_rate":67}`, rec.Body.String())
	})

	t.Run("failure renders zero", func(t *testing.T) {
		h := NewLessonHandler(&fakeLessonUseCase{}, &fakeRates{err: errors.New("db down")}, testJWTUtil, validate.NewValidator())
		c, rec := newContext(http.MethodGet, "/api/v1/lesson/L1/completion-rate", "")
		c.SetParamNames("id")
		c.SetParamValues("L1")

		require.NoError(t, h.HandleGetLessonRate(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"lesson_id":"L1","completion_rate":0}`, rec.Body.String())
	})

	for _, id := range []string{"overall", "user:U1"} {
		t.Run("reserved id "+id, func(t *testing.T) {
			rates := &fakeRates{lesson: map[string]int{id: 90}}
			h := NewLessonHandler(&fakeLessonUseCase{}, rates, testJWTUtil, validate.NewValidator())
			c, rec := newContext(http.MethodGet, "/api/v1/lesson/x/completion-rate", "")
			c.SetParamNames("id")
			c.SetParamValues(id)

			require.NoError(t, h.HandleGetLessonRate(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"id"`)
		})
	}
}

func TestLessonHandler_HandleBulkLessonRates(t *testing.T) {
	t.Run("every requested lesson is present", func(t *testing.T) {
		rates := &fakeRates{lesson: map[string]int{"L1": 50}}
		h := NewLessonHandler(&fakeLessonUseCase{}, rates, testJWTUtil, validate.NewValidator())
		c, rec := newContext(http.MethodPost, "/api/v1/lesson/completion-rates", `{"lesson_ids":["L1","L2"]}`)

		require.NoError(t, h.HandleBulkLessonRates(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"completion_rates":{"L1":50,"L2":0}}`, rec.Body.String())
		assert.Equal(t, []string{"L1", "L2"}, rates.bulkIDs)
	})

	t.Run("partial result on failure", func(t *testing.T) {
		rates := &fakeRates{lesson: map[string]int{"L1": 50}, err: errors.New("aggregation failed")}
		h := NewLessonHandler(&fakeLessonUseCase{}, rates, testJWTUtil, validate.NewValidator())
		c, rec := newContext(http.MethodPost, "/api/v1/lesson/completion-rates", `{"lesson_ids":["L1","L2"]}`)

		require.NoError(t, h.HandleBulkLessonRates(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"completion_rates":{"L1":50,"L2":0}}`, rec.Body.String())
	})

	t.Run("empty id list", func(t *testing.T) {
		rates := &fakeRates{}
		h := NewLessonHandler(&fakeLessonUseCase{}, rates, testJWTUtil, validate.NewValidator())
		c, rec := newContext(http.MethodPost, "/api/v1/lesson/completion-rates", `{"lesson_ids":[]}`)

		require.NoError(t, h.HandleBulkLessonRates(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, rates.bulkIDs)
	})

	t.Run("ids that would share a cache key", func(t *testing.T) {
		rates := &fakeRates{}
		h := NewLessonHandler(&fakeLessonUseCase{}, rates, testJWTUtil, validate.NewValidator())
		c, rec := newContext(http.MethodPost, "/api/v1/lesson/completion-rates", `{"lesson_ids":["L1","user:U1","overall"]}`)

		require.NoError(t, h.HandleBulkLessonRates(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "lesson_ids[1]")
		assert.Contains(t, rec.Body.String(), "lesson_ids[2]")
		assert.Nil(t, rates.bulkIDs)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := NewLessonHandler(&fakeLessonUseCase{}, &fakeRates{}, testJWTUtil, validate.NewValidator())
		c, rec := newContext(http.MethodPost, "/api/v1/lesson/completion-rates", `{"lesson_ids":`)

		require.NoError(t, h.HandleBulkLessonRates(c))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}
