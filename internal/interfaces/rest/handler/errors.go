package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/learning-analytics/internal/infrastructure/validate"
)

// RESTStandardError response error
type RESTStandardError struct {
	Type    string `json:"type,omitempty"`
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Detail  string `json:"detail,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func NewRESTStandardError(code int, detail string) *RESTStandardError {
	return &RESTStandardError{
		Code:   code,
		Title:  http.StatusText(code),
		Detail: detail,
	}
}

func (re RESTStandardError) Error() string {
	return re.Detail
}

func (re RESTStandardError) SetTraceID(traceID string) RESTStandardError {
	re.TraceID = traceID
	return re
}

// RESTValidationError standard validation error
type RESTValidationError struct {
	RESTStandardError
	InvalidParams []*validate.FieldError `json:"invalid_params"`
}

func NewRESTValidationError(code int, detail string, internal []*validate.FieldError) *RESTValidationError {
	return &RESTValidationError{
		RESTStandardError: RESTStandardError{
			Code:   code,
			Title:  http.StatusText(code),
			Detail: detail,
		},
		InvalidParams: internal,
	}
}

func (rve RESTValidationError) Error() string {
	return rve.Detail
}

func (rve RESTValidationError) SetTraceID(traceID string) RESTValidationError {
	rve.RESTStandardError.TraceID = traceID
	return rve
}

func traceID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func respondError(c echo.Context, code int, detail string) error {
	return c.JSON(code, NewRESTStandardError(code, detail).SetTraceID(traceID(c)))
}

func respondInvalid(c echo.Context, detail string, params []*validate.FieldError) error {
	return c.JSON(http.StatusBadRequest,
		NewRESTValidationError(http.StatusBadRequest, detail, params).SetTraceID(traceID(c)))
}

// lessonIDRule lesson ids are embedded in cache keys next to the user and
// overall namespaces, so ':' and "overall" are rejected
const lessonIDRule = "required,max=64,excludes=:,ne=overall"

// lessonParam validated :id path parameter, writes a 400 response when invalid
func lessonParam(c echo.Context, v validate.Validator) (id string, ok bool, err error) {
	id = c.Param("id")
	if invalid := v.Var("id", id, lessonIDRule); len(invalid) > 0 {
		return "", false, respondInvalid(c, "Failed to validate params", invalid)
	}
	return id, true, nil
}

// bind decode request body into v, writes a 422 response on failure
func bind(c echo.Context, v interface{}) (ok bool, err error) {
	if err := c.Bind(v); err != nil {
		detail := err.Error()
		if he, isHTTP := err.(*echo.HTTPError); isHTTP && he.Internal != nil {
			detail = he.Internal.Error()
		}
		return false, respondError(c, http.StatusUnprocessableEntity, detail)
	}
	return true, nil
}
